package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"loyaltyledger/config"
	"loyaltyledger/core/events"
	"loyaltyledger/core/state"
	"loyaltyledger/gateway/middleware"
	nativecommon "loyaltyledger/native/common"
	"loyaltyledger/native/loyalty"
	"loyaltyledger/observability"
	"loyaltyledger/observability/logging"
	"loyaltyledger/observability/metrics"
	"loyaltyledger/rpc"
	"loyaltyledger/storage"
	"loyaltyledger/storage/journal"
)

// service owns every long-lived component of the daemon.
type service struct {
	db       storage.Database
	journal  *journal.Journal
	hub      *rpc.Hub
	registry *loyalty.TierRegistry
	ledger   *loyalty.Ledger
	pauses   *nativecommon.Pauses
	handler  http.Handler
}

func newService(cfg *config.Config, logger *slog.Logger) (*service, error) {
	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path, cfg.Storage.CacheSize)
	if err != nil {
		return nil, err
	}
	svc := &service{db: db, hub: rpc.NewHub(logger.With("component", "events")), pauses: nativecommon.NewPauses()}

	fanout := events.NewFanout(svc.hub, observability.Events(), metrics.Loyalty())
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.DSN)
		if err != nil {
			svc.Close()
			return nil, err
		}
		j.SetLogger(logger.With("component", "journal"))
		logger.Info("event journal enabled", logging.MaskDSN(cfg.Journal.DSN))
		svc.journal = j
		fanout.Add(j)
	}

	st := state.NewManager(db)
	svc.registry = loyalty.NewTierRegistry(st)
	svc.registry.SetEmitter(fanout)
	svc.registry.SetPauses(svc.pauses)
	svc.ledger = loyalty.NewLedger(st)
	svc.ledger.SetEmitter(fanout)
	svc.ledger.SetPauses(svc.pauses)
	if err := svc.ledger.SetStakingParams(loyalty.StakingParams{
		BonusRateBps: cfg.Staking.BonusRateBps,
		BonusPeriod:  cfg.Staking.BonusPeriod(),
	}); err != nil {
		svc.Close()
		return nil, err
	}

	if err := svc.seed(cfg); err != nil {
		svc.Close()
		return nil, err
	}
	// Pauses apply after seeding so a paused boot still carries the configured
	// ladder.
	for _, module := range cfg.Pauses.Modules() {
		svc.pauses.Set(module, true)
		logger.Warn("module paused by configuration", "module", module)
	}

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		ClockSkew:  cfg.Auth.ClockSkew(),
	}, logger.With("component", "auth"))
	if cfg.Auth.Enabled {
		logger.Info("bearer auth enabled",
			"issuer", cfg.Auth.Issuer,
			logging.MaskField("secret", cfg.Auth.HMACSecret))
	}
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"loyalty": {
			RatePerSecond: cfg.RateLimit.RatePerSecond,
			Burst:         cfg.RateLimit.Burst,
			DefaultTokens: 1,
			Tokens:        map[string]int{"POST /v1/mint": 2},
		},
	}, logger.With("component", "ratelimit"))
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     true,
		LogRequests: cfg.Logging.Level == "debug",
	}, logger)
	var cors *middleware.CORSConfig
	if len(cfg.AllowedOrigins) > 0 {
		cors = &middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}
	}

	server := rpc.New(rpc.Config{
		ServiceName:   cfg.Telemetry.ServiceName,
		Registry:      svc.registry,
		Ledger:        svc.ledger,
		Journal:       svc.journal,
		Hub:           svc.hub,
		Auth:          auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS:          cors,
		Logger:        logger,
	})
	svc.handler = server.Handler()
	return svc, nil
}

// seed applies the configured tier ladder and business allow-list. Both are
// idempotent, so restarts reapply them safely.
func (s *service) seed(cfg *config.Config) error {
	for _, t := range cfg.Tiers {
		requirement, err := t.RequirementAmount()
		if err != nil {
			return fmt.Errorf("seed tier %d: %w", t.Tier, err)
		}
		if err := s.registry.SetTierRequirement(loyalty.Tier(t.Tier), requirement); err != nil {
			return fmt.Errorf("seed tier %d: %w", t.Tier, err)
		}
		if t.Multiplier != 0 {
			if err := s.registry.SetTierMultiplier(loyalty.Tier(t.Tier), t.Multiplier); err != nil {
				return fmt.Errorf("seed tier %d: %w", t.Tier, err)
			}
		}
	}
	for _, business := range cfg.Businesses {
		if err := s.ledger.RegisterBusiness(business); err != nil {
			return fmt.Errorf("seed business %q: %w", business, err)
		}
	}
	return nil
}

func (s *service) Close() error {
	if s.hub != nil {
		s.hub.Close()
	}
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.db != nil {
		s.db.Close()
	}
	return errors.Join(errs...)
}
