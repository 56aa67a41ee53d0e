package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"loyaltyledger/cmd/internal/passphrase"
	"loyaltyledger/config"
	"loyaltyledger/gateway/middleware"
	"loyaltyledger/storage/journal"
)

const (
	tokenCommand   = "token"
	journalCommand = "journal"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case tokenCommand:
		err = runToken(os.Args[2:])
	case journalCommand:
		err = runJournal(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: loyaltyctl <command> [flags]

Commands:
  token            issue an HS256 API token
  journal verify   recompute the journal hash chain
  journal export   write the journal to a parquet file
`)
}

type tokenOptions struct {
	Subject  string
	Scopes   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

func runToken(args []string) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ExitOnError)
	opts := tokenOptions{}
	fs.StringVar(&opts.Subject, "subject", "", "Token subject, usually the calling system")
	fs.StringVar(&opts.Scopes, "scopes", middleware.ScopeWrite, "Comma-separated scopes (loyalty:write, loyalty:admin)")
	fs.StringVar(&opts.Issuer, "issuer", "", "Issuer claim; must match the daemon's auth.Issuer")
	fs.StringVar(&opts.Audience, "audience", "", "Audience claim; must match the daemon's auth.Audience")
	fs.DurationVar(&opts.TTL, "ttl", time.Hour, "Token lifetime")
	fs.Parse(args)

	secret, err := passphrase.NewSource(config.EnvAuthSecret, "API signing secret").Get()
	if err != nil {
		return err
	}
	return issueToken(os.Stdout, secret, opts)
}

func issueToken(w io.Writer, secret string, opts tokenOptions) error {
	var scopes []string
	for _, scope := range strings.Split(opts.Scopes, ",") {
		scope = strings.TrimSpace(scope)
		switch scope {
		case "":
			continue
		case middleware.ScopeWrite, middleware.ScopeAdmin:
			scopes = append(scopes, scope)
		default:
			return fmt.Errorf("unknown scope %q", scope)
		}
	}
	if len(scopes) == 0 {
		return errors.New("at least one scope is required")
	}
	token, err := middleware.SignToken(middleware.TokenRequest{
		Secret:   secret,
		Subject:  strings.TrimSpace(opts.Subject),
		Scopes:   scopes,
		Issuer:   opts.Issuer,
		Audience: opts.Audience,
		TTL:      opts.TTL,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func runJournal(args []string) error {
	if len(args) < 1 {
		usage()
		return errors.New("journal: missing subcommand")
	}
	sub := args[0]
	fs := flag.NewFlagSet(journalCommand+" "+sub, flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv(config.EnvJournalDSN), "Journal DSN (sqlite path or postgres:// URL)")
	out := fs.String("out", "loyalty-journal.parquet", "Output file for export")
	fs.Parse(args[1:])

	ctx := context.Background()
	switch sub {
	case "verify":
		return verifyJournal(ctx, os.Stdout, *dsn)
	case "export":
		return exportJournal(ctx, os.Stdout, *dsn, *out)
	default:
		usage()
		return fmt.Errorf("journal: unknown subcommand %q", sub)
	}
}

func openJournal(dsn string) (*journal.Journal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("journal DSN required; pass --dsn or set %s", config.EnvJournalDSN)
	}
	return journal.Open(dsn)
}

func verifyJournal(ctx context.Context, w io.Writer, dsn string) error {
	j, err := openJournal(dsn)
	if err != nil {
		return err
	}
	defer j.Close()
	checked, err := j.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verified %d entries before failure: %w", checked, err)
	}
	_, err = fmt.Fprintf(w, "journal OK: %d entries verified\n", checked)
	return err
}

func exportJournal(ctx context.Context, w io.Writer, dsn, out string) error {
	j, err := openJournal(dsn)
	if err != nil {
		return err
	}
	defer j.Close()
	written, err := j.ExportParquet(ctx, out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "exported %d entries to %s\n", written, out)
	return err
}
