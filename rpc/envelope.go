package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"

	nativecommon "loyaltyledger/native/common"
	"loyaltyledger/native/loyalty"
	"loyaltyledger/observability"
)

const maxIdentifierLength = 128

var errBadRequest = errors.New("bad request")

// envelope is the body of every API response. Amounts are decimal strings.
type envelope struct {
	Success     bool           `json:"success"`
	Amount      string         `json:"amount,omitempty"`
	Error       string         `json:"error,omitempty"`
	Code        string         `json:"code,omitempty"`
	Tier        *uint8         `json:"tier,omitempty"`
	Requirement string         `json:"requirement,omitempty"`
	Multiplier  uint32         `json:"multiplier,omitempty"`
	Balance     string         `json:"balance,omitempty"`
	Principal   string         `json:"principal,omitempty"`
	Bonus       string         `json:"bonus,omitempty"`
	ElapsedMs   *int64         `json:"elapsedMillis,omitempty"`
	Registered  *bool          `json:"registered,omitempty"`
	Tiers       []tierView     `json:"tiers,omitempty"`
	Account     *accountView   `json:"account,omitempty"`
	Entries     []journalEntry `json:"entries,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func success() envelope { return envelope{Success: true} }

func tierPtr(t loyalty.Tier) *uint8 {
	v := uint8(t)
	return &v
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response", "error", err)
	}
}

// writeStatus renders middleware rejections in the response envelope.
func writeStatus(w http.ResponseWriter, status int, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, envelope{Success: false, Error: message, Code: statusCode(status)})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	observability.Operations().Reject(code, status)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, envelope{Success: false, Error: err.Error(), Code: code})
}

// classify maps a domain failure to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, loyalty.ErrInvalidTier):
		return http.StatusBadRequest, "INVALID_TIER"
	case errors.Is(err, loyalty.ErrInvalidMultiplier):
		return http.StatusBadRequest, "INVALID_MULTIPLIER"
	case errors.Is(err, loyalty.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, loyalty.ErrInvalidAddress):
		return http.StatusBadRequest, "INVALID_ADDRESS"
	case errors.Is(err, loyalty.ErrAmountOverflow):
		return http.StatusBadRequest, "AMOUNT_OVERFLOW"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, loyalty.ErrNotAuthorized):
		return http.StatusForbidden, "NOT_AUTHORIZED"
	case errors.Is(err, loyalty.ErrInvalidTierUpdate):
		return http.StatusConflict, "INVALID_TIER_UPDATE"
	case errors.Is(err, loyalty.ErrInsufficientBalance):
		return http.StatusConflict, "INSUFFICIENT_BALANCE"
	case errors.Is(err, loyalty.ErrNoStakedTokens):
		return http.StatusConflict, "NO_STAKED_TOKENS"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "MODULE_PAUSED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func statusCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// decodeBody reads a JSON object into dst. An empty body leaves dst zeroed.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

// parseAmount accepts a base-10 integer string. Sign checks are left to the
// ledger.
func parseAmount(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: %s is required", loyalty.ErrInvalidAmount, field)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q is not a decimal integer", loyalty.ErrInvalidAmount, field, raw)
	}
	return v, nil
}

// validIdentifier checks a user or business identifier taken from a path or
// body.
func validIdentifier(field, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: %s is required", loyalty.ErrInvalidAddress, field)
	}
	if len(id) > maxIdentifierLength || !govalidator.IsPrintableASCII(id) {
		return "", fmt.Errorf("%w: %s must be at most %d printable ASCII characters", loyalty.ErrInvalidAddress, field, maxIdentifierLength)
	}
	return id, nil
}

func parseTier(raw string) (loyalty.Tier, error) {
	raw = strings.TrimSpace(raw)
	if !govalidator.IsInt(raw) {
		return loyalty.NoTier, fmt.Errorf("%w: %q", loyalty.ErrInvalidTier, raw)
	}
	n, err := govalidator.ToInt(raw)
	if err != nil || n < int64(loyalty.MinTier) || n > int64(loyalty.MaxTier) {
		return loyalty.NoTier, fmt.Errorf("%w: %s", loyalty.ErrInvalidTier, raw)
	}
	return loyalty.Tier(n), nil
}
