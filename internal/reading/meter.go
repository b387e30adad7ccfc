// Package reading serves the metered tarot-reading endpoints.
package reading

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/auth"
	"github.com/ubuygold/gotarot/internal/model"
	"github.com/ubuygold/gotarot/internal/oracle"
	"github.com/ubuygold/gotarot/internal/quota"

	"github.com/gin-gonic/gin"
)

// AccountReader re-reads accounts so every request sees committed quota.
type AccountReader interface {
	LookupByToken(token string) (*model.Account, error)
}

// Options tunes the meter.
type Options struct {
	Timeout time.Duration
	// SerializePerAccount holds the account lock from the quota check until the charge.
	SerializePerAccount bool
	// Gate must match the options of the token middleware in front of the meter.
	Gate auth.GateOptions
}

// Meter guards generative calls behind the caller's quota and charges one
// call only after a successful result.
type Meter struct {
	accounts  AccountReader
	ledger    *quota.Ledger
	generator oracle.Generator
	opts      Options
	logger    *slog.Logger
}

func NewMeter(accounts AccountReader, ledger *quota.Ledger, generator oracle.Generator, opts Options, logger *slog.Logger) *Meter {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Gate.Now == nil {
		opts.Gate.Now = time.Now
	}
	return &Meter{
		accounts:  accounts,
		ledger:    ledger,
		generator: generator,
		opts:      opts,
		logger:    logger.With("component", "meter"),
	}
}

// Result is the body of a successful metered call.
type Result struct {
	Text  string      `json:"text"`
	Usage model.Usage `json:"usage"`
}

// Run executes one metered operation: quota check, then prepare (which
// validates input and builds the prompt), then the upstream call, then the charge.
func (m *Meter) Run(ctx context.Context, account *model.Account, token string, prepare func() (prompt, fallback string, err error)) (*Result, error) {
	if account == nil || token == "" {
		return nil, apperr.Unauthorized("access token is required")
	}

	if m.opts.SerializePerAccount {
		unlock := m.ledger.Lock(account.ID)
		defer unlock()
	}
	// Another request may have charged since the gate resolved the account.
	account, err := m.accounts.LookupByToken(token)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.Unauthorized("invalid token or account does not exist")
	}
	// The account may have been banned or expired while this request waited.
	if err := auth.CheckEligibility(account, m.opts.Gate.Now(), m.opts.Gate.EnforceStatus); err != nil {
		return nil, err
	}

	if quota.Remaining(account) <= 0 {
		return nil, apperr.QuotaExceeded("no calls remaining")
	}

	prompt, fallback, err := prepare()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()
	text, err := m.generator.Generate(callCtx, prompt)
	if err != nil {
		switch {
		case errors.Is(err, oracle.ErrNotConfigured), errors.Is(err, oracle.ErrAllKeysCoolingDown):
			unavailable := apperr.UpstreamUnavailable("reading service is not available")
			unavailable.Err = err
			return nil, unavailable
		case errors.Is(err, context.DeadlineExceeded):
			return nil, apperr.Upstream("reading service timed out", err)
		default:
			return nil, apperr.Upstream("failed to generate reading", err)
		}
	}
	if text == "" {
		text = fallback
	}

	if err := m.ledger.IncrementUsage(token, 1); err != nil {
		return nil, err
	}
	updated, err := m.accounts.LookupByToken(token)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.NotFound("account not found")
	}
	m.logger.Debug("Metered call charged", "account_id", updated.ID, "used", updated.UsageUsed, "limit", updated.UsageLimit)
	return &Result{Text: text, Usage: quota.UsageOf(updated)}, nil
}

// serve runs a metered operation for the authenticated caller of c.
func (m *Meter) serve(c *gin.Context, prepare func() (string, string, error)) {
	account, _ := auth.AccountFrom(c)
	result, err := m.Run(c.Request.Context(), account, auth.TokenFrom(c), prepare)
	if err != nil {
		apperr.Respond(c, m.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
