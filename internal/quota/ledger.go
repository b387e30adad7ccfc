// Package quota mutates and reads the per-account call budget and balance.
package quota

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/db"
	"github.com/ubuygold/gotarot/internal/model"
)

// Kind selects which counter Adjust changes.
type Kind string

const (
	KindBalance Kind = "balance"
	KindCalls   Kind = "calls"
)

// Remaining is max(0, limit - used).
func Remaining(account *model.Account) int64 {
	if account == nil {
		return 0
	}
	if r := account.UsageLimit - account.UsageUsed; r > 0 {
		return r
	}
	return 0
}

// UsageOf returns the quota snapshot of account.
func UsageOf(account *model.Account) model.Usage {
	return model.Usage{
		Limit:     account.UsageLimit,
		Used:      account.UsageUsed,
		Remaining: Remaining(account),
	}
}

// Ledger is the quota ledger. Every counter change is a single conditional
// statement in the store and is serialized per account in process.
type Ledger struct {
	db     db.Service
	locks  *keyedMutex
	logger *slog.Logger
}

func NewLedger(dbService db.Service, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     dbService,
		locks:  newKeyedMutex(),
		logger: logger.With("component", "quota"),
	}
}

// Lock serializes work on one account. Callers must call the returned func.
func (l *Ledger) Lock(accountID string) func() {
	return l.locks.Lock(accountID)
}

// Adjust changes the balance or the call limit of an account by delta.
// Balance clamps at zero; the call limit never drops below the calls already used.
func (l *Ledger) Adjust(accountID string, kind Kind, delta float64) (*model.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, apperr.Validation("user_id must not be empty")
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta == 0 {
		return nil, apperr.Validation("amount must be a non-zero number")
	}

	var (
		account *model.Account
		err     error
	)
	switch kind {
	case KindBalance:
		unlock := l.locks.Lock(accountID)
		account, err = l.db.AdjustBalance(accountID, delta)
		unlock()
	case KindCalls:
		if delta != math.Trunc(delta) || math.Abs(delta) > math.MaxInt64/2 {
			return nil, apperr.Validation("amount must be a whole number for calls")
		}
		unlock := l.locks.Lock(accountID)
		account, err = l.db.AdjustUsageLimit(accountID, int64(delta))
		unlock()
	default:
		return nil, apperr.Validation("type must be balance or calls")
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("account not found")
		}
		return nil, err
	}
	l.logger.Info("Quota adjusted", "account_id", accountID, "type", kind, "amount", delta,
		"balance", account.Balance, "usage_limit", account.UsageLimit)
	return account, nil
}

// IncrementUsage adds step to usage_used of the account owning token.
// It is not deduplicated: every call charges.
func (l *Ledger) IncrementUsage(token string, step int64) error {
	if step <= 0 {
		return apperr.Validation("step must be positive")
	}
	if err := l.db.IncrementUsage(token, step); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("account not found")
		}
		return err
	}
	return nil
}

// ResetUsage sets usage_used back to zero for the account owning token.
func (l *Ledger) ResetUsage(token string) error {
	if err := l.db.ResetUsage(token); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("account not found")
		}
		return err
	}
	return nil
}

// ResetAllUsage sets usage_used back to zero for every account.
func (l *Ledger) ResetAllUsage() error {
	if err := l.db.ResetAllUsage(); err != nil {
		return fmt.Errorf("reset all usage: %w", err)
	}
	l.logger.Info("Reset usage of all accounts")
	return nil
}
