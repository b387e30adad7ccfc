// Package credential owns account creation, lookup and password handling.
package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/db"
	"github.com/ubuygold/gotarot/internal/model"
)

const maxTokenAttempts = 5

// CreateParams holds the fields of a new account. Username, Password and
// Email are required; everything else falls back to defaults.
type CreateParams struct {
	Username   string
	Password   string
	Email      string
	Phone      string
	AgentID    string
	Name       string
	Tier       string
	PlanType   string
	IsTest     bool
	Balance    float64
	UsageLimit int64
	ValidFrom  *time.Time
	ValidTo    *time.Time
}

// Store is the credential store. It is the only writer of account rows
// besides the quota ledger.
type Store struct {
	db     db.Service
	hasher Hasher
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(dbService db.Service, hasher Hasher, logger *slog.Logger) *Store {
	return &Store{
		db:     dbService,
		hasher: hasher,
		logger: logger.With("component", "credential"),
		now:    time.Now,
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// CreateAccount validates, hashes and persists a new active account.
func (s *Store) CreateAccount(p CreateParams) (*model.Account, error) {
	username := strings.TrimSpace(p.Username)
	password := strings.TrimSpace(p.Password)
	email := strings.TrimSpace(p.Email)
	for _, field := range []struct{ name, value string }{
		{"username", username}, {"password", password}, {"email", email},
	} {
		if field.value == "" {
			return nil, apperr.Validation("%s must not be empty", field.name)
		}
	}
	if p.UsageLimit < 0 || p.Balance < 0 {
		return nil, apperr.Validation("usage_limit and balance must not be negative")
	}
	phone := optional(p.Phone)

	taken, err := s.db.IdentityTaken(username, &email, phone)
	if err != nil {
		return nil, err
	}
	if taken != "" {
		return nil, apperr.Conflict(taken + " already exists")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	token, err := s.newToken(username)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tier := strings.TrimSpace(p.Tier)
	if tier == "" {
		tier = "level1"
	}
	plan := strings.TrimSpace(p.PlanType)
	if plan == "" {
		plan = tier
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = username
	}
	validFrom := p.ValidFrom
	if validFrom == nil {
		validFrom = &now
	}

	account := &model.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Email:        &email,
		Phone:        phone,
		Name:         name,
		AgentID:      optional(p.AgentID),
		APIToken:     token,
		Tier:         tier,
		PlanType:     plan,
		IsTest:       p.IsTest,
		Status:       model.StatusActive,
		Balance:      p.Balance,
		UsageLimit:   p.UsageLimit,
		UsageUsed:    0,
		ValidFrom:    validFrom,
		ValidTo:      p.ValidTo,
		CreatedAt:    now,
	}
	if err := s.db.CreateAccount(account); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// Lost a race with a concurrent create of the same identity.
			return nil, apperr.Conflict("account already exists")
		}
		return nil, err
	}
	s.logger.Info("Account created", "account_id", account.ID, "username", username)
	return account, nil
}

// newToken derives a bearer token from the username and a fresh random suffix.
func (s *Store) newToken(username string) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token := fmt.Sprintf("token-%s-%s", username, uuid.NewString()[:8])
		exists, err := s.db.TokenExists(token)
		if err != nil {
			return "", err
		}
		if !exists {
			return token, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique token for %s", username)
}

func (s *Store) lookup(key string, get func(string) (*model.Account, error)) (*model.Account, error) {
	if strings.TrimSpace(key) == "" {
		return nil, apperr.Validation("lookup key must not be empty")
	}
	account, err := get(key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return account, err
}

// LookupByUsername returns nil, nil when no account matches.
func (s *Store) LookupByUsername(username string) (*model.Account, error) {
	return s.lookup(username, s.db.GetAccountByUsername)
}

// LookupByID returns nil, nil when no account matches.
func (s *Store) LookupByID(id string) (*model.Account, error) {
	return s.lookup(id, s.db.GetAccountByID)
}

// LookupByToken returns nil, nil when no account matches.
func (s *Store) LookupByToken(token string) (*model.Account, error) {
	return s.lookup(token, s.db.GetAccountByToken)
}

// LookupByPhone returns nil, nil when no account matches.
func (s *Store) LookupByPhone(phone string) (*model.Account, error) {
	return s.lookup(phone, s.db.GetAccountByPhone)
}

// VerifyPassword accepts a hash match or a legacy plaintext match.
func (s *Store) VerifyPassword(account *model.Account, candidate string) bool {
	return account != nil && matchPassword(account.PasswordHash, candidate) != noMatch
}

// Authenticate verifies the password and rehashes rows that still hold a
// plaintext password. A failed rehash is logged and does not fail the login.
func (s *Store) Authenticate(account *model.Account, candidate string) bool {
	if account == nil {
		return false
	}
	mode := matchPassword(account.PasswordHash, candidate)
	if mode == matchPlaintext {
		if hash, err := s.hasher.Hash(candidate); err == nil {
			if err := s.db.UpdatePassword(account.ID, hash); err != nil {
				s.logger.Warn("Failed to migrate plaintext password", "account_id", account.ID, "error", err)
			} else {
				account.PasswordHash = hash
				s.logger.Info("Migrated plaintext password", "account_id", account.ID)
			}
		}
	}
	return mode != noMatch
}

// ResetPassword stores a new digest for the account.
func (s *Store) ResetPassword(id, newPassword string) error {
	newPassword = strings.TrimSpace(newPassword)
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("user_id must not be empty")
	}
	if newPassword == "" {
		return apperr.Validation("new_password must not be empty")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.db.UpdatePassword(id, hash); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("account not found")
		}
		return err
	}
	return nil
}

// UpdateStatus moves the account to one of active, banned or deleted.
func (s *Store) UpdateStatus(id, status string) (*model.Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("user_id must not be empty")
	}
	if !model.ValidStatus(status) {
		return nil, apperr.Validation("invalid status %q, allowed values: active/banned/deleted", status)
	}
	account, err := s.db.UpdateStatus(id, status)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("account not found")
		}
		return nil, err
	}
	s.logger.Info("Account status changed", "account_id", id, "status", status)
	return account, nil
}

// List returns non-deleted accounts, newest first.
func (s *Store) List(limit, offset int) ([]model.Account, error) {
	return s.db.ListAccounts(limit, offset)
}

// Search returns non-deleted accounts whose username, phone or email contains keyword.
func (s *Store) Search(keyword string, limit int) ([]model.Account, error) {
	return s.db.SearchAccounts(keyword, limit)
}

// Stats returns the admin dashboard counters.
func (s *Store) Stats() (model.Stats, error) {
	return s.db.Stats()
}
