package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ubuygold/gotarot/internal/config"
	"github.com/ubuygold/gotarot/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when no account matches the lookup key.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("duplicate account field")
)

// Service is the durable account store. All account mutation goes through it.
type Service interface {
	GetDB() *gorm.DB

	CreateAccount(account *model.Account) error
	GetAccountByID(id string) (*model.Account, error)
	GetAccountByUsername(username string) (*model.Account, error)
	GetAccountByToken(token string) (*model.Account, error)
	GetAccountByPhone(phone string) (*model.Account, error)
	// IdentityTaken returns the name of the first field among username, email
	// and phone that is already used by any row, deleted rows included.
	IdentityTaken(username string, email, phone *string) (string, error)
	TokenExists(token string) (bool, error)
	CountAccounts() (int64, error)

	AdjustBalance(id string, delta float64) (*model.Account, error)
	AdjustUsageLimit(id string, delta int64) (*model.Account, error)
	IncrementUsage(token string, step int64) error
	ResetUsage(token string) error
	ResetAllUsage() error

	UpdateStatus(id, status string) (*model.Account, error)
	UpdatePassword(id, hash string) error

	ListAccounts(limit, offset int) ([]model.Account, error)
	SearchAccounts(keyword string, limit int) ([]model.Account, error)
	Stats() (model.Stats, error)
}

type service struct {
	db *gorm.DB
}

// NewService opens the database described by cfg and migrates the schema.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	db, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &service{db: db}, nil
}

// Init initializes the database connection based on the provided configuration.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// SQLite allows a single writer; one connection keeps writers queued
		// instead of failing with "database is locked" and keeps :memory: databases shared.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto-migrate the schema
	err = db.AutoMigrate(&model.Account{})
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

func (s *service) CreateAccount(account *model.Account) error {
	if err := s.db.Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to create account %s: %w", account.Username, ErrDuplicate)
		}
		return fmt.Errorf("failed to create account %s: %w", account.Username, err)
	}
	return nil
}

func (s *service) getBy(column, value string) (*model.Account, error) {
	var account model.Account
	err := s.db.Where(column+" = ?", value).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account by %s: %w", column, err)
	}
	return &account, nil
}

func (s *service) GetAccountByID(id string) (*model.Account, error) {
	return s.getBy("id", id)
}

func (s *service) GetAccountByUsername(username string) (*model.Account, error) {
	return s.getBy("username", username)
}

func (s *service) GetAccountByToken(token string) (*model.Account, error) {
	return s.getBy("api_token", token)
}

func (s *service) GetAccountByPhone(phone string) (*model.Account, error) {
	return s.getBy("phone", phone)
}

func (s *service) IdentityTaken(username string, email, phone *string) (string, error) {
	checks := []struct {
		column string
		value  *string
	}{
		{"username", &username},
		{"email", email},
		{"phone", phone},
	}
	for _, check := range checks {
		if check.value == nil || *check.value == "" {
			continue
		}
		var count int64
		if err := s.db.Model(&model.Account{}).Where(check.column+" = ?", *check.value).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check %s uniqueness: %w", check.column, err)
		}
		if count > 0 {
			return check.column, nil
		}
	}
	return "", nil
}

func (s *service) TokenExists(token string) (bool, error) {
	var count int64
	if err := s.db.Model(&model.Account{}).Where("api_token = ?", token).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check token uniqueness: %w", err)
	}
	return count > 0, nil
}

func (s *service) CountAccounts() (int64, error) {
	var count int64
	if err := s.db.Model(&model.Account{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// mutate runs update against the account with the given id inside a
// transaction and returns the row as committed.
func (s *service) mutate(id string, update func(tx *gorm.DB) error) (*model.Account, error) {
	var account model.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := update(tx.Model(&model.Account{}).Where("id = ?", id)); err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&account).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// AdjustBalance adds delta to the balance, clamping the result at zero, in a single statement.
func (s *service) AdjustBalance(id string, delta float64) (*model.Account, error) {
	account, err := s.mutate(id, func(tx *gorm.DB) error {
		return tx.Update("balance", gorm.Expr("CASE WHEN balance + ? < 0 THEN 0 ELSE balance + ? END", delta, delta)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance for account %s: %w", id, err)
	}
	return account, nil
}

// AdjustUsageLimit adds delta to the usage limit, never letting it fall below usage_used.
func (s *service) AdjustUsageLimit(id string, delta int64) (*model.Account, error) {
	account, err := s.mutate(id, func(tx *gorm.DB) error {
		return tx.Update("usage_limit", gorm.Expr("CASE WHEN usage_limit + ? < usage_used THEN usage_used ELSE usage_limit + ? END", delta, delta)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to adjust usage limit for account %s: %w", id, err)
	}
	return account, nil
}

// IncrementUsage atomically increments usage_used for the account owning token.
func (s *service) IncrementUsage(token string, step int64) error {
	result := s.db.Model(&model.Account{}).Where("api_token = ?", token).Update("usage_used", gorm.Expr("usage_used + ?", step))
	if result.Error != nil {
		return fmt.Errorf("failed to increment usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *service) ResetUsage(token string) error {
	exists, err := s.TokenExists(token)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if err := s.db.Model(&model.Account{}).Where("api_token = ?", token).Update("usage_used", 0).Error; err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// ResetAllUsage resets the usage counter of every account to 0.
func (s *service) ResetAllUsage() error {
	result := s.db.Model(&model.Account{}).Where("usage_used > 0").Update("usage_used", 0)
	if result.Error != nil {
		return fmt.Errorf("failed to reset all account usage: %w", result.Error)
	}
	return nil
}

func (s *service) UpdateStatus(id, status string) (*model.Account, error) {
	account, err := s.mutate(id, func(tx *gorm.DB) error {
		return tx.Update("status", status).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update status for account %s: %w", id, err)
	}
	return account, nil
}

func (s *service) UpdatePassword(id, hash string) error {
	_, err := s.mutate(id, func(tx *gorm.DB) error {
		return tx.Update("password", hash).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update password for account %s: %w", id, err)
	}
	return nil
}

// ListAccounts returns non-deleted accounts, newest first.
func (s *service) ListAccounts(limit, offset int) ([]model.Account, error) {
	var accounts []model.Account
	result := s.db.Where("status <> ?", model.StatusDeleted).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", result.Error)
	}
	return accounts, nil
}

// likeEscaper makes LIKE wildcards in a keyword match literally.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// SearchAccounts matches keyword as a substring of username, phone or email, skipping deleted accounts.
func (s *service) SearchAccounts(keyword string, limit int) ([]model.Account, error) {
	var accounts []model.Account
	pattern := "%" + likeEscaper.Replace(keyword) + "%"
	result := s.db.Where("status <> ?", model.StatusDeleted).
		Where(s.db.Where("username LIKE ? ESCAPE '!'", pattern).
			Or("phone LIKE ? ESCAPE '!'", pattern).
			Or("email LIKE ? ESCAPE '!'", pattern)).
		Order("created_at desc").
		Limit(limit).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to search accounts: %w", result.Error)
	}
	return accounts, nil
}

// Stats counts non-deleted and active accounts and sums every call ever charged.
func (s *service) Stats() (model.Stats, error) {
	var stats model.Stats
	if err := s.db.Model(&model.Account{}).Where("status <> ?", model.StatusDeleted).Count(&stats.TotalUsers).Error; err != nil {
		return stats, fmt.Errorf("failed to count users: %w", err)
	}
	if err := s.db.Model(&model.Account{}).Where("status = ?", model.StatusActive).Count(&stats.ActiveUsers).Error; err != nil {
		return stats, fmt.Errorf("failed to count active users: %w", err)
	}
	if err := s.db.Model(&model.Account{}).Select("COALESCE(SUM(usage_used), 0)").Scan(&stats.TotalCalls).Error; err != nil {
		return stats, fmt.Errorf("failed to sum calls: %w", err)
	}
	return stats, nil
}
