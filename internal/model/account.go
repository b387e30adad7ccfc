package model

import "time"

// Account statuses. Deleted accounts are kept but hidden from listings.
const (
	StatusActive  = "active"
	StatusBanned  = "banned"
	StatusDeleted = "deleted"
)

// ValidStatus reports whether s is one of the known account statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusBanned, StatusDeleted:
		return true
	}
	return false
}

// Account is a registered reader with credentials, quota and status.
// PasswordHash is never serialized.
type Account struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username     string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"column:password;type:varchar(255);not null" json:"-"`
	Email        *string    `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone        *string    `gorm:"type:varchar(64);uniqueIndex" json:"phone"`
	Name         string     `gorm:"type:varchar(255)" json:"name"`
	AgentID      *string    `gorm:"type:varchar(64)" json:"agent_id"`
	APIToken     string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"api_token"`
	Tier         string     `gorm:"type:varchar(50);not null" json:"tier"`
	PlanType     string     `gorm:"type:varchar(50);not null" json:"plan_type"`
	IsTest       bool       `gorm:"not null" json:"is_test"`
	Status       string     `gorm:"type:varchar(20);index;not null" json:"status"`
	Balance      float64    `gorm:"not null" json:"balance"`
	UsageLimit   int64      `gorm:"not null" json:"usage_limit"`
	UsageUsed    int64      `gorm:"not null" json:"usage_used"`
	ValidFrom    *time.Time `json:"valid_from"`
	ValidTo      *time.Time `json:"valid_to"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Expired reports whether the account's eligibility window ended strictly before now.
func (a *Account) Expired(now time.Time) bool {
	return a.ValidTo != nil && a.ValidTo.Before(now)
}

// Usage is the quota snapshot returned to readers.
type Usage struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// AccountInfo is the admin view of an account: the account plus its remaining calls.
type AccountInfo struct {
	*Account
	RemainingCalls int64 `json:"remaining_calls"`
}

// Stats aggregates account counters for the admin dashboard.
type Stats struct {
	TotalUsers  int64 `json:"totalUsers"`
	ActiveUsers int64 `json:"activeUsers"`
	TotalCalls  int64 `json:"totalCalls"`
}
