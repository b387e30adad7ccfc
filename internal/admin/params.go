package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ubuygold/gotarot/internal/apperr"
)

// number accepts a JSON number or a numeric string.
type number struct {
	Value float64
	Set   bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", s)
		}
		n.Value, n.Set = v, true
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Set = true
	return nil
}

// whole returns the value as an int64. Fractions and values outside the int64 range fail.
func (n number) whole(field string) (int64, error) {
	if n.Value != math.Trunc(n.Value) || math.Abs(n.Value) >= math.MaxInt64 {
		return 0, apperr.Validation("%s must be a whole number", field)
	}
	return int64(n.Value), nil
}

// intOr returns the value as an int, or def when the value is absent, zero or negative.
func (n number) intOr(def int, field string) (int, error) {
	if !n.Set {
		return def, nil
	}
	v, err := n.whole(field)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return def, nil
	}
	return int(min(v, math.MaxInt32)), nil
}

type createUserParams struct {
	Username   string     `json:"username"`
	Password   string     `json:"password"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	AgentID    string     `json:"agent_id"`
	Name       string     `json:"name"`
	Tier       string     `json:"tier"`
	PlanType   string     `json:"plan_type"`
	IsTest     bool       `json:"is_test"`
	UsageLimit number     `json:"usage_limit"`
	ValidTo    *time.Time `json:"valid_to"`
}

type manageQuotaParams struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Amount number `json:"amount"`
}

type updateStatusParams struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type resetPasswordParams struct {
	UserID      string `json:"user_id"`
	NewPassword string `json:"new_password"`
}

type userRefParams struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
}

type listUsersParams struct {
	Limit  number `json:"limit"`
	Offset number `json:"offset"`
}

type searchUsersParams struct {
	Keyword string `json:"keyword"`
	Limit   number `json:"limit"`
}

func decodeParams[P any](raw json.RawMessage) (P, error) {
	var p P
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, apperr.Validation("invalid params: %v", err)
	}
	return p, nil
}
