// Package admin is the shared-secret protected account management surface.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/credential"
	"github.com/ubuygold/gotarot/internal/model"
	"github.com/ubuygold/gotarot/internal/quota"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 200
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// action runs one dispatched admin operation on raw JSON params.
type action func(raw json.RawMessage) (any, error)

func typed[P any](fn func(P) (any, error)) action {
	return func(raw json.RawMessage) (any, error) {
		p, err := decodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		return fn(p)
	}
}

type DispatchRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

type Handler struct {
	store   *credential.Store
	ledger  *quota.Ledger
	logger  *slog.Logger
	actions map[string]action
}

func NewHandler(store *credential.Store, ledger *quota.Ledger, logger *slog.Logger) *Handler {
	h := &Handler{
		store:  store,
		ledger: ledger,
		logger: logger.With("component", "admin"),
	}
	h.actions = map[string]action{
		"create_user":    typed(h.createUser),
		"manage_quota":   typed(h.manageQuota),
		"update_status":  typed(h.updateStatus),
		"reset_password": typed(h.resetPassword),
		"reset_usage":    typed(h.resetUsage),
		"get_user_info":  typed(h.getUserInfo),
		"list_users":     typed(h.listUsers),
		"search_users":   typed(h.searchUsers),
	}
	return h
}

// Actions lists the registered action names.
func (h *Handler) Actions() []string {
	names := make([]string, 0, len(h.actions))
	for name := range h.actions {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the named action.
func (h *Handler) Dispatch(name string, params json.RawMessage) (any, error) {
	run, ok := h.actions[name]
	if !ok {
		return nil, apperr.Validation("invalid action")
	}
	result, err := run(params)
	if err != nil {
		// A missing target account is a bad request on this surface.
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindNotFound {
			return nil, &apperr.Error{Kind: e.Kind, Message: e.Message, Status: http.StatusBadRequest, Err: e.Err}
		}
		return nil, err
	}
	h.logger.Info("Admin action completed", "action", name)
	return result, nil
}

func (h *Handler) DispatchHandler(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, h.logger, apperr.Validation("invalid request body"))
		return
	}
	result, err := h.Dispatch(strings.TrimSpace(req.Action), req.Params)
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *Handler) StatsHandler(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (h *Handler) SearchHandler(c *gin.Context) {
	result, err := h.searchUsers(searchUsersParams{Keyword: c.Query("keyword")})
	if err != nil {
		apperr.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func withRemaining(accounts []model.Account) []model.AccountInfo {
	out := make([]model.AccountInfo, 0, len(accounts))
	for i := range accounts {
		out = append(out, model.AccountInfo{Account: &accounts[i], RemainingCalls: quota.Remaining(&accounts[i])})
	}
	return out
}

func (h *Handler) createUser(p createUserParams) (any, error) {
	params := credential.CreateParams{
		Username: p.Username,
		Password: p.Password,
		Email:    p.Email,
		Phone:    p.Phone,
		AgentID:  p.AgentID,
		Name:     p.Name,
		Tier:     p.Tier,
		PlanType: p.PlanType,
		IsTest:   p.IsTest,
		ValidTo:  p.ValidTo,
	}
	if p.UsageLimit.Set {
		limit, err := p.UsageLimit.whole("usage_limit")
		if err != nil {
			return nil, err
		}
		params.UsageLimit = limit
	}
	return h.store.CreateAccount(params)
}

func (h *Handler) manageQuota(p manageQuotaParams) (any, error) {
	if !p.Amount.Set {
		return nil, apperr.Validation("amount must be a non-zero number")
	}
	return h.ledger.Adjust(strings.TrimSpace(p.UserID), quota.Kind(strings.TrimSpace(p.Type)), p.Amount.Value)
}

func (h *Handler) updateStatus(p updateStatusParams) (any, error) {
	return h.store.UpdateStatus(strings.TrimSpace(p.UserID), strings.TrimSpace(p.Status))
}

func (h *Handler) resetPassword(p resetPasswordParams) (any, error) {
	if err := h.store.ResetPassword(strings.TrimSpace(p.UserID), p.NewPassword); err != nil {
		return nil, err
	}
	return gin.H{"success": true}, nil
}

func (h *Handler) resetUsage(p userRefParams) (any, error) {
	account, err := h.findAccount(p)
	if err != nil {
		return nil, err
	}
	unlock := h.ledger.Lock(account.ID)
	defer unlock()
	if err := h.ledger.ResetUsage(account.APIToken); err != nil {
		return nil, err
	}
	return h.store.LookupByID(account.ID)
}

func (h *Handler) getUserInfo(p userRefParams) (any, error) {
	account, err := h.findAccount(p)
	if err != nil {
		return nil, err
	}
	return model.AccountInfo{Account: account, RemainingCalls: quota.Remaining(account)}, nil
}

func (h *Handler) findAccount(p userRefParams) (*model.Account, error) {
	var (
		account *model.Account
		err     error
	)
	switch {
	case strings.TrimSpace(p.UserID) != "":
		account, err = h.store.LookupByID(strings.TrimSpace(p.UserID))
	case strings.TrimSpace(p.Phone) != "":
		account, err = h.store.LookupByPhone(strings.TrimSpace(p.Phone))
	default:
		return nil, apperr.Validation("user_id or phone is required")
	}
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.NotFound("account not found")
	}
	return account, nil
}

func (h *Handler) listUsers(p listUsersParams) (any, error) {
	limit, err := p.Limit.intOr(defaultListLimit, "limit")
	if err != nil {
		return nil, err
	}
	offset, err := p.Offset.intOr(0, "offset")
	if err != nil {
		return nil, err
	}
	accounts, err := h.store.List(min(limit, maxListLimit), offset)
	if err != nil {
		return nil, err
	}
	return withRemaining(accounts), nil
}

func (h *Handler) searchUsers(p searchUsersParams) (any, error) {
	keyword := strings.TrimSpace(p.Keyword)
	if keyword == "" {
		return nil, apperr.Validation("keyword must not be empty")
	}
	limit, err := p.Limit.intOr(defaultSearchLimit, "limit")
	if err != nil {
		return nil, err
	}
	accounts, err := h.store.Search(keyword, min(limit, maxSearchLimit))
	if err != nil {
		return nil, err
	}
	return withRemaining(accounts), nil
}
