package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/model"
	"github.com/ubuygold/gotarot/internal/quota"

	"github.com/gin-gonic/gin"
)

// Authenticator is the part of the credential store the login handler needs.
type Authenticator interface {
	LookupByUsername(username string) (*model.Account, error)
	Authenticate(account *model.Account, candidate string) bool
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginUser is the reader profile returned at login.
type LoginUser struct {
	Username  string     `json:"username"`
	Email     *string    `json:"email"`
	PlanType  string     `json:"plan_type"`
	IsTest    bool       `json:"is_test"`
	ValidFrom *time.Time `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to"`
	Name      string     `json:"name"`
}

type LoginResponse struct {
	User  LoginUser   `json:"user"`
	Usage model.Usage `json:"usage"`
	Token string      `json:"token"`
}

// LoginHandler exchanges a username and password for the account's token.
func LoginHandler(store Authenticator, opts GateOptions, log *slog.Logger) gin.HandlerFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log = log.With("component", "auth")
	return func(c *gin.Context) {
		var req LoginRequest
		_ = c.ShouldBindJSON(&req)
		username := strings.TrimSpace(req.Username)
		if username == "" || req.Password == "" {
			apperr.Respond(c, log, apperr.Validation("username and password are required"))
			return
		}

		account, err := store.LookupByUsername(username)
		if err != nil {
			apperr.Respond(c, log, err)
			return
		}
		if account == nil || !store.Authenticate(account, req.Password) {
			apperr.Respond(c, log, apperr.Unauthorized("invalid username or password"))
			return
		}
		if opts.EnforceStatus && account.Status == model.StatusDeleted {
			apperr.Respond(c, log, apperr.Unauthorized("invalid username or password"))
			return
		}
		if err := CheckEligibility(account, now(), opts.EnforceStatus); err != nil {
			apperr.Respond(c, log, err)
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			User: LoginUser{
				Username:  account.Username,
				Email:     account.Email,
				PlanType:  account.PlanType,
				IsTest:    account.IsTest,
				ValidFrom: account.ValidFrom,
				ValidTo:   account.ValidTo,
				Name:      account.Name,
			},
			Usage: quota.UsageOf(account),
			Token: account.APIToken,
		})
	}
}
