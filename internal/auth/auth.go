package auth

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	// TokenHeader is the preferred carrier for reader tokens.
	TokenHeader = "X-API-Token"
	// AdminSecretHeader carries the shared admin secret.
	AdminSecretHeader = "X-Admin-Secret"

	accountContextKey = "auth.account"
	tokenContextKey   = "auth.token"

	maxTokenBodyBytes = 2 << 20
)

// AccountResolver looks up an account by its bearer token, returning nil, nil when absent.
type AccountResolver interface {
	LookupByToken(token string) (*model.Account, error)
}

// GateOptions tunes the token gate.
type GateOptions struct {
	// EnforceStatus rejects banned and deleted accounts with 403.
	EnforceStatus bool
	Now           func() time.Time
}

// ExtractToken returns the reader token, checking the X-API-Token header,
// then the Authorization header, then a "token" field of a JSON body.
// The body is restored for downstream handlers.
func ExtractToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(TokenHeader)); token != "" {
		return token
	}
	if authHeader := strings.TrimSpace(c.GetHeader("Authorization")); authHeader != "" {
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
			return strings.TrimSpace(authHeader[7:])
		}
		return authHeader
	}
	if c.Request.Body == nil || c.Request.Method == http.MethodGet {
		return ""
	}
	original := c.Request.Body
	bodyBytes, err := io.ReadAll(io.LimitReader(original, maxTokenBodyBytes))
	// Anything past the peek limit stays unread in original.
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(bodyBytes), original), original}
	if err != nil || len(bodyBytes) == 0 {
		return ""
	}
	var peek struct {
		Token string `json:"token"`
	}
	if json.Unmarshal(bodyBytes, &peek) != nil {
		return ""
	}
	return strings.TrimSpace(peek.Token)
}

// CheckEligibility rejects accounts whose validity window has ended and,
// when enforced, accounts that are not active.
func CheckEligibility(account *model.Account, now time.Time, enforceStatus bool) error {
	if account.Expired(now) {
		return apperr.Forbidden("account has expired")
	}
	if enforceStatus && account.Status != model.StatusActive {
		return apperr.Forbidden("account is " + account.Status)
	}
	return nil
}

// TokenMiddleware resolves the bearer token to an account and stores both in the context.
func TokenMiddleware(resolver AccountResolver, opts GateOptions, log *slog.Logger) gin.HandlerFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log = log.With("component", "auth")
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			apperr.Respond(c, log, apperr.Unauthorized("access token is required"))
			return
		}

		account, err := resolver.LookupByToken(token)
		if err != nil {
			apperr.Respond(c, log, err)
			return
		}
		if account == nil {
			apperr.Respond(c, log, apperr.Unauthorized("invalid token or account does not exist"))
			return
		}

		if err := CheckEligibility(account, now(), opts.EnforceStatus); err != nil {
			apperr.Respond(c, log, err)
			return
		}

		c.Set(accountContextKey, account)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// AccountFrom returns the account attached by TokenMiddleware.
func AccountFrom(c *gin.Context) (*model.Account, bool) {
	v, ok := c.Get(accountContextKey)
	if !ok {
		return nil, false
	}
	account, ok := v.(*model.Account)
	return account, ok
}

// TokenFrom returns the raw token attached by TokenMiddleware.
func TokenFrom(c *gin.Context) string {
	return c.GetString(tokenContextKey)
}

// AdminAuthMiddleware checks the shared admin secret. An empty configured secret rejects every request.
func AdminAuthMiddleware(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader(AdminSecretHeader)
		if adminSecret == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(adminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
