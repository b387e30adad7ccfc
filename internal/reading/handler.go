package reading

import (
	"net/http"
	"time"

	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/auth"
	"github.com/ubuygold/gotarot/internal/quota"

	"github.com/gin-gonic/gin"
)

type UsageResponse struct {
	Limit     int64      `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
	Plan      string     `json:"plan"`
	IsTest    bool       `json:"is_test"`
	ValidTo   *time.Time `json:"valid_to"`
}

// UsageHandler reports the caller's quota.
func (m *Meter) UsageHandler(c *gin.Context) {
	account, ok := auth.AccountFrom(c)
	if !ok {
		apperr.Respond(c, m.logger, apperr.Unauthorized("access token is required"))
		return
	}
	c.JSON(http.StatusOK, UsageResponse{
		Limit:     account.UsageLimit,
		Used:      account.UsageUsed,
		Remaining: quota.Remaining(account),
		Plan:      account.PlanType,
		IsTest:    account.IsTest,
		ValidTo:   account.ValidTo,
	})
}

// ReadingHandler interprets one card.
func (m *Meter) ReadingHandler(c *gin.Context) {
	m.serve(c, func() (string, string, error) {
		var req SingleRequest
		if err := c.ShouldBindJSON(&req); err != nil || !req.validate() {
			return "", "", apperr.Validation("incomplete parameters")
		}
		return singlePrompt(req), fallbackText(*req.Language), nil
	})
}

// FullReadingHandler interprets a whole spread.
func (m *Meter) FullReadingHandler(c *gin.Context) {
	m.serve(c, func() (string, string, error) {
		var req SpreadRequest
		if err := c.ShouldBindJSON(&req); err != nil || !req.validate() {
			return "", "", apperr.Validation("incomplete parameters")
		}
		return spreadPrompt(req), fallbackText(req.Language), nil
	})
}

// SetupRoutes registers the reader endpoints. gate must be the token middleware.
func SetupRoutes(group *gin.RouterGroup, meter *Meter, gate gin.HandlerFunc) {
	group.GET("/usage", gate, meter.UsageHandler)
	group.POST("/reading", gate, meter.ReadingHandler)
	group.POST("/full-reading", gate, meter.FullReadingHandler)
}
