package apperr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("missing %s", "username"), http.StatusBadRequest},
		{Conflict("username already exists"), http.StatusBadRequest},
		{Unauthorized("invalid token"), http.StatusUnauthorized},
		{Forbidden("account expired"), http.StatusForbidden},
		{NotFound("account not found"), http.StatusNotFound},
		{QuotaExceeded("no calls remaining"), http.StatusTooManyRequests},
		{Upstream("reading failed", errors.New("boom")), http.StatusInternalServerError},
		{UpstreamUnavailable("not configured"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.HTTPStatus(), tc.err.Error())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("adjust quota: %w", NotFound("account not found"))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindConflict))
	assert.False(t, Is(errors.New("plain"), KindNotFound))

	cause := errors.New("deadline exceeded")
	assert.ErrorIs(t, Upstream("timed out", cause), cause)
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))

	t.Run("taxonomy error", func(t *testing.T) {
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)
		c.Request = httptest.NewRequest(http.MethodPost, "/api/reading", nil)
		Respond(c, log, QuotaExceeded("no calls remaining"))

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "no calls remaining", body["error"])
	})

	t.Run("upstream cause is logged not rendered", func(t *testing.T) {
		logs.Reset()
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)
		c.Request = httptest.NewRequest(http.MethodPost, "/api/reading", nil)
		Respond(c, log, Upstream("failed to generate reading", errors.New("provider quota: project 1234")))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "project 1234")
		assert.Contains(t, logs.String(), "project 1234")
	})

	t.Run("unknown error", func(t *testing.T) {
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)
		c.Request = httptest.NewRequest(http.MethodGet, "/api/usage", nil)
		Respond(c, log, errors.New("sql: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "connection refused")
	})
}
