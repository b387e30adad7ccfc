package credential

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ubuygold/gotarot/internal/apperr"
	"github.com/ubuygold/gotarot/internal/config"
	"github.com/ubuygold/gotarot/internal/db"
	"github.com/ubuygold/gotarot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, hasher Hasher) (*Store, db.Service) {
	t.Helper()
	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	return NewStore(service, hasher, slog.New(slog.NewTextHandler(io.Discard, nil))), service
}

func validParams(username string) CreateParams {
	return CreateParams{Username: username, Password: "secret", Email: username + "@example.com"}
}

func TestCreateAccountDefaults(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	acc, err := store.CreateAccount(CreateParams{Username: "  alice ", Password: " secret ", Email: "alice@example.com"})
	require.NoError(t, err)

	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, "alice", acc.Name)
	assert.Equal(t, model.StatusActive, acc.Status)
	assert.Equal(t, "level1", acc.Tier)
	assert.Equal(t, "level1", acc.PlanType)
	assert.Equal(t, int64(0), acc.UsageUsed)
	assert.Equal(t, int64(0), acc.UsageLimit)
	assert.Equal(t, 0.0, acc.Balance)
	assert.Nil(t, acc.Phone)
	assert.Nil(t, acc.ValidTo)
	assert.NotNil(t, acc.ValidFrom)
	assert.True(t, strings.HasPrefix(acc.APIToken, "token-alice-"))
	assert.Len(t, acc.APIToken, len("token-alice-")+8)
	assert.NotEqual(t, "secret", acc.PasswordHash)
	assert.True(t, store.VerifyPassword(acc, "secret"))
}

func TestCreateAccountValidation(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	for _, p := range []CreateParams{
		{Password: "x", Email: "e@example.com"},
		{Username: "u", Email: "e@example.com"},
		{Username: "u", Password: "x"},
		{Username: "   ", Password: "x", Email: "e@example.com"},
	} {
		_, err := store.CreateAccount(p)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "expected validation error for %+v, got %v", p, err)
	}
}

func TestCreateAccountConflicts(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	first := validParams("alice")
	first.Phone = "5550100"
	acc, err := store.CreateAccount(first)
	require.NoError(t, err)

	// Uniqueness spans deleted rows too.
	_, err = store.UpdateStatus(acc.ID, model.StatusDeleted)
	require.NoError(t, err)

	_, err = store.CreateAccount(validParams("alice"))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorContains(t, err, "username")

	dupEmail := validParams("bob")
	dupEmail.Email = "alice@example.com"
	_, err = store.CreateAccount(dupEmail)
	assert.ErrorContains(t, err, "email")

	dupPhone := validParams("carol")
	dupPhone.Phone = "5550100"
	_, err = store.CreateAccount(dupPhone)
	assert.ErrorContains(t, err, "phone")
}

func TestTokensAreUnique(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	seen := map[string]bool{}
	for _, name := range []string{"a", "b", "c", "d"} {
		acc, err := store.CreateAccount(validParams(name))
		require.NoError(t, err)
		assert.False(t, seen[acc.APIToken])
		seen[acc.APIToken] = true
	}
}

func TestCreateThenLookupByTokenRoundTrip(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	p := validParams("alice")
	p.Phone = "5550100"
	created, err := store.CreateAccount(p)
	require.NoError(t, err)

	found, err := store.LookupByToken(created.APIToken)
	require.NoError(t, err)
	require.NotNil(t, found)

	createdJSON, err := json.Marshal(created)
	require.NoError(t, err)
	var createdFields, foundFields map[string]any
	require.NoError(t, json.Unmarshal(createdJSON, &createdFields))
	foundJSON, err := json.Marshal(found)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(foundJSON, &foundFields))

	assert.NotContains(t, createdFields, "password")
	assert.NotContains(t, foundFields, "password")
	for _, key := range []string{"id", "username", "email", "phone", "api_token", "tier", "plan_type", "status", "balance", "usage_limit", "usage_used"} {
		assert.Equal(t, createdFields[key], foundFields[key], key)
	}
	assert.NotContains(t, string(foundJSON), found.PasswordHash)
}

func TestLookupAbsentIsNotAnError(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	for _, lookup := range []func(string) (*model.Account, error){
		store.LookupByID, store.LookupByUsername, store.LookupByToken, store.LookupByPhone,
	} {
		acc, err := lookup("nobody")
		assert.NoError(t, err)
		assert.Nil(t, acc)

		_, err = lookup("  ")
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	}
}

func TestVerifyPasswordModes(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	sha, _ := SHA256Hasher{}.Hash("pw")
	bc, err := BcryptHasher{Cost: 4}.Hash("pw")
	require.NoError(t, err)

	for name, stored := range map[string]string{"sha256": sha, "bcrypt": bc, "plaintext": "pw"} {
		acc := &model.Account{PasswordHash: stored}
		assert.True(t, store.VerifyPassword(acc, "pw"), name)
		assert.False(t, store.VerifyPassword(acc, "wrong"), name)
	}
	assert.False(t, store.VerifyPassword(&model.Account{PasswordHash: sha}, sha))
	assert.False(t, store.VerifyPassword(&model.Account{}, ""))
	assert.False(t, store.VerifyPassword(nil, "pw"))
}

func TestAuthenticateMigratesPlaintext(t *testing.T) {
	store, service := setupStore(t, SHA256Hasher{})
	acc, err := store.CreateAccount(validParams("legacy"))
	require.NoError(t, err)
	require.NoError(t, service.UpdatePassword(acc.ID, "plain-pw"))
	acc, _ = store.LookupByID(acc.ID)

	assert.True(t, store.Authenticate(acc, "plain-pw"))

	reloaded, _ := store.LookupByID(acc.ID)
	want, _ := SHA256Hasher{}.Hash("plain-pw")
	assert.Equal(t, want, reloaded.PasswordHash)
	assert.True(t, store.Authenticate(reloaded, "plain-pw"))
	assert.False(t, store.Authenticate(reloaded, "wrong"))

	// The stored digest itself is not a valid password and must not be rehashed.
	assert.False(t, store.Authenticate(reloaded, reloaded.PasswordHash))
	fresh, _ := store.LookupByID(acc.ID)
	assert.Equal(t, want, fresh.PasswordHash)
	assert.True(t, store.Authenticate(fresh, "plain-pw"))
}

func TestBcryptHasherStore(t *testing.T) {
	store, _ := setupStore(t, BcryptHasher{Cost: 4})
	acc, err := store.CreateAccount(validParams("alice"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(acc.PasswordHash, "$2"))
	assert.True(t, store.VerifyPassword(acc, "secret"))
}

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("sha256")
	require.NoError(t, err)
	assert.IsType(t, SHA256Hasher{}, h)
	h, err = NewHasher("bcrypt")
	require.NoError(t, err)
	assert.IsType(t, BcryptHasher{}, h)
	_, err = NewHasher("md5")
	assert.Error(t, err)
}

func TestResetPasswordAndStatus(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	acc, err := store.CreateAccount(validParams("alice"))
	require.NoError(t, err)

	require.NoError(t, store.ResetPassword(acc.ID, "fresh"))
	reloaded, _ := store.LookupByID(acc.ID)
	assert.True(t, store.VerifyPassword(reloaded, "fresh"))
	assert.False(t, store.VerifyPassword(reloaded, "secret"))

	assert.True(t, apperr.Is(store.ResetPassword(acc.ID, " "), apperr.KindValidation))
	assert.True(t, apperr.Is(store.ResetPassword("missing", "x"), apperr.KindNotFound))

	banned, err := store.UpdateStatus(acc.ID, model.StatusBanned)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBanned, banned.Status)

	_, err = store.UpdateStatus(acc.ID, "suspended")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = store.UpdateStatus("missing", model.StatusActive)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSeedDemoAccounts(t *testing.T) {
	store, _ := setupStore(t, SHA256Hasher{})
	n, err := store.SeedDemoAccounts()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	test, err := store.LookupByUsername("test")
	require.NoError(t, err)
	require.NotNil(t, test)
	assert.Equal(t, int64(50), test.UsageLimit)
	assert.True(t, test.IsTest)
	assert.True(t, store.VerifyPassword(test, "test123"))
	require.NotNil(t, test.ValidTo)
	assert.True(t, test.ValidTo.After(time.Now().Add(29*24*time.Hour)))

	pro, err := store.LookupByUsername("pro")
	require.NoError(t, err)
	require.NotNil(t, pro)
	assert.Equal(t, "monthly", pro.PlanType)
	assert.Equal(t, int64(200), pro.UsageLimit)

	n, err = store.SeedDemoAccounts()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
