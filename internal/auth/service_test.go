package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/ratelimit"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/testing/dbtest"
)

func newTestService(t *testing.T) (*Service, *db.Manager) {
	t.Helper()
	m := dbtest.Open(t)
	svc := NewService(NewRepository(m), ratelimit.NewMemory(ratelimit.Policy{MaxAttempts: 3, Window: time.Minute}), dbtest.Logger())
	svc.SetHashCost(bcrypt.MinCost)
	return svc, m
}

func TestParseHash(t *testing.T) {
	legacy := LegacyHash("secret")
	require.Equal(t, SchemeSHA256Legacy, ParseHash(legacy.Value).Scheme)
	require.Equal(t, SchemeSHA256Legacy, ParseHash("  "+legacy.Value+" ").Scheme)
	require.True(t, ParseHash(legacy.Value).Verify("secret"))
	require.False(t, ParseHash(legacy.Value).Verify("Secret"))
	require.True(t, ParseHash(legacy.Value).NeedsUpgrade())

	modern, err := HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	parsed := ParseHash(modern.Value)
	require.Equal(t, SchemeBcrypt, parsed.Scheme)
	require.True(t, parsed.Verify("secret"))
	require.False(t, parsed.NeedsUpgrade())

	unknown := ParseHash("plaintext")
	require.Equal(t, SchemeUnknown, unknown.Scheme)
	require.False(t, unknown.Verify("plaintext"))
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserInput{Username: " Cara ", Password: "till-1234", Role: shared.RoleStaff})
	require.NoError(t, err)
	require.Equal(t, "cara", user.Username)
	require.Equal(t, "cara", user.Name)
	require.Equal(t, SchemeBcrypt, user.Password.Scheme)

	_, err = svc.CreateUser(ctx, CreateUserInput{Username: "CARA", Password: "other-pass"})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.CreateUser(ctx, CreateUserInput{Username: "x", Password: "pw", Role: "owner"})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.Authenticate(ctx, "CARA", "till-1234")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.Equal(t, shared.RoleStaff, got.Actor().Role)

	_, err = svc.Authenticate(ctx, "cara", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "till-1234")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestLegacyPasswordIsUpgradedOnLogin(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()
	dbtest.Exec(t, m, db.Insert("users", "id", "name", "username", "password", "role", "phone", "active", "created"),
		"old1", "Owner", "owner", LegacyHash("hunter2").Value, shared.RoleAdmin, "", 1, "2020-01-01T00:00:00")

	user, err := svc.Authenticate(ctx, "owner", "hunter2")
	require.NoError(t, err)
	require.Equal(t, SchemeBcrypt, user.Password.Scheme)

	stored := dbtest.Rows(t, m, "SELECT password FROM users WHERE id = ?", "old1")
	require.Equal(t, SchemeBcrypt, ParseHash(stored[0].String("password")).Scheme)

	_, err = svc.Authenticate(ctx, "owner", "hunter2")
	require.NoError(t, err)
}

func TestInactiveUserCannotLogIn(t *testing.T) {
	svc, m := newTestService(t)
	dbtest.Exec(t, m, db.Insert("users", "id", "name", "username", "password", "role", "phone", "active", "created"),
		"gone", "Gone", "gone", LegacyHash("pw").Value, shared.RoleStaff, "", 0, "2020-01-01T00:00:00")
	_, err := svc.Authenticate(context.Background(), "gone", "pw")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRepeatedFailuresLockOut(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, CreateUserInput{Username: "cara", Password: "till-1234"})
	require.NoError(t, err)

	for range 3 {
		_, err = svc.Authenticate(ctx, "cara", "nope")
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	}
	_, err = svc.Authenticate(ctx, "cara", "till-1234")
	require.ErrorIs(t, err, shared.ErrRateLimited)
	var lockout *LockoutError
	require.ErrorAs(t, err, &lockout)
	require.True(t, lockout.Wait > 0)
}

func TestBasicAuthMiddleware(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateUser(context.Background(), CreateUserInput{Username: "mina", Password: "pass-word", Role: shared.RoleManager})
	require.NoError(t, err)

	var seen shared.Actor
	h := svc.BasicAuth("tillpoint")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="tillpoint"`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("Mina", "pass-word")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "mina", seen.Username)
	require.Equal(t, shared.RoleManager, seen.Role)

	for range 3 {
		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("mina", "bad")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("mina", "pass-word")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}
