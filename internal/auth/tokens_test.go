package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/folienwerk/backend-shop/internal/common"
)

func testTokens(now time.Time) *Tokens {
	return &Tokens{
		Secret: []byte("test-secret"),
		Issuer: "backend-shop",
		TTL:    15 * time.Minute,
		Now:    func() time.Time { return now },
	}
}

func TestSignAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := testTokens(now)
	userID := uuid.New()

	raw, expiresAt, err := tokens.Sign(userID, []string{RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, now.Add(15*time.Minute), expiresAt)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, []string{RoleAdmin}, claims.Roles)
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := testTokens(now)

	raw, _, err := tokens.Sign(uuid.New(), nil)
	require.NoError(t, err)

	tokens.Now = func() time.Time { return now.Add(16 * time.Minute) }
	_, err = tokens.Verify(raw)
	require.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	raw, _, err := testTokens(now).Sign(uuid.New(), nil)
	require.NoError(t, err)

	other := testTokens(now)
	other.Secret = []byte("other-secret")
	_, err = other.Verify(raw)
	require.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	now := time.Now()
	built, err := jwt.NewBuilder().
		Subject(uuid.NewString()).
		Issuer("someone-else").
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	_, err = testTokens(now).Verify(string(signed))
	require.Error(t, err)
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	now := time.Now()
	built, err := jwt.NewBuilder().
		Subject(uuid.NewString()).
		Issuer("backend-shop").
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS384, []byte("test-secret")))
	require.NoError(t, err)

	_, err = testTokens(now).Verify(string(signed))
	require.Error(t, err)
}

func TestAuthenticateMiddleware(t *testing.T) {
	now := time.Now()
	tokens := testTokens(now)
	mw := &Middleware{Tokens: tokens}
	userID := uuid.New()

	raw, _, err := tokens.Sign(userID, []string{RoleAdmin})
	require.NoError(t, err)

	var gotUser uuid.UUID
	var gotAdmin bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		gotAdmin = common.HasRole(r.Context(), RoleAdmin)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	mw.Authenticate(next).ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, userID, gotUser)
	require.True(t, gotAdmin)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// No user at all.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// User without the role.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(common.WithUserID(req.Context(), uuid.New()))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Admin passes.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := common.WithUserID(req.Context(), uuid.New())
	ctx = common.WithRoles(ctx, []string{RoleAdmin})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAnonCookie(t *testing.T) {
	mw := &Middleware{}

	var gotAnon string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAnon, _ = common.AnonID(r.Context())
	})

	// First visit mints a cookie.
	rec := httptest.NewRecorder()
	mw.AnonCookie(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, gotAnon)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, AnonCookieName, cookies[0].Name)
	require.Equal(t, gotAnon, cookies[0].Value)

	// Subsequent visits reuse the existing id.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "existing-anon"})
	rec = httptest.NewRecorder()
	mw.AnonCookie(next).ServeHTTP(rec, req)
	require.Equal(t, "existing-anon", gotAnon)
	require.Empty(t, rec.Result().Cookies())
}
