package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func noop() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestHeadersMiddleware(t *testing.T) {
	h := Headers{Enable: true}
	rec := httptest.NewRecorder()
	h.Middleware(noop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestHeadersDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	Headers{}.Middleware(noop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rec.Header().Get("X-Content-Type-Options"))
}

func TestHSTSOnlyOverTLS(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}

	rec := httptest.NewRecorder()
	h.Middleware(noop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "https://shop.example/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.Middleware(noop()).ServeHTTP(rec, req)
	value := rec.Header().Get("Strict-Transport-Security")
	require.Contains(t, value, "max-age=31536000")
	require.Contains(t, value, "includeSubDomains")
}

func TestBodyLimitRejectsDeclaredOversize(t *testing.T) {
	limit := BodyLimit{Max: 16}
	body := strings.NewReader(strings.Repeat("x", 64))
	req := httptest.NewRequest(http.MethodPost, "/", body)

	rec := httptest.NewRecorder()
	limit.Middleware(noop()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBodyLimitPassesSmallBody(t *testing.T) {
	limit := BodyLimit{Max: 64}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok"))

	rec := httptest.NewRecorder()
	limit.Middleware(noop()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
