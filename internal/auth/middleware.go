package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
)

// AnonCookieName carries the anonymous cart identifier for guests.
const AnonCookieName = "shop_anon_id"

// RoleAdmin marks back-office accounts.
const RoleAdmin = "admin"

// Middleware ties token verification into the request pipeline.
type Middleware struct {
	Tokens *Tokens
	// Secure controls the cookie flag, off for local development.
	Secure bool
}

func (m *Middleware) claimsFromRequest(r *http.Request) (Claims, bool) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return Claims{}, false
	}
	claims, err := m.Tokens.Verify(strings.TrimSpace(raw))
	if err != nil {
		return Claims{}, false
	}
	return claims, true
}

// Authenticate attaches the caller's identity to the context when a valid
// bearer token is present. Requests without a token pass through as
// guests; handlers that need a user enforce it themselves.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := m.claimsFromRequest(r); ok {
			ctx := common.WithUserID(r.Context(), claims.UserID)
			ctx = common.WithRoles(ctx, claims.Roles)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a verified user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects callers without the given role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := common.UserID(r.Context()); !ok {
				common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
				return
			}
			if !common.HasRole(r.Context(), role) {
				common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AnonCookie ensures every guest carries a stable anonymous id so carts
// and uploads survive until sign-in.
func (m *Middleware) AnonCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var anonID string
		if c, err := r.Cookie(AnonCookieName); err == nil && c.Value != "" {
			anonID = c.Value
		} else {
			anonID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     AnonCookieName,
				Value:    anonID,
				Path:     "/",
				MaxAge:   int((90 * 24 * time.Hour).Seconds()),
				HttpOnly: true,
				Secure:   m.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(common.WithAnonID(r.Context(), anonID)))
	})
}
