package security

import (
	"net/http"

	"github.com/folienwerk/backend-shop/internal/common"
)

// BodyLimit caps request payload sizes before handlers read them. Upload
// routes set their own, larger limit.
type BodyLimit struct {
	Max int64
}

// Middleware enforces the limit with HTTP 413.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodeValidation, "request body too large", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
