package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/folienwerk/backend-shop/internal/common"
)

// Handler serves the admin login endpoint.
type Handler struct {
	Svc *Service
}

// Routes mounts the auth routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.adminLogin)
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	token, expiresAt, err := h.Svc.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "invalid credentials", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"accessToken": token,
		"expiresAt":   expiresAt,
	})
}
