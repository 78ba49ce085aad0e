package settings

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/folienwerk/backend-shop/internal/common"
)

// AdminHandler exposes the settings endpoints for the back office.
type AdminHandler struct {
	Svc *Service
}

// Routes mounts the admin settings routes.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Put("/", h.update)
}

func (h *AdminHandler) get(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, h.Svc.Get(r.Context()))
}

func (h *AdminHandler) update(w http.ResponseWriter, r *http.Request) {
	var payload Settings
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := h.Svc.Update(r.Context(), payload); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, payload)
}
