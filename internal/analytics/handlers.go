package analytics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/folienwerk/backend-shop/internal/common"
)

// AdminHandler exposes the sales statistics to the back office.
type AdminHandler struct {
	Svc *Service
	Now func() time.Time
}

func (h *AdminHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Routes mounts the statistics routes.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/sales", h.sales)
	r.Get("/top-products", h.topProducts)
}

func (h *AdminHandler) sales(w http.ResponseWriter, r *http.Request) {
	to := h.now().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid from date", nil)
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid to date", nil)
			return
		}
		to = parsed.Add(24 * time.Hour)
	}
	if !from.Before(to) {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "from must be before to", nil)
		return
	}
	rows, err := h.Svc.SalesDaily(r.Context(), from, to)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"days": rows})
}

func (h *AdminHandler) topProducts(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := h.Svc.TopProducts(r.Context(), limit)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"products": rows})
}
