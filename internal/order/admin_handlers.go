package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/store"
)

// AdminHandler exposes the back-office order endpoints.
type AdminHandler struct {
	Svc *Service
}

// Routes mounts the admin order routes. Callers wrap them in the admin
// role middleware.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Patch("/{orderID}/status", h.updateStatus)
}

func (h *AdminHandler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	orders, err := h.Svc.Orders.List(r.Context(), r.URL.Query().Get("status"), perPage, common.Offset(page, perPage))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	total, err := h.Svc.Orders.Count(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	views := make([]View, 0, len(orders))
	for _, o := range orders {
		views = append(views, toView(o))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"orders": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: total,
		},
	})
}

func (h *AdminHandler) get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid order id", nil)
		return
	}
	o, err := h.Svc.Orders.GetByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	items, err := h.Svc.Orders.ListItems(r.Context(), o.ID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	view := toView(o)
	view.Items = toItemViews(items)
	common.JSON(w, http.StatusOK, view)
}

type statusPayload struct {
	Status string `json:"status" validate:"required,oneof=IN_PRODUCTION SHIPPED CANCELED"`
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid order id", nil)
		return
	}
	var payload statusPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	view, err := h.Svc.Transition(r.Context(), orderID, payload.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
		case errors.Is(err, ErrInvalidTransition):
			common.JSONError(w, http.StatusConflict, common.CodeConflict, err.Error(), nil)
		default:
			common.RenderError(w, err)
		}
		return
	}
	common.JSON(w, http.StatusOK, view)
}
