package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/store"
)

// AdminHandler manages customer accounts from the back office.
type AdminHandler struct {
	Users *store.UserRepo
}

// Routes mounts the admin user routes.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Put("/{userID}/reseller", h.setResellerDiscount)
}

type resellerPayload struct {
	DiscountBps int32 `json:"discountBps" validate:"gte=0,lte=10000"`
}

func (h *AdminHandler) setResellerDiscount(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid user id", nil)
		return
	}
	var payload resellerPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := h.Users.SetResellerBps(r.Context(), userID, payload.DiscountBps); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "user not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"discountBps": payload.DiscountBps})
}
