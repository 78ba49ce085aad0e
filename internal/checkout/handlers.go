package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/payment"
)

// Handler exposes checkout over HTTP. Both endpoints require a signed-in user.
type Handler struct {
	Svc *Service
}

// Routes mounts checkout endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Post("/capture", h.Capture)
}

type createPayload struct {
	CartID    string `json:"cartId" validate:"required,uuid4"`
	AddressID string `json:"addressId" validate:"required,uuid4"`
}

// Create opens a checkout session and returns the provider approval link.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "sign in required", nil)
		return
	}
	var payload createPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	cartID, err := uuid.Parse(payload.CartID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid cart id", nil)
		return
	}
	addressID, err := uuid.Parse(payload.AddressID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid address id", nil)
		return
	}

	session, err := h.Svc.CreateSession(r.Context(), userID, cartID, addressID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": session})
}

// Capture settles an approved provider order and returns the created order.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "sign in required", nil)
		return
	}
	var payload struct {
		ProviderOrderID string `json:"providerOrderId" validate:"required"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}

	order, err := h.Svc.Capture(r.Context(), userID, strings.TrimSpace(payload.ProviderOrderID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"orderId": order.ID,
		"status":  order.Status,
		"total":   order.Total,
	}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "not found", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "cart is empty", nil)
	case errors.Is(err, ErrSessionExpired):
		common.JSONError(w, http.StatusConflict, "SESSION_EXPIRED", "checkout session expired", nil)
	case errors.Is(err, ErrSessionNotOpen):
		common.JSONError(w, http.StatusConflict, common.CodeConflict, "checkout session not open", nil)
	case errors.Is(err, ErrCaptureFailed):
		common.JSONError(w, http.StatusPaymentRequired, "CAPTURE_FAILED", "payment was not completed", nil)
	case errors.Is(err, payment.ErrProviderRejected):
		common.JSONError(w, http.StatusBadGateway, "PROVIDER_ERROR", "payment provider rejected the request", nil)
	case errors.Is(err, discount.ErrInvalidOrExpired),
		errors.Is(err, discount.ErrUsageLimitReached),
		errors.Is(err, discount.ErrUserLimitReached),
		errors.Is(err, discount.ErrNoEligibleProducts),
		errors.Is(err, discount.ErrBelowMinimum):
		common.JSONError(w, http.StatusUnprocessableEntity, "DISCOUNT_REJECTED", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "internal error", nil)
	}
}
