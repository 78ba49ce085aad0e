package cart

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc             *Service
	TaxBps          int32
	DefaultShipping pricing.Money
	FreeAbove       pricing.Money
}

func (h *Handler) terms() ShippingTerms {
	free := h.FreeAbove
	return ShippingTerms{Cost: h.DefaultShipping, FreeAbove: &free}
}

// Routes mounts cart endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/services", h.ListServices)
	r.Post("/merge", h.Merge)
	r.Route("/{cartID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{itemID}", h.UpdateItem)
		r.Delete("/items/{itemID}", h.RemoveItem)
		r.Put("/items/{itemID}/services", h.SetItemServices)
		r.Post("/discount", h.ApplyDiscount)
		r.Delete("/discount", h.RemoveDiscount)
	})
}

// Create creates or returns a cart for the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AnonID string `json:"anonId"`
	}
	_ = common.DecodeJSON(r, &payload)

	var (
		userPtr *uuid.UUID
		anonPtr *string
	)
	if userID, ok := common.UserID(r.Context()); ok {
		userPtr = &userID
	} else {
		anonID := strings.TrimSpace(payload.AnonID)
		if anonID == "" {
			anonID = uuid.NewString()
		}
		anonPtr = &anonID
	}

	cart, err := h.Svc.EnsureCart(r.Context(), userPtr, anonPtr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := map[string]any{"cartId": cart.ID}
	if cart.AnonID != nil {
		resp["anonId"] = *cart.AnonID
	}
	if cart.DiscountCode != nil {
		resp["discountCode"] = *cart.DiscountCode
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": resp})
}

// Get returns the priced cart contents.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartID, err := uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid cart id", nil)
		return
	}
	var userPtr *uuid.UUID
	if userID, ok := common.UserID(r.Context()); ok {
		userPtr = &userID
	}
	quote, err := h.Svc.Quote(r.Context(), cartID, userPtr, h.terms(), h.TaxBps)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

type addItemPayload struct {
	ProductID  string   `json:"productId" validate:"required,uuid4"`
	Qty        int      `json:"qty" validate:"required,gt=0"`
	WidthMM    *int     `json:"widthMm" validate:"omitempty,gt=0"`
	HeightMM   *int     `json:"heightMm" validate:"omitempty,gt=0"`
	UploadID   *string  `json:"uploadId" validate:"omitempty,uuid4"`
	ServiceIDs []string `json:"serviceIds" validate:"omitempty,dive,uuid4"`
}

// AddItem adds a position to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID, err := uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid cart id", nil)
		return
	}
	var payload addItemPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid product id", nil)
		return
	}
	in := AddItemInput{
		ProductID: productID,
		Qty:       payload.Qty,
		WidthMM:   payload.WidthMM,
		HeightMM:  payload.HeightMM,
	}
	if payload.UploadID != nil {
		id, err := uuid.Parse(*payload.UploadID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid upload id", nil)
			return
		}
		in.UploadID = &id
	}
	for _, raw := range payload.ServiceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid service id", nil)
			return
		}
		in.ServiceIDs = append(in.ServiceIDs, id)
	}

	item, err := h.Svc.AddItem(r.Context(), cartID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"itemId":    item.ID,
		"qty":       item.Qty,
		"unitPrice": item.UnitPrice,
	}})
}

// UpdateItem changes an item's quantity.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID, itemID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	var payload struct {
		Qty int `json:"qty" validate:"required,gt=0"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	item, err := h.Svc.UpdateItemQty(r.Context(), cartID, itemID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"itemId":    item.ID,
		"qty":       item.Qty,
		"unitPrice": item.UnitPrice,
	}})
}

// RemoveItem deletes an item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, itemID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), cartID, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetItemServices replaces the add-on services attached to an item.
func (h *Handler) SetItemServices(w http.ResponseWriter, r *http.Request) {
	cartID, itemID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	var payload struct {
		ServiceIDs []string `json:"serviceIds" validate:"dive,uuid4"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	ids := make([]uuid.UUID, 0, len(payload.ServiceIDs))
	for _, raw := range payload.ServiceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid service id", nil)
			return
		}
		ids = append(ids, id)
	}
	if err := h.Svc.SetItemServices(r.Context(), cartID, itemID, ids); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyDiscount validates and stores a discount code on the cart.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	cartID, err := uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid cart id", nil)
		return
	}
	var payload struct {
		Code string `json:"code" validate:"required"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	var userPtr *uuid.UUID
	if userID, ok := common.UserID(r.Context()); ok {
		userPtr = &userID
	}
	rule, amount, err := h.Svc.ApplyDiscount(r.Context(), cartID, strings.TrimSpace(payload.Code), userPtr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"code":         rule.Code,
		"kind":         rule.Kind,
		"amount":       amount,
		"freeShipping": rule.FreeShipping(),
	}})
}

// RemoveDiscount clears the applied code.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	cartID, err := uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid cart id", nil)
		return
	}
	if err := h.Svc.RemoveDiscount(r.Context(), cartID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Merge folds the caller's anonymous cart into their user cart.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "sign in required", nil)
		return
	}
	var payload struct {
		AnonID string `json:"anonId" validate:"required"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	cart, err := h.Svc.Merge(r.Context(), strings.TrimSpace(payload.AnonID), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"cartId": cart.ID}})
}

// ListServices returns the add-on services offered with cart items.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Svc.Carts.ListActiveServices(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(services))
	for _, svc := range services {
		out = append(out, map[string]any{
			"id":    svc.ID,
			"name":  svc.Name,
			"price": svc.Price,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) pathIDs(w http.ResponseWriter, r *http.Request) (cartID, itemID uuid.UUID, ok bool) {
	cartID, err := uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid cart id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	itemID, err = uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid item id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return cartID, itemID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
	case errors.Is(err, ErrDimensionsOutOfRange):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "dimensions out of range", nil)
	case errors.Is(err, ErrUploadRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "print file required", nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, common.CodeConflict, "insufficient stock", nil)
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
