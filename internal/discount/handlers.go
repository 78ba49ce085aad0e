package discount

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/obs"
	"github.com/folienwerk/backend-shop/internal/pricing"
)

// Repo is the persistence surface the handlers need. Satisfied by the
// discount repository in the store package.
type Repo interface {
	GetByCode(ctx context.Context, code string) (Rule, error)
	List(ctx context.Context, limit, offset int) ([]Rule, error)
	Create(ctx context.Context, rule Rule) (Rule, error)
	Update(ctx context.Context, rule Rule) (Rule, error)
	CountUsageForUser(ctx context.Context, discountID, userID uuid.UUID) (int32, error)
}

// Handler exposes discount code validation and back-office CRUD.
type Handler struct {
	Repo Repo
	Now  func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Routes mounts the public validation endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/validate", h.Validate)
}

// AdminRoutes mounts the back-office CRUD endpoints.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{discountID}", h.Update)
}

type validatePayload struct {
	Code     string `json:"code" validate:"required"`
	Subtotal int64  `json:"subtotal" validate:"gte=0"`
}

// Validate checks a code against a subtotal without a cart. The cart-bound
// validation with line-level scope checks happens on the cart endpoints;
// this one answers "is this code generally usable right now".
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var payload validatePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}

	rule, err := h.Repo.GetByCode(r.Context(), strings.ToUpper(strings.TrimSpace(payload.Code)))
	if err != nil {
		h.countValidation("unknown")
		common.JSONError(w, http.StatusUnprocessableEntity, "DISCOUNT_REJECTED", ErrInvalidOrExpired.Error(), nil)
		return
	}

	var used int32
	if userID, ok := common.UserID(r.Context()); ok {
		used, _ = h.Repo.CountUsageForUser(r.Context(), rule.ID, userID)
	}

	subtotal := pricing.Money(payload.Subtotal)
	if err := rule.Validate(h.now(), used, subtotal, nil); err != nil {
		h.countValidation("rejected")
		common.JSONError(w, http.StatusUnprocessableEntity, "DISCOUNT_REJECTED", err.Error(), nil)
		return
	}

	h.countValidation("ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"code":         rule.Code,
		"kind":         rule.Kind,
		"amount":       rule.Amount(subtotal),
		"freeShipping": rule.FreeShipping(),
	}})
}

type rulePayload struct {
	Code        string   `json:"code" validate:"required,min=3,max=40"`
	Kind        string   `json:"kind" validate:"required,oneof=percentage fixed_amount free_shipping"`
	ValueCents  int64    `json:"valueCents" validate:"gte=0"`
	PercentBps  int32    `json:"percentBps" validate:"gte=0,lte=10000"`
	MinPurchase *int64   `json:"minPurchaseCents"`
	MaxDiscount *int64   `json:"maxDiscountCents"`
	UsageLimit  *int32   `json:"usageLimit"`
	PerUser     *int32   `json:"perUserLimit"`
	AppliesTo   string   `json:"appliesTo" validate:"required,oneof=all specific_products specific_categories"`
	ProductIDs  []string `json:"productIds" validate:"omitempty,dive,uuid4"`
	CategoryIDs []string `json:"categoryIds" validate:"omitempty,dive,uuid4"`
	StartsAt    *string  `json:"startsAt"`
	EndsAt      *string  `json:"endsAt"`
	Active      bool     `json:"active"`
}

func (p rulePayload) toRule() (Rule, error) {
	rule := Rule{
		Code:       strings.ToUpper(strings.TrimSpace(p.Code)),
		Kind:       p.Kind,
		ValueCents: pricing.Money(p.ValueCents),
		PercentBps: p.PercentBps,
		UsageLimit:   p.UsageLimit,
		PerUserLimit: p.PerUser,
		AppliesTo:    p.AppliesTo,
		Active:       p.Active,
	}
	if p.MinPurchase != nil {
		v := pricing.Money(*p.MinPurchase)
		rule.MinPurchase = &v
	}
	if p.MaxDiscount != nil {
		v := pricing.Money(*p.MaxDiscount)
		rule.MaxDiscount = &v
	}
	for _, raw := range p.ProductIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Rule{}, err
		}
		rule.ProductIDs = append(rule.ProductIDs, id)
	}
	for _, raw := range p.CategoryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Rule{}, err
		}
		rule.CategoryIDs = append(rule.CategoryIDs, id)
	}
	if p.StartsAt != nil {
		ts, err := time.Parse(time.RFC3339, *p.StartsAt)
		if err != nil {
			return Rule{}, err
		}
		rule.StartsAt = ts
	}
	if p.EndsAt != nil {
		ts, err := time.Parse(time.RFC3339, *p.EndsAt)
		if err != nil {
			return Rule{}, err
		}
		rule.EndsAt = &ts
	}
	return rule, nil
}

// List returns a page of discount rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	rules, err := h.Repo.List(r.Context(), perPage, common.Offset(page, perPage))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rules})
}

// Create inserts a new discount rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	rule, err := payload.toRule()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
		return
	}
	created, err := h.Repo.Create(r.Context(), rule)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update replaces a discount rule.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "discountID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid discount id", nil)
		return
	}
	var payload rulePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	rule, err := payload.toRule()
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
		return
	}
	rule.ID = id
	updated, err := h.Repo.Update(r.Context(), rule)
	if err != nil {
		if isNotFound(err) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "discount not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// the repository wraps missing rows in a plain "not found" error; matching
// on the message avoids an import cycle with the store package
func isNotFound(err error) bool {
	return err != nil && strings.HasSuffix(err.Error(), "not found")
}

func (h *Handler) countValidation(result string) {
	if obs.DiscountValidationTotal != nil {
		obs.DiscountValidationTotal.WithLabelValues(result).Inc()
	}
}
