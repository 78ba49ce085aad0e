package catalog

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

// AdminHandler exposes the back-office product endpoints.
type AdminHandler struct {
	Svc      *Service
	Products *store.ProductRepo
}

// Routes mounts the admin product routes. Callers wrap them in the admin
// role middleware.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Put("/products/{productID}/tiers", h.replaceTiers)
}

type productPayload struct {
	Slug           string         `json:"slug" validate:"required,max=120"`
	Name           string         `json:"name" validate:"required,max=200"`
	Description    string         `json:"description"`
	BasePrice      pricing.Money  `json:"basePrice" validate:"gt=0"`
	CompareAtPrice *pricing.Money `json:"compareAtPrice" validate:"omitempty,gt=0"`
	CalcMethod     string         `json:"calcMethod" validate:"required,oneof=per_piece per_area per_meter"`
	MinWidthMM     *int           `json:"minWidthMm" validate:"omitempty,gt=0"`
	MaxWidthMM     *int           `json:"maxWidthMm" validate:"omitempty,gt=0"`
	MinHeightMM    *int           `json:"minHeightMm" validate:"omitempty,gt=0"`
	MaxHeightMM    *int           `json:"maxHeightMm" validate:"omitempty,gt=0"`
	RequiresUpload bool           `json:"requiresUpload"`
	TrackInventory bool           `json:"trackInventory"`
	Stock          int            `json:"stock" validate:"gte=0"`
	CategoryID     *uuid.UUID     `json:"categoryId"`
	Active         bool           `json:"active"`
}

func (p productPayload) toProduct() store.Product {
	return store.Product{
		Slug:           p.Slug,
		Name:           p.Name,
		Description:    p.Description,
		BasePrice:      p.BasePrice,
		CompareAtPrice: p.CompareAtPrice,
		CalcMethod:     p.CalcMethod,
		MinWidthMM:     p.MinWidthMM,
		MaxWidthMM:     p.MaxWidthMM,
		MinHeightMM:    p.MinHeightMM,
		MaxHeightMM:    p.MaxHeightMM,
		RequiresUpload: p.RequiresUpload,
		TrackInventory: p.TrackInventory,
		Stock:          p.Stock,
		CategoryID:     p.CategoryID,
		Active:         p.Active,
	}
}

func (h *AdminHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	products, err := h.Products.List(r.Context(), r.URL.Query().Get("category"), perPage, common.Offset(page, perPage))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, toView(p))
	}
	common.JSON(w, http.StatusOK, map[string]any{"products": views})
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload productPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	created, err := h.Products.Create(r.Context(), payload.toProduct())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			common.JSONError(w, http.StatusConflict, common.CodeConflict, "slug already in use", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	h.Svc.InvalidateProduct(r.Context(), created.Slug)
	common.JSON(w, http.StatusCreated, toView(created))
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid product id", nil)
		return
	}
	var payload productPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	product := payload.toProduct()
	product.ID = id
	updated, err := h.Products.Update(r.Context(), product)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "product not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	h.Svc.InvalidateProduct(r.Context(), updated.Slug)
	common.JSON(w, http.StatusOK, toView(updated))
}

type tierPayload struct {
	MinQuantity  int           `json:"minQuantity" validate:"gt=0"`
	MaxQuantity  *int          `json:"maxQuantity" validate:"omitempty,gt=0"`
	PricePerUnit pricing.Money `json:"pricePerUnit" validate:"gt=0"`
	DiscountBps  int32         `json:"discountBps" validate:"gte=0,lte=10000"`
}

type replaceTiersPayload struct {
	Tiers []tierPayload `json:"tiers" validate:"required,dive"`
}

func (h *AdminHandler) replaceTiers(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid product id", nil)
		return
	}
	var payload replaceTiersPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}

	product, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "product not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}

	tiers := make([]pricing.Tier, 0, len(payload.Tiers))
	for _, t := range payload.Tiers {
		if t.MaxQuantity != nil && *t.MaxQuantity < t.MinQuantity {
			common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "tier max below min", nil)
			return
		}
		tiers = append(tiers, pricing.Tier{
			ProductID:    id,
			MinQuantity:  t.MinQuantity,
			MaxQuantity:  t.MaxQuantity,
			PricePerUnit: t.PricePerUnit,
			DiscountBps:  t.DiscountBps,
		})
	}
	if overlaps := pricing.OverlappingTiers(tiers); len(overlaps) > 0 {
		details := make([]string, 0, len(overlaps))
		for _, o := range overlaps {
			details = append(details, fmt.Sprintf("tiers starting at %d and %d overlap", o[0].MinQuantity, o[1].MinQuantity))
		}
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "overlapping quantity ranges", details)
		return
	}

	if err := h.Products.ReplaceTiers(r.Context(), id, tiers); err != nil {
		common.RenderError(w, err)
		return
	}
	h.Svc.InvalidateProduct(r.Context(), product.Slug)
	common.JSON(w, http.StatusOK, map[string]any{"tiers": len(tiers)})
}
