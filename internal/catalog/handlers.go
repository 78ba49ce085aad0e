package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/folienwerk/backend-shop/internal/common"
)

// Handler serves the public catalog endpoints.
type Handler struct {
	Svc *Service
}

// Routes mounts the public catalog routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{slug}", h.getProduct)
	r.Get("/categories", h.listCategories)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 24)
	result, err := h.Svc.List(r.Context(), r.URL.Query().Get("category"), page, perPage)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"products": result.Products,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: result.Total,
		},
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.Svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "product not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, product)
}

// CategoryView is the public representation of a category.
type CategoryView struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Svc.Categories(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	views := make([]CategoryView, 0, len(categories))
	for _, c := range categories {
		views = append(views, CategoryView{ID: c.ID.String(), Slug: c.Slug, Name: c.Name})
	}
	common.JSON(w, http.StatusOK, map[string]any{"categories": views})
}
