package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

// ErrNotFound indicates the product or category does not exist.
var ErrNotFound = errors.New("product not found")

// ProductView is the public representation of a catalog item.
type ProductView struct {
	ID             uuid.UUID      `json:"id"`
	Slug           string         `json:"slug"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	BasePrice      pricing.Money  `json:"basePrice"`
	CompareAtPrice *pricing.Money `json:"compareAtPrice,omitempty"`
	CalcMethod     string         `json:"calcMethod"`
	MinWidthMM     *int           `json:"minWidthMm,omitempty"`
	MaxWidthMM     *int           `json:"maxWidthMm,omitempty"`
	MinHeightMM    *int           `json:"minHeightMm,omitempty"`
	MaxHeightMM    *int           `json:"maxHeightMm,omitempty"`
	RequiresUpload bool           `json:"requiresUpload"`
	InStock        bool           `json:"inStock"`
	CategoryID     *uuid.UUID     `json:"categoryId,omitempty"`
	Tiers          []TierView     `json:"tiers,omitempty"`
}

// TierView is one row of the public quantity price table.
type TierView struct {
	MinQuantity  int           `json:"minQuantity"`
	MaxQuantity  *int          `json:"maxQuantity,omitempty"`
	PricePerUnit pricing.Money `json:"pricePerUnit"`
	DiscountBps  int32         `json:"discountBps"`
}

// Service reads the public catalog, caching list and detail payloads.
type Service struct {
	Products *store.ProductRepo
	Cache    *Cache
	Logger   zerolog.Logger
}

func toView(p store.Product) ProductView {
	return ProductView{
		ID:             p.ID,
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
		InStock:        !p.TrackInventory || p.Stock > 0,
		CategoryID:     p.CategoryID,
	}
}

func toTierViews(tiers []pricing.Tier) []TierView {
	out := make([]TierView, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, TierView{
			MinQuantity:  t.MinQuantity,
			MaxQuantity:  t.MaxQuantity,
			PricePerUnit: t.PricePerUnit,
			DiscountBps:  t.DiscountBps,
		})
	}
	return out
}

// ListResult is a cached product listing page.
type ListResult struct {
	Products []ProductView `json:"products"`
	Total    int64         `json:"total"`
}

// List returns active products, optionally filtered by category slug.
func (s *Service) List(ctx context.Context, categorySlug string, page, perPage int) (ListResult, error) {
	key := fmt.Sprintf("shop:catalog:list:%s:%d:%d", categorySlug, page, perPage)
	var cached ListResult
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache read")
	} else if hit {
		return cached, nil
	}

	offset := (page - 1) * perPage
	products, err := s.Products.List(ctx, categorySlug, perPage, offset)
	if err != nil {
		return ListResult{}, err
	}
	total, err := s.Products.Count(ctx, categorySlug)
	if err != nil {
		return ListResult{}, err
	}

	result := ListResult{Products: make([]ProductView, 0, len(products)), Total: total}
	for _, p := range products {
		result.Products = append(result.Products, toView(p))
	}
	if err := s.Cache.SetJSON(ctx, key, result); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache write")
	}
	return result, nil
}

// GetBySlug returns one product with its quantity price table.
func (s *Service) GetBySlug(ctx context.Context, slug string) (ProductView, error) {
	key := "shop:catalog:product:" + slug
	var cached ProductView
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache read")
	} else if hit {
		return cached, nil
	}

	product, err := s.Products.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProductView{}, ErrNotFound
		}
		return ProductView{}, err
	}
	if !product.Active {
		return ProductView{}, ErrNotFound
	}
	tiers, err := s.Products.TiersForProduct(ctx, product.ID)
	if err != nil {
		return ProductView{}, err
	}

	view := toView(product)
	view.Tiers = toTierViews(tiers)
	if err := s.Cache.SetJSON(ctx, key, view); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache write")
	}
	return view, nil
}

// Categories lists all categories.
func (s *Service) Categories(ctx context.Context) ([]store.Category, error) {
	key := "shop:catalog:categories"
	var cached []store.Category
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	categories, err := s.Products.Categories(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, key, categories)
	return categories, nil
}

// InvalidateProduct drops the cache entries touched by a product change.
func (s *Service) InvalidateProduct(ctx context.Context, slug string) {
	if err := s.Cache.Invalidate(ctx, "shop:catalog:list:*", "shop:catalog:product:"+slug); err != nil {
		s.Logger.Warn().Err(err).Msg("catalog cache invalidate")
	}
}
