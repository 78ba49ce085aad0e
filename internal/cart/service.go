package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

// ErrNotFound indicates the requested cart or item could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrDimensionsOutOfRange is returned when the requested print dimensions
// fall outside the product's limits.
var ErrDimensionsOutOfRange = errors.New("dimensions out of range")

// ErrUploadRequired is returned when a product needs a print file and none
// was attached.
var ErrUploadRequired = errors.New("upload required")

// ErrOutOfStock is returned when the product tracks inventory and the
// requested quantity exceeds it.
var ErrOutOfStock = errors.New("out of stock")

// Service encapsulates cart domain operations. Unit prices are resolved
// server-side from the product's quantity tiers and snapshotted onto the
// item; client-submitted prices are never read.
type Service struct {
	Pool      *pgxpool.Pool
	Carts     *store.CartRepo
	Products  *store.ProductRepo
	Discounts *store.DiscountRepo
	Users     *store.UserRepo
	Uploads   *store.UploadRepo
	TTL       time.Duration
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EnsureCart loads or creates a cart for the provided identifiers.
func (s *Service) EnsureCart(ctx context.Context, userID *uuid.UUID, anonID *string) (store.Cart, error) {
	if s == nil || s.Carts == nil {
		return store.Cart{}, errors.New("cart service not configured")
	}
	expires := s.now().Add(s.ttl())

	if userID != nil {
		cart, err := s.Carts.GetActiveByUser(ctx, *userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return s.Carts.Create(ctx, userID, nil, expires)
			}
			return store.Cart{}, err
		}
		_ = s.Carts.Touch(ctx, cart.ID, expires)
		return cart, nil
	}

	if anonID != nil && *anonID != "" {
		cart, err := s.Carts.GetActiveByAnon(ctx, *anonID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return s.Carts.Create(ctx, nil, anonID, expires)
			}
			return store.Cart{}, err
		}
		_ = s.Carts.Touch(ctx, cart.ID, expires)
		return cart, nil
	}

	return store.Cart{}, ErrInvalidInput
}

// AddItemInput describes one position to add.
type AddItemInput struct {
	ProductID  uuid.UUID
	Qty        int
	WidthMM    *int
	HeightMM   *int
	UploadID   *uuid.UUID
	ServiceIDs []uuid.UUID
}

// AddItem inserts or merges a cart item. Merging re-resolves the tier for
// the combined quantity so the price snapshot always matches the tier the
// total quantity lands in.
func (s *Service) AddItem(ctx context.Context, cartID uuid.UUID, in AddItemInput) (store.CartItem, error) {
	if s == nil || s.Carts == nil {
		return store.CartItem{}, errors.New("cart service not configured")
	}
	if in.Qty <= 0 {
		return store.CartItem{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}

	product, err := s.Products.GetByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CartItem{}, fmt.Errorf("product: %w", ErrNotFound)
		}
		return store.CartItem{}, err
	}
	if !product.Active {
		return store.CartItem{}, fmt.Errorf("product inactive: %w", ErrNotFound)
	}
	if err := checkDimensions(product, in.WidthMM, in.HeightMM); err != nil {
		return store.CartItem{}, err
	}
	if product.RequiresUpload && in.UploadID == nil {
		return store.CartItem{}, ErrUploadRequired
	}
	if in.UploadID != nil && s.Uploads != nil {
		if _, err := s.Uploads.Get(ctx, *in.UploadID); err != nil {
			return store.CartItem{}, fmt.Errorf("upload: %w", ErrNotFound)
		}
	}
	if len(in.ServiceIDs) > 0 {
		n, err := s.Carts.CountActiveServices(ctx, in.ServiceIDs)
		if err != nil {
			return store.CartItem{}, err
		}
		if n != len(in.ServiceIDs) {
			return store.CartItem{}, fmt.Errorf("unknown service: %w", ErrInvalidInput)
		}
	}

	tiers, err := s.Products.TiersForProduct(ctx, product.ID)
	if err != nil {
		return store.CartItem{}, err
	}

	expires := s.now().Add(s.ttl())
	existing, err := s.Carts.FindItemByProduct(ctx, cartID, product.ID)
	if err == nil && sameConfiguration(existing, in) {
		newQty := existing.Qty + in.Qty
		if err := checkStock(product, newQty); err != nil {
			return store.CartItem{}, err
		}
		unit := unitPriceFor(product, tiers, newQty, in.WidthMM, in.HeightMM)
		if err := s.Carts.UpdateItemQtyPrice(ctx, existing.ID, newQty, unit); err != nil {
			return store.CartItem{}, err
		}
		_ = s.Carts.Touch(ctx, cartID, expires)
		existing.Qty = newQty
		existing.UnitPrice = unit
		return existing, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.CartItem{}, err
	}

	if err := checkStock(product, in.Qty); err != nil {
		return store.CartItem{}, err
	}
	unit := unitPriceFor(product, tiers, in.Qty, in.WidthMM, in.HeightMM)
	item, err := s.Carts.CreateItem(ctx, store.CartItem{
		CartID:    cartID,
		ProductID: product.ID,
		Qty:       in.Qty,
		UnitPrice: unit,
		WidthMM:   in.WidthMM,
		HeightMM:  in.HeightMM,
		UploadID:  in.UploadID,
	})
	if err != nil {
		return store.CartItem{}, err
	}
	if len(in.ServiceIDs) > 0 {
		if err := s.Carts.SetItemServices(ctx, item.ID, in.ServiceIDs); err != nil {
			return store.CartItem{}, err
		}
	}
	_ = s.Carts.Touch(ctx, cartID, expires)
	return item, nil
}

// UpdateItemQty changes an item's quantity inside a transaction, locking
// the row and re-resolving the tier so concurrent updates cannot leave a
// stale price snapshot.
func (s *Service) UpdateItemQty(ctx context.Context, cartID, itemID uuid.UUID, qty int) (store.CartItem, error) {
	if s == nil || s.Pool == nil {
		return store.CartItem{}, errors.New("cart service not configured")
	}
	if qty <= 0 {
		return store.CartItem{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return store.CartItem{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	carts := s.Carts.WithDB(tx)
	products := s.Products.WithDB(tx)

	item, err := carts.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return store.CartItem{}, err
	}
	if item.CartID != cartID {
		return store.CartItem{}, ErrNotFound
	}
	product, err := products.GetByID(ctx, item.ProductID)
	if err != nil {
		return store.CartItem{}, err
	}
	if err := checkStock(product, qty); err != nil {
		return store.CartItem{}, err
	}
	tiers, err := products.TiersForProduct(ctx, product.ID)
	if err != nil {
		return store.CartItem{}, err
	}
	unit := unitPriceFor(product, tiers, qty, item.WidthMM, item.HeightMM)
	if err := carts.UpdateItemQtyPrice(ctx, itemID, qty, unit); err != nil {
		return store.CartItem{}, err
	}
	_ = carts.Touch(ctx, cartID, s.now().Add(s.ttl()))

	if err := tx.Commit(ctx); err != nil {
		return store.CartItem{}, fmt.Errorf("commit: %w", err)
	}
	item.Qty = qty
	item.UnitPrice = unit
	return item, nil
}

// RemoveItem deletes one position.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	if s == nil || s.Carts == nil {
		return errors.New("cart service not configured")
	}
	return s.Carts.DeleteItem(ctx, cartID, itemID)
}

// SetItemServices replaces the add-on services attached to an item.
func (s *Service) SetItemServices(ctx context.Context, cartID, itemID uuid.UUID, serviceIDs []uuid.UUID) error {
	if s == nil || s.Carts == nil {
		return errors.New("cart service not configured")
	}
	item, err := s.Carts.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.CartID != cartID {
		return ErrNotFound
	}
	if len(serviceIDs) > 0 {
		n, err := s.Carts.CountActiveServices(ctx, serviceIDs)
		if err != nil {
			return err
		}
		if n != len(serviceIDs) {
			return fmt.Errorf("unknown service: %w", ErrInvalidInput)
		}
	}
	return s.Carts.SetItemServices(ctx, itemID, serviceIDs)
}

// ApplyDiscount validates a code against the cart's current contents and
// records it on the cart. The amount is recomputed at checkout; the cart
// only remembers the code.
func (s *Service) ApplyDiscount(ctx context.Context, cartID uuid.UUID, code string, userID *uuid.UUID) (discount.Rule, pricing.Money, error) {
	if s == nil || s.Discounts == nil {
		return discount.Rule{}, 0, errors.New("cart service not configured")
	}
	rule, err := s.Discounts.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return discount.Rule{}, 0, discount.ErrInvalidOrExpired
		}
		return discount.Rule{}, 0, err
	}

	lines, subtotal, err := s.discountLines(ctx, cartID)
	if err != nil {
		return discount.Rule{}, 0, err
	}

	// Validation and the preview amount run against the subtotal after the
	// reseller discount, the same base checkout settles on.
	var used int32
	if userID != nil {
		used, err = s.Discounts.CountUsageForUser(ctx, rule.ID, *userID)
		if err != nil {
			return discount.Rule{}, 0, err
		}
		if s.Users != nil {
			if user, err := s.Users.GetByID(ctx, *userID); err == nil {
				subtotal -= pricing.ApplyBps(subtotal, user.ResellerBps)
			}
		}
	}
	if err := rule.Validate(s.now(), used, subtotal, lines); err != nil {
		return discount.Rule{}, 0, err
	}
	if err := s.Carts.SetDiscountCode(ctx, cartID, &rule.Code); err != nil {
		return discount.Rule{}, 0, err
	}
	return rule, rule.Amount(subtotal), nil
}

// RemoveDiscount clears the applied code.
func (s *Service) RemoveDiscount(ctx context.Context, cartID uuid.UUID) error {
	if s == nil || s.Carts == nil {
		return errors.New("cart service not configured")
	}
	return s.Carts.SetDiscountCode(ctx, cartID, nil)
}

// Merge moves an anonymous cart's items into the user's cart after
// sign-in. Positions for the same product configuration are combined with
// the tier re-resolved for the summed quantity.
func (s *Service) Merge(ctx context.Context, anonID string, userID uuid.UUID) (store.Cart, error) {
	if s == nil || s.Carts == nil {
		return store.Cart{}, errors.New("cart service not configured")
	}
	anonCart, err := s.Carts.GetActiveByAnon(ctx, anonID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.EnsureCart(ctx, &userID, nil)
		}
		return store.Cart{}, err
	}

	userCart, err := s.Carts.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// no user cart yet, the anonymous one simply changes owner
			if err := s.Carts.TransferToUser(ctx, anonCart.ID, userID); err != nil {
				return store.Cart{}, err
			}
			return s.Carts.GetByID(ctx, anonCart.ID)
		}
		return store.Cart{}, err
	}

	items, err := s.Carts.ListItems(ctx, anonCart.ID)
	if err != nil {
		return store.Cart{}, err
	}
	for _, it := range items {
		_, err := s.AddItem(ctx, userCart.ID, AddItemInput{
			ProductID: it.ProductID,
			Qty:       it.Qty,
			WidthMM:   it.WidthMM,
			HeightMM:  it.HeightMM,
			UploadID:  it.UploadID,
		})
		if err != nil {
			s.Logger.Warn().Err(err).Str("item_id", it.ID.String()).Msg("skip item during cart merge")
		}
	}
	if err := s.Carts.DeleteItems(ctx, anonCart.ID); err != nil {
		return store.Cart{}, err
	}
	return userCart, nil
}

func (s *Service) discountLines(ctx context.Context, cartID uuid.UUID) ([]discount.CartLine, pricing.Money, error) {
	items, err := s.Carts.ListItems(ctx, cartID)
	if err != nil {
		return nil, 0, err
	}
	var (
		lines    []discount.CartLine
		subtotal pricing.Money
	)
	for _, it := range items {
		services, err := s.Carts.ItemServicesTotal(ctx, it.ID)
		if err != nil {
			return nil, 0, err
		}
		product, err := s.Products.GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, 0, err
		}
		lineTotal := pricing.Money(int64(it.Qty))*it.UnitPrice + services
		lines = append(lines, discount.CartLine{
			ProductID:  it.ProductID,
			CategoryID: product.CategoryID,
			Subtotal:   lineTotal,
		})
		subtotal += lineTotal
	}
	return lines, subtotal, nil
}

func sameConfiguration(item store.CartItem, in AddItemInput) bool {
	return intPtrEqual(item.WidthMM, in.WidthMM) &&
		intPtrEqual(item.HeightMM, in.HeightMM) &&
		uuidPtrEqual(item.UploadID, in.UploadID) &&
		len(in.ServiceIDs) == 0
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func checkStock(p store.Product, qty int) error {
	if p.TrackInventory && qty > p.Stock {
		return ErrOutOfStock
	}
	return nil
}

func checkDimensions(p store.Product, widthMM, heightMM *int) error {
	if p.CalcMethod == store.CalcPerPiece {
		return nil
	}
	if widthMM == nil || heightMM == nil {
		return fmt.Errorf("width and height required: %w", ErrInvalidInput)
	}
	if p.MinWidthMM != nil && *widthMM < *p.MinWidthMM {
		return ErrDimensionsOutOfRange
	}
	if p.MaxWidthMM != nil && *widthMM > *p.MaxWidthMM {
		return ErrDimensionsOutOfRange
	}
	if p.MinHeightMM != nil && *heightMM < *p.MinHeightMM {
		return ErrDimensionsOutOfRange
	}
	if p.MaxHeightMM != nil && *heightMM > *p.MaxHeightMM {
		return ErrDimensionsOutOfRange
	}
	return nil
}

// unitPriceFor resolves the per-unit price: the quantity tier price (or the
// base price when no tier matches) scaled by the print geometry for
// dimensional products.
func unitPriceFor(p store.Product, tiers []pricing.Tier, qty int, widthMM, heightMM *int) pricing.Money {
	base := p.BasePrice
	if tier := pricing.ResolveTier(tiers, qty); tier != nil {
		base = tier.PricePerUnit
	}
	switch p.CalcMethod {
	case store.CalcPerArea:
		if widthMM == nil || heightMM == nil {
			return base
		}
		// base is the m² price; dimensions are millimetres
		areaMM2 := int64(*widthMM) * int64(*heightMM)
		return pricing.Money((int64(base)*areaMM2 + 500_000) / 1_000_000)
	case store.CalcPerMeter:
		if heightMM == nil {
			return base
		}
		// base is the running-metre price; height carries the length
		return pricing.Money((int64(base)*int64(*heightMM) + 500) / 1_000)
	default:
		return base
	}
}
