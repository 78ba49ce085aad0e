package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/events"
	"github.com/folienwerk/backend-shop/internal/obs"
	"github.com/folienwerk/backend-shop/internal/payment"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/settings"
	"github.com/folienwerk/backend-shop/internal/store"
)

// ErrEmptyCart is returned when checkout starts on a cart without items.
var ErrEmptyCart = errors.New("cart is empty")

// ErrNotFound indicates the session or cart could not be located.
var ErrNotFound = errors.New("not found")

// ErrSessionNotOpen is returned when capturing a session that already
// settled or expired.
var ErrSessionNotOpen = errors.New("checkout session not open")

// ErrSessionExpired is returned when the session deadline passed before capture.
var ErrSessionExpired = errors.New("checkout session expired")

// ErrCaptureFailed is returned when the provider declined the capture.
var ErrCaptureFailed = errors.New("payment capture failed")

// Service drives the checkout flow: totals are recomputed server-side when
// the session opens, snapshotted, and trusted verbatim at capture time.
type Service struct {
	Pool      *pgxpool.Pool
	Carts     *store.CartRepo
	Products  *store.ProductRepo
	Discounts *store.DiscountRepo
	Users     *store.UserRepo
	Orders    *store.OrderRepo
	Sessions  *store.SessionRepo
	Outbox    *store.EventRepo
	Bus       *events.Bus
	Provider  payment.Provider
	// Settings overrides the static tax and shipping fields when present.
	Settings *settings.Service

	Currency        string
	TaxBps          int32
	DefaultShipping pricing.Money
	FreeAbove       pricing.Money
	SessionTTL      time.Duration
	PublicBaseURL   string

	Now    func() time.Time
	Logger zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) sessionTTL() time.Duration {
	if s == nil || s.SessionTTL <= 0 {
		return 30 * time.Minute
	}
	return s.SessionTTL
}

// Session is the client-facing view of a new checkout session.
type Session struct {
	SessionID       uuid.UUID         `json:"sessionId"`
	ProviderOrderID string            `json:"providerOrderId"`
	ApproveLink     string            `json:"approveLink"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	Breakdown       pricing.Breakdown `json:"breakdown"`
}

// totals is the result of one full server-side price recomputation.
type totals struct {
	breakdown pricing.Breakdown
	items     []store.OrderItem
	rule      *discount.Rule
}

// CreateSession recomputes the cart from scratch, opens a provider order
// for the resulting total and snapshots everything into a session row.
func (s *Service) CreateSession(ctx context.Context, userID, cartID, addressID uuid.UUID) (Session, error) {
	if s == nil || s.Provider == nil {
		return Session{}, errors.New("checkout service not configured")
	}
	cart, err := s.Carts.GetByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if cart.UserID == nil || *cart.UserID != userID {
		return Session{}, ErrNotFound
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	address, err := s.Users.GetAddressForUser(ctx, addressID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, fmt.Errorf("address: %w", ErrNotFound)
		}
		return Session{}, err
	}
	addressJSON, err := json.Marshal(address)
	if err != nil {
		return Session{}, err
	}

	tot, err := s.computeTotals(ctx, cart, user)
	if err != nil {
		s.countCheckout("rejected")
		return Session{}, err
	}

	reference := cart.ID.String()
	order, err := s.Provider.CreateOrder(ctx, payment.CreateOrderRequest{
		Reference: reference,
		Amount:    tot.breakdown.Total,
		Currency:  s.Currency,
		ReturnURL: s.PublicBaseURL + "/checkout/return",
		CancelURL: s.PublicBaseURL + "/checkout/cancel",
	})
	if err != nil {
		s.countCheckout("provider_error")
		return Session{}, fmt.Errorf("create provider order: %w", err)
	}

	expires := s.now().Add(s.sessionTTL())
	session, err := s.Sessions.Create(ctx, store.CheckoutSession{
		UserID:           userID,
		CartID:           cart.ID,
		ProviderOrderID:  order.ID,
		Currency:         s.Currency,
		Subtotal:         tot.breakdown.Subtotal,
		UserDiscount:     tot.breakdown.UserDiscount,
		CampaignDiscount: tot.breakdown.CampaignDiscount,
		ShippingCost:     tot.breakdown.ShippingCost,
		Tax:              tot.breakdown.Tax,
		Total:            tot.breakdown.Total,
		DiscountCode:     cart.DiscountCode,
		ShippingAddress:  addressJSON,
		ExpiresAt:        expires,
	})
	if err != nil {
		s.countCheckout("error")
		s.alertOrphanedProviderOrder(ctx, order.ID, cart.ID, err)
		return Session{}, err
	}

	s.countCheckout("ok")
	return Session{
		SessionID:       session.ID,
		ProviderOrderID: order.ID,
		ApproveLink:     order.ApproveLink,
		ExpiresAt:       expires,
		Breakdown:       tot.breakdown,
	}, nil
}

// alertOrphanedProviderOrder handles the integrity gap where the provider
// order was opened but the session snapshot failed to persist. The money
// side exists without a local record, so the back office must reconcile it
// manually.
func (s *Service) alertOrphanedProviderOrder(ctx context.Context, providerOrderID string, cartID uuid.UUID, cause error) {
	s.Logger.Error().Err(cause).
		Str("provider_order_id", providerOrderID).
		Str("cart_id", cartID.String()).
		Msg("provider order created but session snapshot not persisted")
	_ = s.Bus.NotifyOnly(ctx, events.TopicPaymentMismatch, map[string]any{
		"providerOrderId": providerOrderID,
		"cartId":          cartID.String(),
		"message":         "Provider-Bestellung ohne gespeicherte Checkout-Session, bitte manuell prüfen.",
	})
}

// Capture settles an approved provider order. The stored session breakdown
// is authoritative; the provider result is only checked against it, never
// substituted for it. Safe to retry: a second capture of the same provider
// order returns the order created by the first.
func (s *Service) Capture(ctx context.Context, userID uuid.UUID, providerOrderID string) (store.Order, error) {
	if s == nil || s.Pool == nil {
		return store.Order{}, errors.New("checkout service not configured")
	}

	// existing order means a retried capture
	if existing, err := s.Orders.GetByProviderOrderID(ctx, providerOrderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Order{}, err
	}

	session, err := s.Sessions.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Order{}, ErrNotFound
		}
		return store.Order{}, err
	}
	if session.UserID != userID {
		return store.Order{}, ErrNotFound
	}
	if session.Status != store.SessionOpen {
		return store.Order{}, ErrSessionNotOpen
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.Bus.Emit(ctx, events.TopicPaymentExpired, map[string]any{"providerOrderId": providerOrderID})
		return store.Order{}, ErrSessionExpired
	}

	result, err := s.Provider.CaptureOrder(ctx, providerOrderID)
	if err != nil {
		s.countCapture("provider_error")
		return store.Order{}, fmt.Errorf("capture provider order: %w", err)
	}
	if !result.Completed() {
		s.countCapture("declined")
		_ = s.Bus.Emit(ctx, events.TopicPaymentFailed, map[string]any{
			"providerOrderId": providerOrderID,
			"status":          result.Status,
		})
		return store.Order{}, ErrCaptureFailed
	}

	order, mismatch, err := s.finalize(ctx, session, result)
	if err != nil {
		s.countCapture("error")
		return store.Order{}, err
	}
	s.countCapture("ok")

	user, uerr := s.Users.GetByID(ctx, session.UserID)
	email := ""
	if uerr == nil {
		email = user.Email
	}
	_ = s.Bus.NotifyOnly(ctx, events.TopicOrderPaid, map[string]any{
		"orderId": order.ID.String(),
		"email":   email,
		"total":   fmt.Sprintf("%d.%02d %s", order.Total/100, order.Total%100, order.Currency),
	})
	if mismatch {
		_ = s.Bus.NotifyOnly(ctx, events.TopicPaymentMismatch, map[string]any{
			"orderId":         order.ID.String(),
			"providerOrderId": providerOrderID,
			"expected":        int64(session.Total),
			"captured":        int64(result.Amount),
		})
	}
	return order, nil
}

// finalize runs the settlement transaction: lock the session, persist the
// order and its positions, settle the discount, adjust stock, clear the
// cart and write outbox events.
func (s *Service) finalize(ctx context.Context, session store.CheckoutSession, result payment.CaptureResult) (store.Order, bool, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.Order{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sessions := s.Sessions.WithDB(tx)
	orders := s.Orders.WithDB(tx)
	carts := s.Carts.WithDB(tx)
	products := s.Products.WithDB(tx)
	discounts := s.Discounts.WithDB(tx)
	outbox := s.Outbox.WithDB(tx)

	locked, err := sessions.GetByProviderOrderIDForUpdate(ctx, session.ProviderOrderID)
	if err != nil {
		return store.Order{}, false, err
	}
	if locked.Status != store.SessionOpen {
		return store.Order{}, false, ErrSessionNotOpen
	}

	mismatch := result.Amount != locked.Total
	if mismatch {
		if obs.CaptureMismatchTotal != nil {
			obs.CaptureMismatchTotal.Inc()
		}
		s.Logger.Error().
			Str("provider_order_id", locked.ProviderOrderID).
			Int64("expected", int64(locked.Total)).
			Int64("captured", int64(result.Amount)).
			Msg("capture amount mismatch")
	}

	providerOrderID := locked.ProviderOrderID
	order, err := orders.Create(ctx, store.Order{
		UserID:           locked.UserID,
		Status:           store.OrderPaid,
		Currency:         locked.Currency,
		Subtotal:         locked.Subtotal,
		UserDiscount:     locked.UserDiscount,
		CampaignDiscount: locked.CampaignDiscount,
		ShippingCost:     locked.ShippingCost,
		Tax:              locked.Tax,
		Total:            locked.Total,
		DiscountCode:     locked.DiscountCode,
		ProviderOrderID:  &providerOrderID,
		ShippingAddress:  locked.ShippingAddress,
	})
	if err != nil {
		return store.Order{}, false, err
	}

	items, err := carts.ListItems(ctx, locked.CartID)
	if err != nil {
		return store.Order{}, false, err
	}
	for _, it := range items {
		product, err := products.GetByID(ctx, it.ProductID)
		if err != nil {
			return store.Order{}, false, err
		}
		services, err := carts.ItemServicesTotal(ctx, it.ID)
		if err != nil {
			return store.Order{}, false, err
		}
		if err := orders.CreateItem(ctx, store.OrderItem{
			OrderID:       order.ID,
			ProductID:     it.ProductID,
			Name:          product.Name,
			Slug:          product.Slug,
			Qty:           it.Qty,
			UnitPrice:     it.UnitPrice,
			ServicesTotal: services,
			UploadID:      it.UploadID,
		}); err != nil {
			return store.Order{}, false, err
		}
		if product.TrackInventory {
			if err := products.DecrementStock(ctx, it.ProductID, it.Qty); err != nil {
				return store.Order{}, false, err
			}
		}
	}

	if locked.DiscountCode != nil {
		if err := s.settleDiscount(ctx, discounts, outbox, *locked.DiscountCode, locked, order); err != nil {
			return store.Order{}, false, err
		}
	}

	if err := carts.DeleteItems(ctx, locked.CartID); err != nil {
		return store.Order{}, false, err
	}
	if err := carts.SetDiscountCode(ctx, locked.CartID, nil); err != nil {
		return store.Order{}, false, err
	}
	if err := sessions.MarkCaptured(ctx, locked.ID); err != nil {
		return store.Order{}, false, err
	}

	if err := outbox.Append(ctx, events.TopicOrderPaid, map[string]any{
		"orderId": order.ID.String(),
		"userId":  order.UserID.String(),
		"total":   int64(order.Total),
	}); err != nil {
		return store.Order{}, false, err
	}
	if mismatch {
		if err := outbox.Append(ctx, events.TopicPaymentMismatch, map[string]any{
			"orderId":  order.ID.String(),
			"expected": int64(locked.Total),
			"captured": int64(result.Amount),
		}); err != nil {
			return store.Order{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Order{}, false, fmt.Errorf("commit: %w", err)
	}
	return order, mismatch, nil
}

// settleDiscount records usage exactly once per order and bumps the global
// counter under a row lock.
func (s *Service) settleDiscount(ctx context.Context, discounts *store.DiscountRepo, outbox *store.EventRepo, code string, session store.CheckoutSession, order store.Order) error {
	rule, err := discounts.GetByCodeForUpdate(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// code deleted between session and capture; the stored amounts stand
			s.Logger.Warn().Str("code", code).Msg("discount vanished before settlement")
			return nil
		}
		return err
	}
	already, err := discounts.HasUsageForOrder(ctx, rule.ID, order.ID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	userID := session.UserID
	if err := discounts.RecordUsage(ctx, rule.ID, &userID, order.ID, session.CampaignDiscount); err != nil {
		return err
	}
	return outbox.Append(ctx, events.TopicDiscountRedeemed, map[string]any{
		"code":    rule.Code,
		"orderId": order.ID.String(),
		"amount":  int64(session.CampaignDiscount),
	})
}

// computeTotals reprices the cart exactly the way the cart preview does,
// then revalidates the discount code against the fresh subtotal.
func (s *Service) computeTotals(ctx context.Context, cart store.Cart, user store.User) (totals, error) {
	items, err := s.Carts.ListItems(ctx, cart.ID)
	if err != nil {
		return totals{}, err
	}
	if len(items) == 0 {
		return totals{}, ErrEmptyCart
	}

	taxBps := s.TaxBps
	shippingCost := s.DefaultShipping
	freeAbove := s.FreeAbove
	if s.Settings != nil {
		current := s.Settings.Get(ctx)
		taxBps = current.TaxRateBps
		shippingCost = current.DefaultShippingCents
		freeAbove = 0
		if current.FreeShippingAbove != nil {
			freeAbove = *current.FreeShippingAbove
		}
	}

	terms := struct {
		cost      pricing.Money
		freeAbove *pricing.Money
	}{cost: shippingCost}
	if freeAbove > 0 {
		free := freeAbove
		terms.freeAbove = &free
	}
	if profile, err := s.Users.GetShippingProfileForUser(ctx, user.ID); err == nil {
		terms.cost = profile.Cost
		terms.freeAbove = profile.FreeThreshold
	}

	var (
		lines    []pricing.Line
		dcLines  []discount.CartLine
		subtotal pricing.Money
		out      totals
	)
	for _, it := range items {
		product, err := s.Products.GetByID(ctx, it.ProductID)
		if err != nil {
			return totals{}, err
		}
		services, err := s.Carts.ItemServicesTotal(ctx, it.ID)
		if err != nil {
			return totals{}, err
		}
		lineTotal := pricing.Money(int64(it.Qty))*it.UnitPrice + services
		lines = append(lines, pricing.Line{Qty: it.Qty, UnitPrice: it.UnitPrice, ServicesTotal: services})
		dcLines = append(dcLines, discount.CartLine{ProductID: it.ProductID, CategoryID: product.CategoryID, Subtotal: lineTotal})
		subtotal += lineTotal
		out.items = append(out.items, store.OrderItem{
			ProductID:     it.ProductID,
			Name:          product.Name,
			Slug:          product.Slug,
			Qty:           it.Qty,
			UnitPrice:     it.UnitPrice,
			ServicesTotal: services,
			UploadID:      it.UploadID,
		})
	}

	var (
		campaignAmount pricing.Money
		freeShipping   bool
	)
	if cart.DiscountCode != nil {
		rule, err := s.Discounts.GetByCode(ctx, *cart.DiscountCode)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return totals{}, discount.ErrInvalidOrExpired
			}
			return totals{}, err
		}
		used, err := s.Discounts.CountUsageForUser(ctx, rule.ID, user.ID)
		if err != nil {
			return totals{}, err
		}
		afterUser := subtotal - pricing.ApplyBps(subtotal, user.ResellerBps)
		if err := rule.Validate(s.now(), used, afterUser, dcLines); err != nil {
			return totals{}, err
		}
		campaignAmount = rule.Amount(afterUser)
		freeShipping = rule.FreeShipping()
		out.rule = &rule
	}

	out.breakdown = pricing.ComputeBreakdown(pricing.BreakdownInput{
		Lines:             lines,
		UserDiscountBps:   user.ResellerBps,
		CampaignDiscount:  campaignAmount,
		FreeShipping:      freeShipping,
		ShippingCost:      terms.cost,
		FreeShippingAbove: terms.freeAbove,
		TaxBps:            taxBps,
	})
	return out, nil
}

func (s *Service) countCheckout(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countCapture(result string) {
	if obs.CaptureTotal != nil && s.Provider != nil {
		obs.CaptureTotal.WithLabelValues(s.Provider.Name(), result).Inc()
	}
}
