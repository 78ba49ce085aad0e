package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/events"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/store"
)

// Service errors.
var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ItemView is one order position as returned to clients.
type ItemView struct {
	ProductID     uuid.UUID     `json:"productId"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	Qty           int           `json:"qty"`
	UnitPrice     pricing.Money `json:"unitPrice"`
	ServicesTotal pricing.Money `json:"servicesTotal"`
	UploadID      *uuid.UUID    `json:"uploadId,omitempty"`
}

// View is the client representation of an order.
type View struct {
	ID               uuid.UUID       `json:"id"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Subtotal         pricing.Money   `json:"subtotal"`
	UserDiscount     pricing.Money   `json:"userDiscount"`
	CampaignDiscount pricing.Money   `json:"campaignDiscount"`
	ShippingCost     pricing.Money   `json:"shippingCost"`
	Tax              pricing.Money   `json:"tax"`
	Total            pricing.Money   `json:"total"`
	DiscountCode     *string         `json:"discountCode,omitempty"`
	ShippingAddress  json.RawMessage `json:"shippingAddress,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	Items            []ItemView      `json:"items,omitempty"`
}

func toView(o store.Order) View {
	return View{
		ID:               o.ID,
		Status:           o.Status,
		Currency:         o.Currency,
		Subtotal:         o.Subtotal,
		UserDiscount:     o.UserDiscount,
		CampaignDiscount: o.CampaignDiscount,
		ShippingCost:     o.ShippingCost,
		Tax:              o.Tax,
		Total:            o.Total,
		DiscountCode:     o.DiscountCode,
		ShippingAddress:  o.ShippingAddress,
		CreatedAt:        o.CreatedAt,
	}
}

func toItemViews(items []store.OrderItem) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, ItemView{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Slug:          it.Slug,
			Qty:           it.Qty,
			UnitPrice:     it.UnitPrice,
			ServicesTotal: it.ServicesTotal,
			UploadID:      it.UploadID,
		})
	}
	return out
}

// Service serves order history and the back-office status lifecycle.
type Service struct {
	Orders *store.OrderRepo
	Users  *store.UserRepo
	Bus    *events.Bus
	Logger zerolog.Logger
}

// ListForUser returns a page of the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, page, perPage int) ([]View, int64, error) {
	orders, err := s.Orders.ListForUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Orders.CountForUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	views := make([]View, 0, len(orders))
	for _, o := range orders {
		views = append(views, toView(o))
	}
	return views, total, nil
}

// GetForUser loads one order with its items, enforcing ownership.
func (s *Service) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (View, error) {
	o, err := s.Orders.GetForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, err
	}
	items, err := s.Orders.ListItems(ctx, o.ID)
	if err != nil {
		return View{}, err
	}
	view := toView(o)
	view.Items = toItemViews(items)
	return view, nil
}

// CancelForUser lets a customer cancel an order that has not entered
// production yet.
func (s *Service) CancelForUser(ctx context.Context, orderID, userID uuid.UUID) (View, error) {
	o, err := s.Orders.GetForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, err
	}
	if o.Status != store.OrderPendingPayment && o.Status != store.OrderPaid {
		return View{}, fmt.Errorf("%s to %s: %w", o.Status, store.OrderCanceled, ErrInvalidTransition)
	}
	return s.Transition(ctx, orderID, store.OrderCanceled)
}

// allowedTransitions maps each status to the statuses the back office may
// move it to. Payment transitions happen through checkout, never here.
var allowedTransitions = map[string][]string{
	store.OrderPendingPayment: {store.OrderCanceled},
	store.OrderPaid:           {store.OrderInProduction, store.OrderCanceled},
	store.OrderInProduction:   {store.OrderShipped, store.OrderCanceled},
}

func transitionAllowed(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func topicForStatus(status string) string {
	switch status {
	case store.OrderInProduction:
		return events.TopicOrderInProd
	case store.OrderShipped:
		return events.TopicOrderShipped
	case store.OrderCanceled:
		return events.TopicOrderCanceled
	default:
		return ""
	}
}

// Transition moves an order to the next lifecycle status and emits the
// matching event so the customer gets notified.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, status string) (View, error) {
	o, err := s.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, err
	}
	if !transitionAllowed(o.Status, status) {
		return View{}, fmt.Errorf("%s to %s: %w", o.Status, status, ErrInvalidTransition)
	}
	if err := s.Orders.UpdateStatus(ctx, orderID, status); err != nil {
		return View{}, err
	}
	o.Status = status

	if topic := topicForStatus(status); topic != "" && s.Bus != nil {
		payload := map[string]any{
			"orderId": o.ID,
			"status":  status,
			"total":   fmt.Sprintf("%d.%02d %s", o.Total/100, o.Total%100, o.Currency),
		}
		if user, err := s.Users.GetByID(ctx, o.UserID); err == nil {
			payload["email"] = user.Email
		} else {
			s.Logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("lookup order user")
		}
		if err := s.Bus.Emit(ctx, topic, payload); err != nil {
			s.Logger.Error().Err(err).Str("topic", topic).Msg("emit order event")
		}
	}
	return toView(o), nil
}
