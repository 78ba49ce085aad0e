package events

// Topic constants for domain events emitted by the shop.
const (
	TopicOrderCreated     = "order.created"
	TopicOrderPaid        = "order.paid"
	TopicOrderInProd      = "order.in_production"
	TopicOrderShipped     = "order.shipped"
	TopicOrderCanceled    = "order.canceled"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentExpired   = "payment.expired"
	TopicPaymentMismatch  = "payment.amount_mismatch"
	TopicDiscountRedeemed = "discount.redeemed"
	TopicUploadOrphaned   = "upload.orphaned"
)

// DefaultTopics returns the canonical list of topics notifiers subscribe to.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderInProd,
		TopicOrderShipped,
		TopicOrderCanceled,
		TopicPaymentFailed,
		TopicPaymentExpired,
		TopicPaymentMismatch,
		TopicDiscountRedeemed,
		TopicUploadOrphaned,
	}
}
