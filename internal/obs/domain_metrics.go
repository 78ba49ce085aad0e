package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout session creation outcomes.
	CheckoutTotal *prometheus.CounterVec
	// CaptureTotal counts payment capture outcomes per provider.
	CaptureTotal *prometheus.CounterVec
	// CaptureMismatchTotal counts captures where the provider amount
	// disagreed with the stored session breakdown.
	CaptureMismatchTotal prometheus.Counter
	// DiscountValidationTotal counts discount code validations by result.
	DiscountValidationTotal *prometheus.CounterVec
	// UploadTotal counts print file upload outcomes.
	UploadTotal *prometheus.CounterVec
	// EmailSendTotal counts transactional mail sends by template and result.
	EmailSendTotal *prometheus.CounterVec
	// OutboxLag reports the number of unpublished domain events.
	OutboxLag prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers shop-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout session creation outcomes.",
		}, []string{"result"})
		CaptureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_capture_total",
			Help:      "Count of payment capture outcomes.",
		}, []string{"provider", "result"})
		CaptureMismatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_capture_mismatch_total",
			Help:      "Captures whose provider amount differed from the stored total.",
		})
		DiscountValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_validation_total",
			Help:      "Count of discount code validations by result.",
		}, []string{"result"})
		UploadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_total",
			Help:      "Count of print file upload outcomes.",
		}, []string{"result"})
		EmailSendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_send_total",
			Help:      "Count of transactional email sends.",
		}, []string{"template", "result"})
		OutboxLag = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_unpublished_events",
			Help:      "Number of domain events awaiting relay.",
		})

		registerOrReuse(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		registerOrReuse(reg, CaptureTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CaptureTotal = v
			}
		})
		registerOrReuse(reg, CaptureMismatchTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CaptureMismatchTotal = v
			}
		})
		registerOrReuse(reg, DiscountValidationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountValidationTotal = v
			}
		})
		registerOrReuse(reg, UploadTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				UploadTotal = v
			}
		})
		registerOrReuse(reg, EmailSendTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EmailSendTotal = v
			}
		})
		registerOrReuse(reg, OutboxLag, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				OutboxLag = v
			}
		})
	})
}

func registerOrReuse(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
