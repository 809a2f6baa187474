package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "budgetbot_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once
	registry     *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	applyTotal      *prometheus.CounterVec
	applyLatency    *prometheus.HistogramVec
	accruedPeriods  prometheus.Counter
	droppedMessages *prometheus.CounterVec
	balanceGauge    prometheus.Gauge
	allowanceGauge  prometheus.Gauge
)

// Init creates and registers the collectors. Helpers are no-ops until Init
// has been called.
func Init() *prometheus.Registry {
	registerOnce.Do(func() {
		registry = prometheus.NewRegistry()

		commandsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Total chat commands handled by kind",
			},
			[]string{"kind"},
		)
		applyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_apply_total",
				Help: "Total ledger applies by result",
			},
			[]string{"result"},
		)
		applyLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ledger_apply_latency_seconds",
				Help:    "Ledger apply latency including the durable write",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		accruedPeriods = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "accrued_periods_total",
				Help: "Total allowance periods credited",
			},
		)
		droppedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dropped_messages_total",
				Help: "Inbound messages ignored by reason",
			},
			[]string{"reason"},
		)
		balanceGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "balance",
			Help: "Current pot balance",
		})
		allowanceGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "allowance_amount",
			Help: "Allowance credited every period",
		})

		registry.MustRegister(
			commandsTotal,
			applyTotal,
			applyLatency,
			accruedPeriods,
			droppedMessages,
			balanceGauge,
			allowanceGauge,
		)
	})
	return registry
}

// IncCommand counts a handled command.
func IncCommand(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if commandsTotal != nil {
		commandsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveApply records ledger apply duration and result.
func ObserveApply(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if applyTotal != nil {
		applyTotal.WithLabelValues(result).Inc()
	}
	if applyLatency != nil {
		applyLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddAccruedPeriods increments the accrual counter by count.
func AddAccruedPeriods(count int) {
	if count <= 0 {
		return
	}
	if accruedPeriods != nil {
		accruedPeriods.Add(float64(count))
	}
}

// IncDropped counts an ignored inbound message.
func IncDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if droppedMessages != nil {
		droppedMessages.WithLabelValues(reason).Inc()
	}
}

// SetBalance sets the balance gauge.
func SetBalance(v float64) {
	if balanceGauge != nil {
		balanceGauge.Set(v)
	}
}

// SetAllowance sets the allowance gauge.
func SetAllowance(v float64) {
	if allowanceGauge != nil {
		allowanceGauge.Set(v)
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
