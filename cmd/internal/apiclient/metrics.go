package apiclient

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes recorded in docqa_client_refresh_total.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshReused  = "reused"
	// RefreshSuperseded marks a flight whose result was dropped because a
	// login or logout replaced the credentials while it ran.
	RefreshSuperseded = "superseded"
)

// Metrics holds the client-side collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	refreshes      *prometheus.CounterVec
	refreshWaiters prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests sent to the document QA service by status class.",
		}, []string{"method", "path", "class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Round-trip latency of requests to the document QA service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "client",
			Name:      "refresh_total",
			Help:      "Token refresh flights by outcome.",
		}, []string{"result"}),
		refreshWaiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "client",
			Name:      "refresh_waiters_total",
			Help:      "Callers that received the result of a refresh started by another caller.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.requests, err = register(reg, m.requests)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	m.refreshes, err = register(reg, m.refreshes)
	if err != nil {
		return nil, err
	}
	m.refreshWaiters, err = register(reg, m.refreshWaiters)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, statusClass(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) observeWaiter() {
	if m == nil {
		return
	}
	m.refreshWaiters.Inc()
}

// statusClass maps 0 (transport failure) to "error" and anything else to "Nxx".
func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
