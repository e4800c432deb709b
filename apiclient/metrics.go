package apiclient

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	refresh  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budget_client",
			Name:      "requests_total",
			Help:      "Outbound API requests by method and response status.",
		}, []string{"method", "status"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budget_client",
			Name:      "token_refresh_total",
			Help:      "Silent token refresh attempts triggered by 401 responses.",
		}, []string{"result"}),
	}
	if reg != nil {
		m.requests = register(reg, m.requests)
		m.refresh = register(reg, m.refresh)
	}
	return m
}

func register(reg prometheus.Registerer, cv *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(cv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return cv
}

func (m *metrics) observeRequest(method string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, label).Inc()
}

func (m *metrics) observeRefresh(result string) {
	m.refresh.WithLabelValues(result).Inc()
}

// RequestsCounter and RefreshCounter expose the collectors for inspection in tests and
// custom exporters.
func (c *Client) RequestsCounter() *prometheus.CounterVec { return c.metrics.requests }
func (c *Client) RefreshCounter() *prometheus.CounterVec  { return c.metrics.refresh }
