package agentruntime

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentcore/platform/pkg/agenterrors"
)

// metrics tracks per-runtime request/error counts, exposed for a caller to
// register against its own prometheus.Registerer (spec §4.10's operational
// surface has no dedicated metrics endpoint, but spec §6.1's SkillMetadata
// "custom key-value properties" and Health.Metrics both anticipate
// numeric instrumentation; this is the runtime-level counterpart).
type metrics struct {
	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "runtime",
			Name:      "requests_total",
			Help:      "Requests routed by the Agent Runtime, by destination kind.",
		}, []string{"destination"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "runtime",
			Name:      "errors_total",
			Help:      "Requests that failed, by error kind.",
		}, []string{"kind"}),
	}
}

// Register adds this Runtime's metrics to reg, so an embedder can expose
// them on its own /metrics endpoint.
func (r *Runtime) Register(reg prometheus.Registerer) error {
	if err := reg.Register(r.metrics.requestsTotal); err != nil {
		return err
	}
	return reg.Register(r.metrics.errorsTotal)
}

func (m *metrics) observe(destination string, err error) {
	m.requestsTotal.WithLabelValues(destination).Inc()
	if err == nil {
		return
	}
	kind, ok := agenterrors.KindOf(err)
	if !ok {
		kind = agenterrors.KindUnreachable
	}
	m.errorsTotal.WithLabelValues(string(kind)).Inc()
}
