package governor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pocket"

// Metrics is the Prometheus view of the engine. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	memoryBytes     prometheus.Gauge
	ceilingBytes    prometheus.Gauge
	models          prometheus.Gauge
	contexts        prometheus.Gauge
	evictions       *prometheus.CounterVec
	tensorsLoaded   *prometheus.CounterVec
	forwardPasses   prometheus.Counter
	tokensGenerated prometheus.Counter
	recoveries      *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "usage_bytes",
			Help:      "Bytes attributed to loaded models and live contexts",
		}),
		ceilingBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "ceiling_bytes",
			Help:      "Memory ceiling enforced by the governor",
		}),
		models: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_loaded",
			Help:      "Number of loaded models",
		}),
		contexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contexts_live",
			Help:      "Number of live inference contexts",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "evictions_total",
			Help:      "Objects evicted by the governor",
		}, []string{"kind", "reason"}),
		tensorsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tensors_loaded_total",
			Help:      "Tensors placed in model arenas by value source",
		}, []string{"source"}),
		forwardPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_passes_total",
			Help:      "Forward passes run",
		}),
		tokensGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_generated_total",
			Help:      "Tokens sampled across all contexts",
		}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_panics_total",
			Help:      "Panics recovered inside engine operations",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.memoryBytes, m.ceilingBytes, m.models, m.contexts,
			m.evictions, m.tensorsLoaded, m.forwardPasses, m.tokensGenerated, m.recoveries,
		)
	}
	return m
}

// Observe publishes the current totals.
func (m *Metrics) Observe(usage, ceiling int64, models, contexts int) {
	if m == nil {
		return
	}
	m.memoryBytes.Set(float64(usage))
	m.ceilingBytes.Set(float64(ceiling))
	m.models.Set(float64(models))
	m.contexts.Set(float64(contexts))
}

func (m *Metrics) Evicted(kind, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.WithLabelValues(kind, reason).Add(float64(n))
}

func (m *Metrics) TensorLoaded(source string) {
	if m == nil {
		return
	}
	m.tensorsLoaded.WithLabelValues(source).Inc()
}

func (m *Metrics) ForwardPasses(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.forwardPasses.Add(float64(n))
}

func (m *Metrics) TokensGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensGenerated.Add(float64(n))
}

func (m *Metrics) Recovered(op string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(op).Inc()
}
