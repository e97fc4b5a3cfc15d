package comms

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	collectiveSubmitted *prometheus.CounterVec
	collectiveFailed    *prometheus.CounterVec
	requestPosted       *prometheus.CounterVec
	requestFailed       *prometheus.CounterVec
	requestsCompleted   *prometheus.CounterVec
	waitTimeouts        *prometheus.CounterVec
	streamAborts        *prometheus.CounterVec
}

var (
	collectiveLabelKeys = []string{labelRank, labelOp}
	requestLabelKeys    = []string{labelRank, labelKind}
	rankLabelKeys       = []string{labelRank}
)

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		collectiveSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rankcomm_collective_submitted_total",
			Help:        "Number of collective operations submitted to the transport",
			ConstLabels: opts.ConstLabels,
		}, collectiveLabelKeys),
		collectiveFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rankcomm_collective_failed_total",
			Help:        "Number of collective submissions rejected by the transport",
			ConstLabels: opts.ConstLabels,
		}, collectiveLabelKeys),
		requestPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rankcomm_request_posted_total",
			Help:        "Number of point-to-point requests posted",
			ConstLabels: opts.ConstLabels,
		}, requestLabelKeys),
		requestFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rankcomm_request_failed_total",
			Help:        "Number of point-to-point submissions rejected by the transport",
			ConstLabels: opts.ConstLabels,
		}, requestLabelKeys),
		requestsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rankcomm_requests_completed_total",
			Help:        "Number of point-to-point requests observed complete by waitall",
			ConstLabels: opts.ConstLabels,
		}, rankLabelKeys),
		waitTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rankcomm_wait_timeout_total",
			Help:        "Number of waitall calls that timed out without progress",
			ConstLabels: opts.ConstLabels,
		}, rankLabelKeys),
		streamAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rankcomm_stream_abort_total",
			Help:        "Number of communicator aborts triggered by asynchronous transport errors",
			ConstLabels: opts.ConstLabels,
		}, rankLabelKeys),
	}

	var err error
	if p.collectiveSubmitted, err = registerCounterVec(reg, p.collectiveSubmitted); err != nil {
		return nil, err
	}
	if p.collectiveFailed, err = registerCounterVec(reg, p.collectiveFailed); err != nil {
		return nil, err
	}
	if p.requestPosted, err = registerCounterVec(reg, p.requestPosted); err != nil {
		return nil, err
	}
	if p.requestFailed, err = registerCounterVec(reg, p.requestFailed); err != nil {
		return nil, err
	}
	if p.requestsCompleted, err = registerCounterVec(reg, p.requestsCompleted); err != nil {
		return nil, err
	}
	if p.waitTimeouts, err = registerCounterVec(reg, p.waitTimeouts); err != nil {
		return nil, err
	}
	if p.streamAborts, err = registerCounterVec(reg, p.streamAborts); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *PrometheusMetrics) CollectiveSubmitted(op string, attrs map[string]string) {
	p.collectiveSubmitted.With(labels(attrs, collectiveLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) CollectiveFailed(op string, _ error, attrs map[string]string) {
	p.collectiveFailed.With(labels(attrs, collectiveLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) RequestPosted(kind string, attrs map[string]string) {
	p.requestPosted.With(labels(attrs, requestLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) RequestFailed(kind string, _ error, attrs map[string]string) {
	p.requestFailed.With(labels(attrs, requestLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) WaitCompleted(requests int, attrs map[string]string) {
	p.requestsCompleted.With(labels(attrs, rankLabelKeys...)).Add(float64(requests))
}

func (p *PrometheusMetrics) WaitTimedOut(_ error, attrs map[string]string) {
	p.waitTimeouts.With(labels(attrs, rankLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) StreamAborted(_ error, attrs map[string]string) {
	p.streamAborts.With(labels(attrs, rankLabelKeys...)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	labs := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labs[key] = attrs[key]
	}
	return labs
}
