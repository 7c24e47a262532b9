package metrics

import (
	"net/http"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kgpath"

// Prometheus records metrics into its own registry.
type Prometheus struct {
	registry *prom.Registry

	backendTotal   *prom.CounterVec
	backendSeconds *prom.HistogramVec
	breakerState   *prom.GaugeVec
	samplesTotal   *prom.CounterVec
	sampleSeconds  *prom.HistogramVec
	cacheTotal     *prom.CounterVec
	scoresComputed prom.Counter
	encodeSeconds  prom.Histogram
	trainingLoss   *prom.GaugeVec
	trainingEpoch  prom.Gauge
	httpTotal      *prom.CounterVec
	httpSeconds    *prom.HistogramVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a recorder with all collectors registered on a
// fresh registry, plus the Go and process collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prom.NewRegistry(),
		backendTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "backend_queries_total",
			Help:      "Total number of graph backend queries",
		}, []string{"op", "success"}),
		backendSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_query_seconds",
			Help:      "Graph backend query duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"op", "success"}),
		breakerState: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (1 for the current state)",
		}, []string{"name", "state"}),
		samplesTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples by outcome",
		}, []string{"outcome"}),
		sampleSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_seconds",
			Help:      "Per-sample processing time in seconds",
			Buckets:   prom.ExponentialBuckets(0.01, 2, 14),
		}, []string{"success"}),
		cacheTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
		scoresComputed: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "scores_computed_total",
			Help:      "Relation scores computed by the encoder",
		}),
		encodeSeconds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_seconds",
			Help:      "Encoder forward pass duration in seconds",
			Buckets:   prom.DefBuckets,
		}),
		trainingLoss: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "training_loss",
			Help:      "Mean contrastive loss of the last finished epoch",
		}, []string{"split"}),
		trainingEpoch: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "training_epoch",
			Help:      "Last finished training epoch",
		}),
		httpTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		httpSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"route"}),
	}

	p.registry.MustRegister(
		p.backendTotal, p.backendSeconds, p.breakerState,
		p.samplesTotal, p.sampleSeconds, p.cacheTotal,
		p.scoresComputed, p.encodeSeconds, p.trainingLoss, p.trainingEpoch,
		p.httpTotal, p.httpSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prom.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ObserveBackendQuery(op string, success bool, seconds float64) {
	s := strconv.FormatBool(success)
	p.backendTotal.WithLabelValues(op, s).Inc()
	p.backendSeconds.WithLabelValues(op, s).Observe(seconds)
}

func (p *Prometheus) SetBreakerState(name, state string) {
	for _, st := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if st == state {
			v = 1
		}
		p.breakerState.WithLabelValues(name, st).Set(v)
	}
}

func (p *Prometheus) IncSamples(outcome string) {
	p.samplesTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveSampleSeconds(success bool, seconds float64) {
	p.sampleSeconds.WithLabelValues(strconv.FormatBool(success)).Observe(seconds)
}

func (p *Prometheus) IncCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheTotal.WithLabelValues(cache, result).Inc()
}

func (p *Prometheus) AddScoresComputed(n int) {
	p.scoresComputed.Add(float64(n))
}

func (p *Prometheus) ObserveEncodeSeconds(seconds float64) {
	p.encodeSeconds.Observe(seconds)
}

func (p *Prometheus) SetTrainingLoss(split string, epoch int, loss float64) {
	p.trainingLoss.WithLabelValues(split).Set(loss)
	p.trainingEpoch.Set(float64(epoch))
}

func (p *Prometheus) ObserveHTTPRequest(route string, status int, seconds float64) {
	p.httpTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	p.httpSeconds.WithLabelValues(route).Observe(seconds)
}
