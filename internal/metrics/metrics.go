package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trailblazer_ai/internal/models"
)

// Metrics exposes service metrics (e.g. Prometheus handler).
type Metrics interface {
	HTTPHandler() http.Handler
	ObserveRequest(route, method string, status int, elapsed time.Duration)
	ObserveVerdict(v models.JudgeVerdict)
	ObserveRateLimited(scope string)
	// Report satisfies billing.Reporter so usage events become counters.
	Name() string
	Report(ctx context.Context, event models.UsageEvent) error
}

// NoopMetrics is used when metrics are disabled.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (m *NoopMetrics) ObserveRequest(string, string, int, time.Duration) {}
func (m *NoopMetrics) ObserveVerdict(models.JudgeVerdict)                {}
func (m *NoopMetrics) ObserveRateLimited(string)                         {}
func (m *NoopMetrics) Name() string                                      { return "metrics-noop" }
func (m *NoopMetrics) Report(context.Context, models.UsageEvent) error   { return nil }

// Prometheus keeps its collectors in a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	providerCalls   *prometheus.CounterVec
	tokens          *prometheus.CounterVec
	costUSD         *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	verdicts        *prometheus.CounterVec
	judgeIterations prometheus.Histogram
	rateLimited     *prometheus.CounterVec
}

// NewPrometheus registers every collector under the given namespace.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "trailblazer"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Prometheus{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"route", "method"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Model calls by provider, model, use case and outcome.",
		}, []string{"provider", "model", "use_case", "success"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens consumed by provider and direction.",
		}, []string{"provider", "model", "direction"}),
		costUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cost_usd_total",
			Help:      "Estimated spend in USD.",
		}, []string{"provider", "model", "use_case"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Model call latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_verdicts_total",
			Help:      "Judge verdicts by outcome and hallucination severity.",
		}, []string{"outcome", "severity"}),
		judgeIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "judge_iterations",
			Help:      "Judge calls per evaluation.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit.",
		}, []string{"scope"}),
	}
	reg.MustRegister(p.requests, p.requestDuration, p.providerCalls, p.tokens, p.costUSD,
		p.providerLatency, p.verdicts, p.judgeIterations, p.rateLimited)
	return p
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	p.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	p.requestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveVerdict(v models.JudgeVerdict) {
	outcome := "failed"
	switch {
	case v.VerificationSkipped:
		outcome = "skipped"
	case v.Passed:
		outcome = "passed"
	case v.NeedsRerun:
		outcome = "error"
	}
	severity := string(v.HallucinationSeverity)
	if severity == "" {
		severity = "unknown"
	}
	p.verdicts.WithLabelValues(outcome, severity).Inc()
	p.judgeIterations.Observe(float64(v.Iterations))
}

func (p *Prometheus) ObserveRateLimited(scope string) {
	p.rateLimited.WithLabelValues(scope).Inc()
}

func (p *Prometheus) Name() string { return "prometheus" }

// Report turns a usage event into counters. It never fails.
func (p *Prometheus) Report(_ context.Context, ev models.UsageEvent) error {
	provider := string(ev.Provider)
	p.providerCalls.WithLabelValues(provider, ev.Model, ev.UseCase, strconv.FormatBool(ev.Success)).Inc()
	p.tokens.WithLabelValues(provider, ev.Model, "input").Add(float64(ev.InputTokens))
	p.tokens.WithLabelValues(provider, ev.Model, "output").Add(float64(ev.OutputTokens))
	cost, _ := ev.Cost.Float64()
	if cost > 0 {
		p.costUSD.WithLabelValues(provider, ev.Model, ev.UseCase).Add(cost)
	}
	p.providerLatency.WithLabelValues(provider).Observe(float64(ev.LatencyMs) / 1000)
	return nil
}
