package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	stageDuration     *prom.HistogramVec
	buildDuration     prom.Histogram
	stageResults      *prom.CounterVec
	buildOutcome      *prom.CounterVec
	renderDuration    prom.Histogram
	cacheLookups      *prom.CounterVec
	renderErrors      prom.Counter
	documents         prom.Gauge
	brokenLinks       prom.Gauge
	renderConcurrency prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.renderDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuilder",
			Name:      "render_duration_seconds",
			Help:      "Duration of individual document renders",
			Buckets:   prom.ExponentialBuckets(0.0005, 2, 14),
		})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "cache_lookups_total",
			Help:      "Render cache lookups by result",
		}, []string{"result"})
		pr.renderErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitebuilder",
			Name:      "render_errors_total",
			Help:      "Recoverable render errors attached to documents",
		})
		pr.documents = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "documents",
			Help:      "Documents in the last completed build",
		})
		pr.brokenLinks = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "broken_links",
			Help:      "Broken internal links in the last completed build",
		})
		pr.renderConcurrency = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitebuilder",
			Name:      "render_concurrency",
			Help:      "Render workers used by the last build",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
			pr.renderDuration, pr.cacheLookups, pr.renderErrors, pr.documents, pr.brokenLinks, pr.renderConcurrency)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveRenderDuration(d time.Duration) {
	if p == nil || p.renderDuration == nil {
		return
	}
	p.renderDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCacheLookup(reason string) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncRenderErrors(n int) {
	if p == nil || p.renderErrors == nil || n <= 0 {
		return
	}
	p.renderErrors.Add(float64(n))
}

func (p *PrometheusRecorder) SetDocuments(n int) {
	if p == nil || p.documents == nil {
		return
	}
	p.documents.Set(float64(n))
}

func (p *PrometheusRecorder) SetBrokenLinks(n int) {
	if p == nil || p.brokenLinks == nil {
		return
	}
	p.brokenLinks.Set(float64(n))
}

func (p *PrometheusRecorder) SetRenderConcurrency(n int) {
	if p == nil || p.renderConcurrency == nil {
		return
	}
	p.renderConcurrency.Set(float64(n))
}
