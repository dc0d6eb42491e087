package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MedArticles/internal/domain"
	"MedArticles/internal/ports"
)

const namespace = "medarticles"

// Collector records pipeline and model-call metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	runDuration   prometheus.Histogram
	batches       *prometheus.CounterVec
	skipped       prometheus.Counter
	prefiltered   *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	scores        prometheus.Histogram
	llmLatency    *prometheus.HistogramVec
	llmErrors     *prometheus.CounterVec
}

var _ ports.RunObserver = (*Collector)(nil)

// New registers every metric plus the Go runtime collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by result",
			},
			[]string{"result"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Failed runs by the stage that failed",
			},
			[]string{"stage"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of pipeline runs",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
			},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_batches_total",
				Help:      "Record fetch batches by status",
			},
			[]string{"status"},
		),
		skipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_skipped_total",
				Help:      "Malformed records dropped during extraction",
			},
		),
		prefiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prefilter_rejections_total",
				Help:      "Articles rejected before any model call, by rule",
			},
			[]string{"rule"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relevance_decisions_total",
				Help:      "Relevance filter outcomes",
			},
			[]string{"relevant"},
		),
		scores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ranking_score",
				Help:      "Ranking scores of relevant articles",
				Buckets:   []float64{0, 2, 4, 6, 8, 10, 12, 14},
			},
		),
		llmLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Text generation latency by provider",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"provider"},
		),
		llmErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_errors_total",
				Help:      "Failed text generation calls by provider",
			},
			[]string{"provider"},
		),
	}

	c.registry.MustRegister(
		c.runs, c.stageFailures, c.runDuration,
		c.batches, c.skipped, c.prefiltered,
		c.decisions, c.scores,
		c.llmLatency, c.llmErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// BatchFetched counts the batch and its pre-filter rejections.
func (c *Collector) BatchFetched(outcome domain.BatchOutcome) {
	status := "ok"
	if outcome.Failed() {
		status = "failed"
	}
	c.batches.WithLabelValues(status).Inc()
	c.skipped.Add(float64(outcome.Skipped))

	for rule, n := range prefilterCounts(outcome.Stats) {
		if n > 0 {
			c.prefiltered.WithLabelValues(rule).Add(float64(n))
		}
	}
}

// ArticleEvaluated counts the decision and observes the score of relevant articles.
func (c *Collector) ArticleEvaluated(record domain.ClassificationRecord) {
	if !record.Decision.IsRelevant {
		c.decisions.WithLabelValues("false").Inc()
		return
	}
	c.decisions.WithLabelValues("true").Inc()
	c.scores.Observe(float64(record.RankingScore()))
}

// RunFinished records the run result and duration.
func (c *Collector) RunFinished(summary domain.RunSummary) {
	c.runDuration.Observe(summary.Duration.Seconds())
	if summary.Success {
		c.runs.WithLabelValues("success").Inc()
		return
	}
	c.runs.WithLabelValues("failed").Inc()
	c.stageFailures.WithLabelValues(string(summary.FailedStage)).Inc()
}

// InstrumentGenerator wraps gen so every call is timed and failures are counted.
func (c *Collector) InstrumentGenerator(gen ports.TextGenerator) ports.TextGenerator {
	return &instrumentedGenerator{next: gen, collector: c}
}

type instrumentedGenerator struct {
	next      ports.TextGenerator
	collector *Collector
}

func (g *instrumentedGenerator) Name() string {
	return g.next.Name()
}

func (g *instrumentedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := g.next.Generate(ctx, prompt)
	g.collector.llmLatency.WithLabelValues(g.next.Name()).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, context.Canceled) {
		g.collector.llmErrors.WithLabelValues(g.next.Name()).Inc()
	}
	return out, err
}

func prefilterCounts(s domain.FilteringStats) map[string]int {
	return map[string]int{
		"title_term":     s.TitleFiltered,
		"vaccine_dose":   s.VaccineDoseFiltered,
		"ahead_of_print": s.AheadOfPrintFiltered,
		"non_research":   s.NonResearchFiltered,
		"empty":          s.EmptyFiltered,
		"no_abstract":    s.NoAbstractFiltered,
	}
}
