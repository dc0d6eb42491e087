package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"MedArticles/internal/domain"
	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

var (
	// ErrInvalidIdentifier is returned for input that is neither a PMID nor a PubMed URL.
	ErrInvalidIdentifier = errors.New("invalid PubMed ID or URL")

	// ErrArticleNotFound is returned when the source yields no usable record for a PMID.
	ErrArticleNotFound = errors.New("article not found on PubMed")
)

const (
	defaultLookbackDays = 7
	defaultWeeklyDays   = 7
	defaultBatchSize    = 100
	pubmedHost          = "pubmed.ncbi.nlm.nih.gov"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source       ports.BibliographicSource
	Evaluator    ports.Evaluator
	Repository   ports.ArticleRepository
	Catalog      ports.ArticleCatalog
	Observer     ports.RunObserver
	Journals     []string
	Policy       PolicyFactory
	ArticleDelay time.Duration
	LookbackDays int
	WeeklyDays   int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Pipeline sequences collection, classification and storage for one run at a time.
type Pipeline struct {
	source       ports.BibliographicSource
	evaluator    ports.Evaluator
	repository   ports.ArticleRepository
	catalog      ports.ArticleCatalog
	observer     ports.RunObserver
	journals     []string
	policy       PolicyFactory
	articleDelay time.Duration
	lookbackDays int
	weeklyDays   int
	now          func() time.Time
	logger       *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:       deps.Source,
		evaluator:    deps.Evaluator,
		repository:   deps.Repository,
		catalog:      deps.Catalog,
		observer:     deps.Observer,
		journals:     deps.Journals,
		policy:       deps.Policy,
		articleDelay: deps.ArticleDelay,
		lookbackDays: deps.LookbackDays,
		weeklyDays:   deps.WeeklyDays,
		now:          deps.Now,
		logger:       logging.OrDiscard(deps.Logger).With("component", "pipeline"),
	}
	if p.observer == nil {
		p.observer = noopObserver{}
	}
	if p.policy == nil {
		p.policy = ContinueAlways
	}
	if p.lookbackDays <= 0 {
		p.lookbackDays = defaultLookbackDays
	}
	if p.weeklyDays <= 0 {
		p.weeklyDays = defaultWeeklyDays
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// RunRange processes every article published inside window.
func (p *Pipeline) RunRange(ctx context.Context, window domain.DateRange) domain.RunSummary {
	return p.runWindow(ctx, p.begin("range"), window)
}

// RunWeekly processes the last WeeklyDays days up to today.
func (p *Pipeline) RunWeekly(ctx context.Context) domain.RunSummary {
	return p.runWindow(ctx, p.begin("weekly"), LastNDays(p.now(), p.weeklyDays))
}

// RunSinceLastUpdate resumes from the day after the newest stored article.
// An empty or unreadable store falls back to the lookback window.
func (p *Pipeline) RunSinceLastUpdate(ctx context.Context) domain.RunSummary {
	r := p.begin("since_last_update")
	now := p.now()

	latest, ok, err := p.repository.LatestCreatedAt(ctx)
	var window domain.DateRange
	switch {
	case err != nil:
		r.logger.Warn("cannot read latest stored article, using lookback window",
			"lookback_days", p.lookbackDays, "error", err)
		window = LastNDays(now, p.lookbackDays)
	case !ok:
		r.logger.Info("store is empty, using lookback window", "lookback_days", p.lookbackDays)
		window = LastNDays(now, p.lookbackDays)
	default:
		window = SinceLastStored(latest, now)
		r.logger.Info("resuming after latest stored article", "latest_created_at", latest, "window", window.String())
	}
	return p.runWindow(ctx, r, window)
}

// ProcessSingle fetches one article by PMID or PubMed URL, classifies it without
// the relevance gate and stores it.
func (p *Pipeline) ProcessSingle(ctx context.Context, identifier string) domain.RunSummary {
	r := p.begin("single")
	r.enter(domain.StageCollecting)

	pmid, err := ParseIdentifier(identifier)
	if err != nil {
		return p.finish(r.fail(err))
	}
	r.logger = r.logger.With("pmid", pmid)

	outcome := p.source.FetchBatch(ctx, []string{pmid})
	p.observer.BatchFetched(outcome)
	r.summary.FilteringStats = outcome.Stats
	r.summary.RecordsSkipped = outcome.Skipped
	if outcome.Failed() {
		r.summary.BatchesFailed = 1
		return p.finish(r.fail(fmt.Errorf("fetch %s: %w", pmid, outcome.Err)))
	}
	if len(outcome.Articles) == 0 {
		if outcome.Stats.Total() > 0 {
			return p.finish(r.fail(fmt.Errorf("%s rejected by pre-filter: %w", pmid, ErrArticleNotFound)))
		}
		return p.finish(r.fail(fmt.Errorf("%s: %w", pmid, ErrArticleNotFound)))
	}
	r.summary.ArticlesFound = 1
	r.summary.ArticlesCollected = 1

	r.enter(domain.StageClassifying)
	items, err := p.classify(ctx, r, outcome.Articles[:1], p.evaluator.EvaluateForced)
	if err != nil {
		return p.finish(r.fail(err))
	}

	r.enter(domain.StageStoring)
	if err := p.store(ctx, r, items); err != nil {
		return p.finish(r.fail(err))
	}
	if r.summary.ArticlesStored == 0 {
		return p.finish(r.fail(fmt.Errorf("article %s was not stored", pmid)))
	}

	r.summary.Article = domain.NewArticleResult(items[0])
	return p.finish(r.complete(""))
}

func (p *Pipeline) runWindow(ctx context.Context, r *run, window domain.DateRange) domain.RunSummary {
	r.summary.StartDate = window.StartString()
	r.summary.EndDate = window.EndString()
	r.logger = r.logger.With("window", window.String())

	r.enter(domain.StageCollecting)
	if err := window.Validate(); err != nil {
		return p.finish(r.fail(err))
	}
	if days := window.Days(); days > longWindowDays {
		r.logger.Warn("date range longer than one year", "days", days)
	}

	articles, err := p.collect(ctx, r, window)
	if err != nil {
		return p.finish(r.fail(err))
	}
	if len(articles) == 0 {
		return p.finish(r.complete(fmt.Sprintf("No new articles found for date range %s to %s",
			window.StartString(), window.EndString())))
	}

	r.enter(domain.StageClassifying)
	items, err := p.classify(ctx, r, articles, p.evaluator.Evaluate)
	if err != nil {
		return p.finish(r.fail(err))
	}
	stats := RunStatistics(items)
	r.summary.Statistics = &stats

	r.enter(domain.StageStoring)
	if err := p.store(ctx, r, items); err != nil {
		return p.finish(r.fail(err))
	}
	return p.finish(r.complete(""))
}

func (p *Pipeline) collect(ctx context.Context, r *run, window domain.DateRange) ([]domain.Article, error) {
	ids, err := p.source.Search(ctx, p.journals, window)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	r.summary.ArticlesFound = len(ids)
	r.logger.Info("search finished", "found", len(ids))

	size := p.source.BatchSize()
	if size <= 0 {
		size = defaultBatchSize
	}

	policy := p.policy()
	var articles []domain.Article
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		outcome := p.source.FetchBatch(ctx, ids[start:end])
		p.observer.BatchFetched(outcome)

		r.summary.FilteringStats = r.summary.FilteringStats.Merge(outcome.Stats)
		r.summary.RecordsSkipped += outcome.Skipped
		articles = append(articles, outcome.Articles...)
		r.summary.ArticlesCollected = len(articles)

		if outcome.Failed() {
			r.summary.BatchesFailed++
			r.logger.Warn("batch failed", "from", start, "to", end, "error", outcome.Err)
		}
		if !policy.Continue(outcome) {
			return nil, fmt.Errorf("collection stopped after batch %d-%d: %w", start, end, outcome.Err)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collection interrupted: %w", err)
		}
	}

	r.logger.Info("collection finished",
		"collected", len(articles),
		"prefiltered", r.summary.FilteringStats.Total(),
		"batches_failed", r.summary.BatchesFailed)
	return articles, nil
}

type evaluateFunc func(ctx context.Context, article domain.Article) domain.ClassificationRecord

func (p *Pipeline) classify(ctx context.Context, r *run, articles []domain.Article, evaluate evaluateFunc) ([]domain.ScoredArticle, error) {
	limit := rate.Inf
	if p.articleDelay > 0 {
		limit = rate.Every(p.articleDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	items := make([]domain.ScoredArticle, 0, len(articles))
	for i, article := range articles {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("classification interrupted: %w", err)
		}

		rec := evaluate(ctx, article)
		p.observer.ArticleEvaluated(rec)
		if rec.Decision.IsRelevant {
			r.summary.ArticlesRelevant++
		}
		items = append(items, domain.ScoredArticle{Article: article, Record: &rec})
		r.summary.ArticlesClassified = len(items)

		r.logger.Debug("article evaluated",
			"n", i+1,
			"of", len(articles),
			"pmid", article.PMID,
			"relevant", rec.Decision.IsRelevant,
			"score", rec.RankingScore())
	}
	return items, nil
}

func (p *Pipeline) store(ctx context.Context, r *run, items []domain.ScoredArticle) error {
	stored, err := p.repository.StoreBatch(ctx, items)
	r.summary.ArticlesStored = stored
	r.summary.StoreFailures = len(items) - stored
	if err != nil {
		return fmt.Errorf("store batch: %w", err)
	}
	if r.summary.StoreFailures > 0 {
		r.logger.Warn("some articles were not stored", "failures", r.summary.StoreFailures)
	}
	return nil
}

// ParseIdentifier extracts a numeric PMID from a bare id or a PubMed article URL.
func ParseIdentifier(value string) (string, error) {
	id := strings.TrimSpace(value)
	if strings.Contains(id, pubmedHost) {
		for _, part := range strings.Split(id, "/") {
			if isDigits(part) {
				id = part
				break
			}
		}
	}
	if !isDigits(id) {
		return "", fmt.Errorf("%q: %w", value, ErrInvalidIdentifier)
	}
	return id, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// run tracks the state and summary of one invocation.
type run struct {
	summary domain.RunSummary
	started time.Time
	logger  *slog.Logger
}

func (p *Pipeline) begin(kind string) *run {
	id := uuid.NewString()
	return &run{
		summary: domain.RunSummary{RunID: id, State: domain.StageIdle, StartedAt: p.now()},
		started: time.Now(),
		logger:  p.logger.With("run_id", id, "kind", kind),
	}
}

func (r *run) enter(stage domain.Stage) {
	r.logger.Info("stage transition", "from", r.summary.State, "to", stage)
	r.summary.State = stage
}

func (r *run) fail(err error) *run {
	r.summary.FailedStage = r.summary.State
	r.summary.State = domain.StageFailed
	r.summary.Success = false
	r.summary.Error = err.Error()
	r.logger.Error("run failed", "stage", r.summary.FailedStage, "error", err)
	return r
}

func (r *run) complete(message string) *run {
	r.enter(domain.StageDone)
	r.summary.Success = true
	r.summary.Message = message
	return r
}

func (p *Pipeline) finish(r *run) domain.RunSummary {
	r.summary.Duration = time.Since(r.started)
	p.observer.RunFinished(r.summary)
	if r.summary.Success {
		r.logger.Info("run finished",
			"found", r.summary.ArticlesFound,
			"collected", r.summary.ArticlesCollected,
			"relevant", r.summary.ArticlesRelevant,
			"stored", r.summary.ArticlesStored,
			"duration", r.summary.Duration.String())
	}
	return r.summary
}

type noopObserver struct{}

func (noopObserver) BatchFetched(domain.BatchOutcome) {}

func (noopObserver) ArticleEvaluated(domain.ClassificationRecord) {}

func (noopObserver) RunFinished(domain.RunSummary) {}
