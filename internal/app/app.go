package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"MedArticles/internal/classification"
	"MedArticles/internal/config"
	"MedArticles/internal/domain"
	"MedArticles/internal/infrastructure/llm"
	"MedArticles/internal/infrastructure/metrics"
	"MedArticles/internal/infrastructure/pubmed"
	"MedArticles/internal/infrastructure/scheduler"
	"MedArticles/internal/infrastructure/storage"
	"MedArticles/internal/logging"
	"MedArticles/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	repo    *storage.Repository
	metrics *metrics.Collector
	llms    *llm.Registry

	once     sync.Once
	pipeline *usecase.Pipeline
	buildErr error
}

// Build loads configuration from path and opens the application.
func Build(ctx context.Context, path string) (*Application, error) {
	cfg := config.Load(path)
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return New(ctx, cfg, logger)
}

// New opens the store. Model-bound components are built on first pipeline use,
// so read-only commands work without provider credentials.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, err := storage.Open(ctx, cfg.Database, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &Application{
		cfg:     cfg,
		logger:  baseLogger,
		repo:    repo,
		metrics: metrics.New(),
		llms:    llm.NewRegistry(),
	}, nil
}

// Pipeline builds the orchestration pipeline once. Missing provider credentials
// surface here.
func (a *Application) Pipeline() (*usecase.Pipeline, error) {
	a.once.Do(func() {
		a.pipeline, a.buildErr = a.buildPipeline()
	})
	return a.pipeline, a.buildErr
}

func (a *Application) buildPipeline() (*usecase.Pipeline, error) {
	generator, err := a.llms.Build(a.cfg.LLM, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build text generator: %w", err)
	}
	generator = a.metrics.InstrumentGenerator(generator)

	audience := a.cfg.Classification.Audience
	evaluator := classification.NewEvaluator(
		classification.NewFilter(generator, audience, a.logger),
		classification.NewClassifier(generator, audience, a.logger),
		a.cfg.Classification.Version,
		a.logger,
	)

	source := pubmed.NewClient(a.cfg.PubMed, nil, a.logger.With("component", "pubmed"))

	a.logger.Info("pipeline ready",
		"provider", generator.Name(),
		"journals", len(a.cfg.PubMed.Journals),
		"driver", a.cfg.Database.Driver)

	return usecase.NewPipeline(usecase.PipelineDeps{
		Source:       source,
		Evaluator:    evaluator,
		Repository:   a.repo,
		Catalog:      a.repo,
		Observer:     a.metrics,
		Journals:     a.cfg.PubMed.JournalNames(),
		Policy:       usecase.StopAfterConsecutiveFailures(a.cfg.Pipeline.MaxConsecutiveBatchFailures),
		ArticleDelay: a.cfg.Pipeline.ArticleDelay,
		LookbackDays: a.cfg.Pipeline.LookbackDays,
		WeeklyDays:   a.cfg.Pipeline.WeeklyDays,
		Logger:       a.logger,
	}), nil
}

// RunRange processes an explicit date window.
func (a *Application) RunRange(ctx context.Context, window domain.DateRange) (domain.RunSummary, error) {
	p, err := a.Pipeline()
	if err != nil {
		return domain.RunSummary{}, err
	}
	return p.RunRange(ctx, window), nil
}

// RunWeekly processes the last week.
func (a *Application) RunWeekly(ctx context.Context) (domain.RunSummary, error) {
	p, err := a.Pipeline()
	if err != nil {
		return domain.RunSummary{}, err
	}
	return p.RunWeekly(ctx), nil
}

// RunSinceLastUpdate resumes after the newest stored article.
func (a *Application) RunSinceLastUpdate(ctx context.Context) (domain.RunSummary, error) {
	p, err := a.Pipeline()
	if err != nil {
		return domain.RunSummary{}, err
	}
	return p.RunSinceLastUpdate(ctx), nil
}

// ProcessSingle handles one PMID or PubMed URL.
func (a *Application) ProcessSingle(ctx context.Context, identifier string) (domain.RunSummary, error) {
	p, err := a.Pipeline()
	if err != nil {
		return domain.RunSummary{}, err
	}
	return p.ProcessSingle(ctx, identifier), nil
}

// Reclassify scores stored articles again; no identifiers selects every
// stored relevant article.
func (a *Application) Reclassify(ctx context.Context, identifiers []string) (domain.RunSummary, error) {
	p, err := a.Pipeline()
	if err != nil {
		return domain.RunSummary{}, err
	}
	return p.Reclassify(ctx, identifiers), nil
}

// SetHidden toggles the dashboard visibility of a stored article.
func (a *Application) SetHidden(ctx context.Context, identifier string, hidden bool) error {
	pmid, err := usecase.ParseIdentifier(identifier)
	if err != nil {
		return err
	}
	if err := a.repo.SetHidden(ctx, pmid, hidden); err != nil {
		return fmt.Errorf("set hidden %s: %w", pmid, err)
	}
	a.logger.Info("visibility changed", "pmid", pmid, "hidden", hidden)
	return nil
}

// Statistics reports the store totals.
func (a *Application) Statistics(ctx context.Context) (storage.Stats, error) {
	return a.repo.Statistics(ctx)
}

// Serve runs since-last-update on the configured interval and exposes metrics
// until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	p, err := a.Pipeline()
	if err != nil {
		return err
	}

	var srv *http.Server
	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			a.logger.Info("metrics listener started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	driver := scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval, a.cfg.Scheduler.Location(), true, a.logger)
	sched := usecase.NewScheduler(driver, p, a.logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := sched.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics listener: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the store.
func (a *Application) Close() error {
	return a.repo.Close()
}
