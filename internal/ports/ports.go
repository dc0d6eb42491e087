package ports

import (
	"context"
	"time"

	"MedArticles/internal/domain"
)

// BibliographicSource searches the literature index and fetches records in batches.
type BibliographicSource interface {
	Search(ctx context.Context, journals []string, window domain.DateRange) ([]string, error)
	FetchBatch(ctx context.Context, ids []string) domain.BatchOutcome
	BatchSize() int
}

// TextGenerator sends one prompt to a text-generation model and returns its raw reply.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// RelevanceFilter is the yes/no clinical applicability gate.
type RelevanceFilter interface {
	Filter(ctx context.Context, article domain.Article) domain.FilterDecision
}

// Classifier categorizes and scores relevant articles.
type Classifier interface {
	Classify(ctx context.Context, article domain.Article) domain.Classification
}

// Evaluator produces a complete classification record for any article.
type Evaluator interface {
	Evaluate(ctx context.Context, article domain.Article) domain.ClassificationRecord
	EvaluateForced(ctx context.Context, article domain.Article) domain.ClassificationRecord
}

// ArticleRepository persists articles and their classification records.
type ArticleRepository interface {
	UpsertArticle(ctx context.Context, article domain.Article) (int64, error)
	UpsertClassification(ctx context.Context, articleID int64, record domain.ClassificationRecord) error
	StoreBatch(ctx context.Context, items []domain.ScoredArticle) (int, error)
	LatestCreatedAt(ctx context.Context) (time.Time, bool, error)
}

// ArticleCatalog reads stored articles back for maintenance work.
type ArticleCatalog interface {
	ListClassified(ctx context.Context, q domain.ListQuery) ([]domain.StoredArticle, error)
	FindByPMID(ctx context.Context, pmid string) (domain.StoredArticle, error)
	SetHidden(ctx context.Context, pmid string, hidden bool) error
}

// RunObserver receives pipeline events, typically for metrics.
type RunObserver interface {
	BatchFetched(outcome domain.BatchOutcome)
	ArticleEvaluated(record domain.ClassificationRecord)
	RunFinished(summary domain.RunSummary)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
