package classification

import (
	"context"
	"log/slog"

	"MedArticles/internal/domain"
	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

// Classifier asks the model to categorize, summarize and score an article.
type Classifier struct {
	generator ports.TextGenerator
	audience  string
	logger    *slog.Logger
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier for the given audience.
func NewClassifier(generator ports.TextGenerator, audience string, logger *slog.Logger) *Classifier {
	return &Classifier{
		generator: generator,
		audience:  audience,
		logger:    logging.OrDiscard(logger).With("component", "classifier"),
	}
}

// Classify returns the neutral classification on any failure.
func (c *Classifier) Classify(ctx context.Context, article domain.Article) domain.Classification {
	if !article.HasTitle() && !article.HasAbstract() {
		return domain.NeutralClassification()
	}

	prompt, err := ClassifyPrompt(c.audience, article)
	if err != nil {
		c.logger.Error("render classify prompt", "pmid", article.PMID, "error", err)
		return domain.NeutralClassification()
	}

	raw, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("classification call failed", "pmid", article.PMID, "provider", c.generator.Name(), "error", err)
		return domain.NeutralClassification()
	}

	classification, err := ParseClassification(raw)
	if err != nil {
		c.logger.Warn("classification reply unusable", "pmid", article.PMID, "error", err, "reply", shorten(raw, 200))
	}
	return classification
}
