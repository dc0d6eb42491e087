package classification

import (
	"context"
	"log/slog"

	"MedArticles/internal/domain"
	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

// Evaluator chains the relevance gate, the classifier and the rule layer
// into one complete record per article.
type Evaluator struct {
	filter     ports.RelevanceFilter
	classifier ports.Classifier
	version    string
	logger     *slog.Logger
}

var _ ports.Evaluator = (*Evaluator)(nil)

// NewEvaluator wires a filter and a classifier. version is stamped on every record.
func NewEvaluator(filter ports.RelevanceFilter, classifier ports.Classifier, version string, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		filter:     filter,
		classifier: classifier,
		version:    version,
		logger:     logging.OrDiscard(logger).With("component", "evaluator"),
	}
}

// Evaluate filters the article and classifies it only when relevant.
func (e *Evaluator) Evaluate(ctx context.Context, article domain.Article) domain.ClassificationRecord {
	decision := e.filter.Filter(ctx, article)
	if !decision.IsRelevant {
		e.logger.Debug("article not relevant", "pmid", article.PMID, "reason", decision.Reason)
		return e.record(decision, domain.NeutralClassification())
	}
	return e.classify(ctx, article, decision)
}

// EvaluateForced skips the relevance gate.
func (e *Evaluator) EvaluateForced(ctx context.Context, article domain.Article) domain.ClassificationRecord {
	return e.classify(ctx, article, domain.FilterDecision{IsRelevant: true, Reason: forcedReason})
}

func (e *Evaluator) classify(ctx context.Context, article domain.Article, decision domain.FilterDecision) domain.ClassificationRecord {
	c := ApplyRules(article, e.classifier.Classify(ctx, article))

	b := c.Breakdown
	e.logger.Info("ranking breakdown",
		"pmid", article.PMID,
		"category", c.Category,
		"base", b.Focus+b.StudyType+b.Prevalence+b.Hospitalization+b.ClinicalOutcome+b.ImpactFactor+b.Temporality,
		"neurology", b.NeurologyPenalty,
		"total", b.Total(),
	)
	return e.record(decision, c)
}

func (e *Evaluator) record(decision domain.FilterDecision, c domain.Classification) domain.ClassificationRecord {
	return domain.ClassificationRecord{
		Decision:          decision,
		Classification:    c,
		ClassifierVersion: e.version,
	}
}
