package classification

import (
	"context"
	"log/slog"

	"MedArticles/internal/domain"
	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

// Filter is the model-backed relevance gate.
type Filter struct {
	generator ports.TextGenerator
	audience  string
	logger    *slog.Logger
}

var _ ports.RelevanceFilter = (*Filter)(nil)

// NewFilter builds a relevance filter for the given audience.
func NewFilter(generator ports.TextGenerator, audience string, logger *slog.Logger) *Filter {
	return &Filter{
		generator: generator,
		audience:  audience,
		logger:    logging.OrDiscard(logger).With("component", "relevance_filter"),
	}
}

// Filter never fails: model and parse errors collapse into DefaultDecision.
func (f *Filter) Filter(ctx context.Context, article domain.Article) domain.FilterDecision {
	if !article.HasTitle() && !article.HasAbstract() {
		return domain.FilterDecision{IsRelevant: false, Reason: missingInputReason}
	}

	prompt, err := FilterPrompt(f.audience, article)
	if err != nil {
		f.logger.Error("render filter prompt", "pmid", article.PMID, "error", err)
		return DefaultDecision()
	}

	f.logger.Info("filtering article", "pmid", article.PMID, "title", shorten(article.Title, 50), "journal", article.Journal)

	raw, err := f.generator.Generate(ctx, prompt)
	if err != nil {
		f.logger.Warn("relevance call failed", "pmid", article.PMID, "provider", f.generator.Name(), "error", err)
		return DefaultDecision()
	}

	decision, err := ParseFilterResponse(raw)
	if err != nil {
		f.logger.Warn("relevance reply unusable", "pmid", article.PMID, "error", err, "reply", shorten(raw, 200))
	}
	return decision
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
