package usecase

import (
	"context"
	"errors"
	"fmt"

	"MedArticles/internal/domain"
)

var errNoCatalog = errors.New("no article catalog configured")

// Reclassify scores stored articles again and supersedes their classification
// records. Without identifiers every stored relevant article is selected,
// hidden ones included; otherwise only the given PMIDs or PubMed URLs are, and
// their results are listed in the summary. A stored relevant decision is kept.
// Other selections are classified the way single-article processing does it.
func (p *Pipeline) Reclassify(ctx context.Context, identifiers []string) domain.RunSummary {
	r := p.begin("reclassify")
	r.enter(domain.StageCollecting)
	if p.catalog == nil {
		return p.finish(r.fail(errNoCatalog))
	}

	selected, err := p.selectStored(ctx, r, identifiers)
	if err != nil {
		return p.finish(r.fail(err))
	}
	r.summary.ArticlesCollected = len(selected)
	if len(selected) == 0 {
		return p.finish(r.complete("No stored articles to reclassify"))
	}

	previous := make(map[string]*domain.ClassificationRecord, len(selected))
	articles := make([]domain.Article, len(selected))
	for i, item := range selected {
		previous[item.Article.PMID] = item.Record
		articles[i] = item.Article
	}
	evaluate := func(ctx context.Context, article domain.Article) domain.ClassificationRecord {
		rec := p.evaluator.EvaluateForced(ctx, article)
		if prev := previous[article.PMID]; prev != nil && prev.Decision.IsRelevant {
			rec.Decision = prev.Decision
		}
		return rec
	}

	r.enter(domain.StageClassifying)
	items, err := p.classify(ctx, r, articles, evaluate)
	if err != nil {
		return p.finish(r.fail(err))
	}
	stats := RunStatistics(items)
	r.summary.Statistics = &stats

	r.enter(domain.StageStoring)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return p.finish(r.fail(fmt.Errorf("store classifications: %w", err)))
		}
		if err := p.repository.UpsertClassification(ctx, selected[i].ID, *item.Record); err != nil {
			r.logger.Error("store classification failed", "pmid", item.Article.PMID, "error", err)
			continue
		}
		r.summary.ArticlesStored++
	}
	r.summary.StoreFailures = len(items) - r.summary.ArticlesStored
	if r.summary.StoreFailures > 0 {
		r.logger.Warn("some classifications were not stored", "failures", r.summary.StoreFailures)
	}

	if len(identifiers) > 0 {
		r.summary.Articles = make([]domain.ArticleResult, 0, len(items))
		for _, item := range items {
			r.summary.Articles = append(r.summary.Articles, *domain.NewArticleResult(item))
		}
	}
	return p.finish(r.complete(""))
}

func (p *Pipeline) selectStored(ctx context.Context, r *run, identifiers []string) ([]domain.StoredArticle, error) {
	if len(identifiers) == 0 {
		items, err := p.catalog.ListClassified(ctx, domain.ListQuery{
			IncludeHidden: true,
			RelevantOnly:  true,
			SortBy:        domain.SortByDate,
		})
		if err != nil {
			return nil, fmt.Errorf("list stored articles: %w", err)
		}
		r.summary.ArticlesFound = len(items)
		return items, nil
	}

	pmids := make([]string, 0, len(identifiers))
	seen := make(map[string]bool, len(identifiers))
	for _, identifier := range identifiers {
		pmid, err := ParseIdentifier(identifier)
		if err != nil {
			return nil, err
		}
		if !seen[pmid] {
			seen[pmid] = true
			pmids = append(pmids, pmid)
		}
	}
	r.summary.ArticlesFound = len(pmids)

	items := make([]domain.StoredArticle, 0, len(pmids))
	for _, pmid := range pmids {
		item, err := p.catalog.FindByPMID(ctx, pmid)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			r.summary.RecordsSkipped++
			r.logger.Warn("article is not stored", "pmid", pmid)
		case err != nil:
			return nil, fmt.Errorf("find %s: %w", pmid, err)
		default:
			items = append(items, item)
		}
	}
	return items, nil
}
