package usecase

import (
	"math"
	"sort"

	"MedArticles/internal/domain"
)

const (
	highScoreThreshold = 8
	topArticleCount    = 5
	topTitleLimit      = 80
)

// RunStatistics summarises the scores of a run's evaluated articles. Only
// positive scores count toward the average and the top list; every evaluated
// article counts toward the category breakdown.
func RunStatistics(items []domain.ScoredArticle) domain.RunStatistics {
	stats := domain.RunStatistics{
		CategoryBreakdown: map[string]int{},
		TopArticles:       []domain.TopArticle{},
	}

	var (
		sum    int
		scored []domain.ScoredArticle
	)
	for _, item := range items {
		if item.Record == nil {
			continue
		}
		stats.CategoryBreakdown[string(item.Record.Classification.Category)]++

		score := item.Record.RankingScore()
		if score <= 0 {
			continue
		}
		sum += score
		scored = append(scored, item)
		if score >= highScoreThreshold {
			stats.HighScoreCount++
		}
	}
	if len(scored) == 0 {
		return stats
	}

	avg := float64(sum) / float64(len(scored))
	stats.AverageScore = math.Round(avg*100) / 100

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Record.RankingScore() > scored[j].Record.RankingScore()
	})
	for _, item := range scored[:min(topArticleCount, len(scored))] {
		stats.TopArticles = append(stats.TopArticles, domain.TopArticle{
			PMID:    item.Article.PMID,
			Title:   truncateTitle(item.Article.Title),
			Journal: item.Article.Journal,
			Score:   item.Record.RankingScore(),
		})
	}
	return stats
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= topTitleLimit {
		return title
	}
	return string(runes[:topTitleLimit]) + "..."
}
