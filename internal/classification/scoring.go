package classification

import (
	"strings"

	"MedArticles/internal/domain"
)

// venuePenalties maps a lower-cased venue name to its fixed penalty.
var venuePenalties = map[string]int{
	"neurology": -2,
}

// ApplyRules recomputes the rule-controlled components from raw article
// fields. Rule values replace whatever the model reported for them.
func ApplyRules(article domain.Article, c domain.Classification) domain.Classification {
	c.Breakdown.NeurologyPenalty = venuePenalties[strings.ToLower(strings.TrimSpace(article.Journal))]
	return c
}
