package pubmed

import (
	"strings"

	"MedArticles/internal/domain"
)

var titleDenylist = []string{
	"obesity", "gender", "sex", "rehabilitation", "cells", "stem cells",
	"progenitor cells", "epidemiology", "geography", "microbiome",
	"biomarker", "gene", "genetic", "technologies", "artificial intelligence",
	"behavioral", "hidradenitis suppurativa", "crispr", "mice",
	"chromosome", "pregnancy", "polygenic", "pediatric",
}

var publicationTypeDenylist = []string{
	"editorial", "letter", "comment",
	"news", "biography", "historical article",
	"interview", "personal narrative", "portrait",
	"retraction", "retraction of publication",
	"corrected and republished article", "republished article",
	"duplicate publication", "published erratum",
	"video-audio media", "audiovisual", "webcast",
	"consensus development conference", "consensus development conference, nih",
	"congress", "conference proceedings", "meeting abstract",
}

// Rule is one deterministic pre-filter. Rules run in declaration order.
type Rule struct {
	Name    string
	rejects func(a domain.Article) bool
	bump    func(s *domain.FilteringStats)
}

// Count returns stats with this rule's counter incremented.
func (r Rule) Count(stats domain.FilteringStats) domain.FilteringStats {
	r.bump(&stats)
	return stats
}

var rules = []Rule{
	{Name: "title_term", rejects: deniedTitle, bump: func(s *domain.FilteringStats) { s.TitleFiltered++ }},
	{Name: "vaccine_dose", rejects: vaccineDose, bump: func(s *domain.FilteringStats) { s.VaccineDoseFiltered++ }},
	{Name: "ahead_of_print", rejects: aheadOfPrintWithoutAbstract, bump: func(s *domain.FilteringStats) { s.AheadOfPrintFiltered++ }},
	{Name: "non_research", rejects: nonResearch, bump: func(s *domain.FilteringStats) { s.NonResearchFiltered++ }},
	{Name: "empty", rejects: empty, bump: func(s *domain.FilteringStats) { s.EmptyFiltered++ }},
	{Name: "no_abstract", rejects: missingAbstract, bump: func(s *domain.FilteringStats) { s.NoAbstractFiltered++ }},
}

func deniedTitle(a domain.Article) bool {
	return containsAny(strings.ToLower(a.Title), titleDenylist)
}

func vaccineDose(a domain.Article) bool {
	title := strings.ToLower(a.Title)
	return strings.Contains(title, "vaccine") &&
		(strings.Contains(title, "dose") || strings.Contains(title, "dosing"))
}

// Ahead-of-print items with an abstract are kept.
func aheadOfPrintWithoutAbstract(a domain.Article) bool {
	return a.PublicationStatus == "aheadofprint" && !a.HasAbstract()
}

func nonResearch(a domain.Article) bool {
	return containsAny(strings.ToLower(a.PublicationType), publicationTypeDenylist)
}

func empty(a domain.Article) bool {
	return !a.HasTitle() && !a.HasAbstract()
}

// Case reports are exempt.
func missingAbstract(a domain.Article) bool {
	return !a.IsCaseReport() && !a.HasAbstract()
}

// Screen returns the first pre-filter rule that rejects the article.
func Screen(article domain.Article) (Rule, bool) {
	for _, r := range rules {
		if r.rejects(article) {
			return r, true
		}
	}
	return Rule{}, false
}

func containsAny(text string, terms []string) bool {
	if text == "" {
		return false
	}
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
