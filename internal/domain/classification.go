package domain

import (
	"strings"
	"time"
)

// Category is one of the fixed medical fields an article can be filed under.
type Category string

const (
	CategoryCardiology       Category = "Cardiology"
	CategoryPulmonology      Category = "Pulmonology"
	CategoryGastroenterology Category = "Gastroenterology"
	CategoryNephrology       Category = "Nephrology"
	CategoryNeurology        Category = "Neurology"
	CategoryEndocrinology    Category = "Endocrinology"
	CategoryHematology       Category = "Hematology"
	CategoryOncology         Category = "Oncology"
	CategoryImmunology       Category = "Immunology"
	CategoryInfectious       Category = "Infectious diseases"
	CategoryDiabetes         Category = "Diabetes"
	CategoryLipidology       Category = "Lipidology"
	CategoryNutrition        Category = "Nutrition"
	CategoryGeriatrics       Category = "Geriatrics"
	CategoryPsychiatry       Category = "Psychiatry"
	CategoryPediatrics       Category = "Pediatrics"
	CategoryGeneralMedicine  Category = "General medicine"
	CategoryRheumatology     Category = "Rheumatology"
	CategoryOther            Category = "Other"
)

// Categories lists the enumeration in display order.
var Categories = []Category{
	CategoryCardiology,
	CategoryPulmonology,
	CategoryGastroenterology,
	CategoryNephrology,
	CategoryNeurology,
	CategoryEndocrinology,
	CategoryHematology,
	CategoryOncology,
	CategoryImmunology,
	CategoryInfectious,
	CategoryDiabetes,
	CategoryLipidology,
	CategoryNutrition,
	CategoryGeriatrics,
	CategoryPsychiatry,
	CategoryPediatrics,
	CategoryGeneralMedicine,
	CategoryRheumatology,
	CategoryOther,
}

// ParseCategory maps free text onto the enumeration, falling back to Other.
func ParseCategory(value string) Category {
	value = strings.TrimSpace(value)
	for _, c := range Categories {
		if strings.EqualFold(value, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// FilterDecision is the outcome of the relevance gate.
type FilterDecision struct {
	IsRelevant bool
	Reason     string
}

// ScoreBreakdown holds the named integer components of the ranking score.
// Penalty fields are zero or negative.
type ScoreBreakdown struct {
	Focus           int `json:"focus_points"`
	StudyType       int `json:"type_points"`
	Prevalence      int `json:"prevalence_points"`
	Hospitalization int `json:"hospitalization_points"`
	ClinicalOutcome int `json:"clinical_outcome_points"`
	ImpactFactor    int `json:"impact_factor_points"`
	Temporality     int `json:"temporality_points"`

	PreventionPenalty  int `json:"prevention_penalty_points"`
	BiologicPenalty    int `json:"biologic_penalty_points"`
	ScreeningPenalty   int `json:"screening_penalty_points"`
	ScoresPenalty      int `json:"scores_penalty_points"`
	SubanalysisPenalty int `json:"subanalysis_penalty_points"`
	NeurologyPenalty   int `json:"neurology_penalty_points"`
}

// Sum adds every component without clamping.
func (b ScoreBreakdown) Sum() int {
	return b.Focus + b.StudyType + b.Prevalence + b.Hospitalization +
		b.ClinicalOutcome + b.ImpactFactor + b.Temporality +
		b.PreventionPenalty + b.BiologicPenalty + b.ScreeningPenalty +
		b.ScoresPenalty + b.SubanalysisPenalty + b.NeurologyPenalty
}

// Total is the final ranking score; it never drops below zero.
func (b ScoreBreakdown) Total() int {
	if sum := b.Sum(); sum > 0 {
		return sum
	}
	return 0
}

// Classification is the model-produced enrichment of a relevant article.
type Classification struct {
	Category           Category
	Participants       *int64
	ClinicalBottomLine string
	Tags               []string
	Breakdown          ScoreBreakdown
}

// NeutralClassification is used whenever the classifier is skipped or fails.
func NeutralClassification() Classification {
	return Classification{Category: CategoryOther, Tags: []string{}}
}

// ClassificationRecord is the persisted union of a decision and a classification.
type ClassificationRecord struct {
	Decision          FilterDecision
	Classification    Classification
	ClassifierVersion string
	Hidden            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RankingScore recomputes the final score from the breakdown.
func (r ClassificationRecord) RankingScore() int {
	return r.Classification.Breakdown.Total()
}

// StoredArticle is an article read back together with its classification.
type StoredArticle struct {
	ID        int64
	Article   Article
	Record    *ClassificationRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sort orders for ListQuery.
const (
	SortByScore = "score"
	SortByDate  = "date"
	SortByTitle = "title"
)

// ListQuery narrows a listing of classified articles.
type ListQuery struct {
	IncludeHidden bool
	RelevantOnly  bool
	Category      Category
	SortBy        string
	Limit         uint64
}
