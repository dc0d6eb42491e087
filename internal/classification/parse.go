package classification

import (
	"errors"

	"MedArticles/internal/domain"
)

const (
	fallbackReason     = "API error or content filtering"
	missingInputReason = "Missing title and abstract"
	forcedReason       = "Submitted for direct classification"
	includedReason     = "Meets inclusion criteria"
	excludedReason     = "Does not match inclusion criteria"
)

// DefaultDecision is returned whenever the relevance reply is unusable.
func DefaultDecision() domain.FilterDecision {
	return domain.FilterDecision{IsRelevant: false, Reason: fallbackReason}
}

// ParseFilterResponse decodes a relevance reply. On error the returned
// decision is DefaultDecision.
func ParseFilterResponse(raw string) (domain.FilterDecision, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return DefaultDecision(), err
	}

	v, present := obj["is_relevant"]
	if !present {
		return DefaultDecision(), &ParseError{Stage: StageValidate, Err: errors.New("missing is_relevant")}
	}
	relevant, ok := asBool(v)
	if !ok {
		return DefaultDecision(), &ParseError{Stage: StageValidate, Err: errors.New("is_relevant is not a boolean")}
	}

	reason := asString(obj["reason"])
	if reason == "" {
		reason = excludedReason
		if relevant {
			reason = includedReason
		}
	}
	return domain.FilterDecision{IsRelevant: relevant, Reason: reason}, nil
}

// ParseClassification decodes a scoring reply. On error the returned
// classification is neutral.
func ParseClassification(raw string) (domain.Classification, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return domain.NeutralClassification(), err
	}

	category, present := obj["medical_category"]
	if !present {
		return domain.NeutralClassification(), &ParseError{Stage: StageValidate, Err: errors.New("missing medical_category")}
	}

	nested, _ := obj["ranking_breakdown"].(map[string]any)
	field := func(key string) any {
		if v, ok := nested[key]; ok {
			return v
		}
		return obj[key]
	}

	return domain.Classification{
		Category:           domain.ParseCategory(asString(category)),
		Participants:       asParticipants(obj["participants"]),
		ClinicalBottomLine: asString(obj["clinical_bottom_line"]),
		Tags:               asTags(obj["tags"]),
		Breakdown: domain.ScoreBreakdown{
			Focus:              positive(field("focus_points"), 2),
			StudyType:          positive(field("type_points"), 2),
			Prevalence:         positive(field("prevalence_points"), 2),
			Hospitalization:    positive(field("hospitalization_points"), 2),
			ClinicalOutcome:    positive(field("clinical_outcome_points"), 2),
			ImpactFactor:       positive(field("impact_factor_points"), 2),
			Temporality:        positive(field("temporality_points"), 1),
			PreventionPenalty:  penalty(field("prevention_penalty_points"), -2),
			BiologicPenalty:    penalty(field("biologic_penalty_points"), -1),
			ScreeningPenalty:   penalty(field("screening_penalty_points"), -1),
			ScoresPenalty:      penalty(field("scores_penalty_points"), -1),
			SubanalysisPenalty: penalty(field("subanalysis_penalty_points"), -1),
		},
	}, nil
}
