package usecase

import "MedArticles/internal/domain"

// BatchPolicy decides after each fetched batch whether collection continues.
// A policy may keep state; the pipeline builds a fresh one for every run.
type BatchPolicy interface {
	Continue(outcome domain.BatchOutcome) bool
}

// PolicyFactory builds a fresh policy for every run.
type PolicyFactory func() BatchPolicy

type continueAlways struct{}

func (continueAlways) Continue(domain.BatchOutcome) bool { return true }

// ContinueAlways never stops collection; failed batches are only counted.
func ContinueAlways() BatchPolicy {
	return continueAlways{}
}

type consecutiveFailures struct {
	limit  int
	streak int
}

func (p *consecutiveFailures) Continue(outcome domain.BatchOutcome) bool {
	if !outcome.Failed() {
		p.streak = 0
		return true
	}
	p.streak++
	return p.streak < p.limit
}

// StopAfterConsecutiveFailures aborts collection after n failed batches in a row.
// n <= 0 behaves like ContinueAlways.
func StopAfterConsecutiveFailures(n int) PolicyFactory {
	if n <= 0 {
		return ContinueAlways
	}
	return func() BatchPolicy {
		return &consecutiveFailures{limit: n}
	}
}
