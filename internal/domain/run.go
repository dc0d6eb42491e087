package domain

import (
	"errors"
	"fmt"
	"time"
)

// QueryDateLayout is the date format the bibliographic service expects.
const QueryDateLayout = "2006/01/02"

// ErrInvalidRange is returned for windows whose start falls after the end.
var ErrInvalidRange = errors.New("start date is after end date")

// DateRange is an inclusive window of whole calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to calendar days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: dayOf(start), End: dayOf(end)}
}

// ParseDateRange accepts YYYY/MM/DD or YYYY-MM-DD bounds.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := parseDay(start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date: %w", err)
	}
	e, err := parseDay(end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date: %w", err)
	}
	return NewDateRange(s, e), nil
}

// Validate rejects inverted windows.
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("%s > %s: %w", r.StartString(), r.EndString(), ErrInvalidRange)
	}
	return nil
}

// Days counts the calendar days covered, both ends included.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// StartString formats the lower bound for queries.
func (r DateRange) StartString() string { return r.Start.Format(QueryDateLayout) }

// EndString formats the upper bound for queries.
func (r DateRange) EndString() string { return r.End.Format(QueryDateLayout) }

func (r DateRange) String() string {
	return r.StartString() + ":" + r.EndString()
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDay(value string) (time.Time, error) {
	for _, layout := range []string{QueryDateLayout, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", value)
}

// FilteringStats counts pre-filter rejections by rule for one run.
type FilteringStats struct {
	TitleFiltered        int `json:"title_filtered"`
	VaccineDoseFiltered  int `json:"vaccine_dose_filtered"`
	AheadOfPrintFiltered int `json:"ahead_of_print_filtered"`
	NonResearchFiltered  int `json:"non_research_filtered"`
	EmptyFiltered        int `json:"empty_filtered"`
	NoAbstractFiltered   int `json:"no_abstract_filtered"`
}

// Merge returns the component-wise sum of two stats values.
func (s FilteringStats) Merge(other FilteringStats) FilteringStats {
	return FilteringStats{
		TitleFiltered:        s.TitleFiltered + other.TitleFiltered,
		VaccineDoseFiltered:  s.VaccineDoseFiltered + other.VaccineDoseFiltered,
		AheadOfPrintFiltered: s.AheadOfPrintFiltered + other.AheadOfPrintFiltered,
		NonResearchFiltered:  s.NonResearchFiltered + other.NonResearchFiltered,
		EmptyFiltered:        s.EmptyFiltered + other.EmptyFiltered,
		NoAbstractFiltered:   s.NoAbstractFiltered + other.NoAbstractFiltered,
	}
}

// Total sums all rejections.
func (s FilteringStats) Total() int {
	return s.TitleFiltered + s.VaccineDoseFiltered + s.AheadOfPrintFiltered +
		s.NonResearchFiltered + s.EmptyFiltered + s.NoAbstractFiltered
}

// BatchOutcome is the result of fetching one id batch. A failed batch has
// Err set and carries no articles.
type BatchOutcome struct {
	Requested int
	Articles  []Article
	Stats     FilteringStats
	Skipped   int
	Err       error
}

// Failed reports whether the batch could not be fetched or parsed.
func (o BatchOutcome) Failed() bool {
	return o.Err != nil
}

// Stage enumerates orchestrator states.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageCollecting  Stage = "collecting"
	StageClassifying Stage = "classifying"
	StageStoring     Stage = "storing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// TopArticle is a compact entry of the run's best scored articles.
type TopArticle struct {
	PMID    string `json:"pmid"`
	Title   string `json:"title"`
	Journal string `json:"journal"`
	Score   int    `json:"score"`
}

// RunStatistics summarises the scores of one run.
type RunStatistics struct {
	AverageScore      float64        `json:"avg_ranking_score"`
	HighScoreCount    int            `json:"articles_score_8_plus"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
	TopArticles       []TopArticle   `json:"top_articles"`
}

// RunSummary is the structured result of every orchestrator entry point.
// FailedStage is set only when State is StageFailed.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Success     bool   `json:"success"`
	State       Stage  `json:"state"`
	FailedStage Stage  `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`

	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`

	ArticlesFound      int `json:"articles_found"`
	ArticlesCollected  int `json:"articles_collected"`
	ArticlesRelevant   int `json:"articles_relevant"`
	ArticlesClassified int `json:"articles_classified"`
	ArticlesStored     int `json:"articles_stored"`
	StoreFailures      int `json:"store_failures"`
	BatchesFailed      int `json:"batches_failed"`
	RecordsSkipped     int `json:"records_skipped"`

	FilteringStats FilteringStats  `json:"filtering_stats"`
	Statistics     *RunStatistics  `json:"statistics,omitempty"`
	Article        *ArticleResult  `json:"article,omitempty"`
	Articles       []ArticleResult `json:"articles,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"processing_time_ns"`
}

// ArticleResult describes an article handled by single-article processing or
// re-classification.
type ArticleResult struct {
	PMID       string         `json:"pmid"`
	Title      string         `json:"title"`
	Journal    string         `json:"journal"`
	URL        string         `json:"url"`
	Category   Category       `json:"medical_category"`
	Relevant   bool           `json:"is_relevant"`
	Score      int            `json:"ranking_score"`
	Breakdown  ScoreBreakdown `json:"ranking_breakdown"`
	Reason     string         `json:"reason"`
	BottomLine string         `json:"clinical_bottom_line"`
	Tags       []string       `json:"tags"`
}

// NewArticleResult flattens a scored article for reporting.
func NewArticleResult(item ScoredArticle) *ArticleResult {
	res := &ArticleResult{
		PMID:    item.Article.PMID,
		Title:   item.Article.Title,
		Journal: item.Article.Journal,
		URL:     item.Article.URL,
		Tags:    []string{},
	}
	if rec := item.Record; rec != nil {
		res.Category = rec.Classification.Category
		res.Relevant = rec.Decision.IsRelevant
		res.Score = rec.RankingScore()
		res.Breakdown = rec.Classification.Breakdown
		res.Reason = rec.Decision.Reason
		res.BottomLine = rec.Classification.ClinicalBottomLine
		if rec.Classification.Tags != nil {
			res.Tags = rec.Classification.Tags
		}
	}
	return res
}
