package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MedArticles/internal/domain"
)

type fakeSource struct {
	mu        sync.Mutex
	ids       []string
	searchErr error
	outcomes  []domain.BatchOutcome
	batchSize int
	windows   []domain.DateRange
	fetched   [][]string
}

func (s *fakeSource) Search(_ context.Context, _ []string, window domain.DateRange) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, window)
	return s.ids, s.searchErr
}

func (s *fakeSource) FetchBatch(_ context.Context, ids []string) domain.BatchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.fetched)
	s.fetched = append(s.fetched, ids)
	if n < len(s.outcomes) {
		out := s.outcomes[n]
		out.Requested = len(ids)
		return out
	}
	return domain.BatchOutcome{Requested: len(ids)}
}

func (s *fakeSource) BatchSize() int { return s.batchSize }

type fakeEvaluator struct {
	scores map[string]int
	forced []string
}

func (e *fakeEvaluator) record(a domain.Article, relevant bool) domain.ClassificationRecord {
	score, ok := e.scores[a.PMID]
	if !ok || !relevant {
		return domain.ClassificationRecord{
			Decision:       domain.FilterDecision{IsRelevant: false, Reason: "Does not match"},
			Classification: domain.NeutralClassification(),
		}
	}
	return domain.ClassificationRecord{
		Decision: domain.FilterDecision{IsRelevant: true, Reason: "RCT"},
		Classification: domain.Classification{
			Category:  domain.CategoryCardiology,
			Tags:      []string{"heart failure"},
			Breakdown: domain.ScoreBreakdown{Focus: score},
		},
	}
}

func (e *fakeEvaluator) Evaluate(_ context.Context, a domain.Article) domain.ClassificationRecord {
	return e.record(a, true)
}

func (e *fakeEvaluator) EvaluateForced(_ context.Context, a domain.Article) domain.ClassificationRecord {
	e.forced = append(e.forced, a.PMID)
	rec := e.record(a, true)
	rec.Decision = domain.FilterDecision{IsRelevant: true, Reason: "Submitted for direct classification"}
	return rec
}

type fakeRepository struct {
	latest     time.Time
	hasLatest  bool
	latestErr  error
	storeErr   error
	drop       int
	batches    [][]domain.ScoredArticle
	upserted   map[int64]domain.ClassificationRecord
	upsertFail map[int64]bool
}

func (r *fakeRepository) UpsertArticle(context.Context, domain.Article) (int64, error) { return 1, nil }

func (r *fakeRepository) UpsertClassification(_ context.Context, id int64, rec domain.ClassificationRecord) error {
	if r.upsertFail[id] {
		return errors.New("constraint failed")
	}
	if r.upserted == nil {
		r.upserted = map[int64]domain.ClassificationRecord{}
	}
	r.upserted[id] = rec
	return nil
}

func (r *fakeRepository) StoreBatch(_ context.Context, items []domain.ScoredArticle) (int, error) {
	r.batches = append(r.batches, items)
	if r.storeErr != nil {
		return 0, r.storeErr
	}
	return len(items) - r.drop, nil
}

func (r *fakeRepository) LatestCreatedAt(context.Context) (time.Time, bool, error) {
	return r.latest, r.hasLatest, r.latestErr
}

type recordingObserver struct {
	batches   int
	evaluated int
	finished  []domain.RunSummary
}

func (o *recordingObserver) BatchFetched(domain.BatchOutcome)             { o.batches++ }
func (o *recordingObserver) ArticleEvaluated(domain.ClassificationRecord) { o.evaluated++ }
func (o *recordingObserver) RunFinished(s domain.RunSummary)              { o.finished = append(o.finished, s) }

var fixedNow = time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)

type harness struct {
	source   *fakeSource
	eval     *fakeEvaluator
	repo     *fakeRepository
	catalog  *fakeCatalog
	observer *recordingObserver
	policy   PolicyFactory
}

func newHarness() *harness {
	return &harness{
		source:   &fakeSource{batchSize: 2},
		eval:     &fakeEvaluator{scores: map[string]int{}},
		repo:     &fakeRepository{},
		catalog:  &fakeCatalog{},
		observer: &recordingObserver{},
	}
}

func (h *harness) pipeline() *Pipeline {
	return NewPipeline(PipelineDeps{
		Source:     h.source,
		Evaluator:  h.eval,
		Repository: h.repo,
		Catalog:    h.catalog,
		Observer:   h.observer,
		Journals:   []string{"Lancet"},
		Policy:     h.policy,
		Now:        func() time.Time { return fixedNow },
	})
}

func article(pmid, title string) domain.Article {
	return domain.Article{PMID: pmid, Title: title, Abstract: "abstract", Journal: "Lancet"}
}

func mustRange(t *testing.T, start, end string) domain.DateRange {
	t.Helper()
	r, err := domain.ParseDateRange(start, end)
	require.NoError(t, err)
	return r
}

func TestRunRangeCompletesWithPartialBatchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.ids = []string{"1", "2", "3"}
	h.source.outcomes = []domain.BatchOutcome{
		{Articles: []domain.Article{article("1", "Trial one"), article("2", "Trial two")}, Stats: domain.FilteringStats{TitleFiltered: 1}},
		{Err: errors.New("efetch: 502")},
	}
	h.eval.scores["1"] = 9

	summary := h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/01", "2024/03/07"))

	require.True(t, summary.Success, summary.Error)
	assert.Equal(t, domain.StageDone, summary.State)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "2024/03/01", summary.StartDate)
	assert.Equal(t, "2024/03/07", summary.EndDate)
	assert.Equal(t, 3, summary.ArticlesFound)
	assert.Equal(t, 2, summary.ArticlesCollected)
	assert.Equal(t, 2, summary.ArticlesClassified)
	assert.Equal(t, 1, summary.ArticlesRelevant)
	assert.Equal(t, 2, summary.ArticlesStored)
	assert.Equal(t, 0, summary.StoreFailures)
	assert.Equal(t, 1, summary.BatchesFailed)
	assert.Equal(t, 1, summary.FilteringStats.TitleFiltered)

	require.NotNil(t, summary.Statistics)
	assert.InDelta(t, 9.0, summary.Statistics.AverageScore, 0.001)
	assert.Equal(t, 1, summary.Statistics.HighScoreCount)
	require.Len(t, summary.Statistics.TopArticles, 1)
	assert.Equal(t, "1", summary.Statistics.TopArticles[0].PMID)

	assert.Equal(t, [][]string{{"1", "2"}, {"3"}}, h.source.fetched)
	require.Len(t, h.repo.batches, 1)
	assert.Len(t, h.repo.batches[0], 2)
	assert.Equal(t, 2, h.observer.batches)
	assert.Equal(t, 2, h.observer.evaluated)
	require.Len(t, h.observer.finished, 1)
}

func TestRunRangeInvalidWindow(t *testing.T) {
	t.Parallel()

	h := newHarness()
	summary := h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/07", "2024/03/01"))

	assert.False(t, summary.Success)
	assert.Equal(t, domain.StageFailed, summary.State)
	assert.Equal(t, domain.StageCollecting, summary.FailedStage)
	assert.Contains(t, summary.Error, domain.ErrInvalidRange.Error())
	assert.Empty(t, h.source.windows, "search must not run")
}

func TestRunRangeSearchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.searchErr = errors.New("dial tcp: no route to host")

	summary := h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/01", "2024/03/07"))

	assert.False(t, summary.Success)
	assert.Equal(t, domain.StageCollecting, summary.FailedStage)
	assert.Contains(t, summary.Error, "no route to host")
	assert.Empty(t, h.repo.batches)
	require.Len(t, h.observer.finished, 1)
	assert.False(t, h.observer.finished[0].Success)
}

func TestRunRangeNothingFound(t *testing.T) {
	t.Parallel()

	h := newHarness()
	summary := h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/01", "2024/03/07"))

	assert.True(t, summary.Success)
	assert.Equal(t, domain.StageDone, summary.State)
	assert.Zero(t, summary.ArticlesFound)
	assert.Contains(t, summary.Message, "No new articles found")
	assert.Nil(t, summary.Statistics)
	assert.Empty(t, h.repo.batches)
}

func TestRunRangeEverythingPrefiltered(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.ids = []string{"1", "2"}
	h.source.outcomes = []domain.BatchOutcome{{Stats: domain.FilteringStats{NonResearchFiltered: 2}}}

	summary := h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/01", "2024/03/07"))

	assert.True(t, summary.Success)
	assert.Equal(t, 2, summary.ArticlesFound)
	assert.Zero(t, summary.ArticlesCollected)
	assert.Equal(t, 2, summary.FilteringStats.NonResearchFiltered)
	assert.Empty(t, h.repo.batches)
}

func TestRunRangeStopsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.ids = []string{"1", "2", "3", "4", "5", "6"}
	h.source.outcomes = []domain.BatchOutcome{
		{Err: errors.New("timeout")},
		{Err: errors.New("timeout")},
		{Articles: []domain.Article{article("5", "never reached")}},
	}
	h.policy = StopAfterConsecutiveFailures(2)

	summary := h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/01", "2024/03/07"))

	assert.False(t, summary.Success)
	assert.Equal(t, domain.StageCollecting, summary.FailedStage)
	assert.Equal(t, 2, summary.BatchesFailed)
	assert.Len(t, h.source.fetched, 2)
	assert.Empty(t, h.repo.batches)
}

func TestRunRangeStoreOutcomes(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.ids = []string{"1", "2"}
	h.source.outcomes = []domain.BatchOutcome{{Articles: []domain.Article{article("1", "a"), article("2", "b")}}}
	h.repo.drop = 1

	summary := h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/01", "2024/03/07"))
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.ArticlesStored)
	assert.Equal(t, 1, summary.StoreFailures)

	h = newHarness()
	h.source.ids = []string{"1"}
	h.source.outcomes = []domain.BatchOutcome{{Articles: []domain.Article{article("1", "a")}}}
	h.repo.storeErr = errors.New("database is closed")

	summary = h.pipeline().RunRange(context.Background(), mustRange(t, "2024/03/01", "2024/03/07"))
	assert.False(t, summary.Success)
	assert.Equal(t, domain.StageStoring, summary.FailedStage)
	assert.Equal(t, 1, summary.StoreFailures)
	assert.Contains(t, summary.Error, "database is closed")
}

func TestRunRangeCancelled(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.ids = []string{"1"}
	h.source.outcomes = []domain.BatchOutcome{{Articles: []domain.Article{article("1", "a")}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := h.pipeline().RunRange(ctx, mustRange(t, "2024/03/01", "2024/03/07"))
	assert.False(t, summary.Success)
	assert.Equal(t, domain.StageCollecting, summary.FailedStage)
	assert.Contains(t, summary.Error, context.Canceled.Error())
}

func TestRunWeeklyWindow(t *testing.T) {
	t.Parallel()

	h := newHarness()
	summary := h.pipeline().RunWeekly(context.Background())

	assert.True(t, summary.Success)
	require.Len(t, h.source.windows, 1)
	assert.Equal(t, "2024/03/03:2024/03/10", h.source.windows[0].String())
}

func TestRunSinceLastUpdateWindows(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		repo *fakeRepository
		want string
	}{
		{
			name: "resumes the day after the latest article",
			repo: &fakeRepository{latest: time.Date(2024, time.March, 5, 23, 59, 0, 0, time.UTC), hasLatest: true},
			want: "2024/03/06:2024/03/10",
		},
		{
			name: "empty store uses lookback",
			repo: &fakeRepository{},
			want: "2024/03/03:2024/03/10",
		},
		{
			name: "unreadable store uses lookback",
			repo: &fakeRepository{latestErr: errors.New("no such table")},
			want: "2024/03/03:2024/03/10",
		},
		{
			name: "latest is today",
			repo: &fakeRepository{latest: fixedNow.Add(-time.Hour), hasLatest: true},
			want: "2024/03/10:2024/03/10",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.repo = tc.repo

			summary := h.pipeline().RunSinceLastUpdate(context.Background())

			require.True(t, summary.Success, summary.Error)
			require.Len(t, h.source.windows, 1)
			assert.Equal(t, tc.want, h.source.windows[0].String())
		})
	}
}

func TestProcessSingle(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.outcomes = []domain.BatchOutcome{{Articles: []domain.Article{article("38123456", "Apixaban versus warfarin")}}}
	h.eval.scores["38123456"] = 6

	summary := h.pipeline().ProcessSingle(context.Background(), " https://pubmed.ncbi.nlm.nih.gov/38123456/ ")

	require.True(t, summary.Success, summary.Error)
	assert.Equal(t, [][]string{{"38123456"}}, h.source.fetched)
	assert.Equal(t, []string{"38123456"}, h.eval.forced)
	require.NotNil(t, summary.Article)
	assert.Equal(t, "38123456", summary.Article.PMID)
	assert.Equal(t, 6, summary.Article.Score)
	assert.Equal(t, "Submitted for direct classification", summary.Article.Reason)
	assert.Equal(t, 1, summary.ArticlesStored)
}

func TestProcessSingleFailures(t *testing.T) {
	t.Parallel()

	h := newHarness()
	summary := h.pipeline().ProcessSingle(context.Background(), "not-a-pmid")
	assert.False(t, summary.Success)
	assert.Contains(t, summary.Error, ErrInvalidIdentifier.Error())
	assert.Empty(t, h.source.fetched)

	h = newHarness()
	summary = h.pipeline().ProcessSingle(context.Background(), "123")
	assert.False(t, summary.Success)
	assert.Equal(t, domain.StageCollecting, summary.FailedStage)
	assert.Contains(t, summary.Error, ErrArticleNotFound.Error())

	h = newHarness()
	h.source.outcomes = []domain.BatchOutcome{{Articles: []domain.Article{article("123", "a")}}}
	h.repo.drop = 1
	summary = h.pipeline().ProcessSingle(context.Background(), "123")
	assert.False(t, summary.Success)
	assert.Equal(t, domain.StageStoring, summary.FailedStage)
}

func TestParseIdentifier(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"12345678":                                  "12345678",
		"  987 ":                                    "987",
		"https://pubmed.ncbi.nlm.nih.gov/12345678/": "12345678",
		"https://pubmed.ncbi.nlm.nih.gov/12345678":  "12345678",
		"pubmed.ncbi.nlm.nih.gov/555/?from=search":  "555",
	}
	for in, want := range valid {
		got, err := ParseIdentifier(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "PMC123", "https://example.org/123", "12a4"} {
		_, err := ParseIdentifier(in)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, in)
	}
}

func TestRunStatistics(t *testing.T) {
	t.Parallel()

	scored := func(pmid string, score int, category domain.Category) domain.ScoredArticle {
		return domain.ScoredArticle{
			Article: domain.Article{PMID: pmid, Title: "Title " + pmid + strings.Repeat("x", 90), Journal: "BMJ"},
			Record: &domain.ClassificationRecord{
				Classification: domain.Classification{Category: category, Breakdown: domain.ScoreBreakdown{Focus: score}},
			},
		}
	}
	items := []domain.ScoredArticle{
		scored("1", 3, domain.CategoryCardiology),
		scored("2", 10, domain.CategoryCardiology),
		scored("3", 0, domain.CategoryOther),
		scored("4", 8, domain.CategoryNephrology),
		scored("5", 4, domain.CategoryOncology),
		scored("6", 5, domain.CategoryOncology),
		scored("7", 6, domain.CategoryOncology),
		{Article: domain.Article{PMID: "8"}},
	}

	stats := RunStatistics(items)

	assert.InDelta(t, 6.0, stats.AverageScore, 0.001)
	assert.Equal(t, 2, stats.HighScoreCount)
	assert.Equal(t, map[string]int{"Cardiology": 2, "Other": 1, "Nephrology": 1, "Oncology": 3}, stats.CategoryBreakdown)
	require.Len(t, stats.TopArticles, 5)
	assert.Equal(t, []string{"2", "4", "7", "6", "5"}, []string{
		stats.TopArticles[0].PMID, stats.TopArticles[1].PMID, stats.TopArticles[2].PMID,
		stats.TopArticles[3].PMID, stats.TopArticles[4].PMID,
	})
	assert.Len(t, []rune(stats.TopArticles[0].Title), 83)
	assert.True(t, strings.HasSuffix(stats.TopArticles[0].Title, "..."))

	empty := RunStatistics(nil)
	assert.Zero(t, empty.AverageScore)
	assert.Empty(t, empty.TopArticles)
	assert.NotNil(t, empty.CategoryBreakdown)
}

func TestRunStatisticsRoundsAverage(t *testing.T) {
	t.Parallel()

	items := []domain.ScoredArticle{}
	for i, score := range []int{1, 1, 2} {
		items = append(items, domain.ScoredArticle{
			Article: domain.Article{PMID: string(rune('a' + i))},
			Record:  &domain.ClassificationRecord{Classification: domain.Classification{Breakdown: domain.ScoreBreakdown{Focus: score}}},
		})
	}
	assert.Equal(t, 1.33, RunStatistics(items).AverageScore)
}

func TestStopAfterConsecutiveFailuresResets(t *testing.T) {
	t.Parallel()

	failed := domain.BatchOutcome{Err: errors.New("x")}
	ok := domain.BatchOutcome{}

	policy := StopAfterConsecutiveFailures(2)()
	assert.True(t, policy.Continue(failed))
	assert.True(t, policy.Continue(ok))
	assert.True(t, policy.Continue(failed))
	assert.False(t, policy.Continue(failed))

	always := StopAfterConsecutiveFailures(0)()
	for i := 0; i < 10; i++ {
		assert.True(t, always.Continue(failed))
	}
}

func TestDateWindows(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2024/03/03:2024/03/10", LastNDays(fixedNow, 7).String())
	assert.Equal(t, "2024/03/10:2024/03/10", LastNDays(fixedNow, -1).String())
	assert.Equal(t, "2024/02/29:2024/03/10", SinceLastStored(time.Date(2024, time.February, 28, 12, 0, 0, 0, time.UTC), fixedNow).String())
}
