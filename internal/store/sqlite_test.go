package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factharbor/verify-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Acme shipped its product in March 2024.", model.VariantStandard)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	result := &model.AnalysisResult{
		RunID: run.ID,
		Verdicts: []model.ClaimVerdict{
			{ClaimID: "c1", ClaimText: "Acme shipped in March 2024", TruthPercentage: 85, Confidence: 60},
		},
		RecencyPenalty: 4,
	}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.Verdicts, 1)
	assert.Equal(t, "c1", got.Result.Verdicts[0].ClaimID)
	assert.InDelta(t, 4.0, got.Result.RecencyPenalty, 1e-9)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "some claim text goes here", model.VariantDeep)
	require.NoError(t, err)

	require.NoError(t, st.FailRun(ctx, run.ID, "provider unavailable"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "provider unavailable", got.Error)
	assert.Equal(t, model.VariantDeep, got.Variant)
	assert.Nil(t, got.Result)
}

func TestSQLite_UpdateMissingRun(t *testing.T) {
	st := newTestStore(t)

	err := st.UpdateRunStatus(context.Background(), "no-such-run", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_StatusFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx, "claim one for the listing", model.VariantStandard)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "claim two for the listing", model.VariantStandard)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, r1.ID, model.RunStatusRunning))

	queued, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusQueued})
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_SourceCache_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	score := 80.0
	src := model.FetchedSource{
		ID:               "s1",
		URL:              "https://news.example.com/article",
		Title:            "Acme ships",
		FullText:         "Acme shipped its flagship product in March 2024.",
		TrackRecordScore: &score,
		FetchedAt:        time.Now().UTC().Truncate(time.Second),
		Category:         model.SourceWebSearch,
		FetchSuccess:     true,
	}
	require.NoError(t, st.SetCachedSource(ctx, src, time.Hour))

	got, err := st.GetCachedSource(ctx, src.URL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, src.Title, got.Title)
	assert.InDelta(t, 0.8, got.Reliability(), 1e-9)
}

func TestSQLite_SourceCache_MissReturnsNil(t *testing.T) {
	st := newTestStore(t)

	got, err := st.GetCachedSource(context.Background(), "https://never-fetched.example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_SourceCache_ExpiredEntrySkipped(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	src := model.FetchedSource{ID: "s1", URL: "https://stale.example.com", FetchSuccess: true}
	require.NoError(t, st.SetCachedSource(ctx, src, -time.Minute))

	got, err := st.GetCachedSource(ctx, src.URL)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := st.DeleteExpiredSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
