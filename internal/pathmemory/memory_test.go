package pathmemory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
	"github.com/waypointlabs/waypoint/internal/browser"
)

func newTestMemory(t *testing.T) (*Memory, *MemStore) {
	t.Helper()
	store := NewMemStore()
	m, err := New(store, zap.NewNop())
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }
	return m, store
}

func steps(pairs ...string) []schemas.NavigationStep {
	var out []schemas.NavigationStep
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, schemas.NavigationStep{
			Action:      "click",
			Selector:    pairs[i],
			ElementText: pairs[i+1],
		})
	}
	return out
}

func TestRecordSuccessCreatesEntry(t *testing.T) {
	m, store := newTestMemory(t)

	err := m.RecordSuccess("Oil Capacity", steps("#nav-fluids", "Fluids", "#row-oil", "Oil capacity"), "5.5 qt")
	require.NoError(t, err)

	path, key, ok := m.Get("oil capacity")
	require.True(t, ok)
	assert.Equal(t, "oil capacity", key)
	assert.Equal(t, []string{"#nav-fluids", "#row-oil"}, path.Selectors)
	assert.Len(t, path.Steps, len(path.Selectors))
	assert.Equal(t, 1, path.Successes)
	assert.Equal(t, "2026-08-31", path.FirstLearned)
	assert.Equal(t, "Fluids > Oil capacity", path.HumanReadable)
	assert.Equal(t, "5.5 qt", path.Steps[len(path.Steps)-1].Result)
	assert.Equal(t, 1, store.Saves, "flush after every update")
}

func TestRecordSuccessShorterSequenceWins(t *testing.T) {
	m, _ := newTestMemory(t)

	require.NoError(t, m.RecordSuccess("oil capacity",
		steps("#a", "A", "#b", "B", "#c", "C"), "5.5 qt"))
	require.NoError(t, m.RecordSuccess("oil capacity",
		steps("#direct", "Direct"), "5.5 qt"))

	path, _, ok := m.Get("oil capacity")
	require.True(t, ok)
	assert.Equal(t, []string{"#direct"}, path.Selectors)
	assert.Equal(t, 2, path.Successes)

	// A longer rediscovery must not displace the shorter path.
	require.NoError(t, m.RecordSuccess("oil capacity",
		steps("#x", "X", "#y", "Y"), "5.5 qt"))
	path, _, _ = m.Get("oil capacity")
	assert.Equal(t, []string{"#direct"}, path.Selectors)
	assert.Equal(t, 3, path.Successes)
}

func TestPartialMatchFirstWins(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.RecordSuccess("engine oil capacity", steps("#a", "A"), ""))
	require.NoError(t, m.RecordSuccess("hydraulic oil capacity", steps("#b", "B"), ""))

	// Substring match.
	_, key, ok := m.Get("engine oil")
	require.True(t, ok)
	assert.Equal(t, "engine oil capacity", key)

	// Term-overlap match: sorted key order makes "engine oil capacity" first.
	_, key, ok = m.Get("oil capacity spec")
	require.True(t, ok)
	assert.Equal(t, "engine oil capacity", key)

	_, _, ok = m.Get("tire pressure")
	assert.False(t, ok)
}

func TestLearnedAndFailedExclusive(t *testing.T) {
	m, _ := newTestMemory(t)
	seq := []string{"#nav-fluids", "#row-oil"}

	require.NoError(t, m.RecordFailure("oil capacity", seq))
	assert.True(t, m.HasFailed("oil capacity", seq))

	// Success with the same sequence scrubs it from the failed-set.
	require.NoError(t, m.RecordSuccess("oil capacity",
		steps("#nav-fluids", "Fluids", "#row-oil", "Oil"), "5.5 qt"))
	assert.False(t, m.HasFailed("oil capacity", seq))

	// And the learned sequence cannot be re-recorded as failed.
	require.NoError(t, m.RecordFailure("oil capacity", seq))
	assert.False(t, m.HasFailed("oil capacity", seq))

	for key, path := range m.Learned() {
		for _, failed := range m.Failed()[key] {
			assert.False(t, equalSeq(path.Selectors, failed),
				"sequence appears as both learned and failed for %q", key)
		}
	}
}

func TestRecordFailureDeduplicates(t *testing.T) {
	m, _ := newTestMemory(t)
	seq := []string{"#a", "#b"}
	require.NoError(t, m.RecordFailure("oil capacity", seq))
	require.NoError(t, m.RecordFailure("oil capacity", seq))
	assert.Len(t, m.Failed()["oil capacity"], 1)
}

func TestReplayAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	home := schemas.PageSnapshot{URL: "home", Elements: []schemas.PageElement{
		{ID: 0, Text: "Fluids", Selector: "#nav-fluids"},
	}}
	fluids := schemas.PageSnapshot{URL: "fluids", Elements: []schemas.PageElement{
		{ID: 0, Text: "Oil capacity: 5.5 qt", Selector: "#row-oil"},
	}}
	drv := browser.NewFakeDriver("home", map[string]schemas.PageSnapshot{
		"home": home, "fluids": fluids,
	}).Wire("home", "#nav-fluids", "fluids")

	require.NoError(t, m.RecordSuccess("oil capacity",
		steps("#nav-fluids", "Fluids", "#row-oil", "Oil"), "5.5 qt"))

	outcome := m.Replay(ctx, "oil capacity", drv)
	assert.True(t, outcome.Success)
	assert.Equal(t, "5.5 qt", outcome.Data)
	assert.Equal(t, 2, outcome.StepsRun)

	// Identical replay against the reset UI is idempotent.
	require.NoError(t, drv.Reset(ctx))
	again := m.Replay(ctx, "oil capacity", drv)
	assert.Equal(t, outcome.Success, again.Success)
	assert.Equal(t, outcome.Data, again.Data)
	assert.Equal(t, outcome.StepsRun, again.StepsRun)
}

func TestReplayAbortsOnFirstFailure(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	home := schemas.PageSnapshot{URL: "home", Elements: []schemas.PageElement{
		{ID: 0, Text: "Fluids", Selector: "#nav-fluids"},
	}}
	drv := browser.NewFakeDriver("home", map[string]schemas.PageSnapshot{"home": home})
	drv.FailSelectors["#nav-fluids"] = true

	require.NoError(t, m.RecordSuccess("oil capacity",
		steps("#nav-fluids", "Fluids", "#row-oil", "Oil"), "5.5 qt"))

	outcome := m.Replay(ctx, "oil capacity", drv)
	assert.False(t, outcome.Success)
	assert.Equal(t, 0, outcome.StepsRun, "aborts on the first failed step")
	// Only the failing first selector was ever attempted.
	assert.Equal(t, []string{"#nav-fluids"}, drv.ClickLog)
}

func TestReplayUnknownGoal(t *testing.T) {
	m, _ := newTestMemory(t)
	drv := browser.NewFakeDriver("home", map[string]schemas.PageSnapshot{"home": {}})
	outcome := m.Replay(context.Background(), "unknown goal", drv)
	assert.False(t, outcome.Success)
	assert.Nil(t, outcome.Path)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "paths.json")
	fs := NewFileStore(path)

	// Missing file loads as an empty document.
	store, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, store.LearnedPaths)

	store.LearnedPaths["oil capacity"] = &schemas.LearnedPath{
		Selectors:     []string{"#row-oil"},
		Steps:         []schemas.NavigationStep{{Action: "click", Selector: "#row-oil"}},
		HumanReadable: "row oil",
		Successes:     2,
		FirstLearned:  "2026-08-30",
		LastSuccess:   "2026-08-31",
	}
	store.FailedPaths["oil capacity"] = [][]string{{"#bad"}}
	store.LastUpdated = "2026-08-31T12:00:00Z"
	require.NoError(t, fs.Save(store))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Contains(t, loaded.LearnedPaths, "oil capacity")
	assert.Equal(t, 2, loaded.LearnedPaths["oil capacity"].Successes)
	assert.Equal(t, [][]string{{"#bad"}}, loaded.FailedPaths["oil capacity"])

	// No stray temp files survive a save.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paths.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestRecordSuccessScrubsSucceededSequenceDespiteIncumbent(t *testing.T) {
	m, _ := newTestMemory(t)

	require.NoError(t, m.RecordFailure("oil capacity", []string{"#a", "#b"}))
	require.NoError(t, m.RecordSuccess("oil capacity", steps("#direct", "Direct"), "5.5 qt"))
	// The longer sequence succeeds later; the shorter incumbent stays learned.
	require.NoError(t, m.RecordSuccess("oil capacity", steps("#a", "A", "#b", "B"), "5.5 qt"))

	path, _, ok := m.Get("oil capacity")
	require.True(t, ok)
	assert.Equal(t, []string{"#direct"}, path.Selectors, "shorter incumbent wins")
	assert.False(t, m.HasFailed("oil capacity", []string{"#a", "#b"}),
		"a sequence that just succeeded must not stay in the failed-set")
}

func TestFailedForReturnsDetachedCopies(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.RecordFailure("oil capacity", []string{"#a", "#b"}))

	seqs := m.FailedFor("Oil Capacity")
	require.Len(t, seqs, 1)
	assert.Equal(t, []string{"#a", "#b"}, seqs[0])

	seqs[0][0] = "mutated"
	assert.True(t, m.HasFailed("oil capacity", []string{"#a", "#b"}),
		"callers must not be able to corrupt the stored set")
	assert.Empty(t, m.FailedFor("unrelated goal"))
}
