// Package pathmemory stores the golden threads: minimal successful action
// sequences per goal, plus the sequences known to fail, persisted across
// sessions so a repeated goal can be replayed without consulting the model.
package pathmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
)

const (
	dateLayout = "2006-01-02"
	isoLayout  = time.RFC3339
)

// Memory owns the in-process PathStore and flushes it through its Persistence
// after every mutation. Single-writer: one controller instance at a time.
type Memory struct {
	store   *schemas.PathStore
	persist Persistence
	logger  *zap.Logger
	now     func() time.Time
}

// New loads the persisted document and returns a ready Memory.
func New(persist Persistence, logger *zap.Logger) (*Memory, error) {
	store, err := persist.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load path memory: %w", err)
	}
	return &Memory{
		store:   store,
		persist: persist,
		logger:  logger.Named("path_memory"),
		now:     time.Now,
	}, nil
}

// normalizeKey canonicalizes a goal phrase into a lookup key.
func normalizeKey(goal string) string {
	return strings.Join(strings.Fields(strings.ToLower(goal)), " ")
}

// sortedKeys gives deterministic iteration order, so "first match wins" means
// the same match every run.
func (m *Memory) sortedKeys() []string {
	keys := make([]string, 0, len(m.store.LearnedPaths))
	for k := range m.store.LearnedPaths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get finds a learned path for the goal: exact case-insensitive key match
// first, then the first partial match (substring either way, or a majority of
// the smaller phrase's terms appearing in the other).
func (m *Memory) Get(goal string) (*schemas.LearnedPath, string, bool) {
	key := normalizeKey(goal)
	if path, ok := m.store.LearnedPaths[key]; ok {
		return path, key, true
	}

	queryTerms := strings.Fields(key)
	for _, existing := range m.sortedKeys() {
		if strings.Contains(existing, key) || strings.Contains(key, existing) {
			return m.store.LearnedPaths[existing], existing, true
		}
		if termOverlap(queryTerms, strings.Fields(existing)) {
			return m.store.LearnedPaths[existing], existing, true
		}
	}
	return nil, "", false
}

// termOverlap reports whether a majority of the smaller term set appears in
// the larger one.
func termOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	set := make(map[string]struct{}, len(large))
	for _, t := range large {
		set[t] = struct{}{}
	}
	shared := 0
	for _, t := range small {
		if _, ok := set[t]; ok {
			shared++
		}
	}
	return shared*2 > len(small)
}

// RecordSuccess normalizes the step list into a selector sequence and stores
// it under the goal. An existing entry keeps whichever sequence is shorter;
// the success counter and last-success date always advance. The recorded
// sequence is scrubbed from the failed-set to preserve exclusivity.
func (m *Memory) RecordSuccess(goal string, steps []schemas.NavigationStep, outcome string) error {
	key := normalizeKey(goal)
	selectors, cleaned := normalizeSteps(steps)
	if len(selectors) == 0 {
		m.logger.Debug("Ignoring success with no replayable steps", zap.String("goal", key))
		return nil
	}
	if outcome != "" {
		cleaned[len(cleaned)-1].Result = outcome
	}

	today := m.now().UTC().Format(dateLayout)
	existing, ok := m.store.LearnedPaths[key]
	if !ok {
		m.store.LearnedPaths[key] = &schemas.LearnedPath{
			Selectors:     selectors,
			Steps:         cleaned,
			HumanReadable: humanReadable(cleaned),
			Successes:     1,
			FirstLearned:  today,
			LastSuccess:   today,
		}
	} else {
		// Shorter sequence wins; ties keep the incumbent.
		if len(selectors) < len(existing.Selectors) {
			existing.Selectors = selectors
			existing.Steps = cleaned
			existing.HumanReadable = humanReadable(cleaned)
		}
		existing.Successes++
		existing.LastSuccess = today
	}

	// Scrub both the sequence that just succeeded and the kept one; they
	// differ when an incumbent shorter path won, and a sequence that worked
	// must never linger in the failed-set.
	m.removeFailed(key, selectors)
	m.removeFailed(key, m.store.LearnedPaths[key].Selectors)
	return m.flush()
}

// RecordFailure appends the attempted selector sequence to the goal's
// failed-set, deduplicated. A sequence that is currently the learned path for
// the goal is never recorded as failed.
func (m *Memory) RecordFailure(goal string, selectors []string) error {
	if len(selectors) == 0 {
		return nil
	}
	key := normalizeKey(goal)

	if learned, ok := m.store.LearnedPaths[key]; ok && equalSeq(learned.Selectors, selectors) {
		m.logger.Debug("Not recording learned sequence as failed", zap.String("goal", key))
		return nil
	}
	for _, seq := range m.store.FailedPaths[key] {
		if equalSeq(seq, selectors) {
			return nil
		}
	}
	m.store.FailedPaths[key] = append(m.store.FailedPaths[key], append([]string(nil), selectors...))
	return m.flush()
}

// HasFailed reports whether the exact sequence is already known to fail for
// the goal, so candidate generation can skip it.
func (m *Memory) HasFailed(goal string, selectors []string) bool {
	key := normalizeKey(goal)
	for _, seq := range m.store.FailedPaths[key] {
		if equalSeq(seq, selectors) {
			return true
		}
	}
	return false
}

// FailedFor returns copies of the goal's known-failed selector sequences, so
// exploration can steer the model away from repeating them.
func (m *Memory) FailedFor(goal string) [][]string {
	key := normalizeKey(goal)
	seqs := m.store.FailedPaths[key]
	if len(seqs) == 0 {
		return nil
	}
	out := make([][]string, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, append([]string(nil), seq...))
	}
	return out
}

// ReplayOutcome is what a replay attempt produced.
type ReplayOutcome struct {
	Success bool
	Data    string
	// StepsRun counts the selectors executed before success or abort.
	StepsRun int
	Path     *schemas.LearnedPath
	Key      string
}

// Replay executes the learned selector sequence for the goal against the live
// UI. Any single-step failure aborts immediately; there is no partial credit.
// The caller falls back to exploration from the current UI state, not from
// the start.
func (m *Memory) Replay(ctx context.Context, goal string, driver schemas.Driver) ReplayOutcome {
	path, key, ok := m.Get(goal)
	if !ok {
		return ReplayOutcome{}
	}

	m.logger.Info("Replaying learned path",
		zap.String("goal", normalizeKey(goal)),
		zap.String("matched_key", key),
		zap.Int("steps", len(path.Selectors)))

	for i, selector := range path.Selectors {
		if err := driver.Click(ctx, selector); err != nil {
			m.logger.Warn("Replay step failed, aborting replay",
				zap.Int("step", i), zap.String("selector", selector), zap.Error(err))
			return ReplayOutcome{StepsRun: i, Path: path, Key: key}
		}
	}

	data := ""
	if len(path.Steps) > 0 {
		data = path.Steps[len(path.Steps)-1].Result
	}
	return ReplayOutcome{Success: true, Data: data, StepsRun: len(path.Selectors), Path: path, Key: key}
}

// Learned returns the learned path map for inspection (tests, reporting).
func (m *Memory) Learned() map[string]*schemas.LearnedPath { return m.store.LearnedPaths }

// Failed returns the failed-set map for inspection.
func (m *Memory) Failed() map[string][][]string { return m.store.FailedPaths }

func (m *Memory) removeFailed(key string, selectors []string) {
	seqs := m.store.FailedPaths[key]
	kept := seqs[:0]
	for _, seq := range seqs {
		if !equalSeq(seq, selectors) {
			kept = append(kept, seq)
		}
	}
	if len(kept) == 0 {
		delete(m.store.FailedPaths, key)
	} else {
		m.store.FailedPaths[key] = kept
	}
}

func (m *Memory) flush() error {
	m.store.LastUpdated = m.now().UTC().Format(isoLayout)
	if err := m.persist.Save(m.store); err != nil {
		return fmt.Errorf("failed to persist path memory: %w", err)
	}
	return nil
}

// normalizeSteps keeps only replayable steps (those with a selector) and
// pairs the selector list with the retained steps, preserving the
// len(selectors) == len(steps) invariant.
func normalizeSteps(steps []schemas.NavigationStep) ([]string, []schemas.NavigationStep) {
	var selectors []string
	var kept []schemas.NavigationStep
	for _, step := range steps {
		if step.Selector == "" {
			continue
		}
		selectors = append(selectors, step.Selector)
		kept = append(kept, step)
	}
	return selectors, kept
}

// humanReadable derives a display label from element text where available,
// falling back to a cleaned selector fragment.
func humanReadable(steps []schemas.NavigationStep) string {
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		label := strings.TrimSpace(step.ElementText)
		if label == "" {
			label = cleanSelector(step.Selector)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " > ")
}

// cleanSelector strips structural noise from a CSS selector for display.
func cleanSelector(selector string) string {
	s := selector
	if idx := strings.LastIndex(s, ">"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return s
}

func equalSeq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
