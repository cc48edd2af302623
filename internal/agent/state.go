package agent

import (
	"strings"

	"github.com/google/uuid"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// Fingerprints is a fixed-size ring buffer of canonicalized action
// fingerprints used for loop detection. Not safe for concurrent use; the
// session owns it exclusively.
type Fingerprints struct {
	buf  []string
	next int
	used int
	last string
}

// NewFingerprints builds a ring holding the last size fingerprints.
func NewFingerprints(size int) *Fingerprints {
	if size < 1 {
		size = 1
	}
	return &Fingerprints{buf: make([]string, size)}
}

// Push records one fingerprint, evicting the oldest when full.
func (f *Fingerprints) Push(fp string) {
	f.buf[f.next] = fp
	f.next = (f.next + 1) % len(f.buf)
	if f.used < len(f.buf) {
		f.used++
	}
	f.last = fp
}

// Last returns the most recently pushed fingerprint.
func (f *Fingerprints) Last() string { return f.last }

// RepeatCount reports how many times the fingerprint occurs in the window.
func (f *Fingerprints) RepeatCount(fp string) int {
	count := 0
	for i := 0; i < f.used; i++ {
		if f.buf[i] == fp {
			count++
		}
	}
	return count
}

// Recent returns the fingerprints oldest-first, for prompt context.
func (f *Fingerprints) Recent() []string {
	out := make([]string, 0, f.used)
	start := f.next - f.used
	for i := 0; i < f.used; i++ {
		idx := (start + i + len(f.buf)) % len(f.buf)
		out = append(out, f.buf[idx])
	}
	return out
}

// Reset clears the window.
func (f *Fingerprints) Reset() {
	for i := range f.buf {
		f.buf[i] = ""
	}
	f.next = 0
	f.used = 0
	f.last = ""
}

// looping is the pure loop-detection predicate over the window.
func (f *Fingerprints) looping(fp string, threshold int) bool {
	return f.RepeatCount(fp) >= threshold
}

// SessionState carries everything one navigate() invocation accumulates. It
// is owned exclusively by the controller and discarded at session end, except
// across an ask_user suspension, where it is preserved for Resume.
type SessionState struct {
	ID   string
	Goal string

	// Steps is the append-only breadcrumb trail.
	Steps []schemas.NavigationStep
	// Fingerprints is the recent-click window for loop detection.
	Fingerprints *Fingerprints

	Fragments []Fragment
	Artifacts []schemas.Artifact
	Usage     schemas.TokenUsage

	// StepCount counts model turns consumed, bounded by the hard ceiling.
	StepCount int

	// Note survives context resets: a one-line memory of progress so far.
	Note string
	// UserAnswer holds the reply supplied through Resume.
	UserAnswer string

	// lastHash and staleFailures drive the unchanged-snapshot dead-end check.
	lastHash      string
	staleFailures int
}

// NewSessionState creates the state for one navigate() call.
func NewSessionState(goal string, fingerprintWindow int) *SessionState {
	return &SessionState{
		ID:           uuid.New().String()[:8],
		Goal:         goal,
		Fingerprints: NewFingerprints(fingerprintWindow),
	}
}

// AddStep appends a breadcrumb.
func (s *SessionState) AddStep(action, selector, elementText, context, result string) {
	s.Steps = append(s.Steps, schemas.NavigationStep{
		Action:      action,
		Selector:    selector,
		ElementText: elementText,
		Context:     context,
		Result:      result,
	})
}

// AddFragment stores one labeled data fragment.
func (s *SessionState) AddFragment(label, data string) {
	s.Fragments = append(s.Fragments, Fragment{Label: label, Data: data})
}

// AddArtifact stores one captured artifact.
func (s *SessionState) AddArtifact(a schemas.Artifact) {
	s.Artifacts = append(s.Artifacts, a)
}

// ContextReset discards breadcrumbs and fingerprint history while keeping a
// compact note of what was already collected, bounding context growth across
// multi-item goals. Fragments and artifacts are retained.
func (s *SessionState) ContextReset() {
	labels := make([]string, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		labels = append(labels, f.Label)
	}
	for _, a := range s.Artifacts {
		labels = append(labels, a.Label)
	}
	if len(labels) > 0 {
		s.Note = "Already collected: " + strings.Join(labels, ", ")
	}
	s.Steps = nil
	s.Fingerprints.Reset()
	s.lastHash = ""
	s.staleFailures = 0
}

// ObserveDispatch updates the unchanged-snapshot counter: a failed dispatch
// that leaves the page hash untouched counts toward the dead-end limit, and
// any change or success clears it.
func (s *SessionState) ObserveDispatch(success bool, snapshotHash string) int {
	if !success && snapshotHash != "" && snapshotHash == s.lastHash {
		s.staleFailures++
	} else {
		s.staleFailures = 0
	}
	s.lastHash = snapshotHash
	return s.staleFailures
}

// ClickSteps extracts the replayable click breadcrumbs for path learning.
func (s *SessionState) ClickSteps() []schemas.NavigationStep {
	var out []schemas.NavigationStep
	for _, step := range s.Steps {
		if step.Action == ToolClick && step.Selector != "" {
			out = append(out, step)
		}
	}
	return out
}

// Selectors returns the click selector sequence attempted this session.
func (s *SessionState) Selectors() []string {
	steps := s.ClickSteps()
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, step.Selector)
	}
	return out
}

// CombinedData folds stored fragments into the session result data string. A
// single fragment yields its bare data; multiple fragments are labeled lines.
func (s *SessionState) CombinedData() string {
	switch len(s.Fragments) {
	case 0:
		return ""
	case 1:
		return s.Fragments[0].Data
	}
	lines := make([]string, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		if f.Label != "" {
			lines = append(lines, f.Label+": "+f.Data)
		} else {
			lines = append(lines, f.Data)
		}
	}
	return strings.Join(lines, "\n")
}
