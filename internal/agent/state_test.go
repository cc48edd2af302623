package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waypointlabs/waypoint/api/schemas"
)

func TestFingerprintsRepeatCount(t *testing.T) {
	f := NewFingerprints(4)
	f.Push("click:#a")
	f.Push("click:#b")
	f.Push("click:#a")

	assert.Equal(t, 2, f.RepeatCount("click:#a"))
	assert.Equal(t, 1, f.RepeatCount("click:#b"))
	assert.Equal(t, 0, f.RepeatCount("click:#c"))
	assert.Equal(t, "click:#a", f.Last())
}

func TestFingerprintsEvictsOldest(t *testing.T) {
	f := NewFingerprints(3)
	f.Push("a")
	f.Push("b")
	f.Push("c")
	f.Push("d") // evicts "a"

	assert.Equal(t, 0, f.RepeatCount("a"))
	assert.Equal(t, []string{"b", "c", "d"}, f.Recent())
}

func TestFingerprintsLoopingThreshold(t *testing.T) {
	f := NewFingerprints(8)
	f.Push("click:#x")
	f.Push("click:#x")
	assert.False(t, f.looping("click:#x", 3))
	f.Push("click:#x")
	assert.True(t, f.looping("click:#x", 3))
}

func TestContextResetKeepsFragmentsAndNote(t *testing.T) {
	s := NewSessionState("collect all capacities", 8)
	s.AddStep(ToolClick, "#nav", "Nav", "app://home", "")
	s.Fingerprints.Push("click:#nav")
	s.AddFragment("Oil capacity", "5.5 qt")
	s.AddArtifact(schemas.Artifact{Label: "cooling diagram"})

	s.ContextReset()

	assert.Empty(t, s.Steps)
	assert.Equal(t, 0, s.Fingerprints.RepeatCount("click:#nav"))
	assert.Len(t, s.Fragments, 1, "fragments survive the reset")
	assert.Len(t, s.Artifacts, 1)
	assert.Equal(t, "Already collected: Oil capacity, cooling diagram", s.Note)
}

func TestObserveDispatchCountsUnchangedFailures(t *testing.T) {
	s := NewSessionState("goal", 8)

	assert.Equal(t, 0, s.ObserveDispatch(false, "h1"), "first observation has no prior hash")
	assert.Equal(t, 1, s.ObserveDispatch(false, "h1"))
	assert.Equal(t, 2, s.ObserveDispatch(false, "h1"))
	assert.Equal(t, 0, s.ObserveDispatch(true, "h1"), "success clears the counter")
	assert.Equal(t, 1, s.ObserveDispatch(false, "h1"))
	assert.Equal(t, 0, s.ObserveDispatch(false, "h2"), "page change clears the counter")
}

func TestCombinedData(t *testing.T) {
	s := NewSessionState("goal", 8)
	assert.Equal(t, "", s.CombinedData())

	s.AddFragment("", "5.5 qt")
	assert.Equal(t, "5.5 qt", s.CombinedData(), "single fragment yields bare data")

	s.AddFragment("Coolant", "9.2 qt")
	assert.Equal(t, "5.5 qt\nCoolant: 9.2 qt", s.CombinedData())
}

func TestClickStepsFiltersBreadcrumbs(t *testing.T) {
	s := NewSessionState("goal", 8)
	s.AddStep(ToolClick, "#a", "A", "", "")
	s.AddStep(ToolScroll, "", "down", "", "")
	s.AddStep(ToolClick, "", "by text only", "", "")
	s.AddStep(ToolClick, "#b", "B", "", "")

	assert.Equal(t, []string{"#a", "#b"}, s.Selectors())
}
