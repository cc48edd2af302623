package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointlabs/waypoint/api/schemas"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "cooling-circuit", sanitizeFilename("Cooling Circuit"))
	assert.Equal(t, "fig-1-2", sanitizeFilename("  Fig 1/2! "))
	assert.Equal(t, "", sanitizeFilename("???"))
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	err := writeArtifacts(dir, []schemas.Artifact{
		{Label: "Cooling Circuit", MIME: "image/png", Data: []byte("png-bytes")},
		{Label: "", MIME: "text/plain", Data: []byte("svg source")},
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "01-cooling-circuit.png", entries[0].Name())
	assert.Equal(t, "02-artifact-2.txt", entries[1].Name())
}

func newBufferedCmd() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	c := &cobra.Command{}
	c.SetOut(buf)
	return c, buf
}

func TestPrintResultText(t *testing.T) {
	c, buf := newBufferedCmd()
	err := printResult(c, schemas.SessionResult{
		Success:    true,
		Data:       "5.5 qt",
		Steps:      2,
		TokensUsed: &schemas.TokenUsage{Prompt: 100, Completion: 40, Total: 140},
	}, false)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SUCCESS in 2 steps")
	assert.Contains(t, out, "5.5 qt")
	assert.Contains(t, out, "100 prompt / 40 completion")
}

func TestPrintResultFailure(t *testing.T) {
	c, buf := newBufferedCmd()
	err := printResult(c, schemas.SessionResult{Success: false, Steps: 3, Reason: "loop detected"}, false)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "FAILED after 3 steps: loop detected")
}

func TestPrintResultJSONOmitsImageBytes(t *testing.T) {
	c, buf := newBufferedCmd()
	err := printResult(c, schemas.SessionResult{
		Success: true,
		Data:    "done",
		Images:  []schemas.Artifact{{Label: "diagram", Data: []byte("huge")}},
	}, true)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"success": true`)
	assert.NotContains(t, buf.String(), "huge")
}

func TestPathsCommandEmptyStore(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("memory.file", filepath.Join(t.TempDir(), "paths.json"))

	c := newPathsCmd()
	buf := &bytes.Buffer{}
	c.SetOut(buf)
	c.SetArgs([]string{})
	require.NoError(t, c.Execute())
	assert.Contains(t, buf.String(), "no learned paths")
}

func TestNavigateCommandRequiresGoal(t *testing.T) {
	c := newNavigateCmd()
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{})
	assert.Error(t, c.Execute())
}
