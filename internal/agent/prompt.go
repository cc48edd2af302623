package agent

import (
	"fmt"
	"strings"

	"github.com/waypointlabs/waypoint/api/schemas"
)

const systemPromptTemplate = `You are a navigation agent operating a web UI on behalf of a user.

GOAL: %s

Each turn you receive the current page state. Respond with one or more tool
calls, one per line, in plain function-call syntax, e.g.:
  click(element_id=3)
  collect("Oil capacity", "5.5 qt")
Rules:
- Address elements by their numeric [id] from the page listing.
- Store data with collect/extract_data BEFORE navigating away from it.
- When the goal is fully answered, call extract_data(data="...", complete=true) or done("summary").
- If you are stuck or the goal is impossible, call give_up("reason").
- If you need a decision from the user, call ask_user(question="...", options=[...]).`

// buildSystemPrompt renders the session preamble. The note carries progress
// across context resets; failed holds selector sequences already known not to
// reach this goal, so the model does not spend turns rediscovering them.
func buildSystemPrompt(goal, note string, failed [][]string) string {
	prompt := fmt.Sprintf(systemPromptTemplate, goal)
	if note != "" {
		prompt += "\n\nPROGRESS SO FAR: " + note
	}
	if len(failed) > 0 {
		var b strings.Builder
		b.WriteString("\n\nPREVIOUSLY FAILED PATHS (these exact click sequences did not reach the goal; try something else):")
		for _, seq := range failed {
			b.WriteString("\n  - " + strings.Join(seq, " > "))
		}
		prompt += b.String()
	}
	return prompt
}

// renderSnapshot flattens a page snapshot into the per-turn observation text.
func renderSnapshot(snap schemas.PageSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PAGE: %s\n", snap.URL)
	if snap.ModalOpen {
		b.WriteString("A modal overlay is open; close_overlay() dismisses it.\n")
	}
	b.WriteString("ELEMENTS:\n")
	for _, el := range snap.Elements {
		text := strings.TrimSpace(el.Text)
		if len(text) > 120 {
			text = text[:120] + "…"
		}
		fmt.Fprintf(&b, "  [%d] <%s> %s\n", el.ID, el.Tag, text)
	}
	return b.String()
}

// renderResults summarizes a turn's tool outcomes for the next model turn.
func renderResults(results []schemas.ToolResult) string {
	if len(results) == 0 {
		return ""
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s -> %s", r.ToolName, r.Message))
	}
	return "RESULTS:\n" + strings.Join(lines, "\n")
}

// surrenderPhrases flag a free-text reply with no tool calls as the model
// declining the goal rather than misformatting a call.
var surrenderPhrases = []string{
	"i cannot",
	"i can't",
	"i am unable",
	"i'm unable",
	"unable to",
	"not possible",
	"cannot be done",
	"give up",
	"no way to",
}

func isSurrender(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range surrenderPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
