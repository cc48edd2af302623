package schemas

import "context"

// -- Model Gateway --

// GenerationRequest carries everything the model needs for one completion turn.
type GenerationRequest struct {
	SystemPrompt string    `json:"system_prompt"`
	Messages     []Message `json:"messages"`
	Tools        []ToolDef `json:"tool_schema,omitempty"`
}

// GenerationResult is the gateway's answer. The gateway never propagates a raw
// transport error to its caller; when retries are exhausted the result carries
// Err and a short degraded Text instead.
type GenerationResult struct {
	Text  string     `json:"raw_text"`
	Usage TokenUsage `json:"usage"`
	Err   string     `json:"error,omitempty"`
}

// Failed reports whether this result represents an exhausted gateway call.
func (r GenerationResult) Failed() bool { return r.Err != "" }

// LLMClient is the transport-level completion client wrapped by the gateway.
// Implementations retry transient overload internally; a returned error means
// retries were exhausted or the failure was permanent.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// -- UI collaborator --

// ScrollDirection is the coarse scroll vocabulary the model can use.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// Driver is the UI collaborator: the serially-accessed remote browser session
// the agent acts on. Implementations own their own per-action timeouts. All
// methods block until the action settled or failed.
type Driver interface {
	// Snapshot extracts the current page state.
	Snapshot(ctx context.Context) (PageSnapshot, error)
	// Click activates the element addressed by the CSS selector.
	Click(ctx context.Context, selector string) error
	// ClickByText activates the first visible element containing the text.
	ClickByText(ctx context.Context, text string) error
	// Type focuses the element and types the text into it.
	Type(ctx context.Context, selector, text string) error
	// Scroll moves the viewport one page in the given direction.
	Scroll(ctx context.Context, dir ScrollDirection) error
	// Back navigates one page backwards in session history.
	Back(ctx context.Context) error
	// CloseOverlay dismisses the topmost modal/overlay, if any.
	CloseOverlay(ctx context.Context) error
	// ExpandAll expands every collapsed/collapsible node on the page.
	ExpandAll(ctx context.Context) error
	// Evaluate runs a script in the page and returns its text result.
	Evaluate(ctx context.Context, script string) (string, error)
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Reset returns the UI to its canonical start state.
	Reset(ctx context.Context) error
}
