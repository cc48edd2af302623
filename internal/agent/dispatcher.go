package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// Dispatcher maps decoded tool invocations onto the UI collaborator and the
// session state. Every invocation yields exactly one ToolResult; a failure is
// reported in the result, never as a panic or a dropped call.
type Dispatcher struct {
	driver schemas.Driver
	logger *zap.Logger
}

// NewDispatcher builds a dispatcher over the given driver.
func NewDispatcher(driver schemas.Driver, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		driver: driver,
		logger: logger.Named("dispatcher"),
	}
}

// Dispatch executes one invocation against the current snapshot, recording
// breadcrumbs and fragments on the session state as side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, inv schemas.ToolInvocation, snap schemas.PageSnapshot, state *SessionState) schemas.ToolResult {
	switch inv.Name {
	case ToolClick:
		return d.dispatchClick(ctx, inv, snap, state)
	case ToolTypeText:
		return d.dispatchType(ctx, inv, snap, state)
	case ToolScroll:
		return d.dispatchScroll(ctx, inv, state)
	case ToolGoBack:
		return d.simple(ctx, inv.Name, state, d.driver.Back, "Navigated back.")
	case ToolCloseOverlay:
		return d.simple(ctx, inv.Name, state, d.driver.CloseOverlay, "Overlay closed.")
	case ToolExpandAll:
		return d.simple(ctx, inv.Name, state, d.driver.ExpandAll, "Expanded all sections.")
	case ToolCollect:
		return d.dispatchCollect(inv, state)
	case ToolExtractData:
		return d.dispatchExtract(inv, state)
	case ToolCaptureDiagram:
		return d.dispatchCapture(ctx, inv, state)
	case ToolAskUser:
		return d.dispatchAskUser(inv, state)
	case ToolDone:
		return schemas.ToolResult{ToolName: inv.Name, Success: true, Message: inv.StrArg("summary")}
	case ToolGiveUp:
		return schemas.ToolResult{ToolName: inv.Name, Success: true, Message: inv.StrArg("reason")}
	default:
		return failure(inv.Name, fmt.Sprintf("unknown tool %q", inv.Name))
	}
}

// resolveTarget turns click/type addressing (numeric id or visible text) into
// a concrete snapshot element.
func resolveTarget(inv schemas.ToolInvocation, snap schemas.PageSnapshot) (schemas.PageElement, bool) {
	if id, ok := inv.IntArg("element_id"); ok {
		return snap.ElementByID(int(id))
	}
	if text := inv.StrArg("text"); text != "" {
		return snap.ElementByText(text)
	}
	if sel := inv.StrArg("selector"); sel != "" {
		for _, el := range snap.Elements {
			if el.Selector == sel {
				return el, true
			}
		}
		// A selector the snapshot does not know is still actionable.
		return schemas.PageElement{Selector: sel}, true
	}
	return schemas.PageElement{}, false
}

func (d *Dispatcher) dispatchClick(ctx context.Context, inv schemas.ToolInvocation, snap schemas.PageSnapshot, state *SessionState) schemas.ToolResult {
	el, ok := resolveTarget(inv, snap)
	if !ok {
		// Last resort: click by the raw text even when the snapshot missed it.
		if text := inv.StrArg("text"); text != "" {
			if err := d.driver.ClickByText(ctx, text); err != nil {
				return failure(inv.Name, fmt.Sprintf("no element matching %q: %v", text, err))
			}
			state.AddStep(ToolClick, "", text, snap.URL, "")
			state.Fingerprints.Push(fingerprint(ToolClick, text))
			return schemas.ToolResult{ToolName: inv.Name, Success: true, Message: fmt.Sprintf("Clicked %q.", text)}
		}
		return failure(inv.Name, "no element_id or text given, or element not on page")
	}

	if err := d.driver.Click(ctx, el.Selector); err != nil {
		d.logger.Debug("Click failed", zap.String("selector", el.Selector), zap.Error(err))
		return failure(inv.Name, fmt.Sprintf("click %s: %v", describe(el), err))
	}
	state.AddStep(ToolClick, el.Selector, el.Text, snap.URL, "")
	state.Fingerprints.Push(fingerprint(ToolClick, el.Selector))
	return schemas.ToolResult{ToolName: inv.Name, Success: true, Message: fmt.Sprintf("Clicked %s.", describe(el))}
}

func (d *Dispatcher) dispatchType(ctx context.Context, inv schemas.ToolInvocation, snap schemas.PageSnapshot, state *SessionState) schemas.ToolResult {
	text := inv.StrArg("text")
	el, ok := resolveTarget(inv, snap)
	if !ok {
		return failure(inv.Name, "no input element addressed")
	}
	if err := d.driver.Type(ctx, el.Selector, text); err != nil {
		return failure(inv.Name, fmt.Sprintf("type into %s: %v", describe(el), err))
	}
	state.AddStep(ToolTypeText, el.Selector, el.Text, snap.URL, "")
	state.Fingerprints.Push(fingerprint(ToolTypeText, el.Selector+"|"+text))
	return schemas.ToolResult{ToolName: inv.Name, Success: true, Message: fmt.Sprintf("Typed into %s.", describe(el))}
}

func (d *Dispatcher) dispatchScroll(ctx context.Context, inv schemas.ToolInvocation, state *SessionState) schemas.ToolResult {
	dir := schemas.ScrollDirection(strings.ToLower(inv.StrArg("direction")))
	if dir != schemas.ScrollUp {
		dir = schemas.ScrollDown
	}
	if err := d.driver.Scroll(ctx, dir); err != nil {
		return failure(inv.Name, fmt.Sprintf("scroll %s: %v", dir, err))
	}
	state.AddStep(ToolScroll, "", string(dir), "", "")
	return schemas.ToolResult{ToolName: inv.Name, Success: true, Message: fmt.Sprintf("Scrolled %s.", dir)}
}

func (d *Dispatcher) simple(ctx context.Context, name string, state *SessionState, fn func(context.Context) error, okMsg string) schemas.ToolResult {
	if err := fn(ctx); err != nil {
		return failure(name, err.Error())
	}
	state.AddStep(name, "", "", "", "")
	return schemas.ToolResult{ToolName: name, Success: true, Message: okMsg}
}

func (d *Dispatcher) dispatchCollect(inv schemas.ToolInvocation, state *SessionState) schemas.ToolResult {
	label := strings.TrimSpace(inv.StrArg("label"))
	data := inv.StrArg("data")
	if data == "" {
		return failure(inv.Name, "collect requires non-empty data")
	}
	state.AddFragment(label, data)
	d.logger.Info("Collected fragment", zap.String("label", label), zap.Int("bytes", len(data)))
	return schemas.ToolResult{ToolName: inv.Name, Success: true,
		Message: fmt.Sprintf("Stored %q (%d chars).", label, len(data))}
}

func (d *Dispatcher) dispatchExtract(inv schemas.ToolInvocation, state *SessionState) schemas.ToolResult {
	data := inv.StrArg("data")
	if data == "" {
		return failure(inv.Name, "extract_data requires non-empty data")
	}
	state.AddFragment("", data)
	return schemas.ToolResult{ToolName: inv.Name, Success: true,
		Message: fmt.Sprintf("Extracted %d chars.", len(data))}
}

func (d *Dispatcher) dispatchCapture(ctx context.Context, inv schemas.ToolInvocation, state *SessionState) schemas.ToolResult {
	desc := strings.TrimSpace(inv.StrArg("description"))

	// A bulk call may carry the diagram source inline; store it as text.
	if data := inv.StrArg("data"); data != "" {
		state.AddArtifact(schemas.Artifact{Label: desc, MIME: "text/plain", Data: []byte(data)})
		return schemas.ToolResult{ToolName: inv.Name, Success: true,
			Message: fmt.Sprintf("Captured source for %q.", desc)}
	}

	png, err := d.driver.Screenshot(ctx)
	if err != nil {
		return failure(inv.Name, fmt.Sprintf("screenshot: %v", err))
	}
	state.AddArtifact(schemas.Artifact{Label: desc, MIME: "image/png", Data: png})
	d.logger.Info("Captured diagram", zap.String("description", desc), zap.Int("bytes", len(png)))
	return schemas.ToolResult{ToolName: inv.Name, Success: true,
		Message: fmt.Sprintf("Captured %q (%d bytes).", desc, len(png))}
}

func (d *Dispatcher) dispatchAskUser(inv schemas.ToolInvocation, state *SessionState) schemas.ToolResult {
	question := strings.TrimSpace(inv.StrArg("question"))
	if question == "" {
		return failure(inv.Name, "ask_user requires a question")
	}
	return schemas.ToolResult{
		ToolName:       inv.Name,
		Success:        true,
		Message:        "Waiting for user input.",
		NeedsUserInput: true,
		Question:       question,
		Options:        inv.ListArg("options"),
	}
}

// fingerprint canonicalizes one navigation action for the loop-detection
// window.
func fingerprint(action, target string) string {
	return action + ":" + strings.ToLower(strings.TrimSpace(target))
}

func describe(el schemas.PageElement) string {
	if strings.TrimSpace(el.Text) != "" {
		return fmt.Sprintf("%q", strings.TrimSpace(el.Text))
	}
	return el.Selector
}

func failure(tool, msg string) schemas.ToolResult {
	return schemas.ToolResult{ToolName: tool, Success: false, Message: "FAILED: " + msg}
}
