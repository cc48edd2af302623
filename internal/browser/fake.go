package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// FakeDriver is an in-memory Driver for tests: a tiny site modeled as named
// pages with selector-keyed transitions. All methods are safe for the
// single-writer access pattern the agent uses.
type FakeDriver struct {
	mu sync.Mutex

	// Pages maps page id to its snapshot.
	Pages map[string]schemas.PageSnapshot
	// Transitions maps "pageID|selector" to the destination page id.
	Transitions map[string]string
	// FailSelectors makes specific selectors error on click.
	FailSelectors map[string]bool
	// EvalResults maps script text to its canned result.
	EvalResults map[string]string

	StartID   string
	currentID string
	history   []string

	ClickLog   []string
	TypeLog    []string
	ResetCalls int
	Shots      int
}

// NewFakeDriver builds a fake positioned on the start page.
func NewFakeDriver(startID string, pages map[string]schemas.PageSnapshot) *FakeDriver {
	return &FakeDriver{
		Pages:         pages,
		Transitions:   make(map[string]string),
		FailSelectors: make(map[string]bool),
		EvalResults:   make(map[string]string),
		StartID:       startID,
		currentID:     startID,
	}
}

// Wire adds a click transition from one page to another.
func (f *FakeDriver) Wire(fromID, selector, toID string) *FakeDriver {
	f.Transitions[fromID+"|"+selector] = toID
	return f
}

// CurrentID reports the page the fake is on.
func (f *FakeDriver) CurrentID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentID
}

func (f *FakeDriver) Snapshot(ctx context.Context) (schemas.PageSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.Pages[f.currentID]
	if !ok {
		return schemas.PageSnapshot{}, fmt.Errorf("fake driver has no page %q", f.currentID)
	}
	return snap, nil
}

func (f *FakeDriver) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClickLog = append(f.ClickLog, selector)

	if f.FailSelectors[selector] {
		return fmt.Errorf("element not found: %s", selector)
	}
	if to, ok := f.Transitions[f.currentID+"|"+selector]; ok {
		f.history = append(f.history, f.currentID)
		f.currentID = to
		return nil
	}
	// Validate against the current page so unknown selectors fail like a
	// real driver would.
	snap, ok := f.Pages[f.currentID]
	if !ok {
		return fmt.Errorf("fake driver has no page %q", f.currentID)
	}
	for _, el := range snap.Elements {
		if el.Selector == selector {
			return nil // a click that goes nowhere
		}
	}
	return fmt.Errorf("element not found: %s", selector)
}

func (f *FakeDriver) ClickByText(ctx context.Context, text string) error {
	f.mu.Lock()
	snap, ok := f.Pages[f.currentID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("fake driver has no page %q", f.currentID)
	}
	el, found := snap.ElementByText(text)
	if !found {
		return fmt.Errorf("no visible element contains %q", text)
	}
	return f.Click(ctx, el.Selector)
}

func (f *FakeDriver) Type(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSelectors[selector] {
		return fmt.Errorf("element not found: %s", selector)
	}
	f.TypeLog = append(f.TypeLog, selector+"="+text)
	return nil
}

func (f *FakeDriver) Scroll(ctx context.Context, dir schemas.ScrollDirection) error { return nil }

func (f *FakeDriver) Back(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return fmt.Errorf("no history to go back to")
	}
	f.currentID = f.history[len(f.history)-1]
	f.history = f.history[:len(f.history)-1]
	return nil
}

func (f *FakeDriver) CloseOverlay(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.Pages[f.currentID]
	snap.ModalOpen = false
	f.Pages[f.currentID] = snap
	return nil
}

func (f *FakeDriver) ExpandAll(ctx context.Context) error { return nil }

func (f *FakeDriver) Evaluate(ctx context.Context, script string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if result, ok := f.EvalResults[script]; ok {
		return result, nil
	}
	return "", nil
}

func (f *FakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Shots++
	return []byte("png:" + f.currentID), nil
}

func (f *FakeDriver) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetCalls++
	f.currentID = f.StartID
	f.history = nil
	return nil
}

var _ schemas.Driver = (*FakeDriver)(nil)
