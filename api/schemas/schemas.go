package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ValueKind discriminates the variants of a decoded argument Value.
type ValueKind int

const (
	ValueInt ValueKind = iota
	ValueFloat
	ValueStr
	ValueBool
	ValueStrList
)

// Value is the tagged union carried by decoded tool-call arguments. Exactly one
// field is meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind `json:"kind"`
	Int   int64     `json:"int,omitempty"`
	Float float64   `json:"float,omitempty"`
	Str   string    `json:"str,omitempty"`
	Bool  bool      `json:"bool,omitempty"`
	List  []string  `json:"list,omitempty"`
}

func IntValue(i int64) Value     { return Value{Kind: ValueInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, Float: f} }
func StrValue(s string) Value    { return Value{Kind: ValueStr, Str: s} }
func BoolValue(b bool) Value     { return Value{Kind: ValueBool, Bool: b} }
func ListValue(l []string) Value { return Value{Kind: ValueStrList, List: l} }

// String renders the value for breadcrumbs and logs.
func (v Value) String() string {
	switch v.Kind {
	case ValueInt:
		return fmt.Sprintf("%d", v.Int)
	case ValueFloat:
		return fmt.Sprintf("%g", v.Float)
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValueStrList:
		return strings.Join(v.List, ",")
	default:
		return v.Str
	}
}

// ToolInvocation is one decoded, typed instruction. Immutable once decoded.
type ToolInvocation struct {
	Name string           `json:"name"`
	Args map[string]Value `json:"args"`
}

// StrArg returns the string form of an argument, or "" when absent.
func (ti ToolInvocation) StrArg(key string) string {
	if v, ok := ti.Args[key]; ok {
		return v.String()
	}
	return ""
}

// IntArg returns an integer argument. Stringly-typed integers are accepted
// because the model is not reliable about quoting.
func (ti ToolInvocation) IntArg(key string) (int64, bool) {
	v, ok := ti.Args[key]
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case ValueInt:
		return v.Int, true
	case ValueFloat:
		return int64(v.Float), true
	case ValueStr:
		var i int64
		if _, err := fmt.Sscanf(strings.TrimSpace(v.Str), "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

// BoolArg returns a boolean argument, tolerating "true"/"false" strings.
func (ti ToolInvocation) BoolArg(key string) bool {
	v, ok := ti.Args[key]
	if !ok {
		return false
	}
	switch v.Kind {
	case ValueBool:
		return v.Bool
	case ValueStr:
		return strings.EqualFold(strings.TrimSpace(v.Str), "true")
	}
	return false
}

// ListArg returns a string-list argument, or nil when absent.
func (ti ToolInvocation) ListArg(key string) []string {
	if v, ok := ti.Args[key]; ok && v.Kind == ValueStrList {
		return v.List
	}
	return nil
}

// ToolResult is produced exactly once per dispatched invocation.
type ToolResult struct {
	ToolName       string   `json:"tool_name"`
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	NeedsUserInput bool     `json:"needs_user_input,omitempty"`
	Question       string   `json:"question,omitempty"`
	Options        []string `json:"options,omitempty"`
}

// NavigationStep is one breadcrumb entry. Append-only within a session.
type NavigationStep struct {
	Action      string `json:"action"`
	Selector    string `json:"selector"`
	ElementText string `json:"element_text"`
	Context     string `json:"context"`
	Result      string `json:"result"`
}

// LearnedPath is the minimal recorded action sequence that previously achieved
// a goal. Invariant: len(Selectors) == len(Steps).
type LearnedPath struct {
	Selectors     []string         `json:"selectors"`
	Steps         []NavigationStep `json:"steps"`
	HumanReadable string           `json:"human_readable"`
	Successes     int              `json:"successes"`
	FirstLearned  string           `json:"first_learned"`
	LastSuccess   string           `json:"last_success"`
}

// PathStore is the persisted path-memory document.
type PathStore struct {
	LearnedPaths map[string]*LearnedPath `json:"learned_paths"`
	FailedPaths  map[string][][]string   `json:"failed_paths"`
	LastUpdated  string                  `json:"last_updated"`
}

// NewPathStore returns an empty document with both maps allocated.
func NewPathStore() *PathStore {
	return &PathStore{
		LearnedPaths: make(map[string]*LearnedPath),
		FailedPaths:  make(map[string][][]string),
	}
}

// TokenUsage accumulates model token counts across a session.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add folds another usage sample into the counter. Counts only ever grow.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
}

// Message is one turn of conversation context sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolParams describes the argument surface of a tool for the model.
type ToolParams struct {
	Required []string `json:"required"`
	Optional []string `json:"optional"`
}

// ToolDef advertises one tool to the model and to the decoder.
type ToolDef struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  ToolParams `json:"parameters"`
}

// PageElement is one interactable element in a page snapshot.
type PageElement struct {
	ID       int    `json:"id"`
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Selector string `json:"selector"`
}

// PageSnapshot is the UI collaborator's view of the current page.
type PageSnapshot struct {
	URL       string        `json:"url"`
	ModalOpen bool          `json:"modal_open"`
	Elements  []PageElement `json:"elements"`
}

// ElementByID looks up a snapshot element by its numeric id.
func (s PageSnapshot) ElementByID(id int) (PageElement, bool) {
	for _, el := range s.Elements {
		if el.ID == id {
			return el, true
		}
	}
	return PageElement{}, false
}

// ElementByText finds the first element whose text contains the given fragment,
// case-insensitively.
func (s PageSnapshot) ElementByText(text string) (PageElement, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	for _, el := range s.Elements {
		if strings.Contains(strings.ToLower(el.Text), needle) {
			return el, true
		}
	}
	return PageElement{}, false
}

// Hash fingerprints the snapshot so the controller can tell whether a dispatch
// changed anything observable.
func (s PageSnapshot) Hash() string {
	h := sha256.New()
	h.Write([]byte(s.URL))
	if s.ModalOpen {
		h.Write([]byte{1})
	}
	for _, el := range s.Elements {
		fmt.Fprintf(h, "%d|%s|%s|%s;", el.ID, el.Tag, el.Text, el.Selector)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Artifact is a captured binary fragment (typically a screenshot of a diagram).
type Artifact struct {
	Label string `json:"label"`
	MIME  string `json:"mime"`
	Data  []byte `json:"data,omitempty"`
}

// SessionResult is the structured outcome of one navigate() call.
type SessionResult struct {
	Success        bool             `json:"success"`
	Data           string           `json:"data,omitempty"`
	Path           []NavigationStep `json:"path"`
	Steps          int              `json:"steps"`
	Images         []Artifact       `json:"images,omitempty"`
	TokensUsed     *TokenUsage      `json:"tokens_used,omitempty"`
	NeedsUserInput bool             `json:"needs_user_input,omitempty"`
	Question       string           `json:"question,omitempty"`
	Options        []string         `json:"options,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}
