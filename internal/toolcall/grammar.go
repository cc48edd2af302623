package toolcall

import (
	"strconv"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// GrammarKind identifies one per-tool argument shape.
type GrammarKind int

const (
	// GrammarNone accepts an empty argument list.
	GrammarNone GrammarKind = iota
	// GrammarBareInt accepts a single unquoted integer.
	GrammarBareInt
	// GrammarIntThenStr accepts an integer followed by a string.
	GrammarIntThenStr
	// GrammarTwoStr accepts two quoted strings.
	GrammarTwoStr
	// GrammarSingleStr accepts a single quoted literal.
	GrammarSingleStr
	// GrammarKeyValues accepts key=value pairs; values may be quoted strings,
	// bare words, numbers, booleans, or [list] literals.
	GrammarKeyValues
	// GrammarJSON accepts a single JSON object.
	GrammarJSON
)

// Grammar binds a kind to the argument names its positions map onto.
type Grammar struct {
	Kind GrammarKind
	Keys []string
}

// ToolSpec describes one tool the decoder knows how to recover.
type ToolSpec struct {
	Name string
	// Grammars are tried in order; the first that parses wins.
	Grammars []Grammar
	// BulkText marks tools whose second argument may be a multi-line
	// triple-quoted payload, matched closed-form before general scanning.
	BulkText bool
	// BulkKeys names the label and payload arguments of a bulk-text call.
	BulkKeys [2]string
	// TruncationKey receives the partial payload when a call is cut off
	// mid-generation. Empty disables truncation recovery for the tool.
	TruncationKey string
}

// piece is one comma-separated argument, possibly keyed.
type piece struct {
	key    string
	val    schemas.Value
	quoted bool
}

// splitTopLevel splits the raw argument text on commas that are outside string
// literals and outside [list] brackets.
func splitTopLevel(args string) []string {
	var parts []string
	var start int
	inString := false
	var quote byte
	escaped := false
	bracketDepth := 0
	parenDepth := 0

	for i := 0; i < len(args); i++ {
		c := args[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '[':
			bracketDepth++
		case ']':
			bracketDepth--
		case '(':
			parenDepth++
		case ')':
			parenDepth--
		case ',':
			if bracketDepth == 0 && parenDepth == 0 {
				parts = append(parts, args[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, args[start:])
	return parts
}

// parsePieces tokenizes a raw argument string into keyed or positional pieces.
// An unparseable piece fails the whole list.
func parsePieces(args string) ([]piece, bool) {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil, true
	}

	var pieces []piece
	for _, part := range splitTopLevel(args) {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, false
		}

		key := ""
		if eq := topLevelEquals(part); eq >= 0 {
			candidate := strings.TrimSpace(part[:eq])
			if isIdentifier(candidate) {
				key = candidate
				part = strings.TrimSpace(part[eq+1:])
			}
		}

		val, quoted, ok := parseValue(part)
		if !ok {
			return nil, false
		}
		pieces = append(pieces, piece{key: key, val: val, quoted: quoted})
	}
	return pieces, true
}

// topLevelEquals finds the first '=' outside any string literal, or -1.
func topLevelEquals(s string) int {
	inString := false
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '=':
			return i
		}
	}
	return -1
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return true
}

// parseValue interprets one argument literal.
func parseValue(raw string) (schemas.Value, bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return schemas.Value{}, false, false
	}

	// Triple-quoted payload.
	if strings.HasPrefix(raw, `"""`) && strings.HasSuffix(raw, `"""`) && len(raw) >= 6 {
		return schemas.StrValue(unescape(raw[3 : len(raw)-3])), true, true
	}

	// Quoted string.
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return schemas.StrValue(unescape(raw[1 : len(raw)-1])), true, true
		}
	}

	// List literal.
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return schemas.ListValue(nil), false, true
		}
		var items []string
		for _, item := range splitTopLevel(inner) {
			v, _, ok := parseValue(item)
			if !ok {
				return schemas.Value{}, false, false
			}
			items = append(items, v.String())
		}
		return schemas.ListValue(items), false, true
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return schemas.IntValue(i), false, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return schemas.FloatValue(f), false, true
	}
	if strings.EqualFold(raw, "true") || strings.EqualFold(raw, "false") {
		return schemas.BoolValue(strings.EqualFold(raw, "true")), false, true
	}

	// Bare word: tolerated because models frequently forget quotes.
	if !strings.ContainsAny(raw, "(){}") {
		return schemas.StrValue(raw), false, true
	}
	return schemas.Value{}, false, false
}

// applyGrammar maps parsed pieces onto argument names under one grammar.
func applyGrammar(g Grammar, pieces []piece) (map[string]schemas.Value, bool) {
	switch g.Kind {
	case GrammarNone:
		if len(pieces) == 0 {
			return map[string]schemas.Value{}, true
		}
	case GrammarBareInt:
		if len(pieces) == 1 && pieces[0].key == "" && pieces[0].val.Kind == schemas.ValueInt {
			return map[string]schemas.Value{g.Keys[0]: pieces[0].val}, true
		}
	case GrammarIntThenStr:
		if len(pieces) == 2 && pieces[0].key == "" && pieces[1].key == "" &&
			pieces[0].val.Kind == schemas.ValueInt && pieces[1].val.Kind == schemas.ValueStr {
			return map[string]schemas.Value{g.Keys[0]: pieces[0].val, g.Keys[1]: pieces[1].val}, true
		}
	case GrammarTwoStr:
		if len(pieces) == 2 && pieces[0].key == "" && pieces[1].key == "" &&
			pieces[0].quoted && pieces[1].quoted {
			return map[string]schemas.Value{g.Keys[0]: pieces[0].val, g.Keys[1]: pieces[1].val}, true
		}
	case GrammarSingleStr:
		if len(pieces) == 1 && pieces[0].key == "" && pieces[0].quoted {
			return map[string]schemas.Value{g.Keys[0]: pieces[0].val}, true
		}
	case GrammarKeyValues:
		if len(pieces) == 0 {
			return nil, false
		}
		out := make(map[string]schemas.Value, len(pieces))
		for _, p := range pieces {
			if p.key == "" {
				return nil, false
			}
			out[p.key] = p.val
		}
		return out, true
	}
	return nil, false
}

// parseJSONObject is the fallback grammar: a single JSON object whose members
// become arguments.
func parseJSONObject(args string) (map[string]schemas.Value, bool) {
	args = strings.TrimSpace(args)
	if !strings.HasPrefix(args, "{") || !strings.HasSuffix(args, "}") {
		return nil, false
	}
	var raw map[string]interface{}
	if err := json.UnmarshalFromString(args, &raw); err != nil {
		return nil, false
	}
	out := make(map[string]schemas.Value, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = schemas.StrValue(unescape(t))
		case float64:
			if t == float64(int64(t)) {
				out[k] = schemas.IntValue(int64(t))
			} else {
				out[k] = schemas.FloatValue(t)
			}
		case bool:
			out[k] = schemas.BoolValue(t)
		case []interface{}:
			items := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					items = append(items, s)
				}
			}
			out[k] = schemas.ListValue(items)
		default:
			// Nested objects have no Value representation; skip the member.
		}
	}
	return out, true
}

// parseArgs tries every grammar of the tool in order, then the JSON fallback.
func parseArgs(spec ToolSpec, args string) (map[string]schemas.Value, bool) {
	pieces, ok := parsePieces(args)
	if ok {
		for _, g := range spec.Grammars {
			if g.Kind == GrammarJSON {
				continue
			}
			if out, matched := applyGrammar(g, pieces); matched {
				return out, true
			}
		}
	}
	for _, g := range spec.Grammars {
		if g.Kind == GrammarJSON {
			if out, matched := parseJSONObject(args); matched {
				return out, true
			}
		}
	}
	return nil, false
}

// DefaultTools is the standard tool table the agent advertises to the model.
func DefaultTools() []ToolSpec {
	return []ToolSpec{
		{
			Name: "click",
			Grammars: []Grammar{
				{Kind: GrammarKeyValues},
				{Kind: GrammarBareInt, Keys: []string{"element_id"}},
				{Kind: GrammarIntThenStr, Keys: []string{"element_id", "reason"}},
				{Kind: GrammarSingleStr, Keys: []string{"text"}},
				{Kind: GrammarJSON},
			},
		},
		{
			Name: "type_text",
			Grammars: []Grammar{
				{Kind: GrammarKeyValues},
				{Kind: GrammarIntThenStr, Keys: []string{"element_id", "text"}},
				{Kind: GrammarTwoStr, Keys: []string{"selector", "text"}},
				{Kind: GrammarJSON},
			},
			TruncationKey: "text",
		},
		{
			Name: "scroll",
			Grammars: []Grammar{
				{Kind: GrammarSingleStr, Keys: []string{"direction"}},
				{Kind: GrammarKeyValues},
				{Kind: GrammarNone},
			},
		},
		{Name: "go_back", Grammars: []Grammar{{Kind: GrammarNone}}},
		{Name: "close_overlay", Grammars: []Grammar{{Kind: GrammarNone}}},
		{Name: "expand_all", Grammars: []Grammar{{Kind: GrammarNone}}},
		{
			Name: "collect",
			Grammars: []Grammar{
				{Kind: GrammarTwoStr, Keys: []string{"label", "data"}},
				{Kind: GrammarKeyValues},
				{Kind: GrammarJSON},
			},
			BulkText:      true,
			BulkKeys:      [2]string{"label", "data"},
			TruncationKey: "data",
		},
		{
			Name: "extract_data",
			Grammars: []Grammar{
				{Kind: GrammarKeyValues},
				{Kind: GrammarSingleStr, Keys: []string{"data"}},
				{Kind: GrammarJSON},
			},
			TruncationKey: "data",
		},
		{
			Name: "capture_diagram",
			Grammars: []Grammar{
				{Kind: GrammarSingleStr, Keys: []string{"description"}},
				{Kind: GrammarKeyValues},
				{Kind: GrammarNone},
			},
			BulkText:      true,
			BulkKeys:      [2]string{"description", "data"},
			TruncationKey: "description",
		},
		{
			Name: "ask_user",
			Grammars: []Grammar{
				{Kind: GrammarKeyValues},
				{Kind: GrammarSingleStr, Keys: []string{"question"}},
				{Kind: GrammarJSON},
			},
			TruncationKey: "question",
		},
		{
			Name: "done",
			Grammars: []Grammar{
				{Kind: GrammarSingleStr, Keys: []string{"summary"}},
				{Kind: GrammarKeyValues},
				{Kind: GrammarNone},
			},
			TruncationKey: "summary",
		},
		{
			Name: "give_up",
			Grammars: []Grammar{
				{Kind: GrammarSingleStr, Keys: []string{"reason"}},
				{Kind: GrammarKeyValues},
				{Kind: GrammarNone},
			},
		},
	}
}

// Defs renders the tool table as the wire-level schema advertised to the model.
func Defs(specs []ToolSpec) []schemas.ToolDef {
	defs := make([]schemas.ToolDef, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, schemas.ToolDef{
			Name:        s.Name,
			Description: toolDescriptions[s.Name],
			Parameters:  toolParams[s.Name],
		})
	}
	return defs
}

var toolParams = map[string]schemas.ToolParams{
	"click":           {Required: []string{"element_id"}, Optional: []string{"reason", "text"}},
	"type_text":       {Required: []string{"element_id", "text"}},
	"scroll":          {Required: []string{"direction"}},
	"go_back":         {},
	"close_overlay":   {},
	"expand_all":      {},
	"collect":         {Required: []string{"label", "data"}},
	"extract_data":    {Required: []string{"data"}, Optional: []string{"complete"}},
	"capture_diagram": {Required: []string{"description"}},
	"ask_user":        {Required: []string{"question"}, Optional: []string{"options"}},
	"done":            {Optional: []string{"summary"}},
	"give_up":         {Optional: []string{"reason"}},
}

var toolDescriptions = map[string]string{
	"click":           "Click an element by numeric id or visible text.",
	"type_text":       "Type text into an input element.",
	"scroll":          "Scroll the page up or down.",
	"go_back":         "Navigate one page back.",
	"close_overlay":   "Close the topmost modal or overlay.",
	"expand_all":      "Expand every collapsible section on the page.",
	"collect":         "Store a labeled data fragment found on the page.",
	"extract_data":    "Store extracted data; set complete=true when the goal is met.",
	"capture_diagram": "Capture the currently visible diagram(s) as an artifact.",
	"ask_user":        "Ask the user a clarifying question with options.",
	"done":            "Finish the session successfully.",
	"give_up":         "Give up on the goal.",
}
