package toolcall

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// DefaultMinTruncatedLen is the minimum accumulated payload length below which
// a cut-off tool call is silently discarded rather than recovered.
const DefaultMinTruncatedLen = 20

// Decoder turns free-form model output into an ordered list of typed
// ToolInvocations. Decode never fails; unmatchable text yields an empty slice.
type Decoder struct {
	specs           []ToolSpec
	byName          map[string]ToolSpec
	minTruncatedLen int
	logger          *zap.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithTools replaces the default tool table.
func WithTools(specs []ToolSpec) Option {
	return func(d *Decoder) { d.specs = specs }
}

// WithMinTruncatedLen overrides the truncation-recovery threshold.
func WithMinTruncatedLen(n int) Option {
	return func(d *Decoder) { d.minTruncatedLen = n }
}

// NewDecoder builds a decoder over the default tool table.
func NewDecoder(logger *zap.Logger, opts ...Option) *Decoder {
	d := &Decoder{
		specs:           DefaultTools(),
		minTruncatedLen: DefaultMinTruncatedLen,
		logger:          logger.Named("decoder"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.byName = make(map[string]ToolSpec, len(d.specs))
	for _, s := range d.specs {
		d.byName[s.Name] = s
	}
	return d
}

// located pairs an invocation with its position in the source text so the
// final result preserves textual order across scanning passes.
type located struct {
	pos int
	inv schemas.ToolInvocation
}

// Decode recovers every tool invocation present in the text, in textual order.
func (d *Decoder) Decode(text string) []schemas.ToolInvocation {
	var found []located
	var consumed spanSet

	// Pass 1: closed-form bulk-text matches. These are consumed first because
	// their payloads may themselves contain other tool names.
	for _, spec := range d.specs {
		if !spec.BulkText {
			continue
		}
		found = append(found, d.scanBulk(text, spec, &consumed)...)
	}

	// Pass 2: general string-literal-aware scan per known tool.
	for _, spec := range d.specs {
		found = append(found, d.scanGeneral(text, spec, &consumed)...)
	}

	// Last resort: natural-language click recovery.
	if len(found) == 0 {
		if inv, ok := naturalLanguageClick(text); ok {
			d.logger.Debug("Recovered click from natural language", zap.String("text", truncate(text, 120)))
			found = append(found, located{pos: 0, inv: inv})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })

	invs := make([]schemas.ToolInvocation, 0, len(found))
	for _, f := range found {
		invs = append(invs, f.inv)
	}
	return invs
}

// scanBulk matches `name("label", """payload""")` spans directly, so the
// payload can contain anything, including quotes that would defeat the general
// scanner. All occurrences in the text are recovered.
func (d *Decoder) scanBulk(text string, spec ToolSpec, consumed *spanSet) []located {
	var out []located
	from := 0
	for {
		pos := findCall(text, spec.Name, from)
		if pos < 0 {
			return out
		}
		if consumed.contains(pos) {
			from = pos + 1
			continue
		}

		inv, end, ok := matchBulk(text, spec, pos+len(spec.Name)+1)
		if !ok {
			// Not bulk-shaped; the general pass handles this occurrence.
			from = pos + 1
			continue
		}
		consumed.add(pos, end)
		out = append(out, located{pos: pos, inv: inv})
		from = end
	}
}

// matchBulk parses the closed form starting just past the open paren.
func matchBulk(text string, spec ToolSpec, i int) (schemas.ToolInvocation, int, bool) {
	i = skipSpace(text, i)
	if i >= len(text) || text[i] != '"' {
		return schemas.ToolInvocation{}, 0, false
	}
	// The label is a plain quoted string; triple quotes here mean this is not
	// the two-argument bulk form.
	if strings.HasPrefix(text[i:], `"""`) {
		return schemas.ToolInvocation{}, 0, false
	}
	labelEnd := findStringEnd(text, i)
	if labelEnd < 0 {
		return schemas.ToolInvocation{}, 0, false
	}
	label := unescape(text[i+1 : labelEnd])

	j := skipSpace(text, labelEnd+1)
	if j >= len(text) || text[j] != ',' {
		return schemas.ToolInvocation{}, 0, false
	}
	j = skipSpace(text, j+1)
	if !strings.HasPrefix(text[j:], `"""`) {
		return schemas.ToolInvocation{}, 0, false
	}
	payloadStart := j + 3
	rel := strings.Index(text[payloadStart:], `"""`)
	if rel < 0 {
		return schemas.ToolInvocation{}, 0, false
	}
	payload := unescape(text[payloadStart : payloadStart+rel])

	k := skipSpace(text, payloadStart+rel+3)
	if k >= len(text) || text[k] != ')' {
		return schemas.ToolInvocation{}, 0, false
	}

	inv := schemas.ToolInvocation{
		Name: spec.Name,
		Args: map[string]schemas.Value{
			spec.BulkKeys[0]: schemas.StrValue(label),
			spec.BulkKeys[1]: schemas.StrValue(payload),
		},
	}
	return inv, k + 1, true
}

// scanGeneral recovers every remaining occurrence of the tool, applying the
// per-tool grammar and truncation recovery.
func (d *Decoder) scanGeneral(text string, spec ToolSpec, consumed *spanSet) []located {
	var out []located
	from := 0
	for {
		pos := findCall(text, spec.Name, from)
		if pos < 0 {
			return out
		}
		if consumed.contains(pos) {
			from = pos + 1
			continue
		}

		afterOpen := pos + len(spec.Name) + 1
		scan := scanArgs(text, afterOpen)

		if scan.truncated {
			if inv, ok := d.recoverTruncated(spec, scan.args); ok {
				consumed.add(pos, len(text))
				out = append(out, located{pos: pos, inv: inv})
			}
			// EOF either way.
			return out
		}

		args, ok := parseArgs(spec, scan.args)
		if !ok {
			// Unparseable occurrence; keep scanning rather than aborting.
			d.logger.Debug("Unparseable tool arguments",
				zap.String("tool", spec.Name), zap.String("args", truncate(scan.args, 120)))
			from = afterOpen
			continue
		}
		consumed.add(pos, scan.end)
		out = append(out, located{pos: pos, inv: schemas.ToolInvocation{Name: spec.Name, Args: args}})
		from = scan.end
	}
}

// recoverTruncated synthesizes a best-effort invocation from a call whose
// close paren never arrived. The payload must have opened with a quote and
// accumulated at least the minimum length; shorter fragments are discarded.
func (d *Decoder) recoverTruncated(spec ToolSpec, args string) (schemas.ToolInvocation, bool) {
	if spec.TruncationKey == "" {
		return schemas.ToolInvocation{}, false
	}

	openPos, ok := unterminatedQuote(args)
	if !ok {
		return schemas.ToolInvocation{}, false
	}
	content := args[openPos+1:]
	// A triple-quoted payload opens with three quotes; strip the extra two.
	content = strings.TrimPrefix(content, `""`)
	if len(content) < d.minTruncatedLen {
		return schemas.ToolInvocation{}, false
	}

	inv := schemas.ToolInvocation{
		Name: spec.Name,
		Args: map[string]schemas.Value{
			spec.TruncationKey: schemas.StrValue(unescape(content)),
		},
	}

	// Salvage any complete leading arguments, e.g. the label of a bulk call.
	prefix := strings.TrimSpace(args[:openPos])
	prefix = strings.TrimSuffix(prefix, ",")
	if prefix != "" {
		if pieces, ok := parsePieces(prefix); ok {
			for i, p := range pieces {
				switch {
				case p.key != "":
					inv.Args[p.key] = p.val
				case spec.BulkText && i == 0 && p.quoted:
					inv.Args[spec.BulkKeys[0]] = p.val
				}
			}
		}
	}

	d.logger.Debug("Recovered truncated tool call",
		zap.String("tool", spec.Name), zap.Int("payload_len", len(content)))
	return inv, true
}

// unterminatedQuote finds the opening position of a string literal that never
// closes before EOF. Returns false when every string is balanced.
func unterminatedQuote(s string) (int, bool) {
	inString := false
	var quote byte
	escaped := false
	openPos := -1

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
		if c == '"' || c == '\'' {
			inString = true
			quote = c
			openPos = i
		}
	}
	if inString {
		return openPos, true
	}
	return 0, false
}

// findStringEnd returns the index of the closing quote for the string opening
// at s[open], honoring backslash escapes. -1 when unterminated.
func findStringEnd(s string, open int) int {
	quote := s[open]
	escaped := false
	for i := open + 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == quote:
			return i
		}
	}
	return -1
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

var nlClickPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)click(?:ing|s|ed)?\s+(?:on\s+)?(?:the\s+)?element\s*\[?(\d+)\]?`),
	regexp.MustCompile(`(?i)\belement\s*\[?(\d+)\]?`),
	regexp.MustCompile(`(?i)click(?:ing|s|ed)?\s+(?:on\s+)?\[?(\d+)\]?`),
}

// naturalLanguageClick recovers a single click from prose like
// "I will click element [22]" when no syntactic tool call exists.
func naturalLanguageClick(text string) (schemas.ToolInvocation, bool) {
	for _, re := range nlClickPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			var id int64
			for _, c := range m[1] {
				id = id*10 + int64(c-'0')
			}
			return schemas.ToolInvocation{
				Name: "click",
				Args: map[string]schemas.Value{"element_id": schemas.IntValue(id)},
			}, true
		}
	}
	return schemas.ToolInvocation{}, false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
