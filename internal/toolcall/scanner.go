package toolcall

import "strings"

// argScan is the outcome of scanning one `name(` occurrence for its matching
// close paren.
type argScan struct {
	// args is the raw argument substring between the parens (or everything
	// after the open paren when truncated).
	args string
	// end is the index just past the close paren; meaningless when truncated.
	end int
	// truncated reports that no matching close paren exists before EOF, i.e.
	// the model's output was cut off mid-call.
	truncated bool
}

// scanArgs walks text starting at the index just past an opening parenthesis
// and finds the matching close paren. Parens inside string literals do not
// count toward depth, and escaped quotes do not close their string, so
// arguments like "Fig 1 (1 of 3)" are handled exactly.
func scanArgs(text string, afterOpen int) argScan {
	depth := 1
	inString := false
	var quote byte
	escaped := false

	for i := afterOpen; i < len(text); i++ {
		c := text[i]

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
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return argScan{args: text[afterOpen:i], end: i + 1}
			}
		}
	}

	return argScan{args: text[afterOpen:], truncated: true}
}

// findCall locates the next `name(` occurrence at or after from, requiring a
// word boundary before the name so "myclick(" does not match "click". Returns
// the index of the name, or -1.
func findCall(text, name string, from int) int {
	needle := name + "("
	for {
		idx := strings.Index(text[from:], needle)
		if idx < 0 {
			return -1
		}
		pos := from + idx
		if pos == 0 || !isWordByte(text[pos-1]) {
			return pos
		}
		from = pos + 1
	}
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// spanSet tracks consumed regions of the text so later passes never re-match
// inside an already decoded invocation.
type spanSet struct {
	spans [][2]int
}

func (s *spanSet) add(start, end int) {
	s.spans = append(s.spans, [2]int{start, end})
}

func (s *spanSet) contains(pos int) bool {
	for _, sp := range s.spans {
		if pos >= sp[0] && pos < sp[1] {
			return true
		}
	}
	return false
}

// unescape converts literal \n and \t sequences (and escaped quotes and
// backslashes) inside extracted string arguments into their real characters.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case '"', '\'', '\\':
			sb.WriteByte(s[i+1])
		default:
			sb.WriteByte(s[i])
			continue
		}
		i++
	}
	return sb.String()
}
