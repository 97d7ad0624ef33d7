package llm

import "strings"

// RepairJson normalizes a model answer that is supposed to be JSON. Models
// wrap answers in markdown fences or surround them with prose, and long text
// fields often carry raw newlines that break string literals. The result is
// not guaranteed to parse; callers still handle their unmarshal error.
func RepairJson(input string) string {
	return escapeNewlinesInStrings(ExtractJson(input))
}

// ExtractJson returns the first balanced top-level JSON object or array in
// input, matching brackets while respecting string literals and escapes.
// Input without one, or with an unterminated one, is returned trimmed.
func ExtractJson(input string) string {
	start := -1
	for i := 0; i < len(input); i++ {
		if input[i] == '{' || input[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return strings.TrimSpace(input)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		c := input[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return strings.TrimSpace(input)
}

// escapeNewlinesInStrings escapes raw newline bytes that appear inside JSON
// string literals. Newlines between tokens are left alone, as are ones the
// model already escaped.
func escapeNewlinesInStrings(input string) string {
	var result strings.Builder
	result.Grow(len(input))

	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			case c == '\r' && i+1 < len(input) && input[i+1] == '\n':
				result.WriteString(`\r\n`)
				i++
				continue
			case c == '\n':
				result.WriteString(`\n`)
				continue
			}
		} else if c == '"' {
			inString = true
		}
		result.WriteByte(c)
	}
	return result.String()
}
