// Package artifact parses and validates generated question artifacts.
//
// Generation backends return free-form text that loosely contains one JSON
// object. The parser extracts that object defensively, repairs common
// malformations, normalizes synonymous field names, and enforces the domain
// invariants before anything downstream sees the artifact.
package artifact

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseError indicates the backend's text could not be turned into a valid
// JSON object. The orchestrator treats it as a fallback-class failure.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing generated output: %s", e.Reason)
}

// ValidationError indicates the parsed artifact violates a domain invariant.
// Also fallback-class: the defect belongs to the backend's output.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid generated artifact: %s", e.Reason)
}

var (
	fencedBlockPattern  = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	greedyObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	singleQuotedPattern  = regexp.MustCompile(`'([^'\\]*)'`)
)

// ExtractJSON pulls the first JSON object candidate out of arbitrary backend
// text. Parse tries every candidate in order; callers that only need one take
// the first.
func ExtractJSON(text string) (string, error) {
	candidates := jsonCandidates(text)
	if len(candidates) == 0 {
		return "", &ParseError{Reason: "no JSON object found in output"}
	}
	return candidates[0], nil
}

// jsonCandidates collects candidate JSON objects, most promising first: a
// balanced-brace scan from the first brace, a fenced-code-block extraction,
// and finally a greedy brace match. Prose can contain a balanced brace group
// of its own ("pick one of {A, B}"), so a candidate that fails to parse must
// not mask the later ones.
func jsonCandidates(text string) []string {
	var out []string
	add := func(candidate string) {
		for _, seen := range out {
			if seen == candidate {
				return
			}
		}
		out = append(out, candidate)
	}

	if obj, ok := scanBalanced(text); ok {
		add(obj)
	}
	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		if obj, ok := scanBalanced(m[1]); ok {
			add(obj)
		}
	}
	if m := greedyObjectPattern.FindString(text); m != "" {
		add(m)
	}
	return out
}

// scanBalanced returns the substring from the first '{' to the brace that
// returns depth to zero, tracking string and escape state so braces inside
// quoted values are skipped.
func scanBalanced(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// cleanup strips control characters and trailing commas, the two defects
// backends introduce most often.
func cleanup(jsonText string) string {
	var b strings.Builder
	b.Grow(len(jsonText))
	for _, r := range jsonText {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return trailingCommaPattern.ReplaceAllString(b.String(), "$1")
}

// repair rewrites bare object keys and single-quoted values into strict
// JSON. A best-effort pass used only after strict parsing has failed.
func repair(jsonText string) string {
	repaired := bareKeyPattern.ReplaceAllString(jsonText, `$1"$2":`)
	repaired = singleQuotedPattern.ReplaceAllString(repaired, `"$1"`)
	return repaired
}
