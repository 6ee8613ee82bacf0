package typography

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis terminates the last line of a caption that did not fit.
const Ellipsis = "…"

// Wrap greedily packs the whitespace-delimited words of text into at most
// maxLines lines of no more than budget runes each. Words longer than the
// budget are broken at the budget. When words remain after maxLines lines
// have been closed, the last line is cut to budget-1 runes and terminated
// with Ellipsis, and truncated is true.
func Wrap(text string, budget, maxLines int) (lines []string, truncated bool) {
	if budget < 2 || maxLines < 1 {
		return nil, false
	}

	words := splitLongWords(strings.Fields(text), budget)
	if len(words) == 0 {
		return nil, false
	}

	var cur string
	for _, w := range words {
		switch {
		case cur == "":
			cur = w
		case runeLen(cur)+1+runeLen(w) <= budget:
			cur += " " + w
		default:
			lines = append(lines, cur)
			if len(lines) == maxLines {
				lines[len(lines)-1] = ellipsize(cur, budget)
				return lines, true
			}
			cur = w
		}
	}
	return append(lines, cur), false
}

// Truncate returns text collapsed to a single line of at most budget runes,
// ellipsized when it does not fit.
func Truncate(text string, budget int) (string, bool) {
	line := strings.Join(strings.Fields(text), " ")
	if runeLen(line) <= budget {
		return line, false
	}
	if budget < 2 {
		return "", true
	}
	return ellipsize(line, budget), true
}

// ellipsize cuts line to budget-1 runes and appends the ellipsis marker.
func ellipsize(line string, budget int) string {
	r := []rune(line)
	if len(r) > budget-1 {
		r = r[:budget-1]
	}
	return strings.TrimRight(string(r), " ") + Ellipsis
}

func splitLongWords(words []string, budget int) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		r := []rune(w)
		for len(r) > budget {
			out = append(out, string(r[:budget]))
			r = r[budget:]
		}
		if len(r) > 0 {
			out = append(out, string(r))
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
