package extract

import (
	"regexp"
	"strings"
)

var (
	multiSpaceRe   = regexp.MustCompile(`\s+`)
	lineSpaceRe    = regexp.MustCompile(`[ \t\f\v\r]+`)
	paragraphSplit = regexp.MustCompile(`\n[ \t\f\v\r]*\n+`)
)

func collapseWhitespace(s string) string {
	return multiSpaceRe.ReplaceAllString(s, " ")
}

// Normalize cleans rendered text: paragraphs are split on blank lines,
// runs of spaces inside each line collapse to one, empty lines and
// paragraphs are dropped, and paragraphs are joined by one blank line.
// Line breaks inside a paragraph are kept.
func Normalize(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)

	var paragraphs []string
	for _, p := range paragraphSplit.Split(text, -1) {
		var lines []string
		for _, line := range strings.Split(p, "\n") {
			if line = cleanLine(line); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// cleanLine collapses spaces and turns leading indent marks into two spaces
// per level.
func cleanLine(line string) string {
	line = strings.TrimSpace(lineSpaceRe.ReplaceAllString(line, " "))
	depth := 0
	for depth < len(line) && line[depth] == indentMark {
		depth++
	}
	rest := strings.TrimSpace(strings.ReplaceAll(line[depth:], string(indentMark), ""))
	if rest == "" {
		return ""
	}
	return strings.Repeat("  ", depth) + rest
}
