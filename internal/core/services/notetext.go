package services

import (
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// Pre-compiled regular expressions for field markup stripping.
var (
	soundTag      = regexp.MustCompile(`\[sound:[^\]]*\]`)
	clozeTag      = regexp.MustCompile(`\{\{c\d+::(.*?)(::[^}]*)?\}\}`)
	brTags        = regexp.MustCompile(`(?i)<br\s*/?>`)
	divCloseTags  = regexp.MustCompile(`(?i)</(div|p|li|tr)>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{2,}`)
)

// cleanFieldText converts one note field to plain text: media and cloze
// markers resolved, tags stripped, entities decoded, whitespace
// collapsed.
func cleanFieldText(s string) string {
	s = soundTag.ReplaceAllString(s, " ")
	s = clozeTag.ReplaceAllString(s, "$1")
	s = brTags.ReplaceAllString(s, "\n")
	s = divCloseTags.ReplaceAllString(s, "\n")
	s = allTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = multiSpaces.ReplaceAllString(s, " ")
	s = multiNewlines.ReplaceAllString(s, "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// noteText flattens a note into the clean text used for embedding and
// clustering: all fields cleaned and joined, empty fields dropped.
func noteText(n domain.Note) string {
	parts := make([]string, 0, len(n.Fields))
	for _, f := range n.Fields {
		if c := cleanFieldText(f); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}

// noteTitle returns a display title for a note: the cleaned first
// field, first line only, truncated.
func noteTitle(n domain.Note) string {
	t := cleanFieldText(n.FirstField())
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[:i]
	}
	const maxTitle = 120
	if r := []rune(t); len(r) > maxTitle {
		t = string(r[:maxTitle-1]) + "…"
	}
	return t
}
