// Package chapters turns the course plan into per-week chapter drafts.
package chapters

import (
	"regexp"
	"strings"
)

// Week is one row of the course plan.
type Week struct {
	// ID is the plan's label, e.g. "Week 3" or "Week 1.5".
	ID string
	// Number is the part of ID after "Week".
	Number string
	Title  string
}

// PrelearningWeek is prepended when the plan has no Week 0.
var PrelearningWeek = Week{ID: "Week 0", Number: "0", Title: "Prelearning — Python & ML"}

// weekRow matches plan table rows such as "| **Week 1** | **First AI app** |".
var weekRow = regexp.MustCompile(`\| \*\*(Week\s+[0-9.]+)\*\* \| \*\*(.*?)\*\*`)

// ParseWeeks extracts weeks from plan text in the order they appear.
func ParseWeeks(text string) []Week {
	var weeks []Week
	for _, m := range weekRow.FindAllStringSubmatch(text, -1) {
		id := strings.Join(strings.Fields(m[1]), " ")
		weeks = append(weeks, Week{
			ID:     id,
			Number: strings.TrimPrefix(id, "Week "),
			Title:  strings.TrimSpace(m[2]),
		})
	}
	return weeks
}

// WithPrelearning returns weeks with PrelearningWeek in front unless a
// Week 0 is already present.
func WithPrelearning(weeks []Week) []Week {
	for _, w := range weeks {
		if w.ID == PrelearningWeek.ID {
			return weeks
		}
	}
	return append([]Week{PrelearningWeek}, weeks...)
}

// FileName is the chapter file written for w.
func (w Week) FileName() string {
	return "week-" + w.Number + "-chapter.md"
}
