package flow

import (
	"fmt"
	"strings"
)

// DefaultPreviewLength is the number of runes of a step description shown in outlines.
const DefaultPreviewLength = 60

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}

// Outline renders the compact structure summary sent to the inference provider and
// returned by the structure query operation.
func (f *Flow) Outline(previewLength int) string {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Flow: %q\n", f.Title)
	if f.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", Truncate(f.Description, previewLength*2))
	}
	if f.Language != "" || f.Category != "" {
		fmt.Fprintf(&b, "Language: %s | Category: %s\n", orDash(f.Language), orDash(f.Category))
	}
	fmt.Fprintf(&b, "Sections: %d | Steps: %d\n", len(f.Sections), len(f.Steps))

	sections := f.OrderedSections()
	if len(sections) == 0 {
		b.WriteString("\nThe flow has no sections yet.\n")
		return b.String()
	}

	for i, section := range sections {
		steps := f.StepsInSection(section.ID)
		fmt.Fprintf(&b, "\n%d. %s (%s)\n", i+1, section.Title, pluralSteps(len(steps)))
		for j, step := range steps {
			fmt.Fprintf(&b, "   %d.%d %s%s\n", i+1, j+1, Truncate(step.Description, previewLength), f.stepAnnotations(step))
		}
	}
	return b.String()
}

func (f *Flow) stepAnnotations(step *Step) string {
	var notes []string
	if step.IsCheck() {
		notes = append(notes, "check")
		if target := f.StepByID(step.OKNext); target != nil {
			notes = append(notes, "ok→"+Truncate(target.Description, 24))
		}
		if target := f.StepByID(step.NOKNext); target != nil {
			notes = append(notes, "nok→"+Truncate(target.Description, 24))
		}
	}
	if step.TimerMinutes > 0 {
		notes = append(notes, fmt.Sprintf("timer %d min", step.TimerMinutes))
	}
	if step.Audio != nil {
		notes = append(notes, "audio")
	}
	if len(notes) == 0 {
		return ""
	}
	return " [" + strings.Join(notes, ", ") + "]"
}

func pluralSteps(n int) string {
	if n == 1 {
		return "1 step"
	}
	return fmt.Sprintf("%d steps", n)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
