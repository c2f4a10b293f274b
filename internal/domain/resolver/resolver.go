// Package resolver finds sections and steps of a flow from the loose names an inference
// provider emits. Two step matching policies exist and each call site picks one explicitly.
package resolver

import (
	"strings"

	"github.com/janhq/flow-api/internal/domain/flow"
)

// MatchMode selects how step descriptions are compared.
type MatchMode int

const (
	// MatchContains matches a case-insensitive substring of the description.
	MatchContains MatchMode = iota
	// MatchExact matches the whole trimmed description, ignoring case.
	MatchExact
)

func (m MatchMode) String() string {
	switch m {
	case MatchContains:
		return "contains"
	case MatchExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Resolver looks entities up in a single flow. It never mutates the flow.
type Resolver struct {
	flow *flow.Flow
}

// New binds a resolver to a flow.
func New(f *flow.Flow) *Resolver {
	return &Resolver{flow: f}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Section returns the first section, in document order, whose title equals name ignoring case.
// An empty name resolves to the first section. Nil means no match.
func (r *Resolver) Section(name string) *flow.Section {
	sections := r.flow.OrderedSections()
	if len(sections) == 0 {
		return nil
	}
	want := normalize(name)
	if want == "" {
		return sections[0]
	}
	for _, section := range sections {
		if normalize(section.Title) == want {
			return section
		}
	}
	return nil
}

// StepContaining returns the first step whose description contains fragment. When sectionName is
// set the search is limited to that section, and an unknown section yields nil.
func (r *Resolver) StepContaining(fragment, sectionName string) *flow.Step {
	return r.FindStep(MatchContains, fragment, sectionName)
}

// StepExact returns the first step across the flow whose description equals description.
func (r *Resolver) StepExact(description string) *flow.Step {
	return r.FindStep(MatchExact, description, "")
}

// FindStep searches steps in document order with the given policy.
func (r *Resolver) FindStep(mode MatchMode, text, sectionName string) *flow.Step {
	want := normalize(text)
	if want == "" {
		return nil
	}

	var candidates []*flow.Step
	if strings.TrimSpace(sectionName) != "" {
		section := r.Section(sectionName)
		if section == nil {
			return nil
		}
		candidates = r.flow.StepsInSection(section.ID)
	} else {
		candidates = r.flow.OrderedSteps()
	}

	for _, step := range candidates {
		got := normalize(step.Description)
		switch mode {
		case MatchExact:
			if got == want {
				return step
			}
		default:
			if strings.Contains(got, want) {
				return step
			}
		}
	}
	return nil
}
