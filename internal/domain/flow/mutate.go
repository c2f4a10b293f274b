package flow

import (
	"strings"

	"github.com/janhq/flow-api/internal/utils/idgen"
)

func (f *Flow) nextSectionOrder() int {
	next := 0
	for _, s := range f.Sections {
		if s.Order >= next {
			next = s.Order + 1
		}
	}
	return next
}

func (f *Flow) nextStepOrder(sectionID string) int {
	next := 0
	for _, s := range f.Steps {
		if s.SectionID == sectionID && s.Order >= next {
			next = s.Order + 1
		}
	}
	return next
}

// AddSection appends a section after the current last one.
func (f *Flow) AddSection(title string) Section {
	section := Section{
		ID:    idgen.New(idgen.PrefixSection),
		Title: strings.TrimSpace(title),
		Order: f.nextSectionOrder(),
	}
	f.Sections = append(f.Sections, section)
	return section
}

// AddStep appends a normal step at the end of the section.
func (f *Flow) AddStep(sectionID, description string) (Step, error) {
	if f.SectionByID(sectionID) == nil {
		return Step{}, ErrSectionNotFound
	}
	step := Step{
		ID:          idgen.New(idgen.PrefixStep),
		SectionID:   sectionID,
		Order:       f.nextStepOrder(sectionID),
		Description: strings.TrimSpace(description),
		Type:        StepTypeNormal,
	}
	f.Steps = append(f.Steps, step)
	return step, nil
}

// RenameSection changes a section title.
func (f *Flow) RenameSection(sectionID, title string) error {
	section := f.SectionByID(sectionID)
	if section == nil {
		return ErrSectionNotFound
	}
	section.Title = strings.TrimSpace(title)
	return nil
}

// DeleteSection removes the section together with every step that belongs to it.
// The removed steps are returned so callers can clean up their assets.
func (f *Flow) DeleteSection(sectionID string) ([]Step, error) {
	idx := -1
	for i := range f.Sections {
		if f.Sections[i].ID == sectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrSectionNotFound
	}
	f.Sections = append(f.Sections[:idx], f.Sections[idx+1:]...)

	var removed []Step
	kept := f.Steps[:0]
	for _, step := range f.Steps {
		if step.SectionID == sectionID {
			removed = append(removed, step)
			continue
		}
		kept = append(kept, step)
	}
	f.Steps = kept
	for _, step := range removed {
		f.clearBranchesTo(step.ID)
	}
	return removed, nil
}

// DeleteStep removes a single step and clears branch pointers that targeted it.
func (f *Flow) DeleteStep(stepID string) (Step, error) {
	for i := range f.Steps {
		if f.Steps[i].ID != stepID {
			continue
		}
		removed := f.Steps[i]
		f.Steps = append(f.Steps[:i], f.Steps[i+1:]...)
		f.clearBranchesTo(stepID)
		return removed, nil
	}
	return Step{}, ErrStepNotFound
}

func (f *Flow) clearBranchesTo(stepID string) {
	for i := range f.Steps {
		if f.Steps[i].OKNext == stepID {
			f.Steps[i].OKNext = ""
		}
		if f.Steps[i].NOKNext == stepID {
			f.Steps[i].NOKNext = ""
		}
	}
}

// SetStepType changes the step semantics. Leaving the check type drops branch targets.
func (f *Flow) SetStepType(stepID string, stepType StepType) error {
	step := f.StepByID(stepID)
	if step == nil {
		return ErrStepNotFound
	}
	step.Type = stepType
	if stepType != StepTypeCheck {
		step.OKNext = ""
		step.NOKNext = ""
	}
	return nil
}

// SetBranching turns the step into a check with the given targets. Empty targets fall through
// to the next step in order.
func (f *Flow) SetBranching(stepID, okNext, nokNext string) error {
	step := f.StepByID(stepID)
	if step == nil {
		return ErrStepNotFound
	}
	step.Type = StepTypeCheck
	step.OKNext = okNext
	step.NOKNext = nokNext
	return nil
}
