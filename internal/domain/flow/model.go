// Package flow defines the edited document: a flow of ordered sections, each holding ordered steps.
package flow

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/janhq/flow-api/internal/utils/idgen"
)

// StepType distinguishes plain instructions from yes/no checks.
type StepType string

const (
	StepTypeNormal StepType = "normal"
	StepTypeCheck  StepType = "check"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	return t == StepTypeNormal || t == StepTypeCheck
}

// ParseStepType normalizes user supplied step type names.
func ParseStepType(raw string) (StepType, bool) {
	t := StepType(strings.ToLower(strings.TrimSpace(raw)))
	return t, t.Valid()
}

var (
	ErrSectionNotFound = errors.New("section not found")
	ErrStepNotFound    = errors.New("step not found")
)

// Audio references a media asset attached to a step.
type Audio struct {
	Path        string `json:"path" yaml:"path"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
}

// Section is a named, ordered grouping of steps.
type Section struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Order int    `json:"order" yaml:"order"`
}

// Step is the atomic instruction unit of a flow.
type Step struct {
	ID           string   `json:"id" yaml:"id"`
	SectionID    string   `json:"section_id" yaml:"section_id"`
	Order        int      `json:"order" yaml:"order"`
	Description  string   `json:"description" yaml:"description"`
	Type         StepType `json:"type" yaml:"type"`
	TimerMinutes int      `json:"timer_duration_minutes" yaml:"timer_duration_minutes"`
	OKNext       string   `json:"ok_next,omitempty" yaml:"ok_next,omitempty"`
	NOKNext      string   `json:"nok_next,omitempty" yaml:"nok_next,omitempty"`
	Audio        *Audio   `json:"audio,omitempty" yaml:"audio,omitempty"`
}

// IsCheck reports whether the step is a check step.
func (s *Step) IsCheck() bool {
	return s.Type == StepTypeCheck
}

// Flow is the hierarchical document edited by the engine.
type Flow struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Language    string    `json:"language" yaml:"language"`
	Category    string    `json:"category" yaml:"category"`
	Version     int       `json:"version" yaml:"version"`
	Sections    []Section `json:"sections" yaml:"sections"`
	Steps       []Step    `json:"steps" yaml:"steps"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// New creates an empty flow with a fresh identifier.
func New(title string) *Flow {
	now := time.Now().UTC()
	return &Flow{
		ID:        idgen.New(idgen.PrefixFlow),
		Title:     title,
		Version:   1,
		Sections:  []Section{},
		Steps:     []Step{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := *f
	out.Sections = append([]Section(nil), f.Sections...)
	out.Steps = make([]Step, len(f.Steps))
	for i, step := range f.Steps {
		out.Steps[i] = step
		if step.Audio != nil {
			audio := *step.Audio
			out.Steps[i].Audio = &audio
		}
	}
	if out.Sections == nil {
		out.Sections = []Section{}
	}
	return &out
}

// Restore replaces the content of f with a copy of snapshot while keeping f's identity.
func (f *Flow) Restore(snapshot *Flow) {
	if snapshot == nil {
		return
	}
	id := f.ID
	*f = *snapshot.Clone()
	f.ID = id
}

// Touch bumps the version after a saved change.
func (f *Flow) Touch(now time.Time) {
	f.Version++
	f.UpdatedAt = now.UTC()
}

// SectionByID returns a pointer into the flow's sections or nil.
func (f *Flow) SectionByID(id string) *Section {
	for i := range f.Sections {
		if f.Sections[i].ID == id {
			return &f.Sections[i]
		}
	}
	return nil
}

// StepByID returns a pointer into the flow's steps or nil.
func (f *Flow) StepByID(id string) *Step {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return &f.Steps[i]
		}
	}
	return nil
}

// OrderedSections returns the sections sorted by order. Ties keep insertion order.
func (f *Flow) OrderedSections() []*Section {
	out := make([]*Section, 0, len(f.Sections))
	for i := range f.Sections {
		out = append(out, &f.Sections[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// StepsInSection returns the section's steps sorted by order.
func (f *Flow) StepsInSection(sectionID string) []*Step {
	var out []*Step
	for i := range f.Steps {
		if f.Steps[i].SectionID == sectionID {
			out = append(out, &f.Steps[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// OrderedSteps returns every step in document order: section order, then step order.
func (f *Flow) OrderedSteps() []*Step {
	out := make([]*Step, 0, len(f.Steps))
	for _, section := range f.OrderedSections() {
		out = append(out, f.StepsInSection(section.ID)...)
	}
	return out
}
