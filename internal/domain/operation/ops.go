package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/resolver"
)

func (e *Executor) addSection(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[AddSectionParams](raw)
	if bad != nil {
		return *bad
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return fail("Missing title", "A section needs a title.")
	}
	section := e.flow.AddSection(title)
	return ok("Added section", fmt.Sprintf("Added section %q.", section.Title), map[string]any{"section_id": section.ID})
}

func (e *Executor) addStep(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[AddStepParams](raw)
	if bad != nil {
		return *bad
	}
	description := strings.TrimSpace(p.Description)
	if description == "" {
		return fail("Missing description", "A step needs a description.")
	}

	section := e.resolver.Section(p.SectionName)
	if section == nil {
		if strings.TrimSpace(p.SectionName) == "" {
			return fail("No section", "The flow has no section yet. Add a section first.")
		}
		return fail("Section not found", fmt.Sprintf("No section is titled %q.", p.SectionName))
	}

	step, err := e.flow.AddStep(section.ID, description)
	if err != nil {
		return fail("Step not added", err.Error())
	}
	return ok("Added step", fmt.Sprintf("Added step %q to section %q.", step.Description, section.Title),
		map[string]any{"step_id": step.ID, "section_id": section.ID})
}

func (e *Executor) addSectionWithSteps(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[AddSectionWithStepsParams](raw)
	if bad != nil {
		return *bad
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return fail("Missing title", "A section needs a title.")
	}

	section := e.flow.AddSection(title)
	added := 0
	for _, description := range p.Steps {
		if strings.TrimSpace(description) == "" {
			continue
		}
		if _, err := e.flow.AddStep(section.ID, description); err == nil {
			added++
		}
	}
	return ok("Added section with steps",
		fmt.Sprintf("Added section %q. Added %d of %d steps.", section.Title, added, len(p.Steps)),
		map[string]any{"section_id": section.ID, "added": added, "requested": len(p.Steps)})
}

func (e *Executor) renameSection(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[RenameSectionParams](raw)
	if bad != nil {
		return *bad
	}
	if strings.TrimSpace(p.CurrentName) == "" || strings.TrimSpace(p.NewName) == "" {
		return fail("Missing name", "Both the current and the new section name are required.")
	}
	section := e.resolver.Section(p.CurrentName)
	if section == nil {
		return fail("Section not found", fmt.Sprintf("No section is titled %q.", p.CurrentName))
	}
	previous := section.Title
	if err := e.flow.RenameSection(section.ID, p.NewName); err != nil {
		return fail("Section not renamed", err.Error())
	}
	return ok("Renamed section", fmt.Sprintf("Renamed section %q to %q.", previous, strings.TrimSpace(p.NewName)), nil)
}

func (e *Executor) deleteSection(ctx context.Context, raw json.RawMessage) Result {
	p, bad := decode[DeleteSectionParams](raw)
	if bad != nil {
		return *bad
	}
	if strings.TrimSpace(p.Name) == "" {
		return fail("Missing name", "Name the section to delete.")
	}
	section := e.resolver.Section(p.Name)
	if section == nil {
		return fail("Section not found", fmt.Sprintf("No section is titled %q.", p.Name))
	}
	title := section.Title
	removed, err := e.flow.DeleteSection(section.ID)
	if err != nil {
		return fail("Section not deleted", err.Error())
	}

	var notes strings.Builder
	for i := range removed {
		if removed[i].Audio != nil && removed[i].Audio.IsSynthesized() {
			notes.WriteString(e.deleteAsset(ctx, removed[i].Audio.Path))
		}
	}
	return ok("Deleted section",
		fmt.Sprintf("Deleted section %q and its %d steps.%s", title, len(removed), notes.String()),
		map[string]any{"removed_steps": len(removed)})
}

func (e *Executor) deleteStep(ctx context.Context, raw json.RawMessage) Result {
	p, bad := decode[DeleteStepParams](raw)
	if bad != nil {
		return *bad
	}
	step := e.resolver.FindStep(resolver.MatchContains, p.Description, p.SectionName)
	if step == nil {
		return fail("Step not found", fmt.Sprintf("No step matches %q.", p.Description))
	}
	removed, err := e.flow.DeleteStep(step.ID)
	if err != nil {
		return fail("Step not deleted", err.Error())
	}
	note := ""
	if removed.Audio != nil && removed.Audio.IsSynthesized() {
		note = e.deleteAsset(ctx, removed.Audio.Path)
	}
	return ok("Deleted step", fmt.Sprintf("Deleted step %q.%s", removed.Description, note), nil)
}

func (e *Executor) updateFlowTitle(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[ValueParams](raw)
	if bad != nil {
		return *bad
	}
	value := strings.TrimSpace(p.Value)
	if value == "" {
		return fail("Missing title", "The flow title cannot be empty.")
	}
	e.flow.Title = value
	return ok("Updated title", fmt.Sprintf("The flow is now titled %q.", value), nil)
}

func (e *Executor) updateFlowDescription(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[ValueParams](raw)
	if bad != nil {
		return *bad
	}
	e.flow.Description = strings.TrimSpace(p.Value)
	if e.flow.Description == "" {
		return ok("Cleared description", "The flow description was cleared.", nil)
	}
	return ok("Updated description", "The flow description was updated.", nil)
}

func (e *Executor) updateFlowCategory(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[ValueParams](raw)
	if bad != nil {
		return *bad
	}
	value := strings.TrimSpace(p.Value)
	if value == "" {
		return fail("Missing category", "The flow category cannot be empty.")
	}
	e.flow.Category = value
	return ok("Updated category", fmt.Sprintf("The flow category is now %q.", value), nil)
}

func (e *Executor) updateFlowLanguage(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[UpdateFlowLanguageParams](raw)
	if bad != nil {
		return *bad
	}
	value := strings.TrimSpace(p.Language)
	if value == "" {
		return fail("Missing language", "Name the language as a tag such as en or fr.")
	}
	tag, err := language.Parse(value)
	if err != nil {
		return fail("Invalid language", fmt.Sprintf("%q is not a valid language tag.", value))
	}
	e.flow.Language = tag.String()
	return ok("Updated language", fmt.Sprintf("The flow language is now %s.", e.flow.Language), nil)
}

func (e *Executor) updateStepDescription(ctx context.Context, raw json.RawMessage) Result {
	p, bad := decode[UpdateStepDescriptionParams](raw)
	if bad != nil {
		return *bad
	}
	newDescription := strings.TrimSpace(p.NewDescription)
	if strings.TrimSpace(p.CurrentDescription) == "" || newDescription == "" {
		return fail("Missing description", "Both the current and the new description are required.")
	}
	step := e.resolver.FindStep(resolver.MatchContains, p.CurrentDescription, p.SectionName)
	if step == nil {
		return fail("Step not found", fmt.Sprintf("No step matches %q.", p.CurrentDescription))
	}
	previous := step.Description
	step.Description = newDescription
	note := e.releaseSynthesizedAudio(ctx, step)
	return ok("Updated step", fmt.Sprintf("Changed %q to %q.%s", previous, newDescription, note),
		map[string]any{"step_id": step.ID})
}

func (e *Executor) batchUpdateSteps(ctx context.Context, raw json.RawMessage) Result {
	p, bad := decode[BatchUpdateStepsParams](raw)
	if bad != nil {
		return *bad
	}
	section := e.resolver.Section(p.SectionName)
	if strings.TrimSpace(p.SectionName) == "" || section == nil {
		return fail("Section not found", fmt.Sprintf("No section is titled %q.", p.SectionName))
	}
	if len(p.Updates) == 0 {
		return fail("No updates", "No step updates were given.")
	}

	updated, failed := 0, 0
	var notes strings.Builder
	for _, u := range p.Updates {
		newDescription := strings.TrimSpace(u.NewDescription)
		if strings.TrimSpace(u.CurrentDescription) == "" || newDescription == "" {
			failed++
			continue
		}
		step := e.resolver.FindStep(resolver.MatchContains, u.CurrentDescription, section.Title)
		if step == nil {
			failed++
			continue
		}
		step.Description = newDescription
		notes.WriteString(e.releaseSynthesizedAudio(ctx, step))
		updated++
	}

	data := map[string]any{"updated": updated, "failed": failed}
	message := fmt.Sprintf("Updated %d of %d steps in section %q.%s", updated, len(p.Updates), section.Title, notes.String())
	if updated == 0 {
		return Result{Action: "Steps not updated", Message: message, Data: data}
	}
	return ok("Updated steps", message, data)
}

func (e *Executor) setStepTimer(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[SetStepTimerParams](raw)
	if bad != nil {
		return *bad
	}
	if p.Minutes < 0 || p.Minutes > MaxTimerMinutes {
		return fail("Invalid timer", fmt.Sprintf("Timers must be between 0 and %d minutes.", MaxTimerMinutes))
	}
	step := e.resolver.FindStep(resolver.MatchExact, p.StepDescription, "")
	if step == nil {
		return fail("Step not found", fmt.Sprintf("No step is described exactly as %q.", p.StepDescription))
	}
	step.TimerMinutes = p.Minutes
	if p.Minutes == 0 {
		return ok("Removed timer", fmt.Sprintf("Removed the timer from %q.", step.Description), nil)
	}
	return ok("Set timer", fmt.Sprintf("Set a %d minute timer on %q.", p.Minutes, step.Description), nil)
}

func (e *Executor) setStepType(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[SetStepTypeParams](raw)
	if bad != nil {
		return *bad
	}
	stepType, valid := flow.ParseStepType(p.Type)
	if !valid {
		return fail("Invalid type", fmt.Sprintf("%q is not a step type. Use normal or check.", p.Type))
	}
	step := e.resolver.FindStep(resolver.MatchExact, p.StepDescription, "")
	if step == nil {
		return fail("Step not found", fmt.Sprintf("No step is described exactly as %q.", p.StepDescription))
	}
	if err := e.flow.SetStepType(step.ID, stepType); err != nil {
		return fail("Type not changed", err.Error())
	}
	return ok("Changed step type", fmt.Sprintf("%q is now a %s step.", step.Description, stepType), nil)
}

func (e *Executor) setCheckBranching(_ context.Context, raw json.RawMessage) Result {
	p, bad := decode[SetCheckBranchingParams](raw)
	if bad != nil {
		return *bad
	}
	step := e.resolver.FindStep(resolver.MatchExact, p.StepDescription, "")
	if step == nil {
		return fail("Step not found", fmt.Sprintf("No step is described exactly as %q.", p.StepDescription))
	}

	okID, found := e.branchTarget(p.OKNext)
	if !found {
		return fail("Target not found", fmt.Sprintf("No step is described exactly as %q.", p.OKNext))
	}
	nokID, found := e.branchTarget(p.NOKNext)
	if !found {
		return fail("Target not found", fmt.Sprintf("No step is described exactly as %q.", p.NOKNext))
	}

	if err := e.flow.SetBranching(step.ID, okID, nokID); err != nil {
		return fail("Branching not set", err.Error())
	}
	return ok("Set branching", fmt.Sprintf("%q is now a check: on success %s, on failure %s.",
		step.Description, e.describeTarget(okID), e.describeTarget(nokID)),
		map[string]any{"ok_next": okID, "nok_next": nokID})
}

// branchTarget resolves a branch description. Empty means no explicit target.
func (e *Executor) branchTarget(description string) (string, bool) {
	if strings.TrimSpace(description) == "" {
		return "", true
	}
	target := e.resolver.FindStep(resolver.MatchExact, description, "")
	if target == nil {
		return "", false
	}
	return target.ID, true
}

func (e *Executor) describeTarget(id string) string {
	if id == "" {
		return "continue with the next step"
	}
	target := e.flow.StepByID(id)
	if target == nil {
		return "continue with the next step"
	}
	return fmt.Sprintf("go to %q in %q", target.Description, e.sectionTitle(target.SectionID))
}

func (e *Executor) queryStructure(_ context.Context, raw json.RawMessage) Result {
	if _, bad := decode[QueryStructureParams](raw); bad != nil {
		return *bad
	}
	return ok("Read structure", e.flow.Outline(e.previewLength), nil)
}
