package operation

// Operation names as exposed to the inference provider.
const (
	OpAddSection            = "add_section"
	OpAddStep               = "add_step"
	OpAddSectionWithSteps   = "add_section_with_steps"
	OpRenameSection         = "rename_section"
	OpDeleteSection         = "delete_section"
	OpDeleteStep            = "delete_step"
	OpUpdateFlowTitle       = "update_flow_title"
	OpUpdateFlowDescription = "update_flow_description"
	OpUpdateFlowLanguage    = "update_flow_language"
	OpUpdateFlowCategory    = "update_flow_category"
	OpUpdateStepDescription = "update_step_description"
	OpBatchUpdateSteps      = "batch_update_steps"
	OpSetStepTimer          = "set_step_timer"
	OpSetStepType           = "set_step_type"
	OpSetCheckBranching     = "set_check_branching"
	OpQueryStructure        = "query_structure"
)

// MaxTimerMinutes is the longest timer a step can carry (one day).
const MaxTimerMinutes = 1440

type AddSectionParams struct {
	Title string `json:"title" jsonschema:"description=Title of the new section"`
}

type AddStepParams struct {
	Description string `json:"description" jsonschema:"description=Instruction text of the new step"`
	SectionName string `json:"section_name,omitempty" jsonschema:"description=Exact title of the target section. Defaults to the first section"`
}

type AddSectionWithStepsParams struct {
	Title string   `json:"title" jsonschema:"description=Title of the new section"`
	Steps []string `json:"steps" jsonschema:"description=Step descriptions in the order they should appear"`
}

type RenameSectionParams struct {
	CurrentName string `json:"current_name" jsonschema:"description=Current exact title of the section"`
	NewName     string `json:"new_name" jsonschema:"description=New title for the section"`
}

type DeleteSectionParams struct {
	Name string `json:"name" jsonschema:"description=Exact title of the section to delete together with its steps"`
}

type DeleteStepParams struct {
	Description string `json:"description" jsonschema:"description=Part of the description of the step to delete"`
	SectionName string `json:"section_name,omitempty" jsonschema:"description=Limit the search to this section"`
}

// ValueParams carries the new value of a flow level field.
type ValueParams struct {
	Value string `json:"value" jsonschema:"description=New value"`
}

type UpdateFlowLanguageParams struct {
	Language string `json:"language" jsonschema:"description=BCP-47 language tag such as en or fr-CA"`
}

type UpdateStepDescriptionParams struct {
	CurrentDescription string `json:"current_description" jsonschema:"description=Part of the current description of the step"`
	NewDescription     string `json:"new_description" jsonschema:"description=Replacement description"`
	SectionName        string `json:"section_name,omitempty" jsonschema:"description=Limit the search to this section"`
}

type StepUpdate struct {
	CurrentDescription string `json:"current_description" jsonschema:"description=Part of the current description of the step"`
	NewDescription     string `json:"new_description" jsonschema:"description=Replacement description"`
}

type BatchUpdateStepsParams struct {
	SectionName string       `json:"section_name" jsonschema:"description=Exact title of the section whose steps are updated"`
	Updates     []StepUpdate `json:"updates" jsonschema:"description=Description replacements applied in order"`
}

type SetStepTimerParams struct {
	StepDescription string `json:"step_description" jsonschema:"description=Full description of the step"`
	Minutes         int    `json:"minutes" jsonschema:"description=Timer duration in minutes. 0 removes the timer,minimum=0,maximum=1440"`
}

type SetStepTypeParams struct {
	StepDescription string `json:"step_description" jsonschema:"description=Full description of the step"`
	Type            string `json:"type" jsonschema:"description=New step type,enum=normal,enum=check"`
}

type SetCheckBranchingParams struct {
	StepDescription string `json:"step_description" jsonschema:"description=Full description of the check step"`
	OKNext          string `json:"ok_next,omitempty" jsonschema:"description=Full description of the step to go to when the check passes. Empty continues with the next step"`
	NOKNext         string `json:"nok_next,omitempty" jsonschema:"description=Full description of the step to go to when the check fails. Empty continues with the next step"`
}

type QueryStructureParams struct{}
