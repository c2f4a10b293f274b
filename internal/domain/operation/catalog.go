package operation

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/janhq/flow-api/internal/domain/llm"
)

type handlerFunc func(e *Executor, ctx context.Context, raw json.RawMessage) Result

type descriptor struct {
	name        string
	description string
	params      any
	handle      handlerFunc
	mutates     bool
}

// descriptors is the fixed operation catalog in presentation order.
var descriptors = []descriptor{
	{OpAddSection, "Add a new empty section at the end of the flow.", &AddSectionParams{}, (*Executor).addSection, true},
	{OpAddStep, "Add a step at the end of a section.", &AddStepParams{}, (*Executor).addStep, true},
	{OpAddSectionWithSteps, "Add a new section and fill it with steps.", &AddSectionWithStepsParams{}, (*Executor).addSectionWithSteps, true},
	{OpRenameSection, "Rename an existing section.", &RenameSectionParams{}, (*Executor).renameSection, true},
	{OpDeleteSection, "Delete a section and every step in it.", &DeleteSectionParams{}, (*Executor).deleteSection, true},
	{OpDeleteStep, "Delete the first step whose description contains the given text.", &DeleteStepParams{}, (*Executor).deleteStep, true},
	{OpUpdateFlowTitle, "Change the title of the flow.", &ValueParams{}, (*Executor).updateFlowTitle, true},
	{OpUpdateFlowDescription, "Change the description of the flow. An empty value clears it.", &ValueParams{}, (*Executor).updateFlowDescription, true},
	{OpUpdateFlowLanguage, "Change the language of the flow.", &UpdateFlowLanguageParams{}, (*Executor).updateFlowLanguage, true},
	{OpUpdateFlowCategory, "Change the category of the flow.", &ValueParams{}, (*Executor).updateFlowCategory, true},
	{OpUpdateStepDescription, "Rewrite the description of the first step containing the given text.", &UpdateStepDescriptionParams{}, (*Executor).updateStepDescription, true},
	{OpBatchUpdateSteps, "Rewrite several step descriptions inside one section.", &BatchUpdateStepsParams{}, (*Executor).batchUpdateSteps, true},
	{OpSetStepTimer, "Set or clear the timer of a step.", &SetStepTimerParams{}, (*Executor).setStepTimer, true},
	{OpSetStepType, "Make a step a normal step or a yes/no check.", &SetStepTypeParams{}, (*Executor).setStepType, true},
	{OpSetCheckBranching, "Turn a step into a check and choose where the flow continues on success and on failure.", &SetCheckBranchingParams{}, (*Executor).setCheckBranching, true},
	{OpQueryStructure, "Return the current outline of the flow without changing it.", &QueryStructureParams{}, (*Executor).queryStructure, false},
}

var byName = func() map[string]descriptor {
	m := make(map[string]descriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.name] = d
	}
	return m
}()

// Names lists every operation name in catalog order.
func Names() []string {
	out := make([]string, len(descriptors))
	for i, d := range descriptors {
		out[i] = d.name
	}
	return out
}

// Known reports whether name is part of the catalog.
func Known(name string) bool {
	_, ok := byName[name]
	return ok
}

// Mutates reports whether a successful call of the named operation changes the flow.
func Mutates(name string) bool {
	return byName[name].mutates
}

// Catalog returns the tool definitions sent to the inference provider.
func Catalog() []llm.ToolDefinition {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}

	tools := make([]llm.ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, llm.ToolDefinition{
			Type: "function",
			Function: llm.ToolFunctionSchema{
				Name:        d.name,
				Description: d.description,
				Parameters:  schemaMap(reflector.Reflect(d.params)),
			},
		})
	}
	return tools
}

func schemaMap(schema *jsonschema.Schema) map[string]any {
	out := map[string]any{}
	data, err := json.Marshal(schema)
	if err == nil {
		_ = json.Unmarshal(data, &out)
	}
	delete(out, "$schema")
	delete(out, "$id")
	out["type"] = "object"
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}
