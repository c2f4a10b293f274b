package operation_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/operation"
)

type fakeAssets struct {
	deleted   []string
	deleteErr error
}

func (f *fakeAssets) PutAsset(context.Context, string, string, []byte, string) (string, error) {
	return "", nil
}

func (f *fakeAssets) DeleteAsset(_ context.Context, _ string, path string) error {
	f.deleted = append(f.deleted, path)
	return f.deleteErr
}

func (f *fakeAssets) AbsolutePath(flowID, rel string) string { return flowID + "/" + rel }

func (f *fakeAssets) Exists(context.Context, string) bool { return true }

func args(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func prepCookFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f := flow.New("Pasta")
	f.AddSection("Prep")
	cook := f.AddSection("Cook")
	_, err := f.AddStep(cook.ID, "Boil water")
	require.NoError(t, err)
	return f
}

func newExecutor(f *flow.Flow, assets flow.AssetStore) *operation.Executor {
	return operation.NewExecutor(f, assets, 60, zerolog.Nop())
}

func TestSetCheckBranching_ClearsOKAndTargetsSelf(t *testing.T) {
	f := prepCookFlow(t)
	step := &f.Steps[0]
	step.OKNext = "stp_previous"
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpSetCheckBranching, args(t, map[string]string{
		"step_description": "Boil water",
		"ok_next":          "",
		"nok_next":         "Boil water",
	}))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, flow.StepTypeCheck, step.Type)
	assert.Empty(t, step.OKNext)
	assert.Equal(t, step.ID, step.NOKNext)
}

func TestSetCheckBranching_UnresolvedTargetLeavesStepUntouched(t *testing.T) {
	f := prepCookFlow(t)
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpSetCheckBranching, args(t, map[string]string{
		"step_description": "Boil water",
		"nok_next":         "Missing step",
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "Target not found", res.Action)
	assert.Equal(t, flow.StepTypeNormal, f.Steps[0].Type)
}

func TestAddSectionWithSteps_OnEmptyFlow(t *testing.T) {
	f := flow.New("Kitchen")
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpAddSectionWithSteps, args(t, map[string]any{
		"title": "Cleanup",
		"steps": []string{"Wipe counter", "Wash hands"},
	}))

	require.True(t, res.Success)
	assert.Contains(t, res.Message, "Added 2 of 2 steps")
	require.Len(t, f.Sections, 1)
	steps := f.StepsInSection(f.Sections[0].ID)
	require.Len(t, steps, 2)
	assert.Equal(t, "Wipe counter", steps[0].Description)
	assert.Equal(t, 0, steps[0].Order)
	assert.Equal(t, "Wash hands", steps[1].Description)
	assert.Equal(t, 1, steps[1].Order)
}

func TestBatchUpdateSteps_CountsPartialSuccess(t *testing.T) {
	f := prepCookFlow(t)
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpBatchUpdateSteps, args(t, map[string]any{
		"section_name": "Cook",
		"updates": []map[string]string{
			{"current_description": "boil", "new_description": "Boil salted water"},
			{"current_description": "fry", "new_description": "Fry onions"},
		},
	}))

	require.True(t, res.Success)
	data, isMap := res.Data.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, 1, data["updated"])
	assert.Equal(t, 1, data["failed"])
	assert.Contains(t, res.Message, "Updated 1 of 2 steps")
	assert.Equal(t, "Boil salted water", f.Steps[0].Description)
}

func TestBatchUpdateSteps_StaysInsideSection(t *testing.T) {
	f := prepCookFlow(t)
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpBatchUpdateSteps, args(t, map[string]any{
		"section_name": "Prep",
		"updates":      []map[string]string{{"current_description": "boil", "new_description": "x"}},
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "Boil water", f.Steps[0].Description)
}

func TestUpdateStepDescription_RemovesOnlySynthesizedAudio(t *testing.T) {
	f := prepCookFlow(t)
	cook := f.Sections[1]
	userStep, err := f.AddStep(cook.ID, "Drain pasta")
	require.NoError(t, err)

	generated := flow.SynthesizedAssetName(f.Steps[0].ID, "alloy", "mp3")
	f.Steps[0].Audio = &flow.Audio{Path: generated}
	f.StepByID(userStep.ID).Audio = &flow.Audio{Path: "my-recording.m4a", DisplayName: "Grandma"}

	assets := &fakeAssets{}
	e := newExecutor(f, assets)

	res := e.Execute(context.Background(), operation.OpUpdateStepDescription, args(t, map[string]string{
		"current_description": "boil",
		"new_description":     "Boil plenty of water",
	}))
	require.True(t, res.Success)
	assert.Nil(t, f.Steps[0].Audio)
	assert.Equal(t, []string{generated}, assets.deleted)

	res = e.Execute(context.Background(), operation.OpUpdateStepDescription, args(t, map[string]string{
		"current_description": "drain",
		"new_description":     "Drain the pasta",
	}))
	require.True(t, res.Success)
	require.NotNil(t, f.StepByID(userStep.ID).Audio)
	assert.Equal(t, "my-recording.m4a", f.StepByID(userStep.ID).Audio.Path)
	assert.Len(t, assets.deleted, 1)
}

func TestUpdateStepDescription_DeleteFailureDoesNotFailUpdate(t *testing.T) {
	f := prepCookFlow(t)
	f.Steps[0].Audio = &flow.Audio{Path: "x.mp3", DisplayName: "Step __tts__"}
	e := newExecutor(f, &fakeAssets{deleteErr: errors.New("disk full")})

	res := e.Execute(context.Background(), operation.OpUpdateStepDescription, args(t, map[string]string{
		"current_description": "Boil water",
		"new_description":     "Boil",
	}))
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "disk full")
	assert.Nil(t, f.Steps[0].Audio)
}

func TestDeleteSection_RemovesStepsAndGeneratedAudio(t *testing.T) {
	f := prepCookFlow(t)
	f.Steps[0].Audio = &flow.Audio{Path: flow.SynthesizedAssetName(f.Steps[0].ID, "alloy", "mp3")}
	assets := &fakeAssets{}
	e := newExecutor(f, assets)

	res := e.Execute(context.Background(), operation.OpDeleteSection, args(t, map[string]string{"name": "cook"}))
	require.True(t, res.Success)
	assert.Empty(t, f.Steps)
	assert.Len(t, f.Sections, 1)
	assert.Len(t, assets.deleted, 1)
}

func TestSetStepTimer(t *testing.T) {
	f := prepCookFlow(t)
	e := newExecutor(f, nil)
	ctx := context.Background()

	res := e.Execute(ctx, operation.OpSetStepTimer, args(t, map[string]any{"step_description": "boil water", "minutes": 10}))
	require.True(t, res.Success)
	assert.Equal(t, 10, f.Steps[0].TimerMinutes)

	res = e.Execute(ctx, operation.OpSetStepTimer, args(t, map[string]any{"step_description": "Boil", "minutes": 5}))
	assert.False(t, res.Success, "timer lookup is exact")

	res = e.Execute(ctx, operation.OpSetStepTimer, args(t, map[string]any{"step_description": "Boil water", "minutes": 2000}))
	assert.False(t, res.Success)
	assert.Equal(t, 10, f.Steps[0].TimerMinutes)
}

func TestSetStepType_NormalClearsBranches(t *testing.T) {
	f := prepCookFlow(t)
	require.NoError(t, f.SetBranching(f.Steps[0].ID, f.Steps[0].ID, ""))
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpSetStepType, args(t, map[string]string{"step_description": "Boil water", "type": "Normal"}))
	require.True(t, res.Success)
	assert.Equal(t, flow.StepTypeNormal, f.Steps[0].Type)
	assert.Empty(t, f.Steps[0].OKNext)
}

func TestUpdateFlowLanguage(t *testing.T) {
	f := prepCookFlow(t)
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpUpdateFlowLanguage, args(t, map[string]string{"language": "fr-ca"}))
	require.True(t, res.Success)
	assert.Equal(t, "fr-CA", f.Language)

	res = e.Execute(context.Background(), operation.OpUpdateFlowLanguage, args(t, map[string]string{"language": "not a language"}))
	assert.False(t, res.Success)
	assert.Equal(t, "fr-CA", f.Language)
}

func TestAddStep_Resolution(t *testing.T) {
	ctx := context.Background()

	empty := flow.New("Empty")
	res := newExecutor(empty, nil).Execute(ctx, operation.OpAddStep, args(t, map[string]string{"description": "x"}))
	assert.False(t, res.Success)

	f := prepCookFlow(t)
	e := newExecutor(f, nil)
	res = e.Execute(ctx, operation.OpAddStep, args(t, map[string]string{"description": "Wash tomatoes"}))
	require.True(t, res.Success)
	assert.Len(t, f.StepsInSection(f.Sections[0].ID), 1, "defaults to first section")

	res = e.Execute(ctx, operation.OpAddStep, args(t, map[string]string{"description": "x", "section_name": "Serve"}))
	assert.False(t, res.Success)
	assert.Equal(t, "Section not found", res.Action)
}

func TestExecute_MalformedAndUnknown(t *testing.T) {
	f := prepCookFlow(t)
	e := newExecutor(f, nil)

	res := e.Execute(context.Background(), operation.OpAddSection, json.RawMessage(`{"title": `))
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid arguments", res.Action)
	assert.NotEmpty(t, res.Message)

	res = e.Execute(context.Background(), "drop_database", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown operation", res.Action)
	assert.Equal(t, "drop_database", res.Operation)
}

func TestQueryStructure_ReturnsOutline(t *testing.T) {
	f := prepCookFlow(t)
	res := newExecutor(f, nil).Execute(context.Background(), operation.OpQueryStructure, nil)
	require.True(t, res.Success)
	assert.Equal(t, f.Outline(60), res.Message)
}

func TestMutates(t *testing.T) {
	assert.False(t, operation.Mutates(operation.OpQueryStructure))
	assert.False(t, operation.Mutates("no_such_operation"))
	for _, name := range operation.Names() {
		if name != operation.OpQueryStructure {
			assert.True(t, operation.Mutates(name), name)
		}
	}
}

func TestCatalog(t *testing.T) {
	tools := operation.Catalog()
	require.Len(t, tools, len(operation.Names()))

	for i, tool := range tools {
		assert.Equal(t, "function", tool.Type)
		assert.Equal(t, operation.Names()[i], tool.Function.Name)
		assert.NotEmpty(t, tool.Function.Description)
		assert.Equal(t, "object", tool.Function.Parameters["type"])
		assert.Contains(t, tool.Function.Parameters, "properties")
		assert.True(t, operation.Known(tool.Function.Name))
	}

	var branching map[string]any
	for _, tool := range tools {
		if tool.Function.Name == operation.OpSetCheckBranching {
			branching = tool.Function.Parameters
		}
	}
	require.NotNil(t, branching)
	assert.ElementsMatch(t, []any{"step_description"}, branching["required"])
}
