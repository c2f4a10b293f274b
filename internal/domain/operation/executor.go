// Package operation applies the structured operations chosen by the inference provider to a flow.
//
// Local problems such as bad arguments or unresolved names never surface as Go errors. They
// become unsuccessful Results so the remaining operations of a turn still run.
package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/resolver"
	"github.com/janhq/flow-api/internal/infrastructure/metrics"
)

// Result is the outcome of one operation. Action and Message are always set.
type Result struct {
	Operation string `json:"operation"`
	Action    string `json:"action"`
	Message   string `json:"message"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
}

func ok(action, message string, data any) Result {
	return Result{Action: action, Message: message, Success: true, Data: data}
}

func fail(action, message string) Result {
	return Result{Action: action, Message: message}
}

// Executor applies operations to one flow.
type Executor struct {
	flow          *flow.Flow
	assets        flow.AssetStore
	resolver      *resolver.Resolver
	previewLength int
	log           zerolog.Logger
}

// NewExecutor binds an executor to the live flow. assets may be nil, in which case synthesized
// audio is detached but no file is deleted.
func NewExecutor(f *flow.Flow, assets flow.AssetStore, previewLength int, log zerolog.Logger) *Executor {
	return &Executor{
		flow:          f,
		assets:        assets,
		resolver:      resolver.New(f),
		previewLength: previewLength,
		log:           log.With().Str("component", "operation-executor").Str("flow_id", f.ID).Logger(),
	}
}

// Flow returns the flow the executor mutates.
func (e *Executor) Flow() *flow.Flow { return e.flow }

// Execute decodes rawArgs for the named operation and applies it.
func (e *Executor) Execute(ctx context.Context, name string, rawArgs json.RawMessage) Result {
	ctx, span := otel.Tracer("flow-api/operation").Start(ctx, "operation."+name)
	defer span.End()

	var result Result
	if d, found := byName[name]; found {
		result = d.handle(e, ctx, rawArgs)
	} else {
		result = fail("Unknown operation", fmt.Sprintf("The operation %q is not available.", name))
	}
	result.Operation = name

	span.SetAttributes(
		attribute.String("operation.name", name),
		attribute.Bool("operation.success", result.Success),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
	}
	metrics.RecordOperation(ctx, name, result.Success)

	e.log.Debug().
		Str("operation", name).
		Bool("success", result.Success).
		Str("action", result.Action).
		Msg("operation executed")
	return result
}

// decode unmarshals operation arguments. Empty input decodes to the zero value.
func decode[T any](raw json.RawMessage) (T, *Result) {
	var params T
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &params); err != nil {
		r := fail("Invalid arguments", fmt.Sprintf("The arguments could not be read: %v.", err))
		return params, &r
	}
	return params, nil
}

// releaseSynthesizedAudio detaches machine generated audio from a step and deletes the file.
// User supplied audio is left alone. The returned note is appended to the result message.
func (e *Executor) releaseSynthesizedAudio(ctx context.Context, step *flow.Step) string {
	if step.Audio == nil || !step.Audio.IsSynthesized() {
		return ""
	}
	path := step.Audio.Path
	step.Audio = nil
	return e.deleteAsset(ctx, path)
}

func (e *Executor) deleteAsset(ctx context.Context, path string) string {
	if e.assets == nil {
		return " Generated audio was removed."
	}
	if err := e.assets.DeleteAsset(ctx, e.flow.ID, path); err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("failed to delete synthesized audio")
		return fmt.Sprintf(" Generated audio was detached but its file could not be deleted (%v).", err)
	}
	return " Generated audio was removed."
}

func (e *Executor) sectionTitle(id string) string {
	if s := e.flow.SectionByID(id); s != nil {
		return s.Title
	}
	return ""
}
