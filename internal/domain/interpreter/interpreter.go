// Package interpreter drives one natural language turn through the inference provider:
// tool selection, operation execution and a final narration.
package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/llm"
	"github.com/janhq/flow-api/internal/domain/operation"
	"github.com/janhq/flow-api/internal/infrastructure/metrics"
)

const systemInstructions = `You edit a step-by-step flow made of ordered sections that contain ordered steps.
Use the provided tools to apply the user's request. Call several tools when the request needs several changes.
Refer to sections by their exact title. Refer to steps by their description; timer, type and branching tools need the full description.
When the request is a question about the flow, answer it from the outline below or call query_structure.
Reply in the user's language. Keep replies short.`

// Config holds the interpreter settings.
type Config struct {
	Model              string
	MaxHistoryMessages int
	PreviewLength      int
	Temperature        *float64
}

// Turn is the input of one interpreter run.
type Turn struct {
	Text     string
	History  []llm.ChatMessage
	Executor *operation.Executor
}

// Outcome is the result of a run. On failure it is returned together with the error and
// describes whatever was applied before the failure.
type Outcome struct {
	State          State              `json:"state"`
	Narration      string             `json:"narration"`
	ChangesApplied bool               `json:"changes_applied"`
	Actions        []operation.Result `json:"actions"`
	Messages       []llm.ChatMessage  `json:"-"`
	Transitions    []State            `json:"-"`
}

// Interpreter runs turns against a provider. It holds no per-turn state.
type Interpreter struct {
	provider   llm.Provider
	classifier *domainerrors.Classifier
	cfg        Config
	log        zerolog.Logger
}

// New creates an interpreter.
func New(provider llm.Provider, classifier *domainerrors.Classifier, cfg Config, log zerolog.Logger) *Interpreter {
	if classifier == nil {
		classifier = domainerrors.NewClassifier()
	}
	if cfg.MaxHistoryMessages <= 0 {
		cfg.MaxHistoryMessages = llm.DefaultMaxHistoryMessages
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = flow.DefaultPreviewLength
	}
	return &Interpreter{
		provider:   provider,
		classifier: classifier,
		cfg:        cfg,
		log:        log.With().Str("component", "interpreter").Logger(),
	}
}

type run struct {
	*Interpreter
	span    trace.Span
	log     zerolog.Logger
	outcome *Outcome
}

func (r *run) transition(target State) error {
	next, err := r.outcome.State.TransitionTo(target)
	if err != nil {
		return fmt.Errorf("%w: %s -> %s", err, r.outcome.State, target)
	}
	r.log.Debug().Str("from", r.outcome.State.String()).Str("to", target.String()).Msg("interpreter transition")
	r.span.AddEvent("transition", trace.WithAttributes(
		attribute.String("from", r.outcome.State.String()),
		attribute.String("to", target.String()),
	))
	r.outcome.State = next
	r.outcome.Transitions = append(r.outcome.Transitions, next)
	return nil
}

// fail moves the run to the failed state and returns the classified provider error.
func (r *run) fail(ctx context.Context, err error) (*Outcome, error) {
	pe := r.classifier.Classify(err)
	metrics.RecordProviderError(string(pe.Kind))
	if tErr := r.transition(StateFailed); tErr != nil {
		r.log.Error().Err(tErr).Msg("illegal transition while failing")
	}
	r.span.RecordError(pe)
	r.span.SetStatus(codes.Error, string(pe.Kind))
	r.log.Warn().Err(pe).Str("kind", string(pe.Kind)).Int("actions", len(r.outcome.Actions)).Msg("turn failed")
	metrics.RecordTurn(ctx, StateFailed.String())
	return r.outcome, pe
}

func (r *run) complete(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.ChatMessage, error) {
	req := llm.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: r.cfg.Temperature,
	}
	if len(tools) > 0 {
		req.ToolChoice = llm.ToolChoiceAuto
	}

	start := time.Now()
	resp, err := r.provider.CreateChatCompletion(ctx, req)
	metrics.ProviderDuration.WithLabelValues("chat_completions").Observe(time.Since(start).Seconds())
	if err != nil {
		return llm.ChatMessage{}, err
	}
	msg, found := resp.FirstMessage()
	if !found {
		return llm.ChatMessage{}, domainerrors.NewProviderError(domainerrors.KindUnknown, "provider returned no choices")
	}
	return msg, nil
}

// Run executes one turn. Operations applied before a provider failure stay applied; the
// returned outcome lists them alongside the error.
func (i *Interpreter) Run(ctx context.Context, turn Turn) (*Outcome, error) {
	if turn.Executor == nil {
		return nil, fmt.Errorf("interpreter: executor is required")
	}
	f := turn.Executor.Flow()

	ctx, span := otel.Tracer("flow-api/interpreter").Start(ctx, "interpreter.turn",
		trace.WithAttributes(attribute.String("flow.id", f.ID)))
	defer span.End()

	r := &run{
		Interpreter: i,
		span:        span,
		log:         i.log.With().Str("flow_id", f.ID).Logger(),
		outcome:     &Outcome{State: StateAwaitingToolSelection},
	}
	r.outcome.Transitions = []State{StateAwaitingToolSelection}

	userMessage := llm.ChatMessage{Role: llm.RoleUser, Content: turn.Text}
	messages := make([]llm.ChatMessage, 0, len(turn.History)+4)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: i.systemPrompt(f)})
	messages = append(messages, llm.TrimHistory(turn.History, i.cfg.MaxHistoryMessages)...)
	messages = append(messages, userMessage)
	r.outcome.Messages = append(r.outcome.Messages, userMessage)

	tools := operation.Catalog()
	selection, err := r.complete(ctx, messages, tools)
	if err != nil {
		return r.fail(ctx, err)
	}

	if len(selection.ToolCalls) == 0 {
		if err := r.transition(StateDone); err != nil {
			return r.outcome, err
		}
		selection.Role = llm.RoleAssistant
		r.outcome.Narration = strings.TrimSpace(selection.Content)
		r.outcome.Messages = append(r.outcome.Messages, selection)
		metrics.RecordTurn(ctx, StateDone.String())
		return r.outcome, nil
	}

	if err := r.transition(StateExecutingOperations); err != nil {
		return r.outcome, err
	}
	selection.Role = llm.RoleAssistant
	messages = append(messages, selection)
	r.outcome.Messages = append(r.outcome.Messages, selection)

	for _, call := range selection.ToolCalls {
		result := turn.Executor.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
		r.outcome.Actions = append(r.outcome.Actions, result)
		if result.Success && operation.Mutates(call.Function.Name) {
			r.outcome.ChangesApplied = true
		}
		toolMessage := llm.ChatMessage{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    toolContent(result),
		}
		messages = append(messages, toolMessage)
		r.outcome.Messages = append(r.outcome.Messages, toolMessage)
	}

	if err := r.transition(StateAwaitingNarration); err != nil {
		return r.outcome, err
	}
	narration, err := r.complete(ctx, messages, tools)
	if err != nil {
		return r.fail(ctx, err)
	}
	if err := r.transition(StateDone); err != nil {
		return r.outcome, err
	}

	narration.Role = llm.RoleAssistant
	narration.ToolCalls = nil
	r.outcome.Narration = strings.TrimSpace(narration.Content)
	if r.outcome.Narration == "" {
		r.outcome.Narration = summarize(r.outcome.Actions)
		narration.Content = r.outcome.Narration
	}
	r.outcome.Messages = append(r.outcome.Messages, narration)

	span.SetAttributes(
		attribute.Int("turn.actions", len(r.outcome.Actions)),
		attribute.Bool("turn.changes_applied", r.outcome.ChangesApplied),
	)
	metrics.RecordTurn(ctx, StateDone.String())
	r.log.Info().Int("actions", len(r.outcome.Actions)).Bool("changes_applied", r.outcome.ChangesApplied).Msg("turn completed")
	return r.outcome, nil
}

func (i *Interpreter) systemPrompt(f *flow.Flow) string {
	return systemInstructions + "\n\nCurrent flow:\n" + f.Outline(i.cfg.PreviewLength)
}

func toolContent(result operation.Result) string {
	if result.Success {
		return result.Message
	}
	return "Failed (" + result.Action + "): " + result.Message
}

func summarize(actions []operation.Result) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, a.Message)
	}
	return strings.Join(parts, " ")
}
