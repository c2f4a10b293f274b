package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/cache"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/interpreter"
	"github.com/janhq/flow-api/internal/domain/llm"
	"github.com/janhq/flow-api/internal/domain/operation"
	"github.com/janhq/flow-api/internal/domain/session"
	"github.com/janhq/flow-api/internal/domain/speech"
	"github.com/janhq/flow-api/internal/domain/translation"
	"github.com/janhq/flow-api/internal/utils/platformerrors"
)

type memoryStore struct {
	mu    sync.Mutex
	flows map[string]*flow.Flow
	saves int
}

func newMemoryStore(flows ...*flow.Flow) *memoryStore {
	m := &memoryStore{flows: map[string]*flow.Flow{}}
	for _, f := range flows {
		m.flows[f.ID] = f.Clone()
	}
	return m
}

func (m *memoryStore) Load(_ context.Context, id string) (*flow.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, found := m.flows[id]
	if !found {
		return nil, flow.ErrNotFound
	}
	return f.Clone(), nil
}

func (m *memoryStore) Save(_ context.Context, f *flow.Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[f.ID] = f.Clone()
	m.saves++
	return nil
}

func (m *memoryStore) saved(id string) *flow.Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flows[id]
}

func (m *memoryStore) PutAsset(_ context.Context, _ string, name string, _ []byte, _ string) (string, error) {
	return "assets/" + name, nil
}
func (m *memoryStore) DeleteAsset(context.Context, string, string) error { return nil }
func (m *memoryStore) AbsolutePath(flowID, rel string) string           { return flowID + "/" + rel }
func (m *memoryStore) Exists(context.Context, string) bool              { return true }

// scriptedProvider answers each request with the next scripted response.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.ChatCompletionResponse
	err       error
}

func (p *scriptedProvider) push(msgs ...llm.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		m.Role = llm.RoleAssistant
		p.responses = append(p.responses, &llm.ChatCompletionResponse{Choices: []llm.ChatCompletionChoice{{Message: m}}})
	}
}

func (p *scriptedProvider) CreateChatCompletion(context.Context, llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil && len(p.responses) == 0 {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	return next, nil
}

func rename(title string) []llm.ChatMessage {
	return []llm.ChatMessage{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Type: "function", Function: llm.ToolFunction{
			Name: operation.OpUpdateFlowTitle, Arguments: `{"value":"` + title + `"}`,
		}}}},
		{Content: "Renamed to " + title},
	}
}

type fakeSpeech struct{}

func (fakeSpeech) CreateSpeech(context.Context, llm.SpeechRequest) ([]byte, error) {
	return []byte("ID3\x03\x00\x00\x00\x00\x00\x00audio"), nil
}

type fixture struct {
	svc      session.Service
	store    *memoryStore
	provider *scriptedProvider
	flowID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, flow.New("v0"), 10)
}

func newFixtureWith(t *testing.T, f *flow.Flow, capacity int) *fixture {
	t.Helper()
	store := newMemoryStore(f)
	provider := &scriptedProvider{}
	log := zerolog.Nop()

	backend, err := cache.NewMemoryBackend(16)
	require.NoError(t, err)
	translator := translation.NewService(provider, "m",
		cache.New[translation.Entry](translation.NamespaceFull, time.Hour, backend),
		cache.New[translation.Entry](translation.NamespacePreview, time.Minute, backend), log)
	speaker := speech.NewService(fakeSpeech{}, store, cache.New[speech.Entry](speech.Namespace, time.Hour, backend), speech.Config{}, log)

	interp := interpreter.New(provider, nil, interpreter.Config{Model: "m"}, log)
	svc := session.NewService(store, interp, translator, speaker, session.Config{HistoryCapacity: capacity}, log)
	return &fixture{svc: svc, store: store, provider: provider, flowID: f.ID}
}

func (fx *fixture) command(t *testing.T, title string) *session.TurnResult {
	t.Helper()
	fx.provider.push(rename(title)...)
	res, err := fx.svc.Command(context.Background(), fx.flowID, "rename to "+title)
	require.NoError(t, err)
	return res
}

func TestCommand_SavesAndRecordsOneSnapshot(t *testing.T) {
	fx := newFixture(t)

	res := fx.command(t, "v1")
	assert.True(t, res.ChangesApplied)
	assert.Equal(t, "Renamed to v1", res.Narration)
	assert.True(t, res.CanUndo)
	assert.False(t, res.CanRedo)
	assert.Equal(t, "v1", fx.store.saved(fx.flowID).Title)
	assert.Equal(t, 2, fx.store.saved(fx.flowID).Version)

	state, err := fx.svc.History(context.Background(), fx.flowID)
	require.NoError(t, err)
	assert.Len(t, state.Entries, 1)
}

func TestCommand_NoToolCallsDoesNotSave(t *testing.T) {
	fx := newFixture(t)
	fx.provider.push(llm.ChatMessage{Content: "It is called v0."})

	res, err := fx.svc.Command(context.Background(), fx.flowID, "what is it called?")
	require.NoError(t, err)
	assert.False(t, res.ChangesApplied)
	assert.False(t, res.CanUndo)
	assert.Equal(t, 0, fx.store.saves)
}

func TestCommand_QueryOnlyTurnLeavesHistoryAlone(t *testing.T) {
	fx := newFixture(t)
	fx.provider.push(
		llm.ChatMessage{ToolCalls: []llm.ToolCall{{ID: "q1", Type: "function", Function: llm.ToolFunction{
			Name: operation.OpQueryStructure, Arguments: `{}`,
		}}}},
		llm.ChatMessage{Content: "The flow has no sections yet."},
	)

	res, err := fx.svc.Command(context.Background(), fx.flowID, "what does the flow look like?")
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.True(t, res.Actions[0].Success)
	assert.False(t, res.ChangesApplied)
	assert.False(t, res.CanUndo)
	assert.Equal(t, 0, fx.store.saves)
	assert.Equal(t, 1, fx.store.saved(fx.flowID).Version)

	state, err := fx.svc.History(context.Background(), fx.flowID)
	require.NoError(t, err)
	assert.Empty(t, state.Entries)
}

func TestUndo_SmallestHistoryStillRestores(t *testing.T) {
	fx := newFixtureWith(t, flow.New("v0"), 1)
	fx.command(t, "v1")

	state, err := fx.svc.Undo(context.Background(), fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v0", state.Flow.Title)
	assert.Equal(t, "v0", fx.store.saved(fx.flowID).Title)
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.command(t, "v1")
	fx.command(t, "v2")

	state, err := fx.svc.Undo(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v1", state.Flow.Title)
	assert.Equal(t, fx.flowID, state.Flow.ID)
	assert.True(t, state.CanRedo)

	state, err = fx.svc.Undo(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v0", state.Flow.Title)
	assert.False(t, state.CanUndo)

	_, err = fx.svc.Undo(ctx, fx.flowID)
	assert.ErrorIs(t, err, session.ErrNothingToUndo)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	state, err = fx.svc.Redo(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v1", state.Flow.Title)
	state, err = fx.svc.Redo(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v2", state.Flow.Title)
	assert.Equal(t, "v2", fx.store.saved(fx.flowID).Title)

	_, err = fx.svc.Redo(ctx, fx.flowID)
	assert.ErrorIs(t, err, session.ErrNothingToRedo)
}

func TestCommand_AfterUndoDropsRedo(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.command(t, "v1")
	fx.command(t, "v2")
	_, err := fx.svc.Undo(ctx, fx.flowID)
	require.NoError(t, err)

	res := fx.command(t, "v3")
	assert.False(t, res.CanRedo)

	state, err := fx.svc.Undo(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v1", state.Flow.Title)
	state, err = fx.svc.Undo(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v0", state.Flow.Title)
}

func TestCommand_ProviderFailureStillSavesAppliedOperations(t *testing.T) {
	fx := newFixture(t)
	fx.provider.push(rename("v1")[0])
	fx.provider.err = domainerrors.NewProviderError(domainerrors.KindTimeout, "")

	_, err := fx.svc.Command(context.Background(), fx.flowID, "rename")
	require.Error(t, err)
	assert.True(t, domainerrors.IsKind(err, domainerrors.KindTimeout))
	assert.Equal(t, "v1", fx.store.saved(fx.flowID).Title)

	state, err := fx.svc.History(context.Background(), fx.flowID)
	require.NoError(t, err)
	assert.True(t, state.CanUndo)
}

func TestCommand_Validation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Command(context.Background(), fx.flowID, "   ")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	_, err = fx.svc.Command(context.Background(), "flw_missing", "hello")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestEndAndReap(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.command(t, "v1")

	require.NoError(t, fx.svc.End(ctx, fx.flowID))
	err := fx.svc.End(ctx, fx.flowID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	state, err := fx.svc.History(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Empty(t, state.Entries)

	assert.Equal(t, 0, fx.svc.ReapIdle(time.Hour))
	time.Sleep(2 * time.Millisecond)
	assert.Equal(t, 1, fx.svc.ReapIdle(time.Millisecond))
}

func TestSynthesize_AttachedAudioIsUndoable(t *testing.T) {
	f := flow.New("v0")
	section := f.AddSection("Cook")
	_, err := f.AddStep(section.ID, "Boil water")
	require.NoError(t, err)
	fx := newFixtureWith(t, f, 10)
	ctx := context.Background()

	fx.command(t, "v1")
	_, err = fx.svc.Undo(ctx, fx.flowID)
	require.NoError(t, err)

	res, err := fx.svc.Synthesize(ctx, fx.flowID, speech.Request{Voice: "nova"})
	require.NoError(t, err)
	require.Len(t, res.Generated, 1)

	state, err := fx.svc.History(ctx, fx.flowID)
	require.NoError(t, err)
	assert.True(t, state.CanUndo)
	assert.False(t, state.CanRedo)

	state, err = fx.svc.Undo(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Nil(t, state.Flow.Steps[0].Audio)

	state, err = fx.svc.Redo(ctx, fx.flowID)
	require.NoError(t, err)
	require.NotNil(t, state.Flow.Steps[0].Audio)
	assert.Equal(t, res.Generated[0].Path, state.Flow.Steps[0].Audio.Path)
}

func TestAcquire_EndedSessionIsNotReused(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.command(t, "v1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = fx.svc.History(ctx, fx.flowID)
		}()
		go func() {
			defer wg.Done()
			_ = fx.svc.End(ctx, fx.flowID)
		}()
	}
	wg.Wait()

	fx.command(t, "v2")
	got, err := fx.svc.Get(ctx, fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, "v2", fx.store.saved(fx.flowID).Title)
}

func TestTranslate_InvalidLanguageIsValidation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Translate(context.Background(), fx.flowID, translation.Request{TargetLanguage: "??"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestCreateAndGet(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, session.CreateRequest{Title: " "})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	_, err = fx.svc.Create(ctx, session.CreateRequest{Title: "Tea", Language: "not a language!"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	created, err := fx.svc.Create(ctx, session.CreateRequest{Title: " Tea ", Language: "EN-us"})
	require.NoError(t, err)
	assert.Equal(t, "Tea", created.Title)
	assert.Equal(t, "en-US", created.Language)

	got, err := fx.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = fx.svc.Get(ctx, "flw_missing")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestGet_ReturnsLiveSessionFlow(t *testing.T) {
	fx := newFixture(t)
	fx.command(t, "v1")

	got, err := fx.svc.Get(context.Background(), fx.flowID)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title)
}
