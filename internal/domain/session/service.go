// Package session serializes the editing turns of each flow and owns their undo history
// and conversation.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/history"
	"github.com/janhq/flow-api/internal/domain/interpreter"
	"github.com/janhq/flow-api/internal/domain/llm"
	"github.com/janhq/flow-api/internal/domain/operation"
	"github.com/janhq/flow-api/internal/domain/speech"
	"github.com/janhq/flow-api/internal/domain/translation"
	"github.com/janhq/flow-api/internal/infrastructure/metrics"
	"github.com/janhq/flow-api/internal/utils/platformerrors"
)

var (
	ErrEmptyCommand  = errors.New("command text is empty")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// MinHistoryCapacity is the smallest usable history: undo needs the "before" and the "current" state.
const MinHistoryCapacity = 2

// maxStoredMessages bounds the conversation kept per session. Requests use a smaller window.
const maxStoredMessages = 200

// Config holds the session settings.
type Config struct {
	HistoryCapacity int
	PreviewLength   int
}

// TurnResult is returned after a command.
type TurnResult struct {
	Narration      string             `json:"narration"`
	ChangesApplied bool               `json:"changes_applied"`
	Actions        []operation.Result `json:"actions"`
	CanUndo        bool               `json:"can_undo"`
	CanRedo        bool               `json:"can_redo"`
	Flow           *flow.Flow         `json:"flow"`
}

// HistoryState describes the undo history of a session.
type HistoryState struct {
	Entries []history.Entry `json:"entries"`
	Cursor  int             `json:"cursor"`
	CanUndo bool            `json:"can_undo"`
	CanRedo bool            `json:"can_redo"`
	Flow    *flow.Flow      `json:"flow,omitempty"`
}

// CreateRequest describes a new flow.
type CreateRequest struct {
	Title       string
	Description string
	Language    string
	Category    string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*flow.Flow, error)
	Get(ctx context.Context, flowID string) (*flow.Flow, error)
	Command(ctx context.Context, flowID, text string) (*TurnResult, error)
	Undo(ctx context.Context, flowID string) (*HistoryState, error)
	Redo(ctx context.Context, flowID string) (*HistoryState, error)
	History(ctx context.Context, flowID string) (*HistoryState, error)
	End(ctx context.Context, flowID string) error
	Translate(ctx context.Context, flowID string, req translation.Request) (*translation.Result, error)
	Synthesize(ctx context.Context, flowID string, req speech.Request) (*speech.Result, error)
	ReapIdle(maxIdle time.Duration) int
}

// state is the per-flow session. mu serializes everything that touches it.
type state struct {
	mu           sync.Mutex
	flow         *flow.Flow
	history      *history.Manager
	conversation []llm.ChatMessage
	// liveAhead is set when the live flow holds changes newer than the newest snapshot.
	liveAhead  bool
	lastActive time.Time
}

func (s *state) canUndo() bool {
	if s.liveAhead {
		return s.history.Len() > 0
	}
	return s.history.CanUndo()
}

func (s *state) canRedo() bool {
	return !s.liveAhead && s.history.CanRedo()
}

func (s *state) historyState() *HistoryState {
	return &HistoryState{
		Entries: s.history.Entries(),
		Cursor:  s.history.Cursor(),
		CanUndo: s.canUndo(),
		CanRedo: s.canRedo(),
	}
}

type service struct {
	store       flow.Store
	interpreter *interpreter.Interpreter
	translator  translation.Service
	speaker     speech.Service
	cfg         Config
	log         zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*state
}

// NewService creates the session service.
func NewService(store flow.Store, interp *interpreter.Interpreter, translator translation.Service, speaker speech.Service, cfg Config, log zerolog.Logger) Service {
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = history.DefaultCapacity
	}
	if cfg.HistoryCapacity < MinHistoryCapacity {
		cfg.HistoryCapacity = MinHistoryCapacity
	}
	return &service{
		store:       store,
		interpreter: interp,
		translator:  translator,
		speaker:     speaker,
		cfg:         cfg,
		log:         log.With().Str("component", "session").Logger(),
		now:         time.Now,
		sessions:    make(map[string]*state),
	}
}

// acquire returns the locked session of the flow, loading the flow on first use. A session that
// was ended or reaped between the lookup and the lock is never handed out.
func (s *service) acquire(ctx context.Context, flowID string) (*state, error) {
	for {
		sess, err := s.lookup(ctx, flowID)
		if err != nil {
			return nil, err
		}

		sess.mu.Lock()
		s.mu.Lock()
		current := s.sessions[flowID] == sess
		if current {
			sess.lastActive = s.now()
		}
		s.mu.Unlock()
		if current {
			return sess, nil
		}
		sess.mu.Unlock()
	}
}

func (s *service) lookup(ctx context.Context, flowID string) (*state, error) {
	s.mu.Lock()
	sess, found := s.sessions[flowID]
	s.mu.Unlock()
	if found {
		return sess, nil
	}

	f, err := s.store.Load(ctx, flowID)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
				"flow not found", err, map[string]any{"flow_id": flowID})
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load flow")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, raced := s.sessions[flowID]; raced {
		return existing, nil
	}
	sess = &state{flow: f, history: history.NewManager(s.cfg.HistoryCapacity), lastActive: s.now()}
	s.sessions[flowID] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.log.Info().Str("flow_id", flowID).Msg("session started")
	return sess, nil
}

func (s *service) save(ctx context.Context, sess *state) error {
	sess.flow.Touch(s.now())
	if err := s.store.Save(ctx, sess.flow); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "save flow")
	}
	return nil
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*flow.Flow, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "title is required", nil)
	}
	f := flow.New(title)
	f.Description = strings.TrimSpace(req.Description)
	f.Category = strings.TrimSpace(req.Category)
	if raw := strings.TrimSpace(req.Language); raw != "" {
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid language", err)
		}
		f.Language = tag.String()
	}
	if err := s.store.Save(ctx, f); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "save flow")
	}
	s.log.Info().Str("flow_id", f.ID).Msg("flow created")
	return f.Clone(), nil
}

// Get returns the live flow of an active session, or the stored flow otherwise.
func (s *service) Get(ctx context.Context, flowID string) (*flow.Flow, error) {
	s.mu.Lock()
	sess, found := s.sessions[flowID]
	s.mu.Unlock()
	if found {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.flow.Clone(), nil
	}

	f, err := s.store.Load(ctx, flowID)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
				"flow not found", err, map[string]any{"flow_id": flowID})
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "load flow")
	}
	return f, nil
}

func (s *service) Command(ctx context.Context, flowID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "command text is required", ErrEmptyCommand)
	}

	sess, err := s.acquire(ctx, flowID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	before := sess.flow.Clone()
	executor := operation.NewExecutor(sess.flow, s.store, s.cfg.PreviewLength, s.log)
	outcome, runErr := s.interpreter.Run(ctx, interpreter.Turn{
		Text:     text,
		History:  sess.conversation,
		Executor: executor,
	})
	if outcome == nil {
		return nil, runErr
	}

	if outcome.ChangesApplied {
		s.commitBefore(sess, before, text)
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
	}

	if runErr != nil {
		s.log.Warn().Err(runErr).Str("flow_id", flowID).Str("kind", string(domainerrors.KindOf(runErr))).
			Bool("saved", outcome.ChangesApplied).Msg("turn failed")
		return nil, runErr
	}

	sess.conversation = llm.TrimHistory(append(sess.conversation, outcome.Messages...), maxStoredMessages)
	return &TurnResult{
		Narration:      outcome.Narration,
		ChangesApplied: outcome.ChangesApplied,
		Actions:        outcome.Actions,
		CanUndo:        sess.canUndo(),
		CanRedo:        sess.canRedo(),
		Flow:           sess.flow.Clone(),
	}, nil
}

// commitBefore records the state preceding a mutating turn. When the live flow already equals
// the snapshot under the cursor, that snapshot is the "before" state and only the redo branch
// is dropped.
func (s *service) commitBefore(sess *state, before *flow.Flow, label string) {
	if sess.liveAhead || sess.history.Len() == 0 {
		sess.history.AddSnapshot(before, flow.Truncate(label, 80))
	} else {
		sess.history.DiscardRedo()
	}
	sess.liveAhead = true
}

func (s *service) Undo(ctx context.Context, flowID string) (*HistoryState, error) {
	sess, err := s.acquire(ctx, flowID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if !sess.canUndo() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "nothing to undo", ErrNothingToUndo)
	}
	if sess.liveAhead {
		sess.history.AddSnapshot(sess.flow, "current")
		sess.liveAhead = false
	}
	snapshot, ok := sess.history.Undo()
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "nothing to undo", ErrNothingToUndo)
	}
	return s.restore(ctx, sess, snapshot)
}

func (s *service) Redo(ctx context.Context, flowID string) (*HistoryState, error) {
	sess, err := s.acquire(ctx, flowID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if !sess.canRedo() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "nothing to redo", ErrNothingToRedo)
	}
	snapshot, ok := sess.history.Redo()
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "nothing to redo", ErrNothingToRedo)
	}
	return s.restore(ctx, sess, snapshot)
}

func (s *service) restore(ctx context.Context, sess *state, snapshot history.Snapshot) (*HistoryState, error) {
	sess.flow.Restore(snapshot.Flow)
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	out := sess.historyState()
	out.Flow = sess.flow.Clone()
	return out, nil
}

func (s *service) History(ctx context.Context, flowID string) (*HistoryState, error) {
	sess, err := s.acquire(ctx, flowID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	return sess.historyState(), nil
}

func (s *service) End(ctx context.Context, flowID string) error {
	s.mu.Lock()
	sess, found := s.sessions[flowID]
	if found {
		delete(s.sessions, flowID)
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	s.mu.Unlock()

	if !found {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "no active session for flow", nil)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.history.Clear()
	sess.conversation = nil
	s.log.Info().Str("flow_id", flowID).Msg("session ended")
	return nil
}

func (s *service) Translate(ctx context.Context, flowID string, req translation.Request) (*translation.Result, error) {
	sess, err := s.acquire(ctx, flowID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	res, err := s.translator.Translate(ctx, sess.flow, req)
	if err != nil {
		switch {
		case errors.Is(err, translation.ErrInvalidLanguage):
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid target language", err)
		case errors.Is(err, translation.ErrMalformedReply):
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, "translation reply could not be used", err)
		}
		return nil, err
	}
	return res, nil
}

func (s *service) Synthesize(ctx context.Context, flowID string, req speech.Request) (*speech.Result, error) {
	sess, err := s.acquire(ctx, flowID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	res, err := s.speaker.Synthesize(ctx, sess.flow, req)
	if err != nil {
		return nil, err
	}
	if len(res.Generated) > 0 {
		// The attachments belong to no snapshot yet; the next turn or undo captures them.
		sess.liveAhead = true
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ReapIdle ends sessions untouched for longer than maxIdle. Busy sessions are skipped.
func (s *service) ReapIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if sess.lastActive.Before(cutoff) {
			sess.history.Clear()
			sess.conversation = nil
			delete(s.sessions, id)
			reaped++
		}
		sess.mu.Unlock()
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	if reaped > 0 {
		s.log.Info().Int("reaped", reaped).Msg("ended idle sessions")
	}
	return reaped
}
