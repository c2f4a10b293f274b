package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/session"
	"github.com/janhq/flow-api/internal/domain/speech"
	"github.com/janhq/flow-api/internal/domain/translation"
	"github.com/janhq/flow-api/internal/interfaces/httpserver/handlers"
	"github.com/janhq/flow-api/internal/interfaces/httpserver/routes"
	"github.com/janhq/flow-api/internal/utils/platformerrors"
)

// MockSessionService is a mock implementation of session.Service for testing.
type MockSessionService struct {
	CreateFunc     func(ctx context.Context, req session.CreateRequest) (*flow.Flow, error)
	GetFunc        func(ctx context.Context, flowID string) (*flow.Flow, error)
	CommandFunc    func(ctx context.Context, flowID, text string) (*session.TurnResult, error)
	UndoFunc       func(ctx context.Context, flowID string) (*session.HistoryState, error)
	RedoFunc       func(ctx context.Context, flowID string) (*session.HistoryState, error)
	HistoryFunc    func(ctx context.Context, flowID string) (*session.HistoryState, error)
	EndFunc        func(ctx context.Context, flowID string) error
	TranslateFunc  func(ctx context.Context, flowID string, req translation.Request) (*translation.Result, error)
	SynthesizeFunc func(ctx context.Context, flowID string, req speech.Request) (*speech.Result, error)
}

func (m *MockSessionService) Create(ctx context.Context, req session.CreateRequest) (*flow.Flow, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockSessionService) Get(ctx context.Context, flowID string) (*flow.Flow, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, flowID)
	}
	return nil, nil
}

func (m *MockSessionService) Command(ctx context.Context, flowID, text string) (*session.TurnResult, error) {
	if m.CommandFunc != nil {
		return m.CommandFunc(ctx, flowID, text)
	}
	return nil, nil
}

func (m *MockSessionService) Undo(ctx context.Context, flowID string) (*session.HistoryState, error) {
	if m.UndoFunc != nil {
		return m.UndoFunc(ctx, flowID)
	}
	return nil, nil
}

func (m *MockSessionService) Redo(ctx context.Context, flowID string) (*session.HistoryState, error) {
	if m.RedoFunc != nil {
		return m.RedoFunc(ctx, flowID)
	}
	return nil, nil
}

func (m *MockSessionService) History(ctx context.Context, flowID string) (*session.HistoryState, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, flowID)
	}
	return nil, nil
}

func (m *MockSessionService) End(ctx context.Context, flowID string) error {
	if m.EndFunc != nil {
		return m.EndFunc(ctx, flowID)
	}
	return nil
}

func (m *MockSessionService) Translate(ctx context.Context, flowID string, req translation.Request) (*translation.Result, error) {
	if m.TranslateFunc != nil {
		return m.TranslateFunc(ctx, flowID, req)
	}
	return nil, nil
}

func (m *MockSessionService) Synthesize(ctx context.Context, flowID string, req speech.Request) (*speech.Result, error) {
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, flowID, req)
	}
	return nil, nil
}

func (m *MockSessionService) ReapIdle(time.Duration) int { return 0 }

func setupRouter(svc session.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	routes.NewProvider(handlers.NewProvider(svc, zerolog.Nop())).Register(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestFlowHandler_Command(t *testing.T) {
	var gotFlow, gotText string
	svc := &MockSessionService{
		CommandFunc: func(_ context.Context, flowID, text string) (*session.TurnResult, error) {
			gotFlow, gotText = flowID, text
			return &session.TurnResult{Narration: "Added section Prep.", ChangesApplied: true, CanUndo: true}, nil
		},
	}

	w := doJSON(t, setupRouter(svc), http.MethodPost, "/v1/flows/flw_1/commands", map[string]string{"text": "add a prep section"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "flw_1", gotFlow)
	assert.Equal(t, "add a prep section", gotText)

	body := decode(t, w)
	assert.Equal(t, "Added section Prep.", body["narration"])
	assert.Equal(t, true, body["changes_applied"])
	assert.Equal(t, true, body["can_undo"])
}

func TestFlowHandler_CommandRequiresText(t *testing.T) {
	w := doJSON(t, setupRouter(&MockSessionService{}), http.MethodPost, "/v1/flows/flw_1/commands", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlowHandler_ProviderErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		kind   domainerrors.Kind
		status int
	}{
		{domainerrors.KindAuthentication, http.StatusUnauthorized},
		{domainerrors.KindRateLimit, http.StatusTooManyRequests},
		{domainerrors.KindQuota, http.StatusTooManyRequests},
		{domainerrors.KindInvalidInput, http.StatusBadRequest},
		{domainerrors.KindServiceUnavailable, http.StatusServiceUnavailable},
		{domainerrors.KindTimeout, http.StatusGatewayTimeout},
		{domainerrors.KindNetwork, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			svc := &MockSessionService{
				CommandFunc: func(context.Context, string, string) (*session.TurnResult, error) {
					return nil, domainerrors.NewProviderError(tt.kind, "diag")
				},
			}
			w := doJSON(t, setupRouter(svc), http.MethodPost, "/v1/flows/flw_1/commands", map[string]string{"text": "x"})
			assert.Equal(t, tt.status, w.Code)

			body := decode(t, w)
			assert.Equal(t, string(tt.kind), body["kind"])
			assert.Equal(t, tt.kind.Message(), body["message"])
		})
	}
}

func TestFlowHandler_PlatformErrors(t *testing.T) {
	svc := &MockSessionService{
		UndoFunc: func(ctx context.Context, _ string) (*session.HistoryState, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "nothing to undo", session.ErrNothingToUndo)
		},
		GetFunc: func(ctx context.Context, _ string) (*flow.Flow, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "flow not found", flow.ErrNotFound)
		},
	}
	router := setupRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/v1/flows/flw_1/undo", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "nothing to undo", decode(t, w)["error"])

	w = doJSON(t, router, http.MethodGet, "/v1/flows/flw_1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFlowHandler_CreateAndEndSession(t *testing.T) {
	svc := &MockSessionService{
		CreateFunc: func(_ context.Context, req session.CreateRequest) (*flow.Flow, error) {
			return flow.New(req.Title), nil
		},
	}
	router := setupRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/v1/flows", map[string]string{"title": "Tea"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Tea", decode(t, w)["title"])

	w = doJSON(t, router, http.MethodDelete, "/v1/flows/flw_1/session", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestFlowHandler_TranslateAndSpeech(t *testing.T) {
	var gotTranslate translation.Request
	var gotVoice string
	svc := &MockSessionService{
		TranslateFunc: func(_ context.Context, _ string, req translation.Request) (*translation.Result, error) {
			gotTranslate = req
			return &translation.Result{Cached: true}, nil
		},
		SynthesizeFunc: func(_ context.Context, _ string, req speech.Request) (*speech.Result, error) {
			gotVoice = req.Voice
			return &speech.Result{Failed: 1}, nil
		},
	}
	router := setupRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/v1/flows/flw_1/translations", map[string]any{"target_language": "fr", "preview": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, translation.Request{TargetLanguage: "fr", Preview: true}, gotTranslate)

	w = doJSON(t, router, http.MethodPost, "/v1/flows/flw_1/speech", map[string]string{"voice": "nova"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nova", gotVoice)

	w = doJSON(t, router, http.MethodPost, "/v1/flows/flw_1/translations", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOperationHandler_List(t *testing.T) {
	w := doJSON(t, setupRouter(&MockSessionService{}), http.MethodGet, "/v1/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(16), body["total"])
}
