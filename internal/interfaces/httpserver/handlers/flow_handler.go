package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/flow-api/internal/domain/session"
	"github.com/janhq/flow-api/internal/domain/speech"
	"github.com/janhq/flow-api/internal/domain/translation"
	"github.com/janhq/flow-api/internal/interfaces/httpserver/requests"
	"github.com/janhq/flow-api/internal/interfaces/httpserver/responses"
)

// FlowHandler exposes flow editing sessions over HTTP.
type FlowHandler struct {
	service session.Service
	log     zerolog.Logger
}

func NewFlowHandler(service session.Service, log zerolog.Logger) *FlowHandler {
	return &FlowHandler{
		service: service,
		log:     log.With().Str("handler", "flow").Logger(),
	}
}

// Create handles POST /v1/flows
func (h *FlowHandler) Create(c *gin.Context) {
	var req requests.CreateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleBadRequest(c, err)
		return
	}
	f, err := h.service.Create(c.Request.Context(), session.CreateRequest{
		Title:       req.Title,
		Description: req.Description,
		Language:    req.Language,
		Category:    req.Category,
	})
	if err != nil {
		responses.HandleError(c, err, "failed to create flow")
		return
	}
	c.JSON(http.StatusCreated, f)
}

// Get handles GET /v1/flows/:flow_id
func (h *FlowHandler) Get(c *gin.Context) {
	f, err := h.service.Get(c.Request.Context(), c.Param("flow_id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get flow")
		return
	}
	c.JSON(http.StatusOK, f)
}

// Command handles POST /v1/flows/:flow_id/commands
func (h *FlowHandler) Command(c *gin.Context) {
	var req requests.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleBadRequest(c, err)
		return
	}
	result, err := h.service.Command(c.Request.Context(), c.Param("flow_id"), req.Text)
	if err != nil {
		responses.HandleError(c, err, "failed to apply command")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Undo handles POST /v1/flows/:flow_id/undo
func (h *FlowHandler) Undo(c *gin.Context) {
	state, err := h.service.Undo(c.Request.Context(), c.Param("flow_id"))
	if err != nil {
		responses.HandleError(c, err, "failed to undo")
		return
	}
	c.JSON(http.StatusOK, state)
}

// Redo handles POST /v1/flows/:flow_id/redo
func (h *FlowHandler) Redo(c *gin.Context) {
	state, err := h.service.Redo(c.Request.Context(), c.Param("flow_id"))
	if err != nil {
		responses.HandleError(c, err, "failed to redo")
		return
	}
	c.JSON(http.StatusOK, state)
}

// History handles GET /v1/flows/:flow_id/history
func (h *FlowHandler) History(c *gin.Context) {
	state, err := h.service.History(c.Request.Context(), c.Param("flow_id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get history")
		return
	}
	c.JSON(http.StatusOK, state)
}

// EndSession handles DELETE /v1/flows/:flow_id/session
func (h *FlowHandler) EndSession(c *gin.Context) {
	if err := h.service.End(c.Request.Context(), c.Param("flow_id")); err != nil {
		responses.HandleError(c, err, "failed to end session")
		return
	}
	c.Status(http.StatusNoContent)
}

// Translate handles POST /v1/flows/:flow_id/translations
func (h *FlowHandler) Translate(c *gin.Context) {
	var req requests.TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleBadRequest(c, err)
		return
	}
	result, err := h.service.Translate(c.Request.Context(), c.Param("flow_id"), translation.Request{
		TargetLanguage: req.TargetLanguage,
		Preview:        req.Preview,
	})
	if err != nil {
		responses.HandleError(c, err, "failed to translate flow")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Synthesize handles POST /v1/flows/:flow_id/speech
func (h *FlowHandler) Synthesize(c *gin.Context) {
	var req requests.SpeechRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleBadRequest(c, err)
			return
		}
	}
	result, err := h.service.Synthesize(c.Request.Context(), c.Param("flow_id"), speech.Request{Voice: req.Voice})
	if err != nil {
		responses.HandleError(c, err, "failed to synthesize speech")
		return
	}
	c.JSON(http.StatusOK, result)
}
