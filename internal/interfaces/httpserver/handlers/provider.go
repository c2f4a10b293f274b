package handlers

import (
	"github.com/rs/zerolog"

	"github.com/janhq/flow-api/internal/domain/session"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Flow      *FlowHandler
	Operation *OperationHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(sessionService session.Service, log zerolog.Logger) *Provider {
	return &Provider{
		Flow:      NewFlowHandler(sessionService, log),
		Operation: NewOperationHandler(),
	}
}
