package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/utils/platformerrors"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code      string `json:"code"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ProviderStatus maps a provider error kind to the HTTP status returned to clients.
func ProviderStatus(kind domainerrors.Kind) int {
	switch kind {
	case domainerrors.KindAuthentication:
		return http.StatusUnauthorized
	case domainerrors.KindRateLimit, domainerrors.KindQuota:
		return http.StatusTooManyRequests
	case domainerrors.KindInvalidInput:
		return http.StatusBadRequest
	case domainerrors.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case domainerrors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// HandleError writes provider and platform errors with their status codes.
func HandleError(c *gin.Context, err error, message string) {
	requestID := c.GetString("X-Request-Id")

	var providerErr *domainerrors.ProviderError
	if errors.As(err, &providerErr) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(ProviderStatus(providerErr.Kind), ErrorResponse{
			Code:      "provider_" + string(providerErr.Kind),
			Error:     message,
			Message:   providerErr.Message,
			Kind:      string(providerErr.Kind),
			RequestID: requestID,
		})
		return
	}

	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		_ = c.Error(err)
		errorMessage := platformErr.Message
		if errorMessage == "" {
			errorMessage = message
		}
		if platformErr.RequestID != "" {
			requestID = platformErr.RequestID
		}
		status := platformerrors.ErrorTypeToHTTPStatus(platformErr.Type)
		if status >= http.StatusInternalServerError {
			platformerrors.LogError(*zerolog.Ctx(c.Request.Context()), platformErr)
		}
		c.AbortWithStatusJSON(status, ErrorResponse{
			Code:      platformErr.UUID,
			Error:     errorMessage,
			Message:   errorMessage,
			RequestID: requestID,
		})
		return
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Code:      "internal",
		Error:     message,
		Message:   message,
		RequestID: requestID,
	})
}

// HandleBadRequest rejects a malformed request body.
func HandleBadRequest(c *gin.Context, err error) {
	HandleError(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "invalid request body", err), "invalid request body")
}
