package platformerrors_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/flow-api/internal/utils/platformerrors"
)

func TestNewError_CarriesRequestID(t *testing.T) {
	ctx := platformerrors.WithRequestID(context.Background(), "req-1")
	err := platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "flow not found", nil)

	assert.Equal(t, "req-1", err.RequestID)
	assert.NotEmpty(t, err.UUID)
	assert.Contains(t, err.Error(), "[domain][NOT_FOUND]")
}

func TestAsError_KeepsInnerType(t *testing.T) {
	inner := platformerrors.NewError(context.Background(), platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "missing", nil)
	outer := platformerrors.AsError(context.Background(), platformerrors.LayerHandler, inner, "load flow")

	require.NotNil(t, outer)
	assert.Equal(t, platformerrors.ErrorTypeNotFound, outer.Type)
	assert.Equal(t, inner.UUID, outer.UUID)
	assert.True(t, platformerrors.IsErrorType(outer, platformerrors.ErrorTypeNotFound))

	plain := platformerrors.AsError(context.Background(), platformerrors.LayerHandler, errors.New("boom"), "load flow")
	assert.Equal(t, platformerrors.ErrorTypeInternal, plain.Type)
	assert.Nil(t, platformerrors.AsError(context.Background(), platformerrors.LayerHandler, nil, "x"))
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, platformerrors.ErrorTypeToHTTPStatus(platformerrors.ErrorTypeNotFound))
	assert.Equal(t, http.StatusBadRequest, platformerrors.ErrorTypeToHTTPStatus(platformerrors.ErrorTypeValidation))
	assert.Equal(t, http.StatusConflict, platformerrors.ErrorTypeToHTTPStatus(platformerrors.ErrorTypeConflict))
	assert.Equal(t, http.StatusBadGateway, platformerrors.ErrorTypeToHTTPStatus(platformerrors.ErrorTypeExternal))
	assert.Equal(t, http.StatusInternalServerError, platformerrors.ErrorTypeToHTTPStatus("SOMETHING"))
}
