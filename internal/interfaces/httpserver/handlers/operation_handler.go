package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janhq/flow-api/internal/domain/operation"
)

// OperationHandler lists the editing operations offered to the model.
type OperationHandler struct{}

func NewOperationHandler() *OperationHandler {
	return &OperationHandler{}
}

// List handles GET /v1/operations
func (h *OperationHandler) List(c *gin.Context) {
	tools := operation.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   tools,
		"total":  len(tools),
	})
}
