package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/janhq/flow-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")
	group.GET("/operations", r.handlers.Operation.List)

	flows := group.Group("/flows")
	flows.POST("", r.handlers.Flow.Create)
	flows.GET("/:flow_id", r.handlers.Flow.Get)
	flows.POST("/:flow_id/commands", r.handlers.Flow.Command)
	flows.POST("/:flow_id/undo", r.handlers.Flow.Undo)
	flows.POST("/:flow_id/redo", r.handlers.Flow.Redo)
	flows.GET("/:flow_id/history", r.handlers.Flow.History)
	flows.DELETE("/:flow_id/session", r.handlers.Flow.EndSession)
	flows.POST("/:flow_id/translations", r.handlers.Flow.Translate)
	flows.POST("/:flow_id/speech", r.handlers.Flow.Synthesize)
}
