//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/janhq/flow-api/internal/config"
	"github.com/janhq/flow-api/internal/infrastructure/logger"
	"github.com/janhq/flow-api/internal/interfaces/httpserver"
)

var flowSet = wire.NewSet(
	newResources,
	readinessChecks,
	newProviderClient,
	newSessionService,
	newScheduler,
)

// BuildApplication assembles the service with Wire. main wires the same graph by hand.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newAuthValidator,
		flowSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}
