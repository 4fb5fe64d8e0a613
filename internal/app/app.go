package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/database"
	"github.com/Additional-Code/ordertrack/internal/logger"
	"github.com/Additional-Code/ordertrack/internal/messaging"
	"github.com/Additional-Code/ordertrack/internal/migration"
	"github.com/Additional-Code/ordertrack/internal/observability"
	repositoryorder "github.com/Additional-Code/ordertrack/internal/repository/order"
	"github.com/Additional-Code/ordertrack/internal/seeder"
	grpcserver "github.com/Additional-Code/ordertrack/internal/server/grpc"
	httpserver "github.com/Additional-Code/ordertrack/internal/server/http"
	serviceorder "github.com/Additional-Code/ordertrack/internal/service/order"
	transporthttp "github.com/Additional-Code/ordertrack/internal/transport/http"
	"github.com/Additional-Code/ordertrack/internal/worker"
	workerorder "github.com/Additional-Code/ordertrack/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP and gRPC transports on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	grpcserver.Module,
)

// Tools adds the schema and seed helpers used by one-shot CLI commands.
var Tools = fx.Options(
	Core,
	migration.Module,
	seeder.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
	fx.Invoke(func(*observability.Manager) {}),
)

// Module is the default application wiring.
var Module = HTTP
