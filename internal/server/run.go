package server

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/os2mo/mora/modules"
	"github.com/os2mo/mora/pkg/application"
	"github.com/os2mo/mora/pkg/configuration"
	"github.com/os2mo/mora/pkg/logging"
	"github.com/os2mo/mora/pkg/metrics"
)

// Run serves the API described by conf until ctx is cancelled.
func Run(ctx context.Context, conf *configuration.Configuration) error {
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	pool := OpenSettingsPool(ctx, conf)
	if pool != nil {
		defer pool.Close()
	}

	backend, err := NewBackend(ctx, conf, pool, logger)
	if err != nil {
		return err
	}
	app := application.New()
	if err := application.Load(app, modules.BuiltInModules(backend.Repository, backend.Options...)...); err != nil {
		return err
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance, err := Default(&DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		return err
	}
	logger.WithField("store", conf.StoreBackend).Infof("Listening on: %s", conf.SocketAddress)
	return serverInstance.Start(ctx, conf.SocketAddress)
}

// OpenSettingsPool connects to the settings database, or returns nil when
// it is unreachable so the API runs without unit settings.
func OpenSettingsPool(ctx context.Context, conf *configuration.Configuration) *pgxpool.Pool {
	logger := conf.Logger()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		logger.WithError(err).Warn("invalid settings database configuration, unit settings disabled")
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		logger.WithError(err).Warn("settings database unreachable, unit settings disabled")
		return nil
	}
	return pool
}
