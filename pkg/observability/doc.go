// Package observability provides structured logging, Prometheus metrics,
// health probes, OpenTelemetry tracing and graceful shutdown for ContractGuard.
//
// # Structured Logging
//
// Logging is built on logrus. Create the process logger once and attach it to
// request contexts:
//
//	log := observability.NewLogger("info", "json", os.Stdout)
//	ctx = observability.WithLogger(ctx, log)
//	observability.FromContext(ctx).WithField("role_id", id).Info("role updated")
//
// FromContext adds request_id and user_id fields when they are present.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.TokenInvalidationsTotal.Add(float64(affectedUsers))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, log)
//	defer observability.ShutdownOTel(ctx, providers, log)
//
// # Shutdown
//
// ShutdownManager drains HTTP servers and then runs cleanup steps in reverse
// registration order, so the database registered first is closed last:
//
//	sm := observability.NewShutdownManager(log, 30*time.Second)
//	sm.RegisterShutdownFunc("database", func(context.Context) error { return db.Close() })
//	sm.AddServer(apiServer)
//	<-ctx.Done()
//	err := sm.Shutdown()
package observability
