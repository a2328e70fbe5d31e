// Package observability provides logging, Prometheus metrics, OpenTelemetry tracing
// and the HTTP status endpoints of a probekit host.
//
// # Logging
//
//	logger := observability.NewLogger("debug", observability.FormatText, os.Stderr)
//	logger.WithField("plugin", "demo").Info("Plugin started")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordTransition("demo", "start", time.Since(begin), err)
//
// A nil *Metrics records nothing, so components accept it as optional.
//
// # Plugin Status
//
// The plugin registry publishes every state change to a StatusBoard:
//
//	board := observability.NewStatusBoard()
//	router := observability.NewStatusRouter(board, registry, log)
//	http.ListenAndServe(":9464", router)
//
// Routes: /metrics, /health/live, /health/plugins and /health/plugins/{name}.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "localhost:4317",
//		ServiceName: "probekit",
//		Insecure:    true,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Status routes are traced with otelhttp; sessions emit spans and OTel metrics.
//
// # Shutdown and Reloads
//
//	shutdown := observability.NewShutdownManager(logger, server, 30*time.Second)
//	shutdown.Register("plugins", session.Close)
//	shutdown.WaitForSignal(ctx, func(reason string) { ... })
//	shutdown.Shutdown(context.Background())
//
// SIGHUP and RequestReload run the reload callback on the waiting goroutine;
// requests made while one is pending are merged.
package observability
