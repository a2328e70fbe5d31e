package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/probekit/pkg/async"
	"github.com/platinummonkey/probekit/pkg/audit"
	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/observability"
	"github.com/platinummonkey/probekit/pkg/pipeline"
	"github.com/platinummonkey/probekit/pkg/plugins"
)

const (
	reloadConfigChanged = "plugin configuration changed"
	reloadScheduled     = "scheduled restart"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the plugins, start them and run until interrupted",
		Long: `Load every shared library found in the plugin directories or listed with
--libraries, hand each plugin its section of the plugin configuration, start
them and wait for SIGINT or SIGTERM.

SIGHUP restarts every plugin in a new session, and so does the cron schedule
given with --restart-schedule. With --watch-config, a change of the plugin
configuration file reloads the libraries and rebuilds every plugin with its new
section; an invalid document leaves the running plugins untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringSlice(config.KeyPluginDirs, nil, "directories scanned for plugin libraries")
	flags.StringSlice(config.KeyLibraries, nil, "plugin libraries to load")
	flags.String(config.KeyPluginConfig, "probekit.toml", "TOML document with one table per plugin")
	flags.Bool(config.KeyWatchConfig, false, "restart the plugins when the plugin configuration file changes")
	flags.Duration(config.KeyWatchDebounce, time.Second, "quiet period after a configuration change before restarting")
	flags.String(config.KeySchedule, "", "cron expression of scheduled plugin restarts")
	flags.String(config.KeyStatusAddr, "", "listen address of the metrics and health server (disabled when empty)")
	flags.Bool(config.KeyOTelEnabled, false, "export traces and metrics over OTLP")
	flags.String(config.KeyOTelEndpoint, "localhost:4317", "OTLP gRPC endpoint")
	flags.String(config.KeyOTelService, "probekit", "service name reported to OpenTelemetry")
	flags.String(config.KeyOTelVersion, "1.0.0", "service version reported to OpenTelemetry")
	flags.Bool(config.KeyOTelInsecure, true, "use an insecure connection to the OTLP endpoint")
	_ = a.v.BindPFlags(flags)

	return cmd
}

func (a *app) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s := a.settings
	log := a.log

	doc, err := config.Load(s.PluginConfig)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promRegistry)
	board := observability.NewStatusBoard()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        s.Observability.OTelEnabled,
		Endpoint:       s.Observability.OTelEndpoint,
		ServiceName:    s.Observability.OTelServiceName,
		ServiceVersion: s.Observability.OTelServiceVersion,
		Insecure:       s.Observability.OTelInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	journal, err := openJournal(ctx, s.Journal)
	if err != nil {
		_ = observability.ShutdownOTel(ctx, providers, log)
		return err
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	var tasks []*async.Task

	var server *http.Server
	if s.Observability.StatusAddr != "" {
		server = &http.Server{
			Addr:              s.Observability.StatusAddr,
			Handler:           observability.NewStatusRouter(board, promRegistry, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		tasks = append(tasks, async.SafeGo(bgCtx, log, 0, "status server", func(context.Context) error {
			log.Infof("Status server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}))
	}

	shutdown := observability.NewShutdownManager(log, server, 30*time.Second)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, log)
	})
	shutdown.Register("journal", func(context.Context) error {
		return journal.Close()
	})

	loader := plugins.NewLoader(log,
		plugins.WithLoaderMetrics(metrics),
		plugins.WithLoaderJournal(journal),
	)
	newRegistry := func() *plugins.Registry {
		return plugins.NewRegistry(log,
			plugins.WithRegistryMetrics(metrics),
			plugins.WithStatusBoard(board),
			plugins.WithJournal(journal),
		)
	}

	session := a.startPlugins(ctx, loader, newRegistry(), board, doc)
	shutdown.Register("plugins", func(ctx context.Context) error {
		return session.Close(ctx)
	})
	shutdown.Register("background tasks", func(ctx context.Context) error {
		stopBackground()
		var errs []error
		for _, task := range tasks {
			if err := task.Wait(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", task.Name(), err))
			}
		}
		return errors.Join(errs...)
	})

	if s.Reload.WatchConfig {
		tasks = append(tasks, async.SafeGo(bgCtx, log, 0, "config watcher", func(ctx context.Context) error {
			return config.Watch(ctx, s.PluginConfig, s.Reload.Debounce, log, func() {
				shutdown.RequestReload(reloadConfigChanged)
			})
		}))
	}

	if s.Reload.Schedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(s.Reload.Schedule, func() {
			shutdown.RequestReload(reloadScheduled)
		}); err != nil {
			log.WithError(err).Error("Failed to schedule restarts")
		} else {
			scheduler.Start()
			log.Infof("Plugins restart on schedule %q", s.Reload.Schedule)
			shutdown.Register("restart schedule", func(ctx context.Context) error {
				select {
				case <-scheduler.Stop().Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}
	}

	shutdown.WaitForSignal(ctx, func(reason string) {
		if reason != reloadConfigChanged {
			if _, err := session.Restart(ctx); err != nil {
				log.WithError(err).Warn("Restart completed with errors")
			}
			return
		}

		// new configuration: the plugins are rebuilt from scratch
		next, err := config.Load(s.PluginConfig)
		if err != nil {
			log.WithError(err).Error("Keeping the running plugins, the new plugin configuration is invalid")
			return
		}
		if err := session.Close(ctx); err != nil {
			log.WithError(err).Warn("Plugins closed with errors")
		}
		session = a.startPlugins(ctx, loader, newRegistry(), board, next)
	})

	return shutdown.Shutdown(context.Background())
}

// startPlugins loads the plugins, gives each its section of doc and starts them
// in a new session. Failures are logged; the session runs whatever started.
func (a *app) startPlugins(ctx context.Context, loader *plugins.Loader, registry *plugins.Registry, board *observability.StatusBoard, doc *config.Table) *plugins.Session {
	log := a.log
	descriptors := a.loadDescriptors(loader, a.settings)
	descriptors = append(descriptors, builtinDescriptors(doc)...)

	session := plugins.NewSession(registry, pipeline.NewBuilder(), log, plugins.WithSessionBoard(board))
	if err := session.Add(ctx, descriptors, doc); err != nil {
		log.WithError(err).Warn("Some plugins could not be added")
	}
	for _, section := range doc.Keys() {
		log.Warnf("No plugin named %s, its configuration section is ignored", section)
	}

	startup, err := session.Start(ctx)
	if err != nil {
		log.WithError(err).Warn("Some plugins could not be started")
	}
	if len(startup.Plugins) == 0 {
		log.Warn("No plugin is running")
	}
	log.Infof("Pipeline has %d element(s) and %d metric(s)",
		len(session.Builder().Elements()), session.Builder().Metrics().Len())
	return session
}

// openJournal opens the lifecycle journal destinations configured in cfg.
// With none configured, events are discarded.
func openJournal(ctx context.Context, cfg config.JournalConfig) (audit.Logger, error) {
	var loggers []audit.Logger
	if cfg.Dir != "" {
		fileLogger, err := audit.NewFileLogger(audit.DefaultFileLoggerConfig(cfg.Dir))
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}
	if cfg.DSN != "" {
		dbLogger, err := audit.OpenDBLogger(ctx, cfg.DSN)
		if err != nil {
			for _, l := range loggers {
				_ = l.Close()
			}
			return nil, err
		}
		loggers = append(loggers, dbLogger)
	}

	switch len(loggers) {
	case 0:
		return audit.NoOp(), nil
	case 1:
		return loggers[0], nil
	default:
		return audit.NewMultiLogger(loggers...), nil
	}
}

// loadDescriptors discovers and loads the dynamic plugins.
// Failures are logged; the plugins that did load are returned.
func (a *app) loadDescriptors(loader *plugins.Loader, s *config.Settings) []*plugins.Descriptor {
	descriptors, err := loader.Discover(s.PluginDirs)
	if err != nil {
		a.log.WithError(err).Warn("Plugin discovery completed with errors")
	}

	for _, path := range s.Libraries {
		d, err := loader.Load(path)
		if err != nil {
			a.log.WithError(err).Warnf("Skipping plugin library %s", path)
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}
