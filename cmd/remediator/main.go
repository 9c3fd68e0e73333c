// Command remediator runs the data-pipeline auto-remediation engine: it
// ingests platform failure webhooks, classifies them, and drives the
// recovery orchestrator, exposing an operator inspection API and a
// Prometheus metrics endpoint alongside the ingress.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/internal/config"
	"github.com/pipelineguard/remediator/pkg/audit"
	"github.com/pipelineguard/remediator/pkg/breaker"
	"github.com/pipelineguard/remediator/pkg/breakerlock"
	"github.com/pipelineguard/remediator/pkg/classifier"
	"github.com/pipelineguard/remediator/pkg/executor"
	"github.com/pipelineguard/remediator/pkg/notify"
	"github.com/pipelineguard/remediator/pkg/operator"
	"github.com/pipelineguard/remediator/pkg/platform"
	"github.com/pipelineguard/remediator/pkg/platform/adf"
	"github.com/pipelineguard/remediator/pkg/platform/databricks"
	"github.com/pipelineguard/remediator/pkg/playbook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	baseLogger := newLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		baseLogger.WithError(err).Fatal("failed to load configuration")
	}
	configureLogger(baseLogger, cfg)
	log := logrus.NewEntry(baseLogger)

	registry := playbook.NewRegistry(log)
	if cfg.Playbooks.HotReload {
		stop, err := registry.WatchFile(cfg.Playbooks.Path)
		if err != nil {
			log.WithError(err).Fatal("failed to watch playbook catalog file")
		}
		defer stop()
	}

	var notifier *notify.Sink
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = notify.New(cfg.Notify.SlackWebhookURL, cfg.Notify.SlackChannel, log)
	}

	onOpen := func(key string) {
		if notifier != nil {
			notifier.OnBreakerOpen(key)
		}
	}
	fabric := breaker.NewFabric(onOpen)

	locker, err := breakerlock.New(cfg.Breaker.RedisLockURL)
	if err != nil {
		log.WithError(err).Fatal("failed to build circuit-breaker lock")
	}

	adapters := buildAdapters(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifierChain := classifier.NewChain(ctx, classifier.Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  cfg.Classifier.AnthropicModel,
		BedrockModelID:  cfg.Classifier.BedrockModel,
		MaxTokens:       cfg.Classifier.MaxTokens,
		PerTierTimeout:  cfg.Classifier.Timeout,
	}, log)

	sinks, closeAudit := buildSinks(cfg, log, notifier)
	if closeAudit != nil {
		defer closeAudit()
	}

	exec := executor.New(registry, fabric, locker, adapters, sinks, log, executor.Config{
		Disabled:                !cfg.Actions.Enabled(),
		DefaultPlatform:         "databricks",
		RetryBaseDelay:          cfg.Actions.RetryBaseDelay,
		RetryMaxDelay:           cfg.Actions.RetryMaxDelay,
		MaxChainDepth:           cfg.Actions.MaxChainDepth,
		DefaultBreakerThreshold: cfg.Breaker.FailureThreshold,
		DefaultBreakerTimeout:   cfg.Breaker.OpenDuration,
		HealthPollInterval:      cfg.Health.PollInterval,
		LockTTL:                 30 * time.Second,
		MaxConcurrentActions:    int64(cfg.Platform.MaxConcurrent),
		EnabledActions:          enabledActions(cfg.Actions.EnabledActions),
		DryRun:                  cfg.Actions.DryRun,
	})

	webhookHandler := newWebhookHandler(exec, classifierChain, log)

	servers := []*http.Server{
		{Addr: ":" + cfg.Server.WebhookPort, Handler: webhookMux(cfg.Server.WebhookPath, webhookHandler)},
		{Addr: ":" + cfg.Server.OperatorPort, Handler: operator.NewRouter(registry, fabric, log)},
		{Addr: ":" + cfg.Server.MetricsPort, Handler: promhttp.Handler()},
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).WithField("addr", srv.Addr).Error("http server exited")
			}
		}()
	}
	log.WithFields(logrus.Fields{
		"webhook_addr":  servers[0].Addr,
		"operator_addr": servers[1].Addr,
		"metrics_addr":  servers[2].Addr,
	}).Info("remediator started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("addr", srv.Addr).Warn("server shutdown did not complete cleanly")
		}
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}

func configureLogger(log *logrus.Logger, cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{})
	}
}

func buildAdapters(cfg *config.Config, log *logrus.Entry) map[string]platform.Adapter {
	adapters := map[string]platform.Adapter{}
	if cfg.Platform.DatabricksHost != "" {
		adapters["databricks"] = databricks.NewClient(cfg.Platform.DatabricksHost, cfg.Platform.DatabricksToken, cfg.Platform.RequestTimeout, log)
	}
	if cfg.Platform.ADFBaseURL != "" {
		adapters["adf"] = adf.NewClient(cfg.Platform.ADFBaseURL, cfg.Platform.ADFSubscription, cfg.Platform.ADFToken, cfg.Platform.RequestTimeout, log)
	}
	return adapters
}

func buildSinks(cfg *config.Config, log *logrus.Entry, notifier *notify.Sink) (sinks []executor.EventSink, closeFn func()) {
	if cfg.Audit.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.Audit.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to open audit database connection")
		}
		if err := audit.Migrate(db); err != nil {
			log.WithError(err).Fatal("failed to apply audit schema migrations")
		}
		store := audit.New(db, log)
		sinks = append(sinks, store)
		closeFn = func() { store.Close() }
	}
	if notifier != nil {
		sinks = append(sinks, notifier)
	}
	return sinks, closeFn
}

func enabledActions(raw map[string]bool) map[playbook.Action]bool {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[playbook.Action]bool, len(raw))
	for k, v := range raw {
		out[playbook.Action(k)] = v
	}
	return out
}
