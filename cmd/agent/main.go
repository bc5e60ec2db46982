// Command agent runs an Agent process: it registers with the Hub, polls the
// durable job queue for its location, and executes assigned plans.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/griffin-open-source/griffin-sub001/infrastructure/logging"
	"github.com/griffin-open-source/griffin-sub001/infrastructure/middleware"
	"github.com/griffin-open-source/griffin-sub001/internal/app/engine"
	"github.com/griffin-open-source/griffin-sub001/internal/app/executor"
	"github.com/griffin-open-source/griffin-sub001/internal/app/hubclient"
	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
	appmetrics "github.com/griffin-open-source/griffin-sub001/internal/app/metrics"
	"github.com/griffin-open-source/griffin-sub001/internal/app/secrets"
	"github.com/griffin-open-source/griffin-sub001/internal/app/system"
	"github.com/griffin-open-source/griffin-sub001/internal/app/worker"
	"github.com/griffin-open-source/griffin-sub001/pkg/config"

	"github.com/jmoiron/sqlx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := logging.NewFromEnv("agent")

	location := strings.TrimSpace(cfg.Runtime.Agent.Location)
	if location == "" {
		logger.Fatal(context.Background(), "AGENT_LOCATION is required", nil)
	}

	hub := hubclient.New(cfg.Runtime.Agent.HubURL, os.Getenv("HUB_API_KEY"), nil)

	registry := buildSecretsRegistry(cfg.Runtime.Secrets.Providers)

	eng := engine.New(engine.Config{Logger: logger})
	exec := executor.New(eng, registry, hub)

	var q queue.Queue
	if cfg.Runtime.Agent.QueueBackend == "postgres" {
		db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.ConnectionString())
		if err != nil {
			logger.WithError(err).Fatal("connect to database")
		}
		defer db.Close()
		q = queue.NewPostgresQueue(db)
	} else {
		q = hubclient.NewRemoteQueue(hub)
	}

	w := worker.New(q, exec, worker.Config{
		Location:             location,
		EmptyDelay:           time.Duration(cfg.Runtime.Agent.QueuePollIntervalMillis) * time.Millisecond,
		MaxEmptyDelay:        time.Duration(cfg.Runtime.Agent.QueueMaxPollIntervalMillis) * time.Millisecond,
		PlanExecutionTimeout: time.Duration(cfg.Runtime.Worker.PlanExecutionTimeoutSeconds) * time.Second,
	}, worker.Hooks{
		OnJobOutcome: func(outcome string, duration time.Duration) {
			appmetrics.RecordJobOutcome(location, outcome, duration)
		},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	var agentID string
	registered, err := hub.RegisterAgent(ctx, location, map[string]string{"version": agentVersion()})
	if err != nil {
		logger.WithError(err).Fatal("register with hub")
	}
	agentID = registered.ID
	logger.WithFields(map[string]interface{}{"agent_id": agentID, "location": location}).Info("registered with hub")

	services := []system.Service{w}
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			logger.WithError(err).Fatalf("start %s", svc.Name())
		}
	}

	var heartbeatStop chan struct{}
	if cfg.Runtime.Agent.HeartbeatEnabled {
		heartbeatStop = startHeartbeatLoop(ctx, hub, agentID, time.Duration(cfg.Runtime.Agent.HeartbeatIntervalSeconds)*time.Second, logger)
	}

	shutdown := middleware.NewGracefulShutdown(nil, 30*time.Second)
	shutdown.OnShutdown(func() {
		if heartbeatStop != nil {
			close(heartbeatStop)
		}
		for _, svc := range services {
			if err := svc.Stop(ctx); err != nil {
				logger.WithFields(map[string]interface{}{"service": svc.Name(), "error": err.Error()}).Error("stop service")
			}
		}
		if err := hub.Deregister(ctx, agentID); err != nil {
			logger.WithError(err).Error("deregister from hub")
		}
		cancel()
	})
	shutdown.ListenForSignals()

	logger.WithFields(map[string]interface{}{"location": location}).Info("agent running")
	shutdown.Wait()
}

func buildSecretsRegistry(providers string) *secrets.Registry {
	registry := secrets.NewRegistry()
	for _, name := range strings.Split(providers, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "":
			continue
		case "env":
			_ = registry.Register(secrets.NewEnvProvider())
		case "vault-kv":
			_ = registry.Register(secrets.NewVaultKVProvider(
				os.Getenv("VAULT_ADDR"), os.Getenv("VAULT_KV_MOUNT"), os.Getenv("VAULT_TOKEN"),
			))
		case "cloud-secret-store":
			if provider, err := secrets.NewCloudSecretStoreProvider(os.Getenv("CLOUD_SECRET_STORE_URL")); err == nil {
				_ = registry.Register(provider)
			}
		}
	}
	return registry
}

func startHeartbeatLoop(ctx context.Context, hub *hubclient.Client, agentID string, interval time.Duration, logger *logging.Logger) chan struct{} {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := hub.Heartbeat(ctx, agentID); err != nil {
					logger.WithError(err).Error("send heartbeat")
				}
			}
		}
	}()
	return stop
}

func agentVersion() string {
	if v := strings.TrimSpace(os.Getenv("AGENT_VERSION")); v != "" {
		return v
	}
	return "dev"
}
