// Command hub runs the Hub process: plan/run/agent/target HTTP surface,
// the plan scheduler, the agent-staleness registry, and (in "postgres"
// repository mode) migrations on start.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"

	"github.com/griffin-open-source/griffin-sub001/infrastructure/logging"
	"github.com/griffin-open-source/griffin-sub001/infrastructure/middleware"
	"github.com/griffin-open-source/griffin-sub001/internal/app/agents"
	"github.com/griffin-open-source/griffin-sub001/internal/app/httpapi"
	appmetrics "github.com/griffin-open-source/griffin-sub001/internal/app/metrics"
	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
	"github.com/griffin-open-source/griffin-sub001/internal/app/scheduler"
	"github.com/griffin-open-source/griffin-sub001/internal/app/storage/memory"
	"github.com/griffin-open-source/griffin-sub001/internal/app/storage/postgres"
	"github.com/griffin-open-source/griffin-sub001/internal/app/system"
	"github.com/griffin-open-source/griffin-sub001/migrations"
	"github.com/griffin-open-source/griffin-sub001/pkg/config"
)

type planStore interface {
	httpapi.PlanStore
	scheduler.PlanSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := logging.NewFromEnv("hub")

	var db *sqlx.DB
	if cfg.Runtime.Repository.Backend == "postgres" || cfg.Runtime.JobQueue.Backend == "postgres" {
		db, err = sqlx.Connect(cfg.Database.Driver, cfg.Database.ConnectionString())
		if err != nil {
			logger.WithError(err).Fatal("connect to database")
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		defer db.Close()

		if cfg.Database.MigrateOnStart {
			if err := migrations.Up(db.DB); err != nil {
				logger.WithError(err).Fatal("apply migrations")
			}
		}
	}

	var plans planStore
	var runs httpapi.RunStore
	var agentStore agents.Store
	var targets httpapi.TargetStore
	var q queue.Queue

	if cfg.Runtime.Repository.Backend == "postgres" {
		plans = postgres.NewPlanStore(db)
		runs = postgres.NewRunStore(db)
		agentStore = postgres.NewAgentStore(db)
		targets = postgres.NewTargetStore(db)
	} else {
		plans = memory.NewPlanStore()
		runs = memory.NewRunStore()
		agentStore = memory.NewAgentStore()
		targets = memory.NewTargetStore()
	}

	if cfg.Runtime.JobQueue.Backend == "postgres" {
		q = queue.NewPostgresQueue(db)
	} else {
		q = queue.NewMemoryQueue()
	}

	registry := agents.New(
		agentStore,
		time.Duration(cfg.Runtime.AgentRegistry.MonitoringIntervalSeconds)*time.Second,
		time.Duration(cfg.Runtime.AgentRegistry.HeartbeatTimeoutSeconds)*time.Second,
		agents.Hooks{
			OnHeartbeat:   appmetrics.RecordAgentHeartbeat,
			OnOnlineCount: appmetrics.SetAgentsOnline,
		},
		logger,
	)

	services := []system.Service{registry}

	if cfg.Runtime.Scheduler.Enabled {
		sched := scheduler.New(
			plans,
			registry,
			q,
			time.Duration(cfg.Runtime.Scheduler.TickInterval)*time.Second,
			scheduler.Hooks{
				OnTick:    appmetrics.RecordSchedulerTick,
				OnEnqueue: appmetrics.RecordPlanEnqueued,
			},
			logger,
		)
		services = append(services, sched)
	}

	auth := httpapi.NewAuthenticator(httpapi.AuthConfig{
		Mode:         httpapi.AuthMode(cfg.Auth.Mode),
		APIKeys:      cfg.Auth.APIKeys,
		OIDCIssuer:   cfg.Auth.OIDCIssuer,
		OIDCAudience: cfg.Auth.OIDCAudience,
		KeyFunc:      oidcKeyFunc(cfg.Auth.OIDCIssuer),
	})

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewRouter(httpapi.Deps{
		Plans:   plans,
		Runs:    runs,
		Agents:  registry,
		Targets: targets,
		Queue:   q,
		Auth:    auth,
	}))
	mux.Handle("/metrics", appmetrics.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: appmetrics.InstrumentHandler(mux),
	}

	shutdown := middleware.NewGracefulShutdown(server, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			logger.WithError(err).Fatalf("start %s", svc.Name())
		}
	}
	shutdown.OnShutdown(func() {
		for _, svc := range services {
			if err := svc.Stop(ctx); err != nil {
				logger.WithFields(map[string]interface{}{"service": svc.Name(), "error": err.Error()}).Error("stop service")
			}
		}
		cancel()
	})

	shutdown.ListenForSignals()

	logger.WithFields(map[string]interface{}{"addr": addr}).Info("hub listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("serve")
	}
	shutdown.Wait()
}

// oidcKeyFunc returns the signing key for tokens from the configured issuer.
// It does not fetch the issuer's JWKS document: every token is verified
// against the single key in the OIDC_SIGNING_KEY environment variable.
func oidcKeyFunc(issuer string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		key := strings.TrimSpace(os.Getenv("OIDC_SIGNING_KEY"))
		if key == "" {
			return nil, fmt.Errorf("no signing key configured for issuer %s", issuer)
		}
		return []byte(key), nil
	}
}
