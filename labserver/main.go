package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/virtlab-edu/virtlab-go/internal/catalogseed"
	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/platform/auditlog"
	"github.com/virtlab-edu/virtlab-go/internal/platform/auth"
	"github.com/virtlab-edu/virtlab-go/internal/platform/env"
	"github.com/virtlab-edu/virtlab-go/internal/platform/httpserver"
	"github.com/virtlab-edu/virtlab-go/internal/platform/notify"
	"github.com/virtlab-edu/virtlab-go/internal/platform/objectstore"
	"github.com/virtlab-edu/virtlab-go/internal/platform/postgres"
	repopg "github.com/virtlab-edu/virtlab-go/internal/repo/postgres"
	"github.com/virtlab-edu/virtlab-go/internal/service/catalog"
	"github.com/virtlab-edu/virtlab-go/internal/service/runs"
)

const serviceName = "labserver"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("LABSERVER_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("LABSERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	experimentStore := repopg.NewExperimentStore(db)
	runStore := repopg.NewRunStore(db)
	userStore := repopg.NewUserStore(db)

	runServices := map[domain.Kind]*runs.Service{
		domain.KindTitration:    runs.New(domain.KindTitration, runStore, experimentStore),
		domain.KindDistillation: runs.New(domain.KindDistillation, runStore, experimentStore),
		domain.KindSaltAnalysis: runs.New(domain.KindSaltAnalysis, runStore, experimentStore),
	}
	catalogService := catalog.New(experimentStore, runServices)

	storeEnabled, err := env.Bool("VIRTLAB_MINIO_ENABLED", true)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	var store *minio.Client
	var storeCfg objectstore.Config
	if storeEnabled {
		storeCfg, err = objectstore.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		store, err = objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store init failed", "error", err)
			os.Exit(1)
		}
		if err := objectstore.EnsureBuckets(ctx, store, storeCfg); err != nil {
			logger.Error("bucket init failed", "error", err)
			os.Exit(1)
		}
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	var authenticator auth.Authenticator
	var oidcService *auth.OIDCService
	switch authCfg.Mode {
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeOIDC:
		svc, err := auth.NewOIDCService(ctx, authCfg, userStore)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(1)
		}
		oidcService = svc
		authenticator = auth.NewSessionAuthenticator(authCfg, userStore)
	default:
		logger.Error("unsupported auth mode", "mode", authCfg.Mode)
		os.Exit(2)
	}

	if seedPath := strings.TrimSpace(env.String("CATALOG_SEED_PATH", "")); seedPath != "" {
		seedAdmin := env.String("CATALOG_SEED_ADMIN_ID", "")
		entries, err := catalogseed.Load(seedPath)
		if err != nil {
			logger.Error("catalog seed failed", "path", seedPath, "error", err)
			os.Exit(2)
		}
		created, err := catalogseed.Apply(ctx, experimentStore, seedAdmin, entries)
		if err != nil {
			logger.Error("catalog seed failed", "path", seedPath, "error", err)
			os.Exit(1)
		}
		logger.Info("catalog seed applied", "path", seedPath, "created", created)
	}

	events := notify.NewRegistry()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc(
		"GET /readyz",
		httpserver.Readyz(
			serviceName,
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
		),
	)

	newRunsAPI(logger, db, runServices, events).register(mux)
	newCatalogAPI(logger, db, catalogService, store, storeCfg).register(mux)
	newAuthAPI(logger, authCfg, userStore, oidcService).register(mux)
	newStreamAPI(logger, events).register(mux)

	auditFn := func(ctx context.Context, event auth.DenyEvent) error {
		return auditlog.InsertAuthDeny(ctx, db, serviceName, event)
	}
	protected := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Audit:         auditFn,
		SkipPrefixes:  []string{"/healthz", "/readyz", "/auth/google/", "/logout"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         serviceName,
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, serviceName, protected)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
