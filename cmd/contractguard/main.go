package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/contractguard/contractguard/pkg/audit"
	"github.com/contractguard/contractguard/pkg/auth"
	"github.com/contractguard/contractguard/pkg/billing"
	"github.com/contractguard/contractguard/pkg/config"
	"github.com/contractguard/contractguard/pkg/contracts"
	"github.com/contractguard/contractguard/pkg/database"
	"github.com/contractguard/contractguard/pkg/httputil"
	"github.com/contractguard/contractguard/pkg/middleware"
	"github.com/contractguard/contractguard/pkg/observability"
	"github.com/contractguard/contractguard/pkg/orgs"
	"github.com/contractguard/contractguard/pkg/rbac"
	"github.com/contractguard/contractguard/pkg/seed"
)

var version = "dev"

const dbStatsInterval = 15 * time.Second

func main() {
	migrateOnly := flag.Bool("migrate", false, "Run database migrations and exit")
	seedOnly := flag.Bool("seed", false, "Apply the permission and plan catalog and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	log.WithField("version", version).Info("starting contractguard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *migrateOnly, *seedOnly); err != nil {
		log.WithError(err).Fatal("contractguard exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, migrateOnly, seedOnly bool) error {
	cm, err := database.NewConnectionManager(database.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: database.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db := cm.Primary()
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	if migrateOnly || cfg.Database.AutoMigrate {
		if err := database.RunMigrations(ctx, db, log); err != nil {
			cm.Close()
			return err
		}
		if migrateOnly {
			return cm.Close()
		}
	}

	if seedOnly {
		defer cm.Close()
		doc, err := seed.Load(cfg.Seed.CatalogPath)
		if err != nil {
			return err
		}
		res, err := seed.Apply(ctx, db, doc, seed.Options{
			SuperAdminEmail:    cfg.Seed.SuperAdminEmail,
			SuperAdminPassword: cfg.Seed.SuperAdminPassword,
			Hasher:             hasher,
		}, log)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"permissions":  res.PermissionsCreated,
			"plans":        res.PlansCreated,
			"system_roles": res.SystemRolesCreated,
		}).Info("seed applied")
		return nil
	}

	shutdown := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error {
		return cm.Close()
	})

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, log)
	if err != nil {
		shutdown.Shutdown()
		return fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}
	shutdown.RegisterShutdownFunc("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, log)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			shutdown.Shutdown()
			return fmt.Errorf("invalid redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}

	var revocations auth.RevocationList
	if redisClient != nil {
		revocations = auth.NewRedisRevocationList(redisClient, "contractguard:revoked")
	} else {
		memory := auth.NewMemoryRevocationList()
		memory.StartCleanup(ctx, 5*time.Minute)
		revocations = memory
	}

	auditLogger := audit.NewMultiLogger(audit.NewLogrusLogger(log), audit.NewDBLogger(db))
	auditReader := audit.NewDBLogger(cm.Replica())

	issuer := auth.NewSessionIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	authz := rbac.NewAuthorizer(metrics, auditLogger)
	billingSvc := billing.NewService(db, cfg.Billing.DefaultPlan, cfg.Billing.WebhookSecret, auditLogger, metrics, log)
	authSvc := auth.NewService(db, hasher, issuer, rbac.NewResolver(db), billingSvc, auditLogger, metrics).
		WithRevocationList(revocations)
	rbacSvc := rbac.NewService(db, auditLogger, metrics, log)
	orgSvc := orgs.NewService(db, auditLogger, auditReader, log)
	contractSvc := contracts.NewService(db, auditLogger, log)

	limits := &middleware.RateLimitConfig{
		RequestsPerMinute: cfg.Auth.LoginRPM,
		Burst:             cfg.Auth.LoginBurst,
	}
	var loginLimiter func(http.Handler) http.Handler
	if redisClient != nil {
		loginLimiter = middleware.NewDistributedRateLimiter(redisClient, limits, "contractguard:login", log).Handler
	} else {
		limiter := middleware.NewRateLimiter(limits)
		limiter.StartCleanup(ctx)
		loginLimiter = limiter.Handler
	}

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics))

	authHandlers := auth.NewHandlers(authSvc)
	if cfg.Auth.OIDCEnabled() {
		idp, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.Auth.OIDCIssuerURL,
			ClientID:     cfg.Auth.OIDCClientID,
			ClientSecret: cfg.Auth.OIDCClientSecret,
			RedirectURL:  cfg.Auth.OIDCRedirectURL,
			Scopes:       cfg.Auth.OIDCScopes,
		})
		if err != nil {
			shutdown.Shutdown()
			return err
		}
		authHandlers.WithIdentityProvider(idp)
		log.WithField("issuer", cfg.Auth.OIDCIssuerURL).Info("OIDC single sign-on enabled")
	}
	billingHandlers := billing.NewHandlers(billingSvc, authz)
	authHandlers.RegisterPublicRoutes(router, loginLimiter)
	billingHandlers.RegisterPublicRoutes(router)

	api := router.NewRoute().Subrouter()
	api.Use(middleware.NewSessionMiddleware(issuer, auth.NewStore(db), log).WithRevocationList(revocations).Handler)
	authHandlers.RegisterRoutes(api)
	rbac.NewHandlers(rbacSvc, authz).RegisterRoutes(api)
	orgs.NewHandlers(orgSvc, authz.Can(rbac.PermOrganizationRead)).RegisterRoutes(api)
	billingHandlers.RegisterRoutes(api)
	contracts.NewHandlers(contractSvc, authz).RegisterRoutes(api)

	handler := httputil.Chain(
		httputil.RequestID,
		httputil.Logging(log),
		httputil.Recovery,
		httputil.CORS(cfg.Server.CORSOrigins),
		httputil.MaxBytes(cfg.Server.MaxBodyBytes),
	)(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(handler, "contractguard"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient, version)
	checker.AddCheck("schema", func(ctx context.Context) error {
		pending, err := database.PendingMigrations(ctx, db)
		if err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("%d migrations pending", pending)
		}
		return nil
	})
	observability.RegisterHealthRoutes(opsMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown.AddServer(apiServer)
	shutdown.AddServer(opsServer)

	scheduler, err := billing.NewScheduler(billingSvc, cfg.Billing.ExpirySpec, log)
	if err != nil {
		shutdown.Shutdown()
		return err
	}
	scheduler.Start()
	shutdown.RegisterShutdownFunc("billing-scheduler", func(ctx context.Context) error {
		scheduler.Stop(ctx)
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("API server listening")
		return serve(apiServer)
	})
	g.Go(func() error {
		log.WithField("addr", opsServer.Addr).Info("health and metrics server listening")
		return serve(opsServer)
	})
	g.Go(func() error {
		reportDBStats(gctx, cm, metrics)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")
		return shutdown.Shutdown()
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s: %w", srv.Addr, err)
	}
	return nil
}

func reportDBStats(ctx context.Context, cm *database.ConnectionManager, metrics *observability.Metrics) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		stats := cm.Stats()
		open, idle := stats.Primary.OpenConnections, stats.Primary.Idle
		for _, r := range stats.Replicas {
			open += r.OpenConnections
			idle += r.Idle
		}
		metrics.DBConnectionsOpen.Set(float64(open))
		metrics.DBConnectionsIdle.Set(float64(idle))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
