package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/config"
	pg "github.com/kailas-cloud/agentpay/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/agentpay/internal/db/redis"
	"github.com/kailas-cloud/agentpay/internal/domain/identity"
	"github.com/kailas-cloud/agentpay/internal/domain/resource"
	logpkg "github.com/kailas-cloud/agentpay/internal/logger"
	"github.com/kailas-cloud/agentpay/internal/metrics"
	budgetrepo "github.com/kailas-cloud/agentpay/internal/repository/budget"
	budgetpg "github.com/kailas-cloud/agentpay/internal/repository/budget/postgres"
	"github.com/kailas-cloud/agentpay/internal/repository/catalog"
	ledgermem "github.com/kailas-cloud/agentpay/internal/repository/ledger/memory"
	ledgerpg "github.com/kailas-cloud/agentpay/internal/repository/ledger/postgres"
	ledgerredis "github.com/kailas-cloud/agentpay/internal/repository/ledger/redis"
	quotebook "github.com/kailas-cloud/agentpay/internal/repository/quote"
	taskstore "github.com/kailas-cloud/agentpay/internal/repository/task"
	chiTransport "github.com/kailas-cloud/agentpay/internal/transport/chi"
	identityclient "github.com/kailas-cloud/agentpay/internal/transport/identity"
	issuerclient "github.com/kailas-cloud/agentpay/internal/transport/issuer"
	openaiWriter "github.com/kailas-cloud/agentpay/internal/transport/openai"
	"github.com/kailas-cloud/agentpay/internal/transport/remote"
	"github.com/kailas-cloud/agentpay/internal/transport/upstream"
	authorityuc "github.com/kailas-cloud/agentpay/internal/usecase/authority"
	gatewayuc "github.com/kailas-cloud/agentpay/internal/usecase/gateway"
	healthuc "github.com/kailas-cloud/agentpay/internal/usecase/health"
	ledgeruc "github.com/kailas-cloud/agentpay/internal/usecase/ledger"
	orchestratoruc "github.com/kailas-cloud/agentpay/internal/usecase/orchestrator"
	reportuc "github.com/kailas-cloud/agentpay/internal/usecase/report"
	"github.com/kailas-cloud/agentpay/internal/version"
	agentpay "github.com/kailas-cloud/agentpay/pkg/sdk"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Role, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting agentpay server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.String("role", cfg.Role),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	metrics.RegisterPaymentMetrics()

	ctx := context.Background()

	// The ledger lives with the authority and gateway; an orchestrator-only
	// process has no database.
	st := &storage{close: func() {}}
	var ledger *ledgeruc.Service
	if cfg.Hosts(config.RoleAuthority) || cfg.Hosts(config.RoleGateway) {
		st, err = openStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to open storage", zap.Error(err))
		}
		ledger = ledgeruc.New(st.ledger, logger)
	}
	defer st.close()

	health := healthuc.New(st.pinger)

	var (
		authority *authorityuc.Service
		gateway   *gatewayuc.Service
		tasks     *orchestratoruc.Service
	)

	if cfg.Hosts(config.RoleAuthority) {
		authority, err = buildAuthority(cfg, ledger, st, logger)
		if err != nil {
			logger.Fatal("Failed to build token authority", zap.Error(err))
		}
	}

	if cfg.Hosts(config.RoleGateway) {
		gateway, err = buildGateway(cfg, ledger, logger)
		if err != nil {
			logger.Fatal("Failed to build data gateway", zap.Error(err))
		}
	}

	if cfg.Hosts(config.RoleOrchestrator) {
		tasks, err = buildOrchestrator(cfg, authority, gateway, health, logger)
		if err != nil {
			logger.Fatal("Failed to build orchestrator", zap.Error(err))
		}
		defer tasks.Close()
	}

	server := chiTransport.NewServer(authority, gateway, tasks, health, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys, cfg.Auth.PublicPaths...))
	r.Use(metrics.Middleware())
	chiTransport.HandlerWithOptions(server, chiTransport.ChiServerOptions{
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, _ *http.Request, err error) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
				Code:    chiTransport.ErrorResponseCodeBadRequest,
				Message: err.Error(),
			})
		},
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// storage is the opened ledger backend.
type storage struct {
	ledger ledgeruc.Repository
	budget authorityuc.BudgetStore // nil without a shared database
	pinger healthuc.DBPinger       // nil for the in-memory driver
	close  func()
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*storage, error) {
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second

	switch cfg.Database.Driver {
	case config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Database.Addrs))
		return &storage{
			ledger: ledgerredis.New(store, time.Duration(cfg.Ledger.RetentionHours)*time.Hour),
			budget: budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour),
			pinger: store,
			close:  store.Close,
		}, nil

	case config.DriverPostgres:
		pool, err := pg.NewPool(ctx, pg.Config{DSN: cfg.Database.DSN, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return nil, err
		}
		if err := pool.WaitForReady(ctx, readiness); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres not ready: %w", err)
		}
		if cfg.Database.Migrate {
			if err := pg.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		logger.Info("Connected to postgres")
		return &storage{
			ledger: ledgerpg.New(pool),
			budget: budgetpg.New(pool),
			pinger: pool,
			close:  pool.Close,
		}, nil

	default:
		logger.Warn("Using in-memory ledger; balances are lost on restart")
		return &storage{ledger: ledgermem.New(), close: func() {}}, nil
	}
}

func buildAuthority(
	cfg config.Config, ledger *ledgeruc.Service, st *storage, logger *zap.Logger,
) (*authorityuc.Service, error) {
	verifier, err := buildVerifier(cfg.Authority.Identity, cfg.Authority.Retry)
	if err != nil {
		return nil, err
	}

	limiter := authorityuc.NewIssuanceLimiter(logger)
	if st.budget != nil {
		limiter = limiter.WithStore(st.budget)
	} else {
		logger.Warn("Issuance limits are tracked per process; restarts and replicas reset them")
	}

	svc := authorityuc.New(ledger, verifier, limiter, logger).
		WithTokenTTL(time.Duration(cfg.Authority.TokenTTLSec) * time.Second).
		WithRetryPolicy(cfg.Authority.Retry.Policy())

	if iss := cfg.Authority.Issuer; iss.URL != "" {
		up, err := upstream.New(iss.URL)
		if err != nil {
			return nil, fmt.Errorf("issuer: %w", err)
		}
		svc = svc.WithIssuer(issuerclient.NewClient(up, iss.AppID, iss.AppSecret))
	}

	logger.Info("Token authority ready",
		zap.Int("token_ttl_sec", cfg.Authority.TokenTTLSec),
		zap.Bool("identity_service", cfg.Authority.Identity.URL != ""),
		zap.Bool("external_issuer", cfg.Authority.Issuer.URL != ""),
	)
	return svc, nil
}

func buildVerifier(cfg config.IdentityConfig, retryCfg config.RetryConfig) (authorityuc.IdentityVerifier, error) {
	if cfg.URL != "" {
		up, err := upstream.New(cfg.URL, upstream.WithTimeout(retryCfg.Policy().CallTimeout))
		if err != nil {
			return nil, fmt.Errorf("identity: %w", err)
		}
		return identityclient.NewClient(up), nil
	}

	owners := make(map[string]identity.Limits, len(cfg.Owners))
	for owner, l := range cfg.Owners {
		owners[owner] = l.Limits()
	}
	static := identityclient.NewStatic(owners)
	if cfg.Default != nil {
		static = static.WithDefault(cfg.Default.Limits())
	}
	return static, nil
}

func buildGateway(cfg config.Config, ledger *ledgeruc.Service, logger *zap.Logger) (*gatewayuc.Service, error) {
	items := make([]resource.Resource, 0, len(cfg.Gateway.Catalog))
	for _, c := range cfg.Gateway.Catalog {
		res, err := resource.New(c.ID, c.Name, c.Description, c.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog %q: %w", c.ID, err)
		}
		items = append(items, res)
	}
	cat, err := catalog.New(items)
	if err != nil {
		return nil, err
	}

	logger.Info("Data gateway ready", zap.Int("catalog_size", len(items)))
	return gatewayuc.New(cat, quotebook.New(), ledger, logger).
		WithQuoteTTL(time.Duration(cfg.Gateway.QuoteTTLSec) * time.Second), nil
}

func buildOrchestrator(
	cfg config.Config,
	authority *authorityuc.Service,
	gateway *gatewayuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) (*orchestratoruc.Service, error) {
	oc := cfg.Orchestrator

	var issuer orchestratoruc.TokenIssuer = authority
	if oc.AuthorityURL != "" || authority == nil {
		client, err := newPeerClient(oc.AuthorityURL, oc)
		if err != nil {
			return nil, fmt.Errorf("authority client: %w", err)
		}
		a := remote.NewAuthority(client)
		health.WithCheck("authority", a)
		issuer = a
	}

	var gw orchestratoruc.DataGateway = gateway
	if oc.GatewayURL != "" || gateway == nil {
		client, err := newPeerClient(oc.GatewayURL, oc)
		if err != nil {
			return nil, fmt.Errorf("gateway client: %w", err)
		}
		g := remote.NewGateway(client)
		health.WithCheck("gateway", g)
		gw = g
	}

	reporter := reportuc.New(logger)
	if cfg.Report.Model != "" {
		writer := openaiWriter.NewWriter(&openaiWriter.Config{
			APIKey:    cfg.Report.APIKey,
			BaseURL:   cfg.Report.BaseURL,
			Model:     cfg.Report.Model,
			MaxTokens: cfg.Report.MaxTokens,
			Logger:    logger,
		})
		reporter = reporter.WithWriter(writer)
		health.WithCheck("report_writer", writer)
	}

	logger.Info("Orchestrator ready",
		zap.Int("workers", oc.Workers),
		zap.Int("max_resources", oc.MaxResources),
		zap.Bool("remote_authority", oc.AuthorityURL != ""),
		zap.Bool("remote_gateway", oc.GatewayURL != ""),
		zap.Bool("report_writer", cfg.Report.Model != ""),
	)

	return orchestratoruc.New(taskstore.New(), issuer, gw, reporter, orchestratoruc.Config{
		Workers:      oc.Workers,
		QueueSize:    oc.QueueSize,
		MaxResources: oc.MaxResources,
		Retry:        oc.Retry.Policy(),
	}, logger), nil
}

func newPeerClient(baseURL string, oc config.OrchestratorConfig) (*agentpay.Client, error) {
	opts := []agentpay.Option{agentpay.WithTimeout(oc.Retry.Policy().CallTimeout)}
	if oc.APIKey != "" {
		opts = append(opts, agentpay.WithAPIKey(oc.APIKey))
	}
	return agentpay.New(baseURL, opts...)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorResponseCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if tx := ww.Header().Get(chiTransport.HeaderPaymentTransaction); tx != "" {
				fields = append(fields, zap.String("payment_transaction", tx))
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}
