package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/infra/config"
	"github.com/arklim/tenant-session-service/internal/infra/database"
	kafkainfra "github.com/arklim/tenant-session-service/internal/infra/kafka"
	"github.com/arklim/tenant-session-service/internal/infra/logger"
	redisinfra "github.com/arklim/tenant-session-service/internal/infra/redis"
	"github.com/arklim/tenant-session-service/internal/infra/security"
	"github.com/arklim/tenant-session-service/internal/infra/telemetry"
	postgresrepo "github.com/arklim/tenant-session-service/internal/repository/postgres"
	redisrepo "github.com/arklim/tenant-session-service/internal/repository/redis"
	"github.com/arklim/tenant-session-service/internal/transport/http/middleware"
	"github.com/arklim/tenant-session-service/internal/transport/http/routes"
	"github.com/arklim/tenant-session-service/internal/usecase"
)

// Application owns the wired service graph and its lifecycle.
type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	tracer    *telemetry.TracerProvider
	validator *usecase.SessionValidator
	activity  *usecase.ActivityTracker
	reaper    *usecase.ExpirationReaper
	cleaner   *usecase.IdleSessionCleaner
}

// New wires configuration into a runnable application. The credentials
// verifier authenticates login attempts against the identity backend; a nil
// verifier installs a deny-all stub so the service can still serve
// validation and revocation traffic.
func New(ctx context.Context, cfg *config.AppConfig, credentials port.CredentialVerifier) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	signer, err := security.NewJWTSigner(cfg.Signing.Secret, cfg.Signing.Issuer)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init signer: %w", err)
	}

	defaultPolicy := domain.TenantPolicy{
		MultiDeviceLogin:    cfg.Session.DefaultMultiDevice,
		MultiDeviceLoginNum: cfg.Session.DefaultDeviceLimit,
	}
	repos := postgresrepo.NewRepositories(pool, defaultPolicy)

	tokenPrefix := cfg.Redis.SessionTokenPrefix
	if tokenPrefix == "" {
		tokenPrefix = "sessions:token"
	}
	sessionCache := redisrepo.NewSessionCacheRepository(redisClient.Client(), tokenPrefix)

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	sessionMetrics, err := telemetry.NewSessionMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("init session metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Namespace: "sessions"})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "sessions:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	activity := usecase.NewActivityTracker()

	issuer := usecase.NewTokenIssuer(repos.Sessions, sessionCache, signer, repos.TenantPolicies, eventPublisher, log).
		WithLifetime(cfg.Session.Lifetime).
		WithMetrics(sessionMetrics)
	validator := usecase.NewSessionValidator(repos.Sessions, sessionCache, signer, eventPublisher, activity, log).
		WithLifetimes(cfg.Session.Lifetime, cfg.Session.RenewWindow).
		WithMetrics(sessionMetrics)
	reaper := usecase.NewExpirationReaper(repos.Sessions, sessionCache, eventPublisher, log).
		WithInterval(cfg.Reaper.Interval).
		WithMetrics(sessionMetrics)
	cleaner := usecase.NewIdleSessionCleaner(repos.Sessions, sessionCache, activity, log).
		WithInterval(cfg.Cleaner.Interval).
		WithIdleThreshold(cfg.Cleaner.IdleThreshold).
		WithBatchSize(cfg.Cleaner.BatchSize)

	if credentials == nil {
		log.Warn("no credential verifier configured, login requests will be rejected")
		credentials = port.CredentialVerifierFunc(func(context.Context, int64, string, string) (domain.Identity, error) {
			return domain.Identity{}, port.ErrCredentialsRejected
		})
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Issuer:      issuer,
			Validator:   validator,
			Credentials: credentials,
		},
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		producer:  producer,
		tracer:    tracer,
		validator: validator,
		activity:  activity,
		reaper:    reaper,
		cleaner:   cleaner,
	}, nil
}

// Run serves HTTP traffic and drives the background sweepers until the
// context is cancelled, then shuts everything down in dependency order.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("close kafka producer", zap.Error(err))
			}
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.tracer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("shutdown tracer", zap.Error(err))
			}
		}
	}()

	sweepCtx, stopSweepers := context.WithCancel(ctx)
	defer stopSweepers()
	go a.reaper.Run(sweepCtx)
	go a.cleaner.Run(sweepCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting session API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		stopSweepers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.validator.WaitMaintenance()
		a.activity.Drain()
		return nil
	case err := <-serverErrCh:
		stopSweepers()
		a.validator.WaitMaintenance()
		return err
	}
}
