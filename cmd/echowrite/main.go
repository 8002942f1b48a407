package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/echowrite/internal/adapter/cache"
	"github.com/smallbiznis/echowrite/internal/adapter/identity"
	"github.com/smallbiznis/echowrite/internal/adapter/mail"
	"github.com/smallbiznis/echowrite/internal/bootstrap"
	"github.com/smallbiznis/echowrite/internal/config"
	httptransport "github.com/smallbiznis/echowrite/internal/http"
	"github.com/smallbiznis/echowrite/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/echowrite/internal/http/middleware"
	"github.com/smallbiznis/echowrite/internal/jwt"
	"github.com/smallbiznis/echowrite/internal/metrics"
	apimiddleware "github.com/smallbiznis/echowrite/internal/middleware"
	"github.com/smallbiznis/echowrite/internal/migrations"
	"github.com/smallbiznis/echowrite/internal/otp"
	"github.com/smallbiznis/echowrite/internal/password"
	"github.com/smallbiznis/echowrite/internal/repository"
	"github.com/smallbiznis/echowrite/internal/server"
	"github.com/smallbiznis/echowrite/internal/service"
	"github.com/smallbiznis/echowrite/internal/telemetry"
	"github.com/smallbiznis/echowrite/internal/username"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newMetrics,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newKeyRepository,
			newRedisClient,
			newVerificationStore,
			newMailDispatcher,
			newCodeNotifier,
			newIdentityVerifier,
			newHasher,
			newCodeGenerator,
			newUsernameReconciler,
			newEventRecorder,
			newRateLimiter,
			newKeyManager,
			newTokenGenerator,
			service.NewAuthService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSigningKey, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newMetrics() *metrics.Metrics {
	return metrics.New()
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.RunMigrations {
		if err := migrations.Up(ctx, cfg.DatabaseURL, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newKeyRepository(pool *pgxpool.Pool) repository.KeyRepository {
	return repository.NewPostgresKeyRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newVerificationStore(client redis.UniversalClient, cfg config.Config) repository.VerificationStore {
	return cacheadapter.NewRedisVerificationStore(client, cfg.RedisKeyPrefix)
}

func newMailDispatcher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *mail.Dispatcher {
	var sender mail.Sender
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, verification codes will only be logged")
		sender = mail.NewLogSender(logger)
	} else {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: "EchoWrite",
		})
	}

	dispatcher := mail.NewDispatcher(sender, logger, cfg.MailTimeout, cfg.OTPTTL)
	lc.Append(fx.Hook{
		OnStop: dispatcher.Close,
	})
	return dispatcher
}

func newCodeNotifier(d *mail.Dispatcher) service.CodeNotifier {
	return d
}

func newIdentityVerifier(cfg config.Config) identity.Verifier {
	return identity.NewGoogleVerifier(identity.GoogleConfig{
		ClientID: cfg.GoogleClientID,
		JWKSURL:  cfg.GoogleJWKSURL,
	}, &http.Client{Timeout: 10 * time.Second})
}

func newHasher(cfg config.Config) *password.Hasher {
	return password.NewHasher(password.Params{
		Time:    cfg.Argon2Time,
		Memory:  cfg.Argon2MemoryKB,
		Threads: cfg.Argon2Threads,
	})
}

func newCodeGenerator() otp.Generator {
	return otp.NewGenerator()
}

func newUsernameReconciler(users repository.UserRepository) *username.Reconciler {
	return username.NewReconciler(users)
}

func newEventRecorder(m *metrics.Metrics) service.EventRecorder {
	return m
}

func newRateLimiter(cfg config.Config, m *metrics.Metrics) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM, m.RateLimited)
}

func newKeyManager(repo repository.KeyRepository, cfg config.Config) *jwt.KeyManager {
	return jwt.NewKeyManager(repo, cfg.JWTSecret)
}

func newTokenGenerator(manager *jwt.KeyManager, cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator(manager, cfg.TokenIssuer, cfg.AccessTokenTTL)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return httpmiddleware.NewAuth(authService)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
