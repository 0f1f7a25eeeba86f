package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/redmonkez12/todo-api/internal/auth"
	"github.com/redmonkez12/todo-api/internal/config"
	"github.com/redmonkez12/todo-api/internal/database"
	apihttp "github.com/redmonkez12/todo-api/internal/http"
	"github.com/redmonkez12/todo-api/internal/logging"
	"github.com/redmonkez12/todo-api/internal/metrics"
	"github.com/redmonkez12/todo-api/internal/oauth"
	"github.com/redmonkez12/todo-api/internal/ratelimit"
	"github.com/redmonkez12/todo-api/internal/user"
	"github.com/redmonkez12/todo-api/internal/validate"
)

// app holds the connections and services shared by every command.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	db          *bun.DB
	mongoClient *mongo.Client
	redisClient *redis.Client
	checks      map[string]apihttp.HealthCheck

	validator *validate.Validator
	users     *user.Service
	issuer    *auth.Issuer
	ledger    *auth.Ledger
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:       cfg,
		logger:    logger,
		checks:    make(map[string]apihttp.HealthCheck),
		validator: validate.New(),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	if err := a.connect(ctx); err != nil {
		return err
	}

	userStore, err := a.userStore(ctx)
	if err != nil {
		return err
	}

	hasher := user.NewHasher(user.HasherOptions{
		Algorithm:     cfg.Password.Hasher,
		Argon2Time:    uint32(cfg.Password.Argon2Time),
		Argon2Memory:  uint32(cfg.Password.Argon2Memory),
		Argon2Threads: uint8(cfg.Password.Argon2Threads),
		BcryptCost:    cfg.Password.BcryptCost,
		Concurrency:   cfg.Password.Concurrency,
	})
	a.users = user.NewService(userStore, hasher, a.validator, cfg.Store.Timeout)

	tokens, err := tokenService(cfg.Auth)
	if err != nil {
		return err
	}
	a.issuer = auth.NewIssuer(tokens, cfg.Auth.AccessTokenDuration)

	refreshTokens, err := a.refreshTokenRepository(ctx)
	if err != nil {
		return err
	}
	a.ledger = auth.NewLedger(refreshTokens, a.users, a.issuer, cfg.Auth.RefreshTokenDuration, cfg.Store.Timeout)

	return nil
}

// connect opens every store the configuration refers to.
func (a *app) connect(ctx context.Context) error {
	if a.cfg.UsesPostgres() {
		db, err := database.OpenPostgres(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.checks["postgres"] = db.PingContext
	}

	if a.cfg.UsesMongo() {
		client, err := database.OpenMongo(ctx, a.cfg.Mongo.URL)
		if err != nil {
			return fmt.Errorf("failed to initialize MongoDB: %w", err)
		}
		a.mongoClient = client
		a.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}

	if a.cfg.UsesRedis() {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Address(),
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to ping Redis: %w", err)
		}
		a.redisClient = client
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	return nil
}

func (a *app) userStore(ctx context.Context) (user.Store, error) {
	if a.cfg.Store.Driver == config.StoreDriverMongo {
		return user.NewMongoRepository(ctx, a.mongoClient.Database(a.cfg.Mongo.DBName))
	}
	return user.NewRepository(a.db), nil
}

func (a *app) refreshTokenRepository(ctx context.Context) (auth.RefreshTokenRepository, error) {
	switch a.cfg.Store.LedgerDriver {
	case config.StoreDriverMongo:
		return auth.NewMongoRepository(ctx, a.mongoClient.Database(a.cfg.Mongo.DBName))
	case config.StoreDriverPostgres:
		return auth.NewRepository(a.db), nil
	default:
		return auth.NewRedisRepository(a.redisClient), nil
	}
}

func tokenService(cfg config.AuthConfig) (auth.TokenService, error) {
	if cfg.TokenFormat == config.TokenFormatJWT {
		svc, err := auth.NewJWTService(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		return svc, nil
	}

	svc, err := auth.NewPasetoService(cfg.PasetoKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PASETO service: %w", err)
	}
	return svc, nil
}

// server builds the HTTP server with every handler wired.
func (a *app) server() *apihttp.Server {
	cfg := a.cfg
	m := metrics.New("todo_api")

	linker := auth.NewLinker(a.users, map[user.Provider]auth.ProfileFetcher{
		user.ProviderFacebook: oauth.NewFacebook(cfg.OAuth.FacebookProfileURL, cfg.OAuth.Timeout),
		user.ProviderGoogle:   oauth.NewGoogle(cfg.OAuth.GoogleProfileURL, cfg.OAuth.Timeout),
	})
	authService := auth.NewService(a.users, a.issuer, a.ledger, linker, a.validator, m)

	var limiter auth.RateLimiter
	if cfg.RateLimit.Requests > 0 && a.redisClient != nil {
		limiter = ratelimit.NewLimiter(a.redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	logger := a.logger.WithComponent("http")
	router := apihttp.NewRouter(apihttp.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		AuthHandler: auth.NewHandler(authService, limiter),
		UserHandler: user.NewHandler(a.users, a.validator),
		Guard:       auth.NewGuard(a.issuer, a.users),
		Checks:      a.checks,
	})

	return apihttp.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)
}

// Close releases every open connection.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err.Error())
		}
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(context.Background()); err != nil {
			a.logger.Warn("failed to disconnect MongoDB", "error", err.Error())
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close Redis", "error", err.Error())
		}
	}
}
