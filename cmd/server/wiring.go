package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/jewelauth/internal/authkit"
	"github.com/tyemirov/jewelauth/internal/authkitpg"
	"github.com/tyemirov/jewelauth/internal/web"
)

const (
	verifierIDToken = "idtoken"
	verifierOIDC    = "oidc"
	engineGORM      = "gorm"
	enginePGX       = "pgx"
)

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

var buildOIDCTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewOIDCTokenValidator(ctx, "")
}

type runtimeOptions struct {
	ListenAddr      string
	DatabaseURL     string
	DatabaseEngine  string
	RedisAddr       string
	RedisPassword   string
	GoogleVerifier  string
	BcryptCost      int
	SeedRoles       bool
	DevInsecureHTTP bool
	EnableCORS      bool
	CORSOrigins     []string
}

func loadRuntimeOptions() runtimeOptions {
	return runtimeOptions{
		ListenAddr:      viper.GetString("listen_addr"),
		DatabaseURL:     strings.TrimSpace(viper.GetString("database_url")),
		DatabaseEngine:  strings.ToLower(strings.TrimSpace(viper.GetString("database_engine"))),
		RedisAddr:       strings.TrimSpace(viper.GetString("redis_addr")),
		RedisPassword:   viper.GetString("redis_password"),
		GoogleVerifier:  strings.ToLower(strings.TrimSpace(viper.GetString("google_verifier"))),
		BcryptCost:      viper.GetInt("bcrypt_cost"),
		SeedRoles:       !viper.IsSet("seed_roles") || viper.GetBool("seed_roles"),
		DevInsecureHTTP: viper.GetBool("dev_insecure_http"),
		EnableCORS:      viper.GetBool("enable_cors"),
		CORSOrigins:     viper.GetStringSlice("cors_allowed_origins"),
	}
}

// accountStore is what every user store backend provides.
type accountStore interface {
	authkit.UserStore
	authkit.RoleStore
	SeedRoles(ctx context.Context, names ...authkit.RoleID) error
}

type application struct {
	service *authkit.Service
	metrics *authkit.CounterMetrics
	closers []func()
}

func (app *application) Close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		app.closers[index]()
	}
}

func buildApplication(ctx context.Context, serverConfig authkit.ServerConfig, options runtimeOptions, logger *zap.Logger) (*application, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app := &application{metrics: authkit.NewCounterMetrics()}

	store, closeStore, storeErr := buildAccountStore(ctx, options, logger)
	if storeErr != nil {
		return nil, storeErr
	}
	app.closers = append(app.closers, closeStore)
	if options.SeedRoles {
		if err := store.SeedRoles(ctx, authkit.KnownRoles...); err != nil {
			app.Close()
			return nil, fmt.Errorf("%s: %w", configCodeStoreInit, err)
		}
	}

	denyList, closeDenyList, denyErr := buildDenyList(ctx, options, logger)
	if denyErr != nil {
		app.Close()
		return nil, denyErr
	}
	app.closers = append(app.closers, closeDenyList)

	tokenValidator, validatorErr := buildTokenValidator(ctx, options.GoogleVerifier)
	if validatorErr != nil {
		app.Close()
		return nil, validatorErr
	}

	tokens, tokensErr := authkit.NewTokenService(serverConfig.AppJWTSigningKey, serverConfig.AppJWTIssuer, serverConfig.SessionTTL)
	if tokensErr != nil {
		app.Close()
		return nil, fmt.Errorf("%s: %w", configCodeMissingJWTSigningKey, tokensErr)
	}

	service, serviceErr := authkit.NewService(authkit.Dependencies{
		Users:    store,
		Roles:    store,
		Hasher:   authkit.NewBcryptHasher(options.BcryptCost),
		Tokens:   tokens,
		Verifier: authkit.NewGoogleIdentityVerifier(tokenValidator, serverConfig.GoogleWebClientID, serverConfig.GoogleVerifyTimeout, logger),
		DenyList: denyList,
		Clock:    authkit.NewSystemClock(),
		Metrics:  app.metrics,
		Logger:   logger,
	})
	if serviceErr != nil {
		app.Close()
		return nil, serviceErr
	}
	app.service = service
	return app, nil
}

func buildAccountStore(ctx context.Context, options runtimeOptions, logger *zap.Logger) (accountStore, func(), error) {
	if options.DatabaseURL == "" {
		logger.Info("using in-memory account store")
		return authkit.NewMemoryUserStore(), func() {}, nil
	}
	switch options.DatabaseEngine {
	case "", engineGORM:
		store, err := authkit.NewDatabaseUserStore(ctx, options.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", configCodeStoreInit, err)
		}
		logger.Info("using persistent account store", zap.String("driver", store.Driver()))
		return store, func() { _ = store.Close() }, nil
	case enginePGX:
		lowered := strings.ToLower(options.DatabaseURL)
		if !strings.HasPrefix(lowered, "postgres://") && !strings.HasPrefix(lowered, "postgresql://") {
			return nil, nil, configError(configCodeUnsupportedEngine, "pgx engine requires a postgres database_url")
		}
		pool, err := authkitpg.BuildPool(ctx, options.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", configCodeStoreInit, err)
		}
		if err := authkitpg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("%s: %w", configCodeStoreInit, err)
		}
		store := authkitpg.NewPostgresUserStore(pool)
		logger.Info("using persistent account store", zap.String("driver", enginePGX))
		return store, store.Close, nil
	default:
		return nil, nil, configError(configCodeUnsupportedEngine, "database_engine must be gorm or pgx")
	}
}

func buildDenyList(ctx context.Context, options runtimeOptions, logger *zap.Logger) (authkit.TokenDenyList, func(), error) {
	if options.RedisAddr == "" {
		return authkit.NewMemoryDenyList(), func() {}, nil
	}
	denyList, err := authkit.NewRedisDenyList(ctx, options.RedisAddr, options.RedisPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", configCodeDenyListInit, err)
	}
	logger.Info("using redis token deny-list", zap.String("addr", options.RedisAddr))
	return denyList, func() { _ = denyList.Close() }, nil
}

func buildTokenValidator(ctx context.Context, backend string) (authkit.GoogleTokenValidator, error) {
	var builder func(context.Context) (authkit.GoogleTokenValidator, error)
	switch backend {
	case "", verifierIDToken:
		builder = buildGoogleTokenValidator
	case verifierOIDC:
		builder = buildOIDCTokenValidator
	default:
		return nil, configError(configCodeUnsupportedVerifier, "google_verifier must be idtoken or oidc")
	}
	validator, err := builder(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, err)
	}
	return validator, nil
}

func buildRouter(serverConfig authkit.ServerConfig, options runtimeOptions, service *authkit.Service, logger *zap.Logger) (*gin.Engine, error) {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if options.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, options.CORSOrigins)
		if corsErr != nil {
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	authkit.MountAuthRoutes(router, serverConfig, service, logger)

	userGroup := router.Group("/api/user",
		authkit.RequireSession(service, serverConfig),
		authkit.RequireRoles(authkit.RoleUser, authkit.RoleAdmin))
	userGroup.GET("/me", web.HandleWhoAmI(logger, service))

	adminGroup := router.Group("/api/admin",
		authkit.RequireSession(service, serverConfig),
		authkit.RequireRoles(authkit.RoleAdmin))
	adminGroup.GET("/me", web.HandleWhoAmI(logger, service))

	return router, nil
}
