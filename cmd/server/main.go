package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/jewelauth/internal/authkit"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "jewelauth",
		Short:   "Account service with email/password and Google sign-in, JWT sessions, and roles",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for session tokens")
	rootCmd.Flags().String("jwt_issuer", defaultJWTIssuer, "Issuer claim stamped on session tokens")
	rootCmd.Flags().Duration("session_ttl", authkit.DefaultSessionTTL, "Session token lifetime")
	rootCmd.Flags().Duration("google_verify_timeout", authkit.DefaultGoogleVerifyTimeout, "Deadline for Google ID token verification")
	rootCmd.Flags().String("google_verifier", verifierIDToken, "Google ID token backend (idtoken or oidc)")
	rootCmd.Flags().String("database_url", "", "Database URL for accounts (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().String("database_engine", engineGORM, "Store implementation for postgres URLs (gorm or pgx)")
	rootCmd.Flags().String("redis_addr", "", "Redis address for the shared token deny-list; empty for in-memory")
	rootCmd.Flags().String("redis_password", "", "Redis password")
	rootCmd.Flags().Int("bcrypt_cost", 10, "bcrypt work factor for password digests")
	rootCmd.Flags().Bool("seed_roles", true, "Insert ROLE_USER and ROLE_ADMIN at startup when missing")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	for _, name := range []string{
		"listen_addr", "cookie_domain", "google_web_client_id", "jwt_signing_key", "jwt_issuer",
		"session_ttl", "google_verify_timeout", "google_verifier", "database_url", "database_engine",
		"redis_addr", "redis_password", "bcrypt_cost", "seed_roles", "dev_insecure_http",
		"enable_cors", "cors_allowed_origins",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	sessionCookieName = "app_session"
	defaultJWTIssuer  = "jewelauth"

	configCodeMissingGoogleClientID   = "config.missing_google_web_client_id"
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL       = "config.invalid_session_ttl"
	configCodeInvalidVerifyTimeout    = "config.invalid_google_verify_timeout"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
	configCodeUnsupportedVerifier     = "config.unsupported_google_verifier"
	configCodeUnsupportedEngine       = "config.unsupported_database_engine"
	configCodeStoreInit               = "config.store_init"
	configCodeDenyListInit            = "config.deny_list_init"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates the session and Google settings held by viper.
func LoadServerConfig() (authkit.ServerConfig, error) {
	googleWebClientID := strings.TrimSpace(viper.GetString("google_web_client_id"))
	if googleWebClientID == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingGoogleClientID, "google_web_client_id must be provided")
	}

	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	sessionTTL := authkit.DefaultSessionTTL
	if viper.IsSet("session_ttl") {
		sessionTTL = viper.GetDuration("session_ttl")
	}
	if sessionTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	verifyTimeout := authkit.DefaultGoogleVerifyTimeout
	if viper.IsSet("google_verify_timeout") {
		verifyTimeout = viper.GetDuration("google_verify_timeout")
	}
	if verifyTimeout <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidVerifyTimeout, "google_verify_timeout must be greater than zero")
	}

	issuer := strings.TrimSpace(viper.GetString("jwt_issuer"))
	if issuer == "" {
		issuer = defaultJWTIssuer
	}

	return authkit.ServerConfig{
		GoogleWebClientID:   googleWebClientID,
		GoogleVerifyTimeout: verifyTimeout,
		AppJWTSigningKey:    []byte(jwtSigningKey),
		AppJWTIssuer:        issuer,
		CookieDomain:        viper.GetString("cookie_domain"),
		SessionCookieName:   sessionCookieName,
		SessionTTL:          sessionTTL,
		SameSiteMode:        http.SameSiteStrictMode,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	options := loadRuntimeOptions()
	serverConfig.AllowInsecureHTTP = options.DevInsecureHTTP
	if options.EnableCORS {
		serverConfig.SameSiteMode = http.SameSiteNoneMode
	}

	app, buildErr := buildApplication(commandContext, serverConfig, options, logger)
	if buildErr != nil {
		return buildErr
	}
	defer app.Close()

	router, routerErr := buildRouter(serverConfig, options, app.service, logger)
	if routerErr != nil {
		return routerErr
	}

	server := &http.Server{
		Addr:              options.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", options.ListenAddr))
	serveErr := serveHTTP(server)
	logger.Info("auth counters", zap.Any("counts", app.metrics.Snapshot()))
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", serveErr)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
