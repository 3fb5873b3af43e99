// Command server starts the StreamTube API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"streamtube/internal/api"
	"streamtube/internal/auth"
	"streamtube/internal/media"
	"streamtube/internal/observability/logging"
	"streamtube/internal/observability/metrics"
	"streamtube/internal/server"
	"streamtube/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	accessSecret := flag.String("access-secret", "", "signing secret for access tokens")
	refreshSecret := flag.String("refresh-secret", "", "signing secret for refresh tokens")
	accessTTL := flag.Duration("access-ttl", 0, "lifetime of issued access tokens")
	refreshTTL := flag.Duration("refresh-ttl", 0, "lifetime of issued refresh tokens")
	tokenStoreDriver := flag.String("token-store", "", "refresh token store driver (memory or postgres)")
	tokenPostgresDSN := flag.String("token-postgres-dsn", "", "Postgres DSN for the refresh token store")
	tokenQueryTimeout := flag.Duration("token-query-timeout", 0, "timeout for refresh token store queries")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired session sweeps")
	cookieSecure := flag.Bool("cookie-secure", false, "always mark auth cookies Secure")
	cookieSameSite := flag.String("cookie-samesite", "", "SameSite attribute for auth cookies (strict or lax)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API with credentials")
	mediaEndpoint := flag.String("media-endpoint", "", "object storage endpoint for uploaded assets (e.g. http://127.0.0.1:9000)")
	mediaPublicEndpoint := flag.String("media-public-endpoint", "", "public endpoint used for asset playback URLs")
	mediaBucket := flag.String("media-bucket", "", "object storage bucket for uploaded assets")
	mediaRegion := flag.String("media-region", "", "object storage region")
	mediaAccessKey := flag.String("media-access-key", "", "object storage access key")
	mediaSecretKey := flag.String("media-secret-key", "", "object storage secret key")
	mediaPrefix := flag.String("media-prefix", "", "object storage key prefix for uploaded assets")
	mediaUseSSL := flag.Bool("media-use-ssl", false, "enable TLS for object storage requests")
	mediaTimeout := flag.Duration("media-timeout", 0, "timeout for object storage requests")
	processorWorkers := flag.Int("processor-workers", 0, "number of video processing workers")
	processorQueue := flag.Int("processor-queue", 0, "video processing queue capacity")
	processorTimeout := flag.Duration("processor-timeout", 0, "timeout for a single video processing job")
	ffprobePath := flag.String("ffprobe-path", "", "path to the ffprobe binary used to inspect uploads")
	flag.Parse()

	logger := logging.New(logging.Config{Level: firstNonEmpty(*logLevel, os.Getenv("STREAMTUBE_LOG_LEVEL"))})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("STREAMTUBE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("STREAMTUBE_ADDR"))

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("STREAMTUBE_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("STREAMTUBE_TLS_KEY"))

	secrets, err := resolveTokenSecrets(
		serverMode,
		firstNonEmpty(*accessSecret, os.Getenv("STREAMTUBE_ACCESS_SECRET")),
		firstNonEmpty(*refreshSecret, os.Getenv("STREAMTUBE_REFRESH_SECRET")),
	)
	if err != nil {
		logger.Error("failed to resolve token secrets", "error", err)
		os.Exit(1)
	}
	if secrets.generated {
		logger.Warn("no token secrets configured, using development defaults")
	}

	accessCodec, err := auth.NewTokenCodec(
		[]byte(secrets.access),
		resolveDuration(*accessTTL, "STREAMTUBE_ACCESS_TTL", 15*time.Minute),
		auth.WithIssuer("streamtube"),
	)
	if err != nil {
		logger.Error("failed to build access token codec", "error", err)
		os.Exit(1)
	}
	refreshCodec, err := auth.NewTokenCodec(
		[]byte(secrets.refresh),
		resolveDuration(*refreshTTL, "STREAMTUBE_REFRESH_TTL", 7*24*time.Hour),
		auth.WithIssuer("streamtube"),
	)
	if err != nil {
		logger.Error("failed to build refresh token codec", "error", err)
		os.Exit(1)
	}

	tokenStoreCfg, err := resolveTokenStoreConfig(
		*tokenStoreDriver,
		os.Getenv("STREAMTUBE_TOKEN_STORE"),
		*tokenPostgresDSN,
		os.Getenv("STREAMTUBE_TOKEN_POSTGRES_DSN"),
	)
	if err != nil {
		logger.Error("failed to resolve token store", "error", err)
		os.Exit(1)
	}

	var (
		tokenStore  auth.TokenStore
		tokenCloser func(context.Context) error
	)
	switch tokenStoreCfg.Driver {
	case "memory":
		tokenStore = auth.NewMemoryTokenStore()
	case "postgres":
		var opts []auth.PostgresTokenStoreOption
		if timeout := resolveDuration(*tokenQueryTimeout, "STREAMTUBE_TOKEN_QUERY_TIMEOUT", 0); timeout > 0 {
			opts = append(opts, auth.WithQueryTimeout(timeout))
		}
		pgStore, err := auth.NewPostgresTokenStore(tokenStoreCfg.DSN, opts...)
		if err != nil {
			logger.Error("failed to open token store", "error", err)
			os.Exit(1)
		}
		tokenStore = pgStore
		tokenCloser = pgStore.Close
	default:
		logger.Error("unsupported token store driver", "driver", tokenStoreCfg.Driver)
		os.Exit(1)
	}

	sessions, err := auth.NewSessionManager(accessCodec, refreshCodec, auth.WithStore(tokenStore))
	if err != nil {
		logger.Error("failed to build session manager", "error", err)
		os.Exit(1)
	}

	dataFile := resolveDataPath(*dataPath, os.Getenv("STREAMTUBE_DATA"))
	store, err := storage.NewJSONRepository(dataFile)
	if err != nil {
		logger.Error("failed to open datastore", "error", err, "path", dataFile)
		os.Exit(1)
	}

	mediaCfg := media.Config{
		Endpoint:       firstNonEmpty(*mediaEndpoint, os.Getenv("STREAMTUBE_MEDIA_ENDPOINT")),
		PublicEndpoint: firstNonEmpty(*mediaPublicEndpoint, os.Getenv("STREAMTUBE_MEDIA_PUBLIC_ENDPOINT")),
		Bucket:         firstNonEmpty(*mediaBucket, os.Getenv("STREAMTUBE_MEDIA_BUCKET")),
		Region:         firstNonEmpty(*mediaRegion, os.Getenv("STREAMTUBE_MEDIA_REGION")),
		AccessKey:      firstNonEmpty(*mediaAccessKey, os.Getenv("STREAMTUBE_MEDIA_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*mediaSecretKey, os.Getenv("STREAMTUBE_MEDIA_SECRET_KEY")),
		Prefix:         firstNonEmpty(*mediaPrefix, os.Getenv("STREAMTUBE_MEDIA_PREFIX")),
		UseSSL:         resolveBool(*mediaUseSSL, "STREAMTUBE_MEDIA_USE_SSL"),
		RequestTimeout: resolveDuration(*mediaTimeout, "STREAMTUBE_MEDIA_TIMEOUT", 0),
	}
	mediaClient := media.NewClient(mediaCfg)
	if mediaClient.Enabled() {
		logger.Info("media uploads enabled", "bucket", mediaCfg.Bucket)
	} else {
		logger.Warn("media uploads disabled, no object storage configured")
	}

	var prober api.MediaProber = api.NoopProber{}
	if path := firstNonEmpty(*ffprobePath, os.Getenv("STREAMTUBE_FFPROBE")); path != "" {
		prober = newFFProbeProber(path)
		logger.Info("using ffprobe for upload inspection", "path", path)
	}

	processor := api.NewVideoProcessor(api.VideoProcessorConfig{
		Store:     store,
		Prober:    prober,
		Workers:   resolveInt(*processorWorkers, "STREAMTUBE_PROCESSOR_WORKERS"),
		QueueSize: resolveInt(*processorQueue, "STREAMTUBE_PROCESSOR_QUEUE"),
		Timeout:   resolveDuration(*processorTimeout, "STREAMTUBE_PROCESSOR_TIMEOUT", 0),
		Logger:    logging.WithComponent(logger, "processor"),
	})
	processor.Start()

	cookiePolicy, err := resolveCookiePolicy(
		resolveBool(*cookieSecure, "STREAMTUBE_COOKIE_SECURE"),
		firstNonEmpty(*cookieSameSite, os.Getenv("STREAMTUBE_COOKIE_SAMESITE")),
	)
	if err != nil {
		logger.Error("invalid cookie policy", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, sessions)
	handler.Media = mediaClient
	handler.Processor = processor
	handler.AuthCookiePolicy = cookiePolicy
	handler.Logger = logging.WithComponent(logger, "api")

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	purgeInterval := resolveDuration(*sessionPurgeInterval, "STREAMTUBE_SESSION_PURGE_INTERVAL", 15*time.Minute)
	sessionPurgeStop := startSessionPurgeWorker(workerCtx, logging.WithComponent(logger, "session-purger"), sessions, purgeInterval)
	defer sessionPurgeStop()

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "STREAMTUBE_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "STREAMTUBE_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "STREAMTUBE_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "STREAMTUBE_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("STREAMTUBE_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("STREAMTUBE_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "STREAMTUBE_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: tlsCertPath,
			KeyFile:  tlsKeyPath,
		},
		RateLimit: rateCfg,
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("STREAMTUBE_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("StreamTube API listening", "addr", listenAddr, "mode", serverMode)
		if tlsCertPath != "" && tlsKeyPath != "" {
			logger.Info("TLS enabled", "cert_file", tlsCertPath)
		}
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sessionPurgeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if err := processor.Shutdown(ctx); err != nil {
		logger.Warn("failed to stop video processor", "error", err)
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	} else if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if tokenCloser != nil {
		if err := tokenCloser(ctx); err != nil {
			logger.Warn("failed to close token store", "error", err)
		}
	}

	logger.Info("server stopped")
}

type tokenSecrets struct {
	access    string
	refresh   string
	generated bool
}

func resolveTokenSecrets(mode, access, refresh string) (tokenSecrets, error) {
	access = strings.TrimSpace(access)
	refresh = strings.TrimSpace(refresh)
	if access != "" && refresh != "" {
		if access == refresh {
			return tokenSecrets{}, fmt.Errorf("access and refresh secrets must differ")
		}
		return tokenSecrets{access: access, refresh: refresh}, nil
	}
	if mode == "production" {
		return tokenSecrets{}, fmt.Errorf("production mode requires STREAMTUBE_ACCESS_SECRET and STREAMTUBE_REFRESH_SECRET to be set")
	}
	if access != "" || refresh != "" {
		return tokenSecrets{}, fmt.Errorf("access and refresh secrets must be configured together")
	}
	return tokenSecrets{
		access:    "streamtube-dev-access",
		refresh:   "streamtube-dev-refresh",
		generated: true,
	}, nil
}

type tokenStoreConfig struct {
	Driver string
	DSN    string
}

func resolveTokenStoreConfig(flagDriver, envDriver, flagDSN, envDSN string) (tokenStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(flagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(envDriver))
	}

	dsn := strings.TrimSpace(firstNonEmpty(flagDSN, envDSN, os.Getenv("DATABASE_URL")))
	if driver == "" {
		if dsn != "" {
			driver = "postgres"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "memory":
		return tokenStoreConfig{Driver: "memory"}, nil
	case "postgres":
		if dsn == "" {
			return tokenStoreConfig{}, fmt.Errorf("postgres token store selected without DSN")
		}
		return tokenStoreConfig{Driver: "postgres", DSN: dsn}, nil
	default:
		return tokenStoreConfig{}, fmt.Errorf("unsupported token store driver %q", driver)
	}
}

func resolveCookiePolicy(secureAlways bool, sameSite string) (api.AuthCookiePolicy, error) {
	policy := api.DefaultAuthCookiePolicy()
	if secureAlways {
		policy.SecureMode = api.AuthCookieSecureAlways
	}
	switch strings.ToLower(strings.TrimSpace(sameSite)) {
	case "", "strict":
		policy.SameSite = http.SameSiteStrictMode
	case "lax":
		policy.SameSite = http.SameSiteLaxMode
	default:
		return api.AuthCookiePolicy{}, fmt.Errorf("unsupported cookie SameSite mode %q", sameSite)
	}
	return policy, nil
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
