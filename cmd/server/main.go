// Command server starts the ClipHive API HTTP service.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cliphive/internal/api"
	"cliphive/internal/auth"
	"cliphive/internal/observability/logging"
	"cliphive/internal/observability/metrics"
	"cliphive/internal/server"
	"cliphive/internal/storage"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to the JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	migrate := flag.Bool("migrate", false, "apply the Postgres schema before serving")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	accessTTL := flag.Duration("access-ttl", 0, "access token lifetime")
	refreshTTL := flag.Duration("refresh-ttl", 0, "refresh token lifetime")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed for credentialed requests")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used for media URLs")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix for uploads")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	objectTimeout := flag.Duration("object-timeout", 0, "timeout for object storage requests")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPHIVE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPHIVE_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("CLIPHIVE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("CLIPHIVE_ADDR"))

	accessSecret, refreshSecret, generated, err := resolveTokenSecrets(
		os.Getenv("CLIPHIVE_ACCESS_SECRET"),
		os.Getenv("CLIPHIVE_REFRESH_SECRET"),
		serverMode,
	)
	if err != nil {
		logger.Error("failed to resolve token secrets", "error", err)
		os.Exit(1)
	}
	if generated {
		logger.Warn("generated ephemeral token secrets; sessions will not survive a restart",
			"hint", "set CLIPHIVE_ACCESS_SECRET and CLIPHIVE_REFRESH_SECRET")
	}

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     resolveDuration(*accessTTL, "CLIPHIVE_ACCESS_TTL", 0),
		RefreshTTL:    resolveDuration(*refreshTTL, "CLIPHIVE_REFRESH_TTL", 0),
	})
	if err != nil {
		logger.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}

	var options []storage.Option
	objectCfg := storage.ObjectStorageConfig{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("CLIPHIVE_OBJECT_ENDPOINT")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("CLIPHIVE_OBJECT_PUBLIC_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("CLIPHIVE_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("CLIPHIVE_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("CLIPHIVE_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("CLIPHIVE_OBJECT_BUCKET")),
		Prefix:         strings.TrimSpace(firstNonEmpty(*objectPrefix, os.Getenv("CLIPHIVE_OBJECT_PREFIX"))),
		UseSSL:         resolveBool(*objectUseSSL, "CLIPHIVE_OBJECT_USE_SSL"),
		RequestTimeout: resolveDuration(*objectTimeout, "CLIPHIVE_OBJECT_TIMEOUT", 0),
	}
	if objectCfg.Endpoint != "" || objectCfg.Bucket != "" {
		options = append(options, storage.WithObjectStorage(objectCfg))
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver := resolveStorageDriver(*storageDriver, os.Getenv("CLIPHIVE_STORAGE_DRIVER"), postgresDefaultDSN)

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("CLIPHIVE_DATA"))
		store, err = storage.NewStorage(dataFile, options...)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		if resolveBool(*migrate, "CLIPHIVE_MIGRATE") {
			migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = storage.ApplySchema(migrateCtx, postgresDefaultDSN)
			cancel()
			if err != nil {
				logger.Error("failed to apply schema", "error", err)
				os.Exit(1)
			}
			logger.Info("postgres schema applied")
		}
		pgOptions := append([]storage.Option(nil), options...)
		maxConns := resolveInt(*postgresMaxConns, "CLIPHIVE_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "CLIPHIVE_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "CLIPHIVE_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "CLIPHIVE_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "CLIPHIVE_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "CLIPHIVE_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("CLIPHIVE_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessions := auth.NewSessionManager(store, issuer)
	handler := api.NewHandler(store, sessions)
	handler.Cookies = api.CookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: resolveCookieSecureMode(serverMode),
	}

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "CLIPHIVE_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "CLIPHIVE_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "CLIPHIVE_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "CLIPHIVE_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("CLIPHIVE_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("CLIPHIVE_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "CLIPHIVE_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("CLIPHIVE_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("CLIPHIVE_TLS_KEY")),
		},
		RateLimit: rateCfg,
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("CLIPHIVE_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ClipHive API listening", "addr", listenAddr, "mode", serverMode, "storage", driver)
	logger.Info("metrics endpoint available", "path", "/metrics")

	runErr := srv.Run(ctx)
	stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(closeCtx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("server error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func resolveTokenSecrets(access, refresh, mode string) ([]byte, []byte, bool, error) {
	access = strings.TrimSpace(access)
	refresh = strings.TrimSpace(refresh)
	if access != "" && refresh != "" {
		return []byte(access), []byte(refresh), false, nil
	}
	if mode == "production" {
		missing := make([]string, 0, 2)
		if access == "" {
			missing = append(missing, "CLIPHIVE_ACCESS_SECRET")
		}
		if refresh == "" {
			missing = append(missing, "CLIPHIVE_REFRESH_SECRET")
		}
		return nil, nil, false, fmt.Errorf("production mode requires %s", strings.Join(missing, " and "))
	}
	if access == "" {
		generatedSecret, err := randomSecret()
		if err != nil {
			return nil, nil, false, err
		}
		access = generatedSecret
	}
	if refresh == "" {
		generatedSecret, err := randomSecret()
		if err != nil {
			return nil, nil, false, err
		}
		refresh = generatedSecret
	}
	return []byte(access), []byte(refresh), true, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func resolveCookieSecureMode(mode string) api.CookieSecureMode {
	if strings.ToLower(strings.TrimSpace(mode)) == "production" {
		return api.CookieSecureAlways
	}
	return api.CookieSecureAuto
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

// resolveStorageDriver prefers an explicit driver; a configured Postgres DSN
// implies postgres, otherwise the JSON store is the default.
func resolveStorageDriver(flagValue, envValue, postgresDSN string) string {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres"
	}
	return "json"
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

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("CLIPHIVE_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
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
