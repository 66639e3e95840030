package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quartzlab/depot/pkg/jwtx"
)

type Config struct {
	AuthMode string // "local" or "keycloak" (default: local)

	// Local auth mode
	JWTKeyMaterial string        // PEM, PEM file path, or HS256 secret
	Issuer         string        // issuer claim for locally minted tokens
	AccessTTL      time.Duration // access token lifetime (default: 1h)
	RefreshTTL     time.Duration // refresh token lifetime (default: 168h)

	// Delegated auth mode
	KeycloakBaseURL      string
	KeycloakRealm        string
	KeycloakClientID     string
	KeycloakClientSecret string // empty for public clients

	DatabaseFile string // path to SQLite database file (default: ./depot.db)

	// Blob store
	S3EndpointURL     string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool

	// Search backend
	ElasticsearchNodes    []string
	ElasticsearchUsername string
	ElasticsearchPassword string

	WebhookSecret string // HMAC secret for the storage webhook

	// Seed accounts, local mode only
	BootstrapAdminUsername string
	BootstrapAdminPassword string
	BootstrapUserUsername  string
	BootstrapUserPassword  string

	Env                  string // dev, staging, prod (default: dev)
	LogLevel             string // debug, info, warn, error (default: info)
	LogFormat            string // json, text (default: json)
	Port                 int    // HTTP server port (default: 8080)
	SecureCookies        bool   // Secure flag on the refresh cookie
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
}

func LoadConfig() Config {
	cfg := Config{
		AuthMode: getEnvOrDefault("AUTH_MODE", "local"),

		JWTKeyMaterial: os.Getenv("JWT_KEY_MATERIAL"),
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "depot"),
		AccessTTL:      getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:     getEnvDurationOrDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),

		KeycloakBaseURL:      os.Getenv("KEYCLOAK_BASE_URL"),
		KeycloakRealm:        os.Getenv("KEYCLOAK_REALM"),
		KeycloakClientID:     os.Getenv("KEYCLOAK_CLIENT_ID"),
		KeycloakClientSecret: os.Getenv("KEYCLOAK_CLIENT_SECRET"),

		DatabaseFile: getEnvOrDefault("DATABASE_FILE", "depot.db"),

		S3EndpointURL:     os.Getenv("S3_ENDPOINT_URL"),
		S3Region:          getEnvOrDefault("S3_REGION", "us-east-1"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3ForcePathStyle:  getEnvBoolOrDefault("S3_FORCE_PATH_STYLE", true),

		ElasticsearchUsername: os.Getenv("ELASTICSEARCH_USERNAME"),
		ElasticsearchPassword: os.Getenv("ELASTICSEARCH_PASSWORD"),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		BootstrapAdminUsername: getEnvOrDefault("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		BootstrapUserUsername:  os.Getenv("BOOTSTRAP_USER_USERNAME"),
		BootstrapUserPassword:  os.Getenv("BOOTSTRAP_USER_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		SecureCookies:        getEnvBoolOrDefault("SECURE_COOKIES", false),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	// Comma-separated node list, e.g. "http://es1:9200,http://es2:9200".
	nodes := getEnvOrDefault("ELASTICSEARCH_NODES", "http://localhost:9200")
	for _, n := range strings.Split(nodes, ",") {
		if n = strings.TrimSpace(n); n != "" {
			cfg.ElasticsearchNodes = append(cfg.ElasticsearchNodes, n)
		}
	}

	if cfg.JWTKeyMaterial == "" {
		cfg.JWTKeyMaterial = os.Getenv("JWT_SECRET")
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
