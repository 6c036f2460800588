package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "sewasetu"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SEWASETU_DB_DSN"
	EnvDBHost = "SEWASETU_DB_HOST"
	EnvDBUser = "SEWASETU_DB_USER"
	EnvDBName = "SEWASETU_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Razorpay     RazorpayConfig
	Wallet       WalletConfig
	OrderFeed    OrderFeedConfig
	GCP          GCPConfig
	Alerts       AlertsConfig
	FeatureFlags FeatureFlagsConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SEWASETU_APP_ENV" required:"true"`
	Port         string `envconfig:"SEWASETU_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SEWASETU_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SEWASETU_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SEWASETU_DB_DSN"`
	Driver string `envconfig:"SEWASETU_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SEWASETU_DB_HOST"`
	LegacyPort     int    `envconfig:"SEWASETU_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SEWASETU_DB_USER"`
	LegacyPassword string `envconfig:"SEWASETU_DB_PASSWORD"`
	LegacyName     string `envconfig:"SEWASETU_DB_NAME"`
	LegacySSLMode  string `envconfig:"SEWASETU_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SEWASETU_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SEWASETU_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SEWASETU_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SEWASETU_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SEWASETU_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SEWASETU_REDIS_ADDR"`
	Password     string        `envconfig:"SEWASETU_REDIS_PASSWORD"`
	DB           int           `envconfig:"SEWASETU_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SEWASETU_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SEWASETU_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SEWASETU_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SEWASETU_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SEWASETU_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SEWASETU_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SEWASETU_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SEWASETU_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SEWASETU_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    uint32 `envconfig:"SEWASETU_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        uint32 `envconfig:"SEWASETU_ARGON_TIME" default:"3"`
	ArgonParallelism uint8  `envconfig:"SEWASETU_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     uint32 `envconfig:"SEWASETU_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      uint32 `envconfig:"SEWASETU_ARGON_KEY_LEN" default:"32"`
}

type RazorpayConfig struct {
	KeyID         string        `envconfig:"SEWASETU_RAZORPAY_KEY_ID"`
	KeySecret     string        `envconfig:"SEWASETU_RAZORPAY_KEY_SECRET"`
	WebhookSecret string        `envconfig:"SEWASETU_RAZORPAY_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"SEWASETU_RAZORPAY_BASE_URL" default:"https://api.razorpay.com"`
	Timeout       time.Duration `envconfig:"SEWASETU_RAZORPAY_TIMEOUT" default:"10s"`
}

type WalletConfig struct {
	// BalanceRetries bounds the compare-and-set loop in the balance accessor
	// before it gives up with a concurrency error.
	BalanceRetries      int           `envconfig:"SEWASETU_WALLET_BALANCE_RETRIES" default:"3"`
	BalanceRetryBackoff time.Duration `envconfig:"SEWASETU_WALLET_BALANCE_RETRY_BACKOFF" default:"25ms"`
	WebhookDedupeTTL    time.Duration `envconfig:"SEWASETU_WALLET_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

type OrderFeedConfig struct {
	PollInterval time.Duration `envconfig:"SEWASETU_ORDER_FEED_POLL_INTERVAL" default:"30s"`
	SnapshotSize int           `envconfig:"SEWASETU_ORDER_FEED_SNAPSHOT_SIZE" default:"200"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SEWASETU_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"SEWASETU_GOOGLE_APPLICATION_CREDENTIALS"`
}

type AlertsConfig struct {
	Topic   string `envconfig:"SEWASETU_ALERTS_TOPIC" default:"ss-ops-alerts"`
	Enabled bool   `envconfig:"SEWASETU_ALERTS_ENABLED" default:"false"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SEWASETU_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SEWASETU_AUTO_MIGRATE" default:"false"`
}

type RateLimitConfig struct {
	LoginWindow           time.Duration `envconfig:"SEWASETU_RATE_LIMIT_LOGIN_WINDOW" default:"5m"`
	LoginIPLimit          int           `envconfig:"SEWASETU_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	LoginCredentialLimit  int           `envconfig:"SEWASETU_RATE_LIMIT_LOGIN_CREDENTIAL_LIMIT" default:"5"`
	ReconcileWindow       time.Duration `envconfig:"SEWASETU_RATE_LIMIT_RECONCILE_WINDOW" default:"1m"`
	ReconcilePartnerLimit int           `envconfig:"SEWASETU_RATE_LIMIT_RECONCILE_PARTNER_LIMIT" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
