package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Ledger       LedgerConfig
	Payout       PayoutConfig
	Webhook      WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Payout.parse(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"LUZIMARKET_APP_ENV" required:"true"`
	Port         string   `envconfig:"LUZIMARKET_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"LUZIMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"LUZIMARKET_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"LUZIMARKET_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"LUZIMARKET_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LUZIMARKET_SERVICE_KIND" default:"api"`
	// MetricsAddr is where workers serve /metrics; empty disables it. The api
	// serves metrics on its own router.
	MetricsAddr string `envconfig:"LUZIMARKET_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"LUZIMARKET_DB_DSN"`
	Driver string `envconfig:"LUZIMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LUZIMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"LUZIMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LUZIMARKET_DB_USER"`
	LegacyPassword string `envconfig:"LUZIMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"LUZIMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"LUZIMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LUZIMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LUZIMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LUZIMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LUZIMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LUZIMARKET_DB_SLOW_QUERY" default:"250ms"`
}

// IsSQLite reports whether the configured driver targets SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LUZIMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LUZIMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"LUZIMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"LUZIMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LUZIMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LUZIMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LUZIMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LUZIMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LUZIMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LUZIMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LUZIMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LUZIMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LUZIMARKET_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LUZIMARKET_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"LUZIMARKET_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LUZIMARKET_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"LUZIMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LUZIMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersSubscription string `envconfig:"LUZIMARKET_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	LedgerTopic        string `envconfig:"LUZIMARKET_PUBSUB_LEDGER_TOPIC" default:"luzimarket-ledger-events"`
	MaxOutstanding     int    `envconfig:"LUZIMARKET_PUBSUB_MAX_OUTSTANDING" default:"100"`
	ReceiveGoroutines  int    `envconfig:"LUZIMARKET_PUBSUB_RECEIVE_GOROUTINES" default:"4"`
	// AnalyticsSubscription is attached to LedgerTopic and feeds BigQuery.
	AnalyticsSubscription string `envconfig:"LUZIMARKET_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"LUZIMARKET_BIGQUERY_DATASET" default:"luzimarket_ledger"`
	LedgerEventsTable string `envconfig:"LUZIMARKET_BIGQUERY_LEDGER_EVENTS_TABLE" default:"ledger_events"`
}

type OutboxConfig struct {
	BatchSize        int `envconfig:"LUZIMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS   int `envconfig:"LUZIMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts      int `envconfig:"LUZIMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays    int `envconfig:"LUZIMARKET_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int `envconfig:"LUZIMARKET_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

// LedgerConfig controls contention handling around vendor balance updates.
type LedgerConfig struct {
	DefaultCurrency   string        `envconfig:"LUZIMARKET_LEDGER_DEFAULT_CURRENCY" default:"MXN"`
	RetryMaxAttempts  int           `envconfig:"LUZIMARKET_LEDGER_RETRY_MAX_ATTEMPTS" default:"5"`
	RetryBaseBackoff  time.Duration `envconfig:"LUZIMARKET_LEDGER_RETRY_BASE_BACKOFF" default:"20ms"`
	RetryMaxBackoff   time.Duration `envconfig:"LUZIMARKET_LEDGER_RETRY_MAX_BACKOFF" default:"500ms"`
	DefaultCommission string        `envconfig:"LUZIMARKET_LEDGER_DEFAULT_COMMISSION_PERCENT" default:"15"`
}

type PayoutConfig struct {
	MinThresholdCents  int64         `envconfig:"LUZIMARKET_PAYOUT_MIN_THRESHOLD_CENTS" default:"500"`
	MinResidualCents   int64         `envconfig:"LUZIMARKET_PAYOUT_MIN_RESIDUAL_CENTS" default:"100"`
	DefaultFractionRaw string        `envconfig:"LUZIMARKET_PAYOUT_DEFAULT_FRACTION" default:"0.9"`
	RunInterval        time.Duration `envconfig:"LUZIMARKET_PAYOUT_RUN_INTERVAL" default:"24h"`
	BatchLimit         int           `envconfig:"LUZIMARKET_PAYOUT_BATCH_LIMIT" default:"200"`

	// DefaultFraction is DefaultFractionRaw parsed by Load.
	DefaultFraction decimal.Decimal `ignored:"true"`
}

func (p *PayoutConfig) parse() error {
	fraction, err := decimal.NewFromString(strings.TrimSpace(p.DefaultFractionRaw))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvPayoutDefaultFraction, err)
	}
	if !fraction.IsPositive() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in (0, 1], got %s", EnvPayoutDefaultFraction, fraction)
	}
	p.DefaultFraction = fraction
	if p.MinThresholdCents < 0 || p.MinResidualCents < 0 {
		return fmt.Errorf("payout thresholds must be non-negative")
	}
	return nil
}

type WebhookConfig struct {
	PayoutSigningSecret string `envconfig:"LUZIMARKET_WEBHOOK_PAYOUT_SECRET"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
