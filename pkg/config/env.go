package config

const EnvPrefix = "LUZIMARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:luzimarket.db?_foreign_keys=on"
)

const (
	EnvAppEnv = "LUZIMARKET_APP_ENV"
	EnvPort   = "LUZIMARKET_APP_PORT"

	EnvDBDSN      = "LUZIMARKET_DB_DSN"
	EnvDBDriver   = "LUZIMARKET_DB_DRIVER"
	EnvDBHost     = "LUZIMARKET_DB_HOST"
	EnvDBUser     = "LUZIMARKET_DB_USER"
	EnvDBPassword = "LUZIMARKET_DB_PASSWORD"
	EnvDBName     = "LUZIMARKET_DB_NAME"
	EnvUseSQLite  = "LUZIMARKET_USE_SQLITE"

	EnvRedisURL = "LUZIMARKET_REDIS_URL"

	EnvJWTSecret  = "LUZIMARKET_JWT_SECRET"
	EnvJWTIssuer  = "LUZIMARKET_JWT_ISSUER"
	EnvJWTExpMins = "LUZIMARKET_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID      = "LUZIMARKET_GCP_PROJECT_ID"
	EnvPubSubOrdersSub   = "LUZIMARKET_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubLedgerTopic = "LUZIMARKET_PUBSUB_LEDGER_TOPIC"
	EnvPubSubAnalytics   = "LUZIMARKET_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvBigQueryDataset = "LUZIMARKET_BIGQUERY_DATASET"

	EnvLedgerRetryMaxAttempts = "LUZIMARKET_LEDGER_RETRY_MAX_ATTEMPTS"

	EnvPayoutMinThreshold    = "LUZIMARKET_PAYOUT_MIN_THRESHOLD_CENTS"
	EnvPayoutMinResidual     = "LUZIMARKET_PAYOUT_MIN_RESIDUAL_CENTS"
	EnvPayoutDefaultFraction = "LUZIMARKET_PAYOUT_DEFAULT_FRACTION"

	EnvWebhookPayoutSecret = "LUZIMARKET_WEBHOOK_PAYOUT_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
