package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "ROHA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv                 = "ROHA_APP_ENV"
	EnvPort                   = "ROHA_APP_PORT"
	EnvLogLevel               = "ROHA_LOG_LEVEL"
	EnvDBDSN                  = "ROHA_DB_DSN"
	EnvDBDriver               = "ROHA_DB_DRIVER"
	EnvDBHost                 = "ROHA_DB_HOST"
	EnvDBUser                 = "ROHA_DB_USER"
	EnvDBName                 = "ROHA_DB_NAME"
	EnvUseSQLite              = "ROHA_USE_SQLITE"
	EnvRedisURL               = "ROHA_REDIS_URL"
	EnvJWTSecret              = "ROHA_JWT_SECRET"
	EnvJWTIssuer              = "ROHA_JWT_ISSUER"
	EnvJWTExpMins             = "ROHA_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "ROHA_REFRESH_TOKEN_TTL_MINUTES"
	EnvOrdersDeliveryFee      = "ROHA_ORDERS_DELIVERY_FEE"
	EnvRabbitMQURL            = "ROHA_RABBITMQ_URL"
	EnvTracingExporter        = "ROHA_TRACING_EXPORTER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
