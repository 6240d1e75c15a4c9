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
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	RateLimit     RateLimitConfig
	Idempotency   IdempotencyConfig
	FeatureFlags  FeatureFlagsConfig
	CORS          CORSConfig
	Orders        OrdersConfig
	Realtime      RealtimeConfig
	Outbox        OutboxConfig
	RabbitMQ      RabbitMQConfig
	Tracing       TracingConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ROHA_APP_ENV" required:"true"`
	Port         string `envconfig:"ROHA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ROHA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ROHA_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ROHA_LOG_FORMAT"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"ROHA_SERVICE_KIND" default:"api"`
	// MetricsAddr is where the workers serve /metrics; empty disables it.
	// The api exposes metrics on its own router.
	MetricsAddr string `envconfig:"ROHA_METRICS_ADDR"`
}

type DBConfig struct {
	DSN        string `envconfig:"ROHA_DB_DSN"`
	Driver     string `envconfig:"ROHA_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"ROHA_SQLITE_PATH" default:"roha.db"`

	LegacyHost     string `envconfig:"ROHA_DB_HOST"`
	LegacyPort     int    `envconfig:"ROHA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ROHA_DB_USER"`
	LegacyPassword string `envconfig:"ROHA_DB_PASSWORD"`
	LegacyName     string `envconfig:"ROHA_DB_NAME"`
	LegacySSLMode  string `envconfig:"ROHA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ROHA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROHA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ROHA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ROHA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ROHA_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"ROHA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ROHA_REDIS_ADDR"`
	Password     string        `envconfig:"ROHA_REDIS_PASSWORD"`
	DB           int           `envconfig:"ROHA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ROHA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ROHA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ROHA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ROHA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ROHA_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"ROHA_REDIS_KEY_PREFIX" default:"roha"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"ROHA_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"ROHA_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"ROHA_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"ROHA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"ROHA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"ROHA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"ROHA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"ROHA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"ROHA_ARGON_KEY_LEN" default:"32"`
	MinLength        int `envconfig:"ROHA_PASSWORD_MIN_LENGTH" default:"6"`
}

// RateLimitConfig holds fixed-window limits. A zero limit disables that rule.
type RateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"ROHA_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"ROHA_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"ROHA_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"ROHA_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"ROHA_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"ROHA_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	OrderWindow        time.Duration `envconfig:"ROHA_RATE_LIMIT_ORDER_WINDOW" default:"10m"`
	OrderActorLimit    int           `envconfig:"ROHA_RATE_LIMIT_ORDER_ACTOR_LIMIT" default:"10"`
}

// IdempotencyConfig sets how long replayable responses are kept per route
// class. InFlightTTL bounds the lock held while the first request runs.
type IdempotencyConfig struct {
	TTL         time.Duration `envconfig:"ROHA_IDEMPOTENCY_TTL" default:"24h"`
	OrderTTL    time.Duration `envconfig:"ROHA_IDEMPOTENCY_ORDER_TTL" default:"168h"`
	InFlightTTL time.Duration `envconfig:"ROHA_IDEMPOTENCY_IN_FLIGHT_TTL" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ROHA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ROHA_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"ROHA_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
}

type OrdersConfig struct {
	Currency              string `envconfig:"ROHA_ORDERS_CURRENCY" default:"ETB"`
	DeliveryFee           string `envconfig:"ROHA_ORDERS_DELIVERY_FEE" default:"50"`
	FreeDeliveryThreshold string `envconfig:"ROHA_ORDERS_FREE_DELIVERY_THRESHOLD" default:"500"`
	MaxLineItems          int    `envconfig:"ROHA_ORDERS_MAX_LINE_ITEMS" default:"50"`
}

// DeliveryFeeAmount parses the configured flat delivery fee.
func (o OrdersConfig) DeliveryFeeAmount() (decimal.Decimal, error) {
	return parseAmount("delivery fee", o.DeliveryFee)
}

// FreeDeliveryThresholdAmount parses the subtotal above which delivery is free.
func (o OrdersConfig) FreeDeliveryThresholdAmount() (decimal.Decimal, error) {
	return parseAmount("free delivery threshold", o.FreeDeliveryThreshold)
}

type RealtimeConfig struct {
	ChannelPrefix     string        `envconfig:"ROHA_REALTIME_CHANNEL_PREFIX" default:"roha:live"`
	HeartbeatInterval time.Duration `envconfig:"ROHA_REALTIME_HEARTBEAT" default:"25s"`
	NotificationLimit int           `envconfig:"ROHA_REALTIME_NOTIFICATION_LIMIT" default:"20"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ROHA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ROHA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ROHA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type RabbitMQConfig struct {
	URL      string `envconfig:"ROHA_RABBITMQ_URL"`
	Exchange string `envconfig:"ROHA_RABBITMQ_NOTIFICATIONS_EXCHANGE" default:"notifications_fanout"`
	Queue    string `envconfig:"ROHA_RABBITMQ_NOTIFICATIONS_QUEUE" default:"notifications_queue"`
	Prefetch int    `envconfig:"ROHA_RABBITMQ_PREFETCH" default:"10"`

	// IdempotencyTTL bounds how long a relayed event id is remembered.
	IdempotencyTTL time.Duration `envconfig:"ROHA_RABBITMQ_IDEMPOTENCY_TTL" default:"168h"`
	// ClaimLease bounds how long one replica may hold an event before another retries it.
	ClaimLease time.Duration `envconfig:"ROHA_RABBITMQ_CLAIM_LEASE" default:"2m"`
}

// Enabled reports whether a broker URL was supplied.
func (r RabbitMQConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type TracingConfig struct {
	Exporter    string  `envconfig:"ROHA_TRACING_EXPORTER" default:"none"`
	Endpoint    string  `envconfig:"ROHA_TRACING_ENDPOINT" default:"localhost:4317"`
	SampleRatio float64 `envconfig:"ROHA_TRACING_SAMPLE_RATIO" default:"1"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"ROHA_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays       int           `envconfig:"ROHA_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"ROHA_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
	StalePendingAfter         time.Duration `envconfig:"ROHA_CRON_STALE_PENDING_AFTER" default:"30m"`
	JobTimeout                time.Duration `envconfig:"ROHA_CRON_JOB_TIMEOUT" default:"10m"`
	LockTTL                   time.Duration `envconfig:"ROHA_CRON_LOCK_TTL" default:"2h"`
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", name)
	}
	return value, nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
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
