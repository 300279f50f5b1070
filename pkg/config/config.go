package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	LocalStore   LocalStoreConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	PayPal       PayPalConfig
	Checkout     CheckoutConfig
	Sendgrid     SendgridConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`

	CORSOrigins     []string      `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"STOREFRONT_SHUTDOWN_TIMEOUT" default:"20s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// LocalStoreConfig points at the node-local sqlite file used for recovery records.
type LocalStoreConfig struct {
	Path string `envconfig:"STOREFRONT_LOCAL_STORE_PATH" default:"storefront-recovery.db"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig secures the admin reconciliation endpoints.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	AnalyticsEnabled bool `envconfig:"STOREFRONT_FEATURE_ANALYTICS" default:"false"`
	EventsEnabled    bool `envconfig:"STOREFRONT_FEATURE_ORDER_EVENTS" default:"false"`
}

type PayPalConfig struct {
	ClientID  string `envconfig:"STOREFRONT_PAYPAL_CLIENT_ID" required:"true"`
	Secret    string `envconfig:"STOREFRONT_PAYPAL_SECRET" required:"true"`
	Env       string `envconfig:"STOREFRONT_PAYPAL_ENV" default:"sandbox"`
	Currency  string `envconfig:"STOREFRONT_PAYPAL_CURRENCY" default:"USD"`
	BrandName string `envconfig:"STOREFRONT_PAYPAL_BRAND_NAME" default:"Storefront"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return PayPalEnvSandbox
	}
	return env
}

// CurrencyCode returns the upper-cased ISO currency, defaulting to USD.
func (p PayPalConfig) CurrencyCode() string {
	code := strings.ToUpper(strings.TrimSpace(p.Currency))
	if code == "" {
		return "USD"
	}
	return code
}

type CheckoutConfig struct {
	PersistAttempts int           `envconfig:"STOREFRONT_CHECKOUT_PERSIST_ATTEMPTS" default:"3"`
	PersistBackoff  time.Duration `envconfig:"STOREFRONT_CHECKOUT_PERSIST_BACKOFF" default:"1s"`
	// PersistAttemptTimeout bounds one order store call; PersistTimeout bounds
	// the whole retry loop and must cover PersistBudget.
	PersistAttemptTimeout time.Duration `envconfig:"STOREFRONT_CHECKOUT_PERSIST_ATTEMPT_TIMEOUT" default:"10s"`
	PersistTimeout        time.Duration `envconfig:"STOREFRONT_CHECKOUT_PERSIST_TIMEOUT" default:"45s"`
	SDKLoadTimeout        time.Duration `envconfig:"STOREFRONT_CHECKOUT_SDK_LOAD_TIMEOUT" default:"5s"`
	SessionTTL            time.Duration `envconfig:"STOREFRONT_CHECKOUT_SESSION_TTL" default:"24h"`
	EmailTimeout          time.Duration `envconfig:"STOREFRONT_CHECKOUT_EMAIL_TIMEOUT" default:"5s"`
	SideTaskTimeout       time.Duration `envconfig:"STOREFRONT_CHECKOUT_SIDE_TASK_TIMEOUT" default:"10s"`
	OrderStore            string        `envconfig:"STOREFRONT_CHECKOUT_ORDER_STORE" default:"local"`
	OrderEndpointURL      string        `envconfig:"STOREFRONT_CHECKOUT_ORDER_ENDPOINT_URL"`
	OrderEndpointKey      string        `envconfig:"STOREFRONT_CHECKOUT_ORDER_ENDPOINT_KEY"`
	SupportEmail          string        `envconfig:"STOREFRONT_CHECKOUT_SUPPORT_EMAIL" default:"support@example.com"`
	ReturnURL             string        `envconfig:"STOREFRONT_CHECKOUT_RETURN_URL"`
	CancelURL             string        `envconfig:"STOREFRONT_CHECKOUT_CANCEL_URL"`
	MaxItemsPerCart       int           `envconfig:"STOREFRONT_CHECKOUT_MAX_ITEMS" default:"100"`
	AllowFieldOverride    bool          `envconfig:"STOREFRONT_CHECKOUT_ALLOW_FIELD_OVERRIDE" default:"false"`

	// OrdersAPIKey guards POST /api/v1/orders when this service is the order endpoint.
	OrdersAPIKey string `envconfig:"STOREFRONT_ORDERS_API_KEY"`

	RateLimitWindow  time.Duration `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	BeginLimitPerIP  int           `envconfig:"STOREFRONT_CHECKOUT_BEGIN_LIMIT" default:"30"`
	CouponLimitPerIP int           `envconfig:"STOREFRONT_CHECKOUT_COUPON_LIMIT" default:"10"`
}

// UsesRemoteOrderStore reports whether orders are submitted to the external endpoint.
func (c CheckoutConfig) UsesRemoteOrderStore() bool {
	return strings.EqualFold(strings.TrimSpace(c.OrderStore), OrderStoreRemote)
}

// PersistBudget is the worst case of the persist loop: every attempt runs to
// its timeout and the doubling backoff waits between them.
func (c CheckoutConfig) PersistBudget() time.Duration {
	budget := time.Duration(c.PersistAttempts) * c.PersistAttemptTimeout
	wait := c.PersistBackoff
	for i := 1; i < c.PersistAttempts; i++ {
		budget += wait
		wait *= 2
	}
	return budget
}

func (c CheckoutConfig) validate() error {
	if c.PersistAttempts <= 0 || c.PersistAttempts > maxPersistAttempts {
		return fmt.Errorf("%s must be between 1 and %d", EnvCheckoutPersistAttempts, maxPersistAttempts)
	}
	if c.PersistBackoff <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutPersistBackoff)
	}
	if c.PersistAttemptTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutAttemptTimeout)
	}
	if budget := c.PersistBudget(); c.PersistTimeout < budget {
		return fmt.Errorf("%s is %v but attempts, attempt timeout and backoff need %v", EnvCheckoutPersistTimeout, c.PersistTimeout, budget)
	}
	if c.SDKLoadTimeout <= 0 || c.SDKLoadTimeout >= 10*time.Second {
		return fmt.Errorf("%s must be between 0 and 10s", EnvCheckoutSDKLoadTimeout)
	}
	mode := strings.ToLower(strings.TrimSpace(c.OrderStore))
	switch mode {
	case OrderStoreLocal:
	case OrderStoreRemote:
		if strings.TrimSpace(c.OrderEndpointURL) == "" {
			return fmt.Errorf("%s is required when order store is remote", EnvCheckoutOrderEndpoint)
		}
	default:
		return fmt.Errorf("unknown order store %q", c.OrderStore)
	}
	return nil
}

type SendgridConfig struct {
	APIKey      string `envconfig:"STOREFRONT_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"STOREFRONT_SENDGRID_FROM_EMAIL" default:"orders@example.com"`
	FromName    string `envconfig:"STOREFRONT_SENDGRID_FROM_NAME" default:"Storefront"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-orders"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	CheckoutEventsTable string `envconfig:"STOREFRONT_BIGQUERY_CHECKOUT_TABLE" default:"checkout_events"`
	CreateTables        bool   `envconfig:"STOREFRONT_BIGQUERY_CREATE_TABLES" default:"false"`
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
