package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	PayPalEnvSandbox = "sandbox"
	PayPalEnvLive    = "live"

	OrderStoreLocal  = "local"
	OrderStoreRemote = "remote"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvDBPass    = "STOREFRONT_DB_PASSWORD"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvPayPalClientID = "STOREFRONT_PAYPAL_CLIENT_ID"
	EnvPayPalSecret   = "STOREFRONT_PAYPAL_SECRET"
	EnvPayPalEnv      = "STOREFRONT_PAYPAL_ENV"

	EnvCheckoutPersistAttempts = "STOREFRONT_CHECKOUT_PERSIST_ATTEMPTS"
	EnvCheckoutPersistBackoff  = "STOREFRONT_CHECKOUT_PERSIST_BACKOFF"
	EnvCheckoutSDKLoadTimeout  = "STOREFRONT_CHECKOUT_SDK_LOAD_TIMEOUT"
	EnvCheckoutPersistTimeout  = "STOREFRONT_CHECKOUT_PERSIST_TIMEOUT"
	EnvCheckoutAttemptTimeout  = "STOREFRONT_CHECKOUT_PERSIST_ATTEMPT_TIMEOUT"
	EnvCheckoutOrderStore      = "STOREFRONT_CHECKOUT_ORDER_STORE"
	EnvCheckoutOrderEndpoint   = "STOREFRONT_CHECKOUT_ORDER_ENDPOINT_URL"
)

// maxPersistAttempts caps the retry budget so the worst-case persist time
// stays within a checkout request.
const maxPersistAttempts = 10

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
