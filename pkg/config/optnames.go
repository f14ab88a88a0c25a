package config

const (
	// these are only read from the environment, the way the bot has always
	// been deployed
	EnvPort             = "PORT"
	EnvMultiTokenPrefix = "MULTI_TOKEN"

	// Normal options with CLI arguments
	OptAPIHash        = "api-hash"
	OptAPIID          = "api-id"
	OptBackend        = "backend"
	OptBaseURL        = "base-url"
	OptBotToken       = "bot-token"
	OptBucketURL      = "bucket-url"
	OptChunkSize      = "chunk-size"
	OptConfigFile     = "config"
	OptConnections    = "connections"
	OptConnTimeout    = "connect-timeout"
	OptDatabaseURL    = "database-url"
	OptLinkCacheSize  = "link-cache-size"
	OptListenAddress  = "listen-address"
	OptLoggingLevel   = "log-level"
	OptMultiToken     = "multi-token"
	OptOriginToken    = "origin-token"
	OptOriginURL      = "origin-url"
	OptPIDFile        = "pid-file"
	OptResolve        = "resolve"
	OptRetries        = "retries"
	OptStorageChannel = "storage-channel"
	OptVerbose        = "verbose"
)

const (
	BackendTelegram = "telegram"
	BackendBlob     = "blob"
	BackendHTTP     = "http"
)
