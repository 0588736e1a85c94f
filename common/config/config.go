package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// All configuration is environment driven. A local .env file is honoured when
// present so that development setups do not need to export variables manually.
// The blank var runs before the config vars below are initialised.
var _ = godotenv.Load()

var (
	// Listen is the address the HTTP server binds to.
	Listen = env("LISTEN", ":8045")

	// UpstreamBaseURLs are tried in order for every upstream call; the first
	// entry is production, later entries are sandbox fallbacks.
	UpstreamBaseURLs = strings.Split(env("UPSTREAM_BASE_URLS",
		"https://cloudcode-pa.googleapis.com/v1internal,"+
			"https://daily-cloudcode-pa.sandbox.googleapis.com/v1internal"), ",")

	// AccountsFile points to the JSON credential pool consumed by the token
	// manager.
	AccountsFile = env("ACCOUNTS_FILE", "accounts.json")

	// ModelMappingFile optionally points to a JSON object of
	// client-model → upstream-model overrides.
	ModelMappingFile = env("MODEL_MAPPING_FILE", "")

	// MaxRetryAttempts caps the per-request account rotation loop.
	MaxRetryAttempts = envInt("MAX_RETRY_ATTEMPTS", 3)

	// StreamPeekTimeout bounds how long we wait for each chunk while peeking
	// at the head of an upstream stream.
	StreamPeekTimeout = time.Duration(envInt("STREAM_PEEK_TIMEOUT_SECONDS", 60)) * time.Second

	// RelayTimeout is the outbound HTTP client timeout in seconds; zero means
	// no explicit timeout beyond transport defaults.
	RelayTimeout = envInt("RELAY_TIMEOUT", 0)

	// RateLimitCooldown is the default account cooldown applied when upstream
	// rate limits without a Retry-After header.
	RateLimitCooldown = time.Duration(envInt("RATE_LIMIT_COOLDOWN_SECONDS", 60)) * time.Second

	// GeminiSafetySetting is the harm threshold applied to text requests.
	GeminiSafetySetting = env("GEMINI_SAFETY_SETTING", "BLOCK_NONE")

	// DefaultMaxTokens is applied when the client omits max_tokens.
	DefaultMaxTokens = envInt("DEFAULT_MAX_TOKENS", 8192)

	// DebugEnabled turns on payload preview logging.
	DebugEnabled = strings.ToLower(env("DEBUG", "false")) == "true"

	// LogLevel sets the process logger level.
	LogLevel = env("LOG_LEVEL", "info")
)

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
