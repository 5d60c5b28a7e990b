package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Token verification. When the PASETO public key is set it wins;
	// otherwise DevTokens backs a static verifier for local development.
	PasetoPublicKeyHex string
	PasetoIssuer       string
	PasetoClockSkew    time.Duration

	// DevTokens entries have the form "token:userID:role:name".
	DevTokens string
	// DevRoster entries have the form "studentID:teacherID".
	DevRoster string

	WSOriginRequired  bool
	WSAllowedOrigins  []string
	WSDevInsecure     bool
	WSSendQueueSize   int
	WSWriteTimeout    time.Duration
	WSReadIdleTimeout time.Duration
	WSHeartbeatEvery  time.Duration
	WSHeartbeatWait   time.Duration
	WSRateEvents      int
	WSRateWindow      time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("ECOBLOX_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("ECOBLOX_LOG_LEVEL", "info"),
		LogFormat: EnvString("ECOBLOX_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("ECOBLOX_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ECOBLOX_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ECOBLOX_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ECOBLOX_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("ECOBLOX_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("ECOBLOX_DATABASE_URL", ""),
		DBSchema:    EnvString("ECOBLOX_DB_SCHEMA", "chat"),
		DBMaxConns:  EnvInt32("ECOBLOX_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("ECOBLOX_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("ECOBLOX_READINESS_REQUIRE_DB", false),

		PasetoPublicKeyHex: EnvString("ECOBLOX_PASETO_PUBLIC_KEY_HEX", ""),
		PasetoIssuer:       EnvString("ECOBLOX_PASETO_ISSUER", "ecoblox"),
		PasetoClockSkew:    EnvDuration("ECOBLOX_PASETO_CLOCK_SKEW", 30*time.Second),

		DevTokens: EnvString("ECOBLOX_DEV_TOKENS", ""),
		DevRoster: EnvString("ECOBLOX_DEV_ROSTER", ""),

		WSOriginRequired:  EnvBool("ECOBLOX_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins:  EnvStrings("ECOBLOX_WS_ALLOWED_ORIGINS", nil),
		WSDevInsecure:     EnvBool("ECOBLOX_WS_DEV_INSECURE", false),
		WSSendQueueSize:   EnvInt("ECOBLOX_WS_SEND_QUEUE_SIZE", 256),
		WSWriteTimeout:    EnvDuration("ECOBLOX_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadIdleTimeout: EnvDuration("ECOBLOX_WS_READ_IDLE_TIMEOUT", 2*time.Minute),
		WSHeartbeatEvery:  EnvDuration("ECOBLOX_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatWait:   EnvDuration("ECOBLOX_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSRateEvents:      EnvInt("ECOBLOX_WS_RATE_EVENTS", 120),
		WSRateWindow:      EnvDuration("ECOBLOX_WS_RATE_WINDOW", 10*time.Second),
	}
}
