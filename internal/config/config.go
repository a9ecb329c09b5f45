package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/notifyhub/eventdesk/internal/jobs"
)

// Config holds all runtime configuration loaded from environment variables.
// DATABASE_URL, QR_SECRET and JWT_SECRET are required; optional integrations
// stay off while their variable is empty.
type Config struct {
	// Server
	HTTPPort        string
	MetricsPort     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrationsPath string

	// Secrets
	QRSecret  string
	JWTSecret string
	QRMaxAge  time.Duration

	// Optional integrations
	RedisAddr    string
	NATSURL      string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRate   float64
	Environment  string

	// Delivery providers; empty URLs fall back to the logging providers.
	MailAPIURL      string
	MailAPIKey      string
	SMSAPIURL       string
	SMSAPIKey       string
	ProviderTimeout time.Duration

	// Rate limiting: maximum requests per second per channel
	RateLimit int

	// Worker tuning
	Concurrency       map[string]int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	StalledInterval   time.Duration
	MaxStalledCount   int
	SchedulerTick     time.Duration

	// Application
	AppName        string
	AppBaseURL     string
	CertificateDir string
	CertificateURL string
	ReminderSMS    bool
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9091"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 5)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),

		QRSecret:  os.Getenv("QR_SECRET"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		QRMaxAge:  getDuration("QR_MAX_AGE", 24*time.Hour),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		NATSURL:      os.Getenv("NATS_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		SampleRate:   getFloat("OTEL_SAMPLE_RATE", 1),
		Environment:  getEnv("APP_ENV", "development"),

		MailAPIURL:      os.Getenv("MAIL_API_URL"),
		MailAPIKey:      os.Getenv("MAIL_API_KEY"),
		SMSAPIURL:       os.Getenv("SMS_API_URL"),
		SMSAPIKey:       os.Getenv("SMS_API_KEY"),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Second),

		RateLimit: getInt("RATE_LIMIT_PER_CHANNEL", 100),

		Concurrency:       make(map[string]int),
		PollInterval:      getDuration("POLL_INTERVAL", time.Second),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 10*time.Second),
		StalledInterval:   getDuration("STALLED_INTERVAL", 30*time.Second),
		MaxStalledCount:   getInt("MAX_STALLED_COUNT", 1),
		SchedulerTick:     getDuration("SCHEDULER_TICK", 30*time.Second),

		AppName:        getEnv("APP_NAME", "EventDesk"),
		AppBaseURL:     strings.TrimSuffix(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		CertificateDir: getEnv("CERTIFICATE_DIR", "./data/certificates"),
		ReminderSMS:    getBool("REMINDER_SMS", false),
	}
	cfg.CertificateURL = getEnv("CERTIFICATE_BASE_URL", cfg.AppBaseURL+"/files/certificates")

	for _, def := range jobs.Definitions(nil) {
		if n := getInt(strings.ToUpper(def.Name)+"_CONCURRENCY", 0); n > 0 {
			cfg.Concurrency[def.Name] = n
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"DATABASE_URL": c.DatabaseURL,
		"QR_SECRET":    c.QRSecret,
		"JWT_SECRET":   c.JWTSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.SampleRate)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
