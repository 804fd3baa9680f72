package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderSMSNetBD = "smsnetbd"
	ProviderWebhook  = "webhook"
)

type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	SMS       SMSConfig
	Dispatch  DispatchConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type SMSConfig struct {
	Provider   string
	APIURL     string
	APIKey     string
	SenderID   string
	WebhookURL string
	Timeout    time.Duration
}

type DispatchConfig struct {
	Workers    int
	ContentMax int
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	LeadDays int
}

type RedisConfig struct {
	Enabled    bool
	Address    string
	Password   string
	DB         int
	TTL        time.Duration
	LockExpiry time.Duration
}

// LoadAll reads the whole configuration from the environment and reports
// every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		collect(err)
		return v
	}
	secondsVar := func(key string, def int) time.Duration {
		return time.Duration(intVar(key, def)) * time.Second
	}

	pgURL, err := requireEnv("POSTGRES_URL")
	collect(err)
	secret, err := requireEnv("JWT_SECRET")
	collect(err)
	schedEnabled, err := getEnvBool("SCHED_ENABLED", true)
	collect(err)

	cfg := &Config{
		Env: getEnv("APP_ENV", "local"),
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: pgURL,
		},
		Auth: AuthConfig{
			JWTSecret: secret,
			TokenTTL:  time.Duration(intVar("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		SMS: SMSConfig{
			Provider:   strings.ToLower(getEnv("SMS_PROVIDER", ProviderSMSNetBD)),
			APIURL:     getEnv("SMS_API_URL", ""),
			APIKey:     os.Getenv("SMS_API_KEY"),
			SenderID:   os.Getenv("SMS_SENDER_ID"),
			WebhookURL: os.Getenv("WEBHOOK_URL"),
			Timeout:    secondsVar("SMS_TIMEOUT_SECONDS", 30),
		},
		Dispatch: DispatchConfig{
			Workers:    intVar("DISPATCH_WORKERS", 4),
			ContentMax: intVar("CONTENT_MAX", 1000),
		},
		Scheduler: SchedulerConfig{
			Enabled:  schedEnabled,
			Interval: secondsVar("SCHED_INTERVAL_SECONDS", 3600),
			LeadDays: intVar("SCHED_LEAD_DAYS", 2),
		},
	}

	redisCfg, redisErrs := loadRedisConfig()
	cfg.Redis = redisCfg
	errs = append(errs, redisErrs...)

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}
	lockExpiry, err := getEnvInt("LOCK_EXPIRY_SECONDS", 60)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:    true,
		Address:    addr,
		Password:   os.Getenv("REDIS_PASSWORD"),
		DB:         db,
		TTL:        time.Duration(ttl) * time.Second,
		LockExpiry: time.Duration(lockExpiry) * time.Second,
	}, errs
}

func validate(cfg *Config) []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(cfg.Auth.TokenTTL > 0, "JWT_EXPIRY_HOURS must be > 0")
	check(cfg.SMS.Timeout > 0, "SMS_TIMEOUT_SECONDS must be > 0")
	check(cfg.Dispatch.Workers > 0, "DISPATCH_WORKERS must be > 0")
	check(cfg.Dispatch.ContentMax > 0, "CONTENT_MAX must be > 0")
	check(cfg.Scheduler.Interval > 0, "SCHED_INTERVAL_SECONDS must be > 0")
	check(cfg.Scheduler.LeadDays >= 0, "SCHED_LEAD_DAYS must be >= 0")

	switch cfg.SMS.Provider {
	case ProviderSMSNetBD:
		check(cfg.SMS.APIKey != "", "SMS_API_KEY is required when SMS_PROVIDER=smsnetbd")
	case ProviderWebhook:
		check(cfg.SMS.WebhookURL != "", "WEBHOOK_URL is required when SMS_PROVIDER=webhook")
	default:
		errs = append(errs, fmt.Errorf("SMS_PROVIDER must be %q or %q, got %q", ProviderSMSNetBD, ProviderWebhook, cfg.SMS.Provider))
	}

	if cfg.Redis.Enabled {
		check(cfg.Redis.TTL > 0, "REDIS_TTL_SECONDS must be > 0")
		check(cfg.Redis.LockExpiry > 0, "LOCK_EXPIRY_SECONDS must be > 0")
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %s", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
