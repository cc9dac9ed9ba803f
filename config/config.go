package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database holds the connection settings for the master database.
type Database struct {
	Host     string `mapstructure:"master_db_host"`
	Port     int    `mapstructure:"master_db_port"`
	User     string `mapstructure:"master_db_user"`
	Password string `mapstructure:"master_db_password"`
	Name     string `mapstructure:"master_db_name"`
	// Name of an SSM parameter holding the credentials. Overrides the fields above when set.
	SSMParam string `mapstructure:"master_db_ssm_param"`
}

// Pool holds the sizing and timeout knobs shared by every pool.
type Pool struct {
	MaxOpenConns    int           `mapstructure:"tenant_max_open_conns"`
	MaxIdleConns    int           `mapstructure:"tenant_max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"tenant_conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"db_connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"db_query_timeout"`
	IdleTimeout     time.Duration `mapstructure:"pool_idle_timeout"`
	SweepInterval   time.Duration `mapstructure:"pool_sweep_interval"`
}

type Face struct {
	EnforceStrict  bool          `mapstructure:"face_enforce_strict"`
	MatchThreshold float64       `mapstructure:"face_match_threshold"`
	WebhookURL     string        `mapstructure:"face_verify_webhook"`
	WebhookToken   string        `mapstructure:"face_verify_token"`
	Timeout        time.Duration `mapstructure:"face_verify_timeout"`
}

type Notify struct {
	SlackToken        string `mapstructure:"slack_bot_token"`
	SlackInfoChannel  string `mapstructure:"slack_info_channel"`
	SlackErrorChannel string `mapstructure:"slack_error_channel"`
	EmailFrom         string `mapstructure:"audit_email_from"`
	EmailTo           string `mapstructure:"audit_email_to"`
}

type Config struct {
	Database Database `mapstructure:",squash"`
	Pool     Pool     `mapstructure:",squash"`
	Face     Face     `mapstructure:",squash"`
	Notify   Notify   `mapstructure:",squash"`

	SkipAssignmentCheck bool   `mapstructure:"skip_assignment_check"`
	ImageBucket         string `mapstructure:"image_bucket"`
	// Base64 encoded HMAC secret for bearer tokens.
	JWTSecret  string `mapstructure:"jwt_secret"`
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set")
	}
	return &cfg, nil
}

// Defaults need to be declared for viper to pick the keys up from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("MASTER_DB_HOST", "localhost")
	v.SetDefault("MASTER_DB_PORT", 3306)
	v.SetDefault("MASTER_DB_USER", "root")
	v.SetDefault("MASTER_DB_PASSWORD", "")
	v.SetDefault("MASTER_DB_NAME", "workforce")
	v.SetDefault("MASTER_DB_SSM_PARAM", "")

	v.SetDefault("TENANT_MAX_OPEN_CONNS", 10)
	v.SetDefault("TENANT_MAX_IDLE_CONNS", 5)
	v.SetDefault("TENANT_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("DB_CONNECT_TIMEOUT", 5*time.Second)
	v.SetDefault("DB_QUERY_TIMEOUT", 10*time.Second)
	v.SetDefault("POOL_IDLE_TIMEOUT", 30*time.Minute)
	v.SetDefault("POOL_SWEEP_INTERVAL", 5*time.Minute)

	v.SetDefault("FACE_ENFORCE_STRICT", false)
	v.SetDefault("FACE_MATCH_THRESHOLD", 0.75)
	v.SetDefault("FACE_VERIFY_WEBHOOK", "")
	v.SetDefault("FACE_VERIFY_TOKEN", "")
	v.SetDefault("FACE_VERIFY_TIMEOUT", 10*time.Second)

	v.SetDefault("SLACK_BOT_TOKEN", "")
	v.SetDefault("SLACK_INFO_CHANNEL", "")
	v.SetDefault("SLACK_ERROR_CHANNEL", "")
	v.SetDefault("AUDIT_EMAIL_FROM", "")
	v.SetDefault("AUDIT_EMAIL_TO", "")

	v.SetDefault("SKIP_ASSIGNMENT_CHECK", false)
	v.SetDefault("IMAGE_BUCKET", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("LISTEN_ADDR", "0.0.0.0:8090")
	v.SetDefault("LOG_LEVEL", "info")
}

func (c *Config) Validate() error {
	if c.Face.MatchThreshold <= 0 || c.Face.MatchThreshold > 1 {
		return fmt.Errorf("FACE_MATCH_THRESHOLD must be in (0, 1], got %v", c.Face.MatchThreshold)
	}
	if c.Pool.IdleTimeout <= 0 || c.Pool.SweepInterval <= 0 {
		return fmt.Errorf("pool idle timeout and sweep interval must be positive")
	}
	if c.Pool.QueryTimeout <= 0 || c.Pool.ConnectTimeout <= 0 {
		return fmt.Errorf("database timeouts must be positive")
	}
	return nil
}

// AuditRecipients splits AUDIT_EMAIL_TO on commas.
func (n Notify) AuditRecipients() []string {
	var out []string
	for _, to := range strings.Split(n.EmailTo, ",") {
		if to = strings.TrimSpace(to); to != "" {
			out = append(out, to)
		}
	}
	return out
}

// InitLogger installs the default slog handler at the configured level.
func InitLogger(level string) slog.Level {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
		defer slog.Warn("Invalid log level, defaulting to info", "log_level", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return lvl
}
