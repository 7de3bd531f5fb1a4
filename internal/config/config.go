// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration for the realms server and historian.
// Every key can be overridden by an environment variable whose name is the upper-cased
// key with dots replaced by underscores, e.g. postgres.host => POSTGRES_HOST.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Narrator  NarratorConfig  `mapstructure:"narrator"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Historian HistorianConfig `mapstructure:"historian"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig selects the backing store. "postgres" is the production driver,
// "memory" keeps everything in process and is meant for local development.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	Migrate  bool   `mapstructure:"migrate"`
}

// RedisConfig configures the optional Redis connection. An empty Addr disables
// cross-instance fan-out and the activity queue.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	DB            int    `mapstructure:"db"`
	ActivityQueue string `mapstructure:"activity_queue"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type AuthConfig struct {
	CookieName     string        `mapstructure:"cookie_name"`
	TokenExpire    time.Duration `mapstructure:"token_expire"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	SecureCookie   bool          `mapstructure:"secure_cookie"`
}

type NarratorConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	History   int           `mapstructure:"history"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SpeechConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	LanguageCode string        `mapstructure:"language_code"`
	Voice        string        `mapstructure:"voice"`
	Encoding     string        `mapstructure:"encoding"`
	SpeakingRate float64       `mapstructure:"speaking_rate"`
	Pitch        float64       `mapstructure:"pitch"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LimitsConfig bounds how often a single user may hit the vendor-backed endpoints.
type LimitsConfig struct {
	NarrationPerMinute int `mapstructure:"narration_per_minute"`
	NarrationBurst     int `mapstructure:"narration_burst"`
}

type HistorianConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	FlushDelay time.Duration `mapstructure:"flush_delay"`
	Inactivity time.Duration `mapstructure:"inactivity"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "realms")
	v.SetDefault("postgres.password", "realms")
	v.SetDefault("postgres.database", "realms")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.activity_queue", "realms_activity")
	v.SetDefault("redis.channel_prefix", "realms:room:")

	v.SetDefault("auth.cookie_name", "authToken")
	v.SetDefault("auth.token_expire", "72h")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.secure_cookie", false)

	v.SetDefault("narrator.api_key", "")
	v.SetDefault("narrator.base_url", "")
	v.SetDefault("narrator.model", "gpt-4o-mini")
	v.SetDefault("narrator.max_tokens", 600)
	v.SetDefault("narrator.history", 20)
	v.SetDefault("narrator.timeout", "45s")

	v.SetDefault("speech.enabled", true)
	v.SetDefault("speech.api_key", "")
	v.SetDefault("speech.endpoint", "https://texttospeech.googleapis.com/")
	v.SetDefault("speech.language_code", "en-US")
	v.SetDefault("speech.voice", "en-GB-Wavenet-B")
	v.SetDefault("speech.encoding", "MP3")
	v.SetDefault("speech.speaking_rate", 1.0)
	v.SetDefault("speech.pitch", 1.0)
	v.SetDefault("speech.timeout", "20s")

	v.SetDefault("limits.narration_per_minute", 12)
	v.SetDefault("limits.narration_burst", 3)

	v.SetDefault("historian.batch_size", 20)
	v.SetDefault("historian.flush_delay", "500ms")
	v.SetDefault("historian.inactivity", "2h")
}

// Read builds the configuration from defaults, an optional realms.yaml next to the binary
// and the environment (which wins).
func Read() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("realms")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the keys the server cannot run without.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return errors.New("postgres.host and postgres.database are required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.CookieName == "" {
		return errors.New("auth.cookie_name must not be empty")
	}
	if c.Auth.TokenExpire < 0 {
		return errors.New("auth.token_expire must not be negative")
	}
	if c.Limits.NarrationPerMinute <= 0 || c.Limits.NarrationBurst <= 0 {
		return errors.New("limits.narration_per_minute and limits.narration_burst must be positive")
	}
	if budget := c.VendorBudget(); c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= budget {
		return fmt.Errorf("server.write_timeout (%s) must exceed narrator.timeout plus speech.timeout (%s)",
			c.Server.WriteTimeout, budget)
	}
	return nil
}

// VendorBudget is the longest a single request can spend waiting on the narrator and
// then the speech vendor.
func (c Config) VendorBudget() time.Duration {
	budget := c.Narrator.Timeout
	if c.Speech.Enabled {
		budget += c.Speech.Timeout
	}
	return budget
}

// PostgresURL returns the pgx connection string.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     c.Postgres.Host + ":" + c.Postgres.Port,
		Path:     "/" + c.Postgres.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.Postgres.SSLMode),
	}
	return u.String()
}

// OriginHosts returns AllowedOrigins without their scheme, the form websocket origin
// patterns are matched against.
func (s ServerConfig) OriginHosts() []string {
	hosts := make([]string, 0, len(s.AllowedOrigins))
	for _, o := range s.AllowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
