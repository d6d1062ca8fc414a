package config

import (
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is loaded once at startup and passed by pointer into every
// component that needs it. It is never mutated after MustLoad returns;
// rotating the token secret requires a restart and invalidates all
// outstanding tokens.
type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	ListenAddr string `yaml:"listen_addr"`
	Domain     string `yaml:"domain"` // used to build activation/reset links, e.g. "readshelf.example.com"
	LogLevel   string `yaml:"log_level"`
	LogJSON    bool   `yaml:"log_json"`

	Pg Pg `yaml:"pg"`

	TokenTTL    time.Duration `yaml:"token_ttl"`     // business TTL embedded into every minted token
	TokenMaxAge time.Duration `yaml:"token_max_age"` // codec-level max age, 0 disables the check

	BcryptCost int `yaml:"bcrypt_cost"`

	ResetLookback    time.Duration `yaml:"reset_lookback"`     // window for counting forgot-password requests
	ResetMaxRequests int           `yaml:"reset_max_requests"` // allowance within the lookback window

	BlacklistSweepInterval time.Duration `yaml:"blacklist_sweep_interval"`
	ResetLogSweepInterval  time.Duration `yaml:"reset_log_sweep_interval"`

	AuthRPS   float64 `yaml:"auth_rps"`   // per-IP rate for email-sending auth endpoints
	AuthBurst int     `yaml:"auth_burst"`

	Smtp Smtp `yaml:"smtp"`

	CorsOrigins []string `yaml:"cors_origins"`
}

type Pg struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	User   string `yaml:"user"`
	Dbname string `yaml:"dbname"`
}

type Smtp struct {
	Server     string `yaml:"server"`
	Port       int    `yaml:"port"`
	SenderName string `yaml:"sender_name"`
	Timeout    int    `yaml:"timeout"` // seconds
}

type Private struct {
	PgPassword   string `yaml:"pg_password"`
	TokenSecret  string `yaml:"token_secret"`
	SmtpUsername string `yaml:"smtp_username"`
	SmtpPassword string `yaml:"smtp_password"`
}

func (c *Config) TokenSecret() string {
	return c.Private.TokenSecret
}

func (c *Config) TokenTTL() time.Duration {
	return c.Public.TokenTTL
}

func mustLoadPath(configPath string, output interface{}) {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)

	if err != nil {
		panic("can't read config file")
	}

	err = yaml.Unmarshal(configFile, output)
	if err != nil {
		panic("can't unmarshal config file")
	}
}

func MustLoad(configFolder string) *Config {
	var public Public
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)

	cfg := &Config{public, private}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Public.TokenTTL == 0 {
		c.Public.TokenTTL = 15 * time.Minute
	}
	if c.Public.ResetLookback == 0 {
		c.Public.ResetLookback = 15 * 24 * time.Hour
	}
	if c.Public.ResetMaxRequests == 0 {
		c.Public.ResetMaxRequests = 5
	}
	if c.Public.BlacklistSweepInterval == 0 {
		c.Public.BlacklistSweepInterval = time.Hour
	}
	if c.Public.ResetLogSweepInterval == 0 {
		c.Public.ResetLogSweepInterval = 6 * time.Hour
	}
	if c.Public.BcryptCost == 0 {
		c.Public.BcryptCost = 12
	}
	if c.Public.ListenAddr == "" {
		c.Public.ListenAddr = ":8080"
	}
}
