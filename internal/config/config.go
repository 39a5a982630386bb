package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerAddress = ":8090"
	DefaultAPIHost       = "localhost"
	DefaultAPIPort       = "8000"
	DefaultUploadPath    = "/api/upload-pdf"
	DefaultQuestionPath  = "/api/ask-question"
	DefaultTimeout       = 60 * time.Second
	DefaultMediaType     = "application/pdf"
	DefaultMaxFileBytes  = 10 << 20 // 10 MiB
	DefaultRedisChannel  = "docqa:notifications"
)

// Config represents runtime configuration for the client and its bridge.
type Config struct {
	BasicConfig BasicConfig     `json:"basic_config" yaml:"basic_config" toml:"basic_config"`
	Backend     BackendConfig   `json:"backend" yaml:"backend" toml:"backend"`
	Intake      IntakeConfig    `json:"intake" yaml:"intake" toml:"intake"`
	Redis       RedisConfig     `json:"redis" yaml:"redis" toml:"redis"`
	RateLimit   RateLimitConfig `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address" toml:"server_address"`
	LogLevel      string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// BackendConfig addresses the upload and question services.
type BackendConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url" toml:"base_url"`
	UploadPath     string `json:"upload_path" yaml:"upload_path" toml:"upload_path"`
	QuestionPath   string `json:"question_path" yaml:"question_path" toml:"question_path"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

type IntakeConfig struct {
	MediaType    string `json:"media_type" yaml:"media_type" toml:"media_type"`
	MaxFileBytes int64  `json:"max_file_bytes" yaml:"max_file_bytes" toml:"max_file_bytes"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Host     string `json:"host" yaml:"host" toml:"host"`
	Port     int    `json:"port" yaml:"port" toml:"port"`
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
	DB       int    `json:"db" yaml:"db" toml:"db"`
	Channel  string `json:"channel" yaml:"channel" toml:"channel"`
}

// RateLimitConfig bounds POST traffic per client on the bridge. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst" toml:"burst"`
}

// Timeout returns the backend transport timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Default returns a configuration that talks to a backend on localhost:8000.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress: DefaultServerAddress,
			LogLevel:      "info",
		},
		Backend: BackendConfig{
			BaseURL:        "http://" + net.JoinHostPort(DefaultAPIHost, DefaultAPIPort),
			UploadPath:     DefaultUploadPath,
			QuestionPath:   DefaultQuestionPath,
			TimeoutSeconds: int(DefaultTimeout / time.Second),
		},
		Intake: IntakeConfig{
			MediaType:    DefaultMediaType,
			MaxFileBytes: DefaultMaxFileBytes,
		},
		Redis: RedisConfig{
			Host:    "127.0.0.1",
			Port:    6379,
			Channel: DefaultRedisChannel,
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json
// when present). The decoder is picked by file extension.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err != nil {
			ApplyEnvOverrides(cfg)
			return cfg, cfg.validate()
		}
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	fillDefaults(cfg)
	ApplyEnvOverrides(cfg)
	return cfg, cfg.validate()
}

// ApplyEnvOverrides lets the environment win over file values.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	host := strings.TrimSpace(os.Getenv("DOCQA_API_HOST"))
	port := strings.TrimSpace(os.Getenv("DOCQA_API_PORT"))
	if host != "" || port != "" {
		if host == "" {
			host = DefaultAPIHost
		}
		if port == "" {
			port = DefaultAPIPort
		}
		cfg.Backend.BaseURL = "http://" + net.JoinHostPort(host, port)
	}
	if v := strings.TrimSpace(os.Getenv("DOCQA_API_BASE_URL")); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DOCQA_LISTEN_ADDR")); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("DOCQA_LOG_LEVEL")); v != "" {
		cfg.BasicConfig.LogLevel = v
	}
}

func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.BasicConfig.ServerAddress == "" {
		cfg.BasicConfig.ServerAddress = def.BasicConfig.ServerAddress
	}
	if cfg.BasicConfig.LogLevel == "" {
		cfg.BasicConfig.LogLevel = def.BasicConfig.LogLevel
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = def.Backend.BaseURL
	}
	if cfg.Backend.UploadPath == "" {
		cfg.Backend.UploadPath = def.Backend.UploadPath
	}
	if cfg.Backend.QuestionPath == "" {
		cfg.Backend.QuestionPath = def.Backend.QuestionPath
	}
	if cfg.Intake.MediaType == "" {
		cfg.Intake.MediaType = def.Intake.MediaType
	}
	if cfg.Intake.MaxFileBytes <= 0 {
		cfg.Intake.MaxFileBytes = def.Intake.MaxFileBytes
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = def.Redis.Host
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = def.Redis.Port
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = def.Redis.Channel
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend base_url must be http(s): %q", c.Backend.BaseURL)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values cannot be negative")
	}
	return nil
}
