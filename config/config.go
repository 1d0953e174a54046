// Package config loads the assistant's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "config/config.yaml"

type Config struct {
	ServerAddr string         `yaml:"server_addr"`
	LLM        LLMConfig      `yaml:"llm"`
	Pinata     PinataConfig   `yaml:"pinata"`
	Store      StoreConfig    `yaml:"store"`
	Archive    ArchiveConfig  `yaml:"archive"`
	Telegram   TelegramConfig `yaml:"telegram"`
	Invoice    InvoiceConfig  `yaml:"invoice"`
	Logging    LoggingConfig  `yaml:"logging"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // cerebras, openai, deepseek, gemini, vertex, mock
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Project  string `yaml:"project"`
	Region   string `yaml:"region"`
	Timeout  string `yaml:"timeout"`
}

type PinataConfig struct {
	JWT        string `yaml:"jwt"`
	UploadURL  string `yaml:"upload_url"`
	GatewayURL string `yaml:"gateway_url"`
	Network    string `yaml:"network"`
	Timeout    string `yaml:"timeout"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"` // memory, sqlite, postgres, firestore
	DSN        string `yaml:"dsn"`
	Project    string `yaml:"project"`
	Collection string `yaml:"collection"`
}

type ArchiveConfig struct {
	GCSBucket string `yaml:"gcs_bucket"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
	Prefix    string `yaml:"prefix"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type InvoiceConfig struct {
	ImageURI string `yaml:"image_uri"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		ServerAddr: ":8080",
		LLM: LLMConfig{
			Provider: "cerebras",
			Model:    "llama3.1-8b",
			Region:   "us-central1",
			Timeout:  "60s",
		},
		Pinata: PinataConfig{
			UploadURL:  "https://uploads.pinata.cloud/v3/files",
			GatewayURL: "https://gateway.pinata.cloud/ipfs/",
			Network:    "public",
			Timeout:    "60s",
		},
		Store: StoreConfig{
			Driver:     "memory",
			Collection: "invoiceReceipts",
		},
		Archive: ArchiveConfig{
			Prefix: "receipts/",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("CEREBRAS_API_KEY"); key != "" && (c.LLM.Provider == "" || c.LLM.Provider == "cerebras") {
		c.LLM.APIKey = key
		c.LLM.Provider = "cerebras"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		if c.LLM.Project == "" {
			c.LLM.Project = v
		}
		if c.Store.Project == "" {
			c.Store.Project = v
		}
	}
	if v := os.Getenv("PINATA_JWT"); v != "" {
		c.Pinata.JWT = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		if c.Store.Driver == "" || c.Store.Driver == "memory" {
			c.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.ServerAddr = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.Archive.GCSBucket = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Archive.S3Bucket = v
	}
}

// LLMTimeout returns the per-request model timeout.
func (c *Config) LLMTimeout() time.Duration {
	return parseTimeout(c.LLM.Timeout)
}

// PinataTimeout bounds a single upload to Pinata.
func (c *Config) PinataTimeout() time.Duration {
	return parseTimeout(c.Pinata.Timeout)
}

func parseTimeout(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
