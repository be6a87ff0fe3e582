package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	SMTP      SMTPConfig      `json:"smtp"`
	Slack     SlackConfig     `json:"slack"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type ServerConfig struct {
	Port string `json:"port"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	From     string `json:"from"`
	Password string `json:"password"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url"`
}

type SchedulerConfig struct {
	SweepInterval string `json:"sweep_interval"`
}

// Load reads a JSON config file. When the file is missing it falls back to
// the environment, loading .env / .env.local first if present, so local runs
// work without a config file at all.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if err := godotenv.Load(); err != nil {
			if err := godotenv.Load(".env.local"); err != nil {
				fmt.Printf("No .env or .env.local file found. Using environment variables.\n")
			}
		}

		return &Config{
			Server: ServerConfig{
				Port: getEnv("PORT", "8080"),
			},
			Database: DatabaseConfig{
				Path: getEnv("DATABASE_PATH", "data/campaign-watcher.db"),
			},
			SMTP: SMTPConfig{
				Host:     getEnv("SMTP_HOST", ""),
				Port:     getEnvInt("SMTP_PORT", 587),
				From:     getEnv("SMTP_FROM", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
			},
			Slack: SlackConfig{
				WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			},
			Scheduler: SchedulerConfig{
				SweepInterval: getEnv("SWEEP_INTERVAL", "60s"),
			},
		}, nil
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/campaign-watcher.db"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Scheduler.SweepInterval == "" {
		c.Scheduler.SweepInterval = "60s"
	}
}

// SweepInterval parses the configured sweep interval, falling back to a
// minute when it is unparsable.
func (c *Config) SweepInterval() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.SweepInterval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Platform is one entry of the platform catalog: the canonical upload id and
// the name shown in charts and alert messages.
type Platform struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

type PlatformCatalog struct {
	Platforms []Platform `yaml:"platforms"`
}

// DisplayName resolves a platform id to its catalog name, falling back to
// the raw id for platforms uploaded before they were cataloged.
func (c *PlatformCatalog) DisplayName(platformID string) string {
	for _, p := range c.Platforms {
		if p.ID == platformID {
			return p.DisplayName
		}
	}
	return platformID
}

// LoadPlatformCatalog reads config/platforms.yaml, walking up from the
// working directory so tests and binaries run from subdirectories still
// find it.
func LoadPlatformCatalog() (*PlatformCatalog, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	var configPath string
	for i := 0; i < 3; i++ {
		configPath = filepath.Join(wd, "config", "platforms.yaml")
		if _, err := os.Stat(configPath); err == nil {
			break
		}

		wd = filepath.Dir(wd)
		if wd == "/" {
			return nil, fmt.Errorf("config directory not found")
		}
	}

	return LoadPlatformCatalogFile(configPath)
}

func LoadPlatformCatalogFile(path string) (*PlatformCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform catalog: %w", err)
	}

	var catalog PlatformCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse platform catalog: %w", err)
	}

	return &catalog, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
