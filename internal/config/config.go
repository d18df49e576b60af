package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Limits   LimitsConfig   `yaml:"limits"`
	Resolver ResolverConfig `yaml:"resolver"`
	Upload   UploadConfig   `yaml:"upload"`
}

// DiscordConfig holds chat platform credentials.
type DiscordConfig struct {
	Token   string `yaml:"token" envconfig:"DISCORD_TOKEN"`
	GuildID string `yaml:"guild_id" envconfig:"DISCORD_GUILD_ID"`
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// StorageConfig holds filesystem configuration.
type StorageConfig struct {
	// WorkPath is the root under which every request gets its own directory.
	WorkPath string `yaml:"work_path" envconfig:"WORK_PATH"`
	// HistoryDBPath enables SQLite request history when set.
	HistoryDBPath string `yaml:"history_db_path" envconfig:"HISTORY_DB_PATH"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count          int           `yaml:"count" envconfig:"WORKER_COUNT"`
	QueueSize      int           `yaml:"queue_size" envconfig:"WORKER_QUEUE_SIZE"`
	PollInterval   time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// LimitsConfig holds chat platform size limits.
type LimitsConfig struct {
	ChatAttachLimit ByteSize `yaml:"chat_attach_limit" envconfig:"CHAT_ATTACH_LIMIT"`
}

// ResolverConfig holds yt-dlp configuration.
type ResolverConfig struct {
	BinaryPath     string        `yaml:"binary_path" envconfig:"YTDLP_PATH"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout" envconfig:"RESOLVE_TIMEOUT"`
}

// UploadConfig holds the fallback hosting chain configuration.
type UploadConfig struct {
	// Order lists backend names in priority order.
	Order         []string      `yaml:"order" envconfig:"UPLOAD_ORDER"`
	BaseTimeout   time.Duration `yaml:"base_timeout" envconfig:"UPLOAD_BASE_TIMEOUT"`
	MinThroughput ByteSize      `yaml:"min_throughput" envconfig:"UPLOAD_MIN_THROUGHPUT"`

	Pixeldrain PixeldrainConfig `yaml:"pixeldrain"`
	Litterbox  LitterboxConfig  `yaml:"litterbox"`
	Catbox     CatboxConfig     `yaml:"catbox"`
}

// PixeldrainConfig configures the credentialed permanent backend.
type PixeldrainConfig struct {
	APIKey  string   `yaml:"api_key" envconfig:"PIXELDRAIN_API_KEY"`
	BaseURL string   `yaml:"base_url" envconfig:"PIXELDRAIN_BASE_URL"`
	Ceiling ByteSize `yaml:"ceiling" envconfig:"PIXELDRAIN_CEILING"`
}

// LitterboxConfig configures the anonymous temporary backend.
type LitterboxConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"LITTERBOX_BASE_URL"`
	Ceiling ByteSize      `yaml:"ceiling" envconfig:"LITTERBOX_CEILING"`
	Expiry  time.Duration `yaml:"expiry" envconfig:"LITTERBOX_EXPIRY"`
}

// CatboxConfig configures the small permanent backend.
type CatboxConfig struct {
	UserHash string   `yaml:"userhash" envconfig:"CATBOX_USERHASH"`
	BaseURL  string   `yaml:"base_url" envconfig:"CATBOX_BASE_URL"`
	Ceiling  ByteSize `yaml:"ceiling" envconfig:"CATBOX_CEILING"`
}

// Default returns the configuration used before file and environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         9848,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			WorkPath: filepath.Join(os.TempDir(), "tubefetch"),
		},
		Worker: WorkerConfig{
			Count:          2,
			QueueSize:      32,
			PollInterval:   time.Second,
			RequestTimeout: 14 * time.Minute,
		},
		Limits: LimitsConfig{
			ChatAttachLimit: 25 * MiB,
		},
		Resolver: ResolverConfig{
			BinaryPath:     "yt-dlp",
			ResolveTimeout: 60 * time.Second,
		},
		Upload: UploadConfig{
			Order:         []string{"pixeldrain", "litterbox", "catbox"},
			BaseTimeout:   60 * time.Second,
			MinThroughput: 256 * KiB,
			Pixeldrain: PixeldrainConfig{
				BaseURL: "https://pixeldrain.com/api",
				Ceiling: 2000 * MiB,
			},
			Litterbox: LitterboxConfig{
				BaseURL: "https://litterbox.catbox.moe/resources/internals/api.php",
				Ceiling: 1000 * MiB,
				Expiry:  72 * time.Hour,
			},
			Catbox: CatboxConfig{
				BaseURL: "https://catbox.moe/user/api.php",
				Ceiling: 200 * MiB,
			},
		},
	}
}

// Load reads configuration from defaults, an optional .env file, an optional
// YAML file and environment variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.Upload.normalize()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.Storage.WorkPath == "" {
		return fmt.Errorf("WORK_PATH is required")
	}
	if c.Limits.ChatAttachLimit <= 0 {
		return fmt.Errorf("CHAT_ATTACH_LIMIT must be positive")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.Upload.MinThroughput <= 0 {
		return fmt.Errorf("UPLOAD_MIN_THROUGHPUT must be positive")
	}
	for _, name := range c.Upload.Order {
		switch name {
		case "pixeldrain", "litterbox", "catbox":
		default:
			return fmt.Errorf("unknown upload backend %q in UPLOAD_ORDER", name)
		}
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (u *UploadConfig) normalize() {
	order := make([]string, 0, len(u.Order))
	for _, name := range u.Order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			order = append(order, name)
		}
	}
	u.Order = order
}
