package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Telegram TelegramConfig `yaml:"telegram"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string `yaml:"name"`
	Durable            bool   `yaml:"durable"`
	AutoDelete         bool   `yaml:"auto_delete"`
	Exclusive          bool   `yaml:"exclusive"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PipelineConfig holds the retrieval/transform/delivery settings
type PipelineConfig struct {
	WorkspaceDir      string          `yaml:"workspace_dir"`
	CookiePoolDir     string          `yaml:"cookie_pool_dir"`
	CookieCooldown    time.Duration   `yaml:"cookie_cooldown"`
	PlayerClients     []string        `yaml:"player_clients"`
	PlayerSkip        []string        `yaml:"player_skip"`
	RetrievalInterval time.Duration   `yaml:"retrieval_interval"`
	DeliveryInterval  time.Duration   `yaml:"delivery_interval"`
	FilenameMaxLength int             `yaml:"filename_max_length"`
	FFmpegPath        string          `yaml:"ffmpeg_path"`
	FFprobePath       string          `yaml:"ffprobe_path"`
	Audio             AudioConfig     `yaml:"audio"`
	Thumbnail         ThumbnailConfig `yaml:"thumbnail"`
}

// AudioConfig holds the audio transcode target
type AudioConfig struct {
	Codec     string `yaml:"codec"`
	Bitrate   string `yaml:"bitrate"`
	Extension string `yaml:"extension"`
}

// ThumbnailConfig holds thumbnail normalization settings
type ThumbnailConfig struct {
	MaxDimension int    `yaml:"max_dimension"`
	Backend      string `yaml:"backend"` // ffmpeg or imaging
}

// TelegramConfig holds Bot API settings
type TelegramConfig struct {
	APIURL  string        `yaml:"api_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// EventsConfig holds lifecycle event publishing settings; empty NATSURL disables publishing
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()

	return &config, nil
}

// ApplyDefaults fills unset pipeline, worker and telegram values
func (c *Config) ApplyDefaults() {
	p := &c.Pipeline
	if p.WorkspaceDir == "" {
		p.WorkspaceDir = "downloads"
	}
	if p.CookiePoolDir == "" {
		p.CookiePoolDir = "cookie_pool"
	}
	if p.CookieCooldown == 0 {
		p.CookieCooldown = 30 * time.Minute
	}
	if len(p.PlayerClients) == 0 {
		p.PlayerClients = []string{"android"}
	}
	if len(p.PlayerSkip) == 0 {
		p.PlayerSkip = []string{"webpage", "configs"}
	}
	if p.RetrievalInterval == 0 {
		p.RetrievalInterval = 4 * time.Second
	}
	if p.DeliveryInterval == 0 {
		p.DeliveryInterval = 2 * time.Second
	}
	if p.FilenameMaxLength == 0 {
		p.FilenameMaxLength = 60
	}
	if p.FFmpegPath == "" {
		p.FFmpegPath = "ffmpeg"
	}
	if p.FFprobePath == "" {
		p.FFprobePath = "ffprobe"
	}
	if p.Audio.Codec == "" {
		p.Audio.Codec = "libmp3lame"
	}
	if p.Audio.Bitrate == "" {
		p.Audio.Bitrate = "192k"
	}
	if p.Audio.Extension == "" {
		p.Audio.Extension = "mp3"
	}
	if p.Thumbnail.MaxDimension == 0 {
		p.Thumbnail.MaxDimension = 320
	}
	if p.Thumbnail.Backend == "" {
		p.Thumbnail.Backend = "ffmpeg"
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Telegram.Timeout == 0 {
		c.Telegram.Timeout = 1200 * time.Second
	}

	if c.Events.Subject == "" {
		c.Events.Subject = "media.jobs.lifecycle"
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	switch c.Pipeline.Thumbnail.Backend {
	case "ffmpeg", "imaging":
	default:
		return fmt.Errorf("unknown thumbnail backend: %q (must be ffmpeg or imaging)", c.Pipeline.Thumbnail.Backend)
	}

	if c.Pipeline.FilenameMaxLength <= 0 {
		return fmt.Errorf("pipeline filename_max_length must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
