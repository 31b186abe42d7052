package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSystemPrompt instructs the model about tools, tickets and the
// silence marker.
const DefaultSystemPrompt = `You are the on-call helpdesk assistant for this team's chat channel.
Answer questions about our services concisely. Use the available tools to inspect container logs,
environment configuration and hosts before guessing. When a problem needs a human, create a ticket
with create_ticket and share the link. If a message does not need a reply from you, for example
people talking to each other, answer with exactly [NO_REPLY].`

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Log       LogConfig
	Server    ServerConfig
	Slack     SlackConfig
	Model     ModelConfig
	Agent     AgentConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Docker    DockerConfig
	SSH       SSHConfig
	Ticket    TicketConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// SlackConfig holds Slack integration settings. Slack is enabled when
// SigningSecret is set.
type SlackConfig struct {
	BotToken           string
	SigningSecret      string
	BotUserID          string
	EscalationChannels []string
	MaxImageBytes      int
}

// Enabled reports whether the Slack webhook should be mounted.
func (c *SlackConfig) Enabled() bool { return c.SigningSecret != "" }

// ModelConfig holds the language model API settings and prices.
type ModelConfig struct {
	APIKey             string //nolint:gosec // G117: model API credential config
	BaseURL            string
	Name               string
	MaxTokens          int
	InputPricePerMTok  float64
	OutputPricePerMTok float64
}

// AgentConfig holds reasoning loop and session settings.
type AgentConfig struct {
	MaxTurns        int
	SilentMarker    string
	SystemPrompt    string
	HistoryMaxTurns int
	IdleTimeout     time.Duration
	MaxPending      int
}

// RedisConfig holds Redis connection settings. Redis is enabled when Addr is set.
type RedisConfig struct {
	Addr      string
	Password  string //nolint:gosec // G117: Redis connection config
	DB        int
	MemoryTTL time.Duration
	MemoryKey string //nolint:gosec // G117: base64 AES-256 key for memory values
	DedupeTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

// DatabaseConfig holds PostgreSQL connection settings for the run audit log.
type DatabaseConfig struct {
	AuditEnabled bool
	Host         string
	Port         int
	User         string
	Password     string //nolint:gosec // G117: DB connection config
	DBName       string
	SSLMode      string
	MaxConns     int
}

// DockerConfig holds settings of the container tools. They are registered
// when Host is set.
type DockerConfig struct {
	Host              string
	AllowedContainers []string
}

// SSHConfig holds settings of the run_ssh_command tool. It is registered when
// KeyPath is set.
type SSHConfig struct {
	User           string
	KeyPath        string
	KnownHostsPath string
	AllowedHosts   []string
	Timeout        time.Duration
}

// TicketConfig holds issue tracker settings. create_ticket is registered
// when TeamID is set.
type TicketConfig struct {
	Endpoint     string
	TeamID       string
	APIKey       string //nolint:gosec // G117: tracker credential config
	ClientID     string
	ClientSecret string //nolint:gosec // G117: tracker credential config
	TokenURL     string
}

// AdminConfig holds admin API authentication settings.
type AdminConfig struct {
	JWTSecret    string //nolint:gosec // G117: JWT signing secret config
	TokenTTL     time.Duration
	APIKeyHashes []string
}

// RateLimitConfig holds per-IP limits of the public endpoints.
type RateLimitConfig struct {
	SlackRPS   float64
	SlackBurst int
	APIRPS     float64
	APIBurst   int
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	var p parser

	cfg := &Config{
		Log: LogConfig{
			Level:  getEnv("HELPDESK_LOG_LEVEL", "info"),
			Format: getEnv("HELPDESK_LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Addr:            getEnv("HELPDESK_SERVER_ADDR", ":8080"),
			ReadTimeout:     p.getDuration("HELPDESK_SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    p.getDuration("HELPDESK_SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: p.getDuration("HELPDESK_SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getEnvList("HELPDESK_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Slack: SlackConfig{
			BotToken:           getEnv("HELPDESK_SLACK_BOT_TOKEN", ""),
			SigningSecret:      getEnv("HELPDESK_SLACK_SIGNING_SECRET", ""),
			BotUserID:          getEnv("HELPDESK_SLACK_BOT_USER_ID", ""),
			EscalationChannels: getEnvList("HELPDESK_SLACK_ESCALATION_CHANNELS", nil),
			MaxImageBytes:      p.getInt("HELPDESK_SLACK_MAX_IMAGE_BYTES", 5<<20),
		},
		Model: ModelConfig{
			APIKey:             getEnv("HELPDESK_MODEL_API_KEY", ""),
			BaseURL:            getEnv("HELPDESK_MODEL_BASE_URL", ""),
			Name:               getEnv("HELPDESK_MODEL_NAME", "claude-sonnet-4-20250514"),
			MaxTokens:          p.getInt("HELPDESK_MODEL_MAX_TOKENS", 4096),
			InputPricePerMTok:  p.getFloat("HELPDESK_MODEL_INPUT_PRICE_PER_MTOK", 3),
			OutputPricePerMTok: p.getFloat("HELPDESK_MODEL_OUTPUT_PRICE_PER_MTOK", 15),
		},
		Agent: AgentConfig{
			MaxTurns:        p.getInt("HELPDESK_AGENT_MAX_TURNS", 50),
			SilentMarker:    getEnv("HELPDESK_AGENT_SILENT_MARKER", "[NO_REPLY]"),
			SystemPrompt:    getEnv("HELPDESK_AGENT_SYSTEM_PROMPT", DefaultSystemPrompt),
			HistoryMaxTurns: p.getInt("HELPDESK_AGENT_HISTORY_MAX_TURNS", 200),
			IdleTimeout:     p.getDuration("HELPDESK_AGENT_IDLE_TIMEOUT", 30*time.Minute),
			MaxPending:      p.getInt("HELPDESK_AGENT_MAX_PENDING", 0),
		},
		Redis: RedisConfig{
			Addr:      getEnv("HELPDESK_REDIS_ADDR", ""),
			Password:  getEnv("HELPDESK_REDIS_PASSWORD", ""),
			DB:        p.getInt("HELPDESK_REDIS_DB", 0),
			MemoryTTL: p.getDuration("HELPDESK_REDIS_MEMORY_TTL", 30*24*time.Hour),
			MemoryKey: getEnv("HELPDESK_REDIS_MEMORY_KEY", ""),
			DedupeTTL: p.getDuration("HELPDESK_REDIS_DEDUPE_TTL", 10*time.Minute),
		},
		Database: DatabaseConfig{
			AuditEnabled: p.getBool("HELPDESK_AUDIT_ENABLED", false),
			Host:         getEnv("HELPDESK_DB_HOST", "localhost"),
			Port:         p.getInt("HELPDESK_DB_PORT", 5432),
			User:         getEnv("HELPDESK_DB_USER", "helpdesk"),
			Password:     getEnv("HELPDESK_DB_PASSWORD", ""),
			DBName:       getEnv("HELPDESK_DB_NAME", "helpdesk"),
			SSLMode:      getEnv("HELPDESK_DB_SSLMODE", "disable"),
			MaxConns:     p.getInt("HELPDESK_DB_MAX_CONNS", 10),
		},
		Docker: DockerConfig{
			Host:              getEnv("HELPDESK_DOCKER_HOST", ""),
			AllowedContainers: getEnvList("HELPDESK_DOCKER_ALLOWED_CONTAINERS", nil),
		},
		SSH: SSHConfig{
			User:           getEnv("HELPDESK_SSH_USER", "helpdesk"),
			KeyPath:        getEnv("HELPDESK_SSH_KEY_PATH", ""),
			KnownHostsPath: getEnv("HELPDESK_SSH_KNOWN_HOSTS", os.ExpandEnv("$HOME/.ssh/known_hosts")),
			AllowedHosts:   getEnvList("HELPDESK_SSH_ALLOWED_HOSTS", nil),
			Timeout:        p.getDuration("HELPDESK_SSH_TIMEOUT", 30*time.Second),
		},
		Ticket: TicketConfig{
			Endpoint:     getEnv("HELPDESK_TICKET_ENDPOINT", ""),
			TeamID:       getEnv("HELPDESK_TICKET_TEAM_ID", ""),
			APIKey:       getEnv("HELPDESK_TICKET_API_KEY", ""),
			ClientID:     getEnv("HELPDESK_TICKET_CLIENT_ID", ""),
			ClientSecret: getEnv("HELPDESK_TICKET_CLIENT_SECRET", ""),
			TokenURL:     getEnv("HELPDESK_TICKET_TOKEN_URL", ""),
		},
		Admin: AdminConfig{
			JWTSecret:    getEnv("HELPDESK_ADMIN_JWT_SECRET", ""),
			TokenTTL:     p.getDuration("HELPDESK_ADMIN_TOKEN_TTL", 12*time.Hour),
			APIKeyHashes: getEnvList("HELPDESK_ADMIN_API_KEY_HASHES", nil),
		},
		RateLimit: RateLimitConfig{
			SlackRPS:   p.getFloat("HELPDESK_RATE_LIMIT_SLACK_RPS", 20),
			SlackBurst: p.getInt("HELPDESK_RATE_LIMIT_SLACK_BURST", 40),
			APIRPS:     p.getFloat("HELPDESK_RATE_LIMIT_API_RPS", 10),
			APIBurst:   p.getInt("HELPDESK_RATE_LIMIT_API_BURST", 20),
		},
	}

	if p.err != nil {
		return nil, fmt.Errorf("config.Load: %w", p.err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Model.APIKey == "" {
		return errors.New("HELPDESK_MODEL_API_KEY is required")
	}

	// JWT secret is required (no insecure default).
	if c.Admin.JWTSecret == "" {
		return errors.New("HELPDESK_ADMIN_JWT_SECRET is required")
	}
	if len(c.Admin.JWTSecret) < 32 {
		return errors.New("HELPDESK_ADMIN_JWT_SECRET must be at least 32 characters")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("HELPDESK_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	if c.Slack.Enabled() && c.Slack.BotToken == "" {
		return errors.New("HELPDESK_SLACK_BOT_TOKEN is required when HELPDESK_SLACK_SIGNING_SECRET is set")
	}

	if c.Ticket.TeamID != "" && c.Ticket.APIKey == "" && (c.Ticket.ClientID == "" || c.Ticket.TokenURL == "") {
		return errors.New("HELPDESK_TICKET_API_KEY or HELPDESK_TICKET_CLIENT_ID with HELPDESK_TICKET_TOKEN_URL is required when HELPDESK_TICKET_TEAM_ID is set")
	}

	if c.SSH.KeyPath != "" && len(c.SSH.AllowedHosts) == 0 {
		return errors.New("HELPDESK_SSH_ALLOWED_HOSTS is required when HELPDESK_SSH_KEY_PATH is set")
	}

	if c.Database.AuditEnabled && c.Database.SSLMode == "disable" {
		log.Warn().Msg("HELPDESK_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("HELPDESK_AGENT_MAX_TURNS must be >= 1, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.HistoryMaxTurns < 0 {
		return fmt.Errorf("HELPDESK_AGENT_HISTORY_MAX_TURNS must be >= 0, got %d", c.Agent.HistoryMaxTurns)
	}
	if c.Agent.IdleTimeout <= 0 {
		return fmt.Errorf("HELPDESK_AGENT_IDLE_TIMEOUT must be positive, got %s", c.Agent.IdleTimeout)
	}
	if c.Agent.MaxPending < 0 {
		return fmt.Errorf("HELPDESK_AGENT_MAX_PENDING must be >= 0, got %d", c.Agent.MaxPending)
	}
	if strings.TrimSpace(c.Agent.SilentMarker) == "" {
		return errors.New("HELPDESK_AGENT_SILENT_MARKER must not be blank")
	}
	if c.Model.MaxTokens < 1 {
		return fmt.Errorf("HELPDESK_MODEL_MAX_TOKENS must be >= 1, got %d", c.Model.MaxTokens)
	}
	if c.Model.InputPricePerMTok < 0 || c.Model.OutputPricePerMTok < 0 {
		return errors.New("HELPDESK_MODEL_*_PRICE_PER_MTOK must not be negative")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("HELPDESK_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("HELPDESK_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Admin.TokenTTL <= 0 {
		return fmt.Errorf("HELPDESK_ADMIN_TOKEN_TTL must be positive, got %s", c.Admin.TokenTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("HELPDESK_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("HELPDESK_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.RateLimit.SlackRPS <= 0 || c.RateLimit.APIRPS <= 0 {
		return errors.New("HELPDESK_RATE_LIMIT_*_RPS must be positive")
	}
	if c.RateLimit.SlackBurst < 1 || c.RateLimit.APIBurst < 1 {
		return errors.New("HELPDESK_RATE_LIMIT_*_BURST must be >= 1")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// parser collects the first conversion error so Load can read every
// variable in one expression.
type parser struct {
	err error
}

func (p *parser) getInt(key string, fallback int) int {
	n, err := getEnvInt(key, fallback)
	p.keep(err)
	return n
}

func (p *parser) getBool(key string, fallback bool) bool {
	b, err := getEnvBool(key, fallback)
	p.keep(err)
	return b
}

func (p *parser) getFloat(key string, fallback float64) float64 {
	f, err := getEnvFloat(key, fallback)
	p.keep(err)
	return f
}

func (p *parser) getDuration(key string, fallback time.Duration) time.Duration {
	d, err := getEnvDuration(key, fallback)
	p.keep(err)
	return d
}

func (p *parser) keep(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
