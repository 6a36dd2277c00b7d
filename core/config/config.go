package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// ModeWeb serves only the web chat JSON API.
	ModeWeb = "web"
	// ModeTelegram runs only the Telegram bot.
	ModeTelegram = "telegram"
	// ModeHybrid runs the web API and the Telegram bot over one controller.
	ModeHybrid = "hybrid"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	// DriverPostgres selects the lib/pq backed store.
	DriverPostgres = "postgres"
	// DriverSQLite selects the modernc.org/sqlite backed store.
	DriverSQLite = "sqlite"
)

const (
	// ProviderOpenAI uses the OpenAI chat completion API.
	ProviderOpenAI = "openai"
	// ProviderAnthropic uses the Anthropic messages API.
	ProviderAnthropic = "anthropic"
	// ProviderOllama uses a local Ollama server.
	ProviderOllama = "ollama"
)

// AppConfig selects which delivery adapters run.
type AppConfig struct {
	Mode string `yaml:"mode" envconfig:"APP_MODE"`
}

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	// AdminID receives manager notifications when set.
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies Telegram webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// HTTPConfig configures the web chat API server.
type HTTPConfig struct {
	Listen             string   `yaml:"listen" envconfig:"HTTP_LISTEN"`
	AllowedOrigins     []string `yaml:"allowed_origins" envconfig:"HTTP_ALLOWED_ORIGINS"`
	ReadTimeoutSeconds int      `yaml:"read_timeout_seconds" envconfig:"HTTP_READ_TIMEOUT_SECONDS"`
}

// LoggingConfig controls the structured logger.
// File and ErrorsFile are created under Dir; either is skipped when empty.
type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT"`
	Dir        string `yaml:"dir" envconfig:"LOG_DIR"`
	File       string `yaml:"file" envconfig:"LOG_FILE"`
	ErrorsFile string `yaml:"errors_file" envconfig:"LOG_ERRORS_FILE"`
	// Profile selects KV output for "dev" or "debug" when Format is unset.
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for Telegram rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// Path is the database file used by the sqlite driver.
	Path string `yaml:"path" envconfig:"DB_PATH"`
}

// AIConfig configures the language model used in the free dialog stage.
type AIConfig struct {
	Provider       string  `yaml:"provider" envconfig:"AI_PROVIDER"`
	Model          string  `yaml:"model" envconfig:"AI_MODEL"`
	APIKey         string  `yaml:"api_key" envconfig:"AI_API_KEY"`
	BaseURL        string  `yaml:"base_url" envconfig:"AI_BASE_URL"`
	OllamaHost     string  `yaml:"ollama_host" envconfig:"OLLAMA_HOST"`
	TimeoutSeconds int     `yaml:"timeout_seconds" envconfig:"AI_TIMEOUT_SECONDS"`
	MaxTokens      int     `yaml:"max_tokens" envconfig:"AI_MAX_TOKENS"`
	Temperature    float64 `yaml:"temperature" envconfig:"AI_TEMPERATURE"`
}

// CRMConfig configures the Bitrix24 inbound webhook.
// An empty WebhookURL disables CRM sync.
type CRMConfig struct {
	WebhookURL     string `yaml:"webhook_url" envconfig:"BITRIX24_WEBHOOK_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"CRM_TIMEOUT_SECONDS"`
	AssignedByID   int    `yaml:"assigned_by_id" envconfig:"CRM_ASSIGNED_BY_ID"`
	CategoryID     int    `yaml:"category_id" envconfig:"CRM_CATEGORY_ID"`
	TypeID         string `yaml:"type_id" envconfig:"CRM_TYPE_ID"`
}

// ConversationConfig tunes the scripted dialog.
type ConversationConfig struct {
	// HistoryLimit bounds the messages replayed to the language model.
	HistoryLimit int `yaml:"history_limit" envconfig:"CONVERSATION_HISTORY_LIMIT"`
	// TranscriptLimit bounds the messages copied into CRM comments.
	TranscriptLimit int    `yaml:"transcript_limit" envconfig:"CONVERSATION_TRANSCRIPT_LIMIT"`
	PaymentURL      string `yaml:"payment_url" envconfig:"PAYMENT_URL"`
}

// Config aggregates the whole process configuration.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Database     DatabaseConfig     `yaml:"database"`
	AI           AIConfig           `yaml:"ai"`
	CRM          CRMConfig          `yaml:"crm"`
	Conversation ConversationConfig `yaml:"conversation"`
}

// Override adjusts a loaded configuration before it is normalized.
type Override func(*Config)

// WithMode forces app.mode, as selected by the CLI subcommand.
func WithMode(mode string) Override {
	return func(cfg *Config) {
		if mode != "" {
			cfg.App.Mode = mode
		}
	}
}

// Load layers the YAML file at path, then the environment, then overrides,
// and normalizes the result. A missing file is fine: the process can be
// configured from the environment alone.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := new(Config)
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	for _, apply := range overrides {
		if apply != nil {
			apply(cfg)
		}
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Normalize performs validation of required configuration fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.App.Mode))
	if mode == "" {
		mode = ModeHybrid
	}
	switch mode {
	case ModeWeb, ModeTelegram, ModeHybrid:
	default:
		return fmt.Errorf("invalid app.mode %q; allowed: web, telegram, hybrid", cfg.App.Mode)
	}
	cfg.App.Mode = mode

	if cfg.TelegramEnabled() {
		if err := normalizeTelegram(cfg); err != nil {
			return err
		}
	}
	if cfg.WebEnabled() {
		if strings.TrimSpace(cfg.HTTP.Listen) == "" {
			cfg.HTTP.Listen = ":8080"
		}
		if cfg.HTTP.ReadTimeoutSeconds <= 0 {
			cfg.HTTP.ReadTimeoutSeconds = 30
		}
		if len(cfg.HTTP.AllowedOrigins) == 0 {
			cfg.HTTP.AllowedOrigins = []string{"*"}
		}
	}

	if err := normalizeDatabase(&cfg.Database); err != nil {
		return err
	}
	if err := normalizeAI(&cfg.AI); err != nil {
		return err
	}

	cfg.CRM.WebhookURL = strings.TrimRight(strings.TrimSpace(cfg.CRM.WebhookURL), "/")
	if cfg.CRM.TimeoutSeconds <= 0 {
		cfg.CRM.TimeoutSeconds = 10
	}
	if cfg.CRM.AssignedByID <= 0 {
		cfg.CRM.AssignedByID = 1
	}
	if strings.TrimSpace(cfg.CRM.TypeID) == "" {
		cfg.CRM.TypeID = "GOODS"
	}

	if cfg.Conversation.HistoryLimit <= 0 {
		cfg.Conversation.HistoryLimit = 10
	}
	if cfg.Conversation.TranscriptLimit <= 0 {
		cfg.Conversation.TranscriptLimit = 5
	}
	if strings.TrimSpace(cfg.Conversation.PaymentURL) == "" {
		cfg.Conversation.PaymentURL = "https://payment.example.com/checkout"
	}
	return nil
}

func normalizeTelegram(cfg *Config) error {
	tg := &cfg.Telegram
	if tg.Token == "" {
		return fmt.Errorf("telegram token is required in %s mode", cfg.App.Mode)
	}

	switch mode := strings.ToLower(strings.TrimSpace(tg.RunMode)); mode {
	case "", "polling", RunModeLongpoll:
		if tg.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds cannot be negative")
		}
		tg.RunMode = RunModeLongpoll
	case RunModeWebhook:
		hook := cfg.Webhook
		var missing []string
		if strings.TrimSpace(hook.URL) == "" {
			missing = append(missing, "webhook.url")
		}
		if strings.TrimSpace(hook.Listen) == "" {
			missing = append(missing, "webhook.listen")
		}
		if hook.Port <= 0 {
			missing = append(missing, "webhook.port")
		}
		if len(missing) > 0 {
			return fmt.Errorf("webhook run mode needs %s", strings.Join(missing, ", "))
		}
		tg.RunMode = RunModeWebhook
	default:
		return fmt.Errorf("telegram.run_mode %q is neither webhook nor longpoll", tg.RunMode)
	}

	kinds := cfg.RateLimit.ExcludeUpdates
	for i := range kinds {
		kind := strings.ToLower(strings.TrimSpace(kinds[i]))
		if kind != "" && kind != UpdateCallback && kind != UpdateMessage {
			return fmt.Errorf("rate_limit.exclude_updates: unknown update kind %q", kinds[i])
		}
		kinds[i] = kind
	}
	return nil
}

func normalizeDatabase(db *DatabaseConfig) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == "" {
		driver = DriverPostgres
	}
	switch driver {
	case DriverPostgres:
		if db.Host == "" {
			db.Host = "localhost"
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		if db.Name == "" {
			return fmt.Errorf("database.name is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(db.Path) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite", db.Driver)
	}
	db.Driver = driver
	if db.MaxConnections <= 0 {
		db.MaxConnections = 10
	}
	return nil
}

func normalizeAI(ai *AIConfig) error {
	provider := strings.ToLower(strings.TrimSpace(ai.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	switch provider {
	case ProviderOpenAI:
		if ai.Model == "" {
			ai.Model = "gpt-4o"
		}
	case ProviderAnthropic:
		if ai.Model == "" {
			ai.Model = "claude-3-5-sonnet-latest"
		}
	case ProviderOllama:
		if ai.Model == "" {
			ai.Model = "llama3.1"
		}
		if ai.OllamaHost == "" {
			ai.OllamaHost = "http://localhost:11434"
		}
	default:
		return fmt.Errorf("invalid ai.provider %q; allowed: openai, anthropic, ollama", ai.Provider)
	}
	ai.Provider = provider
	if ai.TimeoutSeconds <= 0 {
		ai.TimeoutSeconds = 30
	}
	return nil
}

// TelegramEnabled reports whether the Telegram adapter runs in the selected mode.
func (c *Config) TelegramEnabled() bool {
	return c.App.Mode == ModeTelegram || c.App.Mode == ModeHybrid
}

// WebEnabled reports whether the web API runs in the selected mode.
func (c *Config) WebEnabled() bool {
	return c.App.Mode == ModeWeb || c.App.Mode == ModeHybrid
}

// CRMEnabled reports whether a Bitrix24 webhook is configured.
func (c *Config) CRMEnabled() bool {
	return c.CRM.WebhookURL != ""
}
