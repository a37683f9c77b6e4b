package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// Username is the bot username without '@'; used to filter "/cmd@other_bot" in groups.
	Username string `yaml:"username" envconfig:"TELEGRAM_BOT_USERNAME"`
	RunMode  string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// APIURL overrides the Bot API server; empty -> api.telegram.org
	APIURL string `yaml:"api_url" envconfig:"TELEGRAM_API_URL"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// Workers bounds concurrent update handling in long-poll mode; 0 -> default
	Workers int `yaml:"workers" envconfig:"TELEGRAM_WORKERS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path        string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
	// DispatchTimeoutSeconds caps the handling of one webhook update; 0 -> default
	DispatchTimeoutSeconds int `yaml:"dispatch_timeout_seconds" envconfig:"WEBHOOK_DISPATCH_TIMEOUT_SECONDS"`
}

// ChartImgConfig configures the chart-img.com TradingView client.
type ChartImgConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"CHART_IMG_BASE_URL"`
	APIKey         string `yaml:"api_key" envconfig:"CHART_IMG_API_KEY"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"CHART_IMG_TIMEOUT_SECONDS"`
}

// QueryConfig mirrors chart.Query in YAML form.
type QueryConfig struct {
	Symbol   string   `yaml:"symbol"`
	Interval string   `yaml:"interval"`
	Studies  []string `yaml:"studies"`
	Style    string   `yaml:"style"`
}

// ShortcutConfig is one button of the symbol-selection rows.
type ShortcutConfig struct {
	Text    string   `yaml:"text"`
	Symbol  string   `yaml:"symbol"`
	Studies []string `yaml:"studies"`
	Style   string   `yaml:"style"`
}

// KindConfig holds the defaults, interval row and shortcut rows of one chart kind.
type KindConfig struct {
	Default   QueryConfig        `yaml:"default"`
	Intervals []string           `yaml:"intervals"`
	Inputs    [][]ShortcutConfig `yaml:"inputs"`
}

// MessagesConfig contains user-facing message templates.
type MessagesConfig struct {
	Start     string `yaml:"start"`
	Example   string `yaml:"example"`
	Invalid   string `yaml:"invalid"`
	RateLimit string `yaml:"rate_limit"`
	Error     string `yaml:"error"`
}

// CommandConfig is one entry of the Telegram command menu.
type CommandConfig struct {
	Command     string `yaml:"command"`
	Description string `yaml:"description"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"METRICS_ENABLED"`
	// Listen is used in long-poll mode; webhook mode serves /metrics on the webhook listener.
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// DatabaseConfig holds the optional request journal connection.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"DB_ENABLED"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	DefaultChartImgBaseURL = "https://api.chart-img.com/v1/tradingview"
	DefaultWebhookPath     = "/webhook/telegram"
)

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram TelegramConfig  `yaml:"telegram"`
	Webhook  WebhookConfig   `yaml:"webhook"`
	ChartImg ChartImgConfig  `yaml:"chartimg"`
	Price    KindConfig      `yaml:"price"`
	Chart    KindConfig      `yaml:"chart"`
	Messages MessagesConfig  `yaml:"messages"`
	Commands []CommandConfig `yaml:"commands"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Database DatabaseConfig  `yaml:"database"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	cfg.Telegram.Username = strings.TrimPrefix(strings.TrimSpace(cfg.Telegram.Username), "@")

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.DispatchTimeoutSeconds < 0 {
			return fmt.Errorf("webhook.dispatch_timeout_seconds must be >= 0")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.Webhook.Path) == "" {
		cfg.Webhook.Path = DefaultWebhookPath
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		cfg.Webhook.Path = "/" + cfg.Webhook.Path
	}

	if strings.TrimSpace(cfg.ChartImg.APIKey) == "" {
		return fmt.Errorf("chartimg.api_key is required")
	}
	if strings.TrimSpace(cfg.ChartImg.BaseURL) == "" {
		cfg.ChartImg.BaseURL = DefaultChartImgBaseURL
	}
	cfg.ChartImg.BaseURL = strings.TrimRight(cfg.ChartImg.BaseURL, "/")
	if cfg.ChartImg.TimeoutSeconds < 0 {
		return fmt.Errorf("chartimg.timeout_seconds must be >= 0")
	}

	if err := normalizeKind("price", &cfg.Price); err != nil {
		return err
	}
	if err := normalizeKind("chart", &cfg.Chart); err != nil {
		return err
	}
	normalizeMessages(&cfg.Messages)

	for i, c := range cfg.Commands {
		name := strings.TrimPrefix(strings.TrimSpace(c.Command), "/")
		if name == "" || strings.TrimSpace(c.Description) == "" {
			return fmt.Errorf("commands[%d]: command and description are required", i)
		}
		cfg.Commands[i].Command = name
	}

	if cfg.Database.Enabled {
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required when database.enabled is true")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = "migrations"
		}
	}
	return nil
}

func normalizeKind(name string, k *KindConfig) error {
	k.Default.Symbol = strings.ToUpper(strings.TrimSpace(k.Default.Symbol))
	k.Default.Interval = strings.TrimSpace(k.Default.Interval)
	if k.Default.Symbol == "" {
		return fmt.Errorf("%s.default.symbol is required", name)
	}
	if k.Default.Interval == "" {
		return fmt.Errorf("%s.default.interval is required", name)
	}
	if len(k.Intervals) == 0 {
		return fmt.Errorf("%s.intervals must not be empty", name)
	}
	for i, row := range k.Inputs {
		for j, s := range row {
			if strings.TrimSpace(s.Symbol) == "" {
				return fmt.Errorf("%s.inputs[%d][%d].symbol is required", name, i, j)
			}
			if strings.TrimSpace(s.Text) == "" {
				k.Inputs[i][j].Text = s.Symbol
			}
		}
	}
	return nil
}

func normalizeMessages(m *MessagesConfig) {
	if m.Invalid == "" {
		m.Invalid = "Invalid command or input."
	}
	if m.RateLimit == "" {
		m.RateLimit = "Too many requests, please try again later."
	}
	if m.Error == "" {
		m.Error = "Something went wrong, please try again later."
	}
	if m.Start == "" {
		m.Start = "Hi! Send /price or /chart to get a TradingView chart."
	}
	if m.Example == "" {
		m.Example = "/price BINANCE:BTCUSDT 1D\n/chart BINANCE:ETHUSDT 4h RSI;MACD candle"
	}
}
