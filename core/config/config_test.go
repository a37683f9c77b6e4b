package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		ChartImg: ChartImgConfig{APIKey: "key"},
		Price: KindConfig{
			Default:   QueryConfig{Symbol: "binance:btcusdt", Interval: "1D"},
			Intervals: []string{"1D", "1W"},
		},
		Chart: KindConfig{
			Default:   QueryConfig{Symbol: "BINANCE:ETHUSDT", Interval: "4h"},
			Intervals: []string{"1h", "4h"},
		},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.ChartImg.BaseURL != DefaultChartImgBaseURL {
		t.Fatalf("base url = %q", cfg.ChartImg.BaseURL)
	}
	if cfg.Webhook.Path != DefaultWebhookPath {
		t.Fatalf("webhook path = %q", cfg.Webhook.Path)
	}
	if cfg.Price.Default.Symbol != "BINANCE:BTCUSDT" {
		t.Fatalf("default symbol not upper-cased: %q", cfg.Price.Default.Symbol)
	}
	if cfg.Messages.RateLimit == "" || cfg.Messages.Invalid == "" || cfg.Messages.Error == "" {
		t.Fatalf("message defaults not applied: %+v", cfg.Messages)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"missing token":     func(c *Config) { c.Telegram.Token = "" },
		"missing api key":   func(c *Config) { c.ChartImg.APIKey = "" },
		"bad run mode":      func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" },
		"webhook no listen": func(c *Config) { c.Telegram.RunMode = "webhook"; c.Webhook.Port = 8080 },
		"webhook no port":   func(c *Config) { c.Telegram.RunMode = "webhook"; c.Webhook.Listen = "0.0.0.0" },
		"no intervals":      func(c *Config) { c.Chart.Intervals = nil },
		"no default symbol": func(c *Config) { c.Price.Default.Symbol = " " },
		"shortcut symbol": func(c *Config) {
			c.Price.Inputs = [][]ShortcutConfig{{{Text: "BTC"}}}
		},
		"command description": func(c *Config) { c.Commands = []CommandConfig{{Command: "/price"}} },
		"db without host":     func(c *Config) { c.Database = DatabaseConfig{Enabled: true, Name: "bot"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			if err := Normalize(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNormalizeCommandsAndShortcuts(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Username = "@ChartBot"
	cfg.Commands = []CommandConfig{{Command: "/price", Description: "Price chart"}}
	cfg.Chart.Inputs = [][]ShortcutConfig{{{Symbol: "NASDAQ:AAPL"}}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Commands[0].Command != "price" {
		t.Fatalf("command = %q, want price", cfg.Commands[0].Command)
	}
	if cfg.Chart.Inputs[0][0].Text != "NASDAQ:AAPL" {
		t.Fatalf("shortcut text fallback = %q", cfg.Chart.Inputs[0][0].Text)
	}
	if cfg.Telegram.Username != "ChartBot" {
		t.Fatalf("username = %q", cfg.Telegram.Username)
	}
}

func TestLoadOverlaysEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := strings.Join([]string{
		"telegram:",
		"  token: from-file",
		"chartimg:",
		"  api_key: file-key",
		"price:",
		"  default: {symbol: BINANCE:BTCUSDT, interval: 1D}",
		"  intervals: [1D, 1W]",
		"chart:",
		"  default: {symbol: BINANCE:BTCUSDT, interval: 4h, studies: [RSI], style: candle}",
		"  intervals: [1h, 4h]",
	}, "\n")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.ChartImg.APIKey != "file-key" {
		t.Fatalf("api key = %q", cfg.ChartImg.APIKey)
	}
	if got := cfg.Chart.Default.Studies; len(got) != 1 || got[0] != "RSI" {
		t.Fatalf("chart studies = %v", got)
	}
}
