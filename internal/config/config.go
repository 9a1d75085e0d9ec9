package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the static application configuration: venue network, the
// known symbol table, default view parameters and the UI server settings.
type Config struct {
	Network string        `yaml:"network"`
	Symbols []string      `yaml:"symbols"`
	Book    BookConfig    `yaml:"book"`
	Ladder  LadderConfig  `yaml:"ladder"`
	Stream  StreamConfig  `yaml:"stream"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// BookConfig holds default view parameters.
type BookConfig struct {
	Symbol   string `yaml:"symbol"`
	SigFigs  int    `yaml:"sig_figs"`
	Currency string `yaml:"currency"`
}

// LadderConfig holds projection defaults.
type LadderConfig struct {
	Levels int `yaml:"levels"`
}

// StreamConfig holds venue connection settings.
type StreamConfig struct {
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
	PrimeViaRest bool          `yaml:"prime_via_rest"`
}

// ServerConfig holds the UI websocket server settings.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	PushInterval time.Duration `yaml:"push_interval"`
}

// LoggingConfig holds log output settings. An empty File logs to stdout.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Network: "mainnet",
		Symbols: []string{"BTC", "ETH"},
		Book: BookConfig{
			Symbol:   "BTC",
			SigFigs:  3,
			Currency: "native",
		},
		Ladder: LadderConfig{
			Levels: 12,
		},
		Stream: StreamConfig{
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
			PrimeViaRest: true,
		},
		Server: ServerConfig{
			Listen:       ":8086",
			PushInterval: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads a yaml file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("cannot parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the rest of the system cannot run with.
func (c Config) Validate() error {
	if c.Network != "mainnet" && c.Network != "testnet" {
		return fmt.Errorf("unknown network %q", c.Network)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols list is empty")
	}
	if !c.KnownSymbol(c.Book.Symbol) {
		return fmt.Errorf("default symbol %q not in symbols list", c.Book.Symbol)
	}
	if c.Ladder.Levels <= 0 {
		return fmt.Errorf("ladder levels must be positive")
	}
	return nil
}

// KnownSymbol reports whether the coin is in the configured symbol table.
func (c Config) KnownSymbol(coin string) bool {
	for _, s := range c.Symbols {
		if s == coin {
			return true
		}
	}
	return false
}
