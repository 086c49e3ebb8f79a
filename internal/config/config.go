package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the configuration for the exchange process
type Config struct {
	HTTPAddr    string   `env:"HTTP_ADDR" envDefault:":8088"`
	Instruments []string `env:"INSTRUMENTS" envDefault:"FAKE" envSeparator:","`
	TickSize    string   `env:"TICK_SIZE" envDefault:"0.01"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimit   int      `env:"RATE_LIMIT" envDefault:"0"` // requests per minute per IP, 0 disables

	RetiredWindow int `env:"RETIRED_WINDOW" envDefault:"65536"`
	TradeHistory  int `env:"TRADE_HISTORY" envDefault:"1024"`
	// MaxQuantity bounds one order's original quantity, in lots.
	MaxQuantity int64 `env:"MAX_QUANTITY" envDefault:"1000000000000"`

	Persist PersistConfig
	Kafka   KafkaConfig `envPrefix:"KAFKA_"`
}

// PersistConfig selects the mirrors. Empty paths disable a mirror.
type PersistConfig struct {
	SQLitePath string `env:"SQLITE_PATH" envDefault:"exchange.db"`
	PebbleDir  string `env:"PEBBLE_DIR"`
	QueueSize  int    `env:"PERSIST_QUEUE" envDefault:"4096"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"exchange.events"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.Instruments) == 0 {
		return Config{}, errors.New("INSTRUMENTS must name at least one instrument")
	}
	if cfg.MaxQuantity <= 0 {
		return Config{}, errors.New("MAX_QUANTITY must be positive")
	}
	return cfg, nil
}
