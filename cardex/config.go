package cardex

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cardexhq/cardex/cardex/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	Server  ServerConfig      `toml:"server"`
	DB      database.DBConfig `toml:"db"`
	Catalog CatalogConfig     `toml:"catalog"`
	Spaces  SpacesConfig      `toml:"spaces"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// SweepInterval is how often the background expiry sweeper runs.
	SweepInterval Duration `toml:"sweep_interval"`
	// SessionTTL bounds how long a bearer token stays valid.
	SessionTTL Duration `toml:"session_ttl"`
}

// Duration accepts "90s", "5m", "72h" style values in the config file.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type CatalogConfig struct {
	// SourceURL is the external card catalog endpoint fetched on first
	// boot and at account creation when the catalog is still empty.
	SourceURL string `toml:"source_url"`
	// PackSize is how many cards a pack opening draws.
	PackSize int `toml:"pack_size"`
	// PackCost is the credit price of one pack.
	PackCost int64 `toml:"pack_cost"`
}

type SpacesConfig struct {
	Key      string `toml:"key"`
	Secret   string `toml:"secret"`
	Region   string `toml:"region"`
	Bucket   string `toml:"bucket"`
	CardRoot string `toml:"cardroot"`
}
