package program

import "context"

// ConfigStore loads and saves the singleton program configuration.
type ConfigStore interface {
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}
