// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific config file when set.
	ConfigFilePath string
	// ConfigDirPath overrides the platform configuration directory when set.
	ConfigDirPath string
}

// Provider loads configuration from explicit options.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, opts LoadOptions) (*Config, error)

type fileProvider struct{}

// NewProvider creates a provider reading configuration files.
func NewProvider() Provider {
	return fileProvider{}
}

// Load calls f.
func (f ProviderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return f(ctx, opts)
}

// Load reads configuration from the requested source.
func (fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := Load(ctx, opts)
	return cfg, err
}
