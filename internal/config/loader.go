package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations.
type Loader interface {
	// Load retrieves, parses and validates the configuration.
	Load(ctx context.Context) (*Config, error)
}

// EnvPrefix prefixes every environment override, e.g. RECON_ORCHESTRATION_MAX_RETRIES.
const EnvPrefix = "RECON"

var _ Loader = (*ViperLoader)(nil)

// ViperLoader layers defaults, an optional config file and environment variables.
type ViperLoader struct {
	path string
}

// NewViperLoader creates a loader. An empty path skips the config file.
func NewViperLoader(path string) *ViperLoader { return &ViperLoader{path: path} }

// Load implements Loader.
func (l *ViperLoader) Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found: %w", l.path, err)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestration.max_retries", 3)
	v.SetDefault("orchestration.default_target", "example.com")
	v.SetDefault("orchestration.default_ports", "1-1000")
	v.SetDefault("orchestration.default_wordlist", "")
	v.SetDefault("orchestration.capability_timeout", "5m")
	v.SetDefault("orchestration.retry_delay", "0s")

	v.SetDefault("scope.domains", []string{})
	v.SetDefault("scope.ip_ranges", []string{})
	v.SetDefault("scope.strict_hosts", false)

	v.SetDefault("scanner.http_timeout", "10s")
	v.SetDefault("scanner.dial_timeout", "500ms")
	v.SetDefault("scanner.workers", 64)
	v.SetDefault("scanner.probes_per_second", 0)
	v.SetDefault("scanner.probe_burst", 1)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "recon.snapshots")
	v.SetDefault("kafka.client_id", "recon-orchestrator")
	v.SetDefault("kafka.connect_timeout", "1m")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "recon-orchestrator")
	v.SetDefault("telemetry.probability", 1.0)
	v.SetDefault("telemetry.insecure", true)

	v.SetDefault("log.level", "info")

	v.SetDefault("rules_file", "")
}
