// Package config loads the orchestrator's configuration from defaults, an optional
// YAML file and RECON_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/domain/scope"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/kafka"
	"github.com/ahrav/recon-armada/internal/infra/scanner"
	"github.com/ahrav/recon-armada/pkg/common/otel"
)

// Config is the top-level configuration.
type Config struct {
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Scope         ScopeConfig         `mapstructure:"scope"`
	Scanner       ScannerConfig       `mapstructure:"scanner"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Log           LogConfig           `mapstructure:"log"`

	// RulesFile optionally points at a YAML file of expansion and classifier rules.
	RulesFile string `mapstructure:"rules_file" validate:"omitempty,file"`
}

// OrchestrationConfig mirrors orchestration.Config.
type OrchestrationConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=100"`
	DefaultTarget     string        `mapstructure:"default_target" validate:"required"`
	DefaultPorts      string        `mapstructure:"default_ports" validate:"required"`
	DefaultWordlist   string        `mapstructure:"default_wordlist"`
	CapabilityTimeout time.Duration `mapstructure:"capability_timeout" validate:"gte=0"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// ScopeConfig is the authorized target set.
type ScopeConfig struct {
	Domains     []string `mapstructure:"domains"`
	IPRanges    []string `mapstructure:"ip_ranges" validate:"dive,cidr|ip"`
	StrictHosts bool     `mapstructure:"strict_hosts"`
}

// ScannerConfig tunes the built-in capabilities.
type ScannerConfig struct {
	HTTPTimeout     time.Duration `mapstructure:"http_timeout" validate:"gte=0"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
	Workers         int           `mapstructure:"workers" validate:"gte=0,lte=1024"`
	ProbesPerSecond float64       `mapstructure:"probes_per_second" validate:"gte=0"`
	ProbeBurst      int           `mapstructure:"probe_burst" validate:"gte=0"`
}

// KafkaConfig enables snapshot publishing.
type KafkaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Brokers        []string      `mapstructure:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic          string        `mapstructure:"topic" validate:"required_if=Enabled true"`
	ClientID       string        `mapstructure:"client_id"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
}

// TelemetryConfig enables OTLP export.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string  `mapstructure:"service_name" validate:"required"`
	Probability float64 `mapstructure:"probability" validate:"gte=0,lte=1"`
	Insecure    bool    `mapstructure:"insecure"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// OrchestrationSettings returns the loop configuration.
func (c *Config) OrchestrationSettings() orchestration.Config {
	o := c.Orchestration
	return orchestration.Config{
		MaxRetries:        o.MaxRetries,
		DefaultTarget:     o.DefaultTarget,
		DefaultPorts:      o.DefaultPorts,
		DefaultWordlist:   o.DefaultWordlist,
		CapabilityTimeout: o.CapabilityTimeout,
		RetryDelay:        o.RetryDelay,
	}
}

// ScopeSettings builds the run scope.
func (c *Config) ScopeSettings() (scope.Scope, error) {
	var opts []scope.Option
	if c.Scope.StrictHosts {
		opts = append(opts, scope.WithStrictHosts())
	}
	return scope.New(c.Scope.Domains, c.Scope.IPRanges, opts...)
}

// ScannerSettings returns the capability tuning.
func (c *Config) ScannerSettings() scanner.Settings {
	s := c.Scanner
	return scanner.Settings{
		HTTPTimeout:     s.HTTPTimeout,
		DialTimeout:     s.DialTimeout,
		ScanWorkers:     s.Workers,
		ProbesPerSecond: s.ProbesPerSecond,
		ProbeBurst:      s.ProbeBurst,
	}
}

// KafkaSettings returns the publisher configuration.
func (c *Config) KafkaSettings() kafka.Config {
	return kafka.Config{
		Brokers:        c.Kafka.Brokers,
		Topic:          c.Kafka.Topic,
		ClientID:       c.Kafka.ClientID,
		ConnectTimeout: c.Kafka.ConnectTimeout,
	}
}

// TelemetrySettings returns the OTLP configuration.
func (c *Config) TelemetrySettings() otel.Config {
	return otel.Config{
		ServiceName:      c.Telemetry.ServiceName,
		ExporterEndpoint: c.Telemetry.Endpoint,
		Probability:      c.Telemetry.Probability,
		InsecureExporter: c.Telemetry.Insecure,
	}
}
