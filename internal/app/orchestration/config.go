package orchestration

import (
	"errors"
	"fmt"
	"time"
)

// Default values applied by DefaultConfig.
const (
	DefaultMaxRetries = 3
	DefaultTarget     = "example.com"
	DefaultPorts      = "1-1000"
)

// Config is supplied at run start and stays fixed for the lifetime of the run.
type Config struct {
	// MaxRetries bounds the per-task retry counter. A task that fails every attempt
	// is invoked MaxRetries+1 times in total.
	MaxRetries int

	// DefaultTarget is used by the planner when an instruction names no target.
	DefaultTarget string

	// DefaultPorts is the port range given to planned port scans.
	DefaultPorts string

	// DefaultWordlist is the wordlist reference given to planned and derived directory
	// enumerations. Empty lets the capability use its built-in list.
	DefaultWordlist string

	// CapabilityTimeout bounds a single invocation. Zero means no timeout. A timeout is
	// a failed attempt subject to the normal retry policy.
	CapabilityTimeout time.Duration

	// RetryDelay is the initial backoff before a retry attempt. Zero retries immediately.
	RetryDelay time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    DefaultMaxRetries,
		DefaultTarget: DefaultTarget,
		DefaultPorts:  DefaultPorts,
	}
}

// Validate checks the configuration for values the loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.DefaultTarget == "" {
		errs = append(errs, errors.New("default target is required"))
	}
	if c.CapabilityTimeout < 0 {
		errs = append(errs, fmt.Errorf("capability timeout must be >= 0, got %s", c.CapabilityTimeout))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must be >= 0, got %s", c.RetryDelay))
	}
	return errors.Join(errs...)
}
