// Package kafka forwards orchestration snapshots to a Kafka topic so external
// dashboards can follow a run.
package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
)

// Config contains the settings needed to reach the brokers and the snapshot topic.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string

	// ConnectTimeout bounds how long NewProducer keeps retrying. Zero uses 1 minute.
	ConnectTimeout time.Duration
}

// Validate checks that the config can produce a working publisher.
func (c Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("at least one broker is required"))
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	return errors.Join(errs...)
}

func newSaramaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Version = sarama.V3_6_0_0
	return config
}

// NewProducer connects a synchronous producer, retrying with exponential backoff while
// the brokers are unavailable.
func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxElapsedTime = time.Minute
	if cfg.ConnectTimeout > 0 {
		expBackoff.MaxElapsedTime = cfg.ConnectTimeout
	}

	var producer sarama.SyncProducer
	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg.ClientID))
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to kafka after retries: %w", err)
	}
	return producer, nil
}
