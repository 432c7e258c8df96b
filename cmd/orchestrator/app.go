package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/config"
	"github.com/ahrav/recon-armada/internal/config/fileloader"
	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/kafka"
	"github.com/ahrav/recon-armada/internal/infra/scanner"
	"github.com/ahrav/recon-armada/pkg/common/logger"
	"github.com/ahrav/recon-armada/pkg/common/otel"
)

const serviceName = "recon-orchestrator"

// loadConfig reads the config file named by --config and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewViperLoader(path).Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

// newLogger builds the command logger. Every error record bumps errCount so the run
// summary can report it.
func newLogger(w io.Writer, cfg *config.Config, errCount *atomic.Int64) *logger.Logger {
	hostname, _ := os.Hostname()

	events := logger.Events{
		Error: func(context.Context, logger.Record) { errCount.Add(1) },
	}
	metadata := map[string]string{
		"service":  serviceName,
		"hostname": hostname,
	}
	return logger.NewWithMetadata(w, logger.ParseLevel(cfg.Log.Level), serviceName, otel.GetTraceID, events, metadata)
}

// app holds the collaborators a command needs, built from configuration.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	tracer    trace.Tracer
	meter     metric.MeterProvider
	registry  *capability.Registry
	runner    *orchestration.Runner
	publisher *kafka.SnapshotPublisher

	cleanup []func(context.Context)
}

type appOptions struct {
	rulesFile string
	kafka     bool
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		tracer: noop.NewTracerProvider().Tracer(serviceName),
		meter:  otel.NewMeterProvider(serviceName),
	}

	if cfg.Telemetry.Enabled {
		providers, teardown, err := otel.InitTelemetry(log, cfg.TelemetrySettings())
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		a.cleanup = append(a.cleanup, teardown)
		a.tracer = providers.Tracer.Tracer(serviceName)
		a.meter = providers.Meter
	}

	scanMetrics, err := scanner.NewScannerMetrics(a.meter)
	if err != nil {
		return nil, fmt.Errorf("creating scanner metrics: %w", err)
	}
	a.registry = capability.NewRegistry()
	if err := scanner.Register(a.registry, cfg.ScannerSettings(), log, a.tracer, scanMetrics); err != nil {
		return nil, err
	}

	orchMetrics, err := orchestration.NewOrchestrationMetrics(a.meter)
	if err != nil {
		return nil, fmt.Errorf("creating orchestration metrics: %w", err)
	}
	runnerOpts := []orchestration.Option{
		orchestration.WithTracer(a.tracer),
		orchestration.WithMetrics(orchMetrics),
	}

	rulesFile := cfg.RulesFile
	if opts.rulesFile != "" {
		rulesFile = opts.rulesFile
	}
	if rulesFile != "" {
		ruleOpts, err := loadRules(ctx, rulesFile)
		if err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, ruleOpts...)
	}

	if a.runner, err = orchestration.NewRunner(cfg.OrchestrationSettings(), a.registry, log, runnerOpts...); err != nil {
		return nil, err
	}

	if opts.kafka && cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.KafkaSettings())
		if err != nil {
			return nil, err
		}
		pubMetrics, err := kafka.NewPublisherMetrics(a.meter)
		if err != nil {
			_ = producer.Close()
			return nil, fmt.Errorf("creating publisher metrics: %w", err)
		}
		a.publisher = kafka.NewSnapshotPublisher(producer, cfg.Kafka.Topic, log, a.tracer, pubMetrics)
		a.cleanup = append(a.cleanup, func(ctx context.Context) {
			if err := a.publisher.Close(); err != nil {
				log.Error(ctx, "closing snapshot publisher", "error", err)
			}
		})
		log.Info(ctx, "publishing snapshots to kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	return a, nil
}

func loadRules(ctx context.Context, path string) ([]orchestration.Option, error) {
	rules, err := fileloader.NewFileLoader(path).Load(ctx)
	if err != nil {
		return nil, err
	}

	var opts []orchestration.Option
	expansion, err := rules.ExpansionRules()
	if err != nil {
		return nil, err
	}
	if expansion != nil {
		opts = append(opts, orchestration.WithExpansionRules(expansion))
	}

	classifier, err := rules.Classifier()
	if err != nil {
		return nil, err
	}
	if classifier != nil {
		opts = append(opts, orchestration.WithClassifier(classifier))
	}
	return opts, nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i](ctx)
	}
}
