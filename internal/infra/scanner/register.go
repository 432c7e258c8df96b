package scanner

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/domain/task"
	"github.com/ahrav/recon-armada/pkg/common"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// Settings tunes the built-in capabilities.
type Settings struct {
	HTTPTimeout     time.Duration
	DialTimeout     time.Duration
	ScanWorkers     int
	ProbesPerSecond float64
	ProbeBurst      int
}

// Register binds port-scan, dir-enum and secret-scan into reg.
func Register(
	reg *capability.Registry,
	s Settings,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics ScannerMetrics,
) error {
	client := NewHTTPClient(s.HTTPTimeout)

	portOpts := []PortScanOption{WithPortRateLimiter(common.NewRateLimiter(s.ProbesPerSecond, s.ProbeBurst))}
	if s.DialTimeout > 0 {
		portOpts = append(portOpts, WithDialTimeout(s.DialTimeout))
	}
	if s.ScanWorkers > 0 {
		portOpts = append(portOpts, WithScanWorkers(s.ScanWorkers))
	}
	reg.Register(task.TypePortScan, NewPortScanner(log, tracer, metrics, portOpts...))

	reg.Register(task.TypeDirEnum, NewDirEnumerator(
		client,
		common.NewRateLimiter(s.ProbesPerSecond, s.ProbeBurst),
		log, tracer, metrics,
	))

	secrets, err := NewGitleaks(client, log, tracer, metrics)
	if err != nil {
		return fmt.Errorf("creating secret-scan capability: %w", err)
	}
	reg.Register(task.TypeSecretScan, secrets)

	return nil
}
