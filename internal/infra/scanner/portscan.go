package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/domain/task"
	"github.com/ahrav/recon-armada/pkg/common"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ capability.Capability = (*PortScanner)(nil)

const (
	// ParamPorts selects the ports probed by port-scan, e.g. "1-1000" or "22,80,443".
	ParamPorts = "ports"

	defaultPortRange   = "1-1000"
	defaultDialTimeout = 500 * time.Millisecond
	defaultScanWorkers = 64

	// FindingOpenPort prefixes every port-scan finding.
	FindingOpenPort = "Open port detected"
)

var ErrInvalidPorts = errors.New("invalid port specification")

var wellKnownServices = map[int]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "domain",
	80:   "http",
	110:  "pop3",
	143:  "imap",
	443:  "https",
	445:  "microsoft-ds",
	3306: "mysql",
	3389: "ms-wbt-server",
	5432: "postgresql",
	6379: "redis",
	8000: "http-alt",
	8080: "http-proxy",
	8443: "https-alt",
}

func serviceName(port int) string {
	if s, ok := wellKnownServices[port]; ok {
		return s
	}
	return "unknown"
}

// ParsePorts parses a port list made of single ports and inclusive ranges separated by
// commas. The result is sorted and free of duplicates.
func ParsePorts(spec string) ([]int, error) {
	items := splitList(spec)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPorts)
	}

	var ports []int
	for _, item := range items {
		lo, hi, isRange := strings.Cut(item, "-")
		start, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parsePort(hi); err != nil {
				return nil, err
			}
		}
		if end < start {
			return nil, fmt.Errorf("%w: reversed range %q", ErrInvalidPorts, item)
		}
		for p := start; p <= end; p++ {
			ports = append(ports, p)
		}
	}

	slices.Sort(ports)
	return slices.Compact(ports), nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPorts, s)
	}
	return p, nil
}

// PortScanner is the port-scan capability: a TCP connect scan of the target host.
type PortScanner struct {
	dialer  *net.Dialer
	workers int
	limiter *common.RateLimiter

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics ScannerMetrics
}

// PortScanOption configures a PortScanner.
type PortScanOption func(*PortScanner)

// WithDialTimeout bounds every connect probe.
func WithDialTimeout(d time.Duration) PortScanOption {
	return func(s *PortScanner) { s.dialer.Timeout = d }
}

// WithScanWorkers bounds the number of concurrent probes.
func WithScanWorkers(n int) PortScanOption {
	return func(s *PortScanner) { s.workers = max(n, 1) }
}

// WithPortRateLimiter paces connect probes.
func WithPortRateLimiter(rl *common.RateLimiter) PortScanOption {
	return func(s *PortScanner) { s.limiter = rl }
}

// NewPortScanner creates the port-scan capability.
func NewPortScanner(log *logger.Logger, tracer trace.Tracer, metrics ScannerMetrics, opts ...PortScanOption) *PortScanner {
	s := &PortScanner{
		dialer:  &net.Dialer{Timeout: defaultDialTimeout},
		workers: defaultScanWorkers,
		logger:  log.With("component", "scanner.port_scan"),
		tracer:  tracer,
		metrics: orNoop(metrics),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invoke probes every requested port on the target host and reports the open ones.
func (s *PortScanner) Invoke(ctx context.Context, target string, params task.Params) (task.Result, error) {
	host := hostOf(target)
	if host == "" {
		return task.ErrorResult("port-scan requires a target host"), nil
	}

	spec := params[ParamPorts]
	if spec == "" {
		spec = defaultPortRange
	}
	ports, err := ParsePorts(spec)
	if err != nil {
		return task.ErrorResult(err.Error()), nil
	}

	ctx, span := s.tracer.Start(ctx, "scanner.port_scan.invoke",
		trace.WithAttributes(
			attribute.String("host", host),
			attribute.Int("ports", len(ports)),
		))
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveScanDuration(ctx, string(task.TypePortScan), time.Since(start)) }()

	open, err := s.scan(ctx, host, ports)
	s.metrics.IncProbes(ctx, string(task.TypePortScan), len(ports))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "port scan interrupted")
		return task.Result{}, fmt.Errorf("port scan of %s interrupted: %w", host, err)
	}

	s.metrics.IncFindings(ctx, string(task.TypePortScan), len(open))
	span.SetAttributes(attribute.Int("open_ports", len(open)))
	s.logger.Debug(ctx, "port scan finished", "host", host, "scanned", len(ports), "open", len(open))

	return portScanResult(host, len(ports), open), nil
}

func (s *PortScanner) scan(ctx context.Context, host string, ports []int) ([]int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var (
		mu   sync.Mutex
		open []int
	)
	for _, port := range ports {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			conn, err := s.dialer.DialContext(gctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err != nil {
				// Refused and filtered ports are both reported as closed.
				return nil
			}
			_ = conn.Close()

			mu.Lock()
			open = append(open, port)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.Sort(open)
	return open, nil
}

func portScanResult(host string, scanned int, open []int) task.Result {
	var b strings.Builder
	fmt.Fprintf(&b, "Port scan report for %s\n", host)

	findings := make([]string, 0, len(open))
	if len(open) == 0 {
		fmt.Fprintf(&b, "All %d scanned ports on %s are closed\n", scanned, host)
		return task.Result{Output: b.String(), Findings: findings}
	}

	fmt.Fprintf(&b, "%-8s %-5s %s\n", "PORT", "STATE", "SERVICE")
	for _, p := range open {
		proto := strconv.Itoa(p) + "/tcp"
		fmt.Fprintf(&b, "%-8s %-5s %s\n", proto, "open", serviceName(p))
		findings = append(findings, fmt.Sprintf("%s: %s (%s)", FindingOpenPort, proto, serviceName(p)))
	}
	return task.Result{Output: b.String(), Findings: findings}
}
