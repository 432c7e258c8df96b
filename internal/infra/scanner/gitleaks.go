// Package scanner binds the concrete scanning tools behind the capability interface:
// a TCP connect port scanner, an HTTP directory enumerator and a gitleaks backed secret
// scanner for fetched pages.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/domain/task"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ capability.Capability = (*Gitleaks)(nil)

const (
	// ParamPaths lists the comma separated paths fetched by secret-scan. Defaults to "/".
	ParamPaths = "paths"

	// FindingSecret prefixes every secret-scan finding.
	FindingSecret = "Secret detected"

	maxPageBytes = 5 << 20
)

// Gitleaks is the secret-scan capability. It fetches pages from the target and runs
// the gitleaks detector over their bodies.
type Gitleaks struct {
	detector *detect.Detector
	client   *http.Client

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics ScannerMetrics
}

// NewGitleaks creates the secret-scan capability with gitleaks' embedded default rules.
func NewGitleaks(client *http.Client, log *logger.Logger, tracer trace.Tracer, metrics ScannerMetrics) (*Gitleaks, error) {
	detector, err := setupGitleaksDetector()
	if err != nil {
		return nil, err
	}

	return &Gitleaks{
		detector: detector,
		client:   client,
		logger:   log.With("component", "scanner.secret_scan"),
		tracer:   tracer,
		metrics:  orNoop(metrics),
	}, nil
}

// setupGitleaksDetector initializes the Gitleaks detector using the embedded default configuration.
func setupGitleaksDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewBufferString(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read embedded config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate ViperConfig to Config: %w", err)
	}

	return detect.NewDetector(cfg), nil
}

// RuleCount reports how many detection rules are loaded.
func (g *Gitleaks) RuleCount() int { return len(g.detector.Config.Rules) }

type pageLeak struct {
	path   string
	ruleID string
	line   int
}

// Invoke fetches each requested path and reports every secret gitleaks detects.
func (g *Gitleaks) Invoke(ctx context.Context, target string, params task.Params) (task.Result, error) {
	base, err := baseURL(target)
	if err != nil {
		return task.ErrorResult(err.Error()), nil
	}

	paths := splitList(params[ParamPaths])
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	ctx, span := g.tracer.Start(ctx, "scanner.secret_scan.invoke",
		trace.WithAttributes(
			attribute.String("base_url", base.String()),
			attribute.Int("paths", len(paths)),
			attribute.Int("num_rules", g.RuleCount()),
		))
	defer span.End()

	start := time.Now()
	defer func() { g.metrics.ObserveScanDuration(ctx, string(task.TypeSecretScan), time.Since(start)) }()

	var (
		leaks   []pageLeak
		fetched int
		lastErr error
	)
	for _, p := range paths {
		body, err := g.fetch(ctx, base.JoinPath(p).String())
		g.metrics.IncProbes(ctx, string(task.TypeSecretScan), 1)
		if err != nil {
			if ctx.Err() != nil {
				span.RecordError(ctx.Err())
				span.SetStatus(codes.Error, "secret scan interrupted")
				return task.Result{}, fmt.Errorf("secret scan of %s interrupted: %w", base, ctx.Err())
			}
			g.logger.Debug(ctx, "page fetch failed", "path", p, "error", err)
			lastErr = err
			continue
		}
		fetched++

		for _, f := range g.detector.DetectString(body) {
			leaks = append(leaks, pageLeak{path: "/" + strings.TrimPrefix(p, "/"), ruleID: f.RuleID, line: f.StartLine + 1})
		}
	}

	if fetched == 0 && lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "target unreachable")
		return task.ErrorResult(fmt.Sprintf("target unreachable: %v", lastErr)), nil
	}

	g.metrics.IncFindings(ctx, string(task.TypeSecretScan), len(leaks))
	span.SetAttributes(attribute.Int("findings.count", len(leaks)))
	g.logger.Info(ctx, "secret scan finished", "base_url", base.String(), "pages", fetched, "num_findings", len(leaks))

	return secretScanResult(base.String(), fetched, leaks), nil
}

func (g *Gitleaks) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	return string(data), nil
}

func secretScanResult(base string, pages int, leaks []pageLeak) task.Result {
	var b strings.Builder
	fmt.Fprintf(&b, "Secret scan of %s (%d page(s))\n", base, pages)

	findings := make([]string, 0, len(leaks))
	for _, l := range leaks {
		fmt.Fprintf(&b, "%s: %s (line %d)\n", l.path, l.ruleID, l.line)
		findings = append(findings, fmt.Sprintf("%s: %s at %s", FindingSecret, l.ruleID, l.path))
	}
	if len(leaks) == 0 {
		b.WriteString("No secrets found\n")
	}
	return task.Result{Output: b.String(), Findings: findings}
}
