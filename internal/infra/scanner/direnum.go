package scanner

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/domain/task"
	"github.com/ahrav/recon-armada/pkg/common"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ capability.Capability = (*DirEnumerator)(nil)

const (
	// ParamWordlist names a file with one path per line. Empty selects the built-in list.
	ParamWordlist = "wordlist"

	// FindingDirectory prefixes every dir-enum finding.
	FindingDirectory = "Directory found"
)

//go:embed wordlist.txt
var builtinWordlist string

// reportedStatuses are the response codes listed in dir-enum output.
var reportedStatuses = map[int]bool{
	http.StatusOK:                true,
	http.StatusNoContent:         true,
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
	http.StatusUnauthorized:      true,
	http.StatusForbidden:         true,
}

// DirEnumerator is the dir-enum capability: it requests every wordlist path under the
// target and lists those that exist.
type DirEnumerator struct {
	client  *http.Client
	limiter *common.RateLimiter

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics ScannerMetrics
}

// NewDirEnumerator creates the dir-enum capability. limiter may be nil.
func NewDirEnumerator(
	client *http.Client,
	limiter *common.RateLimiter,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics ScannerMetrics,
) *DirEnumerator {
	return &DirEnumerator{
		client:  client,
		limiter: limiter,
		logger:  log.With("component", "scanner.dir_enum"),
		tracer:  tracer,
		metrics: orNoop(metrics),
	}
}

type pathHit struct {
	path   string
	status int
	size   int64
}

// Invoke enumerates the wordlist against the target. A missing wordlist or a target
// that never answers is reported through the result's error.
func (d *DirEnumerator) Invoke(ctx context.Context, target string, params task.Params) (task.Result, error) {
	base, err := baseURL(target)
	if err != nil {
		return task.ErrorResult(err.Error()), nil
	}

	words, err := loadWordlist(params[ParamWordlist])
	if err != nil {
		return task.ErrorResult(err.Error()), nil
	}

	ctx, span := d.tracer.Start(ctx, "scanner.dir_enum.invoke",
		trace.WithAttributes(
			attribute.String("base_url", base.String()),
			attribute.Int("words", len(words)),
		))
	defer span.End()

	start := time.Now()
	defer func() { d.metrics.ObserveScanDuration(ctx, string(task.TypeDirEnum), time.Since(start)) }()

	var (
		hits    []pathHit
		lastErr error
		answers int
	)
	for _, word := range words {
		if err := d.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enumeration interrupted")
			return task.Result{}, fmt.Errorf("dir-enum of %s interrupted: %w", base, err)
		}

		hit, err := d.probe(ctx, base.JoinPath(word).String(), word)
		d.metrics.IncProbes(ctx, string(task.TypeDirEnum), 1)
		if err != nil {
			if ctx.Err() != nil {
				return task.Result{}, fmt.Errorf("dir-enum of %s interrupted: %w", base, ctx.Err())
			}
			lastErr = err
			continue
		}
		answers++
		if reportedStatuses[hit.status] {
			hits = append(hits, hit)
		}
	}

	if answers == 0 && lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "target unreachable")
		return task.ErrorResult(fmt.Sprintf("target unreachable: %v", lastErr)), nil
	}

	res := dirEnumResult(base.String(), hits)
	d.metrics.IncFindings(ctx, string(task.TypeDirEnum), len(res.Findings))
	span.SetAttributes(attribute.Int("hits", len(hits)))
	d.logger.Debug(ctx, "directory enumeration finished", "base_url", base.String(), "hits", len(hits))
	return res, nil
}

func (d *DirEnumerator) probe(ctx context.Context, url, word string) (pathHit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pathHit{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return pathHit{}, err
	}
	defer resp.Body.Close()

	size, _ := io.Copy(io.Discard, resp.Body)
	return pathHit{path: "/" + strings.TrimPrefix(word, "/"), status: resp.StatusCode, size: size}, nil
}

func dirEnumResult(base string, hits []pathHit) task.Result {
	var b strings.Builder
	fmt.Fprintf(&b, "Directory enumeration of %s\n", base)

	findings := make([]string, 0, len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "%s (Status: %d) [Size: %d]\n", h.path, h.status, h.size)
		if h.status == http.StatusOK || h.status == http.StatusMovedPermanently {
			findings = append(findings, fmt.Sprintf("%s: %s", FindingDirectory, h.path))
		}
	}
	if len(hits) == 0 {
		b.WriteString("No paths found\n")
	}
	return task.Result{Output: b.String(), Findings: findings}
}

// loadWordlist reads path or, when empty, the built-in list. Blank lines and lines
// starting with '#' are skipped.
func loadWordlist(path string) ([]string, error) {
	var r io.Reader = strings.NewReader(builtinWordlist)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("wordlist not found: %s", path)
			}
			return nil, fmt.Errorf("opening wordlist %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading wordlist: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordlist is empty")
	}
	return words, nil
}
