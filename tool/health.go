package tool

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthState indicates the probed health of a registered HTTP tool.
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthReport is a normalized health snapshot for a single tool.
type HealthReport struct {
	ToolName     string      `json:"tool_name"`
	State        HealthState `json:"state"`
	CheckedAt    time.Time   `json:"checked_at"`
	LatencyMS    int64       `json:"latency_ms,omitempty"`
	FailureCount int         `json:"failure_count,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Prober checks the health of a manifest's configured endpoint.
type Prober interface {
	Probe(ctx context.Context, m Manifest) HealthReport
}

const defaultHealthTimeout = 5 * time.Second

// HTTPProber probes health endpoints over the shared client pool.
type HTTPProber struct {
	pool *ClientPool
	now  func() time.Time
}

// NewHTTPProber creates a prober over the given pool.
func NewHTTPProber(pool *ClientPool) *HTTPProber {
	return &HTTPProber{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Probe implements Prober. Manifests without health config report
// HealthUnknown.
func (p *HTTPProber) Probe(ctx context.Context, m Manifest) HealthReport {
	report := HealthReport{ToolName: m.Name, State: HealthUnknown, CheckedAt: p.now()}
	if m.Health == nil || strings.TrimSpace(m.Health.Endpoint) == "" {
		return report
	}

	method := strings.ToUpper(strings.TrimSpace(m.Health.Method))
	if method == "" {
		method = http.MethodGet
	}
	timeout := defaultHealthTimeout
	if m.Health.TimeoutMS > 0 {
		timeout = time.Duration(m.Health.TimeoutMS) * time.Millisecond
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, method, m.Health.Endpoint, nil)
	if err != nil {
		report.State = HealthUnhealthy
		report.ErrorMessage = err.Error()
		return report
	}

	start := time.Now()
	resp, err := p.pool.Client(timeout).Do(req)
	report.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		report.State = HealthUnhealthy
		report.ErrorMessage = err.Error()
		return report
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		report.State = HealthHealthy
		return report
	}
	report.State = HealthUnhealthy
	report.ErrorMessage = fmt.Sprintf("status %d", resp.StatusCode)
	return report
}

var _ Prober = (*HTTPProber)(nil)
