package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/embedgate/internal/breaker"
	"github.com/dshills/embedgate/internal/cache"
)

// healthProvider is a minimal provider.Client for probe tests.
type healthProvider struct {
	configured bool
}

func (p *healthProvider) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func (p *healthProvider) GenerateBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (p *healthProvider) Dimension() int   { return 1 }
func (p *healthProvider) Name() string     { return "test" }
func (p *healthProvider) Model() string    { return "test-model" }
func (p *healthProvider) Configured() bool { return p.configured }
func (p *healthProvider) Close() error     { return nil }

type fakeDepth struct {
	depth int64
	err   error
}

func (f *fakeDepth) Depth(context.Context) (int64, error) { return f.depth, f.err }

func newTestChecker(p *healthProvider, queue DepthReporter) (*HealthChecker, *breaker.Registry) {
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Cooldown: time.Hour})
	h := NewHealthChecker(p, cache.NewMemory(100, time.Hour), reg, queue, HealthOptions{})
	return h, reg
}

func checkByName(t *testing.T, report Report, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %q check in report", name)
	return CheckResult{}
}

func TestHealthyReport(t *testing.T) {
	h, _ := newTestChecker(&healthProvider{configured: true}, nil)

	report := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Recommendations)
	assert.Len(t, report.Checks, 4, "no queue configured means no queue check")
}

func TestUnconfiguredProviderIsCritical(t *testing.T) {
	h, _ := newTestChecker(&healthProvider{configured: false}, nil)

	report := h.Check(context.Background())
	assert.Equal(t, StatusCritical, report.Status)
	assert.Equal(t, StatusCritical, checkByName(t, report, "provider").Status)
	assert.NotEmpty(t, report.Recommendations)
}

func TestOpenCircuitIsWarning(t *testing.T) {
	h, reg := newTestChecker(&healthProvider{configured: true}, nil)

	// One failure at threshold 1 opens the circuit.
	_, err := breaker.Execute(context.Background(), reg.Get("embedding_generation"),
		func(context.Context) (struct{}, error) {
			return struct{}{}, errors.New("boom")
		}, nil)
	require.Error(t, err)

	report := h.Check(context.Background())
	assert.Equal(t, StatusWarning, report.Status)
	circuits := checkByName(t, report, "circuits")
	assert.Equal(t, StatusWarning, circuits.Status)
	assert.Contains(t, circuits.Detail, "embedding_generation")
}

func TestQueueDepthThresholds(t *testing.T) {
	tests := []struct {
		name  string
		depth int64
		want  Status
	}{
		{"shallow", 5, StatusHealthy},
		{"warn", 150, StatusWarning},
		{"critical", 5000, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestChecker(&healthProvider{configured: true}, &fakeDepth{depth: tt.depth})
			report := h.Check(context.Background())
			assert.Equal(t, tt.want, checkByName(t, report, "queue").Status)
		})
	}
}

func TestQueueDepthErrorIsWarning(t *testing.T) {
	h, _ := newTestChecker(&healthProvider{configured: true}, &fakeDepth{err: errors.New("db locked")})

	report := h.Check(context.Background())
	assert.Equal(t, StatusWarning, checkByName(t, report, "queue").Status)
}

func TestReportCachedWithinWindow(t *testing.T) {
	queue := &fakeDepth{depth: 5}
	h, _ := newTestChecker(&healthProvider{configured: true}, queue)

	now := time.Now()
	h.now = func() time.Time { return now }

	first := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, first.Status)

	// Conditions degrade, but the cached report is still served.
	queue.depth = 5000
	second := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, second.Status)

	// Past the window the probes rerun and see the backlog.
	now = now.Add(time.Minute)
	third := h.Check(context.Background())
	assert.Equal(t, StatusCritical, third.Status)
}
