package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	checkTimeout = 3 * time.Second
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	critical bool
}

// Checker serves liveness, readiness and dependency health. Checks registered under a name
// that already exists replace the earlier one.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]check
	version string
	started time.Time
	ready   atomic.Bool
}

func NewChecker(version string) *Checker {
	return &Checker{
		checks:  make(map[string]check),
		version: version,
		started: time.Now(),
	}
}

// AddCheck registers a dependency whose failure marks the service unhealthy
func (c *Checker) AddCheck(name string, fn CheckFunc) *Checker {
	return c.add(name, check{fn: fn, critical: true})
}

// AddOptionalCheck registers a dependency that can only degrade the service
func (c *Checker) AddOptionalCheck(name string, fn CheckFunc) *Checker {
	return c.add(name, check{fn: fn})
}

func (c *Checker) add(name string, chk check) *Checker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = chk
	return c
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// Health runs every check concurrently under a shared timeout. Any failed critical check
// answers 503.
func (c *Checker) Health(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), checkTimeout)
	defer cancel()

	c.mu.RLock()
	results := make(map[string]*CheckResult, len(c.checks))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	for name, chk := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(reqCtx, chk)
			resultsMu.Lock()
			results[name] = res
			resultsMu.Unlock()
		}()
	}
	c.mu.RUnlock()
	wg.Wait()

	status := StatusHealthy
	for _, res := range results {
		if res.Status == StatusHealthy {
			continue
		}
		if res.Critical {
			status = StatusUnhealthy
			break
		}
		status = StatusDegraded
	}

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, &HealthStatus{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Checks:     results,
		ReportedAt: time.Now().UTC(),
	})
}

func run(ctx context.Context, chk check) *CheckResult {
	start := time.Now()
	if err := chk.fn(ctx); err != nil {
		return &CheckResult{Status: StatusUnhealthy, Critical: chk.critical, Message: err.Error()}
	}
	return &CheckResult{Status: StatusHealthy, Critical: chk.critical, Latency: time.Since(start).String()}
}

// Names lists the registered checks, sorted
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready answers 200 once startup has finished and until shutdown begins
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
