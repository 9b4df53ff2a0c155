package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/cart-totals/internal/common"
)

var draining atomic.Bool

// SetReady marks the process ready or draining. Ready reports 503 while
// draining regardless of probes.
func SetReady(v bool) { draining.Store(!v) }

// Probe checks a single dependency.
type Probe func(ctx context.Context) error

// Report is the readiness payload.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	Probes  map[string]Probe
	Timeout time.Duration
}

// Live always answers 200 while the process can serve HTTP.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, Report{Status: "ok"})
}

// Ready runs every probe concurrently, each under its own timeout.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	report := h.Check(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, report)
}

// Check evaluates readiness without writing a response.
func (h Handler) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.Probes))
		failed bool
	)
	var g errgroup.Group
	for name, probe := range h.Probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.timeout())
			defer cancel()
			result := "ok"
			if err := probe(pctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			checks[name] = result
			failed = failed || result != "ok"
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: "ok", Checks: checks}
	switch {
	case draining.Load():
		report.Status = "draining"
	case failed:
		report.Status = "unavailable"
	}
	return report
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
