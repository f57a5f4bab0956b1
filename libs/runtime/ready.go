package runtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/clinicslots/libs/httpx"
)

// ReadyCheckTimeout bounds each dependency probe behind /readyz.
const ReadyCheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RunChecks probes every dependency concurrently and returns the failures
// keyed by check name.
func RunChecks(ctx context.Context, checks []ReadyCheck) map[string]string {
	var (
		mu       sync.Mutex
		failures = map[string]string{}
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, ReadyCheckTimeout)
			defer cancel()
			if err := check.Check(probeCtx); err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// NewBaseMuxWithReady serves /healthz unconditionally and /readyz from the
// given checks.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, readyReport{Status: "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		failures := RunChecks(r.Context(), checks)
		if len(failures) > 0 {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, readyReport{Status: "unavailable", Checks: failures})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, readyReport{Status: "ready"})
	})
	return mux
}
