// Package health runs the periodic broker reconciliation probe. Every
// interval it compares the OS process table with the broker's admin
// HTTP answer; on disagreement the OS wins. Results are published as
// structured per-check reports plus an overall verdict.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
)

// probeInterval is how often the reconciliation runs.
const probeInterval = 30 * time.Second

// Verdict is the overall health rollup.
type Verdict string

const (
	VerdictHealthy   Verdict = "healthy"
	VerdictDegraded  Verdict = "degraded"
	VerdictUnhealthy Verdict = "unhealthy"
)

// CheckStatus is one check's outcome.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is one probe dimension's result.
type Check struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
}

// Report is a full probe result.
type Report struct {
	Overall       Verdict   `json:"overall"`
	Installation  Check     `json:"installation"`
	Process       Check     `json:"process"`
	Network       Check     `json:"network"`
	Configuration Check     `json:"configuration"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Prober runs the periodic probe against the broker supervisor.
type Prober struct {
	supervisor *broker.Supervisor
	bus        *events.Bus
	logger     *slog.Logger

	mu     sync.RWMutex
	last   Report
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProber creates a prober over the broker supervisor.
func NewProber(supervisor *broker.Supervisor, bus *events.Bus) *Prober {
	return &Prober{
		supervisor: supervisor,
		bus:        bus,
		logger:     logging.GetLogger("health"),
	}
}

// Start launches the probe loop. An immediate probe runs before the
// first tick so startup state is never blank.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		p.runProbe(ctx)
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.runProbe(ctx)
			}
		}
	}()
}

// Stop halts the probe loop.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Last returns the most recent report. Zero value before the first
// probe completes.
func (p *Prober) Last() Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Prober) runProbe(ctx context.Context) {
	report := p.Probe(ctx)

	p.mu.Lock()
	prev := p.last.Overall
	p.last = report
	p.mu.Unlock()

	if prev != report.Overall {
		msg := fmt.Sprintf("broker health %s (was %s)", report.Overall, orUnknown(prev))
		p.logger.Info("Health transition", "overall", report.Overall, "previous", orUnknown(prev))
		if p.bus != nil {
			p.bus.Publish(events.HealthEvent{
				Overall:   string(report.Overall),
				Message:   msg,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// Probe runs all checks once, synchronously.
func (p *Prober) Probe(ctx context.Context) Report {
	status := p.supervisor.GetStatus(ctx)
	report := Report{CheckedAt: time.Now().UTC()}

	// Installation: do we know where the broker lives at all.
	if status.ExePath != "" {
		report.Installation = Check{Status: CheckOK,
			Message: "broker installation detected", Details: status.ExePath}
	} else {
		report.Installation = Check{Status: CheckFail,
			Message: "no broker installation detected"}
	}

	// Process: OS-level liveness, the authoritative signal.
	switch status.State {
	case broker.StateRunning, broker.StateStarting:
		report.Process = Check{Status: CheckOK,
			Message: "broker process is alive", Details: fmt.Sprintf("pid %d", status.PID)}
	default:
		report.Process = Check{Status: CheckFail, Message: "broker process is not running"}
	}

	// Network: admin HTTP reachability. An alive process that does not
	// answer is degraded, not dead.
	switch status.State {
	case broker.StateRunning:
		report.Network = Check{Status: CheckOK,
			Message: fmt.Sprintf("admin interface answering on port %d", status.Port)}
	case broker.StateStarting:
		report.Network = Check{Status: CheckWarn,
			Message: "broker alive but admin interface unreachable"}
	default:
		report.Network = Check{Status: CheckFail, Message: "admin interface unreachable"}
	}

	// Configuration: a parsed config with a usable port and source
	// password.
	cfg := p.supervisor.Snapshot()
	switch {
	case cfg.Port <= 0:
		report.Configuration = Check{Status: CheckFail, Message: "broker config missing listen port"}
	case cfg.SourcePassword == "":
		report.Configuration = Check{Status: CheckWarn,
			Message: "broker config has no source password; encoders cannot connect"}
	default:
		report.Configuration = Check{Status: CheckOK,
			Message: fmt.Sprintf("config parsed, port %d", cfg.Port)}
	}

	report.Overall = rollup(report)
	return report
}

// rollup folds the checks into a verdict: any fail on installation or
// process is unhealthy, any other fail or warn is degraded.
func rollup(r Report) Verdict {
	if r.Installation.Status == CheckFail || r.Process.Status == CheckFail {
		return VerdictUnhealthy
	}
	for _, c := range []Check{r.Network, r.Configuration} {
		if c.Status != CheckOK {
			return VerdictDegraded
		}
	}
	return VerdictHealthy
}

func orUnknown(v Verdict) Verdict {
	if v == "" {
		return "unknown"
	}
	return v
}
