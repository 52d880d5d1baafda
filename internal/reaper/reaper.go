// Package reaper implements a cron-scheduled sweep that deletes sandbox
// pods abandoned past their max age, supplementing §4.8's request-driven
// create/delete with a background safety net. Grounded on miken90-goclaw's
// internal/cron/service_execution.go, the pack's only gronx consumer:
// schedule validation via gronx.New().IsValid and next-tick computation via
// gronx.NextTickAfter follow that file's computeNextRun/validateSchedule
// one for one, adapted from a generic job scheduler to a single fixed sweep.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/yolo-cage/yolo-cage/internal/podlifecycle"
	"github.com/yolo-cage/yolo-cage/internal/registry"
)

// Reaper periodically deletes sandbox pods older than MaxAge.
type Reaper struct {
	Pods     *podlifecycle.Manager
	Registry *registry.Registry
	Schedule string
	MaxAge   time.Duration
	Log      *slog.Logger

	// now is overridden in tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a Reaper. schedule is a gronx cron expression; maxAge is
// how long a sandbox may live before a sweep deletes it.
func New(pods *podlifecycle.Manager, reg *registry.Registry, schedule string, maxAge time.Duration, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{Pods: pods, Registry: reg, Schedule: schedule, MaxAge: maxAge, Log: log, now: time.Now}
}

// Validate reports whether r.Schedule is a well-formed cron expression,
// mirroring service_execution.go's validateSchedule "cron" case.
func (r *Reaper) Validate() error {
	gx := gronx.New()
	if !gx.IsValid(r.Schedule) {
		return &InvalidScheduleError{Expr: r.Schedule}
	}
	return nil
}

// InvalidScheduleError reports a malformed cron expression.
type InvalidScheduleError struct {
	Expr string
}

func (e *InvalidScheduleError) Error() string {
	return "reaper: invalid cron expression: " + e.Expr
}

// Run blocks, sweeping once per scheduled tick until ctx is canceled. It
// returns immediately with an error if Schedule doesn't parse.
func (r *Reaper) Run(ctx context.Context) error {
	if err := r.Validate(); err != nil {
		return err
	}

	for {
		next, err := gronx.NextTickAfter(r.Schedule, r.clock(), false)
		if err != nil {
			return &InvalidScheduleError{Expr: r.Schedule}
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if n, err := r.SweepOnce(ctx); err != nil {
			r.Log.Error("reaper: sweep failed", "error", err)
		} else if n > 0 {
			r.Log.Info("reaper: swept stale sandboxes", "count", n)
		}
	}
}

// SweepOnce deletes every sandbox older than MaxAge and returns how many
// were deleted. Run calls it on every tick; it is exported so a single pass
// can also be invoked directly, as the tests do.
func (r *Reaper) SweepOnce(ctx context.Context) (int, error) {
	records, err := r.Pods.List(ctx)
	if err != nil {
		return 0, err
	}

	now := r.clock()
	deleted := 0
	for _, rec := range records {
		if now.Sub(rec.Created) < r.MaxAge {
			continue
		}

		existed, err := r.Pods.Delete(ctx, rec.Branch, true)
		if err != nil {
			r.Log.Error("reaper: delete failed", "branch", rec.Branch, "error", err)
			continue
		}
		if existed {
			if r.Registry != nil {
				r.Registry.DeregisterBranch(rec.Branch)
			}
			r.Log.Info("reaper: deleted stale sandbox", "branch", rec.Branch, "age", now.Sub(rec.Created).String())
			deleted++
		}
	}
	return deleted, nil
}

func (r *Reaper) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
