// Package scheduler runs the renewal jobs on a ticker. Each job is claimed through
// its job_run row, so several instances or a restart never run a daily job twice
// for the same local date.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/metrics"
	"github.com/qhomebase/contract-renewal/pkg/tool"
)

type Runner struct {
	cfg     config.SchedulerConfig
	db      *gorm.DB
	clock   tool.Clock
	log     *zap.SugaredLogger
	metrics *metrics.Business
	jobs    []*Job

	// mu serialises job runs between ticks and manual triggers.
	mu sync.Mutex
}

func NewRunner(cfg *config.Config, db *gorm.DB, clock tool.Clock, log *zap.SugaredLogger, m *metrics.Business, jobs *Jobs) (*Runner, error) {
	sc := cfg.Scheduler
	if sc.TickInterval <= 0 {
		sc.TickInterval = time.Minute
	}
	if sc.AutoCancelEvery <= 0 {
		sc.AutoCancelEvery = time.Hour
	}
	r := &Runner{cfg: sc, db: db, clock: clock, log: log, metrics: m}
	for _, job := range jobs.All(sc) {
		if err := r.Add(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a job after the existing ones.
func (r *Runner) Add(job *Job) error {
	if job.Schedule.Every <= 0 {
		if _, err := parseClock(job.Schedule.At); err != nil {
			return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
		}
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// parseClock turns HH:MM into minutes after midnight.
func parseClock(at string) (int, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, fmt.Errorf("invalid daily time %q: %w", at, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (r *Runner) job(name string) (*Job, bool) {
	for _, j := range r.jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// Run ticks until ctx is cancelled. The first tick happens immediately so
// runs missed while the service was down are caught up on start.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs every job that is due and wins its claim, in registration order.
func (r *Runner) Tick(ctx context.Context) {
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return
		}
		claimed, err := r.claim(ctx, job)
		if err != nil {
			r.log.Errorw("scheduler claim failed", "job", job.Name, "err", err)
			continue
		}
		if !claimed {
			continue
		}
		_, _ = r.execute(ctx, job)
	}
}

// RunNow runs a job immediately, ignoring its schedule and claim.
func (r *Runner) RunNow(ctx context.Context, name string) (Result, error) {
	job, ok := r.job(name)
	if !ok {
		return Result{}, errs.NotFound("job", name)
	}
	if err := r.ensureRow(ctx, job.Name); err != nil {
		return Result{}, err
	}
	return r.execute(ctx, job)
}

func (r *Runner) ensureRow(ctx context.Context, name string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&models.JobRun{Name: name}).Error
	if err != nil {
		return fmt.Errorf("scheduler: create job row: %w", err)
	}
	return nil
}

// claim marks the job as run for the current period if it is due and no one else has.
func (r *Runner) claim(ctx context.Context, job *Job) (bool, error) {
	if err := r.ensureRow(ctx, job.Name); err != nil {
		return false, err
	}
	now := r.clock.Now()
	q := r.db.WithContext(ctx).Model(&models.JobRun{}).Where("name = ?", job.Name)
	updates := map[string]any{"last_run_at": now}

	if job.Schedule.Every > 0 {
		q = q.Where("(last_run_at IS NULL OR last_run_at <= ?)", now.Add(-job.Schedule.Every))
	} else {
		at, err := parseClock(job.Schedule.At)
		if err != nil {
			return false, err
		}
		local := now.In(r.clock.Location())
		if local.Hour()*60+local.Minute() < at {
			return false, nil
		}
		today := r.clock.Today()
		q = q.Where("(last_run_day IS NULL OR last_run_day < ?)", today)
		updates["last_run_day"] = today
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("scheduler: claim %s: %w", job.Name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Runner) execute(ctx context.Context, job *Job) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx = logctx.WithTraceID(ctx, tool.GenerateTraceID())
	ctx, log := logctx.WithFields(ctx, r.log, "job", job.Name, "trace_id", logctx.TraceID(ctx))

	start := time.Now()
	res, err := job.Run(ctx)
	elapsed := time.Since(start)

	outcome, summary := "ok", res.String()
	switch {
	case err != nil:
		outcome, summary = "error", "error: "+err.Error()
		log.Errorw("job failed", "err", err, "elapsed", elapsed)
	case res.Failed > 0:
		outcome = "partial"
		log.Warnw("job finished with failures", "candidates", res.Candidates, "changed", res.Changed, "failed", res.Failed, "elapsed", elapsed)
	default:
		log.Infow("job finished", "candidates", res.Candidates, "changed", res.Changed, "elapsed", elapsed)
	}
	r.metrics.ObserveJob(job.Name, outcome, elapsed)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if dbErr := r.db.WithContext(saveCtx).Model(&models.JobRun{}).Where("name = ?", job.Name).
		Updates(map[string]any{"last_run_at": r.clock.Now(), "last_result": summary}).Error; dbErr != nil {
		log.Errorw("save job result failed", "err", dbErr)
	}
	return res, err
}

type JobStatus struct {
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	LastRunAt  *time.Time `json:"last_run_at"`
	LastRunDay *time.Time `json:"last_run_day"`
	LastResult string     `json:"last_result"`
}

func (r *Runner) List(ctx context.Context) ([]*JobStatus, error) {
	var rows []*models.JobRun
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scheduler: list job runs: %w", err)
	}
	byName := make(map[string]*models.JobRun, len(rows))
	for _, row := range rows {
		byName[row.Name] = row
	}
	out := make([]*JobStatus, 0, len(r.jobs))
	for _, job := range r.jobs {
		st := &JobStatus{Name: job.Name, Schedule: job.Schedule.String()}
		if row, ok := byName[job.Name]; ok {
			st.LastRunAt = row.LastRunAt
			st.LastRunDay = row.LastRunDay
			st.LastResult = row.LastResult
		}
		out = append(out, st)
	}
	return out, nil
}
