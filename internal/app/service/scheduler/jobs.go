package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/internal/app/service/contract"
	"github.com/qhomebase/contract-renewal/internal/app/service/reminder"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/tool"
)

const (
	JobActivation = "activation"
	JobExpiration = "expiration"
	JobReminder   = "reminder"
	JobDecline    = "decline"
	JobAutoCancel = "auto_cancel"
)

// Result summarises one job run.
type Result struct {
	Candidates int `json:"candidates"`
	Changed    int `json:"changed"`
	Failed     int `json:"failed"`
}

func (r Result) String() string {
	return fmt.Sprintf("candidates=%d changed=%d failed=%d", r.Candidates, r.Changed, r.Failed)
}

// Schedule is either a daily local time or a fixed interval.
type Schedule struct {
	// At is HH:MM in the scheduler time zone. Ignored when Every is set.
	At    string
	Every time.Duration
}

func (s Schedule) String() string {
	if s.Every > 0 {
		return "every " + s.Every.String()
	}
	return "daily at " + s.At
}

type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) (Result, error)
}

// Jobs builds the renewal jobs. Every job re-reads its candidates, so running
// it twice or after downtime is harmless.
type Jobs struct {
	contracts *contract.Service
	clock     tool.Clock
	log       *zap.SugaredLogger
}

func NewJobs(contracts *contract.Service, clock tool.Clock, log *zap.SugaredLogger) *Jobs {
	return &Jobs{contracts: contracts, clock: clock, log: log}
}

// each applies fn to every candidate. One failing contract never stops the batch.
func (j *Jobs) each(ctx context.Context, job string, candidates []*models.Contract,
	fn func(ctx context.Context, c *models.Contract) (bool, error)) Result {
	log := logctx.FromCtx(ctx, j.log).With("job", job)
	res := Result{Candidates: len(candidates)}
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		changed, err := fn(ctx, c)
		if err != nil {
			res.Failed++
			log.Warnw("job failed for contract", "contract_id", c.ID, "err", err)
			continue
		}
		if changed {
			res.Changed++
		}
	}
	return res
}

func advanced(before *models.Contract, after *models.Contract) bool {
	return after != nil && after.Version > before.Version
}

func (j *Jobs) Activation(ctx context.Context) (Result, error) {
	today := j.clock.Today()
	candidates, err := j.contracts.Store().FindInactiveDueToday(ctx, today)
	if err != nil {
		return Result{}, err
	}
	return j.each(ctx, JobActivation, candidates, func(ctx context.Context, c *models.Contract) (bool, error) {
		out, err := j.contracts.Activate(ctx, c.ID, today)
		return advanced(c, out), err
	}), nil
}

func (j *Jobs) Expiration(ctx context.Context) (Result, error) {
	today := j.clock.Today()
	candidates, err := j.contracts.Store().FindExpiredAsOf(ctx, today)
	if err != nil {
		return Result{}, err
	}
	return j.each(ctx, JobExpiration, candidates, func(ctx context.Context, c *models.Contract) (bool, error) {
		out, err := j.contracts.Expire(ctx, c.ID, today)
		return advanced(c, out), err
	}), nil
}

func (j *Jobs) Reminder(ctx context.Context) (Result, error) {
	today := j.clock.Today()
	candidates, err := j.contracts.Store().FindActiveRentalNearingEnd(ctx, today, reminder.LookaheadDays)
	if err != nil {
		return Result{}, err
	}
	return j.each(ctx, JobReminder, candidates, func(ctx context.Context, c *models.Contract) (bool, error) {
		stage, err := j.contracts.SendStageReminder(ctx, c.ID, today)
		if err != nil {
			return false, fmt.Errorf("stage %s: %w", j.contracts.CurrentStage(c), err)
		}
		return stage != reminder.StageNone, nil
	}), nil
}

func (j *Jobs) Decline(ctx context.Context) (Result, error) {
	today := j.clock.Today()
	candidates, err := j.contracts.Store().FindDeclineCandidates(ctx)
	if err != nil {
		return Result{}, err
	}
	return j.each(ctx, JobDecline, candidates, func(ctx context.Context, c *models.Contract) (bool, error) {
		out, err := j.contracts.AutoDecline(ctx, c.ID, today)
		return advanced(c, out), err
	}), nil
}

func (j *Jobs) AutoCancel(ctx context.Context) (Result, error) {
	cutoff := j.clock.Now().Add(-reminder.AutoCancelAfter)
	candidates, err := j.contracts.Store().FindAutoCancelCandidates(ctx, cutoff)
	if err != nil {
		return Result{}, err
	}
	return j.each(ctx, JobAutoCancel, candidates, func(ctx context.Context, c *models.Contract) (bool, error) {
		out, err := j.contracts.AutoCancel(ctx, c.ID)
		return advanced(c, out), err
	}), nil
}

// All returns the jobs in the order they run within one tick.
func (j *Jobs) All(cfg config.SchedulerConfig) []*Job {
	return []*Job{
		{Name: JobActivation, Schedule: Schedule{At: cfg.ActivationAt}, Run: j.Activation},
		{Name: JobExpiration, Schedule: Schedule{At: cfg.ExpirationAt}, Run: j.Expiration},
		{Name: JobReminder, Schedule: Schedule{At: cfg.ReminderAt}, Run: j.Reminder},
		{Name: JobDecline, Schedule: Schedule{At: cfg.DeclineAt}, Run: j.Decline},
		{Name: JobAutoCancel, Schedule: Schedule{Every: cfg.AutoCancelEvery}, Run: j.AutoCancel},
	}
}
