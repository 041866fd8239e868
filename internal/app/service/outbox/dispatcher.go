package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/metrics"
	"github.com/qhomebase/contract-renewal/pkg/tool"
)

// Handler performs one side effect. Returning Permanent(err) stops further retries.
type Handler func(ctx context.Context, task *models.SideEffectTask) error

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p) || errs.IsValidation(err)
}

const leaseDuration = 5 * time.Minute

type Dispatcher struct {
	db       *gorm.DB
	clock    tool.Clock
	log      *zap.SugaredLogger
	metrics  *metrics.Business
	cfg      config.OutboxConfig
	mu       sync.RWMutex
	handlers map[models.SideEffectKind]Handler
	kick     chan struct{}
}

func NewDispatcher(cfg *config.Config, db *gorm.DB, clock tool.Clock, log *zap.SugaredLogger, m *metrics.Business, svc *Service) *Dispatcher {
	oc := cfg.Outbox
	if oc.BatchSize <= 0 {
		oc.BatchSize = 50
	}
	if oc.MaxAttempts <= 0 {
		oc.MaxAttempts = 8
	}
	if oc.PollInterval <= 0 {
		oc.PollInterval = 5 * time.Second
	}
	if oc.CallTimeout <= 0 {
		oc.CallTimeout = 10 * time.Second
	}
	return &Dispatcher{
		db:       db,
		clock:    clock,
		log:      log,
		metrics:  m,
		cfg:      oc,
		handlers: make(map[models.SideEffectKind]Handler),
		kick:     svc.kick,
	}
}

func (d *Dispatcher) Register(kind models.SideEffectKind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

func (d *Dispatcher) handler(kind models.SideEffectKind) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Errorw("outbox poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.kick:
		}
	}
}

// RunOnce dispatches one batch of due tasks and returns how many were attempted.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	now := d.clock.Now()
	var due []*models.SideEffectTask
	err := d.db.WithContext(ctx).
		Where("status IN ? AND next_attempt_at <= ?",
			[]models.SideEffectStatus{models.SideEffectStatusPending, models.SideEffectStatusRunning}, now).
		Order("next_attempt_at").
		Limit(d.cfg.BatchSize).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("outbox: load due tasks: %w", err)
	}

	attempted := 0
	for _, task := range due {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}
		claimed, err := d.claim(ctx, task, now)
		if err != nil {
			d.log.Errorw("outbox claim failed", "task_id", task.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}
		attempted++
		d.execute(ctx, task)
	}
	return attempted, nil
}

// claim leases the task. A crashed worker's lease expires and the task becomes due again.
func (d *Dispatcher) claim(ctx context.Context, task *models.SideEffectTask, now time.Time) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.SideEffectTask{}).
		Where("id = ? AND status = ? AND attempts = ?", task.ID, task.Status, task.Attempts).
		Updates(map[string]any{
			"status":          models.SideEffectStatusRunning,
			"attempts":        task.Attempts + 1,
			"next_attempt_at": now.Add(leaseDuration),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	task.Status = models.SideEffectStatusRunning
	task.Attempts++
	return true, nil
}

func (d *Dispatcher) execute(ctx context.Context, task *models.SideEffectTask) {
	log := logctx.FromCtx(ctx, d.log).With("task_id", task.ID, "task_kind", task.Kind, "contract_id", task.ContractID, "attempt", task.Attempts)
	taskCtx := logctx.WithLogger(ctx, log)

	h, ok := d.handler(task.Kind)
	var err error
	if !ok {
		err = Permanent(fmt.Errorf("no handler registered for %s", task.Kind))
	} else {
		err = d.callWithRetry(taskCtx, h, task)
	}

	now := d.clock.Now()
	updates := map[string]any{}
	result := "done"
	switch {
	case err == nil:
		updates["status"] = models.SideEffectStatusDone
		updates["completed_at"] = now
		updates["last_error"] = ""
		log.Infow("side effect done")
	case isPermanent(err) || task.Attempts >= d.cfg.MaxAttempts:
		result = "failed"
		updates["status"] = models.SideEffectStatusFailed
		updates["last_error"] = err.Error()
		log.Errorw("side effect failed permanently", "err", err)
	default:
		result = "retry"
		updates["status"] = models.SideEffectStatusPending
		updates["next_attempt_at"] = now.Add(backoffDelay(d.cfg.PollInterval, task.Attempts))
		updates["last_error"] = err.Error()
		log.Warnw("side effect failed, will retry", "err", err)
	}
	d.metrics.IncOutbox(string(task.Kind), result)

	// The task row is owned by this worker until the lease ends, so a detached context is used.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.db.WithContext(saveCtx).Model(&models.SideEffectTask{}).
		Where("id = ? AND status = ?", task.ID, models.SideEffectStatusRunning).
		Updates(updates).Error; err != nil {
		log.Errorw("outbox save result failed", "err", err)
	}
}

// callWithRetry retries transient failures a few times in-process before
// handing the task back to the queue.
func (d *Dispatcher) callWithRetry(ctx context.Context, h Handler, task *models.SideEffectTask) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = d.cfg.CallTimeout
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		err := h(callCtx, task)
		if err != nil && errs.IsValidation(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
}
