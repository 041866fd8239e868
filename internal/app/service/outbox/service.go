// Package outbox stores side effects next to the state change that caused them
// and dispatches them after commit.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/tool"
)

// Task describes a side effect to enqueue. DedupKey makes enqueueing idempotent.
type Task struct {
	Kind       models.SideEffectKind
	DedupKey   string
	ContractID string
	Payload    any
}

type Service struct {
	db    *gorm.DB
	clock tool.Clock
	log   *zap.SugaredLogger
	kick  chan struct{}
}

func NewService(db *gorm.DB, clock tool.Clock, log *zap.SugaredLogger) *Service {
	return &Service{db: db, clock: clock, log: log, kick: make(chan struct{}, 1)}
}

// Kick asks the dispatcher to poll now instead of waiting for the next tick.
// Call it after the enqueueing transaction has committed.
func (s *Service) Kick() {
	if s == nil {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Enqueue writes tasks using tx so they commit or roll back with the caller's transaction.
// A task whose dedup key already exists is ignored.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	now := s.clock.Now()
	rows := make([]*models.SideEffectTask, 0, len(tasks))
	for _, t := range tasks {
		if t.Kind == "" || t.DedupKey == "" {
			return fmt.Errorf("outbox: kind and dedup key are required")
		}
		payload, err := toJSONMap(t.Payload)
		if err != nil {
			return fmt.Errorf("outbox: encode %s payload: %w", t.Kind, err)
		}
		rows = append(rows, &models.SideEffectTask{
			ID:            tool.GenerateUUIDV7(),
			Kind:          t.Kind,
			DedupKey:      t.DedupKey,
			ContractID:    t.ContractID,
			Payload:       payload,
			Status:        models.SideEffectStatusPending,
			NextAttemptAt: now,
		})
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	return nil
}

type ListRequest struct {
	Status     models.SideEffectStatus `json:"status" form:"status"`
	ContractID string                  `json:"contract_id" form:"contract_id"`
	From       int                     `json:"from" form:"from"`
	Size       int                     `json:"size" form:"size"`
}

type ListResponse struct {
	Items []*models.SideEffectTask `json:"items"`
	Total int64                    `json:"total"`
}

func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	q := s.db.WithContext(ctx).Model(&models.SideEffectTask{})
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	if req.ContractID != "" {
		q = q.Where("contract_id = ?", req.ContractID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("outbox: count: %w", err)
	}
	size := req.Size
	if size <= 0 || size > 500 {
		size = 100
	}
	var items []*models.SideEffectTask
	if err := q.Order("created_at desc").Offset(req.From).Limit(size).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("outbox: list: %w", err)
	}
	return &ListResponse{Items: items, Total: total}, nil
}

// Retry puts a failed task back in the queue with a fresh attempt budget.
func (s *Service) Retry(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.SideEffectTask{}).
		Where("id = ? AND status = ?", id, models.SideEffectStatusFailed).
		Updates(map[string]any{
			"status":          models.SideEffectStatusPending,
			"attempts":        0,
			"next_attempt_at": s.clock.Now(),
			"last_error":      "",
		})
	if res.Error != nil {
		return fmt.Errorf("outbox: retry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var task models.SideEffectTask
		if err := s.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("side effect task", id)
			}
			return fmt.Errorf("outbox: load task: %w", err)
		}
		return errs.Precondition(errs.ReasonWrongStatus, "task %s is %s, only failed tasks can be retried", id, task.Status)
	}
	return nil
}

// Decode unpacks a task payload into dst.
func Decode(task *models.SideEffectTask, dst any) error {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(task.Payload)
	if err != nil {
		return err
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, dst)
}

func toJSONMap(v any) (datatypes.JSONMap, error) {
	if v == nil {
		return datatypes.JSONMap{}, nil
	}
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := datatypes.JSONMap{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func backoffDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
