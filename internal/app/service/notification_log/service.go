package notification_log

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/tool"
)

var Module = fx.Options(fx.Provide(New))

type Service struct {
	db    *gorm.DB
	clock tool.Clock
	log   *zap.SugaredLogger
}

func New(db *gorm.DB, clock tool.Clock, log *zap.SugaredLogger) *Service {
	return &Service{db: db, clock: clock, log: log}
}

// Received stores the raw gateway callback before it is handled. A failed write
// is logged and does not block payment handling; the returned entry is then nil.
func (s *Service) Received(ctx context.Context, provider, txnRef string, params map[string]string) *models.PaymentNotificationLog {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(params)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to encode payment notification", "err", err)
		return nil
	}
	entry := &models.PaymentNotificationLog{
		ID:               tool.GenerateUUIDV7(),
		ProviderID:       provider,
		TxnRef:           txnRef,
		TraceID:          logctx.TraceID(ctx),
		NotificationTime: s.clock.Now(),
		Data:             datatypes.JSON(raw),
		Status:           models.PaymentNotificationLogStatusReceived,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to save payment notification log", "txn_ref", txnRef, "err", err)
		return nil
	}
	return entry
}

// Finish records the outcome of handling. Nil entries are ignored.
func (s *Service) Finish(ctx context.Context, entry *models.PaymentNotificationLog, contractID string, result any, handleErr error) {
	if entry == nil {
		return
	}
	status := models.PaymentNotificationLogStatusHandled
	outcome := map[string]any{"result": result}
	if handleErr != nil {
		status = models.PaymentNotificationLogStatusHandleFailed
		outcome = map[string]any{"error": handleErr.Error()}
	}
	updates := map[string]any{"status": status, "updated_at": s.clock.Now()}
	if raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(outcome); err == nil {
		updates["result"] = datatypes.JSON(raw)
	}
	if contractID != "" {
		updates["contract_id"] = contractID
	}

	// The callback may already be answered, so the write must not depend on the request context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.db.WithContext(saveCtx).Model(&models.PaymentNotificationLog{}).
		Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to update payment notification log", "id", entry.ID, "err", err)
	}
}
