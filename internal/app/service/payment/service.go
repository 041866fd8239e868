// Package payment settles renewal payments reported by the gateway.
package payment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/app/service/contract"
	"github.com/qhomebase/contract-renewal/internal/app/service/notification_log"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/internal/platform/vnpay"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

// CallbackVerifier checks gateway signatures.
type CallbackVerifier interface {
	VerifyCallback(params map[string]string) (*vnpay.Callback, error)
}

var Module = fx.Options(
	fx.Provide(
		func(c *vnpay.Client) CallbackVerifier { return c },
		NewService,
	),
)

type Service struct {
	db            *gorm.DB
	clock         tool.Clock
	log           *zap.SugaredLogger
	verifier      CallbackVerifier
	contracts     *contract.Service
	notifications *notification_log.Service
}

func NewService(db *gorm.DB, clock tool.Clock, log *zap.SugaredLogger, verifier CallbackVerifier,
	contracts *contract.Service, notifications *notification_log.Service) *Service {
	return &Service{db: db, clock: clock, log: log, verifier: verifier, contracts: contracts, notifications: notifications}
}

// Outcome is what the callback endpoint reports back.
type Outcome struct {
	TxnRef     string                    `json:"txn_ref"`
	ContractID string                    `json:"contract_id"`
	Status     types.PaymentIntentStatus `json:"status"`
	Contract   *models.Contract          `json:"contract,omitempty"`
}

// HandleVNPayCallback verifies the gateway callback and completes or fails the renewal it pays for.
// Replayed callbacks return the same outcome without changing anything.
func (s *Service) HandleVNPayCallback(ctx context.Context, params map[string]string) (*Outcome, error) {
	entry := s.notifications.Received(ctx, string(types.PaymentProviderVNPay), params["vnp_TxnRef"], params)
	out, err := s.handleVNPay(ctx, params)
	contractID := ""
	if out != nil {
		contractID = out.ContractID
	}
	s.notifications.Finish(ctx, entry, contractID, out, err)
	return out, err
}

func (s *Service) handleVNPay(ctx context.Context, params map[string]string) (*Outcome, error) {
	cb, err := s.verifier.VerifyCallback(params)
	if err != nil {
		if errs.IsValidation(err) {
			return nil, err
		}
		return nil, errs.Validation("vnp_SecureHash", "%v", err)
	}
	intent, err := s.intentByTxnRef(ctx, cb.TxnRef)
	if err != nil {
		return nil, err
	}
	log := logctx.FromCtx(ctx, s.log).With("txn_ref", cb.TxnRef, "contract_id", intent.ContractID)
	out := &Outcome{TxnRef: cb.TxnRef, ContractID: intent.ContractID}

	if !cb.Succeeded() {
		if err := s.markFailed(ctx, intent, cb.ResponseCode); err != nil {
			return nil, err
		}
		log.Infow("renewal payment failed at gateway", "response_code", cb.ResponseCode)
		out.Status = types.PaymentIntentStatusFailed
		return out, nil
	}
	if !cb.Amount.IsZero() && !cb.Amount.Equal(intent.Amount) {
		return nil, errs.Validation("vnp_Amount", "paid %s but renewal costs %s", cb.Amount, intent.Amount)
	}
	c, err := s.contracts.CompleteRenewalPayment(ctx, intent.ContractID, intent.PayerID, cb.TxnRef)
	if err != nil {
		return nil, err
	}
	log.Infow("renewal payment completed", "contract_number", c.ContractNumber)
	out.Status = types.PaymentIntentStatusPaid
	out.Contract = c
	return out, nil
}

func (s *Service) intentByTxnRef(ctx context.Context, txnRef string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.WithContext(ctx).Where("txn_ref = ?", txnRef).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("payment intent", txnRef)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment intent: %w", err)
	}
	return &intent, nil
}

// markFailed only moves pending intents, so a late failure never overrides a payment.
func (s *Service) markFailed(ctx context.Context, intent *models.PaymentIntent, responseCode string) error {
	err := s.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", intent.ID, types.PaymentIntentStatusPending).
		Updates(map[string]any{"status": types.PaymentIntentStatusFailed, "response_code": responseCode}).Error
	if err != nil {
		return fmt.Errorf("failed to mark payment intent failed: %w", err)
	}
	return nil
}

// CompleteManually settles a renewal paid outside the gateway. The latest
// pending intent is used when there is one, so its amount is invoiced.
func (s *Service) CompleteManually(ctx context.Context, contractID, actingUser string) (*models.Contract, error) {
	var intent models.PaymentIntent
	err := s.db.WithContext(ctx).
		Where("contract_id = ? AND status = ?", contractID, types.PaymentIntentStatusPending).
		Order("created_at desc").First(&intent).Error
	switch {
	case err == nil:
		payer := intent.PayerID
		if payer == "" {
			payer = actingUser
		}
		return s.contracts.CompleteRenewalPayment(ctx, contractID, payer, intent.TxnRef)
	case errors.Is(err, gorm.ErrRecordNotFound):
		ref := fmt.Sprintf("%s:%s", types.PaymentProviderManual, tool.GenerateUUIDV7())
		return s.contracts.CompleteRenewalPayment(ctx, contractID, actingUser, ref)
	default:
		return nil, fmt.Errorf("failed to load payment intent: %w", err)
	}
}
