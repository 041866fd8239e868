package contract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/app/service/sideeffect"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/internal/platform/vnpay"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

// MinRenewalMonths is the shortest renewal period.
const MinRenewalMonths = 3

type RenewRequest struct {
	ContractID string
	StartDate  time.Time
	EndDate    time.Time
	ActingUser string
	ClientIP   string
}

type RenewResult struct {
	Contract   *models.Contract `json:"contract"`
	PaymentURL string           `json:"payment_url"`
	TxnRef     string           `json:"txn_ref"`
	Amount     decimal.Decimal  `json:"amount"`
}

func validateRenewalDates(start, end time.Time) error {
	if !start.Before(end) {
		return errs.Precondition(errs.ReasonDateRule, "start date must be before end date")
	}
	if tool.MonthsBetween(start, end) < MinRenewalMonths {
		return errs.Precondition(errs.ReasonDateRule, "renewal period must be at least %d months", MinRenewalMonths)
	}
	return nil
}

// RenewalAmount is the rent due for the whole renewal period.
func RenewalAmount(monthlyRent decimal.Decimal, start, end time.Time) decimal.Decimal {
	return monthlyRent.Mul(decimal.NewFromInt(int64(tool.MonthsBetween(start, end))))
}

// requireRenewable accepts active rentals and rentals that expired while a reminder
// was still unanswered.
func requireRenewable(c *models.Contract) error {
	if err := requireRental(c); err != nil {
		return err
	}
	expiredReminded := c.Status == types.ContractStatusExpired && c.RenewalStatus == types.RenewalStatusReminded
	if c.Status != types.ContractStatusActive && !expiredReminded {
		return errs.Precondition(errs.ReasonWrongStatus, "contract %s is %s, expected ACTIVE or EXPIRED with an unanswered reminder", c.ContractNumber, c.Status)
	}
	if err := requireSettled(c); err != nil {
		return err
	}
	if err := requireNotRenewed(c); err != nil {
		return err
	}
	if c.MonthlyRent == nil {
		return errs.Precondition(errs.ReasonWrongType, "contract %s has no monthly rent", c.ContractNumber)
	}
	return nil
}

// RenewContract creates the unpaid successor of a rental and returns a payment URL for it.
// The successor stays a placeholder until CompleteRenewalPayment runs.
func (s *Service) RenewContract(ctx context.Context, req *RenewRequest) (*RenewResult, error) {
	old, err := s.store.Get(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if err := requireRenewable(old); err != nil {
		return nil, err
	}
	if err := validateRenewalDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, req.ActingUser, old); err != nil {
		return nil, err
	}

	ch := &change{reason: types.ContractChangeReasonRenewRequest, actor: actorOr(req.ActingUser)}
	var result *RenewResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := s.store.WithTx(tx)
		old, err := st.Get(ctx, req.ContractID)
		if err != nil {
			return err
		}
		if err := requireRenewable(old); err != nil {
			return err
		}
		today := s.clock.Today()
		conflict, err := findOverlap(ctx, st, old, req.StartDate, req.EndDate, today)
		if err != nil {
			return err
		}
		if conflict != nil {
			return overlapError(conflict)
		}

		now := s.clock.Now()
		number := temporaryNumber(old.ContractNumber, now.UnixMilli())
		existing, err := st.FindByContractNumber(ctx, number)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.Precondition(errs.ReasonDuplicate, "contract number %s already exists", number)
		}

		status := types.ContractStatusInactive
		if req.StartDate.Equal(today) {
			status = types.ContractStatusActive
		}
		start, end := req.StartDate, req.EndDate
		rent := *old.MonthlyRent
		successor := &models.Contract{
			ID:               tool.GenerateUUIDV7(),
			UnitID:           old.UnitID,
			ContractNumber:   number,
			ContractType:     types.ContractTypeRental,
			StartDate:        start,
			EndDate:          &end,
			MonthlyRent:      &rent,
			PaymentMethod:    old.PaymentMethod,
			PaymentTerms:     old.PaymentTerms,
			Status:           status,
			RenewalStatus:    types.RenewalStatusPending,
			ParentContractID: &old.ID,
			IsRenewal:        true,
			AwaitingPayment:  true,
		}
		ch.set("predecessor_id", old.ID)
		if err := s.insert(ctx, tx, successor, ch); err != nil {
			return err
		}

		amount := RenewalAmount(rent, start, end)
		payment, err := s.gateway.CreatePaymentURL(ctx, &vnpay.PaymentRequest{
			OrderID:     strings.ReplaceAll(uuid.NewString(), "-", ""),
			Description: fmt.Sprintf("Gia hạn hợp đồng %s - ContractId:%s", old.ContractNumber, successor.ID),
			Amount:      amount,
			ClientIP:    req.ClientIP,
			ReturnURL:   s.cfg.Payment.VNPay.ReturnURL,
			CreatedAt:   now,
		})
		if err != nil {
			return errs.External("vnpay", "create payment url", err)
		}
		intent := &models.PaymentIntent{
			ID:                    tool.GenerateUUIDV7(),
			TxnRef:                payment.TxnRef,
			ProviderID:            types.PaymentProviderVNPay,
			ContractID:            successor.ID,
			PredecessorContractID: old.ID,
			PayerID:               req.ActingUser,
			Amount:                amount,
			Status:                types.PaymentIntentStatusPending,
		}
		if err := tx.WithContext(ctx).Create(intent).Error; err != nil {
			return fmt.Errorf("failed to create payment intent: %w", err)
		}
		result = &RenewResult{Contract: successor, PaymentURL: payment.URL, TxnRef: payment.TxnRef, Amount: amount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, result.Contract.ID, ch)
	return result, nil
}

// CompleteRenewalPayment turns a paid placeholder into the active successor and links
// its predecessor. Completing an already completed renewal returns it unchanged.
func (s *Service) CompleteRenewalPayment(ctx context.Context, successorID, payerID, paymentRef string) (*models.Contract, error) {
	successor, err := s.store.Get(ctx, successorID)
	if err != nil {
		return nil, err
	}
	if !successor.IsRenewal || successor.ParentContractID == nil {
		return nil, errs.Precondition(errs.ReasonWrongType, "contract %s is not a renewal", successor.ContractNumber)
	}
	predecessor, err := s.store.Get(ctx, *successor.ParentContractID)
	if err != nil {
		return nil, err
	}
	if predecessor.Renewed() && *predecessor.RenewedContractID == successor.ID {
		return successor, nil
	}
	if successor.RenewalStatus != types.RenewalStatusPending {
		return nil, errs.Precondition(errs.ReasonWrongRenewalStatus, "renewal %s is %s", successor.ContractNumber, successor.RenewalStatus)
	}
	code := s.unitCode(ctx, successor.UnitID)

	actor := actorOr(payerID)
	completed := &change{reason: types.ContractChangeReasonRenewComplete, actor: actor}
	linked := &change{reason: types.ContractChangeReasonRenewedBy, actor: actor}
	var out *models.Contract
	idempotent := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := s.store.WithTx(tx)
		succBefore, err := st.Get(ctx, successorID)
		if err != nil {
			return err
		}
		predBefore, err := st.Get(ctx, *succBefore.ParentContractID)
		if err != nil {
			return err
		}
		if predBefore.Renewed() {
			if *predBefore.RenewedContractID == succBefore.ID {
				out = succBefore
				idempotent = true
				return nil
			}
			return requireNotRenewed(predBefore)
		}

		number, err := s.nextRenewalNumber(ctx, st, predBefore, succBefore, code)
		if err != nil {
			return err
		}
		today := s.clock.Today()
		succ := succBefore.Clone()
		succ.ContractNumber = number
		succ.AwaitingPayment = false
		succ.Status = types.ContractStatusInactive
		if !succ.StartDate.After(today) {
			succ.Status = types.ContractStatusActive
		}

		amount, err := s.paidAmount(ctx, tx, succ, paymentRef)
		if err != nil {
			return err
		}
		completed.set("payment_ref", paymentRef)
		completed.set("predecessor_id", predBefore.ID)
		completed.enqueue(sideeffect.InvoiceTask(succ, payerID, amount, paymentRef))
		if err := s.persist(ctx, tx, succBefore, succ, completed); err != nil {
			return err
		}

		pred := predBefore.Clone()
		pred.RenewedContractID = &succ.ID
		linked.set("successor_id", succ.ID)
		linked.write = func(st *Store, c *models.Contract, prev int64) error {
			return st.LinkRenewal(ctx, c, prev)
		}
		if err := s.persist(ctx, tx, predBefore, pred, linked); err != nil {
			return err
		}
		out = succ
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !idempotent {
		s.afterCommit(ctx, successorID, completed)
		s.afterCommit(ctx, predecessor.ID, linked)
	}
	return out, nil
}

// paidAmount settles the payment intent for paymentRef and returns what was paid.
// Manual completions without an intent are charged the full period.
func (s *Service) paidAmount(ctx context.Context, tx *gorm.DB, c *models.Contract, paymentRef string) (decimal.Decimal, error) {
	fallback := decimal.Zero
	if c.MonthlyRent != nil && c.EndDate != nil {
		fallback = RenewalAmount(*c.MonthlyRent, c.StartDate, *c.EndDate)
	}
	if paymentRef == "" {
		return fallback, nil
	}
	var intent models.PaymentIntent
	res := tx.WithContext(ctx).Where("txn_ref = ? AND contract_id = ?", paymentRef, c.ID).Limit(1).Find(&intent)
	if res.Error != nil {
		return decimal.Zero, fmt.Errorf("failed to load payment intent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fallback, nil
	}
	now := s.clock.Now()
	err := tx.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("id = ? AND status <> ?", intent.ID, types.PaymentIntentStatusPaid).
		Updates(map[string]any{
			"status":        types.PaymentIntentStatusPaid,
			"response_code": types.PaymentResponseCodeSuccess,
			"paid_at":       now,
		}).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to mark payment intent paid: %w", err)
	}
	return intent.Amount, nil
}
