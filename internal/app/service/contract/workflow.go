package contract

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qhomebase/contract-renewal/internal/app/service/reminder"
	"github.com/qhomebase/contract-renewal/internal/app/service/sideeffect"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

func (s *Service) reminderInput(c *models.Contract, today time.Time) reminder.Input {
	return reminder.Input{
		EndDate:     c.EndDate,
		Today:       today,
		FirstSentAt: c.RenewalReminderSentAt,
		ThirdSentAt: c.ThirdReminderSentAt,
		Location:    s.clock.Location(),
	}
}

// CurrentStage is the read-side reminder stage of c as of today.
func (s *Service) CurrentStage(c *models.Contract) reminder.Stage {
	return reminder.Current(s.reminderInput(c, s.clock.Today()))
}

func requireRemindable(c *models.Contract) error {
	if err := requireActiveRental(c); err != nil {
		return err
	}
	if err := requireNotRenewed(c); err != nil {
		return err
	}
	if err := requireOpenRenewal(c); err != nil {
		return err
	}
	if c.EndDate == nil {
		return errs.Precondition(errs.ReasonDateRule, "contract %s has no end date", c.ContractNumber)
	}
	return nil
}

// SendReminder marks the contract as reminded. Repeating it changes nothing.
func (s *Service) SendReminder(ctx context.Context, id string) (*models.Contract, error) {
	return s.transition(ctx, id, types.ContractChangeReasonReminder, logctx.UserID(ctx), func(_ *gorm.DB, c *models.Contract, _ *change) error {
		if err := requireRemindable(c); err != nil {
			return err
		}
		if c.RenewalReminderSentAt != nil && c.RenewalStatus == types.RenewalStatusReminded {
			return errSkip
		}
		if c.RenewalReminderSentAt == nil {
			now := s.clock.Now()
			c.RenewalReminderSentAt = &now
		}
		c.RenewalStatus = types.RenewalStatusReminded
		return nil
	})
}

// SendStageReminder fires the reminder stage due today, if any, and returns it.
// The dispatch ledger makes each stage fire at most once per end date.
func (s *Service) SendStageReminder(ctx context.Context, id string, today time.Time) (reminder.Stage, error) {
	fired := reminder.StageNone
	_, err := s.transition(ctx, id, types.ContractChangeReasonReminder, "", func(tx *gorm.DB, c *models.Contract, ch *change) error {
		if err := requireRemindable(c); err != nil {
			return err
		}
		stage := reminder.Due(s.reminderInput(c, today))
		if stage == reminder.StageNone {
			return errSkip
		}

		now := s.clock.Now()
		res := tx.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ReminderDispatch{
				ID:         tool.GenerateUUIDV7(),
				ContractID: c.ID,
				EndDate:    *c.EndDate,
				Stage:      int(stage),
				SentAt:     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errSkip
		}

		if c.RenewalReminderSentAt == nil {
			c.RenewalReminderSentAt = &now
		}
		if stage == reminder.FinalStage && c.ThirdReminderSentAt == nil {
			c.ThirdReminderSentAt = &now
		}
		c.RenewalStatus = types.RenewalStatusReminded
		ch.set("stage", int(stage))
		ch.enqueue(sideeffect.NotifyResidentsTask(c, int(stage)))
		ch.onCommit = append(ch.onCommit, func() { s.metrics.IncReminder(stage.String()) })
		fired = stage
		return nil
	})
	if err != nil {
		return reminder.StageNone, err
	}
	return fired, nil
}

// DismissReminder hides the popup for the current stage. The final stage cannot be dismissed.
func (s *Service) DismissReminder(ctx context.Context, id string) (*models.Contract, error) {
	return s.transition(ctx, id, types.ContractChangeReasonDismissReminder, logctx.UserID(ctx), func(_ *gorm.DB, c *models.Contract, ch *change) error {
		if c.RenewalStatus != types.RenewalStatusReminded {
			return errs.Precondition(errs.ReasonWrongRenewalStatus, "contract %s has no pending reminder", c.ContractNumber)
		}
		stage := s.CurrentStage(c)
		if stage >= reminder.FinalStage {
			return errs.Precondition(errs.ReasonFinalReminder, "final reminder cannot be dismissed")
		}
		if c.LastDismissedReminderCount == int(stage) {
			return errSkip
		}
		c.LastDismissedReminderCount = int(stage)
		ch.set("stage", int(stage))
		return nil
	})
}

// MarkRenewalDeclined records that the tenant will not renew. The contract stays active.
func (s *Service) MarkRenewalDeclined(ctx context.Context, id string) (*models.Contract, error) {
	actingUser := logctx.UserID(ctx)
	return s.transition(ctx, id, types.ContractChangeReasonDecline, actingUser, func(_ *gorm.DB, c *models.Contract, _ *change) error {
		if err := requireActiveRental(c); err != nil {
			return err
		}
		if err := requireOpenRenewal(c); err != nil {
			return err
		}
		now := s.clock.Now()
		c.RenewalStatus = types.RenewalStatusDeclined
		c.RenewalDeclinedAt = &now
		return nil
	})
}

// CancelContract ends an active rental, books the move-out inspection and releases the unit.
func (s *Service) CancelContract(ctx context.Context, id string, scheduledInspection *time.Time, actingUser string) (*models.Contract, error) {
	if err := s.checkOwnerOf(ctx, id, actingUser); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, types.ContractChangeReasonCancel, actingUser, func(_ *gorm.DB, c *models.Contract, ch *change) error {
		if err := requireActiveRental(c); err != nil {
			return err
		}
		if err := requireSettled(c); err != nil {
			return err
		}
		inspection := s.clock.Today()
		switch {
		case scheduledInspection != nil:
			inspection = *scheduledInspection
		case c.EndDate != nil:
			inspection = *c.EndDate
		}
		s.cancel(c, ch, inspection, scheduledInspection)
		return nil
	})
}

func (s *Service) cancel(c *models.Contract, ch *change, inspection time.Time, scheduled *time.Time) {
	now := s.clock.Now()
	c.Status = types.ContractStatusCancelled
	c.RenewalStatus = types.RenewalStatusDeclined
	c.RenewalDeclinedAt = &now
	ch.set("inspection_date", inspection.Format(sideeffect.DateLayout))
	ch.enqueue(
		sideeffect.InspectionTask(c, inspection, scheduled),
		sideeffect.TeardownTask(c),
	)
}

// AutoCancel force-cancels a contract whose final reminder went unanswered.
// Contracts that no longer qualify are left untouched.
func (s *Service) AutoCancel(ctx context.Context, id string) (*models.Contract, error) {
	return s.transition(ctx, id, types.ContractChangeReasonAutoCancel, "", func(_ *gorm.DB, c *models.Contract, ch *change) error {
		if !c.IsRental() || c.Status != types.ContractStatusActive || c.Renewed() ||
			c.RenewalStatus != types.RenewalStatusReminded || c.EndDate == nil ||
			!reminder.ShouldAutoCancel(c.ThirdReminderSentAt, s.clock.Now()) {
			return errSkip
		}
		s.cancel(c, ch, *c.EndDate, nil)
		return nil
	})
}

// AutoDecline declines the renewal of a contract that ran out of reminder time.
func (s *Service) AutoDecline(ctx context.Context, id string, today time.Time) (*models.Contract, error) {
	return s.transition(ctx, id, types.ContractChangeReasonAutoDecline, "", func(_ *gorm.DB, c *models.Contract, _ *change) error {
		if !c.IsRental() || c.Renewed() || c.RenewalStatus != types.RenewalStatusReminded ||
			!reminder.ShouldAutoDecline(s.reminderInput(c, today)) {
			return errSkip
		}
		now := s.clock.Now()
		c.RenewalStatus = types.RenewalStatusDeclined
		c.RenewalDeclinedAt = &now
		return nil
	})
}

// Activate starts a contract whose start date has arrived.
func (s *Service) Activate(ctx context.Context, id string, today time.Time) (*models.Contract, error) {
	return s.transition(ctx, id, types.ContractChangeReasonActivate, "", func(_ *gorm.DB, c *models.Contract, _ *change) error {
		if c.Status != types.ContractStatusInactive || c.AwaitingPayment || c.StartDate.After(today) {
			return errSkip
		}
		c.Status = types.ContractStatusActive
		return nil
	})
}

// Expire ends a contract past its end date. Renewed contracts keep their household
// because the successor takes it over.
func (s *Service) Expire(ctx context.Context, id string, today time.Time) (*models.Contract, error) {
	return s.transition(ctx, id, types.ContractChangeReasonExpire, "", func(_ *gorm.DB, c *models.Contract, ch *change) error {
		if c.Status != types.ContractStatusActive || c.EndDate == nil || !c.EndDate.Before(today) {
			return errSkip
		}
		c.Status = types.ContractStatusExpired
		if c.IsRental() && !c.Renewed() {
			ch.enqueue(sideeffect.TeardownTask(c))
		}
		return nil
	})
}

// ExtendContract moves the end date forward in place and starts a new reminder cycle.
func (s *Service) ExtendContract(ctx context.Context, id string, newEnd time.Time, actingUser string) (*models.Contract, error) {
	if err := s.checkOwnerOf(ctx, id, actingUser); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, types.ContractChangeReasonExtend, actingUser, func(_ *gorm.DB, c *models.Contract, ch *change) error {
		if err := requireActiveRental(c); err != nil {
			return err
		}
		if err := requireSettled(c); err != nil {
			return err
		}
		if c.EndDate == nil {
			return errs.Precondition(errs.ReasonDateRule, "contract %s has no end date", c.ContractNumber)
		}
		if !newEnd.After(*c.EndDate) {
			return errs.Precondition(errs.ReasonDateRule, "new end date %s must be after %s",
				newEnd.Format(sideeffect.DateLayout), c.EndDate.Format(sideeffect.DateLayout))
		}
		ch.set("previous_end_date", c.EndDate.Format(sideeffect.DateLayout))
		c.EndDate = &newEnd
		c.RenewalStatus = types.RenewalStatusPending
		c.RenewalReminderSentAt = nil
		c.ThirdReminderSentAt = nil
		c.RenewalDeclinedAt = nil
		c.LastDismissedReminderCount = 0
		return nil
	})
}

// Checkout ends a rental early on the tenant's move-out date.
func (s *Service) Checkout(ctx context.Context, id string, checkoutDate time.Time, actingUser string) (*models.Contract, error) {
	if err := s.checkOwnerOf(ctx, id, actingUser); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, types.ContractChangeReasonCheckout, actingUser, func(_ *gorm.DB, c *models.Contract, ch *change) error {
		if err := requireActiveRental(c); err != nil {
			return err
		}
		if err := requireSettled(c); err != nil {
			return err
		}
		if checkoutDate.Before(c.StartDate) {
			return errs.Precondition(errs.ReasonDateRule, "checkout date %s is before the start date", checkoutDate.Format(sideeffect.DateLayout))
		}
		if c.EndDate != nil && checkoutDate.After(*c.EndDate) {
			return errs.Precondition(errs.ReasonDateRule, "checkout date %s is after the end date", checkoutDate.Format(sideeffect.DateLayout))
		}
		c.Status = types.ContractStatusCancelled
		c.CheckoutDate = &checkoutDate
		ch.enqueue(sideeffect.TeardownTask(c))
		return nil
	})
}

// checkOwnerOf runs the ownership lookup outside the transaction because it calls another service.
func (s *Service) checkOwnerOf(ctx context.Context, id, actingUser string) error {
	if actingUser == "" {
		return nil
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.requireOwner(ctx, actingUser, c)
}

// GetContractsNeedingPopup lists the unit's reminded contracts whose current stage was not dismissed yet.
func (s *Service) GetContractsNeedingPopup(ctx context.Context, unitID string) ([]*models.Contract, error) {
	candidates, err := s.store.FindPopupCandidates(ctx, unitID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Contract, 0, len(candidates))
	for _, c := range candidates {
		if reminder.ShouldSurface(s.CurrentStage(c), c.LastDismissedReminderCount) {
			out = append(out, c)
		}
	}
	return out, nil
}
