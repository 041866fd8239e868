package contract

import (
	"context"
	"strings"
	"time"

	"github.com/qhomebase/contract-renewal/internal/app/service/sideeffect"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share a day. Touching ranges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// inLineage reports whether other is subject's own renewal history.
func inLineage(subject, other *models.Contract) bool {
	if other.ParentContractID != nil && *other.ParentContractID == subject.ID {
		return true
	}
	if subject.RenewedContractID != nil && *subject.RenewedContractID == other.ID {
		return true
	}
	if subject.ParentContractID != nil && *subject.ParentContractID == other.ID {
		return true
	}
	return strings.HasPrefix(other.ContractNumber, subject.ContractNumber+models.LegacyRenewalTempMarker)
}

// blocks reports whether other can conflict with a new period for subject.
func blocks(subject, other *models.Contract, today time.Time) bool {
	switch {
	case other.ID == subject.ID:
		return false
	case other.Status.Terminal(), other.Status == types.ContractStatusInactive:
		return false
	case other.AwaitingPayment:
		return false
	case other.EndDate == nil, other.EndDate.Before(today):
		return false
	case inLineage(subject, other):
		return false
	}
	return true
}

// findOverlap returns the first contract on the unit that conflicts with [start, end), or nil.
func findOverlap(ctx context.Context, st *Store, subject *models.Contract, start, end, today time.Time) (*models.Contract, error) {
	others, err := st.FindByUnit(ctx, subject.UnitID)
	if err != nil {
		return nil, err
	}
	for _, o := range others {
		if !blocks(subject, o, today) {
			continue
		}
		if Overlaps(start, end, o.StartDate, *o.EndDate) {
			return o, nil
		}
	}
	return nil, nil
}

func overlapError(o *models.Contract) error {
	return errs.Precondition(errs.ReasonOverlap, "period overlaps contract %s (%s to %s)",
		o.ContractNumber, o.StartDate.Format(sideeffect.DateLayout), o.EndDate.Format(sideeffect.DateLayout))
}

// ValidateRenewalPeriod checks whether RenewContract would accept the period, without writing anything.
func (s *Service) ValidateRenewalPeriod(ctx context.Context, id string, start, end time.Time) error {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireRenewable(c); err != nil {
		return err
	}
	if err := validateRenewalDates(start, end); err != nil {
		return err
	}
	o, err := findOverlap(ctx, s.store, c, start, end, s.clock.Today())
	if err != nil {
		return err
	}
	if o != nil {
		return overlapError(o)
	}
	return nil
}
