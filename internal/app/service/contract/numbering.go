package contract

import (
	"context"
	"fmt"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

const (
	renewalNumberFormat  = "HĐ-%s-%s – Gia hạn lần %d"
	numberCollisionTries = 10
	unknownUnitCode      = "N/A"
)

func typeLabel(t types.ContractType) string {
	if t == types.ContractTypePurchase {
		return "MUA"
	}
	return "THUÊ"
}

func renewalNumber(t types.ContractType, unitCode string, n int) string {
	return fmt.Sprintf(renewalNumberFormat, typeLabel(t), unitCode, n)
}

func temporaryNumber(predecessorNumber string, millis int64) string {
	return fmt.Sprintf("%s%s%d", predecessorNumber, models.LegacyRenewalTempMarker, millis)
}

// nextRenewalNumber picks the number the successor of predecessor gets on payment.
// It only reads, so asking twice before completion yields the same number.
func (s *Service) nextRenewalNumber(ctx context.Context, st *Store, predecessor, successor *models.Contract, unitCode string) (string, error) {
	count, err := CountRenewalSequence(ctx, st, predecessor)
	if err != nil {
		return "", fmt.Errorf("failed to count renewal sequence: %w", err)
	}
	n := count + 1
	for i := 0; i <= numberCollisionTries; i++ {
		candidate := renewalNumber(successor.ContractType, unitCode, n+i)
		existing, err := st.FindByContractNumber(ctx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil || existing.ID == successor.ID {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s-%d", renewalNumber(successor.ContractType, unitCode, n), s.clock.Now().UnixMilli()), nil
}

// unitCode never fails. Numbering falls back to a placeholder code when the unit service is down.
func (s *Service) unitCode(ctx context.Context, unitID string) string {
	code, err := s.units.GetUnitCode(ctx, unitID)
	if err != nil || code == "" {
		s.log.Warnw("unit code unavailable, using placeholder", "unit_id", unitID, "err", err)
		return unknownUnitCode
	}
	return code
}
