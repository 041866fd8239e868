package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/app/service/sideeffect"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

type CreateRequest struct {
	UnitID         string             `json:"unit_id" validate:"required,max=64"`
	ContractNumber string             `json:"contract_number" validate:"required,max=255"`
	ContractType   types.ContractType `json:"contract_type" validate:"required,oneof=RENTAL PURCHASE"`
	StartDate      string             `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string             `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	MonthlyRent    *decimal.Decimal   `json:"monthly_rent"`
	PurchasePrice  *decimal.Decimal   `json:"purchase_price"`
	PurchaseDate   string             `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentMethod  string             `json:"payment_method" validate:"max=64"`
	PaymentTerms   string             `json:"payment_terms"`
	Notes          string             `json:"notes"`
}

// UpdateRequest changes descriptive fields. Nil fields are left as they are.
type UpdateRequest struct {
	ContractNumber *string          `json:"contract_number" validate:"omitempty,min=1,max=255"`
	MonthlyRent    *decimal.Decimal `json:"monthly_rent"`
	PurchasePrice  *decimal.Decimal `json:"purchase_price"`
	PurchaseDate   *string          `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentMethod  *string          `json:"payment_method" validate:"omitempty,max=64"`
	PaymentTerms   *string          `json:"payment_terms"`
	Notes          *string          `json:"notes"`
}

// ParseDate parses a calendar date in the wire layout.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(sideeffect.DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, errs.Validation(field, "invalid date %q", value)
	}
	return t, nil
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return errs.Validation(f.Field(), "failed on %s", f.Tag())
	}
	return errs.Validation("", "%s", err.Error())
}

func positive(field string, v *decimal.Decimal) error {
	if v == nil {
		return errs.Validation(field, "is required")
	}
	if !v.IsPositive() {
		return errs.Validation(field, "must be positive")
	}
	return nil
}

func (s *Service) buildContract(req *CreateRequest) (*models.Contract, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	start, err := ParseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	c := &models.Contract{
		ID:             tool.GenerateUUIDV7(),
		UnitID:         req.UnitID,
		ContractNumber: strings.TrimSpace(req.ContractNumber),
		ContractType:   req.ContractType,
		StartDate:      start,
		PaymentMethod:  req.PaymentMethod,
		PaymentTerms:   req.PaymentTerms,
		Notes:          req.Notes,
		RenewalStatus:  types.RenewalStatusPending,
	}
	switch req.ContractType {
	case types.ContractTypeRental:
		if err := positive("monthly_rent", req.MonthlyRent); err != nil {
			return nil, err
		}
		if req.EndDate == "" {
			return nil, errs.Validation("end_date", "is required for rental contracts")
		}
		end, err := ParseDate("end_date", req.EndDate)
		if err != nil {
			return nil, err
		}
		if !start.Before(end) {
			return nil, errs.Validation("end_date", "must be after start date")
		}
		if tool.MonthsBetween(start, end) < MinRenewalMonths {
			return nil, errs.Validation("end_date", "rental period must be at least %d months", MinRenewalMonths)
		}
		c.EndDate = &end
		c.MonthlyRent = req.MonthlyRent
	case types.ContractTypePurchase:
		if err := positive("purchase_price", req.PurchasePrice); err != nil {
			return nil, err
		}
		if req.EndDate != "" {
			return nil, errs.Validation("end_date", "purchase contracts have no end date")
		}
		if req.PurchaseDate == "" {
			return nil, errs.Validation("purchase_date", "is required for purchase contracts")
		}
		pd, err := ParseDate("purchase_date", req.PurchaseDate)
		if err != nil {
			return nil, err
		}
		c.PurchasePrice = req.PurchasePrice
		c.PurchaseDate = &pd
	}
	return c, nil
}

// Create stores a new contract. It starts ACTIVE when its start date has arrived.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*models.Contract, error) {
	c, err := s.buildContract(req)
	if err != nil {
		return nil, err
	}
	c.Status = types.ContractStatusInactive
	if !c.StartDate.After(s.clock.Today()) {
		c.Status = types.ContractStatusActive
	}

	ch := &change{reason: types.ContractChangeReasonCreate, actor: actorOr(logctx.UserID(ctx))}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.store.WithTx(tx).FindByContractNumber(ctx, c.ContractNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.Precondition(errs.ReasonDuplicate, "contract number %s already exists", c.ContractNumber)
		}
		return s.insert(ctx, tx, c, ch)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, c.ID, ch)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Contract, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByUnit(ctx context.Context, unitID string) ([]*models.Contract, error) {
	return s.store.FindByUnit(ctx, unitID)
}

// Update edits descriptive fields. Renewal numbers are fixed once the chain exists.
func (s *Service) Update(ctx context.Context, id string, req *UpdateRequest) (*models.Contract, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, types.ContractChangeReasonUpdate, logctx.UserID(ctx), func(tx *gorm.DB, c *models.Contract, _ *change) error {
		if req.ContractNumber != nil && strings.TrimSpace(*req.ContractNumber) != c.ContractNumber {
			if c.Renewed() || c.IsRenewal {
				return errs.Precondition(errs.ReasonAlreadyRenewed, "contract number of %s is part of a renewal chain", c.ContractNumber)
			}
			number := strings.TrimSpace(*req.ContractNumber)
			existing, err := s.store.WithTx(tx).FindByContractNumber(ctx, number)
			if err != nil {
				return err
			}
			if existing != nil {
				return errs.Precondition(errs.ReasonDuplicate, "contract number %s already exists", number)
			}
			c.ContractNumber = number
		}
		if req.MonthlyRent != nil {
			if !c.IsRental() {
				return errs.Validation("monthly_rent", "only rental contracts have a monthly rent")
			}
			if err := positive("monthly_rent", req.MonthlyRent); err != nil {
				return err
			}
			c.MonthlyRent = req.MonthlyRent
		}
		if req.PurchasePrice != nil {
			if c.IsRental() {
				return errs.Validation("purchase_price", "only purchase contracts have a purchase price")
			}
			if err := positive("purchase_price", req.PurchasePrice); err != nil {
				return err
			}
			c.PurchasePrice = req.PurchasePrice
		}
		if req.PurchaseDate != nil {
			if c.IsRental() {
				return errs.Validation("purchase_date", "only purchase contracts have a purchase date")
			}
			pd, err := ParseDate("purchase_date", *req.PurchaseDate)
			if err != nil {
				return err
			}
			c.PurchaseDate = &pd
		}
		if req.PaymentMethod != nil {
			c.PaymentMethod = *req.PaymentMethod
		}
		if req.PaymentTerms != nil {
			c.PaymentTerms = *req.PaymentTerms
		}
		if req.Notes != nil {
			c.Notes = *req.Notes
		}
		return nil
	})
}

// Delete removes a contract that is not referenced by a renewal chain.
func (s *Service) Delete(ctx context.Context, id string) error {
	ch := &change{reason: types.ContractChangeReasonDelete, actor: actorOr(logctx.UserID(ctx))}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := s.store.WithTx(tx)
		c, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.Renewed() {
			return errs.Precondition(errs.ReasonAlreadyRenewed, "contract %s was renewed and cannot be deleted", c.ContractNumber)
		}
		var children int64
		if err := tx.WithContext(ctx).Model(&models.Contract{}).Where("parent_contract_id = ?", id).Count(&children).Error; err != nil {
			return fmt.Errorf("failed to count renewals of %s: %w", id, err)
		}
		if children > 0 {
			return errs.Precondition(errs.ReasonAlreadyRenewed, "contract %s has renewal requests and cannot be deleted", c.ContractNumber)
		}
		var predecessors int64
		if err := tx.WithContext(ctx).Model(&models.Contract{}).Where("renewed_contract_id = ?", id).Count(&predecessors).Error; err != nil {
			return fmt.Errorf("failed to count predecessors of %s: %w", id, err)
		}
		if predecessors > 0 {
			return errs.Precondition(errs.ReasonAlreadyRenewed, "contract %s is the renewal of another contract and cannot be deleted", c.ContractNumber)
		}
		if err := st.Delete(ctx, c); err != nil {
			return err
		}
		return s.record(ctx, tx, c, nil, ch)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, id, ch)
	return nil
}
