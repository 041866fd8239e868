package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

// Store is the gorm-backed contract store. Inside a transaction use WithTx.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

func (s *Store) Get(ctx context.Context, id string) (*models.Contract, error) {
	var c models.Contract
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("contract", id)
		}
		return nil, fmt.Errorf("failed to get contract %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) Create(ctx context.Context, c *models.Contract) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// UpdateVersioned writes every column of c if the row still has prevVersion.
func (s *Store) UpdateVersioned(ctx context.Context, c *models.Contract, prevVersion int64) error {
	res := s.db.WithContext(ctx).Model(c).
		Where("version = ?", prevVersion).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(c)
	if res.Error != nil {
		return fmt.Errorf("failed to update contract %s: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Precondition(errs.ReasonStale, "contract %s was modified concurrently", c.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, c *models.Contract) error {
	res := s.db.WithContext(ctx).Where("id = ? AND version = ?", c.ID, c.Version).Delete(&models.Contract{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete contract %s: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Precondition(errs.ReasonStale, "contract %s was modified concurrently", c.ID)
	}
	return nil
}

// FindByUnit returns every contract of the unit, oldest first.
func (s *Store) FindByUnit(ctx context.Context, unitID string) ([]*models.Contract, error) {
	var out []*models.Contract
	if err := s.db.WithContext(ctx).Where("unit_id = ?", unitID).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to find contracts of unit %s: %w", unitID, err)
	}
	return out, nil
}

// FindByContractNumber returns nil without error when no contract has the number.
func (s *Store) FindByContractNumber(ctx context.Context, number string) (*models.Contract, error) {
	var c models.Contract
	err := s.db.WithContext(ctx).Where("contract_number = ?", number).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contract by number: %w", err)
	}
	return &c, nil
}

// rentalCandidates is the base of every scheduler selection: live rental
// contracts that were never renewed and are not unpaid renewal placeholders.
func (s *Store) rentalCandidates(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Contract{}).
		Where("contract_type = ?", types.ContractTypeRental).
		Where("renewed_contract_id IS NULL").
		Where("awaiting_payment = ?", false)
}

// FindActiveRentalNearingEnd selects reminder candidates ending within [today, today+horizonDays].
func (s *Store) FindActiveRentalNearingEnd(ctx context.Context, today time.Time, horizonDays int) ([]*models.Contract, error) {
	var out []*models.Contract
	err := s.rentalCandidates(ctx).
		Where("status = ?", types.ContractStatusActive).
		Where("renewal_status IN ?", []types.RenewalStatus{types.RenewalStatusPending, types.RenewalStatusReminded}).
		Where("end_date >= ? AND end_date <= ?", today, today.AddDate(0, 0, horizonDays)).
		Order("end_date, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find contracts nearing end: %w", err)
	}
	return out, nil
}

// FindInactiveDueToday selects contracts whose start date has arrived. Dates
// before today are included so a missed activation run catches up.
func (s *Store) FindInactiveDueToday(ctx context.Context, today time.Time) ([]*models.Contract, error) {
	var out []*models.Contract
	err := s.db.WithContext(ctx).
		Where("status = ? AND awaiting_payment = ? AND start_date <= ?", types.ContractStatusInactive, false, today).
		Order("start_date, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find inactive contracts: %w", err)
	}
	return out, nil
}

func (s *Store) FindExpiredAsOf(ctx context.Context, today time.Time) ([]*models.Contract, error) {
	var out []*models.Contract
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", types.ContractStatusActive, today).
		Order("end_date, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired contracts: %w", err)
	}
	return out, nil
}

// FindDeclineCandidates selects reminded contracts. The expiration job may already
// have expired some of them, which still have to be declined.
func (s *Store) FindDeclineCandidates(ctx context.Context) ([]*models.Contract, error) {
	var out []*models.Contract
	err := s.rentalCandidates(ctx).
		Where("status IN ?", []types.ContractStatus{types.ContractStatusActive, types.ContractStatusExpired}).
		Where("renewal_status = ?", types.RenewalStatusReminded).
		Where("renewal_reminder_sent_at IS NOT NULL").
		Order("end_date, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find decline candidates: %w", err)
	}
	return out, nil
}

// FindAutoCancelCandidates selects contracts whose final reminder is older than cutoff.
func (s *Store) FindAutoCancelCandidates(ctx context.Context, cutoff time.Time) ([]*models.Contract, error) {
	var out []*models.Contract
	err := s.rentalCandidates(ctx).
		Where("status = ?", types.ContractStatusActive).
		Where("renewal_status = ?", types.RenewalStatusReminded).
		Where("third_reminder_sent_at IS NOT NULL AND third_reminder_sent_at < ?", cutoff).
		Where("end_date IS NOT NULL").
		Order("third_reminder_sent_at, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find auto-cancel candidates: %w", err)
	}
	return out, nil
}

func (s *Store) FindPopupCandidates(ctx context.Context, unitID string) ([]*models.Contract, error) {
	var out []*models.Contract
	err := s.rentalCandidates(ctx).
		Where("unit_id = ?", unitID).
		Where("status = ?", types.ContractStatusActive).
		Where("renewal_status = ?", types.RenewalStatusReminded).
		Where("renewal_reminder_sent_at IS NOT NULL").
		Order("end_date, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find popup contracts: %w", err)
	}
	return out, nil
}

// ScanSort orders scan results by an allowed column.
type ScanSort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

type ScanRequest struct {
	Filters []*types.CommonFilter `json:"filters"`
	Sort    []*ScanSort           `json:"sort"`
	From    int                   `json:"from" binding:"gte=0"`
	Size    int                   `json:"size" binding:"gte=0,lte=1000"`
}

// ScanFields lists the columns that filters and sorts may reference.
var ScanFields = []string{
	"id", "unit_id", "contract_number", "contract_type", "status", "renewal_status",
	"start_date", "end_date", "renewal_reminder_sent_at", "third_reminder_sent_at",
	"renewal_declined_at", "renewed_contract_id", "parent_contract_id", "is_renewal",
	"awaiting_payment", "created_at", "updated_at",
}

func (s *Store) Scan(ctx context.Context, req *ScanRequest) ([]*models.Contract, int64, error) {
	for _, f := range req.Filters {
		if err := f.Validate(ScanFields); err != nil {
			return nil, 0, errs.Validation("filters", "%s", err.Error())
		}
	}
	for _, o := range req.Sort {
		if !lo.Contains(ScanFields, o.Field) {
			return nil, 0, errs.Validation("sort", "sort field not allowed: %s", o.Field)
		}
	}

	q := s.db.WithContext(ctx).Model(&models.Contract{}).Where(types.FiltersWhere(req.Filters))
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	size := req.Size
	if size <= 0 {
		size = 100
	}
	for _, o := range req.Sort {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		q = q.Order(o.Field + " " + dir)
	}
	q = q.Order("id")

	var out []*models.Contract
	if err := q.Offset(req.From).Limit(size).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to scan contracts: %w", err)
	}
	return out, total, nil
}

// LinkRenewal writes c with its new RenewedContractID only if no other successor won the race.
func (s *Store) LinkRenewal(ctx context.Context, c *models.Contract, prevVersion int64) error {
	res := s.db.WithContext(ctx).Model(c).
		Where("version = ? AND renewed_contract_id IS NULL", prevVersion).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(c)
	if res.Error != nil {
		return fmt.Errorf("failed to link renewal of contract %s: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Precondition(errs.ReasonAlreadyRenewed, "contract %s was already renewed", c.ContractNumber)
	}
	return nil
}
