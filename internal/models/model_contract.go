package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qhomebase/contract-renewal/pkg/types"
)

// Legacy number markers written before parent_contract_id existed.
const (
	LegacyRenewalNameMarker = "Gia hạn lần"
	LegacyRenewalTempMarker = "-RENEW-"
)

// Contract is a rental or purchase agreement for a residential unit.
// Date columns hold the calendar day as UTC midnight.
type Contract struct {
	ID             string               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UnitID         string               `gorm:"column:unit_id;type:varchar(64);not null;index:idx_contract_unit_status,priority:1" json:"unit_id"`
	ContractNumber string               `gorm:"column:contract_number;type:varchar(255);not null;uniqueIndex" json:"contract_number"`
	ContractType   types.ContractType   `gorm:"column:contract_type;type:varchar(32);not null" json:"contract_type"`
	StartDate      time.Time            `gorm:"column:start_date;type:date;not null" json:"start_date"`
	EndDate        *time.Time           `gorm:"column:end_date;type:date;index" json:"end_date"`
	CheckoutDate   *time.Time           `gorm:"column:checkout_date;type:date" json:"checkout_date"`
	MonthlyRent    *decimal.Decimal     `gorm:"column:monthly_rent;type:numeric(15,2)" json:"monthly_rent"`
	PurchasePrice  *decimal.Decimal     `gorm:"column:purchase_price;type:numeric(15,2)" json:"purchase_price"`
	PurchaseDate   *time.Time           `gorm:"column:purchase_date;type:date" json:"purchase_date"`
	PaymentMethod  string               `gorm:"column:payment_method;type:varchar(64)" json:"payment_method"`
	PaymentTerms   string               `gorm:"column:payment_terms;type:text" json:"payment_terms"`
	Notes          string               `gorm:"column:notes;type:text" json:"notes"`
	Status         types.ContractStatus `gorm:"column:status;type:varchar(32);not null;default:ACTIVE;index:idx_contract_unit_status,priority:2" json:"status"`

	RenewalStatus              types.RenewalStatus `gorm:"column:renewal_status;type:varchar(32);not null;default:PENDING" json:"renewal_status"`
	RenewalReminderSentAt      *time.Time          `gorm:"column:renewal_reminder_sent_at" json:"renewal_reminder_sent_at"`
	ThirdReminderSentAt        *time.Time          `gorm:"column:third_reminder_sent_at" json:"third_reminder_sent_at"`
	RenewalDeclinedAt          *time.Time          `gorm:"column:renewal_declined_at" json:"renewal_declined_at"`
	LastDismissedReminderCount int                 `gorm:"column:last_dismissed_reminder_count;not null;default:0" json:"last_dismissed_reminder_count"`
	// RenewedContractID is set on the predecessor once its successor is paid.
	RenewedContractID *string `gorm:"column:renewed_contract_id;type:uuid;index" json:"renewed_contract_id"`
	ParentContractID  *string `gorm:"column:parent_contract_id;type:uuid;index" json:"parent_contract_id"`
	IsRenewal         bool    `gorm:"column:is_renewal;not null;default:false" json:"is_renewal"`
	// AwaitingPayment marks a renewal placeholder that must not activate or block other bookings.
	AwaitingPayment bool `gorm:"column:awaiting_payment;not null;default:false" json:"awaiting_payment"`

	Version   int64     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedBy string    `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	UpdatedBy string    `gorm:"column:updated_by;type:varchar(64)" json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Contract) TableName() string {
	return "contract"
}

func (c *Contract) IsRental() bool {
	return c != nil && c.ContractType == types.ContractTypeRental
}

// Renewed reports whether a successor already took over this contract.
func (c *Contract) Renewed() bool {
	return c != nil && c.RenewedContractID != nil && *c.RenewedContractID != ""
}

// LooksLikeRenewal checks the structural flags first and then the legacy number markers.
func (c *Contract) LooksLikeRenewal() bool {
	if c == nil {
		return false
	}
	if c.IsRenewal || c.ParentContractID != nil {
		return true
	}
	return strings.Contains(c.ContractNumber, LegacyRenewalNameMarker) ||
		strings.Contains(c.ContractNumber, LegacyRenewalTempMarker)
}

// Clone returns a shallow copy suitable for before/after change logs.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
