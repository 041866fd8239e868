package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/qhomebase/contract-renewal/pkg/types"
)

// PaymentIntent correlates a gateway transaction reference with the renewal it pays for.
type PaymentIntent struct {
	ID                    string                    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TxnRef                string                    `gorm:"column:txn_ref;type:varchar(128);not null;uniqueIndex" json:"txn_ref"`
	ProviderID            types.PaymentProvider     `gorm:"column:provider_id;type:varchar(32);not null" json:"provider_id"`
	ContractID            string                    `gorm:"column:contract_id;type:uuid;not null;index" json:"contract_id"`
	PredecessorContractID string                    `gorm:"column:predecessor_contract_id;type:uuid;not null" json:"predecessor_contract_id"`
	PayerID               string                    `gorm:"column:payer_id;type:varchar(64)" json:"payer_id"`
	Amount                decimal.Decimal           `gorm:"column:amount;type:numeric(15,2);not null" json:"amount"`
	Status                types.PaymentIntentStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	ResponseCode          string                    `gorm:"column:response_code;type:varchar(16)" json:"response_code"`
	PaidAt                *time.Time                `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt             time.Time                 `json:"created_at"`
	UpdatedAt             time.Time                 `json:"updated_at"`
}

func (PaymentIntent) TableName() string {
	return "payment_intent"
}
