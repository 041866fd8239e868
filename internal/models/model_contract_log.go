package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/qhomebase/contract-renewal/pkg/types"
)

// ContractLog records every change to a contract.
// Use case: auditing and troubleshooting renewal decisions.
type ContractLog struct {
	ID         string `gorm:"column:id;type:uuid;primary_key;index:idx_contract_log_contract_id,priority:2,sort:desc" json:"id"`
	ContractID string `gorm:"column:contract_id;type:uuid;index:idx_contract_log_contract_id,priority:1;not null" json:"contract_id"`
	// Reason is the change reason.
	Reason types.ContractChangeReason `gorm:"column:reason;type:varchar(64);not null;index" json:"reason"`
	// Actor is the acting user id, or "system" for scheduler jobs.
	Actor string `gorm:"column:actor;type:varchar(64);not null" json:"actor"`
	// Before stores the contract before the change in JSON format.
	Before datatypes.JSONType[*Contract] `gorm:"column:before;type:jsonb;default:'null'" json:"before"`
	// After stores the contract after the change in JSON format.
	After datatypes.JSONType[*Contract] `gorm:"column:after;type:jsonb;default:'null'" json:"after"`
	// Extra stores additional context such as the reminder stage or trace id.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (ContractLog) TableName() string {
	return "contract_log"
}
