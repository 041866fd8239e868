package models

import (
	"time"

	"gorm.io/datatypes"
)

type SideEffectKind string

const (
	SideEffectNotifyResidents   SideEffectKind = "notify_residents"
	SideEffectCreateInspection  SideEffectKind = "create_inspection"
	SideEffectHouseholdTeardown SideEffectKind = "household_teardown"
	SideEffectCreateInvoice     SideEffectKind = "create_invoice"
	SideEffectPublishEvent      SideEffectKind = "publish_event"
)

type SideEffectStatus string

const (
	SideEffectStatusPending SideEffectStatus = "pending"
	SideEffectStatusRunning SideEffectStatus = "running"
	SideEffectStatusDone    SideEffectStatus = "done"
	SideEffectStatusFailed  SideEffectStatus = "failed"
)

// SideEffectTask is an outbox row written in the same transaction as the state change it follows.
type SideEffectTask struct {
	ID            string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Kind          SideEffectKind    `gorm:"column:kind;type:varchar(64);not null" json:"kind"`
	DedupKey      string            `gorm:"column:dedup_key;type:varchar(255);not null;uniqueIndex" json:"dedup_key"`
	ContractID    string            `gorm:"column:contract_id;type:uuid;index" json:"contract_id"`
	Payload       datatypes.JSONMap `gorm:"column:payload;type:jsonb;default:'{}'" json:"payload"`
	Status        SideEffectStatus  `gorm:"column:status;type:varchar(32);not null;index:idx_side_effect_due,priority:1" json:"status"`
	Attempts      int               `gorm:"column:attempts;not null;default:0" json:"attempts"`
	NextAttemptAt time.Time         `gorm:"column:next_attempt_at;not null;index:idx_side_effect_due,priority:2" json:"next_attempt_at"`
	LastError     string            `gorm:"column:last_error;type:text" json:"last_error"`
	CompletedAt   *time.Time        `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (SideEffectTask) TableName() string {
	return "side_effect_task"
}
