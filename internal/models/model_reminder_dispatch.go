package models

import "time"

// ReminderDispatch is the ledger of reminder stages already sent.
// The unique key includes the end date so that extending a contract opens a new cycle.
type ReminderDispatch struct {
	ID         string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ContractID string    `gorm:"column:contract_id;type:uuid;not null;uniqueIndex:uq_reminder_dispatch,priority:1" json:"contract_id"`
	EndDate    time.Time `gorm:"column:end_date;type:date;not null;uniqueIndex:uq_reminder_dispatch,priority:2" json:"end_date"`
	Stage      int       `gorm:"column:stage;not null;uniqueIndex:uq_reminder_dispatch,priority:3" json:"stage"`
	SentAt     time.Time `gorm:"column:sent_at;not null" json:"sent_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ReminderDispatch) TableName() string {
	return "reminder_dispatch"
}
