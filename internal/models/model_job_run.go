package models

import "time"

// JobRun stores the last claimed run of a scheduler job.
type JobRun struct {
	Name       string     `gorm:"column:name;type:varchar(64);primary_key" json:"name"`
	LastRunAt  *time.Time `gorm:"column:last_run_at" json:"last_run_at"`
	LastRunDay *time.Time `gorm:"column:last_run_day;type:date" json:"last_run_day"`
	LastResult string     `gorm:"column:last_result;type:text" json:"last_result"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (JobRun) TableName() string {
	return "job_run"
}
