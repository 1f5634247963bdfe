package entities

import "time"

// Trigger delivery statuses.
const (
	TriggerStatusPending  = "pending"
	TriggerStatusSent     = "sent"
	TriggerStatusFailed   = "failed"
	TriggerStatusRetrying = "retrying"
)

// AlertTrigger records one rule matching one vulnerability at one point in
// time. It is the audit and idempotency anchor: exactly one row per match
// event, never mutated after creation except Status and Attempts.
type AlertTrigger struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	RuleID         uint      `gorm:"not null;index:idx_triggers_rule_created,priority:1" json:"rule_id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	CVEID          string    `gorm:"size:32;not null;index" json:"cve_id"`
	ConditionsJSON string    `gorm:"type:text;default:''" json:"conditions_json"`
	ActionsJSON    string    `gorm:"type:text;default:''" json:"actions_json"`
	Status         string    `gorm:"size:16;not null;default:'pending'" json:"status"`
	Attempts       int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_triggers_rule_created,priority:2" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertTrigger) TableName() string {
	return "alert_triggers"
}
