package entities

import "time"

// Email queue priorities.
const (
	EmailPriorityHigh   = "high"
	EmailPriorityMedium = "medium"
	EmailPriorityLow    = "low"
)

// EmailQueueItem is a deferred-delivery record created when both providers
// fail for a message. Swept periodically until it succeeds or exhausts
// MaxRetries, at which point it is removed.
type EmailQueueItem struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	To          string     `gorm:"size:320;not null" json:"to"`
	Subject     string     `gorm:"size:998;not null" json:"subject"`
	HTMLBody    string     `gorm:"type:text;not null" json:"html_body"`
	TextBody    string     `gorm:"type:text;not null" json:"text_body"`
	Priority    string     `gorm:"size:8;not null;default:'medium';index" json:"priority"`
	RetryCount  int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries  int        `gorm:"not null" json:"max_retries"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	Errors      StringList `gorm:"type:text" json:"errors"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (EmailQueueItem) TableName() string {
	return "email_queue"
}

// Retryable reports whether the item is due for another attempt at now,
// given the configured delay between attempts.
func (i *EmailQueueItem) Retryable(now time.Time, retryDelay time.Duration) bool {
	if i.RetryCount >= i.MaxRetries {
		return false
	}
	if i.LastAttempt == nil {
		return true
	}
	return now.Sub(*i.LastAttempt) >= retryDelay
}
