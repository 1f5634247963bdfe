package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AlertConditions is the optional-field conjunction a rule matches against.
// Every present field must pass independently; absent fields impose no
// constraint. Stored as a JSON column on the rule row.
type AlertConditions struct {
	Severities       []string   `json:"severities,omitempty"`
	CVSSMin          *float64   `json:"cvss_min,omitempty"`
	CVSSMax          *float64   `json:"cvss_max,omitempty"`
	AffectedSoftware []string   `json:"affected_software,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	ExploitAvailable *bool      `json:"exploit_available,omitempty"`
	PatchAvailable   *bool      `json:"patch_available,omitempty"`
	KEV              *bool      `json:"kev,omitempty"`
	PublishedAfter   *time.Time `json:"published_after,omitempty"`
	PublishedBefore  *time.Time `json:"published_before,omitempty"`
}

// Value implements driver.Valuer.
func (c AlertConditions) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *AlertConditions) Scan(src any) error {
	return scanJSON(src, c)
}

// WebhookAction configures the generic webhook channel.
type WebhookAction struct {
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"` // defaults to POST
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"`
}

// Chat webhook platforms with fixed payload shapes.
const (
	ChatPlatformSlack   = "slack"
	ChatPlatformDiscord = "discord"
)

// ChatWebhookAction configures one chat integration endpoint.
type ChatWebhookAction struct {
	Platform string `json:"platform"` // slack or discord
	URL      string `json:"url"`
	Channel  string `json:"channel,omitempty"`
}

// AlertActions is the set of independently enabled notification channels for
// a rule. Each present channel is attempted on its own; one channel's failure
// never affects the others.
type AlertActions struct {
	Email        bool                `json:"email"`
	Push         bool                `json:"push"`
	Webhook      *WebhookAction      `json:"webhook,omitempty"`
	ChatWebhooks []ChatWebhookAction `json:"chat_webhooks,omitempty"`
}

// Value implements driver.Valuer.
func (a AlertActions) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *AlertActions) Scan(src any) error {
	return scanJSON(src, a)
}

// AlertRule is a user-configured alert: one condition set, one action set,
// plus the trigger lifecycle fields the coordinator mutates.
type AlertRule struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Description     string          `gorm:"size:1000;default:''" json:"description"`
	IsActive        bool            `gorm:"not null;index" json:"is_active"`
	BuiltIn         bool            `gorm:"not null;default:false" json:"built_in"`
	CooldownMinutes int             `gorm:"not null;default:0" json:"cooldown_minutes"`
	LastTriggered   *time.Time      `json:"last_triggered,omitempty"`
	TriggerCount    int64           `gorm:"not null;default:0" json:"trigger_count"`
	Conditions      AlertConditions `gorm:"type:text" json:"conditions"`
	Actions         AlertActions    `gorm:"type:text" json:"actions"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}

// InCooldown reports whether the rule's cooldown window is still open at now.
func (r *AlertRule) InCooldown(now time.Time) bool {
	if r.CooldownMinutes <= 0 || r.LastTriggered == nil {
		return false
	}
	return r.LastTriggered.Add(time.Duration(r.CooldownMinutes) * time.Minute).After(now)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}
