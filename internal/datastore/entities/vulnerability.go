// Package entities defines the persistence models for alert rules, triggers,
// and the email retry queue.
package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Severity levels for vulnerabilities.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// StringList is a []string stored as a JSON column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// Vulnerability is a CVE record as handed to the alerting subsystem by the
// surrounding ingestion pipeline. Immutable once delivered.
type Vulnerability struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	CVEID            string     `gorm:"size:32;not null;uniqueIndex" json:"cve_id"`
	Severity         string     `gorm:"size:16;not null;index" json:"severity"`
	CVSSScore        float64    `gorm:"not null" json:"cvss_score"`
	Description      string     `gorm:"type:text;default:''" json:"description"`
	AffectedSoftware StringList `gorm:"type:text" json:"affected_software"`
	Tags             StringList `gorm:"type:text" json:"tags"`
	ExploitAvailable bool       `gorm:"not null;default:false" json:"exploit_available"`
	PatchAvailable   bool       `gorm:"not null;default:false" json:"patch_available"`
	KEV              bool       `gorm:"not null;default:false" json:"kev"`
	PublishedDate    time.Time  `gorm:"not null" json:"published_date"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Vulnerability) TableName() string {
	return "vulnerabilities"
}
