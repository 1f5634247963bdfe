package alerting

import (
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
)

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

// DefaultRules returns the built-in starter rules seeded when the rules
// table is empty. Each belongs to the system user and only enables the push
// channel so fresh installs never attempt unconfigured email delivery.
func DefaultRules() []entities.AlertRule {
	return []entities.AlertRule{
		{
			Name:            "Critical severity vulnerabilities",
			Description:     "Any vulnerability rated CRITICAL",
			IsActive:        true,
			BuiltIn:         true,
			CooldownMinutes: 5,
			Conditions: entities.AlertConditions{
				Severities: []string{entities.SeverityCritical},
			},
			Actions: entities.AlertActions{Push: true},
		},
		{
			Name:            "Known exploited vulnerabilities",
			Description:     "Vulnerabilities listed in the KEV catalog",
			IsActive:        true,
			BuiltIn:         true,
			CooldownMinutes: 0,
			Conditions: entities.AlertConditions{
				KEV: boolPtr(true),
			},
			Actions: entities.AlertActions{Push: true},
		},
		{
			Name:            "High-CVSS with public exploit",
			Description:     "Score 8.0 or above with an exploit available",
			IsActive:        true,
			BuiltIn:         true,
			CooldownMinutes: 15,
			Conditions: entities.AlertConditions{
				CVSSMin:          floatPtr(8.0),
				ExploitAvailable: boolPtr(true),
			},
			Actions: entities.AlertActions{Push: true},
		},
	}
}
