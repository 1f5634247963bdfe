package alerting

import (
	"strings"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
)

// Matches checks whether a vulnerability satisfies a rule's condition set.
// All present fields must pass (AND); absent fields are vacuously true.
// Pure and deterministic: no side effects, no clock access.
func Matches(vuln *entities.Vulnerability, conds *entities.AlertConditions) bool {
	if len(conds.Severities) > 0 && !containsFold(conds.Severities, vuln.Severity) {
		return false
	}
	if conds.CVSSMin != nil && vuln.CVSSScore < *conds.CVSSMin {
		return false
	}
	if conds.CVSSMax != nil && vuln.CVSSScore > *conds.CVSSMax {
		return false
	}
	if len(conds.AffectedSoftware) > 0 && !anySubstringMatch(vuln.AffectedSoftware, conds.AffectedSoftware) {
		return false
	}
	if len(conds.Tags) > 0 && !anySubstringMatch(vuln.Tags, conds.Tags) {
		return false
	}
	if conds.ExploitAvailable != nil && vuln.ExploitAvailable != *conds.ExploitAvailable {
		return false
	}
	if conds.PatchAvailable != nil && vuln.PatchAvailable != *conds.PatchAvailable {
		return false
	}
	if conds.KEV != nil && vuln.KEV != *conds.KEV {
		return false
	}
	if conds.PublishedAfter != nil && vuln.PublishedDate.Before(*conds.PublishedAfter) {
		return false
	}
	if conds.PublishedBefore != nil && !vuln.PublishedDate.Before(*conds.PublishedBefore) {
		return false
	}
	return true
}

// containsFold reports whether list contains value, case-insensitively.
func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// anySubstringMatch reports whether any vulnerability value contains any rule
// value as a case-insensitive substring (OR across both lists).
func anySubstringMatch(vulnValues, ruleValues []string) bool {
	for _, vv := range vulnValues {
		lower := strings.ToLower(vv)
		for _, rv := range ruleValues {
			if rv == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(rv)) {
				return true
			}
		}
	}
	return false
}
