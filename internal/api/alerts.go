package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/repository"
	"github.com/vulnwatch/vulnwatch-go/internal/errors"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

const maxTriggerPageSize = 200

// ListAlertRules returns alert rules, optionally filtered.
func (c *Controller) ListAlertRules(ctx echo.Context) error {
	filter := repository.AlertRuleFilter{}
	if v := ctx.QueryParam("active"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}
	if v := ctx.QueryParam("built_in"); v != "" {
		builtIn := v == "true"
		filter.BuiltIn = &builtIn
	}
	if v := ctx.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid user ID"})
		}
		filter.UserID = uint(id)
	}

	rules, err := c.rules.ListRules(ctx.Request().Context(), filter)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list alert rules", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetAlertRule returns a single alert rule by ID.
func (c *Controller) GetAlertRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert rule not found"})
		}
		return c.handleError(ctx, err, "Failed to get alert rule", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, rule)
}

// CreateAlertRule creates a new alert rule.
func (c *Controller) CreateAlertRule(ctx echo.Context) error {
	var rule entities.AlertRule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if rule.Name == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Rule name is required"})
	}
	if rule.CooldownMinutes < 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Cooldown must not be negative"})
	}

	rule.ID = 0
	rule.BuiltIn = false
	rule.LastTriggered = nil
	rule.TriggerCount = 0

	if err := c.rules.CreateRule(ctx.Request().Context(), &rule); err != nil {
		return c.handleError(ctx, err, "Failed to create alert rule", http.StatusInternalServerError)
	}

	c.log.Info("alert rule created",
		logger.String("name", rule.Name),
		logger.Uint64("id", uint64(rule.ID)))

	return ctx.JSON(http.StatusCreated, rule)
}

// GetActiveRules serves remote coordinator instances: the active rule set
// in ascending ID order plus the total active count.
func (c *Controller) GetActiveRules(ctx echo.Context) error {
	limit := 0
	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		limit = n
	}

	rules, total, err := c.rules.GetActiveRules(ctx.Request().Context(), limit)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list active rules", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"total": total,
	})
}

// TestAlertRule fires a rule against a sample vulnerability, bypassing
// condition evaluation. The request body may carry a vulnerability to use;
// otherwise a synthetic one is substituted.
func (c *Controller) TestAlertRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert rule not found"})
		}
		return c.handleError(ctx, err, "Failed to get alert rule", http.StatusInternalServerError)
	}

	var vuln entities.Vulnerability
	if err := ctx.Bind(&vuln); err != nil || vuln.CVEID == "" {
		vuln = sampleVulnerability()
	}

	if c.coordinator != nil {
		c.coordinator.TriggerAlert(rule, &vuln)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"status": "test fired",
		"cve_id": vuln.CVEID,
	})
}

// EvaluateVulnerability hands a vulnerability to the event bus for rule
// evaluation. The call returns immediately; delivery outcomes land in the
// trigger history.
func (c *Controller) EvaluateVulnerability(ctx echo.Context) error {
	var vuln entities.Vulnerability
	if err := ctx.Bind(&vuln); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if vuln.CVEID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "CVE ID is required"})
	}

	if c.bus == nil || !c.bus.Publish(&vuln) {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Evaluation queue is full"})
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{
		"status": "queued",
		"cve_id": vuln.CVEID,
	})
}

// ListTriggers returns paginated trigger history.
func (c *Controller) ListTriggers(ctx echo.Context) error {
	filter := repository.AlertTriggerFilter{
		Status: ctx.QueryParam("status"),
		Limit:  50,
	}
	if v := ctx.QueryParam("rule_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
		}
		filter.RuleID = uint(id)
	}
	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		filter.Limit = min(n, maxTriggerPageSize)
	}
	if v := ctx.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid offset"})
		}
		filter.Offset = n
	}

	triggers, total, err := c.rules.ListTriggers(ctx.Request().Context(), filter)
	if err != nil {
		return c.handleError(ctx, err, "Failed to list triggers", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"triggers": triggers,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

type recordTriggerRequest struct {
	Trigger *entities.AlertTrigger `json:"trigger"`
	FiredAt time.Time              `json:"fired_at"`
}

// RecordTrigger persists a trigger on behalf of a remote coordinator and
// bumps the owning rule's trigger state in the same transaction.
func (c *Controller) RecordTrigger(ctx echo.Context) error {
	var req recordTriggerRequest
	if err := ctx.Bind(&req); err != nil || req.Trigger == nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Trigger.ID == "" || req.Trigger.RuleID == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Trigger ID and rule ID are required"})
	}
	if req.FiredAt.IsZero() {
		req.FiredAt = time.Now()
	}

	if err := c.rules.RecordTrigger(ctx.Request().Context(), req.Trigger, req.FiredAt); err != nil {
		if errors.Is(err, repository.ErrAlertRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert rule not found"})
		}
		return c.handleError(ctx, err, "Failed to record trigger", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusCreated, req.Trigger)
}

type triggerStatusRequest struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
}

// UpdateTriggerStatus updates a trigger's delivery outcome.
func (c *Controller) UpdateTriggerStatus(ctx echo.Context) error {
	id := ctx.Param("id")

	var req triggerStatusRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	switch req.Status {
	case entities.TriggerStatusPending, entities.TriggerStatusSent,
		entities.TriggerStatusFailed, entities.TriggerStatusRetrying:
	default:
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid trigger status"})
	}

	if err := c.rules.UpdateTriggerStatus(ctx.Request().Context(), id, req.Status, req.Attempts); err != nil {
		if errors.Is(err, repository.ErrTriggerNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Trigger not found"})
		}
		return c.handleError(ctx, err, "Failed to update trigger status", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	return uint(v), err
}

func sampleVulnerability() entities.Vulnerability {
	return entities.Vulnerability{
		CVEID:            "CVE-0000-0000",
		Severity:         entities.SeverityCritical,
		CVSSScore:        9.8,
		Description:      "Synthetic vulnerability for rule testing",
		AffectedSoftware: entities.StringList{"example-app"},
		ExploitAvailable: true,
		PublishedDate:    time.Now(),
	}
}
