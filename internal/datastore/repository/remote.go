package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
)

// remoteTriggerStore implements TriggerStore over the internal HTTP API, for
// callers running outside the trusted execution context that holds a direct
// database handle.
type remoteTriggerStore struct {
	baseURL string
	client  *http.Client
}

// NewRemoteTriggerStore creates a TriggerStore backed by the internal HTTP
// API at baseURL.
func NewRemoteTriggerStore(baseURL string, timeout time.Duration) TriggerStore {
	return &remoteTriggerStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type activeRulesResponse struct {
	Rules []entities.AlertRule `json:"rules"`
	Total int64                `json:"total"`
}

// GetActiveRules fetches active rules from the internal API.
func (r *remoteTriggerStore) GetActiveRules(ctx context.Context, limit int) ([]entities.AlertRule, int64, error) {
	endpoint := r.baseURL + "/api/v1/alerts/rules/active"
	if limit > 0 {
		endpoint += "?limit=" + url.QueryEscape(strconv.Itoa(limit))
	}

	var resp activeRulesResponse
	if err := r.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch active rules: %w", err)
	}
	return resp.Rules, resp.Total, nil
}

type recordTriggerRequest struct {
	Trigger *entities.AlertTrigger `json:"trigger"`
	FiredAt time.Time              `json:"fired_at"`
}

// RecordTrigger posts the trigger record to the internal API, which performs
// the trigger insert and rule state update server-side.
func (r *remoteTriggerStore) RecordTrigger(ctx context.Context, trigger *entities.AlertTrigger, firedAt time.Time) error {
	endpoint := r.baseURL + "/api/v1/alerts/triggers"
	body := recordTriggerRequest{Trigger: trigger, FiredAt: firedAt}
	if err := r.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("failed to record trigger remotely: %w", err)
	}
	return nil
}

type triggerStatusRequest struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
}

// UpdateTriggerStatus patches the trigger's status via the internal API.
func (r *remoteTriggerStore) UpdateTriggerStatus(ctx context.Context, id, status string, attempts int) error {
	endpoint := r.baseURL + "/api/v1/alerts/triggers/" + url.PathEscape(id) + "/status"
	body := triggerStatusRequest{Status: status, Attempts: attempts}
	if err := r.do(ctx, http.MethodPatch, endpoint, body, nil); err != nil {
		return fmt.Errorf("failed to update trigger %s status remotely: %w", id, err)
	}
	return nil
}

func (r *remoteTriggerStore) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrAlertRuleNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("internal API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
