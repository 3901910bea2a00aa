package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertWorkflowFailureRate AlertType = "workflow_failure_rate"
	AlertBreakerOpen         AlertType = "breaker_open"
	AlertDegradedWorkflows   AlertType = "degraded_workflows"
)

// minWorkflowsForRate is the sample size below which the failure rate is not judged.
const minWorkflowsForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	// Check workflow failure rate.
	if snap.WorkflowsTotal >= minWorkflowsForRate && a.cfg.FailureRateThreshold > 0 && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertWorkflowFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Workflow failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d in last %dh)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.WorkflowsFailed, snap.WorkflowsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate":   snap.FailureRate,
				"threshold":      a.cfg.FailureRateThreshold,
				"failed":         snap.WorkflowsFailed,
				"total":          snap.WorkflowsTotal,
				"stage_failures": snap.StageFailures,
			},
			Timestamp: now,
		})
	}

	// Check open breakers.
	if len(snap.OpenBreakers) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertBreakerOpen,
			Severity: "high",
			Message: fmt.Sprintf(
				"Circuit open for %s; affected stages are falling back to manual entry",
				strings.Join(snap.OpenBreakers, ", "),
			),
			Details: map[string]any{
				"breakers": snap.OpenBreakers,
			},
			Timestamp: now,
		})
	}

	// Check degraded workflows.
	if snap.WorkflowsDegraded > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedWorkflows,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d workflow(s) ran degraded in last %dh",
				snap.WorkflowsDegraded, snap.LookbackHours,
			),
			Details: map[string]any{
				"degraded": snap.WorkflowsDegraded,
				"total":    snap.WorkflowsTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
