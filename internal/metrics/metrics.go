// Package metrics defines the OpenTelemetry instruments the orchestration
// engine reports on.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the engine's counters.
type Metrics struct {
	webhookEvents metric.Int64Counter
	callAttempts  metric.Int64Counter
	syncAttempts  metric.Int64Counter
}

// New registers the instruments on the global meter provider.
func New() (*Metrics, error) {
	meter := otel.Meter("clientdesk/orchestrator")

	webhookEvents, err := meter.Int64Counter("webhook_events_total",
		metric.WithDescription("Inbound webhook deliveries by processing result"))
	if err != nil {
		return nil, err
	}
	callAttempts, err := meter.Int64Counter("call_attempts_total",
		metric.WithDescription("Campaign call attempts by outcome"))
	if err != nil {
		return nil, err
	}
	syncAttempts, err := meter.Int64Counter("crm_sync_attempts_total",
		metric.WithDescription("Outbound CRM sync attempts by result"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents: webhookEvents,
		callAttempts:  callAttempts,
		syncAttempts:  syncAttempts,
	}, nil
}

// WebhookEvent counts one inbound delivery with its processing result.
func (m *Metrics) WebhookEvent(ctx context.Context, result string) {
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// CallAttempt counts one campaign call attempt.
func (m *Metrics) CallAttempt(ctx context.Context, success bool) {
	m.callAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// SyncAttempt counts one outbound sync attempt with its result.
func (m *Metrics) SyncAttempt(ctx context.Context, result string) {
	m.syncAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
