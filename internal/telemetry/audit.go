package telemetry

import (
	"context"
	"log"

	"focuschat/internal/observability"
)

// AuditRecord is the audit payload consumed by the audit pipeline. The event
// envelope supplies the schema version and timestamp.
type AuditRecord struct {
	Service     string  `json:"service"`
	Environment string  `json:"environment"`
	UserID      *string `json:"user_id,omitempty"`
	Level       string  `json:"level"`
	Text        string  `json:"text"`
}

// AuditEmitter publishes audit events over the configured AMQP publisher.
type AuditEmitter struct {
	routingKey  string
	service     string
	environment string
}

func NewAuditEmitter(routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit event. Failures are logged, never surfaced; audit
// must not break the request path.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	if e == nil {
		return
	}

	ev := observability.Event{
		Stream:    e.routingKey,
		Type:      "audit",
		Name:      "audit_log",
		RequestID: requestID,
		Payload: AuditRecord{
			Service:     e.service,
			Environment: e.environment,
			UserID:      userID,
			Level:       level,
			Text:        text,
		},
	}
	if err := observability.PublishEvent(ctx, ev); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
