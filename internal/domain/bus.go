package domain

import (
	"context"
)

// EventBus carries batch submissions to workers and publishes results.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope for every bus payload.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// NATSQueueGroup load-balances global subscriptions across workers.
	NATSQueueGroup string
}

// Topics used by the analysis pipeline.
const (
	TopicBatchSubmitted  = "ringscope.batch.submitted"
	TopicReportCompleted = "ringscope.report.completed"
	TopicRingDetected    = "ringscope.ring.detected"
)

// GlobalTenantID subscribes a worker to batches from every tenant.
const GlobalTenantID = "_global"

// MetadataTraceID carries the publisher's trace ID.
const MetadataTraceID = "trace_id"

// Report completion statuses.
const (
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

// ReportCompletedEvent is published on TopicReportCompleted once a batch
// has been analyzed, successfully or not.
type ReportCompletedEvent struct {
	ReportID   string   `json:"report_id"`
	TenantID   string   `json:"tenant_id"`
	TraceID    string   `json:"trace_id,omitempty"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	Summary    *Summary `json:"summary,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// RingDetectedEvent is published on TopicRingDetected for every ring in a
// completed report.
type RingDetectedEvent struct {
	ReportID string `json:"report_id"`
	TenantID string `json:"tenant_id"`
	Ring     Ring   `json:"ring"`
}
