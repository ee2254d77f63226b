// Package bus provides event bus implementations for Ringscope.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/ringscope/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrClosed         = errors.New("bus is closed")
	ErrTenantRequired = errors.New("tenantID is required")
	ErrBufferFull     = errors.New("subscriber buffer full")
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage builds the envelope for a publish. Publishing as the global
// tenant is rejected.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) (*domain.Message, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if tenantID == domain.GlobalTenantID {
		return nil, fmt.Errorf("cannot publish as %s", domain.GlobalTenantID)
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata = map[string]string{domain.MetadataTraceID: sc.TraceID().String()}
	}
	return msg, nil
}
