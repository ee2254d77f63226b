package domain

import (
	"math"
	"time"
)

// Transaction is a single validated point-to-point transfer.
// Transactions are immutable once ingested.
type Transaction struct {
	ID         string    `json:"transaction_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Amount     float64   `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks that every required field is present and well formed.
// row is reported in the returned ValidationError; pass 0 when unknown.
func (t Transaction) Validate(row int) error {
	switch {
	case t.ID == "":
		return &ValidationError{Row: row, Field: "transaction_id", Reason: "is required"}
	case t.SenderID == "":
		return &ValidationError{Row: row, Field: "sender_id", Reason: "is required"}
	case t.ReceiverID == "":
		return &ValidationError{Row: row, Field: "receiver_id", Reason: "is required"}
	case math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0):
		return &ValidationError{Row: row, Field: "amount", Reason: "must be a finite number"}
	case t.Amount < 0:
		return &ValidationError{Row: row, Field: "amount", Reason: "cannot be negative"}
	case t.Timestamp.IsZero():
		return &ValidationError{Row: row, Field: "timestamp", Reason: "is required"}
	}
	return nil
}

// AnalysisRequest carries one batch of transactions through the pipeline.
type AnalysisRequest struct {
	// ReportID is assigned by the caller when the report must be addressable
	// before analysis completes (async batches). Empty means generate one.
	ReportID string `json:"reportId,omitempty"`
	TenantID string `json:"tenantId"`
	TraceID  string `json:"traceId,omitempty"`

	Transactions []Transaction `json:"transactions"`

	// Options overrides the analyzer defaults for this request only.
	Options *AnalysisOptions `json:"options,omitempty"`
}
