package domain

import (
	"time"
)

// Pattern tags attached to suspicious accounts.
const (
	TagCycle             = "cycle"
	TagAggregator        = "aggregator"
	TagDistributor       = "distributor"
	TagSmurfSender       = "smurf_sender"
	TagReceiver          = "receiver"
	TagShell             = "shell"
	TagSuspiciousPattern = "suspicious_pattern"
)

// SuspiciousAccount is derived from ring membership.
type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingID           string   `json:"ring_id"`
}

// Summary holds report-level counters.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	MerchantAccountsDetected  int     `json:"merchant_accounts_detected"`
	TotalTransactions         int     `json:"total_transactions"`
	NormalAccounts            int     `json:"normal_accounts"`
	RepeatOffenders           int     `json:"repeat_offenders"`
	SingleRingMembers         int     `json:"single_ring_members"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// Diagnostic is a detector failure surfaced in the report.
type Diagnostic struct {
	Detector string `json:"detector"`
	Error    string `json:"error"`
}

// Report is the complete analysis result for one batch.
type Report struct {
	ID        string    `json:"report_id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`

	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []Ring              `json:"fraud_rings"`
	Summary            Summary             `json:"summary"`
	Diagnostics        []Diagnostic        `json:"diagnostics,omitempty"`
}

// ReportSummary is the listing view of a stored report.
type ReportSummary struct {
	ID        string    `json:"report_id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	Summary   Summary   `json:"summary"`
}

// Node classes in a graph export.
const (
	NodeMerchant       = "merchant"
	NodeSingleRing     = "single_ring"
	NodeRepeatOffender = "repeat_offender"
	NodeNormal         = "normal"
)

// GraphNode is one account in a graph export.
type GraphNode struct {
	ID        string   `json:"id"`
	Class     string   `json:"class"`
	Rings     []string `json:"rings,omitempty"`
	InDegree  int      `json:"in_degree"`
	OutDegree int      `json:"out_degree"`
}

// GraphEdge is one transaction in a graph export.
type GraphEdge struct {
	TransactionID string    `json:"transaction_id"`
	Source        string    `json:"source"`
	Target        string    `json:"target"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// GraphExport is a renderer-neutral view of the analyzed transaction graph.
type GraphExport struct {
	ReportID  string      `json:"report_id"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	Truncated bool        `json:"truncated"`
}
