package domain

// PatternType is the structural fraud pattern a ring exhibits.
type PatternType string

const (
	PatternCycle             PatternType = "cycle"
	PatternFanIn             PatternType = "fan_in"
	PatternFanOut            PatternType = "fan_out"
	PatternShellNetwork      PatternType = "shell_network"
	PatternSuspiciousPattern PatternType = "suspicious_pattern"
)

// Base risk scores per pattern.
const (
	RiskCycle        = 95.0
	RiskShellNetwork = 90.0
	RiskFan          = 85.0
	RiskFallback     = 75.0
)

// MinRingSize is the smallest member count a ring may have.
const MinRingSize = 3

// Candidate is a ring proposed by a single detector, before deduplication.
type Candidate struct {
	Pattern   PatternType
	Members   []string
	Hub       string // fan rings only
	RiskScore float64
}

// Ring is a deduplicated, identified group of accounts.
type Ring struct {
	ID          string      `json:"ring_id"`
	Members     []string    `json:"member_accounts"`
	MemberCount int         `json:"member_count"`
	Pattern     PatternType `json:"pattern_type"`
	RiskScore   float64     `json:"risk_score"`

	// AggregateScore is the mean suspicion score of the ring members.
	AggregateScore float64 `json:"aggregate_score"`

	Hub string `json:"hub_account,omitempty"`
}

// Contains reports whether account is a ring member.
func (r *Ring) Contains(account string) bool {
	for _, m := range r.Members {
		if m == account {
			return true
		}
	}
	return false
}
