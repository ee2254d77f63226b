package domain

import (
	"fmt"
	"time"
)

// AnalysisConfig holds every tunable threshold of the detection pipeline.
type AnalysisConfig struct {
	// Fan-in / fan-out
	FanWindow      time.Duration `json:"fanWindow"`
	FanMinCount    int           `json:"fanMinCount"`    // transactions per window
	FanMinDistinct int           `json:"fanMinDistinct"` // distinct counterparties per window

	// Cycles
	CycleMinLength  int `json:"cycleMinLength"`
	CycleMaxLength  int `json:"cycleMaxLength"`
	CycleStepBudget int `json:"cycleStepBudget"`

	// Shell networks (path length counted in nodes)
	ShellMinNodes     int `json:"shellMinNodes"`
	ShellMaxNodes     int `json:"shellMaxNodes"`
	ShellMaxDegree    int `json:"shellMaxDegree"`
	ShellCandidateCap int `json:"shellCandidateCap"`
	ShellStepBudget   int `json:"shellStepBudget"`

	// Merchant classification
	MerchantVolumeThreshold int                  `json:"merchantVolumeThreshold"`
	MerchantPatterns        []string             `json:"merchantPatterns"`
	MerchantPrefixes        []string             `json:"merchantPrefixes,omitempty"`
	MerchantExpressions     []MerchantExpression `json:"merchantExpressions,omitempty"`

	// FallbackEnabled emits a low-confidence suspicious_pattern ring when
	// nothing else is detected on a non-empty ledger.
	FallbackEnabled bool `json:"fallbackEnabled"`

	// DetectorTimeout bounds wall-clock time of each detector.
	DetectorTimeout time.Duration `json:"detectorTimeout"`
	DetectorWorkers int           `json:"detectorWorkers"`
}

// DefaultAnalysisConfig returns the documented detection defaults.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		FanWindow:               72 * time.Hour,
		FanMinCount:             4,
		FanMinDistinct:          3,
		CycleMinLength:          3,
		CycleMaxLength:          5,
		CycleStepBudget:         5_000_000,
		ShellMinNodes:           4,
		ShellMaxNodes:           6,
		ShellMaxDegree:          5,
		ShellCandidateCap:       50,
		ShellStepBudget:         2_000_000,
		MerchantVolumeThreshold: 15,
		MerchantPatterns:        []string{"MERCHANT", "PAYROLL", "VENDOR", "SHOP", "STORE"},
		FallbackEnabled:         true,
		DetectorTimeout:         10 * time.Second,
		DetectorWorkers:         4,
	}
}

// Validate checks thresholds before any analysis starts.
func (c AnalysisConfig) Validate() error {
	switch {
	case c.FanWindow <= 0:
		return configError("fanWindow", "must be positive")
	case c.FanMinCount < 2:
		return configError("fanMinCount", "must be at least 2")
	case c.FanMinDistinct < 2:
		return configError("fanMinDistinct", "must be at least 2")
	case c.FanMinDistinct > c.FanMinCount:
		return configError("fanMinDistinct", "cannot exceed fanMinCount")
	case c.CycleMinLength < 2:
		return configError("cycleMinLength", "must be at least 2")
	case c.CycleMaxLength < c.CycleMinLength:
		return configError("cycleMaxLength", "must be >= cycleMinLength")
	case c.CycleMaxLength > 10:
		return configError("cycleMaxLength", "must be at most 10")
	case c.ShellMinNodes < 3:
		return configError("shellMinNodes", "must be at least 3")
	case c.ShellMaxNodes < c.ShellMinNodes:
		return configError("shellMaxNodes", "must be >= shellMinNodes")
	case c.ShellMaxNodes > 12:
		return configError("shellMaxNodes", "must be at most 12")
	case c.ShellMaxDegree < 1:
		return configError("shellMaxDegree", "must be positive")
	case c.ShellCandidateCap < 0:
		return configError("shellCandidateCap", "cannot be negative")
	case c.CycleStepBudget <= 0:
		return configError("cycleStepBudget", "must be positive")
	case c.ShellStepBudget <= 0:
		return configError("shellStepBudget", "must be positive")
	case c.MerchantVolumeThreshold < 0:
		return configError("merchantVolumeThreshold", "cannot be negative")
	case c.DetectorTimeout <= 0:
		return configError("detectorTimeout", "must be positive")
	case c.DetectorWorkers < 1:
		return configError("detectorWorkers", "must be at least 1")
	}

	for i, expr := range c.MerchantExpressions {
		if expr.Expression == "" {
			return configError(fmt.Sprintf("merchantExpressions[%d]", i), "expression is required")
		}
	}
	return nil
}

// AnalysisOptions is a partial override of AnalysisConfig supplied per request.
// Nil fields keep the analyzer default.
type AnalysisOptions struct {
	FanWindowHours          *float64             `json:"fan_window_hours,omitempty"`
	FanMinCount             *int                 `json:"fan_min_count,omitempty"`
	FanMinDistinct          *int                 `json:"fan_min_distinct,omitempty"`
	CycleMinLength          *int                 `json:"cycle_min_length,omitempty"`
	CycleMaxLength          *int                 `json:"cycle_max_length,omitempty"`
	ShellMinNodes           *int                 `json:"shell_min_nodes,omitempty"`
	ShellMaxNodes           *int                 `json:"shell_max_nodes,omitempty"`
	ShellMaxDegree          *int                 `json:"shell_max_degree,omitempty"`
	ShellCandidateCap       *int                 `json:"shell_candidate_cap,omitempty"`
	MerchantVolumeThreshold *int                 `json:"merchant_volume_threshold,omitempty"`
	MerchantPatterns        []string             `json:"merchant_patterns,omitempty"`
	MerchantPrefixes        []string             `json:"merchant_prefixes,omitempty"`
	MerchantExpressions     []MerchantExpression `json:"merchant_expressions,omitempty"`
	FallbackEnabled         *bool                `json:"fallback_enabled,omitempty"`
}

// Apply returns a copy of base with the non-nil options written over it.
func (o *AnalysisOptions) Apply(base AnalysisConfig) AnalysisConfig {
	if o == nil {
		return base
	}
	cfg := base
	if o.FanWindowHours != nil {
		cfg.FanWindow = time.Duration(*o.FanWindowHours * float64(time.Hour))
	}
	setInt(&cfg.FanMinCount, o.FanMinCount)
	setInt(&cfg.FanMinDistinct, o.FanMinDistinct)
	setInt(&cfg.CycleMinLength, o.CycleMinLength)
	setInt(&cfg.CycleMaxLength, o.CycleMaxLength)
	setInt(&cfg.ShellMinNodes, o.ShellMinNodes)
	setInt(&cfg.ShellMaxNodes, o.ShellMaxNodes)
	setInt(&cfg.ShellMaxDegree, o.ShellMaxDegree)
	setInt(&cfg.ShellCandidateCap, o.ShellCandidateCap)
	setInt(&cfg.MerchantVolumeThreshold, o.MerchantVolumeThreshold)
	if o.MerchantPatterns != nil {
		cfg.MerchantPatterns = append([]string(nil), o.MerchantPatterns...)
	}
	if o.MerchantPrefixes != nil {
		cfg.MerchantPrefixes = append([]string(nil), o.MerchantPrefixes...)
	}
	if o.MerchantExpressions != nil {
		cfg.MerchantExpressions = append([]MerchantExpression(nil), o.MerchantExpressions...)
	}
	if o.FallbackEnabled != nil {
		cfg.FallbackEnabled = *o.FallbackEnabled
	}
	return cfg
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
