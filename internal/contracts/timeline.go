package contracts

import "time"

// Trend 확신도 추세
type Trend string

const (
	TrendIncreasing Trend = "INCREASING"
	TrendDecreasing Trend = "DECREASING"
	TrendStable     Trend = "STABLE"
)

// TimelinePoint is one decision projected onto the timeline
type TimelinePoint struct {
	Timestamp       time.Time `json:"timestamp"`
	ConvictionScore float64   `json:"conviction_score"`
	Bias            Bias      `json:"bias"`
	ActivePillars   int       `json:"active_pillars"`
}

// Percentiles of conviction scores (linear interpolation)
type Percentiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
}

// ConvictionTimeline is a derived view over a ledger window
type ConvictionTimeline struct {
	Symbol               string          `json:"symbol,omitempty"`
	Points               []TimelinePoint `json:"points"`
	AverageConviction    float64         `json:"average_conviction"`
	ConvictionVolatility float64         `json:"conviction_volatility"`
	BiasConsistency      float64         `json:"bias_consistency"` // 0~1
	ConvictionTrend      Trend           `json:"conviction_trend"`
	RecentBias           Bias            `json:"recent_bias,omitempty"`
	BiasStreakCount      int             `json:"bias_streak_count"`
	Percentiles          Percentiles     `json:"percentiles"`
}
