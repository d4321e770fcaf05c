package calibration

import (
	"time"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// File is the full calibration document (YAML)
type File struct {
	Meta       Meta       `yaml:"meta" json:"meta"`
	Weights    Weights    `yaml:"weights" json:"weights"`
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
	Execution  Execution  `yaml:"execution" json:"execution"`
	Drift      Drift      `yaml:"drift" json:"drift"`
	Timeline   Timeline   `yaml:"timeline" json:"timeline"`
}

// Meta 메타 정보
type Meta struct {
	Version     string `yaml:"version" json:"version"` // 결정마다 그대로 기록됨
	Description string `yaml:"description" json:"description"`
}

// Weights 필러별 명목 가중치 (합 = 1.0)
type Weights struct {
	Trend      float64 `yaml:"trend" json:"trend"`
	Momentum   float64 `yaml:"momentum" json:"momentum"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Liquidity  float64 `yaml:"liquidity" json:"liquidity"`
	Sentiment  float64 `yaml:"sentiment" json:"sentiment"`
	Regime     float64 `yaml:"regime" json:"regime"`
}

// Of returns the nominal weight of a pillar
func (w Weights) Of(p contracts.PillarName) float64 {
	switch p {
	case contracts.PillarTrend:
		return w.Trend
	case contracts.PillarMomentum:
		return w.Momentum
	case contracts.PillarVolatility:
		return w.Volatility
	case contracts.PillarLiquidity:
		return w.Liquidity
	case contracts.PillarSentiment:
		return w.Sentiment
	case contracts.PillarRegime:
		return w.Regime
	default:
		return 0
	}
}

// Sum returns the sum of all weights
func (w Weights) Sum() float64 {
	return w.Trend + w.Momentum + w.Volatility + w.Liquidity + w.Sentiment + w.Regime
}

// Thresholds classify a 0~100 score into a bias.
// Same thresholds apply to single pillars and to the aggregate.
type Thresholds struct {
	BullishAbove float64 `yaml:"bullish_above" json:"bullish_above"`
	BearishBelow float64 `yaml:"bearish_below" json:"bearish_below"`
}

// Classify maps a score to BULLISH / BEARISH / NEUTRAL
func (t Thresholds) Classify(score float64) contracts.Bias {
	switch {
	case score > t.BullishAbove:
		return contracts.BiasBullish
	case score < t.BearishBelow:
		return contracts.BiasBearish
	default:
		return contracts.BiasNeutral
	}
}

// Execution 실행 가능 판정
type Execution struct {
	PlaceholderTolerance int `yaml:"placeholder_tolerance" json:"placeholder_tolerance"`
}

// Drift 드리프트 분류 임계값
type Drift struct {
	StableBelow   float64 `yaml:"stable_below" json:"stable_below"`
	ModerateBelow float64 `yaml:"moderate_below" json:"moderate_below"`
}

// Timeline 추세 판정
type Timeline struct {
	TrendEpsilon float64 `yaml:"trend_epsilon" json:"trend_epsilon"`
}

// Calibration is the explicit value handed to the aggregator on every call
type Calibration struct {
	Version                       string
	Weights                       Weights
	Thresholds                    Thresholds
	ExecutionPlaceholderTolerance int
}

// Calibration extracts the aggregator calibration from the file
func (f *File) Calibration() Calibration {
	return Calibration{
		Version:                       f.Meta.Version,
		Weights:                       f.Weights,
		Thresholds:                    f.Thresholds,
		ExecutionPlaceholderTolerance: f.Execution.PlaceholderTolerance,
	}
}

// Default returns the baseline calibration file
func Default() *File {
	return &File{
		Meta: Meta{
			Version:     "baseline-1.0",
			Description: "baseline six-pillar weights",
		},
		Weights: Weights{
			Trend:      0.30,
			Momentum:   0.20,
			Volatility: 0.10,
			Liquidity:  0.10,
			Sentiment:  0.10,
			Regime:     0.20,
		},
		Thresholds: Thresholds{BullishAbove: 55, BearishBelow: 45},
		Execution:  Execution{PlaceholderTolerance: 0},
		Drift:      Drift{StableBelow: 10, ModerateBelow: 25},
		Timeline:   Timeline{TrendEpsilon: 0.1},
	}
}

// Snapshot 캘리브레이션 스냅샷 (재현성용)
type Snapshot struct {
	Version    string    `json:"version"`
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	CreatedAt  time.Time `json:"created_at"`
}
