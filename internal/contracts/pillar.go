package contracts

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PillarName identifies one of the six signal dimensions
// ⭐ SSOT: 필러 집합은 여기서만 정의 (닫힌 집합, 런타임 추가 불가)
type PillarName string

const (
	PillarTrend      PillarName = "trend"
	PillarMomentum   PillarName = "momentum"
	PillarVolatility PillarName = "volatility"
	PillarLiquidity  PillarName = "liquidity"
	PillarSentiment  PillarName = "sentiment"
	PillarRegime     PillarName = "regime"
)

// PillarCount is the fixed size of the pillar set
const PillarCount = 6

// NeutralScore is the midpoint of the 0~100 score scale
const NeutralScore = 50.0

var allPillars = [PillarCount]PillarName{
	PillarTrend,
	PillarMomentum,
	PillarVolatility,
	PillarLiquidity,
	PillarSentiment,
	PillarRegime,
}

// AllPillars returns the six pillars in canonical order
func AllPillars() [PillarCount]PillarName {
	return allPillars
}

// Index returns the canonical position of the pillar, -1 if unknown
func (p PillarName) Index() int {
	switch p {
	case PillarTrend:
		return 0
	case PillarMomentum:
		return 1
	case PillarVolatility:
		return 2
	case PillarLiquidity:
		return 3
	case PillarSentiment:
		return 4
	case PillarRegime:
		return 5
	default:
		return -1
	}
}

// IsValid reports whether p is one of the six pillars
func (p PillarName) IsValid() bool {
	return p.Index() >= 0
}

// ParsePillarName parses a pillar name (case-insensitive)
func ParsePillarName(s string) (PillarName, error) {
	p := PillarName(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown pillar %q", s)
	}
	return p, nil
}

// PillarState tells whether the evaluator produced real evidence
type PillarState string

const (
	StateActive      PillarState = "ACTIVE"      // 실제 데이터로 평가
	StatePlaceholder PillarState = "PLACEHOLDER" // 스텁 (기본값 반환)
	StateFailed      PillarState = "FAILED"      // 오류 또는 타임아웃
)

// IsValid reports whether s is a known state
func (s PillarState) IsValid() bool {
	return s == StateActive || s == StatePlaceholder || s == StateFailed
}

// Bias is a directional classification
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
	// BiasInvalid is reserved for the aggregate decision
	BiasInvalid Bias = "INVALID"
)

// AllBiases returns every bias in declaration order
func AllBiases() []Bias {
	return []Bias{BiasBullish, BiasBearish, BiasNeutral, BiasInvalid}
}

// IsPillarBias reports whether b may appear on a single pillar
func (b Bias) IsPillarBias() bool {
	return b == BiasBullish || b == BiasBearish || b == BiasNeutral
}

// PillarResult is the output every pillar evaluator must produce
// ⭐ SSOT: 평가기 → 집계기 데이터 전달
type PillarResult struct {
	Name    PillarName         `json:"name" validate:"required,oneof=trend momentum volatility liquidity sentiment regime"`
	Score   float64            `json:"score" validate:"gte=0,lte=100"`
	Bias    Bias               `json:"bias" validate:"required,oneof=BULLISH BEARISH NEUTRAL"`
	Weight  float64            `json:"weight" validate:"gt=0,lte=1"`
	State   PillarState        `json:"state" validate:"required,oneof=ACTIVE PLACEHOLDER FAILED"`
	Metrics map[string]float64 `json:"metrics"`
}

var validate = validator.New()

// Validate is the admission check for evaluator output.
// Out-of-range values are rejected, never clamped.
func (r PillarResult) Validate() error {
	// NaN passes neither gte nor lte, but check explicitly for a clearer message
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return &ContractViolation{Pillar: r.Name, Field: "score", Message: "must be a finite number"}
	}
	if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
		return &ContractViolation{Pillar: r.Name, Field: "weight", Message: "must be a finite number"}
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ContractViolation{
				Pillar:  r.Name,
				Field:   strings.ToLower(verrs[0].Field()),
				Message: fieldErrorMessage(verrs[0]),
			}
		}
		return &ContractViolation{Pillar: r.Name, Message: err.Error()}
	}

	for k, v := range r.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ContractViolation{Pillar: r.Name, Field: "metrics." + k, Message: "must be a finite number"}
		}
	}

	// Placeholder 정책: 항상 중립값(50, NEUTRAL)만 허용
	if r.State == StatePlaceholder && (r.Score != NeutralScore || r.Bias != BiasNeutral) {
		return &ContractViolation{
			Pillar:  r.Name,
			Field:   "score",
			Message: fmt.Sprintf("placeholder must report neutral score 50/NEUTRAL, got %.2f/%s", r.Score, r.Bias),
		}
	}

	return nil
}

// Clone returns a deep copy (metrics map included)
func (r PillarResult) Clone() PillarResult {
	out := r
	out.Metrics = maps.Clone(r.Metrics)
	return out
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got %v)", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gt":
		return fmt.Sprintf("must be greater than %s (got %v)", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s (got %v)", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
