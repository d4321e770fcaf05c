package calibration

import (
	"fmt"
	"math"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

const weightSumEpsilon = 1e-6

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(f *File) error {
	// === Meta ===
	if f.Meta.Version == "" {
		return ValidationError{"meta.version", "required"}
	}

	// === Weights ===
	for _, p := range contracts.AllPillars() {
		w := f.Weights.Of(p)
		if math.IsNaN(w) || w <= 0 || w > 1 {
			return ValidationError{"weights." + string(p), fmt.Sprintf("must be in (0, 1], got %v", w)}
		}
	}
	if sum := f.Weights.Sum(); math.Abs(sum-1.0) > weightSumEpsilon {
		return ValidationError{"weights", fmt.Sprintf("must sum to 1.0, got %.6f", sum)}
	}

	// === Thresholds ===
	t := f.Thresholds
	if t.BearishBelow < 0 || t.BullishAbove > 100 {
		return ValidationError{"thresholds", "must lie within [0, 100]"}
	}
	if t.BearishBelow > t.BullishAbove {
		return ValidationError{"thresholds", "bearish_below must be <= bullish_above"}
	}

	// === Execution ===
	if f.Execution.PlaceholderTolerance < 0 || f.Execution.PlaceholderTolerance > contracts.PillarCount {
		return ValidationError{"execution.placeholder_tolerance", fmt.Sprintf("must be in [0, %d]", contracts.PillarCount)}
	}

	// === Drift ===
	if f.Drift.StableBelow <= 0 || f.Drift.ModerateBelow <= f.Drift.StableBelow {
		return ValidationError{"drift", "must satisfy 0 < stable_below < moderate_below"}
	}

	// === Timeline ===
	if f.Timeline.TrendEpsilon < 0 {
		return ValidationError{"timeline.trend_epsilon", "must be >= 0"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(f *File) []Warning {
	var warnings []Warning

	// placeholder 허용 시 스텁 증거가 실행 등급으로 통과할 수 있음
	if f.Execution.PlaceholderTolerance > 0 {
		warnings = append(warnings, Warning{
			Code:    "PLACEHOLDER_TOLERATED",
			Message: fmt.Sprintf("%d placeholder pillar(s) allowed in execution-ready decisions", f.Execution.PlaceholderTolerance),
		})
	}

	// 중립 구간이 너무 좁으면 bias가 잡음에 따라 뒤집힘
	if f.Thresholds.BullishAbove-f.Thresholds.BearishBelow < 2 {
		warnings = append(warnings, Warning{
			Code:    "NARROW_NEUTRAL_BAND",
			Message: "neutral band < 2 points: bias will flip on noise",
		})
	}

	// 단일 필러 과대 가중
	for _, p := range contracts.AllPillars() {
		if f.Weights.Of(p) > 0.5 {
			warnings = append(warnings, Warning{
				Code:    "DOMINANT_PILLAR",
				Message: fmt.Sprintf("%s weight > 50%%: decision depends on one signal source", p),
			})
		}
	}

	return warnings
}
