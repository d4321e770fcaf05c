package ledger

import (
	"fmt"
	"time"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func pillarResults(score float64) []contracts.PillarResult {
	weights := []float64{0.30, 0.20, 0.10, 0.10, 0.10, 0.20}
	bias := contracts.BiasNeutral
	switch {
	case score > 55:
		bias = contracts.BiasBullish
	case score < 45:
		bias = contracts.BiasBearish
	}

	out := make([]contracts.PillarResult, 0, contracts.PillarCount)
	for i, p := range contracts.AllPillars() {
		out = append(out, contracts.PillarResult{
			Name:    p,
			Score:   score,
			Bias:    bias,
			Weight:  weights[i],
			State:   contracts.StateActive,
			Metrics: map[string]float64{"raw": score},
		})
	}
	return out
}

// decision builds a fully-active decision with every pillar at score
func decision(symbol string, seq int, score float64) *contracts.Decision {
	results := pillarResults(score)
	weights := make(map[contracts.PillarName]float64, len(results))
	for _, r := range results {
		weights[r.Name] = r.Weight
	}

	return &contracts.Decision{
		DecisionID:         fmt.Sprintf("%s-%03d", symbol, seq),
		Symbol:             symbol,
		AnalysisTimestamp:  t0.Add(time.Duration(seq) * time.Hour),
		ContractVersion:    contracts.ContractVersion,
		CalibrationVersion: "baseline-1.0",
		PillarResults:      results,
		EffectiveWeights:   weights,
		ConvictionScore:    score,
		DirectionalBias:    results[0].Bias,
		Quality: contracts.AnalysisQuality{
			TotalPillars:  contracts.PillarCount,
			ActivePillars: contracts.PillarCount,
			FailedPillars: []contracts.PillarName{},
		},
		IsValid:            true,
		IsExecutionReady:   true,
		Warnings:           []string{},
		ReasoningNarrative: "test",
	}
}
