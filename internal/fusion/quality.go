package fusion

import "github.com/wonny/aegis/fusion/internal/contracts"

// Quality counts pillar states. dataAgeSeconds is the max staleness of the
// input data, supplied by the caller. Pure function.
func Quality(results []contracts.PillarResult, dataAgeSeconds *uint64) contracts.AnalysisQuality {
	q := contracts.AnalysisQuality{
		TotalPillars:  contracts.PillarCount,
		FailedPillars: []contracts.PillarName{},
	}

	for _, r := range results {
		switch r.State {
		case contracts.StateActive:
			q.ActivePillars++
		case contracts.StatePlaceholder:
			q.PlaceholderPillars++
		case contracts.StateFailed:
			q.FailedPillars = append(q.FailedPillars, r.Name)
		}
	}

	if dataAgeSeconds != nil {
		age := *dataAgeSeconds
		q.DataAgeSeconds = &age
	}

	return q
}
