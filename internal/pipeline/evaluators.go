package pipeline

import (
	"context"
	"fmt"

	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/pkg/httputil"
)

// PlaceholderEvaluator stands in for a pillar that is not implemented yet.
// It always reports the neutral score with state PLACEHOLDER.
type PlaceholderEvaluator struct {
	pillar contracts.PillarName
}

// NewPlaceholderEvaluator creates a placeholder for p
func NewPlaceholderEvaluator(p contracts.PillarName) *PlaceholderEvaluator {
	return &PlaceholderEvaluator{pillar: p}
}

func (e *PlaceholderEvaluator) Pillar() contracts.PillarName { return e.pillar }

func (e *PlaceholderEvaluator) Evaluate(ctx context.Context, _ *contracts.MarketSnapshot) (contracts.PillarResult, error) {
	return contracts.PillarResult{
		Name:  e.pillar,
		Score: contracts.NeutralScore,
		Bias:  contracts.BiasNeutral,
		State: contracts.StatePlaceholder,
	}, ctx.Err()
}

// RemoteRequest is the body posted to a remote pillar evaluator
type RemoteRequest struct {
	Pillar   contracts.PillarName      `json:"pillar"`
	Snapshot *contracts.MarketSnapshot `json:"snapshot"`
}

// RemoteEvaluator delegates a pillar to an HTTP service.
// The service answers with a PillarResult; weight may be omitted.
type RemoteEvaluator struct {
	pillar contracts.PillarName
	url    string
	client *httputil.Client
}

// NewRemoteEvaluator creates an evaluator that POSTs snapshots to url
func NewRemoteEvaluator(p contracts.PillarName, url string, client *httputil.Client) *RemoteEvaluator {
	return &RemoteEvaluator{pillar: p, url: url, client: client}
}

func (e *RemoteEvaluator) Pillar() contracts.PillarName { return e.pillar }

func (e *RemoteEvaluator) Evaluate(ctx context.Context, snapshot *contracts.MarketSnapshot) (contracts.PillarResult, error) {
	var result contracts.PillarResult
	err := e.client.PostJSONInto(ctx, e.url, RemoteRequest{Pillar: e.pillar, Snapshot: snapshot}, &result)
	if err != nil {
		return contracts.PillarResult{}, fmt.Errorf("%s evaluator: %w", e.pillar, err)
	}
	if result.Name == "" {
		result.Name = e.pillar
	}
	return result, nil
}

// BuildEvaluators returns one evaluator per pillar: remote where a URL is
// configured, placeholder otherwise
func BuildEvaluators(urls map[string]string, client *httputil.Client) []contracts.PillarEvaluator {
	out := make([]contracts.PillarEvaluator, 0, contracts.PillarCount)
	for _, p := range contracts.AllPillars() {
		if url, ok := urls[string(p)]; ok && url != "" {
			out = append(out, NewRemoteEvaluator(p, url, client))
			continue
		}
		out = append(out, NewPlaceholderEvaluator(p))
	}
	return out
}
