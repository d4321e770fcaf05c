package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching
var (
	ErrContractViolation = errors.New("contract violation")
	ErrIncompleteInput   = errors.New("incomplete input")
	ErrSymbolMismatch    = errors.New("symbol mismatch")
)

// ContractViolation 필러 결과 형식/범위 위반 (해당 평가 사이클 전체 거부)
type ContractViolation struct {
	Pillar  PillarName `json:"pillar,omitempty"`
	Field   string     `json:"field,omitempty"`
	Message string     `json:"message"`
}

func (e *ContractViolation) Error() string {
	switch {
	case e.Pillar != "" && e.Field != "":
		return fmt.Sprintf("contract violation: %s.%s %s", e.Pillar, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("contract violation: %s %s", e.Field, e.Message)
	default:
		return fmt.Sprintf("contract violation: %s", e.Message)
	}
}

func (e *ContractViolation) Is(target error) bool {
	return target == ErrContractViolation
}

// IncompleteInput 필러 결과가 6개가 아니거나 중복/누락
type IncompleteInput struct {
	Count      int          `json:"count"`
	Missing    []PillarName `json:"missing,omitempty"`
	Duplicates []PillarName `json:"duplicates,omitempty"`
}

func (e *IncompleteInput) Error() string {
	parts := []string{fmt.Sprintf("got %d pillar results, want %d", e.Count, PillarCount)}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+joinPillars(e.Missing))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, "duplicate: "+joinPillars(e.Duplicates))
	}
	return "incomplete input: " + strings.Join(parts, "; ")
}

func (e *IncompleteInput) Is(target error) bool {
	return target == ErrIncompleteInput
}

// SymbolMismatch 서로 다른 종목의 결정을 비교하려 함
type SymbolMismatch struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

func (e *SymbolMismatch) Error() string {
	return fmt.Sprintf("symbol mismatch: previous=%s current=%s", e.Previous, e.Current)
}

func (e *SymbolMismatch) Is(target error) bool {
	return target == ErrSymbolMismatch
}

func joinPillars(ps []PillarName) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
