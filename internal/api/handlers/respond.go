package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/aegis/fusion/internal/contracts"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Kind    string      `json:"kind,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondDomainError maps engine errors onto HTTP statuses.
// Returns false when err is not a known domain error.
func respondDomainError(w http.ResponseWriter, err error) bool {
	var (
		cv       *contracts.ContractViolation
		inc      *contracts.IncompleteInput
		mismatch *contracts.SymbolMismatch
	)

	switch {
	case errors.As(err, &cv):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: cv.Error(), Kind: "contract_violation", Details: cv})
	case errors.As(err, &inc):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: inc.Error(), Kind: "incomplete_input", Details: inc})
	case errors.As(err, &mismatch):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: mismatch.Error(), Kind: "symbol_mismatch", Details: mismatch})
	case errors.Is(err, contracts.ErrDuplicateDecision):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "duplicate_decision"})
	case errors.Is(err, contracts.ErrOutOfOrder):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "out_of_order"})
	case errors.Is(err, contracts.ErrInvalidDecision):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "invalid_decision"})
	case errors.Is(err, contracts.ErrInsufficientHistory):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: "insufficient_history"})
	default:
		return false
	}
	return true
}
