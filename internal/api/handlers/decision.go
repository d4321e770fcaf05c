package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/drift"
	"github.com/wonny/aegis/fusion/internal/fusion"
	"github.com/wonny/aegis/fusion/internal/timeline"
	"github.com/wonny/aegis/fusion/pkg/logger"
	"github.com/wonny/aegis/fusion/pkg/metrics"
)

// maxBodyBytes caps request bodies (two full decisions fit comfortably)
const maxBodyBytes = 1 << 20

// Runner is the evaluation side of the pipeline used by the API
type Runner interface {
	Evaluate(ctx context.Context, cal calibration.Calibration, snapshot *contracts.MarketSnapshot) (*contracts.Decision, error)
	Submit(ctx context.Context, cal calibration.Calibration, req fusion.Request) (*contracts.Decision, error)
}

// DecisionHandler serves decisions, drift and timelines
// ⭐ SSOT: 결정 API 핸들러는 이 구조체에서만
type DecisionHandler struct {
	runner   Runner
	ledger   contracts.DecisionLedger
	drift    *drift.Engine
	timeline *timeline.Engine
	cal      *calibration.File
	calHash  string
	metrics  *metrics.Recorder
	validate *validator.Validate
	logger   *logger.Logger
}

// NewDecisionHandler creates a new decision handler
func NewDecisionHandler(
	runner Runner,
	ledger contracts.DecisionLedger,
	driftEngine *drift.Engine,
	timelineEngine *timeline.Engine,
	cal *calibration.File,
	recorder *metrics.Recorder,
	log *logger.Logger,
) (*DecisionHandler, error) {
	if cal == nil {
		return nil, errors.New("calibration is required")
	}
	hash, err := calibration.Hash(cal)
	if err != nil {
		return nil, fmt.Errorf("hash calibration: %w", err)
	}

	return &DecisionHandler{
		runner:   runner,
		ledger:   ledger,
		drift:    driftEngine,
		timeline: timelineEngine,
		cal:      cal,
		calHash:  hash,
		metrics:  recorder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log,
	}, nil
}

// EvaluateRequest triggers one evaluation for the path symbol.
// With pillar_results the six results are fused directly; otherwise the
// configured evaluators run against snapshot (or an empty one).
type EvaluateRequest struct {
	AnalysisTimestamp *time.Time                `json:"analysis_timestamp,omitempty"`
	PillarResults     []contracts.PillarResult  `json:"pillar_results,omitempty" validate:"excluded_with=Snapshot"`
	DataAgeSeconds    *uint64                   `json:"data_age_seconds,omitempty"`
	Snapshot          *contracts.MarketSnapshot `json:"snapshot,omitempty"`
}

// DriftRequest compares two decisions supplied by the caller
type DriftRequest struct {
	Previous *contracts.Decision `json:"previous" validate:"required"`
	Current  *contracts.Decision `json:"current" validate:"required"`
}

// CalibrationResponse describes the active calibration
type CalibrationResponse struct {
	Version     string                `json:"version"`
	Hash        string                `json:"hash"`
	Calibration *calibration.File     `json:"calibration"`
	Warnings    []calibration.Warning `json:"warnings,omitempty"`
}

// historyQuery is the parsed ?limit&since&until window
type historyQuery struct {
	Limit int `validate:"gte=0,lte=10000"`
	Since *time.Time
	Until *time.Time
}

// Evaluate fuses one decision and appends it to the ledger
// POST /api/decisions/{symbol}/evaluate
func (h *DecisionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	var req EvaluateRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !h.validateStruct(w, &req) {
		return
	}

	cal := h.cal.Calibration()
	var (
		d   *contracts.Decision
		err error
	)

	// an explicit empty list is an incomplete submission, not a request to run evaluators
	if req.PillarResults != nil {
		fr := fusion.Request{
			Symbol:         symbol,
			Results:        req.PillarResults,
			DataAgeSeconds: req.DataAgeSeconds,
		}
		if req.AnalysisTimestamp != nil {
			fr.Timestamp = req.AnalysisTimestamp.UTC()
		}
		d, err = h.runner.Submit(r.Context(), cal, fr)
	} else {
		snapshot := req.Snapshot
		if snapshot == nil {
			snapshot = &contracts.MarketSnapshot{}
		}
		switch {
		case snapshot.Symbol == "":
			snapshot.Symbol = symbol
		case snapshot.Symbol != symbol:
			respondError(w, http.StatusBadRequest, fmt.Sprintf("snapshot symbol %q does not match %q", snapshot.Symbol, symbol))
			return
		}
		d, err = h.runner.Evaluate(r.Context(), cal, snapshot)
	}

	if err != nil {
		h.fail(w, err, "Failed to evaluate decision", symbol)
		return
	}

	respondJSON(w, http.StatusCreated, d)
}

// GetLatest returns the newest decision for a symbol
// GET /api/decisions/{symbol}/latest
func (h *DecisionHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	d, err := h.ledger.Latest(r.Context(), symbol)
	if err != nil {
		h.fail(w, err, "Failed to load latest decision", symbol)
		return
	}
	if d == nil {
		respondError(w, http.StatusNotFound, "No decision recorded for "+symbol)
		return
	}

	respondJSON(w, http.StatusOK, d)
}

// GetHistory returns decisions oldest → newest
// GET /api/decisions/{symbol}/history?limit=&since=&until=
func (h *DecisionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}

	history, err := h.ledger.History(r.Context(), symbol, filter)
	if err != nil {
		h.fail(w, err, "Failed to load decision history", symbol)
		return
	}
	if history == nil {
		history = []*contracts.Decision{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"count":     len(history),
		"decisions": history,
	})
}

// GetStatistics returns aggregate ledger statistics
// GET /api/decisions/{symbol}/statistics?limit=&since=&until=
func (h *DecisionHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}

	stats, err := h.ledger.Statistics(r.Context(), symbol, filter)
	if err != nil {
		h.fail(w, err, "Failed to compute statistics", symbol)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// GetTimeline returns conviction timeline statistics
// GET /api/decisions/{symbol}/timeline?limit=&since=&until=
func (h *DecisionHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}

	tl, err := h.timeline.ForSymbol(r.Context(), h.ledger, symbol, filter)
	if err != nil {
		h.fail(w, err, "Failed to compute timeline", symbol)
		return
	}

	respondJSON(w, http.StatusOK, tl)
}

// GetDrift compares the two most recent decisions of a symbol
// GET /api/decisions/{symbol}/drift
func (h *DecisionHandler) GetDrift(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbol(w, r)
	if !ok {
		return
	}

	m, err := h.drift.Latest(r.Context(), h.ledger, symbol)
	if err != nil {
		h.fail(w, err, "Failed to measure drift", symbol)
		return
	}
	h.metrics.RecordDrift(string(m.Classification))

	respondJSON(w, http.StatusOK, m)
}

// CompareDrift measures drift between two caller-supplied decisions
// POST /api/drift
func (h *DecisionHandler) CompareDrift(w http.ResponseWriter, r *http.Request) {
	var req DriftRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !h.validateStruct(w, &req) {
		return
	}

	m, err := h.drift.Drift(req.Previous, req.Current)
	if err != nil {
		h.fail(w, err, "Failed to measure drift", req.Current.Symbol)
		return
	}
	h.metrics.RecordDrift(string(m.Classification))

	respondJSON(w, http.StatusOK, m)
}

// GetCalibration returns the active calibration with its audit hash
// GET /api/calibration
func (h *DecisionHandler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, CalibrationResponse{
		Version:     h.cal.Meta.Version,
		Hash:        h.calHash,
		Calibration: h.cal,
		Warnings:    calibration.Warn(h.cal),
	})
}

func (h *DecisionHandler) symbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol := strings.TrimSpace(mux.Vars(r)["symbol"])
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return "", false
	}
	return symbol, true
}

// filter parses ?limit, ?since and ?until (RFC3339)
func (h *DecisionHandler) filter(w http.ResponseWriter, r *http.Request) (contracts.HistoryFilter, bool) {
	q := r.URL.Query()
	var hq historyQuery

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return contracts.HistoryFilter{}, false
		}
		hq.Limit = n
	}

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"since", &hq.Since},
		{"until", &hq.Until},
	} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, bound.name+" must be an RFC3339 timestamp")
			return contracts.HistoryFilter{}, false
		}
		ts = ts.UTC()
		*bound.dst = &ts
	}

	if !h.validateStruct(w, &hq) {
		return contracts.HistoryFilter{}, false
	}
	if hq.Since != nil && hq.Until != nil && hq.Since.After(*hq.Until) {
		respondError(w, http.StatusBadRequest, "since must not be after until")
		return contracts.HistoryFilter{}, false
	}

	return contracts.HistoryFilter{Limit: hq.Limit, Since: hq.Since, Until: hq.Until}, true
}

// validateStruct runs struct tag validation and writes a 400 on failure
func (h *DecisionHandler) validateStruct(w http.ResponseWriter, v interface{}) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}

	details := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
			"param": fe.Param(),
		})
	}
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "request validation failed",
		Kind:    "validation",
		Details: details,
	})
	return false
}

// fail writes a domain error, or logs and writes 500 for anything else
func (h *DecisionHandler) fail(w http.ResponseWriter, err error, message, symbol string) {
	if respondDomainError(w, err) {
		h.logger.WithField("symbol", symbol).WithError(err).Debug(message)
		return
	}
	if errors.Is(err, context.Canceled) {
		respondError(w, http.StatusServiceUnavailable, "request canceled")
		return
	}

	h.logger.WithField("symbol", symbol).WithError(err).Error(message)
	respondError(w, http.StatusInternalServerError, message)
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
