package calculator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chaincalc/internal/engine"
	"chaincalc/internal/observability"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracer is the calculator's dedicated OpenTelemetry tracer.
var tracer = otel.Tracer("calculator")

// Handlers serves the calculator endpoints over one shared engine. The
// engine accepts one operation at a time, so every access goes through the
// mutex: each operation runs to completion before the next is admitted.
type Handlers struct {
	mu  sync.Mutex
	eng *engine.Engine
}

func NewHandlers(eng *engine.Engine) *Handlers {
	return &Handlers{eng: eng}
}

// ---------------------------------------------------------------------------
// Handlers — entry
// ---------------------------------------------------------------------------

// Input handles POST /calculator/input — one digit or decimal-point token.
func (h *Handlers) Input(w http.ResponseWriter, r *http.Request) {
	h.handleMutation(w, r, "input", func(dec *json.Decoder) (string, error) {
		var req InputRequest
		if err := dec.Decode(&req); err != nil {
			return "", err
		}
		h.eng.InputDigit(req.Token)
		return req.Token, nil
	})
}

// Operation handles POST /calculator/operation — an operator or the
// finalize (equals) action.
func (h *Handlers) Operation(w http.ResponseWriter, r *http.Request) {
	h.handleMutation(w, r, "operation", func(dec *json.Decoder) (string, error) {
		var req OperationRequest
		if err := dec.Decode(&req); err != nil {
			return "", err
		}
		op, ok := engine.ParseOperation(req.Op)
		if !ok {
			return "", fmt.Errorf("unknown operation %q", req.Op)
		}
		h.eng.SetOperation(op)
		return req.Op, nil
	})
}

// ClearChain handles POST /calculator/clear — destroys the chain and resets
// the display.
func (h *Handlers) ClearChain(w http.ResponseWriter, r *http.Request) {
	h.handleMutation(w, r, "clear", func(*json.Decoder) (string, error) {
		h.eng.Clear()
		return "clear", nil
	})
}

// ---------------------------------------------------------------------------
// Handlers — step editing
// ---------------------------------------------------------------------------

// UpdateStep handles PATCH /calculator/steps/{id} — edits one committed
// step in place and recalculates every step after it.
func (h *Handlers) UpdateStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)
	stepID := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "calculator.update_step",
		trace.WithAttributes(
			attribute.String("calculator.operation", "update_step"),
			attribute.String("calculator.step.id", stepID),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	var req UpdateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, "update_step", "invalid request body", err, http.StatusBadRequest, w)
		return
	}

	start := time.Now()
	h.mu.Lock()
	found := h.eng.UpdateStep(stepID, req.Operand1, req.Operand2)
	snap := h.eng.Snapshot()
	h.mu.Unlock()
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if !found {
		observability.RecordError(ctx, span, logger, errorCounter, "update_step", "step not found", fmt.Errorf("no step with id %q", stepID), http.StatusNotFound, w)
		return
	}

	recordSuccess(ctx, span, logger, "update_step", snap, elapsed, requestID)
	writeState(w, http.StatusOK, snap)
}

// InsertStep handles POST /calculator/steps — inserts a step at an index,
// shifting later steps right, and recalculates the suffix.
func (h *Handlers) InsertStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, "calculator.insert_step",
		trace.WithAttributes(
			attribute.String("calculator.operation", "insert_step"),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	var req InsertStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, "insert_step", "invalid request body", err, http.StatusBadRequest, w)
		return
	}

	op, ok := engine.ParseOperation(req.Operation)
	if !ok {
		observability.RecordError(ctx, span, logger, errorCounter, "insert_step", "unknown operation", fmt.Errorf("operation %q", req.Operation), http.StatusBadRequest, w)
		return
	}

	span.SetAttributes(
		attribute.Int("calculator.step.index", req.Index),
		attribute.String("calculator.step.operation", req.Operation),
	)

	start := time.Now()
	h.mu.Lock()
	err := h.eng.InsertStep(engine.Step{
		Operand1:  req.Operand1,
		Operand2:  req.Operand2,
		Operation: op,
	}, req.Index)
	snap := h.eng.Snapshot()
	h.mu.Unlock()
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, "insert_step", err.Error(), err, http.StatusBadRequest, w)
		return
	}

	recordSuccess(ctx, span, logger, "insert_step", snap, elapsed, requestID)
	writeState(w, http.StatusCreated, snap)
}

// ---------------------------------------------------------------------------
// Handlers — read-only observation
// ---------------------------------------------------------------------------

// History handles GET /calculator/history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	snap := h.eng.Snapshot()
	h.mu.Unlock()
	writeState(w, http.StatusOK, snap)
}

// Display handles GET /calculator/display.
func (h *Handlers) Display(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	display := h.eng.DisplayValue()
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(DisplayResponse{Display: display})
}

// CurrentSnapshot is the initial payload sent to freshly connected stream
// clients.
func (h *Handlers) CurrentSnapshot() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.eng.Snapshot()
}

// ---------------------------------------------------------------------------
// Shared plumbing
// ---------------------------------------------------------------------------

// handleMutation is the shared implementation for the entry endpoints
// (input, operation, clear): custom child span, serialized engine access,
// custom metrics, trace-correlated structured logging, JSON state response.
func (h *Handlers) handleMutation(w http.ResponseWriter, r *http.Request, opName string, apply func(*json.Decoder) (string, error)) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, fmt.Sprintf("calculator.%s", opName),
		trace.WithAttributes(
			attribute.String("calculator.operation", opName),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	start := time.Now()
	h.mu.Lock()
	detail, err := apply(json.NewDecoder(r.Body))
	snap := h.eng.Snapshot()
	h.mu.Unlock()
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, opName, "invalid request body", err, http.StatusBadRequest, w)
		return
	}

	span.SetAttributes(attribute.String("calculator.detail", detail))
	recordSuccess(ctx, span, logger, opName, snap, elapsed, requestID)
	writeState(w, http.StatusOK, snap)
}

// recordSuccess emits the metrics, span event and structured log shared by
// every successful mutating endpoint.
func recordSuccess(ctx context.Context, span trace.Span, logger *zap.Logger, opName string, snap engine.Snapshot, elapsed float64, requestID string) {
	attrs := metric.WithAttributes(attribute.String("operation", opName))
	opsCounter.Add(ctx, 1, attrs)
	opsHistogram.Record(ctx, elapsed, attrs)
	chainLength.Record(ctx, int64(len(snap.Steps)), attrs)

	if v, err := strconv.ParseFloat(snap.Display, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		displayedLast.Record(ctx, v, attrs)
	}

	span.AddEvent("operation.complete", trace.WithAttributes(
		attribute.String("display", snap.Display),
		attribute.Int("chain.length", len(snap.Steps)),
		attribute.Float64("duration_ms", elapsed),
	))
	span.SetAttributes(attribute.String("calculator.display", snap.Display))
	span.SetStatus(codes.Ok, "")

	logger.Info("calculator operation completed",
		zap.String("operation", opName),
		zap.String("display", snap.Display),
		zap.Int("chain_length", len(snap.Steps)),
		zap.String("request_id", requestID),
		zap.Float64("duration_ms", elapsed),
	)
}

func writeState(w http.ResponseWriter, status int, snap engine.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(StateResponse{Steps: snap.Steps, Display: snap.Display})
}
