package calculator

import "chaincalc/internal/engine"

// InputRequest is the JSON body for POST /calculator/input.
type InputRequest struct {
	Token string `json:"token"` // "0"…"9" or "."
}

// OperationRequest is the JSON body for POST /calculator/operation.
type OperationRequest struct {
	Op string `json:"op"` // "add", "subtract", "multiply", "divide", "finalize"
}

// UpdateStepRequest is the JSON body for PATCH /calculator/steps/{id}.
// Absent fields leave the corresponding operand untouched.
type UpdateStepRequest struct {
	Operand1 *float64 `json:"operand1,omitempty"`
	Operand2 *float64 `json:"operand2,omitempty"`
}

// InsertStepRequest is the JSON body for POST /calculator/steps. A zero (or
// omitted) operand1 at index > 0 derives the left operand from the
// predecessor's result.
type InsertStepRequest struct {
	Index     int      `json:"index"`
	Operand1  float64  `json:"operand1"`
	Operand2  *float64 `json:"operand2,omitempty"`
	Operation string   `json:"operation"`
}

// StateResponse is the JSON response for every mutating endpoint and for
// GET /calculator/history: the committed chain plus the display value.
type StateResponse struct {
	Steps   []engine.Step `json:"steps"`
	Display string        `json:"display"`
}

// DisplayResponse is the JSON response for GET /calculator/display.
type DisplayResponse struct {
	Display string `json:"display"`
}
