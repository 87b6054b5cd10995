package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Operation identifies what a step does with its operands.
type Operation string

const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
	// OpFinalize is the equals action recorded as a step: it carries no
	// second operand and its result is its first operand unchanged.
	OpFinalize Operation = "finalize"
)

// ParseOperation maps a wire string onto an Operation.
func ParseOperation(s string) (Operation, bool) {
	switch Operation(s) {
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpFinalize:
		return Operation(s), true
	}
	return "", false
}

// IsBinary reports whether the operation needs a second operand.
func (op Operation) IsBinary() bool {
	return op != OpFinalize
}

// Step is one committed entry in the calculation chain.
//
// Operand1 of every step after the first is derived from the previous step's
// result; recalculation re-establishes that after any edit or insertion.
// Result is nil when the step cannot be resolved (binary operation with a
// missing second operand, or an unresolved upstream step) and NaN when the
// arithmetic itself failed (division by zero). Both render as "Error".
type Step struct {
	ID        string    `json:"id"`
	Operand1  float64   `json:"operand1"`
	Operand2  *float64  `json:"operand2,omitempty"`
	Operation Operation `json:"operation"`
	Result    *float64  `json:"result,omitempty"`
}

// NewStepID returns a fresh opaque step identifier.
func NewStepID() string {
	return uuid.New().String()
}

// stepWire is the persisted and HTTP shape of a Step. encoding/json refuses
// non-finite floats, but a division-by-zero result must survive both the
// store and the API, so numeric fields go through wireNumber.
type stepWire struct {
	ID        string      `json:"id"`
	Operand1  wireNumber  `json:"operand1"`
	Operand2  *wireNumber `json:"operand2,omitempty"`
	Operation Operation   `json:"operation"`
	Result    *wireNumber `json:"result,omitempty"`
}

// wireNumber is a float64 that encodes NaN and the infinities as strings.
type wireNumber float64

func (n wireNumber) MarshalJSON() ([]byte, error) {
	v := float64(n)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (n *wireNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*n = wireNumber(math.NaN())
		case "+Inf":
			*n = wireNumber(math.Inf(1))
		case "-Inf":
			*n = wireNumber(math.Inf(-1))
		default:
			return fmt.Errorf("invalid numeric value %q", s)
		}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = wireNumber(v)
	return nil
}

func toWire(v *float64) *wireNumber {
	if v == nil {
		return nil
	}
	n := wireNumber(*v)
	return &n
}

func fromWire(n *wireNumber) *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepWire{
		ID:        s.ID,
		Operand1:  wireNumber(s.Operand1),
		Operand2:  toWire(s.Operand2),
		Operation: s.Operation,
		Result:    toWire(s.Result),
	})
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var w stepWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.ID = w.ID
	s.Operand1 = float64(w.Operand1)
	s.Operand2 = fromWire(w.Operand2)
	s.Operation = w.Operation
	s.Result = fromWire(w.Result)
	return nil
}

// resolve computes a step's result from its operands. Division by zero
// yields NaN rather than an error: the chain stays walkable and the error
// state travels forward through later operand1 values as ordinary data.
// A binary operation without a second operand resolves to nil (absent).
func resolve(operand1 float64, operand2 *float64, op Operation) *float64 {
	if op == OpFinalize {
		v := operand1
		return &v
	}
	if operand2 == nil {
		return nil
	}

	var v float64
	switch op {
	case OpAdd:
		v = operand1 + *operand2
	case OpSubtract:
		v = operand1 - *operand2
	case OpMultiply:
		v = operand1 * *operand2
	case OpDivide:
		if *operand2 == 0 {
			v = math.NaN()
		} else {
			v = operand1 / *operand2
		}
	default:
		return nil
	}
	return &v
}

// FormatValue renders a numeric value for display: integral values carry no
// fractional part, non-finite values render as the literal error marker.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrorDisplay
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
