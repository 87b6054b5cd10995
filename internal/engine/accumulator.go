package engine

import (
	"strconv"
	"strings"
)

// ErrorDisplay is the literal marker shown when the chain's visible value is
// non-finite or absent. The presentation layer renders it as-is.
const ErrorDisplay = "Error"

// state is the accumulator's position in the input state machine. The
// transient flags "awaiting operand2" and "displaying a finalized result"
// are positions here rather than separate booleans, so every transition is
// enumerable.
type state int

const (
	stateIdle state = iota
	stateEnteringOperand1
	stateAwaitingOperand2
	stateEnteringOperand2
	stateDisplayingResult
	stateError
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateEnteringOperand1:
		return "entering_operand1"
	case stateAwaitingOperand2:
		return "awaiting_operand2"
	case stateEnteringOperand2:
		return "entering_operand2"
	case stateDisplayingResult:
		return "displaying_result"
	case stateError:
		return "error"
	}
	return "unknown"
}

// accumulator tracks what the user is mid-typing: the display string and the
// input state. Committed arithmetic lives in the engine's step chain, never
// here.
type accumulator struct {
	display string
	state   state
}

func newAccumulator() accumulator {
	return accumulator{display: "0", state: stateIdle}
}

func (a *accumulator) reset() {
	a.display = "0"
	a.state = stateIdle
}

// showResult points the display at a committed result. A nil or non-finite
// result shows the error marker and enters the error state, which only a
// fresh digit exits.
func (a *accumulator) showResult(result *float64) {
	if result == nil {
		a.display = ErrorDisplay
		a.state = stateError
		return
	}
	a.display = FormatValue(*result)
	if a.display == ErrorDisplay {
		a.state = stateError
		return
	}
	a.state = stateDisplayingResult
}

// showIntermediate is showResult for a chained-entry commit: the display
// carries the running result while the next operand is awaited.
func (a *accumulator) showIntermediate(result *float64) {
	a.showResult(result)
	if a.state == stateDisplayingResult {
		a.state = stateAwaitingOperand2
	}
}

// inputToken feeds one digit or decimal-point token into the accumulator.
// It returns true when the token started a fresh calculation (leaving the
// error state or typing over a finalized result), which requires the caller
// to drop any pending operand/operation.
func (a *accumulator) inputToken(tok string) bool {
	fresh := a.state == stateError || a.state == stateDisplayingResult

	if tok == "." {
		switch a.state {
		case stateError, stateDisplayingResult, stateIdle:
			a.display = "0."
			a.state = stateEnteringOperand1
		case stateAwaitingOperand2:
			a.display = "0."
			a.state = stateEnteringOperand2
		default:
			if !strings.Contains(a.display, ".") {
				a.display += "."
			}
		}
		return fresh
	}

	switch a.state {
	case stateError, stateDisplayingResult, stateIdle:
		a.display = tok
		a.state = stateEnteringOperand1
	case stateAwaitingOperand2:
		a.display = tok
		a.state = stateEnteringOperand2
	default:
		if a.display == "0" {
			a.display = tok
		} else {
			a.display += tok
		}
	}
	return fresh
}

// value parses the display as a number. It fails for the error marker and
// any other non-numeric display text.
func (a *accumulator) value() (float64, error) {
	return strconv.ParseFloat(a.display, 64)
}

func validToken(tok string) bool {
	if tok == "." {
		return true
	}
	return len(tok) == 1 && tok[0] >= '0' && tok[0] <= '9'
}
