package engine

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Store persists the step chain. Load is called once at construction and
// Save after every committed mutation. Saves are best-effort: the engine
// logs failures and carries on.
type Store interface {
	Load() ([]Step, error)
	Save([]Step) error
}

// Snapshot is an immutable view of the engine published to observers after
// every change: the committed chain plus the current display string.
type Snapshot struct {
	Steps   []Step `json:"steps"`
	Display string `json:"display"`
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithOnChange installs a callback invoked synchronously with a fresh
// Snapshot after every state change, including display-only ones.
func WithOnChange(fn func(Snapshot)) Option {
	return func(e *Engine) { e.onChange = fn }
}

// Engine owns the ordered step chain and the input accumulator. It is not
// safe for concurrent use; callers serialize access (every operation runs to
// completion before the next is accepted).
type Engine struct {
	store    Store
	log      *zap.Logger
	onChange func(Snapshot)

	steps []Step
	acc   accumulator

	// Pending binary operation not yet committed as a step. The two fields
	// are always set and cleared together.
	pendingOperand1  *float64
	pendingOperation *Operation
}

// New builds an engine over store. A failed or absent load is logged and
// treated as empty history; it is never fatal.
func New(store Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store: store,
		log:   logger,
		acc:   newAccumulator(),
	}
	for _, opt := range opts {
		opt(e)
	}

	steps, err := store.Load()
	if err != nil {
		logger.Warn("loading persisted chain failed, starting empty", zap.Error(err))
		steps = nil
	}
	e.steps = steps
	if len(e.steps) > 0 {
		e.acc.showResult(e.steps[len(e.steps)-1].Result)
	}

	return e
}

// History returns a copy of the committed chain in order. Mutating the
// returned steps does not affect the engine.
func (e *Engine) History() []Step {
	return cloneSteps(e.steps)
}

// DisplayValue returns the current display string: the number being typed,
// the latest result, or the error marker.
func (e *Engine) DisplayValue() string {
	return e.acc.display
}

// Snapshot returns the observable state published to change listeners.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{Steps: cloneSteps(e.steps), Display: e.acc.display}
}

// InputDigit feeds one token ("0"…"9" or ".") into the accumulator. Unknown
// tokens are ignored and logged. The first digit after an error or a
// finalized result starts a fresh calculation, dropping pending state.
func (e *Engine) InputDigit(tok string) {
	if !validToken(tok) {
		e.log.Warn("ignoring invalid input token", zap.String("token", tok))
		return
	}
	if e.acc.inputToken(tok) {
		e.pendingOperand1 = nil
		e.pendingOperation = nil
	}
	e.notify()
}

// SetOperation applies an operator or finalize action to the current
// accumulator state, committing steps to the chain as required. In the
// error state, or when the display is not numeric, the call is a no-op.
func (e *Engine) SetOperation(op Operation) {
	if e.acc.state == stateError {
		e.log.Warn("operation rejected in error state", zap.String("operation", string(op)))
		return
	}

	displayVal, err := e.acc.value()
	if err != nil {
		e.log.Warn("operation rejected, display is not numeric",
			zap.String("operation", string(op)),
			zap.String("display", e.acc.display),
			zap.Stringer("state", e.acc.state),
		)
		return
	}

	switch {
	case e.acc.state == stateDisplayingResult && op != OpFinalize:
		// Continue from a finalized result: the shown value becomes the
		// left operand of a new pending operation. Nothing is committed.
		e.setPending(displayVal, op)
		e.acc.state = stateAwaitingOperand2

	case op == OpFinalize:
		e.finalize(displayVal)

	case e.pendingOperation != nil:
		// Chained entry (e.g. 2 + 3 *): close out the pending step and
		// carry its result into the next pending operation.
		st := e.commit(*e.pendingOperand1, &displayVal, *e.pendingOperation)
		e.setPending(0, op)
		if st.Result != nil {
			e.pendingOperand1 = cloneFloat(st.Result)
		}
		e.acc.showIntermediate(st.Result)
		if e.acc.state == stateError {
			e.pendingOperand1 = nil
			e.pendingOperation = nil
		}

	default:
		// First operator of a fresh calculation.
		e.setPending(displayVal, op)
		e.acc.state = stateAwaitingOperand2
	}

	e.notify()
}

// finalize resolves the equals action. Exactly one step is committed; the
// three cases are checked in priority order.
func (e *Engine) finalize(displayVal float64) {
	var st Step
	switch {
	case e.pendingOperation != nil:
		// Case A: complete the pending binary operation with the display
		// as its second operand.
		st = e.commit(*e.pendingOperand1, &displayVal, *e.pendingOperation)

	case e.acc.state == stateDisplayingResult && len(e.steps) > 0:
		// Case C: repeat-finalize. Re-apply the last committed binary
		// step's operation and second operand to the previous result.
		prev := displayVal
		if r := e.steps[len(e.steps)-1].Result; r != nil {
			prev = *r
		}
		if last, ok := e.lastBinaryStep(); ok {
			st = e.commit(prev, cloneFloat(last.Operand2), last.Operation)
		} else {
			st = e.commit(prev, nil, OpFinalize)
		}

	default:
		// Case B: bare number, echo it as a finalize step.
		st = e.commit(displayVal, nil, OpFinalize)
	}

	e.pendingOperand1 = nil
	e.pendingOperation = nil
	e.acc.showResult(st.Result)
}

// Clear destroys the chain and resets the accumulator to its pristine
// state. The emptied chain is persisted.
func (e *Engine) Clear() {
	e.steps = nil
	e.pendingOperand1 = nil
	e.pendingOperation = nil
	e.acc.reset()
	e.persist()
	e.notify()
}

// UpdateStep edits the step identified by id in place, applying any
// provided operand overrides, then recalculates every later step. It
// returns false when no step has that id.
func (e *Engine) UpdateStep(id string, operand1, operand2 *float64) bool {
	i := slices.IndexFunc(e.steps, func(s Step) bool { return s.ID == id })
	if i < 0 {
		e.log.Warn("update for unknown step id", zap.String("step_id", id))
		return false
	}

	st := &e.steps[i]
	if operand1 != nil {
		st.Operand1 = *operand1
	}
	if operand2 != nil {
		st.Operand2 = cloneFloat(operand2)
	}

	switch {
	case st.Operation == OpFinalize:
		// A finalize step echoes its upstream value.
		if i > 0 {
			st.Result = cloneFloat(e.steps[i-1].Result)
		} else {
			v := st.Operand1
			st.Result = &v
		}

	case operand1 != nil || i == 0:
		// The override (or the first step's own operand1) is
		// authoritative for this recomputation.
		st.Result = resolve(st.Operand1, st.Operand2, st.Operation)

	default:
		// No override: the effective left operand is the previous step's
		// result, never the stale stored value.
		if prev := e.steps[i-1].Result; prev != nil {
			st.Operand1 = *prev
			st.Result = resolve(st.Operand1, st.Operand2, st.Operation)
		} else {
			st.Result = nil
			e.log.Warn("step unresolved, upstream result absent",
				zap.String("step_id", st.ID),
				zap.Int("index", i),
			)
		}
	}

	e.recalculate(i + 1)
	e.persist()
	e.acc.showResult(e.steps[len(e.steps)-1].Result)
	e.pendingOperand1 = nil
	e.pendingOperation = nil
	e.notify()
	return true
}

// InsertStep inserts st at atIndex, shifting later steps right without
// changing their ids, then recalculates the suffix. A zero Operand1 at
// atIndex > 0 means "derive from the predecessor's result".
func (e *Engine) InsertStep(st Step, atIndex int) error {
	if atIndex < 0 || atIndex > len(e.steps) {
		return fmt.Errorf("insert index %d out of range [0, %d]", atIndex, len(e.steps))
	}

	if st.ID == "" {
		st.ID = NewStepID()
	}
	st.Operand2 = cloneFloat(st.Operand2)

	if atIndex > 0 && st.Operand1 == 0 {
		if prev := e.steps[atIndex-1].Result; prev != nil {
			st.Operand1 = *prev
		}
	}
	st.Result = resolve(st.Operand1, st.Operand2, st.Operation)

	e.steps = slices.Insert(e.steps, atIndex, st)
	e.recalculate(atIndex + 1)
	e.persist()
	e.acc.showResult(e.steps[len(e.steps)-1].Result)
	e.pendingOperand1 = nil
	e.pendingOperation = nil
	e.notify()
	return nil
}

// recalculate re-derives operand1 and result for every step from `from` to
// the end. The first step's operand1 is authoritative; every later step
// takes the previous result. An absent upstream result leaves the step
// unresolved and the walk keeps going, so the error state stays visible all
// the way down the chain.
func (e *Engine) recalculate(from int) {
	for i := from; i < len(e.steps); i++ {
		st := &e.steps[i]
		if i > 0 {
			prev := e.steps[i-1].Result
			if prev == nil {
				st.Result = nil
				e.log.Warn("step unresolved, upstream result absent",
					zap.String("step_id", st.ID),
					zap.Int("index", i),
				)
				continue
			}
			st.Operand1 = *prev
		}
		st.Result = resolve(st.Operand1, st.Operand2, st.Operation)
		if st.Result == nil {
			e.log.Warn("step unresolved, missing operand",
				zap.String("step_id", st.ID),
				zap.Int("index", i),
				zap.String("operation", string(st.Operation)),
			)
		}
	}
}

// commit appends a freshly resolved step to the chain and persists.
func (e *Engine) commit(operand1 float64, operand2 *float64, op Operation) Step {
	st := Step{
		ID:        NewStepID(),
		Operand1:  operand1,
		Operand2:  cloneFloat(operand2),
		Operation: op,
	}
	st.Result = resolve(st.Operand1, st.Operand2, st.Operation)
	e.steps = append(e.steps, st)
	e.persist()
	return st
}

func (e *Engine) setPending(operand1 float64, op Operation) {
	v := operand1
	o := op
	e.pendingOperand1 = &v
	e.pendingOperation = &o
}

func (e *Engine) persist() {
	if err := e.store.Save(cloneSteps(e.steps)); err != nil {
		e.log.Error("persisting chain failed", zap.Error(err), zap.Int("steps", len(e.steps)))
	}
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange(e.Snapshot())
	}
}

// lastBinaryStep finds the most recent committed step with a real binary
// operation and a second operand, for repeat-finalize.
func (e *Engine) lastBinaryStep() (Step, bool) {
	for i := len(e.steps) - 1; i >= 0; i-- {
		if e.steps[i].Operation.IsBinary() && e.steps[i].Operand2 != nil {
			return e.steps[i], true
		}
	}
	return Step{}, false
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		s.Operand2 = cloneFloat(s.Operand2)
		s.Result = cloneFloat(s.Result)
		out[i] = s
	}
	return out
}
