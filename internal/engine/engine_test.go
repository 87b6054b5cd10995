package engine

import (
	"errors"
	"math"
	"testing"
)

// memStore is a minimal in-process Store for engine tests.
type memStore struct {
	steps   []Step
	saves   int
	failing bool
}

func (m *memStore) Load() ([]Step, error) {
	if m.failing {
		return nil, errors.New("store unavailable")
	}
	out := make([]Step, len(m.steps))
	copy(out, m.steps)
	return out, nil
}

func (m *memStore) Save(steps []Step) error {
	if m.failing {
		return errors.New("store unavailable")
	}
	m.steps = make([]Step, len(steps))
	copy(m.steps, steps)
	m.saves++
	return nil
}

func f(v float64) *float64 { return &v }

func enter(e *Engine, tokens string) {
	for _, tok := range tokens {
		e.InputDigit(string(tok))
	}
}

type wantStep struct {
	operand1  float64
	operand2  *float64
	operation Operation
	result    *float64
}

func checkChain(t *testing.T, e *Engine, want []wantStep) {
	t.Helper()
	got := e.History()
	if len(got) != len(want) {
		t.Fatalf("expected %d steps, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		s := got[i]
		if s.ID == "" {
			t.Fatalf("step %d: expected non-empty id", i)
		}
		if s.Operand1 != w.operand1 {
			t.Fatalf("step %d: expected operand1 %g, got %g", i, w.operand1, s.Operand1)
		}
		if (s.Operand2 == nil) != (w.operand2 == nil) {
			t.Fatalf("step %d: operand2 presence mismatch: want %v, got %v", i, w.operand2, s.Operand2)
		}
		if w.operand2 != nil && *s.Operand2 != *w.operand2 {
			t.Fatalf("step %d: expected operand2 %g, got %g", i, *w.operand2, *s.Operand2)
		}
		if s.Operation != w.operation {
			t.Fatalf("step %d: expected operation %q, got %q", i, w.operation, s.Operation)
		}
		if (s.Result == nil) != (w.result == nil) {
			t.Fatalf("step %d: result presence mismatch: want %v, got %v", i, w.result, s.Result)
		}
		if w.result != nil && *s.Result != *w.result {
			t.Fatalf("step %d: expected result %g, got %g", i, *w.result, *s.Result)
		}
	}
}

// checkInvariant verifies operand1[i] == result[i-1] for every step after a
// resolved predecessor.
func checkInvariant(t *testing.T, e *Engine) {
	t.Helper()
	steps := e.History()
	for i := 1; i < len(steps); i++ {
		prev := steps[i-1].Result
		if prev == nil || math.IsNaN(*prev) {
			continue
		}
		if steps[i].Operand1 != *prev {
			t.Fatalf("step %d: operand1 %g does not match previous result %g",
				i, steps[i].Operand1, *prev)
		}
	}
}

func TestLeftToRightEvaluation(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "2")
	e.SetOperation(OpAdd)
	enter(e, "3")
	e.SetOperation(OpMultiply)
	enter(e, "4")
	e.SetOperation(OpFinalize)

	checkChain(t, e, []wantStep{
		{operand1: 2, operand2: f(3), operation: OpAdd, result: f(5)},
		{operand1: 5, operand2: f(4), operation: OpMultiply, result: f(20)},
	})

	if got := e.DisplayValue(); got != "20" {
		t.Fatalf("expected display %q, got %q", "20", got)
	}
	checkInvariant(t, e)
}

func TestBareNumberFinalize(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "42")
	e.SetOperation(OpFinalize)

	checkChain(t, e, []wantStep{
		{operand1: 42, operation: OpFinalize, result: f(42)},
	})
	if got := e.DisplayValue(); got != "42" {
		t.Fatalf("expected display %q, got %q", "42", got)
	}
}

func TestRepeatFinalize(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "5")
	e.SetOperation(OpAdd)
	enter(e, "2")
	e.SetOperation(OpFinalize)
	e.SetOperation(OpFinalize)
	e.SetOperation(OpFinalize)

	checkChain(t, e, []wantStep{
		{operand1: 5, operand2: f(2), operation: OpAdd, result: f(7)},
		{operand1: 7, operand2: f(2), operation: OpAdd, result: f(9)},
		{operand1: 9, operand2: f(2), operation: OpAdd, result: f(11)},
	})
	if got := e.DisplayValue(); got != "11" {
		t.Fatalf("expected display %q, got %q", "11", got)
	}
}

func TestRepeatFinalizeAfterBareNumber(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "8")
	e.SetOperation(OpFinalize)
	e.SetOperation(OpFinalize)

	// No binary step to repeat: the second finalize echoes the result.
	checkChain(t, e, []wantStep{
		{operand1: 8, operation: OpFinalize, result: f(8)},
		{operand1: 8, operation: OpFinalize, result: f(8)},
	})
}

func TestOperatorContinuesFromFinalizedResult(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "5")
	e.SetOperation(OpAdd)
	enter(e, "2")
	e.SetOperation(OpFinalize)
	e.SetOperation(OpMultiply)
	enter(e, "3")
	e.SetOperation(OpFinalize)

	checkChain(t, e, []wantStep{
		{operand1: 5, operand2: f(2), operation: OpAdd, result: f(7)},
		{operand1: 7, operand2: f(3), operation: OpMultiply, result: f(21)},
	})
}

func TestDigitAfterFinalizeStartsFreshCalculation(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "5")
	e.SetOperation(OpAdd)
	enter(e, "2")
	e.SetOperation(OpFinalize)

	enter(e, "9")
	if got := e.DisplayValue(); got != "9" {
		t.Fatalf("expected display %q, got %q", "9", got)
	}

	// Finalize now echoes the fresh number instead of repeating the add.
	e.SetOperation(OpFinalize)
	steps := e.History()
	last := steps[len(steps)-1]
	if last.Operation != OpFinalize || last.Operand1 != 9 {
		t.Fatalf("expected bare finalize of 9, got %+v", last)
	}
}

func TestDivisionByZeroPropagation(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "5")
	e.SetOperation(OpDivide)
	enter(e, "0")
	e.SetOperation(OpFinalize)

	if got := e.DisplayValue(); got != ErrorDisplay {
		t.Fatalf("expected display %q, got %q", ErrorDisplay, got)
	}

	steps := e.History()
	if len(steps) != 1 || steps[0].Result == nil || !math.IsNaN(*steps[0].Result) {
		t.Fatalf("expected single step with NaN result, got %+v", steps)
	}

	// Operations are refused until a fresh digit clears the error.
	e.SetOperation(OpAdd)
	e.SetOperation(OpFinalize)
	if got := len(e.History()); got != 1 {
		t.Fatalf("expected chain unchanged at 1 step, got %d", got)
	}
	if got := e.DisplayValue(); got != ErrorDisplay {
		t.Fatalf("expected display %q, got %q", ErrorDisplay, got)
	}

	// The first digit replaces the error marker and starts fresh.
	enter(e, "7")
	if got := e.DisplayValue(); got != "7" {
		t.Fatalf("expected display %q, got %q", "7", got)
	}
	e.SetOperation(OpAdd)
	enter(e, "1")
	e.SetOperation(OpFinalize)
	steps = e.History()
	last := steps[len(steps)-1]
	if last.Result == nil || *last.Result != 8 {
		t.Fatalf("expected recovery step 7+1=8, got %+v", last)
	}
}

func TestErrorPropagatesThroughChainedEntry(t *testing.T) {
	e := New(&memStore{}, nil)

	// 6 / 0 * — the chained commit fails, so the pending multiply is dropped.
	enter(e, "6")
	e.SetOperation(OpDivide)
	enter(e, "0")
	e.SetOperation(OpMultiply)

	if got := e.DisplayValue(); got != ErrorDisplay {
		t.Fatalf("expected display %q, got %q", ErrorDisplay, got)
	}

	enter(e, "3")
	e.SetOperation(OpFinalize)
	steps := e.History()
	last := steps[len(steps)-1]
	if last.Operation != OpFinalize || last.Operand1 != 3 {
		t.Fatalf("expected bare finalize of 3 after error reset, got %+v", last)
	}
}

func TestEditPropagation(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "2")
	e.SetOperation(OpAdd)
	enter(e, "3")
	e.SetOperation(OpMultiply)
	enter(e, "4")
	e.SetOperation(OpFinalize)

	first := e.History()[0]
	if !e.UpdateStep(first.ID, nil, f(5)) {
		t.Fatal("expected update to find the step")
	}

	checkChain(t, e, []wantStep{
		{operand1: 2, operand2: f(5), operation: OpAdd, result: f(7)},
		{operand1: 7, operand2: f(4), operation: OpMultiply, result: f(28)},
	})
	if got := e.DisplayValue(); got != "28" {
		t.Fatalf("expected display %q, got %q", "28", got)
	}
	checkInvariant(t, e)
}

func TestEditOperand1Override(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "2")
	e.SetOperation(OpAdd)
	enter(e, "3")
	e.SetOperation(OpMultiply)
	enter(e, "4")
	e.SetOperation(OpFinalize)

	// Overriding operand1 of a non-first step beats the derived value for
	// this recomputation.
	second := e.History()[1]
	if !e.UpdateStep(second.ID, f(10), nil) {
		t.Fatal("expected update to find the step")
	}

	checkChain(t, e, []wantStep{
		{operand1: 2, operand2: f(3), operation: OpAdd, result: f(5)},
		{operand1: 10, operand2: f(4), operation: OpMultiply, result: f(40)},
	})
}

func TestUpdateStepUnknownID(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "1")
	e.SetOperation(OpFinalize)
	before := e.History()

	if e.UpdateStep("no-such-id", f(9), nil) {
		t.Fatal("expected update of unknown id to report not found")
	}

	after := e.History()
	if len(after) != len(before) || after[0].Operand1 != before[0].Operand1 {
		t.Fatalf("expected chain unchanged, got %+v", after)
	}
}

func TestInsertionPropagation(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "10")
	e.SetOperation(OpDivide)
	enter(e, "2")
	e.SetOperation(OpFinalize)
	e.SetOperation(OpAdd)
	enter(e, "3")
	e.SetOperation(OpFinalize)

	checkChain(t, e, []wantStep{
		{operand1: 10, operand2: f(2), operation: OpDivide, result: f(5)},
		{operand1: 5, operand2: f(3), operation: OpAdd, result: f(8)},
	})
	oldIDs := []string{e.History()[0].ID, e.History()[1].ID}

	// Operand1 zero is the placeholder: derive from the predecessor.
	err := e.InsertStep(Step{Operand2: f(2), Operation: OpMultiply}, 1)
	if err != nil {
		t.Fatalf("inserting step: %v", err)
	}

	checkChain(t, e, []wantStep{
		{operand1: 10, operand2: f(2), operation: OpDivide, result: f(5)},
		{operand1: 5, operand2: f(2), operation: OpMultiply, result: f(10)},
		{operand1: 10, operand2: f(3), operation: OpAdd, result: f(13)},
	})

	steps := e.History()
	if steps[0].ID != oldIDs[0] || steps[2].ID != oldIDs[1] {
		t.Fatal("expected untouched step ids to survive insertion")
	}
	if got := e.DisplayValue(); got != "13" {
		t.Fatalf("expected display %q, got %q", "13", got)
	}
	checkInvariant(t, e)
}

func TestInsertStepOutOfRange(t *testing.T) {
	e := New(&memStore{}, nil)

	if err := e.InsertStep(Step{Operand2: f(1), Operation: OpAdd}, 3); err == nil {
		t.Fatal("expected out-of-range insert to fail")
	}
	if err := e.InsertStep(Step{Operand2: f(1), Operation: OpAdd}, -1); err == nil {
		t.Fatal("expected negative index insert to fail")
	}
}

func TestInsertAtFrontKeepsOperand1(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "3")
	e.SetOperation(OpAdd)
	enter(e, "4")
	e.SetOperation(OpFinalize)

	if err := e.InsertStep(Step{Operand1: 6, Operand2: f(2), Operation: OpDivide}, 0); err != nil {
		t.Fatalf("inserting step: %v", err)
	}

	checkChain(t, e, []wantStep{
		{operand1: 6, operand2: f(2), operation: OpDivide, result: f(3)},
		{operand1: 3, operand2: f(4), operation: OpAdd, result: f(7)},
	})
}

func TestMissingOperandLeavesChainUnresolved(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "1")
	e.SetOperation(OpAdd)
	enter(e, "2")
	e.SetOperation(OpFinalize)
	e.SetOperation(OpMultiply)
	enter(e, "4")
	e.SetOperation(OpFinalize)

	// A binary step with no second operand cannot resolve; everything after
	// it reports absent results instead of masking the hole.
	if err := e.InsertStep(Step{Operation: OpSubtract}, 1); err != nil {
		t.Fatalf("inserting step: %v", err)
	}

	steps := e.History()
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[1].Result != nil {
		t.Fatalf("expected inserted step unresolved, got %+v", steps[1])
	}
	if steps[2].Result != nil {
		t.Fatalf("expected downstream step unresolved, got %+v", steps[2])
	}
	if got := e.DisplayValue(); got != ErrorDisplay {
		t.Fatalf("expected display %q, got %q", ErrorDisplay, got)
	}

	// Supplying the missing operand heals the whole suffix.
	if !e.UpdateStep(steps[1].ID, nil, f(1)) {
		t.Fatal("expected update to find the step")
	}
	checkChain(t, e, []wantStep{
		{operand1: 1, operand2: f(2), operation: OpAdd, result: f(3)},
		{operand1: 3, operand2: f(1), operation: OpSubtract, result: f(2)},
		{operand1: 2, operand2: f(4), operation: OpMultiply, result: f(8)},
	})
}

func TestClearResets(t *testing.T) {
	st := &memStore{}
	e := New(st, nil)

	enter(e, "5")
	e.SetOperation(OpAdd)
	enter(e, "2")
	e.SetOperation(OpFinalize)

	e.Clear()

	if got := len(e.History()); got != 0 {
		t.Fatalf("expected empty chain, got %d steps", got)
	}
	if got := e.DisplayValue(); got != "0" {
		t.Fatalf("expected display %q, got %q", "0", got)
	}
	if got := len(st.steps); got != 0 {
		t.Fatalf("expected cleared chain persisted, store has %d steps", got)
	}

	// A fresh engine over an empty store matches the cleared state exactly.
	fresh := New(&memStore{}, nil)
	if fresh.DisplayValue() != e.DisplayValue() || len(fresh.History()) != len(e.History()) {
		t.Fatal("expected cleared engine to match a freshly constructed one")
	}
}

func TestRoundTripPersistence(t *testing.T) {
	st := &memStore{}
	e := New(st, nil)

	enter(e, "2")
	e.SetOperation(OpAdd)
	enter(e, "3")
	e.SetOperation(OpMultiply)
	enter(e, "4")
	e.SetOperation(OpFinalize)

	reloaded := New(st, nil)

	want := e.History()
	got := reloaded.History()
	if len(got) != len(want) {
		t.Fatalf("expected %d steps after reload, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Fatalf("step %d: expected id %q, got %q", i, want[i].ID, got[i].ID)
		}
		if got[i].Operand1 != want[i].Operand1 || got[i].Operation != want[i].Operation {
			t.Fatalf("step %d: mismatch after reload: want %+v, got %+v", i, want[i], got[i])
		}
		if *got[i].Result != *want[i].Result {
			t.Fatalf("step %d: expected result %g, got %g", i, *want[i].Result, *got[i].Result)
		}
	}

	if got, want := reloaded.DisplayValue(), e.DisplayValue(); got != want {
		t.Fatalf("expected display %q after reload, got %q", want, got)
	}
}

func TestFailingStoreIsNeverFatal(t *testing.T) {
	e := New(&memStore{failing: true}, nil)

	if got := len(e.History()); got != 0 {
		t.Fatalf("expected empty chain after failed load, got %d steps", got)
	}

	// Saves fail silently; the in-memory chain still advances.
	enter(e, "1")
	e.SetOperation(OpAdd)
	enter(e, "2")
	e.SetOperation(OpFinalize)

	checkChain(t, e, []wantStep{
		{operand1: 1, operand2: f(2), operation: OpAdd, result: f(3)},
	})
}

func TestOnChangePublishesSnapshots(t *testing.T) {
	var last Snapshot
	var calls int

	e := New(&memStore{}, nil, WithOnChange(func(s Snapshot) {
		last = s
		calls++
	}))

	enter(e, "7")
	if calls == 0 {
		t.Fatal("expected digit input to publish a snapshot")
	}
	if last.Display != "7" {
		t.Fatalf("expected snapshot display %q, got %q", "7", last.Display)
	}

	e.SetOperation(OpFinalize)
	if len(last.Steps) != 1 {
		t.Fatalf("expected snapshot with 1 step, got %d", len(last.Steps))
	}
}

func TestHistoryReturnsCopies(t *testing.T) {
	e := New(&memStore{}, nil)

	enter(e, "1")
	e.SetOperation(OpAdd)
	enter(e, "2")
	e.SetOperation(OpFinalize)

	steps := e.History()
	*steps[0].Result = 999
	steps[0].Operand1 = 999

	if got := e.History()[0]; got.Operand1 != 1 || *got.Result != 3 {
		t.Fatalf("expected engine state untouched by caller mutation, got %+v", got)
	}
}
