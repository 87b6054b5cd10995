package store

import "chaincalc/internal/engine"

// Memory holds the step chain in process memory. It backs tests and runs
// without a configured data file.
type Memory struct {
	steps []engine.Step
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load() ([]engine.Step, error) {
	out := make([]engine.Step, len(m.steps))
	copy(out, m.steps)
	return out, nil
}

func (m *Memory) Save(steps []engine.Step) error {
	m.steps = make([]engine.Step, len(steps))
	copy(m.steps, steps)
	return nil
}
