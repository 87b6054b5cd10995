package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"chaincalc/internal/engine"
)

// File persists the step chain as a single JSON document on disk. A missing
// file loads as an empty chain; a file that exists but does not decode is an
// error the engine logs and recovers from.
type File struct {
	path string
}

// NewFile returns a file-backed store writing to path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load() ([]engine.Step, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading chain file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var steps []engine.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("decoding chain file %s: %w", f.path, err)
	}
	return steps, nil
}

func (f *File) Save(steps []engine.Step) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating chain directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("writing chain file: %w", err)
	}
	return nil
}
