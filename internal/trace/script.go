package trace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Script is a named sequence of steps, usually loaded from YAML:
//
//	name: two-readers
//	steps:
//	  - {op: new_checked, as: c, value: 1}
//	  - {op: borrow, target: c, as: r1, expect: "1"}
//	  - {op: borrow_mut, target: c, as: w, expect: busy}
type Script struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step `yaml:"steps" json:"steps"`
}

// Validate checks that the script has steps and that every step names a known
// operation.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScript)
	}
	for i, st := range s.Steps {
		if !knownOps[st.Op] {
			return fmt.Errorf("%w: step %d: %w %q", ErrInvalidScript, i+1, ErrUnknownOp, st.Op)
		}
	}
	return nil
}

// ParseScript decodes a script from YAML. Unknown fields are rejected.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScript reads and parses the script at path. A script without a name is
// named after its file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s, nil
}
