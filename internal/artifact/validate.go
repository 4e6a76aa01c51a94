package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/vulntune/internal/errors"
)

// Validate checks that a exists and has its kind's shape: a non-empty
// directory, or a non-empty file that parses as the expected JSON form.
// Failures are PhaseInputErrors tagged with the kind and path; the caller
// adds the phase.
func (s *Store) Validate(a Artifact) error {
	loc, err := s.Location(a.Kind)
	if err != nil {
		return err
	}
	return s.ValidateShape(a, loc.Shape)
}

// ValidateShape is Validate with an explicit shape, used on staged outputs
// whose hidden names carry no kind.
func (s *Store) ValidateShape(a Artifact, shape Shape) error {
	fail := func(msg string, cause error) error {
		return errors.NewPhaseInputError(msg, cause).WithArtifact(string(a.Kind), a.Path)
	}

	info, err := s.fs.Stat(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return fail("artifact does not exist", errors.ErrInputMissing)
		}
		return fail("cannot stat artifact", err)
	}

	if shape.IsDir() {
		if !info.IsDir() {
			return fail("expected a directory", errors.ErrWrongShape)
		}
		entries, err := afero.ReadDir(s.fs, a.Path)
		if err != nil {
			return fail("cannot read directory", err)
		}
		if len(entries) == 0 {
			return fail("directory is empty", errors.ErrInputEmpty)
		}
		return nil
	}

	if info.IsDir() {
		return fail("expected a file", errors.ErrWrongShape)
	}
	if info.Size() == 0 {
		return fail("file is empty", errors.ErrInputEmpty)
	}
	data, err := afero.ReadFile(s.fs, a.Path)
	if err != nil {
		return fail("cannot read file", err)
	}
	if err := checkJSON(data, shape); err != nil {
		return fail(err.Error(), errors.ErrInputMalformed)
	}
	return nil
}

func checkJSON(data []byte, shape Shape) error {
	switch shape {
	case ShapeJSONArray:
		var v []json.RawMessage
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("not a JSON array: %v", err)
		}
		if v == nil {
			return fmt.Errorf("not a JSON array: null")
		}
	case ShapeJSONObject:
		var v map[string]json.RawMessage
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("not a JSON object: %v", err)
		}
		if v == nil {
			return fmt.Errorf("not a JSON object: null")
		}
	case ShapeJSONL:
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		records := 0
		for line := 1; scanner.Scan(); line++ {
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 {
				continue
			}
			var v map[string]json.RawMessage
			if err := json.Unmarshal(text, &v); err != nil {
				return fmt.Errorf("line %d is not a JSON object: %v", line, err)
			}
			if v == nil {
				return fmt.Errorf("line %d is null", line)
			}
			records++
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if records == 0 {
			return fmt.Errorf("no records")
		}
	}
	return nil
}
