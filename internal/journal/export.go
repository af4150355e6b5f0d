package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/cellar/internal/trace"
)

// Record is one line of a JSONL export: a run together with its events.
type Record struct {
	Run
	Events []trace.Event `json:"events"`
}

// Export writes every run, oldest first, to a JSONL file at path. The file is
// replaced atomically. It returns the number of runs written.
func (s *Store) Export(path string) (int, error) {
	runs, err := s.ListRuns(0)
	if err != nil {
		return 0, err
	}

	lines := make([]json.RawMessage, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		events, err := s.Events(runs[i].RunID)
		if err != nil {
			return 0, err
		}
		if events == nil {
			events = []trace.Event{}
		}
		line, err := json.Marshal(Record{Run: runs[i], Events: events})
		if err != nil {
			return 0, fmt.Errorf("marshal run %s: %w", runs[i].RunID, err)
		}
		lines = append(lines, line)
	}
	if err := writeJSONL(path, lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// Import loads runs from a JSONL file written by Export. Runs whose ID is
// already in the journal are skipped, as are malformed lines. It returns the
// number of runs added.
func (s *Store) Import(path string) (int, error) {
	lines, err := readJSONL(path)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, line := range lines {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.RunID == "" {
			continue
		}
		var exists int
		err := tx.QueryRow("SELECT COUNT(*) FROM runs WHERE run_id = ?", rec.RunID).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check run %s: %w", rec.RunID, err)
		}
		if exists > 0 {
			continue
		}
		res := trace.Result{
			Script:      rec.Script,
			Status:      rec.Status,
			Events:      rec.Events,
			Outstanding: rec.Outstanding,
			Error:       rec.Error,
			StartedAt:   rec.StartedAt,
			FinishedAt:  rec.FinishedAt,
		}
		if err := insertRun(tx, rec.RunID, res); err != nil {
			return 0, err
		}
		added++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return added, nil
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line.
// Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL writes records to path through a temp file in the same
// directory, syncing before the rename so readers never see a partial file.
func writeJSONL(path string, records []json.RawMessage) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
