// Package jsonfile stores the ledger state as a single JSON document.
// Documents in the earlier budget_state.json layout (balance, weekly_amount,
// last_weekly_update, history) are migrated on load and rewritten in the
// current layout on the next save.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/storage"
)

// Store reads and writes one JSON file.
type Store struct {
	path string
	loc  *time.Location // for dates in earlier-format files
}

// Open returns a Store for path, creating its parent directory.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("jsonfile: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("jsonfile: create directory: %w", err)
		}
	}
	return &Store{path: path, loc: time.Local}, nil
}

// Load decodes the state file. A missing or empty file is storage.ErrNotFound.
func (s *Store) Load(ctx context.Context) (models.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerState{}, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return models.LedgerState{}, storage.ErrNotFound
	}
	if err != nil {
		return models.LedgerState{}, fmt.Errorf("jsonfile: read %s: %w", s.path, err)
	}

	if isLegacy(data) {
		state, err := migrateLegacy(data, s.loc)
		if err != nil {
			return models.LedgerState{}, fmt.Errorf("jsonfile: migrate %s: %w", s.path, err)
		}
		return state, nil
	}

	var state models.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.LedgerState{}, fmt.Errorf("jsonfile: decode %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes state to a temporary file in the same directory, syncs it and
// renames it over the old file, so a crash leaves either the old or the new
// state on disk.
func (s *Store) Save(ctx context.Context, state models.LedgerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("jsonfile: write: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("jsonfile: sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("jsonfile: close: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("jsonfile: rename: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

var _ interfaces.StateStore = (*Store)(nil)
