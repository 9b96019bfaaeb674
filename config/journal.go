package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/IvanHuYY/Stockbot/journal"
)

const (
	JournalSQLite = "sqlite"
	JournalCSV    = "csv"
	JournalMemory = "memory"
)

type JournalConfig struct {
	Type   string `json:"type" yaml:"type"`                           // sqlite, csv or memory
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"` // sqlite
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`         // csv: trades.csv, equity.csv, decisions.csv
}

func (j JournalConfig) Validate() error {
	switch j.Type {
	case JournalSQLite:
		if j.DBPath == "" {
			return fmt.Errorf("%w: journal.db_path is required for sqlite", ErrInvalid)
		}
	case JournalCSV:
		if j.Dir == "" {
			return fmt.Errorf("%w: journal.dir is required for csv", ErrInvalid)
		}
	case JournalMemory:
	default:
		return fmt.Errorf("%w: journal.type must be sqlite, csv or memory, got %q", ErrInvalid, j.Type)
	}
	return nil
}

// Open creates the configured journal. The caller closes it.
func (j JournalConfig) Open() (journal.Journal, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	switch j.Type {
	case JournalSQLite:
		if dir := filepath.Dir(j.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory: %w", err)
			}
		}
		db, err := journal.NewSQLite(j.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case JournalCSV:
		if err := os.MkdirAll(j.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		cj, err := journal.NewCSV(
			filepath.Join(j.Dir, "trades.csv"),
			filepath.Join(j.Dir, "equity.csv"),
			filepath.Join(j.Dir, "decisions.csv"),
		)
		if err != nil {
			return nil, err
		}
		return cj, nil
	default:
		return journal.NewMemory(), nil
	}
}
