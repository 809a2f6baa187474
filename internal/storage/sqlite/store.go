// Package sqlite stores the ledger state in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/storage"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pot_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		balance TEXT NOT NULL,
		allowance_amount TEXT NOT NULL,
		archived_total TEXT NOT NULL,
		next_seq INTEGER NOT NULL,
		last_accrual INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pot_transactions (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		occurred_at INTEGER NOT NULL,
		delta TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL
	)`,
}

// Store provides SQLite-backed ledger persistence. Instants are stored as
// unix milliseconds and amounts as decimal text.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load reads the state row and the retained transactions in order.
func (s *Store) Load(ctx context.Context) (models.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerState{}, err
	}

	var (
		state       models.LedgerState
		lastAccrual int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT balance, allowance_amount, archived_total, next_seq, last_accrual
FROM pot_state WHERE id = 1
`).Scan(&state.Balance, &state.AllowanceAmount, &state.ArchivedTotal, &state.NextSeq, &lastAccrual)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerState{}, storage.ErrNotFound
	}
	if err != nil {
		return models.LedgerState{}, fmt.Errorf("load state: %w", err)
	}
	state.LastAccrual = time.UnixMilli(lastAccrual).UTC()

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq, id, occurred_at, delta, comment, source
FROM pot_transactions ORDER BY seq ASC
`)
	if err != nil {
		return models.LedgerState{}, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()

	state.Transactions = []models.Transaction{}
	for rows.Next() {
		var (
			tx         models.Transaction
			occurredAt int64
			source     string
		)
		if err := rows.Scan(&tx.Seq, &tx.ID, &occurredAt, &tx.Delta, &tx.Comment, &source); err != nil {
			return models.LedgerState{}, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Timestamp = time.UnixMilli(occurredAt).UTC()
		tx.Source = models.Source(source)
		state.Transactions = append(state.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return models.LedgerState{}, fmt.Errorf("iterate transactions: %w", err)
	}
	return state, nil
}

// Save persists state in one SQLite transaction.
func (s *Store) Save(ctx context.Context, state models.LedgerState) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := saveTx(ctx, tx, state); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("save state: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func saveTx(ctx context.Context, tx *sql.Tx, state models.LedgerState) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO pot_state (id, balance, allowance_amount, archived_total, next_seq, last_accrual)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	balance = excluded.balance,
	allowance_amount = excluded.allowance_amount,
	archived_total = excluded.archived_total,
	next_seq = excluded.next_seq,
	last_accrual = excluded.last_accrual
`,
		state.Balance.String(),
		state.AllowanceAmount.String(),
		state.ArchivedTotal.String(),
		state.NextSeq,
		state.LastAccrual.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	var maxSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM pot_transactions`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("read max seq: %w", err)
	}

	for _, t := range state.Transactions {
		if t.Seq <= maxSeq {
			continue
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO pot_transactions (seq, id, occurred_at, delta, comment, source)
VALUES (?, ?, ?, ?, ?, ?)
`,
			t.Seq,
			t.ID,
			t.Timestamp.UTC().UnixMilli(),
			t.Delta.String(),
			t.Comment,
			string(t.Source),
		)
		if err != nil {
			return fmt.Errorf("save transaction %d: %w", t.Seq, err)
		}
	}

	keepFrom := state.NextSeq
	if len(state.Transactions) > 0 {
		keepFrom = state.Transactions[0].Seq
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pot_transactions WHERE seq < ?`, keepFrom); err != nil {
		return fmt.Errorf("trim transactions: %w", err)
	}
	return nil
}

var _ interfaces.StateStore = (*Store)(nil)
