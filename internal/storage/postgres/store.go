package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/storage"
)

// schema is applied statement by statement by Migrate.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pot_state (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		balance NUMERIC NOT NULL,
		allowance_amount NUMERIC NOT NULL,
		archived_total NUMERIC NOT NULL,
		next_seq BIGINT NOT NULL,
		last_accrual TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pot_transactions (
		seq BIGINT PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		occurred_at TIMESTAMPTZ NOT NULL,
		delta NUMERIC NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL
	)`,
}

// PostgresStateStore keeps the pot in a singleton state row plus one row per
// retained transaction. It works with both the lib/pq ("postgres") and the
// pgx ("pgx") database/sql drivers.
type PostgresStateStore struct {
	db *sql.DB
}

func NewPostgresStateStore(db *sql.DB) *PostgresStateStore {
	return &PostgresStateStore{
		db: db,
	}
}

// Migrate creates the tables if they don't exist.
func (p *PostgresStateStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

func (p *PostgresStateStore) Load(ctx context.Context) (models.LedgerState, error) {
	const stateQuery = `SELECT balance, allowance_amount, archived_total, next_seq, last_accrual
	FROM pot_state WHERE id = 1`

	var state models.LedgerState
	err := p.db.QueryRowContext(ctx, stateQuery).Scan(
		&state.Balance,
		&state.AllowanceAmount,
		&state.ArchivedTotal,
		&state.NextSeq,
		&state.LastAccrual,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerState{}, storage.ErrNotFound
	}
	if err != nil {
		return models.LedgerState{}, fmt.Errorf("postgres: load state: %w", err)
	}

	const txQuery = `SELECT seq, id, occurred_at, delta, comment, source
	FROM pot_transactions ORDER BY seq`

	rows, err := p.db.QueryContext(ctx, txQuery)
	if err != nil {
		return models.LedgerState{}, fmt.Errorf("postgres: load transactions: %w", err)
	}
	defer rows.Close()

	state.Transactions = []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		var source string
		if err := rows.Scan(&tx.Seq, &tx.ID, &tx.Timestamp, &tx.Delta, &tx.Comment, &source); err != nil {
			return models.LedgerState{}, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		tx.Source = models.Source(source)
		tx.Timestamp = tx.Timestamp.UTC()
		state.Transactions = append(state.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return models.LedgerState{}, fmt.Errorf("postgres: load transactions: %w", err)
	}
	state.LastAccrual = state.LastAccrual.UTC()
	return state, nil
}

// Save writes the whole state in one database transaction: the state row is
// upserted, transactions newer than the stored ones are inserted and those
// that fell out of the retention window are deleted.
func (p *PostgresStateStore) Save(ctx context.Context, state models.LedgerState) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	const upsertState = `INSERT INTO pot_state (id, balance, allowance_amount, archived_total, next_seq, last_accrual)
	VALUES (1, $1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		balance = EXCLUDED.balance,
		allowance_amount = EXCLUDED.allowance_amount,
		archived_total = EXCLUDED.archived_total,
		next_seq = EXCLUDED.next_seq,
		last_accrual = EXCLUDED.last_accrual`

	if _, err = dbTx.ExecContext(ctx, upsertState,
		state.Balance, state.AllowanceAmount, state.ArchivedTotal, state.NextSeq, state.LastAccrual.UTC(),
	); err != nil {
		return fmt.Errorf("postgres: save state: %w", err)
	}

	var maxSeq int64
	if err = dbTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM pot_transactions`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("postgres: read max seq: %w", err)
	}

	const insertTx = `INSERT INTO pot_transactions (seq, id, occurred_at, delta, comment, source)
	VALUES ($1, $2, $3, $4, $5, $6)`

	for _, tx := range state.Transactions {
		if tx.Seq <= maxSeq {
			continue
		}
		if _, err = dbTx.ExecContext(ctx, insertTx,
			tx.Seq, tx.ID, tx.Timestamp.UTC(), tx.Delta, tx.Comment, string(tx.Source),
		); err != nil {
			return fmt.Errorf("postgres: save transaction %d: %w", tx.Seq, err)
		}
	}

	keepFrom := state.NextSeq
	if len(state.Transactions) > 0 {
		keepFrom = state.Transactions[0].Seq
	}
	if _, err = dbTx.ExecContext(ctx, `DELETE FROM pot_transactions WHERE seq < $1`, keepFrom); err != nil {
		return fmt.Errorf("postgres: trim transactions: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (p *PostgresStateStore) Close() error {
	return p.db.Close()
}

var _ interfaces.StateStore = (*PostgresStateStore)(nil)
