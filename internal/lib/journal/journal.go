// Package journal records every submitted stake / unstake request and how it ended.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/NebulaNode/nebula/internal/lib/stake"
)

var ErrUnknownEntry = errors.New("journal entry not found")

// Entry is one journaled request.
type Entry struct {
	ID        string             `json:"id"`
	Wallet    string             `json:"wallet"`
	Action    stake.Action       `json:"action"`
	Amount    uint64             `json:"amountLamports"`
	Target    string             `json:"targetPubkey,omitempty"`
	State     stake.RequestState `json:"state"`
	Signature string             `json:"signature,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Journal persists request entries.
type Journal interface {
	Begin(ctx context.Context, wallet string, action stake.Action, amount uint64) (string, error)
	Finish(ctx context.Context, id string, target, signature string, err error) error
	Recent(ctx context.Context, wallet string, limit int) ([]Entry, error)
	Close() error
}

// SQLiteJournal stores entries in a single sqlite table.
type SQLiteJournal struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (or creates) the journal database at path and runs migrations.
func Open(path string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	j := &SQLiteJournal{db: db, now: time.Now}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id         TEXT PRIMARY KEY,
			wallet     TEXT NOT NULL,
			action     TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			target     TEXT NOT NULL DEFAULT '',
			state      TEXT NOT NULL,
			signature  TEXT NOT NULL DEFAULT '',
			error      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_wallet ON requests(wallet, created_at)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Begin records a request entering the submitting state and returns its id.
func (j *SQLiteJournal) Begin(ctx context.Context, wallet string, action stake.Action, amount uint64) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := uuid.NewString()
	now := j.now().UnixNano()
	_, err := j.db.ExecContext(ctx, `INSERT INTO requests
		(id, wallet, action, amount, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, wallet, action.String(), amount, stake.StateSubmitting.String(), now, now)
	if err != nil {
		return "", fmt.Errorf("insert request: %w", err)
	}
	return id, nil
}

// Finish marks id confirmed, or failed when err is non-nil.
func (j *SQLiteJournal) Finish(ctx context.Context, id string, target, signature string, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, errText := stake.StateConfirmed, ""
	if err != nil {
		state, errText = stake.StateFailed, err.Error()
	}
	res, execErr := j.db.ExecContext(ctx, `UPDATE requests
		SET state = ?, target = ?, signature = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		state.String(), target, signature, errText, j.now().UnixNano(), id)
	if execErr != nil {
		return fmt.Errorf("update request %s: %w", id, execErr)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	return nil
}

// Recent returns up to limit entries for wallet, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, wallet string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, wallet, action, amount, target, state, signature, error,
		created_at, updated_at FROM requests WHERE wallet = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry            Entry
			action, state    string
			created, updated int64
		)
		if err := rows.Scan(&entry.ID, &entry.Wallet, &action, &entry.Amount, &entry.Target, &state,
			&entry.Signature, &entry.Error, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		if entry.Action, err = stake.ParseAction(action); err != nil {
			return nil, err
		}
		if entry.State, err = stake.ParseRequestState(state); err != nil {
			return nil, err
		}
		entry.CreatedAt = time.Unix(0, created).UTC()
		entry.UpdatedAt = time.Unix(0, updated).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Discard is a Journal that keeps nothing.
type Discard struct{}

func (Discard) Begin(context.Context, string, stake.Action, uint64) (string, error) {
	return uuid.NewString(), nil
}

func (Discard) Finish(context.Context, string, string, string, error) error { return nil }

func (Discard) Recent(context.Context, string, int) ([]Entry, error) { return nil, nil }

func (Discard) Close() error { return nil }
