// Package sqlite provides SQLite-based persistent storage for GridMesh.
// Uses WAL mode for concurrent reads and crash-safe writes.
//
// The marketplace core itself is pure in-memory coordination — a
// restart rebuilds registry state from fresh advertisements. SQLite
// backs only the two collaborators that must outlive a restart: the
// reputation sink (trust scores) and the payment ledger.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Trust scores: one bounded value per peer per role.
		`CREATE TABLE IF NOT EXISTS trust_scores (
			peer_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			score      REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (peer_id, role)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trust_updated ON trust_scores(updated_at)`,

		// Payment ledger: double-entry bookkeeping.
		`CREATE TABLE IF NOT EXISTS payment_ledger (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			type        TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			account     TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			subtask_id  TEXT,
			peer_id     TEXT,
			description TEXT,
			balance     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_ts ON payment_ledger(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_account ON payment_ledger(account)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// SetNodeInfo stores a key/value pair in node_info.
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetNodeInfo retrieves a value from node_info ("" if absent).
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// ─── Trust Scores ───────────────────────────────────────────────────────────

// TrustScore returns the stored score for a peer/role, or fallback when
// the peer is unknown.
func (d *DB) TrustScore(peerID string, role domain.Role, fallback float64) (float64, error) {
	var score float64
	err := d.db.QueryRow(
		`SELECT score FROM trust_scores WHERE peer_id = ? AND role = ?`,
		peerID, string(role),
	).Scan(&score)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return score, nil
}

// ApplyTrustDelta adjusts a peer's score by delta, clamping the result
// into [min, max]. Unknown peers start from start. Returns the new
// score.
func (d *DB) ApplyTrustDelta(peerID string, role domain.Role, delta, start, min, max float64) (float64, error) {
	current, err := d.TrustScore(peerID, role, start)
	if err != nil {
		return 0, err
	}

	next := current + delta
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}

	_, err = d.db.Exec(
		`INSERT INTO trust_scores (peer_id, role, score, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(peer_id, role) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at`,
		peerID, string(role), next, time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// TrustScores returns all stored scores for a peer.
func (d *DB) TrustScores(peerID string) ([]domain.TrustScore, error) {
	rows, err := d.db.Query(
		`SELECT peer_id, role, score, updated_at FROM trust_scores WHERE peer_id = ? ORDER BY role`,
		peerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []domain.TrustScore
	for rows.Next() {
		var s domain.TrustScore
		var role string
		var updated int64
		if err := rows.Scan(&s.PeerID, &role, &s.Score, &updated); err != nil {
			return nil, err
		}
		s.Role = domain.Role(role)
		s.UpdatedAt = time.Unix(updated, 0)
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// ─── Payment Ledger ─────────────────────────────────────────────────────────

// InsertLedgerEntry appends a row to the payment ledger.
func (d *DB) InsertLedgerEntry(entry domain.LedgerEntry) (int64, error) {
	result, err := d.db.Exec(
		`INSERT INTO payment_ledger (timestamp, type, entry_type, account, amount, subtask_id, peer_id, description, balance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.Unix(), string(entry.Type), string(entry.EntryType),
		entry.Account, entry.Amount, entry.SubtaskID, entry.PeerID, entry.Description, entry.Balance,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// LedgerBalance returns the latest recorded balance for an account.
func (d *DB) LedgerBalance(account string) (int64, error) {
	var balance sql.NullInt64
	err := d.db.QueryRow(
		`SELECT balance FROM payment_ledger WHERE account = ? ORDER BY id DESC LIMIT 1`,
		account,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Int64, nil
}

// LedgerEntries returns recent entries for an account, newest first.
func (d *DB) LedgerEntries(account string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := d.db.Query(
		`SELECT id, timestamp, type, entry_type, account, amount, subtask_id, peer_id, description, balance
		 FROM payment_ledger WHERE account = ? ORDER BY id DESC LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts int64
		var txType, entryType string
		var subtask, peer, desc sql.NullString
		if err := rows.Scan(&e.ID, &ts, &txType, &entryType, &e.Account, &e.Amount,
			&subtask, &peer, &desc, &e.Balance); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Type = domain.TxType(txType)
		e.EntryType = domain.EntryType(entryType)
		e.SubtaskID = subtask.String
		e.PeerID = peer.String
		e.Description = desc.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
