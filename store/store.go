// Package store provides persistent server state backed by an embedded
// SQLite database. It owns the database lifecycle and exposes the
// operations the session layer's Store collaborator interface needs:
// accounts, per-account stats, friendships, persisted channel
// definitions, free-form settings, and an admin audit log.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// migrations holds the ordered list of DDL statements that bring the schema
// up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — settings key/value store
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v2 — accounts
	`CREATE TABLE IF NOT EXISTS accounts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		name_safe   TEXT NOT NULL UNIQUE,
		pw_hash     TEXT NOT NULL,
		privileges  INTEGER NOT NULL DEFAULT 1,
		silence_end INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v3 — per-account aggregate stats
	`CREATE TABLE IF NOT EXISTS stats (
		user_id      INTEGER PRIMARY KEY REFERENCES accounts(id),
		ranked_score INTEGER NOT NULL DEFAULT 0,
		accuracy     REAL    NOT NULL DEFAULT 0,
		playcount    INTEGER NOT NULL DEFAULT 0,
		total_score  INTEGER NOT NULL DEFAULT 0,
		rank         INTEGER NOT NULL DEFAULT 0,
		pp           INTEGER NOT NULL DEFAULT 0
	)`,
	// v4 — friendships (directed edge: owner considers friend a friend)
	`CREATE TABLE IF NOT EXISTS friends (
		owner_id  INTEGER NOT NULL REFERENCES accounts(id),
		friend_id INTEGER NOT NULL REFERENCES accounts(id),
		PRIMARY KEY (owner_id, friend_id)
	)`,
	// v5 — persisted static channel definitions
	`CREATE TABLE IF NOT EXISTS channels (
		name       TEXT PRIMARY KEY,
		topic      TEXT NOT NULL DEFAULT '',
		read_priv  INTEGER NOT NULL DEFAULT 1,
		write_priv INTEGER NOT NULL DEFAULT 1,
		auto_join  INTEGER NOT NULL DEFAULT 0
	)`,
	// v6 — audit log
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id   INTEGER NOT NULL,
		actor_name TEXT NOT NULL,
		action     TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v7 — indexes
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	// v8 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// maxAuditEntries bounds the audit_log table the same way the teacher's
// implementation bounded it, so an unattended server doesn't grow an
// unbounded admin log.
const maxAuditEntries = 10000

// Store wraps a SQLite database and exposes the Bancho session layer's
// persistence operations.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[store] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[store] applied migration v%d", v)
	}
	return nil
}

// Account is the persisted identity record.
type Account struct {
	ID         int32
	Name       string
	NameSafe   string
	PWHash     string
	Privileges uint32
	SilenceEnd time.Time
}

// UserByName looks an account up by its case-folded name. Returns
// (nil, nil) — not an error — when no such account exists, matching
// spec §4.7's "look the account up" step, which treats absence as the
// registration trigger rather than a failure.
func (s *Store) UserByName(ctx context.Context, nameSafe string) (*Account, error) {
	var a Account
	var silenceEndUnix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, name_safe, pw_hash, privileges, silence_end FROM accounts WHERE name_safe = ?`,
		nameSafe,
	).Scan(&a.ID, &a.Name, &a.NameSafe, &a.PWHash, &a.Privileges, &silenceEndUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	a.SilenceEnd = time.Unix(silenceEndUnix, 0).UTC()
	return &a, nil
}

// InsertUser creates a new account row and returns it.
func (s *Store) InsertUser(ctx context.Context, name, nameSafe, pwHash string) (*Account, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(name, name_safe, pw_hash) VALUES(?, ?, ?)`,
		name, nameSafe, pwHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert account id: %w", err)
	}
	return &Account{ID: int32(id), Name: name, NameSafe: nameSafe, PWHash: pwHash, Privileges: 1}, nil
}

// InsertStats creates the zeroed stats row for a newly registered account.
func (s *Store) InsertStats(ctx context.Context, userID int32) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stats(user_id) VALUES(?)`, userID)
	if err != nil {
		return fmt.Errorf("insert stats: %w", err)
	}
	return nil
}

// LoadedStats mirrors the wire-shape the session layer wants; kept
// separate from the session package's Stats type so store has no import
// dependency on the session layer.
type LoadedStats struct {
	RankedScore int64
	Accuracy    float64
	Playcount   int32
	TotalScore  int64
	Rank        int32
	PP          int32
}

// LoadStats returns userID's aggregate stats row.
func (s *Store) LoadStats(ctx context.Context, userID int32) (LoadedStats, error) {
	var st LoadedStats
	err := s.db.QueryRowContext(ctx,
		`SELECT ranked_score, accuracy, playcount, total_score, rank, pp FROM stats WHERE user_id = ?`,
		userID,
	).Scan(&st.RankedScore, &st.Accuracy, &st.Playcount, &st.TotalScore, &st.Rank, &st.PP)
	if errors.Is(err, sql.ErrNoRows) {
		return LoadedStats{}, nil
	}
	if err != nil {
		return LoadedStats{}, fmt.Errorf("load stats: %w", err)
	}
	return st, nil
}

// LoadFriends returns the ids userID considers friends.
func (s *Store) LoadFriends(ctx context.Context, userID int32) ([]int32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT friend_id FROM friends WHERE owner_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddFriend persists a friendship edge, idempotently.
func (s *Store) AddFriend(ctx context.Context, ownerID, friendID int32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO friends(owner_id, friend_id) VALUES(?, ?)`, ownerID, friendID,
	)
	if err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

// RemoveFriend deletes a friendship edge.
func (s *Store) RemoveFriend(ctx context.Context, ownerID, friendID int32) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM friends WHERE owner_id = ? AND friend_id = ?`, ownerID, friendID,
	)
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

// ChannelDef is a persisted static channel definition.
type ChannelDef struct {
	Name      string
	Topic     string
	ReadPriv  uint32
	WritePriv uint32
	AutoJoin  bool
}

// IterChannels returns every persisted static channel definition, loaded
// once at startup into the in-memory ChannelRegistry.
func (s *Store) IterChannels(ctx context.Context) ([]ChannelDef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, topic, read_priv, write_priv, auto_join FROM channels ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var defs []ChannelDef
	for rows.Next() {
		var d ChannelDef
		var autoJoin int
		if err := rows.Scan(&d.Name, &d.Topic, &d.ReadPriv, &d.WritePriv, &autoJoin); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		d.AutoJoin = autoJoin != 0
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// CreateChannel inserts a new static channel definition.
func (s *Store) CreateChannel(ctx context.Context, d ChannelDef) error {
	autoJoin := 0
	if d.AutoJoin {
		autoJoin = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels(name, topic, read_priv, write_priv, auto_join) VALUES(?,?,?,?,?)`,
		d.Name, d.Topic, d.ReadPriv, d.WritePriv, autoJoin,
	)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}

// DeleteChannel removes a static channel definition by name.
func (s *Store) DeleteChannel(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSetting returns the value stored under key. The second return value is
// false when the key does not exist; an error is only returned for real I/O
// failures.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetSetting upserts key → value in the settings table.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetAllSettings returns all key/value pairs from the settings table, used
// by the CLI's settings subcommand.
func (s *Store) GetAllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// AuditEntry is one row in the audit_log table.
type AuditEntry struct {
	ID        int64
	ActorID   int32
	ActorName string
	Action    string
	Target    string
	CreatedAt int64
}

// InsertAuditLog records an admin action, auto-purging the oldest rows
// beyond maxAuditEntries.
func (s *Store) InsertAuditLog(ctx context.Context, actorID int32, actorName, action, target string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(actor_id, actor_name, action, target) VALUES(?,?,?,?)`,
		actorID, actorName, action, target,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE id NOT IN (SELECT id FROM audit_log ORDER BY id DESC LIMIT ?)`,
		maxAuditEntries,
	)
	return err
}

// GetAuditLog returns the most recent audit log entries, up to limit.
func (s *Store) GetAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, actor_name, action, target, created_at FROM audit_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Target, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetPrivileges updates an account's privilege bitset, used by the CLI's
// accounts subcommand.
func (s *Store) SetPrivileges(ctx context.Context, userID int32, privileges uint32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET privileges = ? WHERE id = ?`, privileges, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAccounts returns every account, ordered by id, for the CLI's
// accounts subcommand.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, name_safe, pw_hash, privileges, silence_end FROM accounts ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var silenceEndUnix int64
		if err := rows.Scan(&a.ID, &a.Name, &a.NameSafe, &a.PWHash, &a.Privileges, &silenceEndUnix); err != nil {
			return nil, err
		}
		a.SilenceEnd = time.Unix(silenceEndUnix, 0).UTC()
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AccountCount returns the number of registered accounts.
func (s *Store) AccountCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

// Optimize runs PRAGMA optimize for SQLite query planner statistics.
func (s *Store) Optimize() error {
	_, err := s.db.Exec(`PRAGMA optimize`)
	return err
}

// Backup creates a copy of the database at destPath using SQLite's backup
// API through VACUUM INTO.
func (s *Store) Backup(destPath string) error {
	_, err := s.db.Exec(`VACUUM INTO ?`, destPath)
	return err
}
