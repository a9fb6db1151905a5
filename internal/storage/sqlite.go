// Package storage keeps the last good race data in SQLite so the CLI can
// show something when the Gateway is unreachable.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/racenotes/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no snapshot exists for the requested key.
var ErrNotFound = errors.New("snapshot not found")

// Store wraps a SQLite database of race list and race detail snapshots.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the snapshot database in dataDir and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "racenotes.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and avoids
	// "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded migrations that have not been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Race lists ---

// SaveRaceList replaces the snapshot for date and venue ("" for all venues).
func (s *Store) SaveRaceList(ctx context.Context, date, venue string, races []domain.Race) error {
	if races == nil {
		races = []domain.Race{}
	}
	payload, err := json.Marshal(races)
	if err != nil {
		return fmt.Errorf("encoding race list: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO race_lists (race_date, venue, payload, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(race_date, venue) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		date, venue, string(payload), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("saving race list %s: %w", date, err)
	}
	return nil
}

// RaceList returns the snapshot for date and venue.
func (s *Store) RaceList(ctx context.Context, date, venue string) ([]domain.Race, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM race_lists WHERE race_date = ? AND venue = ?`, date, venue,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var races []domain.Race
	if err := json.Unmarshal([]byte(payload), &races); err != nil {
		return nil, fmt.Errorf("decoding race list %s: %w", date, err)
	}
	return races, nil
}

// SnapshotDates returns the dates with a saved race list, newest first.
func (s *Store) SnapshotDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT race_date FROM race_lists ORDER BY race_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// --- Race details ---

// SaveRaceDetail replaces the snapshot for d.Race.ID.
func (s *Store) SaveRaceDetail(ctx context.Context, d domain.RaceDetail) error {
	if d.Race.ID <= 0 {
		return fmt.Errorf("saving race detail: missing race id")
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding race detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO race_details (race_id, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(race_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		d.Race.ID, string(payload), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("saving race detail %d: %w", d.Race.ID, err)
	}
	return nil
}

// RaceDetail returns the snapshot for race id.
func (s *Store) RaceDetail(ctx context.Context, id int64) (domain.RaceDetail, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM race_details WHERE race_id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.RaceDetail{}, ErrNotFound
	}
	if err != nil {
		return domain.RaceDetail{}, err
	}
	var d domain.RaceDetail
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return domain.RaceDetail{}, fmt.Errorf("decoding race detail %d: %w", id, err)
	}
	return d, nil
}

// Prune deletes snapshots saved before cutoff and returns how many rows
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(time.RFC3339)
	var total int64
	for _, table := range []string{"race_lists", "race_details"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE saved_at < ?", ts)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
