package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) the journal at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, &JournalError{Op: "open", Kind: ErrConnectionFailed, Err: err}
		}
	}

	db, err := sqlx.Open("sqlite3", dsn+"?_busy_timeout=5000")
	if err != nil {
		return nil, &JournalError{Op: "open", Kind: ErrConnectionFailed, Err: err}
	}
	// Each :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &JournalError{Op: "open", Kind: ErrConnectionFailed, Err: err}
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, &JournalError{Op: "open", Kind: ErrMigrationFailed, Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Assignment Operations
// =============================================================================

type assignmentRow struct {
	ID           string `db:"id"`
	Branch       string `db:"branch"`
	TargetBranch string `db:"target_branch"`
	Kind         string `db:"kind"`
	Class        string `db:"class"`
	FromVersion  string `db:"from_version"`
	Version      string `db:"version"`
	Attempts     int    `db:"attempts"`
	Outcome      string `db:"outcome"`
	ErrorMessage string `db:"error_message"`
	LockWaitMS   int64  `db:"lock_wait_ms"`
	CreatedAt    string `db:"created_at"`
}

// RecordAssignment appends a. Missing ID and CreatedAt are filled in.
func (s *SQLiteStore) RecordAssignment(ctx context.Context, a *Assignment) error {
	if a.TargetBranch == "" || a.Outcome == "" {
		return &JournalError{Op: "record", Table: "assignments", Key: a.ID, Kind: ErrInvalidData, Err: errors.New("target branch and outcome are required")}
	}
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO assignments (
			id, branch, target_branch, kind, class, from_version, version,
			attempts, outcome, error_message, lock_wait_ms, created_at
		) VALUES (
			:id, :branch, :target_branch, :kind, :class, :from_version, :version,
			:attempts, :outcome, :error_message, :lock_wait_ms, :created_at
		)`

	row := assignmentRow{
		ID:           a.ID,
		Branch:       a.Branch,
		TargetBranch: a.TargetBranch,
		Kind:         a.Kind,
		Class:        a.Class,
		FromVersion:  a.FromVersion,
		Version:      a.Version,
		Attempts:     a.Attempts,
		Outcome:      string(a.Outcome),
		ErrorMessage: a.ErrorMessage,
		LockWaitMS:   a.LockWait.Milliseconds(),
		CreatedAt:    a.CreatedAt.UTC().Format(timeLayout),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: assignments.id") {
			return &JournalError{Op: "record", Table: "assignments", Key: a.ID, Kind: ErrDuplicateID}
		}
		return &JournalError{Op: "record", Table: "assignments", Key: a.ID, Err: err}
	}
	return nil
}

// ListAssignments returns assignments newest first.
func (s *SQLiteStore) ListAssignments(ctx context.Context, opts ListOptions) ([]Assignment, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM assignments ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []assignmentRow
	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, &JournalError{Op: "list", Table: "assignments", Err: err}
	}

	out := make([]Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, Assignment{
			ID:           row.ID,
			Branch:       row.Branch,
			TargetBranch: row.TargetBranch,
			Kind:         row.Kind,
			Class:        row.Class,
			FromVersion:  row.FromVersion,
			Version:      row.Version,
			Attempts:     row.Attempts,
			Outcome:      Outcome(row.Outcome),
			ErrorMessage: row.ErrorMessage,
			LockWait:     time.Duration(row.LockWaitMS) * time.Millisecond,
			CreatedAt:    parseTime(row.CreatedAt),
		})
	}
	return out, nil
}

// =============================================================================
// Build Operations
// =============================================================================

type buildRow struct {
	ID          string `db:"id"`
	Environment string `db:"environment"`
	Branch      string `db:"branch"`
	Commit      string `db:"commit_id"`
	Version     string `db:"version"`
	Fingerprint string `db:"fingerprint"`
	Debug       bool   `db:"debug"`
	CreatedAt   string `db:"created_at"`
}

// RecordBuild appends b. Missing ID and CreatedAt are filled in.
func (s *SQLiteStore) RecordBuild(ctx context.Context, b *Build) error {
	if b.Environment == "" || b.Fingerprint == "" {
		return &JournalError{Op: "record", Table: "builds", Key: b.ID, Kind: ErrInvalidData, Err: errors.New("environment and fingerprint are required")}
	}
	if b.ID == "" {
		b.ID = NewID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO builds (id, environment, branch, commit_id, version, fingerprint, debug, created_at)
		VALUES (:id, :environment, :branch, :commit_id, :version, :fingerprint, :debug, :created_at)`

	row := buildRow{
		ID:          b.ID,
		Environment: b.Environment,
		Branch:      b.Branch,
		Commit:      b.Commit,
		Version:     b.Version,
		Fingerprint: b.Fingerprint,
		Debug:       b.Debug,
		CreatedAt:   b.CreatedAt.UTC().Format(timeLayout),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: builds.id") {
			return &JournalError{Op: "record", Table: "builds", Key: b.ID, Kind: ErrDuplicateID}
		}
		return &JournalError{Op: "record", Table: "builds", Key: b.ID, Err: err}
	}
	return nil
}

// LatestBuild returns the most recent build of environment.
func (s *SQLiteStore) LatestBuild(ctx context.Context, environment string) (*Build, error) {
	var row buildRow
	query := `SELECT * FROM builds WHERE environment = ? ORDER BY created_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &row, query, environment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &JournalError{Op: "latest", Table: "builds", Key: environment, Kind: ErrNotFound}
		}
		return nil, &JournalError{Op: "latest", Table: "builds", Key: environment, Err: err}
	}
	b := rowToBuild(row)
	return &b, nil
}

// ListBuilds returns builds newest first.
func (s *SQLiteStore) ListBuilds(ctx context.Context, opts ListOptions) ([]Build, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM builds ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []buildRow
	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, &JournalError{Op: "list", Table: "builds", Err: err}
	}

	out := make([]Build, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToBuild(row))
	}
	return out, nil
}

func rowToBuild(row buildRow) Build {
	return Build{
		ID:          row.ID,
		Environment: row.Environment,
		Branch:      row.Branch,
		Commit:      row.Commit,
		Version:     row.Version,
		Fingerprint: row.Fingerprint,
		Debug:       row.Debug,
		CreatedAt:   parseTime(row.CreatedAt),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
