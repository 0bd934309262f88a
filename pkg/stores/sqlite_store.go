package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// PutSave writes or replaces a save slot
func (s *SQLiteStore) PutSave(ctx context.Context, slot string, document []byte, missionCount int) error {
	query := `
		INSERT INTO saves (slot, document, mission_count, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET
			document = excluded.document,
			mission_count = excluded.mission_count,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query, slot, document, missionCount)
	if err != nil {
		return fmt.Errorf("failed to write save: %w", err)
	}

	return nil
}

// GetSave retrieves a save slot
func (s *SQLiteStore) GetSave(ctx context.Context, slot string) (*SaveRecord, error) {
	query := `
		SELECT slot, document, mission_count, created_at, updated_at
		FROM saves
		WHERE slot = ?
	`

	rec := &SaveRecord{}
	err := s.db.QueryRowContext(ctx, query, slot).Scan(
		&rec.Slot,
		&rec.Document,
		&rec.MissionCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("save not found: %s", slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get save: %w", err)
	}

	return rec, nil
}

// ListSaves lists save slots, most recently written first
func (s *SQLiteStore) ListSaves(ctx context.Context, limit, offset int) ([]*SaveRecord, error) {
	query := `
		SELECT slot, document, mission_count, created_at, updated_at
		FROM saves
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list saves: %w", err)
	}
	defer rows.Close()

	saves := []*SaveRecord{}
	for rows.Next() {
		rec := &SaveRecord{}
		err := rows.Scan(
			&rec.Slot,
			&rec.Document,
			&rec.MissionCount,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan save: %w", err)
		}
		saves = append(saves, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saves: %w", err)
	}

	return saves, nil
}

// DeleteSave removes a save slot and its completion history
func (s *SQLiteStore) DeleteSave(ctx context.Context, slot string) error {
	query := `DELETE FROM saves WHERE slot = ?`

	result, err := s.db.ExecContext(ctx, query, slot)
	if err != nil {
		return fmt.Errorf("failed to delete save: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("save not found: %s", slot)
	}

	return nil
}

// RecordCompletion records a template completion for a slot
func (s *SQLiteStore) RecordCompletion(ctx context.Context, slot, template string) error {
	query := `
		INSERT INTO completions (slot, template, completed_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot, template) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, slot, template)
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	return nil
}

// ListCompletions lists a slot's recorded completions
func (s *SQLiteStore) ListCompletions(ctx context.Context, slot string) ([]*Completion, error) {
	query := `
		SELECT slot, template, completed_at
		FROM completions
		WHERE slot = ?
		ORDER BY completed_at ASC, template ASC
	`

	rows, err := s.db.QueryContext(ctx, query, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	completions := []*Completion{}
	for rows.Next() {
		c := &Completion{}
		if err := rows.Scan(&c.Slot, &c.Template, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}

	return completions, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
