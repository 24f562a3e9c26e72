package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/Abhaythakor/fingerprintweb/config"
	"github.com/Abhaythakor/fingerprintweb/model"
)

// PGConfig holds the Postgres connection settings.
type PGConfig struct {
	DSN   string
	Table string
}

// PGSink stores one row per detected technology. Results without matches, including
// failures, are stored as a single row with an empty app.
type PGSink struct {
	config PGConfig
	scanID string
	db     *sql.DB
	now    func() time.Time
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// validateTableName guards the identifiers interpolated into DDL.
func validateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// NewPGSinkFromEnv reads PG_DSN and PG_TABLE.
func NewPGSinkFromEnv(scanID string) *PGSink {
	return &PGSink{
		scanID: scanID,
		config: PGConfig{
			DSN:   config.GetOr("PG_DSN", "postgres://localhost:5432/fingerprintweb?sslmode=disable"),
			Table: config.GetOr("PG_TABLE", "scan_results"),
		},
		now: time.Now,
	}
}

// NewPGSink creates a PGSink writing to the default table.
func NewPGSink(dsn, scanID string) *PGSink {
	return &PGSink{scanID: scanID, config: PGConfig{DSN: dsn, Table: "scan_results"}, now: time.Now}
}

func (s *PGSink) Name() string { return "postgres" }

func (s *PGSink) Start(ctx context.Context) error {
	if err := validateTableName(s.config.Table); err != nil {
		return err
	}
	db, err := sql.Open("postgres", s.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s.db = db
	return s.ensureSchema(ctx)
}

func (s *PGSink) ensureSchema(ctx context.Context) error {
	table := pq.QuoteIdentifier(s.config.Table)
	create := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id          BIGSERIAL PRIMARY KEY,
		scan_id     TEXT NOT NULL,
		scanned_at  TIMESTAMPTZ NOT NULL,
		url         TEXT NOT NULL,
		final_url   TEXT,
		domain      TEXT,
		status      INTEGER,
		app         TEXT,
		ver         TEXT,
		type        TEXT,
		origin      TEXT,
		implied     BOOLEAN,
		confidence  INTEGER,
		error       TEXT,
		error_type  TEXT
	)`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier("idx_"+s.config.Table+"_url") + ` ON ` + table + ` (url)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (s *PGSink) insertSQL() string {
	return `INSERT INTO ` + pq.QuoteIdentifier(s.config.Table) + ` (scan_id, scanned_at, url, final_url, domain, status,
		app, ver, type, origin, implied, confidence, error, error_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
}

// Publish writes all rows for r in one transaction.
func (s *PGSink) Publish(ctx context.Context, r model.Result) (err error) {
	if s.db == nil {
		return errors.New("postgres sink not started")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	at := s.now().UTC()
	matches := r.Matches
	if len(matches) == 0 {
		matches = []model.Match{{}}
	}
	query := s.insertSQL()
	for _, m := range matches {
		_, err = tx.ExecContext(ctx, query,
			s.scanID, at, r.URL, nullable(r.FinalURL), nullable(r.Domain), r.Status,
			nullable(m.Name), nullable(m.Version), nullable(m.Category), nullable(string(m.Origin)),
			m.Implied, m.Confidence, nullable(r.Error), nullable(r.ErrorType))
		if err != nil {
			return fmt.Errorf("failed to insert result row: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PGSink) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
