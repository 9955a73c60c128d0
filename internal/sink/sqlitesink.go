package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/shortontech/goprint/internal/event"
)

// SQLiteConfig holds configuration for the embedded SQLite sink
type SQLiteConfig struct {
	Path  string
	Table string
}

// SQLiteSink stores fingerprint events in a local SQLite file. It is meant
// for single-node deployments and development where Postgres is overkill.
type SQLiteSink struct {
	config SQLiteConfig
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
}

// NewSQLiteSinkFromEnv creates a SQLiteSink from SQLITE_PATH and SQLITE_TABLE.
func NewSQLiteSinkFromEnv() *SQLiteSink {
	return NewSQLiteSink(
		getEnvOr("SQLITE_PATH", "goprint.db"),
		getEnvOr("SQLITE_TABLE", defaultPGTable),
	)
}

func NewSQLiteSink(path, table string) *SQLiteSink {
	return &SQLiteSink{config: SQLiteConfig{Path: path, Table: table}}
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Start(ctx context.Context) error {
	if err := validateTableName(s.config.Table); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", s.config.Path)
	if err != nil {
		return fmt.Errorf("opening sqlite database: %w", err)
	}
	// one writer; WAL lets readers proceed alongside it
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("setting pragma: %w", err)
		}
	}

	t := s.config.Table
	schema := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_id    TEXT PRIMARY KEY,
	ts          TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	risk_level  TEXT,
	risk_score  INTEGER,
	confidence  INTEGER NOT NULL,
	payload     TEXT NOT NULL
)`, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_fingerprint ON %s (fingerprint, ts)", t, t),
	}
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ")
	insert, err := db.PrepareContext(ctx, fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		t, strings.Join(recordColumns, ", "), placeholders))
	if err != nil {
		db.Close()
		return fmt.Errorf("preparing insert: %w", err)
	}

	s.mu.Lock()
	s.db, s.insert = db, insert
	s.mu.Unlock()

	log.Printf("sink/sqlite: writing to %s (table %s)", s.config.Path, t)
	return nil
}

func (s *SQLiteSink) Enqueue(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insert == nil {
		return fmt.Errorf("sqlite sink not started")
	}

	row, err := record(e)
	if err != nil {
		return err
	}
	if _, err := s.insert.Exec(row...); err != nil {
		return fmt.Errorf("inserting event %s: %w", e.EventID, err)
	}
	return nil
}

// Sighting summarizes how often a fingerprint has been stored.
type Sighting struct {
	Fingerprint string
	Count       int
	FirstSeen   string
	LastSeen    string
	LastRisk    string
}

// Sightings reports the stored history for fingerprint. A fingerprint that
// was never stored yields a zero Count.
func (s *SQLiteSink) Sightings(ctx context.Context, fingerprint string) (Sighting, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return Sighting{}, fmt.Errorf("sqlite sink not started")
	}

	t := s.config.Table
	out := Sighting{Fingerprint: fingerprint}
	var first, last sql.NullString
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*), MIN(ts), MAX(ts) FROM %s WHERE fingerprint = ?", t),
		fingerprint,
	).Scan(&out.Count, &first, &last)
	if err != nil {
		return Sighting{}, fmt.Errorf("querying sightings: %w", err)
	}
	if out.Count == 0 {
		return out, nil
	}
	out.FirstSeen, out.LastSeen = first.String, last.String

	var risk sql.NullString
	err = db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT risk_level FROM %s WHERE fingerprint = ? ORDER BY ts DESC LIMIT 1", t),
		fingerprint,
	).Scan(&risk)
	if err != nil {
		return Sighting{}, fmt.Errorf("querying latest risk: %w", err)
	}
	out.LastRisk = risk.String
	return out, nil
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if s.insert != nil {
		s.insert.Close()
		s.insert = nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
