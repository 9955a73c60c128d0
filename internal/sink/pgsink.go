package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/shortontech/goprint/internal/event"
	"github.com/shortontech/goprint/internal/metrics"
)

// PGConfig holds configuration for the Postgres sink
type PGConfig struct {
	DSN       string
	Table     string
	BatchSize int
	FlushMS   int
	UseCopy   bool
}

// PGSink batches events and writes them with COPY or a multi-row INSERT.
type PGSink struct {
	config PGConfig
	db     *sql.DB

	mu    sync.Mutex
	batch []event.Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

const (
	defaultPGTable     = "fingerprints"
	defaultPGBatchSize = 500
	defaultPGFlushMS   = 500
)

// NewPGSinkFromEnv creates a PGSink from environment variables
func NewPGSinkFromEnv() *PGSink {
	return &PGSink{
		config: PGConfig{
			DSN:       getEnvOr("PG_DSN", "postgres://localhost:5432/goprint?sslmode=disable"),
			Table:     getEnvOr("PG_TABLE", defaultPGTable),
			BatchSize: getIntEnv("PG_BATCH_SIZE", defaultPGBatchSize),
			FlushMS:   getIntEnv("PG_FLUSH_MS", defaultPGFlushMS),
			UseCopy:   getBoolEnv("PG_COPY", true),
		},
	}
}

// NewPGSink creates a PGSink with default batching for dsn
func NewPGSink(dsn string) *PGSink {
	return &PGSink{
		config: PGConfig{
			DSN:       dsn,
			Table:     defaultPGTable,
			BatchSize: defaultPGBatchSize,
			FlushMS:   defaultPGFlushMS,
			UseCopy:   true,
		},
	}
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
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s.db = db

	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.ensureSchema(); err != nil {
		s.cancel()
		db.Close()
		return err
	}

	s.batch = make([]event.Event, 0, s.config.BatchSize)
	s.done = make(chan struct{})
	go s.flushRoutine()

	log.Printf("sink/postgres: writing to %s (batch=%d flush=%dms copy=%v)",
		s.config.Table, s.config.BatchSize, s.config.FlushMS, s.config.UseCopy)
	return nil
}

// Ping checks the database connection. It fails before Start.
func (s *PGSink) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("postgres sink not started")
	}
	return s.db.PingContext(ctx)
}

func (s *PGSink) ensureSchema() error {
	t := s.config.Table
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_id    TEXT PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	fingerprint TEXT NOT NULL,
	risk_level  TEXT,
	risk_score  INTEGER,
	confidence  INTEGER NOT NULL,
	payload     JSONB NOT NULL
)`, t)
	if _, err := s.db.ExecContext(s.ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t, err)
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (ts)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_fingerprint ON %s (fingerprint)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_gin ON %s USING GIN (payload)", t, t),
	}
	for _, q := range indexes {
		if _, err := s.db.ExecContext(s.ctx, q); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", t, err)
		}
	}
	return nil
}

// Enqueue buffers e and flushes when the batch is full. On a failed flush
// the batch is kept for the next attempt, up to ten batches.
func (s *PGSink) Enqueue(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = append(s.batch, e)
	if limit := s.config.BatchSize * 10; limit > 0 && len(s.batch) > limit {
		dropped := len(s.batch) - limit
		s.batch = append([]event.Event(nil), s.batch[dropped:]...)
		log.Printf("sink/postgres: backlog full, dropped %d oldest events", dropped)
	}
	metrics.GetMetrics().SetQueueDepth(s.Name(), float64(len(s.batch)))
	if len(s.batch) < s.config.BatchSize {
		return nil
	}
	return s.flushLocked()
}

func (s *PGSink) flushBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *PGSink) flushLocked() error {
	if len(s.batch) == 0 {
		return nil
	}
	if s.db == nil {
		return fmt.Errorf("postgres sink not started")
	}
	start := time.Now()
	var err error
	if s.config.UseCopy {
		err = s.flushWithCopy()
	} else {
		err = s.flushWithInsert()
	}
	if err != nil {
		return err
	}
	m := metrics.GetMetrics()
	m.ObserveBatchFlushLatency(s.Name(), time.Since(start))
	s.batch = s.batch[:0]
	m.SetQueueDepth(s.Name(), 0)
	return nil
}

// rows encodes the batch. An event that cannot be serialized is logged and
// skipped so it cannot hold back the rest of the backlog.
func (s *PGSink) rows() [][]any {
	out := make([][]any, 0, len(s.batch))
	for _, e := range s.batch {
		row, err := record(e)
		if err != nil {
			log.Printf("sink/postgres: dropping event %s: %v", e.EventID, err)
			metrics.GetMetrics().IncrementSinkErrors(s.Name(), "encode")
			continue
		}
		out = append(out, row)
	}
	return out
}

func (s *PGSink) flushWithInsert() error {
	rows := s.rows()
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.config.Table, strings.Join(recordColumns, ", "))
	args := make([]any, 0, len(rows)*len(recordColumns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteByte(')')
		args = append(args, row...)
	}
	b.WriteString(" ON CONFLICT (event_id) DO NOTHING")

	if _, err := s.db.ExecContext(s.ctx, b.String(), args...); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (s *PGSink) flushWithCopy() error {
	rows := s.rows()
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(s.config.Table, recordColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, row := range rows {
		if _, err := stmt.Exec(row...); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy row: %w", err)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to finish copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit copy: %w", err)
	}
	return nil
}

func (s *PGSink) flushRoutine() {
	defer close(s.done)

	flushMS := s.config.FlushMS
	if flushMS <= 0 {
		flushMS = defaultPGFlushMS
	}
	ticker := time.NewTicker(time.Duration(flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.flushBatch(); err != nil {
				log.Printf("sink/postgres: periodic flush failed: %v", err)
			}
		}
	}
}

// Close stops the flush routine, writes what is left and closes the pool.
func (s *PGSink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	// the sink context is cancelled by now
	s.ctx = context.Background()
	flushErr := s.flushLocked()
	s.mu.Unlock()

	closeErr := s.db.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush on close: %w", flushErr)
	}
	return closeErr
}
