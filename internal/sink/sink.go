package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shortontech/goprint/internal/event"
)

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(e event.Event) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}

// Column order shared by the SQL sinks.
var recordColumns = []string{"event_id", "ts", "fingerprint", "risk_level", "risk_score", "confidence", "payload"}

// record flattens an event into recordColumns. The full event is kept as
// JSON in payload; the other columns exist for indexing.
func record(e event.Event) ([]any, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	level := sql.NullString{String: e.RiskLevel(), Valid: e.RiskLevel() != ""}
	score := sql.NullInt64{Int64: int64(e.RiskScore()), Valid: e.RiskScore() >= 0}
	return []any{
		e.EventID,
		e.Time().UTC().Format(time.RFC3339Nano),
		e.Fingerprint,
		level,
		score,
		e.Confidence,
		string(payload),
	}, nil
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// validateTableName guards identifiers that are interpolated into SQL.
func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q: must match %s", name, tableNamePattern.String())
	}
	return nil
}

// Helper functions
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
