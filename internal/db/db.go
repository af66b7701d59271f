package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrPayloadNotFound is returned when a run has no payload under a name.
var ErrPayloadNotFound = errors.New("payload not found")

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchPayload returns the stored bytes of one dataset payload
// ("trip.json", "stats.csv", ...) of a simulation run.
func FetchPayload(ctx context.Context, db *sql.DB, runID, name string) ([]byte, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	q := `SELECT payload FROM replay_payloads WHERE run_id = $1 AND name = $2`
	var payload []byte
	if err := db.QueryRowContext(ctx, q, runID, name).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s for run %q: %w", name, runID, ErrPayloadNotFound)
		}
		return nil, fmt.Errorf("query payload %s: %w", name, err)
	}
	return payload, nil
}

// ResolveLatestRun returns the run_id of the most recently finished run
// whose scenario matches (ILIKE) the given name.
func ResolveLatestRun(ctx context.Context, db *sql.DB, scenario string) (string, error) {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		return "", fmt.Errorf("scenario is required")
	}
	q := `
SELECT run_id
FROM replay_runs
WHERE scenario ILIKE '%' || $1 || '%'
  AND finished_at IS NOT NULL
ORDER BY finished_at DESC
LIMIT 1`
	var runID sql.NullString
	if err := db.QueryRowContext(ctx, q, scenario).Scan(&runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no finished run found for scenario like %q", scenario)
		}
		return "", err
	}
	if !runID.Valid || runID.String == "" {
		return "", fmt.Errorf("empty run_id for scenario like %q", scenario)
	}
	return runID.String, nil
}
