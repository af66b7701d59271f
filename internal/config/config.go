package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ride-replay/internal/dataset"
	"ride-replay/internal/db"
)

const (
	SourceDir      = "dir"
	SourceS3       = "s3"
	SourcePostgres = "postgres"
)

type Config struct {
	DataSource  string
	DataDir     string
	S3Bucket    string
	S3Prefix    string
	AWSRegion   string
	DatabaseURL string
	Scenario    string
	RunID       string

	MinTime     float64
	MaxTime     float64
	InitialTime float64

	HTTPAddr          string
	CORSOrigins       []string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string
	LoadTimeout       time.Duration

	// DefaultStats is served when stats.csv cannot be loaded. Nil means
	// the summary is reported unavailable.
	DefaultStats *dataset.StatsSummary
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.DataSource = strings.ToLower(getenvDefault("DATA_SOURCE", SourceDir))
	switch cfg.DataSource {
	case SourceDir, SourceS3, SourcePostgres:
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE: %q", cfg.DataSource)
	}
	cfg.DataDir = getenvDefault("DATA_DIR", "./data")
	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3Prefix = os.Getenv("S3_PREFIX")
	cfg.AWSRegion = getenvDefault("AWS_REGION", "us-east-1")
	if cfg.DataSource == SourceS3 && cfg.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET must be set when DATA_SOURCE=s3")
	}

	cfg.Scenario = os.Getenv("REPLAY_SCENARIO")
	cfg.RunID = os.Getenv("REPLAY_RUN_ID")
	if cfg.DataSource == SourcePostgres {
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
		if cfg.Scenario == "" && cfg.RunID == "" {
			return nil, errors.New("REPLAY_RUN_ID or REPLAY_SCENARIO must be set when DATA_SOURCE=postgres")
		}
	}

	var err error
	if cfg.MinTime, err = getenvFloat("MIN_TIME", 0); err != nil {
		return nil, err
	}
	if cfg.MaxTime, err = getenvFloat("MAX_TIME", 1439); err != nil {
		return nil, err
	}
	if cfg.MinTime > cfg.MaxTime {
		return nil, fmt.Errorf("MIN_TIME (%g) must not exceed MAX_TIME (%g)", cfg.MinTime, cfg.MaxTime)
	}
	if cfg.InitialTime, err = getenvFloat("INITIAL_TIME", cfg.MinTime); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8090")
	cfg.CORSOrigins = splitList(getenvDefault("CORS_ORIGINS", "*"))

	// Empty NATS_URL disables the NATS bridge.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "replay")

	// Debug logging for NATS publish subjects
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if v := os.Getenv("LOAD_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid LOAD_TIMEOUT_SEC: %q", v)
		}
		cfg.LoadTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.LoadTimeout = 30 * time.Second
	}

	cfg.DefaultStats = defaultStats()

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds one from PG* vars.
// REPLAY_DATABASE swaps the database name of whichever DSN was chosen.
func databaseURL() (string, error) {
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		name := firstNonEmpty(os.Getenv("PGDATABASE"), os.Getenv("REPLAY_DATABASE"))
		if name == "" {
			return "", errors.New("PGDATABASE or DATABASE_URL must be set when DATA_SOURCE=postgres")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, name, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, name, sslmode)
		}
	}
	if name := os.Getenv("REPLAY_DATABASE"); name != "" {
		withName, err := db.WithDBName(dsn, name)
		if err != nil {
			return "", fmt.Errorf("invalid REPLAY_DATABASE DSN: %v", err)
		}
		dsn = withName
	}
	return dsn, nil
}

// defaultStats returns the configured fallback summary, or nil when none of
// the DEFAULT_* variables is set.
func defaultStats() *dataset.StatsSummary {
	s := dataset.StatsSummary{
		TotalCalls:     os.Getenv("DEFAULT_TOTAL_CALLS"),
		FailedCalls:    os.Getenv("DEFAULT_FAILED_CALLS"),
		FailureRate:    os.Getenv("DEFAULT_FAILURE_RATE"),
		VehiclesDriven: os.Getenv("DEFAULT_VEHICLES_DRIVEN"),
	}
	if s.TotalCalls == "" && s.FailedCalls == "" && s.FailureRate == "" && s.VehiclesDriven == "" {
		return nil
	}
	return &s
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
