// Package source fetches raw dataset payloads from where a simulation run
// left them: a local directory, an S3 bucket or the Postgres run catalog.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ride-replay/internal/config"
	"ride-replay/internal/dataset"
	"ride-replay/internal/db"
)

// Source is a dataset.Fetcher that may hold resources.
type Source interface {
	dataset.Fetcher
	Close() error
}

// New builds the source selected by cfg.DataSource.
func New(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.DataSource {
	case config.SourceDir:
		return NewDir(cfg.DataDir), nil
	case config.SourceS3:
		return NewS3(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	case config.SourcePostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.Scenario, cfg.RunID)
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}

type Dir struct {
	root string
}

func NewDir(root string) *Dir { return &Dir{root: root} }

func (d *Dir) Fetch(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.root, filepath.Base(name)))
}

func (d *Dir) Close() error { return nil }

// objectGetter is the part of *s3.Client the source needs.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3 struct {
	client objectGetter
	bucket string
	prefix string
}

func NewS3(ctx context.Context, region, bucket, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required for the s3 data source")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &S3{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func (s *S3) key(name string) string {
	p := strings.Trim(s.prefix, "/")
	if p == "" {
		return name
	}
	return path.Join(p, name)
}

func (s *S3) Fetch(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return b, nil
}

func (s *S3) Close() error { return nil }

type Postgres struct {
	db    *sql.DB
	runID string
}

// OpenPostgres connects to the run catalog. When runID is empty the latest
// finished run of scenario is used.
func OpenPostgres(ctx context.Context, dsn, scenario, runID string) (*Postgres, error) {
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if runID == "" {
		runID, err = db.ResolveLatestRun(ctx, sqlDB, scenario)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		log.Printf("using run %q for scenario %q", runID, scenario)
	}
	return &Postgres{db: sqlDB, runID: runID}, nil
}

func (p *Postgres) RunID() string { return p.runID }

func (p *Postgres) Fetch(ctx context.Context, name string) ([]byte, error) {
	return db.FetchPayload(ctx, p.db, p.runID, name)
}

func (p *Postgres) Close() error { return p.db.Close() }
