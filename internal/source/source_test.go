package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-replay/internal/config"
	"ride-replay/internal/dataset"
)

func TestDirFetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trip.json"), []byte(`[]`), 0o644))

	src := NewDir(dir)
	b, err := src.Fetch(context.Background(), dataset.PayloadName(dataset.KindTrips))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	_, err = src.Fetch(context.Background(), "result.json")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDirFetchStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "data")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.json"), []byte(`x`), 0o644))

	_, err := NewDir(root).Fetch(context.Background(), "../secret.json")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string]string
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.keys = append(f.keys, aws.ToString(in.Bucket)+"/"+key)
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func TestS3Fetch(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"runs/seongnam/stats.csv": "a,b\n1,2\n"}}
	src := &S3{client: fake, bucket: "sim", prefix: "/runs/seongnam/"}

	b, err := src.Fetch(context.Background(), "stats.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(b))

	_, err = src.Fetch(context.Background(), "trip.json")
	assert.ErrorContains(t, err, "s3://sim/runs/seongnam/trip.json")
	assert.Equal(t, []string{"sim/runs/seongnam/stats.csv", "sim/runs/seongnam/trip.json"}, fake.keys)
}

func TestS3KeyWithoutPrefix(t *testing.T) {
	assert.Equal(t, "result.json", (&S3{}).key("result.json"))
}

func TestNewRejectsUnknownSource(t *testing.T) {
	_, err := New(context.Background(), &config.Config{DataSource: "ftp"})
	assert.Error(t, err)

	src, err := New(context.Background(), &config.Config{DataSource: config.SourceDir, DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Dir{}, src)
	assert.NoError(t, src.Close())
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), "us-east-1", "", "")
	assert.ErrorContains(t, err, "S3_BUCKET")
}
