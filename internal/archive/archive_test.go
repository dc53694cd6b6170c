package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleExport() Export {
	return Export{
		AppID:    "com.example.app",
		Endpoint: "blocked_installs_report",
		Period:   "last10",
		From:     "2024-05-01",
		To:       "2024-05-10",
		Body:     []byte("Install Time,Media Source\n"),
	}
}

func TestExportKey(t *testing.T) {
	assert.Equal(t, "last10/com.example.app/blocked_installs_report/2024-05-01_2024-05-10.csv", sampleExport().Key())

	e := sampleExport()
	e.AppID = "../../etc"
	assert.Equal(t, "last10/.._.._etc/blocked_installs_report/2024-05-01_2024-05-10.csv", e.Key())
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "raw")
	require.NoError(t, l.Archive(context.Background(), sampleExport()))

	data, err := os.ReadFile(filepath.Join(dir, "raw", "last10", "com.example.app", "blocked_installs_report", "2024-05-01_2024-05-10.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Install Time,Media Source\n", string(data))
}

type fakeS3 struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, *in.Bucket+"/"+*in.Key)
	return &s3.PutObjectOutput{}, nil
}

func TestS3(t *testing.T) {
	fake := &fakeS3{}
	a := &S3{client: fake, bucket: "af-raw", prefix: "raw"}
	require.NoError(t, a.Archive(context.Background(), sampleExport()))
	assert.Equal(t, []string{"af-raw/raw/last10/com.example.app/blocked_installs_report/2024-05-01_2024-05-10.csv"}, fake.keys)

	fake.err = errors.New("access denied")
	assert.Error(t, a.Archive(context.Background(), sampleExport()))
}

// blockingArchiver holds every write until release is closed.
type blockingArchiver struct {
	release chan struct{}
	mu      sync.Mutex
	written int
}

func (b *blockingArchiver) Archive(ctx context.Context, e Export) error {
	<-b.release
	b.mu.Lock()
	b.written++
	b.mu.Unlock()
	return nil
}

func TestAsync_DropsWhenFullAndDrainsOnClose(t *testing.T) {
	inner := &blockingArchiver{release: make(chan struct{})}
	a := NewAsync(inner, 1)

	dropped := 0
	a.OnDrop = func(Export) { dropped++ }

	// First export is picked up by the worker, second fills the queue.
	require.NoError(t, a.Archive(context.Background(), sampleExport()))
	require.Eventually(t, func() bool { return len(a.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, a.Archive(context.Background(), sampleExport()))

	err := a.Archive(context.Background(), sampleExport())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, dropped)

	close(inner.release)
	a.Close()
	assert.Equal(t, 2, inner.written)
	assert.ErrorIs(t, a.Archive(context.Background(), sampleExport()), ErrClosed)
}

func TestAsync_ReportsFailures(t *testing.T) {
	fake := &fakeS3{err: errors.New("boom")}
	a := NewAsync(&S3{client: fake, bucket: "b"}, 4)

	var mu sync.Mutex
	failures := 0
	a.OnFailure = func(Export, error) {
		mu.Lock()
		failures++
		mu.Unlock()
	}
	require.NoError(t, a.Archive(context.Background(), sampleExport()))
	a.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, failures)
}
