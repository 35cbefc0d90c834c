package compression

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/queue"
)

type call struct {
	path    string
	profile configs.CompressionProfile
}

type fakeCompressor struct {
	mu      sync.Mutex
	calls   []call
	err     error
	release chan struct{}
	started chan string
}

func (f *fakeCompressor) Compress(ctx context.Context, path string, profile configs.CompressionProfile) error {
	if f.started != nil {
		f.started <- path
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{path: path, profile: profile})
	return f.err
}

func (f *fakeCompressor) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func testConfig() configs.Compression {
	return configs.Compression{
		MaxConcurrent:  2,
		ThresholdBytes: 10,
		Large:          configs.CompressionProfile{CRF: 30, Preset: "veryfast"},
		Small:          configs.CompressionProfile{CRF: 28, Preset: "ultrafast", Tune: "film"},
	}
}

func writeFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestWorker_ProfileThreshold(t *testing.T) {
	w := NewWorker(context.Background(), testConfig(), queue.NewMemoryBroker(1), &fakeCompressor{})
	defer w.Close(context.Background())

	name, p := w.profileFor(10)
	assert.Equal(t, ProfileSmall, name)
	assert.Equal(t, 28, p.CRF)

	name, p = w.profileFor(11)
	assert.Equal(t, ProfileLarge, name)
	assert.Equal(t, "veryfast", p.Preset)
}

func TestWorker_ConsumesJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	broker := queue.NewMemoryBroker(4)
	defer broker.Close()
	fc := &fakeCompressor{}
	w := NewWorker(context.Background(), testConfig(), broker, fc)
	require.NoError(t, w.Start(context.Background()))

	small := writeFile(t, 4)
	large := writeFile(t, 64)
	require.NoError(t, broker.Enqueue(context.Background(), queue.CompressionJob{StreamPath: small}))
	require.NoError(t, broker.Enqueue(context.Background(), queue.CompressionJob{StreamPath: large}))

	assert.Eventually(t, func() bool { return len(fc.recorded()) == 2 }, 2*time.Second, 10*time.Millisecond)
	w.Close(context.Background())

	byPath := map[string]configs.CompressionProfile{}
	for _, c := range fc.recorded() {
		byPath[c.path] = c.profile
	}
	assert.Equal(t, 28, byPath[small].CRF)
	assert.Equal(t, 30, byPath[large].CRF)
	assert.Empty(t, w.RunningJobs())
}

func TestWorker_DropsDuplicateDelivery(t *testing.T) {
	fc := &fakeCompressor{release: make(chan struct{}), started: make(chan string, 1)}
	w := NewWorker(context.Background(), testConfig(), queue.NewMemoryBroker(1), fc)
	defer w.Close(context.Background())
	path := writeFile(t, 4)

	done := make(chan error, 1)
	go func() { done <- w.handle(context.Background(), queue.CompressionJob{StreamPath: path}) }()
	<-fc.started

	jobs := w.RunningJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, path, jobs[0].StreamPath)
	assert.Equal(t, ProfileSmall, jobs[0].Profile)
	assert.EqualValues(t, 4, jobs[0].Size)

	assert.NoError(t, w.handle(context.Background(), queue.CompressionJob{StreamPath: path}))

	close(fc.release)
	require.NoError(t, <-done)
	assert.Len(t, fc.recorded(), 1)
	assert.Empty(t, w.RunningJobs())
}

func TestWorker_MissingFile(t *testing.T) {
	fc := &fakeCompressor{}
	w := NewWorker(context.Background(), testConfig(), queue.NewMemoryBroker(1), fc)
	defer w.Close(context.Background())

	err := w.handle(context.Background(), queue.CompressionJob{StreamPath: filepath.Join(t.TempDir(), "gone.mp4")})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, fc.recorded())
}

func TestWorker_CompressFailureIsConsumed(t *testing.T) {
	fc := &fakeCompressor{err: errors.New("no space left on device")}
	w := NewWorker(context.Background(), testConfig(), queue.NewMemoryBroker(1), fc)
	defer w.Close(context.Background())
	path := writeFile(t, 4)

	err := w.handle(context.Background(), queue.CompressionJob{StreamPath: path})
	assert.ErrorContains(t, err, "no space left")
	assert.Empty(t, w.RunningJobs())
}

func TestWorker_CloseWaitsForRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	broker := queue.NewMemoryBroker(1)
	defer broker.Close()
	fc := &fakeCompressor{release: make(chan struct{}), started: make(chan string, 1)}
	w := NewWorker(context.Background(), testConfig(), broker, fc)
	require.NoError(t, w.Start(context.Background()))

	path := writeFile(t, 4)
	require.NoError(t, broker.Enqueue(context.Background(), queue.CompressionJob{StreamPath: path}))
	<-fc.started

	closed := make(chan struct{})
	go func() {
		w.Close(context.Background())
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(fc.release)
	<-closed
	assert.Len(t, fc.recorded(), 1)
}
