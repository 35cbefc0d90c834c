package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/queue"
	"github.com/bililive-go/livearchiver/src/store"
)

type fakeThumbs struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeThumbs) Generate(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.err
}

func (f *fakeThumbs) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type fakeTranscoder struct {
	mu       sync.Mutex
	duration float64
	probeErr error
	remuxErr error
	remuxed  []string
}

func (f *fakeTranscoder) ProbeDuration(context.Context, string) (float64, error) {
	return f.duration, f.probeErr
}

func (f *fakeTranscoder) Remux(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remuxed = append(f.remuxed, path)
	return f.remuxErr
}

type testEnv struct {
	cfg    *configs.Config
	store  *store.MemoryStore
	broker *queue.MemoryBroker
	urls   *URLBuilder
	thumbs *fakeThumbs
	media  *fakeTranscoder
}

func newTestEnv(t *testing.T) *testEnv {
	cfg := configs.NewConfig()
	cfg.Media.Root = t.TempDir()
	urls, err := NewURLBuilder(cfg.URLs, cfg.Engine.App)
	require.NoError(t, err)
	broker := queue.NewMemoryBroker(16)
	t.Cleanup(func() { broker.Close() })
	return &testEnv{
		cfg:    cfg,
		store:  store.NewMemoryStore(),
		broker: broker,
		urls:   urls,
		thumbs: &fakeThumbs{},
		media:  &fakeTranscoder{duration: 3725.4},
	}
}

func (e *testEnv) finalizer() *Finalizer {
	return NewFinalizer(e.cfg, e.store, e.broker, e.media, e.urls)
}

func (e *testEnv) seedLive(t *testing.T, key string, active bool) *store.LiveStream {
	live := &store.LiveStream{
		StreamKey:     key,
		Creator:       "creator-1",
		Title:         "Friday night",
		Description:   "jam session",
		Category:      "music",
		Tags:          []string{"jazz"},
		Visibility:    "public",
		IsActive:      active,
		Thumbnail:     "https://live.example.com/live/" + key + "/image.png",
		Views:         40,
		Likes:         2,
		NumOfMessages: 3,
	}
	require.NoError(t, e.store.UpsertLiveStream(context.Background(), live))
	return live
}

func (e *testEnv) writeRecording(t *testing.T, key string) string {
	path := e.cfg.RawRecordingPath(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("mp4"), 0o644))
	return path
}
