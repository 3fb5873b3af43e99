package api

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"streamtube/internal/models"
	"streamtube/internal/storage"
)

type fakeProber struct {
	mu       sync.Mutex
	duration float64
	err      error
	probed   []string
}

func (f *fakeProber) Probe(ctx context.Context, url string) (MediaInfo, error) {
	f.mu.Lock()
	f.probed = append(f.probed, url)
	f.mu.Unlock()
	if f.err != nil {
		return MediaInfo{}, f.err
	}
	return MediaInfo{Duration: f.duration}, nil
}

func (f *fakeProber) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probed)
}

func newProcessorStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func waitForVideoState(t *testing.T, store *storage.Storage, videoID string, want models.VideoState) models.Video {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		video, exists := store.GetVideo(videoID)
		if !exists {
			t.Fatalf("video %s disappeared", videoID)
		}
		if video.State == want {
			return video
		}
		time.Sleep(5 * time.Millisecond)
	}
	video, _ := store.GetVideo(videoID)
	t.Fatalf("video %s stuck in state %q, want %q", videoID, video.State, want)
	return models.Video{}
}

func shutdownProcessor(t *testing.T, processor *VideoProcessor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := processor.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}

func TestProcessorMarksVideoReady(t *testing.T) {
	store := newProcessorStore(t)
	user := registerUser(t, store, "alice")
	video := createTestVideo(t, store, user.ID, "fresh upload")

	prober := &fakeProber{duration: 90.5}
	processor := NewVideoProcessor(VideoProcessorConfig{Store: store, Prober: prober})
	processor.Start()
	defer shutdownProcessor(t, processor)

	processor.Enqueue(video.ID)

	ready := waitForVideoState(t, store, video.ID, models.VideoStateReady)
	if ready.Duration != 90.5 {
		t.Fatalf("duration = %v, want 90.5", ready.Duration)
	}
	if prober.probeCount() == 0 {
		t.Fatal("prober was never consulted")
	}
}

func TestProcessorMarksVideoFailedOnProbeError(t *testing.T) {
	store := newProcessorStore(t)
	user := registerUser(t, store, "alice")
	video := createTestVideo(t, store, user.ID, "broken upload")

	prober := &fakeProber{err: errors.New("moov atom not found")}
	processor := NewVideoProcessor(VideoProcessorConfig{Store: store, Prober: prober})
	processor.Start()
	defer shutdownProcessor(t, processor)

	processor.Enqueue(video.ID)

	waitForVideoState(t, store, video.ID, models.VideoStateFailed)
}

func TestProcessorRecoversInterruptedJobs(t *testing.T) {
	store := newProcessorStore(t)
	user := registerUser(t, store, "alice")
	first := createTestVideo(t, store, user.ID, "interrupted one")
	second := createTestVideo(t, store, user.ID, "interrupted two")

	// Start with no explicit Enqueue; pending videos are picked up from
	// storage the way a restart would find them.
	processor := NewVideoProcessor(VideoProcessorConfig{Store: store, Prober: &fakeProber{duration: 10}})
	processor.Start()
	defer shutdownProcessor(t, processor)

	waitForVideoState(t, store, first.ID, models.VideoStateReady)
	waitForVideoState(t, store, second.ID, models.VideoStateReady)
}

func TestProcessorSkipsSettledVideos(t *testing.T) {
	store := newProcessorStore(t)
	user := registerUser(t, store, "alice")
	video := createTestVideo(t, store, user.ID, "already done")
	if _, err := store.SetVideoState(video.ID, models.VideoStateReady, 33); err != nil {
		t.Fatalf("SetVideoState error: %v", err)
	}

	prober := &fakeProber{duration: 99}
	processor := NewVideoProcessor(VideoProcessorConfig{Store: store, Prober: prober})
	processor.Start()

	processor.Enqueue(video.ID)
	time.Sleep(50 * time.Millisecond)
	shutdownProcessor(t, processor)

	got, _ := store.GetVideo(video.ID)
	if got.Duration != 33 {
		t.Fatalf("settled video was reprocessed: %+v", got)
	}
}

func TestProcessorEnqueueAfterShutdownIsDropped(t *testing.T) {
	store := newProcessorStore(t)
	processor := NewVideoProcessor(VideoProcessorConfig{Store: store, QueueSize: 1})
	processor.Start()
	shutdownProcessor(t, processor)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			processor.Enqueue("any-id")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked after shutdown")
	}
}
