package tryon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
)

type memoryStorage struct {
	mu    sync.Mutex
	blobs map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{blobs: make(map[string]string)}
}

func (s *memoryStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.blobs[name] = string(data)
	s.mu.Unlock()
	return "https://store.example.com/" + name, nil
}

type archiveUpdaterSpy struct {
	mu     sync.Mutex
	ready  map[string][2]string
	failed []string
	done   chan struct{}
}

func newArchiveUpdaterSpy() *archiveUpdaterSpy {
	return &archiveUpdaterSpy{ready: make(map[string][2]string), done: make(chan struct{}, 8)}
}

func (u *archiveUpdaterSpy) MarkArchiveReady(_ context.Context, id, imageLocation, videoLocation string) error {
	u.mu.Lock()
	u.ready[id] = [2]string{imageLocation, videoLocation}
	u.mu.Unlock()
	u.done <- struct{}{}
	return nil
}

func (u *archiveUpdaterSpy) MarkArchiveFailed(_ context.Context, id string) error {
	u.mu.Lock()
	u.failed = append(u.failed, id)
	u.mu.Unlock()
	u.done <- struct{}{}
	return nil
}

func waitForUpdate(t *testing.T, u *archiveUpdaterSpy) {
	t.Helper()
	select {
	case <-u.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for archive update")
	}
}

func TestArchiverStoresImageAndVideo(t *testing.T) {
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/result.jpg":
			io.WriteString(w, "jpeg-bytes")
		case "/result.mp4":
			io.WriteString(w, "mp4-bytes")
		default:
			http.NotFound(w, r)
		}
	}))
	defer assets.Close()

	storage := newMemoryStorage()
	updater := newArchiveUpdaterSpy()

	archiver := NewArchiver(storage, updater, ArchiverConfig{Workers: 1}, nil)
	defer archiver.Shutdown(context.Background())

	record := models.TryOn{
		ID:       "tryon-1",
		ImageURL: assets.URL + "/result.jpg",
		VideoURL: assets.URL + "/result.mp4",
	}
	if err := archiver.Enqueue(context.Background(), record); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForUpdate(t, updater)

	updater.mu.Lock()
	locations, ok := updater.ready["tryon-1"]
	updater.mu.Unlock()
	if !ok {
		t.Fatalf("expected archive ready, failures: %v", updater.failed)
	}
	if locations[0] != "https://store.example.com/tryon-1/result.jpg" {
		t.Fatalf("unexpected image location %q", locations[0])
	}
	if locations[1] != "https://store.example.com/tryon-1/result.mp4" {
		t.Fatalf("unexpected video location %q", locations[1])
	}

	storage.mu.Lock()
	defer storage.mu.Unlock()
	if storage.blobs["tryon-1/result.jpg"] != "jpeg-bytes" {
		t.Fatal("image bytes not stored")
	}
	if storage.blobs["tryon-1/result.mp4"] != "mp4-bytes" {
		t.Fatal("video bytes not stored")
	}
}

func TestArchiverRecordsDownloadFailure(t *testing.T) {
	assets := httptest.NewServer(http.NotFoundHandler())
	defer assets.Close()

	updater := newArchiveUpdaterSpy()
	archiver := NewArchiver(newMemoryStorage(), updater, ArchiverConfig{Workers: 1}, nil)
	defer archiver.Shutdown(context.Background())

	record := models.TryOn{ID: "tryon-2", ImageURL: assets.URL + "/missing.jpg"}
	if err := archiver.Enqueue(context.Background(), record); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForUpdate(t, updater)

	updater.mu.Lock()
	defer updater.mu.Unlock()
	if len(updater.failed) != 1 || updater.failed[0] != "tryon-2" {
		t.Fatalf("expected one failure for tryon-2, got %v", updater.failed)
	}
}

func TestArchiverRejectsAfterShutdown(t *testing.T) {
	archiver := NewArchiver(newMemoryStorage(), newArchiveUpdaterSpy(), ArchiverConfig{Workers: 1}, nil)
	if err := archiver.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if err := archiver.Enqueue(context.Background(), models.TryOn{ID: "late"}); err == nil {
		t.Fatal("expected enqueue to fail after shutdown")
	}
}
