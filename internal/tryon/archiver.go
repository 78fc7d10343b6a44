package tryon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
)

// AssetStorage persists a named blob and returns its public location.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ArchiveUpdater persists archive status updates for generation records.
type ArchiveUpdater interface {
	MarkArchiveReady(ctx context.Context, id, imageLocation, videoLocation string) error
	MarkArchiveFailed(ctx context.Context, id string) error
}

// ArchiverConfig controls the concurrency characteristics of the archiver.
type ArchiverConfig struct {
	QueueSize int
	Workers   int
}

// Archiver re-homes backend-hosted result assets into our own object store.
// Backend URLs are short-lived; the archived copy is what the history
// endpoint keeps serving. Archive failures never affect the generation
// response that was already returned.
type Archiver struct {
	storage AssetStorage
	updater ArchiveUpdater
	client  HTTPDoer
	logger  *slog.Logger

	jobs   chan models.TryOn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var errArchiverClosed = errors.New("result archiver closed")

// NewArchiver constructs a background worker pool that archives results.
func NewArchiver(storage AssetStorage, updater ArchiveUpdater, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &Archiver{
		storage: storage,
		updater: updater,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
		jobs:    make(chan models.TryOn, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	a.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go a.worker()
	}

	return a
}

// WithHTTPDoer overrides the download client. Useful for tests.
func (a *Archiver) WithHTTPDoer(client HTTPDoer) *Archiver {
	a.client = client
	return a
}

// Enqueue schedules archiving for the supplied completed record.
func (a *Archiver) Enqueue(ctx context.Context, record models.TryOn) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return errArchiverClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return errArchiverClosed
	case a.jobs <- record:
		return nil
	}
}

// Shutdown waits for the worker pool to drain outstanding jobs.
func (a *Archiver) Shutdown(ctx context.Context) error {
	a.once.Do(func() {
		a.cancel()
		close(a.jobs)
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case record, ok := <-a.jobs:
			if !ok {
				return
			}
			a.handle(record)
		}
	}
}

func (a *Archiver) handle(record models.TryOn) {
	if a.storage == nil || a.updater == nil {
		a.logger.Error("archiver missing dependencies", "hasStorage", a.storage != nil, "hasUpdater", a.updater != nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	imageLocation, err := a.fetchAndStore(ctx, record.ImageURL, record.ID+"/result.jpg")
	if err != nil {
		a.logger.Error("archive result image", "tryonId", record.ID, "error", err)
		a.recordFailure(record.ID)
		return
	}

	videoLocation := ""
	if record.VideoURL != "" {
		videoLocation, err = a.fetchAndStore(ctx, record.VideoURL, record.ID+"/result.mp4")
		if err != nil {
			a.logger.Error("archive result video", "tryonId", record.ID, "error", err)
			a.recordFailure(record.ID)
			return
		}
	}

	if err := a.recordSuccess(record.ID, imageLocation, videoLocation); err != nil {
		a.logger.Error("mark archive ready", "tryonId", record.ID, "error", err)
		a.recordFailure(record.ID)
	}
}

func (a *Archiver) fetchAndStore(ctx context.Context, url, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	location, err := a.storage.Save(ctx, name, resp.Body)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}

	return location, nil
}

func (a *Archiver) recordFailure(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.updater.MarkArchiveFailed(ctx, id); err != nil {
		a.logger.Error("record archive failure", "tryonId", id, "error", err)
	}
}

func (a *Archiver) recordSuccess(id, imageLocation, videoLocation string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return a.updater.MarkArchiveReady(ctx, id, imageLocation, videoLocation)
}

var _ ResultSink = (*Archiver)(nil)
