// Package worker moves queued items through metadata lookup and audio
// download on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/zsprackett/tubewatch/internal/db"
	"github.com/zsprackett/tubewatch/internal/items"
)

var ErrQueueFull = errors.New("download queue is full")

type Config struct {
	Workers   int
	QueueSize int
}

type Job struct {
	ID  string
	URL string
}

// Notifier is told about items that reached a terminal status.
type Notifier interface {
	Notify(it db.Item)
}

type Pool struct {
	items    *items.Manager
	fetcher  Fetcher
	notifier Notifier
	workers  int
	jobs     chan Job
	logger   *slog.Logger
}

func New(mgr *items.Manager, fetcher Fetcher, notifier Notifier, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Pool{
		items:    mgr,
		fetcher:  fetcher,
		notifier: notifier,
		workers:  cfg.Workers,
		jobs:     make(chan Job, cfg.QueueSize),
		logger:   logger,
	}
}

// Submit queues a job without blocking.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Full reports whether Submit would currently fail.
func (p *Pool) Full() bool {
	return len(p.jobs) == cap(p.jobs)
}

// Resume queues every unfinished item, stopping at the first full queue.
// Items left out are picked up on the next start.
func (p *Pool) Resume() (int, error) {
	pending, err := p.items.Unfinished()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range pending {
		if err := p.Submit(Job{ID: it.ID, URL: it.URL}); err != nil {
			p.logger.Warn("worker: resume stopped", "queued", n, "left", len(pending)-n)
			return n, err
		}
		n++
	}
	return n, nil
}

// Run processes jobs until ctx is cancelled and in-flight jobs finish.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-p.jobs:
					p.Process(ctx, job)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Process runs one job synchronously.
func (p *Pool) Process(ctx context.Context, job Job) {
	logger := p.logger.With("id", job.ID)

	if !p.advance(job.ID, db.StatusFetchMeta) {
		return
	}
	title, err := p.fetcher.Meta(ctx, job.URL)
	if err != nil {
		p.fail(ctx, job.ID, err)
		return
	}
	if title != "" {
		if err := p.items.SetTitle(job.ID, title); err != nil {
			logger.Warn("worker: set title", "err", err)
		}
	}

	if !p.advance(job.ID, db.StatusDownloading) {
		return
	}
	if err := p.fetcher.Download(ctx, job.URL, p.items.AudioFile(job.ID)); err != nil {
		p.fail(ctx, job.ID, err)
		return
	}
	if !p.advance(job.ID, db.StatusAvailable) {
		p.discardOrphan(job.ID)
		return
	}
	logger.Info("worker: item available", "title", title)
	p.notify(job.ID)
}

// advance reports false when the item is gone, which ends the job.
func (p *Pool) advance(id string, status db.ItemStatus) bool {
	err := p.items.SetStatus(id, status, "")
	if err == nil {
		return true
	}
	if errors.Is(err, db.ErrNotFound) {
		p.logger.Info("worker: item deleted mid-job", "id", id)
	} else {
		p.logger.Error("worker: write status", "id", id, "status", status, "err", err)
	}
	return false
}

// discardOrphan removes the audio of an item deleted while it downloaded.
func (p *Pool) discardOrphan(id string) {
	if _, err := p.items.Get(id); !errors.Is(err, db.ErrNotFound) {
		return
	}
	path := p.items.AudioFile(id)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("worker: remove orphaned audio", "id", id, "path", path, "err", err)
	}
}

func (p *Pool) fail(ctx context.Context, id string, cause error) {
	if ctx.Err() != nil {
		// Left unfinished so Resume retries it on the next start.
		return
	}
	p.logger.Warn("worker: job failed", "id", id, "err", cause)
	if err := p.items.SetStatus(id, db.StatusError, cause.Error()); err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			p.logger.Error("worker: write status", "id", id, "err", err)
		}
		return
	}
	p.notify(id)
}

func (p *Pool) notify(id string) {
	if p.notifier == nil {
		return
	}
	it, err := p.items.Get(id)
	if err != nil {
		return
	}
	p.notifier.Notify(*it)
}
