package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/checksum"
	"github.com/starford/munin/internal/docservice"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/parser"
	"github.com/starford/munin/internal/storage"
)

const (
	defaultDebounce    = 200 * time.Millisecond
	defaultWorkers     = 4
	defaultMaxAttempts = 5
	retryBase          = time.Second
)

// Engine consumes filesystem change events and maps them onto
// coordinator operations. Events for the same path are processed in
// detection order; distinct paths proceed concurrently, bounded by a
// worker pool, since they touch disjoint document ids.
type Engine struct {
	svc        *docservice.Service
	store      storage.Provider
	collection string
	logger     *slog.Logger

	debounce    time.Duration
	maxAttempts int
	workers     *semaphore.Weighted

	// Events is the bounded queue the watcher feeds.
	Events chan models.ChangeEvent

	mu       sync.Mutex
	timers   map[string]*time.Timer
	running  map[string]bool
	rerun    map[string]models.ChangeKind
	attempts map[string]int
	seen     map[string]string // path -> raw file checksum
	wg       sync.WaitGroup
}

// NewEngine creates a reconciliation engine writing into the given
// default collection.
func NewEngine(svc *docservice.Service, store storage.Provider, collection string, logger *slog.Logger) *Engine {
	return &Engine{
		svc:         svc,
		store:       store,
		collection:  collection,
		logger:      logger,
		debounce:    defaultDebounce,
		maxAttempts: defaultMaxAttempts,
		workers:     semaphore.NewWeighted(defaultWorkers),
		Events:      make(chan models.ChangeEvent, 256),
		timers:      make(map[string]*time.Timer),
		running:     make(map[string]bool),
		rerun:       make(map[string]models.ChangeKind),
		attempts:    make(map[string]int),
		seen:        make(map[string]string),
	}
}

// SetDebounce overrides the per-path coalescing window.
func (e *Engine) SetDebounce(d time.Duration) { e.debounce = d }

// SetWorkers overrides the worker pool bound.
func (e *Engine) SetWorkers(n int64) { e.workers = semaphore.NewWeighted(n) }

// Bootstrap walks the watched tree once and reconciles every document
// file found, so documents created while the process was down are
// picked up without waiting for a change event.
func (e *Engine) Bootstrap(ctx context.Context) error {
	metas, err := e.store.List("")
	if err != nil {
		return err
	}
	for _, m := range metas {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.process(ctx, m.Path, models.ChangeModified); err != nil {
			e.logger.Warn("reconcile: bootstrap failed for path",
				slog.String("path", m.Path),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Run processes change events until ctx is cancelled, then waits for
// in-flight work to settle.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.stopTimers()
			e.wg.Wait()
			return nil
		case ev := <-e.Events:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev models.ChangeEvent) {
	switch ev.Kind {
	case models.ChangeCreated, models.ChangeModified:
		// Coalesce rapid write bursts per path.
		e.mu.Lock()
		if t, ok := e.timers[ev.Path]; ok {
			t.Reset(e.debounce)
			e.mu.Unlock()
			return
		}
		path := ev.Path
		e.timers[path] = time.AfterFunc(e.debounce, func() {
			e.mu.Lock()
			delete(e.timers, path)
			e.mu.Unlock()
			e.dispatch(ctx, path, models.ChangeModified)
		})
		e.mu.Unlock()

	case models.ChangeDeleted, models.ChangeRenamed:
		// Rename fires on the old path: delete-old now, the new path
		// arrives as its own Create event, so the delete is processed
		// before the create and no transient duplicate can rank.
		e.mu.Lock()
		if t, ok := e.timers[ev.Path]; ok {
			t.Stop()
			delete(e.timers, ev.Path)
		}
		e.mu.Unlock()
		e.dispatch(ctx, ev.Path, models.ChangeDeleted)
	}
}

// dispatch runs one operation for path, serializing with any operation
// already in flight for the same path.
func (e *Engine) dispatch(ctx context.Context, path string, kind models.ChangeKind) {
	e.mu.Lock()
	if e.running[path] {
		e.rerun[path] = kind
		e.mu.Unlock()
		return
	}
	e.running[path] = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.work(ctx, path, kind)
}

func (e *Engine) work(ctx context.Context, path string, kind models.ChangeKind) {
	defer e.wg.Done()

	if err := e.workers.Acquire(ctx, 1); err != nil {
		e.finish(ctx, path)
		return
	}
	err := e.process(ctx, path, kind)
	e.workers.Release(1)

	if err != nil {
		e.requeue(ctx, path, kind, err)
	} else {
		e.mu.Lock()
		delete(e.attempts, path)
		e.mu.Unlock()
	}

	e.finish(ctx, path)
}

// finish releases the per-path slot and reruns any operation that
// arrived while this one was in flight.
func (e *Engine) finish(ctx context.Context, path string) {
	e.mu.Lock()
	kind, again := e.rerun[path]
	if again {
		delete(e.rerun, path)
		e.mu.Unlock()
		e.wg.Add(1)
		go e.work(ctx, path, kind)
		return
	}
	e.running[path] = false
	e.mu.Unlock()
}

// requeue schedules a retry with backoff. Failures on one path never
// halt processing for other paths; exhausted paths are logged as
// unresolved and left to the audit.
func (e *Engine) requeue(ctx context.Context, path string, kind models.ChangeKind, cause error) {
	e.mu.Lock()
	e.attempts[path]++
	n := e.attempts[path]
	e.mu.Unlock()

	if n >= e.maxAttempts {
		e.logger.Error("reconcile: giving up on path",
			slog.String("path", path),
			slog.Int("attempts", n),
			slog.String("error", cause.Error()))
		return
	}

	delay := retryBase << uint(n)
	e.logger.Warn("reconcile: retrying path",
		slog.String("path", path),
		slog.Int("attempt", n),
		slog.Duration("delay", delay),
		slog.String("error", cause.Error()))

	time.AfterFunc(delay, func() {
		if ctx.Err() == nil {
			e.dispatch(ctx, path, kind)
		}
	})
}

// process executes one reconciler operation for a path. Reprocessing an
// unchanged file is a no-op.
func (e *Engine) process(ctx context.Context, path string, kind models.ChangeKind) error {
	id := checksum.PathID(path)

	if kind == models.ChangeDeleted {
		e.mu.Lock()
		delete(e.seen, path)
		e.mu.Unlock()
		if err := e.svc.Delete(ctx, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		e.logger.Debug("reconcile: deleted", slog.String("path", path))
		return nil
	}

	data, err := e.store.Read(path)
	if err != nil {
		// The file can vanish between the event and the read.
		if errors.Is(err, os.ErrNotExist) {
			return e.process(ctx, path, models.ChangeDeleted)
		}
		return err
	}

	raw := checksum.Sum(data)
	e.mu.Lock()
	unchanged := e.seen[path] == raw
	e.mu.Unlock()
	if unchanged {
		return nil
	}

	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	collection, metadata := e.mapFile(path, res)

	existing, getErr := e.svc.Get(ctx, id)
	switch {
	case getErr == nil:
		if sameDocument(existing, res.Body, metadata) {
			break
		}
		_, err = e.svc.Update(ctx, docservice.Permissive, id, docservice.Input{
			Content:  res.Body,
			Metadata: metadata,
		})
		if err != nil {
			return err
		}
		e.logger.Debug("reconcile: updated", slog.String("path", path), slog.String("id", id))
	case errors.Is(getErr, apperr.ErrNotFound):
		_, err = e.svc.Create(ctx, docservice.Permissive, "", docservice.Input{
			ID:         id,
			Collection: collection,
			Content:    res.Body,
			Metadata:   metadata,
		})
		if err != nil && !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		e.logger.Debug("reconcile: created", slog.String("path", path), slog.String("id", id))
	default:
		return getErr
	}

	e.mu.Lock()
	e.seen[path] = raw
	e.mu.Unlock()
	return nil
}

// mapFile turns a parsed file into a collection name and metadata. A
// frontmatter "collection" key is an explicit routing directive and is
// lifted out of the stored metadata; everything else is stored
// verbatim, enriched with the source path and any derived title/tags.
func (e *Engine) mapFile(path string, res *parser.Result) (string, map[string]any) {
	collection := e.collection
	metadata := make(map[string]any, len(res.Metadata)+3)
	for k, v := range res.Metadata {
		metadata[k] = v
	}
	if c, ok := metadata["collection"].(string); ok && c != "" {
		collection = c
		delete(metadata, "collection")
	}
	metadata["source_path"] = path
	if res.Title != "" {
		if _, ok := metadata["title"]; !ok {
			metadata["title"] = res.Title
		}
	}
	if len(res.Tags) > 0 {
		if _, ok := metadata["tags"]; !ok {
			metadata["tags"] = res.Tags
		}
	}
	return collection, metadata
}

// sameDocument compares stored state against a freshly parsed file via
// content checksum plus canonical JSON of the metadata.
func sameDocument(existing *models.Document, body string, metadata map[string]any) bool {
	if existing.Checksum != checksum.Sum([]byte(body)) {
		return false
	}
	a, errA := json.Marshal(existing.Metadata)
	b, errB := json.Marshal(metadata)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (e *Engine) stopTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for p, t := range e.timers {
		t.Stop()
		delete(e.timers, p)
	}
}
