// Package importer keeps the local cache in sync with a drop folder of
// exported lesson-record JSON files.
//
// Users restore backups by copying record files into the folder; the
// importer watches it, debounces bursts of file events, validates each file,
// and upserts it into the cache. File deletions are ignored on purpose:
// removing a backup file must never remove cached data.
package importer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/colegioprep/prepsync/internal/record"
	"github.com/colegioprep/prepsync/internal/store"
)

// Config holds configuration for the importer.
type Config struct {
	// DebounceInterval is how long to wait before processing file changes,
	// batching rapid rewrites of the same file together.
	DebounceInterval time.Duration

	// Logger for importer activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[importer] ", log.LstdFlags),
	}
}

// Importer watches a drop folder and syncs record files into the cache.
type Importer struct {
	st     *store.Store
	dir    string
	config *Config

	watcher *fsnotify.Watcher

	queueMu sync.Mutex
	queue   map[string]time.Time // filepath -> queued at

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an importer for the given drop directory.
func New(st *store.Store, dir string) (*Importer, error) {
	return NewWithConfig(st, dir, DefaultConfig())
}

// NewWithConfig creates an importer with custom configuration.
func NewWithConfig(st *store.Store, dir string, config *Config) (*Importer, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("drop directory cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Importer{
		st:      st,
		dir:     dir,
		config:  config,
		watcher: watcher,
		queue:   make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start imports everything already in the folder, then watches it for
// changes. Blocks until ctx is cancelled.
func (im *Importer) Start(ctx context.Context) error {
	if err := os.MkdirAll(im.dir, 0755); err != nil {
		return fmt.Errorf("failed to create drop directory: %w", err)
	}

	imported, skipped, err := im.ImportAll()
	if err != nil {
		return fmt.Errorf("initial import failed: %w", err)
	}
	im.config.Logger.Printf("Initial import: %d records (%d skipped)", imported, skipped)

	if err := im.watcher.Add(im.dir); err != nil {
		return fmt.Errorf("failed to watch drop directory %s: %w", im.dir, err)
	}
	im.config.Logger.Printf("Watching: %s", im.dir)

	im.wg.Add(2)
	go im.watchFileEvents()
	go im.processQueue()

	select {
	case <-ctx.Done():
		return im.Stop()
	case <-im.ctx.Done():
		return nil
	}
}

// Stop shuts the importer down and waits for its goroutines.
func (im *Importer) Stop() error {
	im.cancel()
	if err := im.watcher.Close(); err != nil {
		im.config.Logger.Printf("Error closing watcher: %v", err)
	}
	im.wg.Wait()
	im.config.Logger.Println("Importer stopped")
	return nil
}

// ImportAll syncs every *.json file currently in the drop folder.
// Individual file failures are logged and counted, never fatal.
func (im *Importer) ImportAll() (imported, skipped int, err error) {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read drop directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(im.dir, entry.Name())
		if ferr := im.importFile(path); ferr != nil {
			im.config.Logger.Printf("WARNING: skipping %s: %v", entry.Name(), ferr)
			skipped++
			continue
		}
		imported++
	}
	return imported, skipped, nil
}

// importFile validates one record file and upserts it into the cache.
func (im *Importer) importFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read record file: %w", err)
	}

	rec, err := record.Unmarshal(data)
	if err != nil {
		return err
	}
	if rec.Key == "" {
		return fmt.Errorf("record file has no key")
	}

	if err := im.st.Write(rec.Key, rec); err != nil {
		return fmt.Errorf("failed to cache record %s: %w", rec.Key, err)
	}

	im.config.Logger.Printf("Imported %s (%s / %s)", rec.Key, rec.ClassName, rec.WeekStart)
	return nil
}

// watchFileEvents queues create/write events for debounced processing.
func (im *Importer) watchFileEvents() {
	defer im.wg.Done()

	for {
		select {
		case <-im.ctx.Done():
			return

		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			im.queueChange(event.Name)

		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (im *Importer) queueChange(path string) {
	im.queueMu.Lock()
	defer im.queueMu.Unlock()
	im.queue[path] = time.Now()
}

// processQueue drains the change queue on the debounce interval.
func (im *Importer) processQueue() {
	defer im.wg.Done()

	ticker := time.NewTicker(im.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-im.ctx.Done():
			return
		case <-ticker.C:
			im.processPendingChanges()
		}
	}
}

// processPendingChanges imports files whose last event is old enough.
func (im *Importer) processPendingChanges() {
	im.queueMu.Lock()
	defer im.queueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range im.queue {
		if now.Sub(queuedAt) < im.config.DebounceInterval {
			continue
		}
		if err := im.importFile(path); err != nil {
			im.config.Logger.Printf("Error importing %s: %v", path, err)
		}
		delete(im.queue, path)
	}
}
