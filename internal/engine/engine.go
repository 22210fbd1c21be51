// Package engine implements the local-first synchronization engine behind
// the weekly lesson-plan sheet.
//
// One Engine instance owns the active record, the current key, and the
// navigation generation counter for a session. Navigation hydrates
// synchronously from the local cache (or a blank record) and reconciles with
// the remote store in the background; saves are written locally first and
// pushed to the remote best-effort. Store and remote failures never abort
// navigation or save flows, they degrade to advisory notices.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colegioprep/prepsync/internal/calendar"
	"github.com/colegioprep/prepsync/internal/record"
	"github.com/colegioprep/prepsync/internal/remote"
	"github.com/colegioprep/prepsync/internal/store"
)

// NoticeKind classifies the advisory signals the engine emits for the UI
// collaborator. None of them is fatal.
type NoticeKind string

const (
	// NoticeRemoteUnavailable: a background fetch failed; the provisional
	// cached/blank state stands and will be retried on the next navigation.
	NoticeRemoteUnavailable NoticeKind = "remote_unavailable"

	// NoticeRemoteSaved: an asynchronous persist reached the remote store.
	NoticeRemoteSaved NoticeKind = "remote_saved"

	// NoticeRemoteSaveFailed: the local save succeeded but the remote
	// persist did not. The edit is not lost, only not synced yet.
	NoticeRemoteSaveFailed NoticeKind = "remote_save_failed"

	// NoticeLocalWriteFailed: a cache write failed. Degrades to a cache
	// miss on the next read of that key.
	NoticeLocalWriteFailed NoticeKind = "local_write_failed"
)

// Notice is one advisory signal, delivered through Notices().
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Key    string     `json:"key"`
	Detail string     `json:"detail,omitempty"`
	Time   time.Time  `json:"time"`
}

// Navigation reports the canonical identity of a successful navigation back
// to the UI/URL-state collaborator, together with the hydrated record.
type Navigation struct {
	Term      string               `json:"term"`
	ClassName string               `json:"className"`
	WeekStart string               `json:"weekStart"`
	WeekLabel string               `json:"weekLabel"`
	Key       string               `json:"key"`
	FromCache bool                 `json:"fromCache"`
	Record    *record.LessonRecord `json:"record"`
}

// Engine is the single owner of the active lesson record.
//
// Concurrency model: one mutex guards the active state; the generation
// counter marks the navigation epoch every outstanding remote fetch belongs
// to. A fetch result is applied only if its stamped generation still equals
// the current one at completion, which uniformly protects navigations and
// saves from stale fetches. Superseded fetches are not cancelled on the
// wire, only suppressed.
type Engine struct {
	store   *store.Store
	gateway remote.Gateway
	logger  *log.Logger

	generation atomic.Int64

	mu        sync.Mutex
	key       string
	term      string
	className string
	weekStart time.Time
	buffer    *EditBuffer

	notices chan Notice
}

// New creates an engine over an opened cache store and a remote gateway.
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, gw remote.Gateway, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		store:   st,
		gateway: gw,
		logger:  logger,
		notices: make(chan Notice, 64),
	}
}

// Notices returns the advisory signal stream. Sends never block the engine;
// if the subscriber falls behind, notices are dropped and logged.
func (e *Engine) Notices() <-chan Notice {
	return e.notices
}

// Navigate moves the session to (term, className, week).
//
// The week may be any ISO date; it is normalized to its Monday. The active
// record is hydrated synchronously from the cache, or blank when the cache
// has nothing, so this never suspends and never fails on store or remote
// errors. A background fetch stamped with the new generation reconciles
// with the remote store afterwards.
func (e *Engine) Navigate(ctx context.Context, term, className, weekISO string) (*Navigation, error) {
	if weekISO == "" {
		return nil, record.ErrMissingWeek
	}
	day, err := calendar.ParseISODate(weekISO)
	if err != nil {
		return nil, err
	}
	monday := calendar.MondayOf(day)

	key, err := record.DeriveKey(term, className, monday)
	if err != nil {
		return nil, err
	}

	// Background reconciliation outlives the triggering call; an HTTP
	// handler's context is cancelled the moment it returns.
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	gen := e.generation.Add(1)
	rec, readErr := e.store.Read(key)
	if readErr != nil {
		// Degrade to blank; the cache is an optimization, not a dependency.
		e.logger.Printf("Cache read failed for %s: %v", key, readErr)
		rec = nil
	}
	fromCache := rec != nil
	if rec == nil {
		rec = record.Blank(term, className, monday)
	}

	e.key = key
	e.term = term
	e.className = className
	e.weekStart = monday
	e.buffer = newEditBuffer(rec)
	nav := &Navigation{
		Term:      term,
		ClassName: className,
		WeekStart: calendar.ISODate(monday),
		WeekLabel: calendar.WeekLabel(monday),
		Key:       key,
		FromCache: fromCache,
		Record:    rec.Clone(),
	}
	e.mu.Unlock()

	go func() {
		fetched, fetchErr := e.gateway.Fetch(ctx, key)
		e.applyRemote(gen, key, fetched, fetchErr)
	}()

	return nav, nil
}

// applyRemote applies a completed fetch, unless a newer navigation has
// superseded it in the meantime.
func (e *Engine) applyRemote(gen int64, key string, rec *record.LessonRecord, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation.Load() || key != e.key {
		e.logger.Printf("Discarding superseded fetch for %s (generation %d)", key, gen)
		return
	}

	if err != nil {
		e.logger.Printf("Remote fetch failed for %s: %v", key, err)
		e.notify(NoticeRemoteUnavailable, key, err.Error())
		return
	}
	if rec == nil {
		// Remote has nothing; the provisional cached/blank state stands.
		return
	}

	rec.Key = key
	e.buffer = newEditBuffer(rec)
	if werr := e.store.Write(key, rec); werr != nil {
		e.logger.Printf("Cache write failed for %s: %v", key, werr)
		e.notify(NoticeLocalWriteFailed, key, werr.Error())
	}
}

// ApplyFieldEdit is the only mutation path into the active record. The edit
// is mirrored into the cache immediately, so losing the editing surface
// loses at most the last unsynced remote write, never local state.
func (e *Engine) ApplyFieldEdit(ref FieldRef, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.buffer == nil {
		return fmt.Errorf("no active record: navigate to a week first")
	}
	if err := e.buffer.Apply(ref, text); err != nil {
		return err
	}

	if werr := e.store.Write(e.key, e.buffer.rec); werr != nil {
		e.logger.Printf("Cache mirror failed for %s: %v", e.key, werr)
		e.notify(NoticeLocalWriteFailed, e.key, werr.Error())
	}
	return nil
}

// Save snapshots the active record, writes it to the cache synchronously,
// and pushes it to the remote store in the background.
//
// The returned error reports the local write only; the remote outcome
// arrives as a separate NoticeRemoteSaved / NoticeRemoteSaveFailed, and a
// remote failure never rolls back the local write.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.buffer == nil {
		e.mu.Unlock()
		return fmt.Errorf("no active record: navigate to a week first")
	}
	key := e.key
	snapshot := e.buffer.Snapshot()

	localErr := e.store.Write(key, snapshot)
	if localErr != nil {
		e.logger.Printf("Local save failed for %s: %v", key, localErr)
		e.notify(NoticeLocalWriteFailed, key, localErr.Error())
	} else {
		e.buffer.ClearDirty()
	}
	e.mu.Unlock()

	// The persist must survive the caller returning.
	go e.persistRemote(context.WithoutCancel(ctx), key, snapshot)

	return localErr
}

// persistRemote pushes a saved record to the remote store and reports the
// outcome as a notice.
func (e *Engine) persistRemote(ctx context.Context, key string, rec *record.LessonRecord) {
	if err := e.gateway.Persist(ctx, rec); err != nil {
		e.logger.Printf("Remote persist failed for %s: %v", key, err)
		e.notify(NoticeRemoteSaveFailed, key, err.Error())
		return
	}
	e.logger.Printf("Persisted %s to remote", key)
	e.notify(NoticeRemoteSaved, key, "")
}

// Active returns a copy of the active record, or nil before any navigation.
func (e *Engine) Active() *record.LessonRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buffer == nil {
		return nil
	}
	return e.buffer.Snapshot()
}

// CurrentKey returns the derived key of the active record, or "".
func (e *Engine) CurrentKey() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// DirtyCount returns the number of field groups edited since the last save.
func (e *Engine) DirtyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buffer == nil {
		return 0
	}
	return e.buffer.DirtyCount()
}

func (e *Engine) notify(kind NoticeKind, key, detail string) {
	n := Notice{Kind: kind, Key: key, Detail: detail, Time: time.Now()}
	select {
	case e.notices <- n:
	default:
		e.logger.Printf("Dropping notice %s for %s: subscriber not keeping up", kind, key)
	}
}
