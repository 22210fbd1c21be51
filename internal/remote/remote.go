// Package remote defines the gateway contract to the remote document store
// and an HTTP implementation of it.
//
// The engine only depends on the Gateway interface: fetch a record by key,
// persist a record. Transport mechanics (endpoint shape, encoding, timeouts)
// live entirely on this side of the boundary.
package remote

import (
	"context"
	"errors"

	"github.com/colegioprep/prepsync/internal/record"
)

// ErrUnavailable indicates a transport, timeout, or parse failure talking to
// the remote store. Recoverable: the engine degrades to cached/blank state
// and retries only on the next navigation or explicit save.
var ErrUnavailable = errors.New("remote store unavailable")

// Gateway is the remote document store as the sync engine sees it.
//
// Fetch returns (nil, nil) when the store has no record for the key. A
// response that is present but structurally unusable (wrong day count,
// missing ok flag) is also reported as absent, never as a partial record.
//
// Persist pushes a full record. Callers must not block user-visible save
// flows on it; the local cache write is the durability the user sees.
type Gateway interface {
	Fetch(ctx context.Context, key string) (*record.LessonRecord, error)
	Persist(ctx context.Context, rec *record.LessonRecord) error
}
