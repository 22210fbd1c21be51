// Package snapshot reads and writes JSONL backups of the lesson-record
// cache: one record per line, the same JSON shape the cache stores.
//
// Snapshots are a local safety net. They never involve the remote store, so
// a restore cannot clobber anything remotely; re-saving a restored week
// pushes it out through the normal save path.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/colegioprep/prepsync/internal/record"
	"github.com/colegioprep/prepsync/internal/store"
)

// Result reports what an export or import actually processed.
type Result struct {
	Records int
	Skipped int
}

// Export writes every cached record to w as JSONL, in week-start order.
func Export(ctx context.Context, st *store.Store, w io.Writer) (*Result, error) {
	res := &Result{}
	bw := bufio.NewWriter(w)

	err := st.ForEach(ctx, func(rec *record.LessonRecord) error {
		data, err := rec.Marshal()
		if err != nil {
			res.Skipped++
			return nil
		}
		if _, err := bw.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
		res.Records++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush snapshot: %w", err)
	}
	return res, nil
}

// Import reads JSONL records from r and upserts them into the cache.
//
// Well-formed JSON that fails record validation is counted and skipped; a
// JSON syntax error aborts the restore, since everything after it is
// unreadable anyway.
func Import(st *store.Store, r io.Reader) (*Result, error) {
	res := &Result{}
	decoder := json.NewDecoder(r)

	for lineNum := 1; ; lineNum++ {
		var rec record.LessonRecord
		if err := decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return res, fmt.Errorf("invalid JSON at record %d: %w", lineNum, err)
		}

		if err := rec.Validate(); err != nil || rec.Key == "" {
			res.Skipped++
			continue
		}

		if err := st.Write(rec.Key, &rec); err != nil {
			return res, fmt.Errorf("failed to restore record %s: %w", rec.Key, err)
		}
		res.Records++
	}

	return res, nil
}
