// Package journal persists workflow results to a local Badger store so
// completed and failed runs can be audited after the fact.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

const keyPrefix = "wf/"

// Entry is one recorded workflow result.
type Entry struct {
	WorkflowID string          `json:"workflow_id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Result     json.RawMessage `json:"result"`
}

// Journal is an append-only store of workflow results. Safe for concurrent
// use; entries are never rewritten.
type Journal struct {
	db  *badger.DB
	now func() time.Time
}

// Options configures a Journal.
type Options struct {
	Path     string
	InMemory bool // discard on close, for tests and dry runs
}

// Open opens or creates the journal store.
func Open(opts Options) (*Journal, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("journal: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithInMemory(opts.InMemory)
	if opts.InMemory {
		bopts.Dir = ""
		bopts.ValueDir = ""
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open")
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the underlying store.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends one workflow result. The key embeds the recording time as
// zero-padded nanoseconds so byte-ordered prefix scans return entries in
// chronological order.
func (j *Journal) Record(workflowID string, v any) error {
	if workflowID == "" {
		return errors.New("journal: workflow id is empty")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "journal: encode result")
	}
	at := j.now().UTC()
	entry := Entry{WorkflowID: workflowID, RecordedAt: at, Result: raw}
	val, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "journal: encode entry")
	}
	key := fmt.Sprintf("%s%020d/%s", keyPrefix, at.UnixNano(), workflowID)
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// List returns all recorded entries, oldest first.
func (j *Journal) List() ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return errors.Wrap(err, "journal: decode entry")
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
