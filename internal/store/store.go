// Package store provides the granular persistence layer: three logical
// namespaces (documents, graph nodes, index metadata) backed by one
// transactional embedded key-value engine. Insertion persists only the
// nodes an insertion actually touched, chunked at a bounded number of
// keys per transaction, so a large graph never pays for a write it
// didn't make.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nvandessel/annstore/internal/graph"
)

// nodeChunkSize bounds how many graph nodes are written per transaction.
const nodeChunkSize = 500

const metaKey = "hnsw-meta"

const (
	prefixDoc       = "doc:"
	prefixDocByTime = "doc_by_time:"
	prefixNode      = "node:"
)

// ErrNotFound is returned when a lookup key does not exist.
var ErrNotFound = errors.New("store: not found")

// Document is a persisted document payload: the original text, an
// opaque metadata bag, the embedding vector computed for it, and its
// creation time.
type Document struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is the badger-backed realization of the documents/nodes/meta
// namespaces. Safe for concurrent use; badger transactions provide the
// per-write atomicity the granular persistence protocol relies on.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Dir is the directory badger stores its files in. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs badger without touching disk, for tests.
	InMemory bool
}

// Open creates or opens the durable store at opts.Dir.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: Dir is required unless InMemory is set")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(quietLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying badger handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutDocument writes doc in a single transaction, under both its
// primary key and a createdAt-ordered secondary key.
func (s *Store) PutDocument(_ context.Context, doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encoding document %s: %w", doc.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(docKey(doc.ID), payload); err != nil {
			return err
		}
		return txn.Set(docByTimeKey(doc.CreatedAt, doc.ID), []byte(doc.ID))
	})
}

// GetDocument returns the document stored under id, or ErrNotFound.
func (s *Store) GetDocument(_ context.Context, id string) (Document, error) {
	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: getting document %s: %w", id, err)
	}
	return doc, nil
}

// AllDocuments returns every stored document ordered by creation time.
func (s *Store) AllDocuments(_ context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(prefixDocByTime)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(docKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				// Document is a ghost: its ordering entry survived but the
				// payload did not. Tolerated, healed by a future rebuild.
				continue
			}
			if err != nil {
				return err
			}

			var doc Document
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document and its ordering entry. It leaves
// the document's graph node in place (Clear and ClearIndex drop whole
// key prefixes instead of calling it); the persistence layer does not
// support deleting a single indexed point with graph repair.
func (s *Store) DeleteDocument(_ context.Context, doc Document) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(docKey(doc.ID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(docByTimeKey(doc.CreatedAt, doc.ID))
	})
}

// PutNodes writes the given graph nodes, splitting the batch into
// transactions of at most nodeChunkSize keys each.
func (s *Store) PutNodes(_ context.Context, nodes []graph.NodeView) error {
	for start := 0; start < len(nodes); start += nodeChunkSize {
		end := min(start+nodeChunkSize, len(nodes))
		chunk := nodes[start:end]
		if err := s.db.Update(func(txn *badger.Txn) error {
			for _, n := range chunk {
				payload, err := json.Marshal(n)
				if err != nil {
					return fmt.Errorf("encoding node %s: %w", n.ID, err)
				}
				if err := txn.Set(nodeKey(n.ID), payload); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return fmt.Errorf("store: writing node chunk [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

// GetNode returns the node stored under id, or ErrNotFound.
func (s *Store) GetNode(_ context.Context, id string) (graph.NodeView, error) {
	var n graph.NodeView
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return graph.NodeView{}, ErrNotFound
	}
	if err != nil {
		return graph.NodeView{}, fmt.Errorf("store: getting node %s: %w", id, err)
	}
	return n, nil
}

// AllNodes returns every stored graph node, for a cold load.
func (s *Store) AllNodes(_ context.Context) ([]graph.NodeView, error) {
	var nodes []graph.NodeView
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(prefixNode)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			var n graph.NodeView
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing nodes: %w", err)
	}
	return nodes, nil
}

// PutMeta writes index metadata in its own transaction.
func (s *Store) PutMeta(_ context.Context, meta graph.Meta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: encoding meta: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaKey), payload)
	})
}

// GetMeta returns the stored index metadata. ok is false if no meta has
// ever been written (an empty, never-initialized index).
func (s *Store) GetMeta(_ context.Context) (meta graph.Meta, ok bool, err error) {
	txnErr := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if txnErr != nil {
		return graph.Meta{}, false, fmt.Errorf("store: getting meta: %w", txnErr)
	}
	return meta, ok, nil
}

// Clear wipes documents, nodes, and meta: a full reset of the store.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.dropPrefix(prefixDoc); err != nil {
		return err
	}
	if err := s.dropPrefix(prefixDocByTime); err != nil {
		return err
	}
	return s.ClearIndex(ctx)
}

// ClearIndex wipes nodes and meta, leaving documents in place. Used by
// the migration controller before re-embedding and re-inserting every
// document under the new embedder.
func (s *Store) ClearIndex(_ context.Context) error {
	if err := s.dropPrefix(prefixNode); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(metaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// dropPrefix deletes every key under prefix via a write batch rather than
// a single transaction: a large graph's node keys can exceed badger's
// per-transaction size limit, while WriteBatch commits in its own
// internally-sized chunks.
func (s *Store) dropPrefix(prefix string) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(prefix)
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: listing keys under %q: %w", prefix, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("store: batching delete under %q: %w", prefix, err)
		}
	}
	return wb.Flush()
}

func docKey(id string) []byte { return []byte(prefixDoc + id) }

// docByTimeLayout is RFC 3339 with a fixed nine-digit fraction, so keys
// sort lexically in creation order (time.RFC3339Nano trims trailing
// zeros, which breaks that).
const docByTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func docByTimeKey(createdAt time.Time, id string) []byte {
	return []byte(prefixDocByTime + createdAt.UTC().Format(docByTimeLayout) + ":" + id)
}

func nodeKey(id string) []byte { return []byte(prefixNode + id) }

// quietLogger wraps the standard log package for badger, suppressing
// debug and info level messages.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...any)   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...any) { log.Printf("[badger] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...any)        {}
func (quietLogger) Debugf(string, ...any)       {}
