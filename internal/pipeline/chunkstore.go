// ABOUTME: Badger-backed persistence for in-flight backfill chunk payloads.
// ABOUTME: Chunks survive restarts so a backfill never loses delivered data.
package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/teamfit/wearsync/internal/models"
)

// ChunkStore persists raw webhook chunk payloads keyed by session,
// category and sequence number until the backfill completes.
type ChunkStore struct {
	db *badger.DB
}

// OpenChunkStore opens (or creates) the chunk store at dir.
func OpenChunkStore(dir string) (*ChunkStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	return &ChunkStore{db: db}, nil
}

// Close releases the underlying store.
func (c *ChunkStore) Close() error {
	return c.db.Close()
}

// chunkKey encodes seq with fixed width so badger's lexicographic
// iteration yields chunks in delivery order.
func chunkKey(sessionID string, category models.Category, seq int) []byte {
	return []byte(fmt.Sprintf("chunk/%s/%s/%08d", sessionID, category, seq))
}

func chunkPrefix(sessionID string, category models.Category) []byte {
	return []byte(fmt.Sprintf("chunk/%s/%s/", sessionID, category))
}

// Append stores one chunk's items. Writing the same sequence number
// twice overwrites, which makes webhook redelivery harmless.
func (c *ChunkStore) Append(sessionID string, category models.Category, seq int, items []json.RawMessage) error {
	value, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(sessionID, category, seq), value)
	})
	if err != nil {
		return fmt.Errorf("store chunk: %w", err)
	}
	return nil
}

// Items returns every stored item for the session and category, in
// sequence order.
func (c *ChunkStore) Items(sessionID string, category models.Category) ([]json.RawMessage, error) {
	var items []json.RawMessage
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := chunkPrefix(sessionID, category)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var chunk []json.RawMessage
				if err := json.Unmarshal(val, &chunk); err != nil {
					return fmt.Errorf("decode chunk %s: %w", it.Item().Key(), err)
				}
				items = append(items, chunk...)
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
	return items, nil
}

// CountChunks returns how many chunks are stored for the session and
// category. Used when rebuilding aggregation state after a restart.
func (c *ChunkStore) CountChunks(sessionID string, category models.Category) (int, error) {
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := chunkPrefix(sessionID, category)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes every chunk belonging to the session.
func (c *ChunkStore) Delete(sessionID string) error {
	prefix := []byte(fmt.Sprintf("chunk/%s/", sessionID))
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !bytes.HasPrefix(key, prefix) {
			continue
		}
		err := c.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return fmt.Errorf("delete chunk %s: %w", key, err)
		}
	}
	return nil
}
