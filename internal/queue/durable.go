package queue

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
)

var durableLogger = logging.ForService("queue.durable")

var (
	bucketData      = []byte("data")
	bucketUUIDIndex = []byte("uuid_index")
	bucketMeta      = []byte("meta")
)

// BoltQueue is the durable backend: an embedded on-disk ordered map with
// data and uuid_index buckets. Push and pop are crash-safe — bbolt's
// transactional Update binds the data write and the uuid_index write in one
// commit, so reopening mid-crash never leaves the index and data
// inconsistent (the §9 "transactional binding" decision). The sequence
// counter is bbolt's native per-bucket NextSequence, which persists across
// reopen and so already satisfies "recovered from the greatest existing
// sequence + 1" without bespoke bookkeeping.
type BoltQueue[T any] struct {
	db     *bolt.DB
	idFunc IDFunc[T]
	maxLen int // 0 = unbounded
}

// OpenDurable opens (creating if absent) a bbolt-backed queue at path.
// maxLen of 0 means unbounded.
func OpenDurable[T any](path string, idFunc IDFunc[T], maxLen int) (*BoltQueue[T], error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Newf("open durable queue at %s", path).
			Component("queue.durable").
			Category(errors.CategoryFileIO).
			Build()
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketData, bucketUUIDIndex, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Newf("initialize durable queue buckets").
			Component("queue.durable").
			Category(errors.CategoryFileIO).
			Build()
	}

	return &BoltQueue[T]{db: db, idFunc: idFunc, maxLen: maxLen}, nil
}

// Push encodes item and atomically writes it to data and uuid_index under a
// single monotonic sequence key.
func (q *BoltQueue[T]) Push(item T) error {
	envelope, err := protocol.Encode(item)
	if err != nil {
		return err
	}

	return q.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketData)

		if q.maxLen > 0 && data.Stats().KeyN >= q.maxLen {
			return ErrFull
		}

		seq, err := data.NextSequence()
		if err != nil {
			return err
		}

		key := seqKey(seq)
		if err := data.Put(key, envelope); err != nil {
			return err
		}

		id := q.idFunc(item)
		idx := tx.Bucket(bucketUUIDIndex)
		return idx.Put(id[:], key)
	})
}

// Pop removes and returns the oldest item by ascending key order.
func (q *BoltQueue[T]) Pop() (T, bool, error) {
	var zero T
	var result T
	var found bool

	err := q.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketData)
		cur := data.Cursor()
		key, envelope := cur.First()
		if key == nil {
			return nil
		}

		var item T
		if err := protocol.Decode(envelope, &item); err != nil {
			return err
		}

		id := q.idFunc(item)
		if err := tx.Bucket(bucketUUIDIndex).Delete(id[:]); err != nil {
			return err
		}
		if err := data.Delete(key); err != nil {
			return err
		}

		result = item
		found = true
		return nil
	})
	if err != nil {
		return zero, false, err
	}
	return result, found, nil
}

// PopWait polls Pop until an item arrives, ctx is cancelled, or deadline elapses.
func (q *BoltQueue[T]) PopWait(ctx context.Context, deadline time.Duration) (T, bool, error) {
	return pollForItem(ctx, deadline, q.Pop)
}

// Get looks up an item by id via the uuid_index, without removing it.
func (q *BoltQueue[T]) Get(id uuid.UUID) (T, bool) {
	var zero T
	var result T
	var found bool

	_ = q.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketUUIDIndex).Get(id[:])
		if key == nil {
			return nil
		}
		envelope := tx.Bucket(bucketData).Get(key)
		if envelope == nil {
			return nil
		}
		if err := protocol.Decode(envelope, &result); err != nil {
			return err
		}
		found = true
		return nil
	})
	if !found {
		return zero, false
	}
	return result, true
}

// Remove deletes an item by id from both buckets.
func (q *BoltQueue[T]) Remove(id uuid.UUID) bool {
	removed := false
	_ = q.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketUUIDIndex)
		key := idx.Get(id[:])
		if key == nil {
			return nil
		}
		keyCopy := append([]byte(nil), key...)
		if err := idx.Delete(id[:]); err != nil {
			return err
		}
		if err := tx.Bucket(bucketData).Delete(keyCopy); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed
}

// Len returns the number of items currently stored.
func (q *BoltQueue[T]) Len() int {
	n := 0
	_ = q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketData).Stats().KeyN
		return nil
	})
	return n
}

// IsEmpty reports whether the queue holds no items.
func (q *BoltQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all items and index entries.
func (q *BoltQueue[T]) Clear() error {
	return q.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketData, bucketUUIDIndex} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying bbolt database file.
func (q *BoltQueue[T]) Close() error {
	durableLogger.Debug("closing durable queue")
	return q.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
