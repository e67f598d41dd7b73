package lockservice

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketFiles = []byte("files")
	bucketAttrs = []byte("attrs")
)

// BoltService is the bbolt-backed default Service implementation,
// grounded on the teacher's pkg/storage/boltdb.go bucket-per-entity idiom
// (here: one bucket of file-existence markers, one of attribute values,
// keyed by "path\x00name").
type BoltService struct {
	db *bolt.DB

	locksMu sync.Mutex
	locks   map[string]bool // path -> held, process-local exclusivity
}

// NewBoltService opens (creating if absent) a bbolt database at dbPath and
// returns a Service backed by it.
func NewBoltService(dbPath string) (*BoltService, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("lockservice: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketAttrs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltService{db: db, locks: make(map[string]bool)}, nil
}

func (s *BoltService) Close() error {
	return s.db.Close()
}

func (s *BoltService) Mkdirs(p string) error {
	p = path.Clean(p)
	parts := strings.Split(strings.Trim(p, "/"), "/")
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur = cur + "/" + part
		if err := s.Create(cur, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltService) Create(p string, ignoreExisting bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if b.Get([]byte(p)) != nil {
			if ignoreExisting {
				return nil
			}
			return ErrExists
		}
		return b.Put([]byte(p), []byte{1})
	})
}

func (s *BoltService) Exists(p string) bool {
	var found bool
	s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketFiles).Get([]byte(p)) != nil
		return nil
	})
	return found
}

func (s *BoltService) Unlink(p string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(p))
	})
}

type boltHandle struct {
	svc  *BoltService
	path string
}

func (h *boltHandle) Path() string { return h.path }

func (h *boltHandle) Unlock() error {
	h.svc.locksMu.Lock()
	defer h.svc.locksMu.Unlock()
	if !h.svc.locks[h.path] {
		return ErrNotLocked
	}
	delete(h.svc.locks, h.path)
	return nil
}

// Lock acquires an exclusive, process-local lock on path, creating the
// file first if it does not exist. It is non-blocking: callers drive the
// spec's 15-second retry loop themselves (spec §4.8 step 2).
func (s *BoltService) Lock(p string) (Handle, error) {
	if err := s.Create(p, true); err != nil {
		return nil, err
	}

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if s.locks[p] {
		return nil, ErrLocked
	}
	s.locks[p] = true
	return &boltHandle{svc: s, path: p}, nil
}

func attrKey(p, name string) []byte {
	return []byte(p + "\x00" + name)
}

func (s *BoltService) GetAttr(p, name string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAttrs).Get(attrKey(p, name))
		if v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

func (s *BoltService) SetAttr(p, name string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAttrs).Put(attrKey(p, name), value)
	})
}

func (s *BoltService) IncrAttr(p, name string, delta int64) (int64, error) {
	var result int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttrs)
		key := attrKey(p, name)
		v := b.Get(key)
		var cur int64
		if v != nil {
			cur = int64(binary.LittleEndian.Uint64(v))
		}
		cur += delta
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(cur))
		result = cur
		return b.Put(key, buf)
	})
	return result, err
}
