// Package lockservice defines the hierarchical namespace/lock service the
// master depends on (spec §6): files with exclusive locks and typed
// attributes (get/set/incr), plus mkdirs/create/exists/unlink. The real
// service (Hyperspace-equivalent) is an external collaborator (spec §1);
// Service is the interface the rest of the engine programs against, and
// BoltService is the bbolt-backed default that makes the repository
// runnable standalone, grounded on the teacher's pkg/storage bucket-per-
// entity idiom.
package lockservice

import "errors"

var (
	ErrExists     = errors.New("lockservice: file exists")
	ErrNotExists  = errors.New("lockservice: no such file")
	ErrLocked     = errors.New("lockservice: already locked")
	ErrNotLocked  = errors.New("lockservice: not locked by this handle")
)

// Handle represents an acquired exclusive lock on a path; Unlock releases
// it. A Handle is only valid for the process that acquired it.
type Handle interface {
	Path() string
	Unlock() error
}

// Service is the lock/namespace client interface.
type Service interface {
	// Mkdirs creates path and any missing parents; it is idempotent
	// (spec §7: "Lock-service file-exists on mkdir during Initialize —
	// ignored").
	Mkdirs(path string) error

	// Create creates a plain (unlocked) file at path. Returns ErrExists
	// if it already exists, unless ignoreExisting is true.
	Create(path string, ignoreExisting bool) error

	// Exists reports whether path has been created.
	Exists(path string) bool

	// Unlink removes path.
	Unlink(path string) error

	// Lock acquires an exclusive lock on path, creating it first if
	// absent. It does not block: if the lock is already held it returns
	// ErrLocked, so callers implementing the master-election retry loop
	// (spec §4.8 step 2) call Lock in a retry loop themselves.
	Lock(path string) (Handle, error)

	// GetAttr returns the named attribute's value and whether it exists.
	GetAttr(path, name string) ([]byte, bool, error)

	// SetAttr sets the named attribute's value, creating it if absent.
	SetAttr(path, name string, value []byte) error

	// IncrAttr atomically increments an integer-valued attribute by delta
	// and returns the new value, creating it at delta if absent. Used for
	// the master file's next_server_id counter (spec §4.3 RegisterServer).
	IncrAttr(path, name string, delta int64) (int64, error)
}
