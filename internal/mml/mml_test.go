package mml

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memFilesystem is an in-memory Filesystem for tests, avoiding any real
// disk I/O while exercising the same dual-write/retention code paths.
type memFilesystem struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newMemFilesystem() *memFilesystem {
	return &memFilesystem{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (m *memFilesystem) Mkdirs(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

func (m *memFilesystem) Create(path string) (io.WriteCloser, error) {
	return &memFile{fs: m, path: path}, nil
}

type memFile struct {
	fs   *memFilesystem
	path string
}

func (f *memFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.files[f.path] = append(f.fs.files[f.path], p...)
	return len(p), nil
}

func (f *memFile) Close() error { return nil }

func (m *memFilesystem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[path], nil
}

func (m *memFilesystem) ReadDir(path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := path + "/"
	var names []string
	for p := range m.files {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			names = append(names, p[len(prefix):])
		}
	}
	return names, nil
}

func (m *memFilesystem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memFilesystem) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path]
}

// testEntity is a minimal Entity used to exercise header/payload
// round-tripping without depending on the operation package.
type testEntity struct {
	id      int64
	etype   int32
	payload []byte
}

func (e *testEntity) EntityID() int64        { return e.id }
func (e *testEntity) EntityType() int32      { return e.etype }
func (e *testEntity) EncodedLength() int     { return len(e.payload) }
func (e *testEntity) EncodePayload(buf []byte) { copy(buf, e.payload) }
func (e *testEntity) Explicit() bool         { return false }

func TestEntryHeaderRoundTrip(t *testing.T) {
	h := EntryHeader{Type: 7, Checksum: 42, ID: 99, Timestamp: 123456789, Flags: FlagRemove, Length: 16}
	buf := make([]byte, HeaderLength)
	h.Encode(buf)

	decoded, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, decoded)
	require.True(t, decoded.IsRemove())
}

func TestStringRoundTrip(t *testing.T) {
	buf := make([]byte, StringLen("hello"))
	n := EncodeString(buf, "hello")
	require.Equal(t, len(buf), n)

	s, consumed, err := DecodeString(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", s)
	require.Equal(t, n, consumed)
}

func testDefinition() *Definition {
	def := NewDefinition("mml", FragmentVersion)
	def.Register(1, func(header EntryHeader, payload []byte) (Entity, error) {
		return &testEntity{id: header.ID, etype: header.Type, payload: append([]byte(nil), payload...)}, nil
	})
	return def
}

func TestWriterReplayRoundTrip(t *testing.T) {
	fs := newMemFilesystem()
	def := testDefinition()

	w, err := NewWriter(fs, def, "/data/log/mml", "/backup/log_backup/mml")
	require.NoError(t, err)

	e1 := &testEntity{id: 1, etype: 1, payload: []byte("alpha")}
	e2 := &testEntity{id: 2, etype: 1, payload: []byte("beta")}
	require.NoError(t, w.RecordState(e1))
	require.NoError(t, w.RecordState(e2))
	require.NoError(t, w.RecordRemoval(e1))
	require.NoError(t, w.Close())

	entities, err := Replay(fs, def, "/data/log/mml")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, int64(2), entities[0].EntityID())
}

func TestReplayToleratesTruncatedTrailingEntry(t *testing.T) {
	fs := newMemFilesystem()
	def := testDefinition()

	w, err := NewWriter(fs, def, "/data/log/mml", "/backup/log_backup/mml")
	require.NoError(t, err)

	e1 := &testEntity{id: 1, etype: 1, payload: []byte("alpha")}
	require.NoError(t, w.RecordState(e1))
	require.NoError(t, w.Close())

	// Simulate a crash mid-append: append a few stray bytes to the DFS
	// fragment so it ends in an incomplete entry header.
	fs.mu.Lock()
	for path, data := range fs.files {
		if len(path) > 0 && path[:10] == "/data/log/" {
			fs.files[path] = append(data, 0xFF, 0xFF, 0xFF)
		}
	}
	fs.mu.Unlock()

	entities, err := Replay(fs, def, "/data/log/mml")
	require.NoError(t, err)
	require.Len(t, entities, 1)
}
