package lockservice

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *BoltService {
	t.Helper()
	svc, err := NewBoltService(filepath.Join(t.TempDir(), "lock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestMkdirsIdempotent(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Mkdirs("/servers"))
	require.NoError(t, svc.Mkdirs("/servers"))
	require.True(t, svc.Exists("/servers"))
}

func TestCreateExistsRejectsDuplicate(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Create("/master", false))
	require.ErrorIs(t, svc.Create("/master", false), ErrExists)
	require.NoError(t, svc.Create("/master", true))
}

func TestLockIsExclusive(t *testing.T) {
	svc := newTestService(t)

	h, err := svc.Lock("/master")
	require.NoError(t, err)

	_, err = svc.Lock("/master")
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, h.Unlock())

	h2, err := svc.Lock("/master")
	require.NoError(t, err)
	require.NoError(t, h2.Unlock())
}

func TestIncrAttr(t *testing.T) {
	svc := newTestService(t)

	v, err := svc.IncrAttr("/master", "next_server_id", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	v, err = svc.IncrAttr("/master", "next_server_id", 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
}

func TestSetGetAttr(t *testing.T) {
	svc := newTestService(t)

	_, found, err := svc.GetAttr("/tables/1", "schema")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, svc.SetAttr("/tables/1", "schema", []byte("<Schema/>")))
	v, found, err := svc.GetAttr("/tables/1", "schema")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "<Schema/>", string(v))
}
