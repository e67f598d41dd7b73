package mml

import (
	"encoding/binary"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hypertable/master/internal/metrics"
)

// Writer is the master's append-only Meta-Log writer: every append is
// synchronous and flushed, written to both the DFS copy (authoritative)
// and a local backup mirror (crash forensics), grounded on
// MetaLogWriter.cc's constructor/record_state/record_removal/close shape.
type Writer struct {
	mu sync.Mutex

	fs         Filesystem
	definition *Definition

	dfsDir    string
	backupDir string

	nextID  int64
	dfsFile io.WriteCloser
	bakFile io.WriteCloser
}

// NewWriter opens (creating if absent) the fragment directories, computes
// the next fragment id, purges old fragments past RetainedFragments, and
// opens a fresh fragment pair.
func NewWriter(fs Filesystem, definition *Definition, dfsDir, backupDir string) (*Writer, error) {
	dfsDir = strings.TrimRight(dfsDir, "/")
	backupDir = strings.TrimRight(backupDir, "/")

	if !fs.Exists(dfsDir) {
		if err := fs.Mkdirs(dfsDir); err != nil {
			return nil, err
		}
	}
	if !fs.Exists(backupDir) {
		if err := fs.Mkdirs(backupDir); err != nil {
			return nil, err
		}
	}

	ids, err := fragmentIDs(fs, dfsDir)
	if err != nil {
		return nil, err
	}

	var nextID int64 = 1
	if len(ids) > 0 {
		nextID = ids[len(ids)-1] + 1
	}

	w := &Writer{fs: fs, definition: definition, dfsDir: dfsDir, backupDir: backupDir, nextID: nextID}
	if err := w.purgeOld(ids); err != nil {
		return nil, err
	}
	if err := w.openFragment(nextID); err != nil {
		return nil, err
	}
	metrics.MMLFragmentsOpen.Inc()
	return w, nil
}

// purgeOld unlinks all but the RetainedFragments most recent fragment ids
// from both the DFS directory and the local backup.
func (w *Writer) purgeOld(ids []int64) error {
	if len(ids) <= RetainedFragments {
		return nil
	}
	stale := ids[:len(ids)-RetainedFragments]
	for _, id := range stale {
		name := strconv.FormatInt(id, 10)
		_ = w.fs.Remove(filepath.Join(w.dfsDir, name))
		_ = w.fs.Remove(filepath.Join(w.backupDir, name))
	}
	return nil
}

func (w *Writer) openFragment(id int64) error {
	name := strconv.FormatInt(id, 10)

	dfsFile, err := w.fs.Create(filepath.Join(w.dfsDir, name))
	if err != nil {
		return err
	}
	bakFile, err := w.fs.Create(filepath.Join(w.backupDir, name))
	if err != nil {
		dfsFile.Close()
		return err
	}

	w.dfsFile = dfsFile
	w.bakFile = bakFile
	w.nextID = id + 1

	return w.writeFragmentHeader()
}

func (w *Writer) writeFragmentHeader() error {
	buf := make([]byte, FragmentHeaderLength)
	copy(buf, w.definition.Name)
	binary.LittleEndian.PutUint16(buf[FragmentNameLength:], w.definition.Version)

	if _, err := w.bakFile.Write(buf); err != nil {
		return err
	}
	if _, err := w.dfsFile.Write(buf); err != nil {
		return err
	}
	return nil
}

// RecordState encodes entity (header + payload) and appends it to both
// fds, flushing synchronously.
func (w *Writer) RecordState(entity Entity) error {
	return w.RecordStates(entity)
}

// RecordStates appends a batch of entities as a single atomic write, used
// when a parent operation must become visible together with its child
// sub-operations.
func (w *Writer) RecordStates(entities ...Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MMLWriteDuration)

	var buf []byte
	for _, e := range entities {
		payloadLen := e.EncodedLength()
		entryBuf := make([]byte, HeaderLength+payloadLen)
		e.EncodePayload(entryBuf[HeaderLength:])

		h := EntryHeader{
			Type:      e.EntityType(),
			Checksum:  checksum(entryBuf[HeaderLength:]),
			ID:        e.EntityID(),
			Timestamp: time.Now().UnixNano(),
			Flags:     0,
			Length:    int32(payloadLen),
		}
		h.Encode(entryBuf[:HeaderLength])
		buf = append(buf, entryBuf...)
	}

	if err := w.writeAndFlush(buf); err != nil {
		metrics.MMLWritesTotal.WithLabelValues("state_error").Inc()
		return err
	}
	metrics.MMLWritesTotal.WithLabelValues("state").Inc()
	return nil
}

// RecordRemoval writes a FLAG_REMOVE tombstone for entity: zero-length
// payload, zero checksum, header only.
func (w *Writer) RecordRemoval(entity Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := make([]byte, HeaderLength)
	h := EntryHeader{
		Type:      entity.EntityType(),
		Checksum:  0,
		ID:        entity.EntityID(),
		Timestamp: time.Now().UnixNano(),
		Flags:     FlagRemove,
		Length:    0,
	}
	h.Encode(buf)

	if err := w.writeAndFlush(buf); err != nil {
		metrics.MMLWritesTotal.WithLabelValues("removal_error").Inc()
		return err
	}
	metrics.MMLWritesTotal.WithLabelValues("removal").Inc()
	return nil
}

// writeAndFlush writes buf to both the backup and DFS fds. A DFS write
// failure is fatal per spec §7: the master cannot safely continue without
// durable state, so the caller is expected to treat a non-nil error here
// as terminal.
func (w *Writer) writeAndFlush(buf []byte) error {
	if _, err := w.bakFile.Write(buf); err != nil {
		return err
	}
	if _, err := w.dfsFile.Write(buf); err != nil {
		return err
	}
	return nil
}

// Close is idempotent and closes both the DFS and backup fds.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dfsFile != nil {
		w.dfsFile.Close()
		w.dfsFile = nil
	}
	if w.bakFile != nil {
		w.bakFile.Close()
		w.bakFile = nil
	}
	return nil
}
