// Package mml implements the master's Meta-Log: an append-only,
// fragment-based, checksummed durable log of entity state (operations and
// range-server connection records), dual-written to a distributed
// filesystem and a local backup directory.
//
// Wire format (spec §6, grounded on the original Hypertable
// MetaLogEntityHeader/MetaLogWriter):
//
//	fragment header: definition name (null-padded, 16 bytes) + version (uint16)
//	entry header (32 bytes): type(int32) checksum(int32) id(int64)
//	                         timestamp(int64) flags(int32) length(int32)
//	entry payload: length bytes, entity-defined
package mml

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// FlagRemove marks an entry as a tombstone for a previously written id.
	FlagRemove = 0x00000001

	// HeaderLength is the fixed size, in bytes, of an entry header.
	HeaderLength = 32

	// FragmentNameLength is the fixed, null-padded width of the
	// definition name field in a fragment header.
	FragmentNameLength = 16

	// FragmentHeaderLength is FragmentNameLength plus a uint16 version.
	FragmentHeaderLength = FragmentNameLength + 2

	// RetainedFragments is the number of most-recent fragments kept; older
	// ones are unlinked from both DFS and the local backup.
	RetainedFragments = 10

	// FragmentVersion is the current on-disk fragment format version.
	FragmentVersion = 1
)

// EntryHeader is the fixed 32-byte header preceding every entry payload.
type EntryHeader struct {
	Type      int32
	Checksum  int32
	ID        int64
	Timestamp int64
	Flags     int32
	Length    int32
}

// Encode writes the header in the exact field order and widths spec.md §6
// and the original EntityHeader::encode require.
func (h *EntryHeader) Encode(buf []byte) {
	_ = buf[:HeaderLength]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Checksum))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.ID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.Timestamp))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(h.Flags))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(h.Length))
}

// DecodeHeader parses a 32-byte buffer into an EntryHeader.
func DecodeHeader(buf []byte) (EntryHeader, error) {
	if len(buf) < HeaderLength {
		return EntryHeader{}, ErrTruncated
	}
	var h EntryHeader
	h.Type = int32(binary.LittleEndian.Uint32(buf[0:4]))
	h.Checksum = int32(binary.LittleEndian.Uint32(buf[4:8]))
	h.ID = int64(binary.LittleEndian.Uint64(buf[8:16]))
	h.Timestamp = int64(binary.LittleEndian.Uint64(buf[16:24]))
	h.Flags = int32(binary.LittleEndian.Uint32(buf[24:28]))
	h.Length = int32(binary.LittleEndian.Uint32(buf[28:32]))
	return h, nil
}

func (h *EntryHeader) IsRemove() bool {
	return h.Flags&FlagRemove != 0
}

// checksum returns the CRC32 (IEEE) of the payload, matching the spec's
// "the checksum covers the payload" rule.
func checksum(payload []byte) int32 {
	return int32(crc32.ChecksumIEEE(payload))
}

// EncodeString writes a 32-bit length-prefixed string, per spec §6's wire
// format rule ("strings are 32-bit length + bytes").
func EncodeString(buf []byte, s string) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return 4 + len(s)
}

// DecodeString reads a 32-bit length-prefixed string starting at buf[0].
func DecodeString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+n {
		return "", 0, ErrTruncated
	}
	return string(buf[4 : 4+n]), 4 + n, nil
}

// StringLen returns the encoded width of a length-prefixed string.
func StringLen(s string) int {
	return 4 + len(s)
}
