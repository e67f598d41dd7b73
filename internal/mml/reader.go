package mml

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"strconv"
)

// Replay enumerates fragments in dir in numeric order, reads entries
// sequentially, constructs entities via definition, applies REMOVE
// tombstones against prior ids, and returns the surviving set. A trailing
// truncated entry in the last fragment is discarded silently; any other
// corruption fails the load (spec §4.1 "Replay").
func Replay(fs Filesystem, definition *Definition, dir string) ([]Entity, error) {
	ids, err := fragmentIDs(fs, dir)
	if err != nil {
		return nil, err
	}

	live := make(map[int64]Entity)
	order := make([]int64, 0)

	for i, id := range ids {
		name := strconv.FormatInt(id, 10)
		data, err := fs.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		isLast := i == len(ids)-1
		if err := replayFragment(definition, data, live, &order, isLast); err != nil {
			return nil, err
		}
	}

	out := make([]Entity, 0, len(live))
	for _, id := range order {
		if e, ok := live[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func replayFragment(definition *Definition, data []byte, live map[int64]Entity, order *[]int64, isLast bool) error {
	if len(data) < FragmentHeaderLength {
		if isLast {
			return nil
		}
		return ErrCorrupt
	}

	name := string(bytes.TrimRight(data[:FragmentNameLength], "\x00"))
	version := binary.LittleEndian.Uint16(data[FragmentNameLength:FragmentHeaderLength])
	if name != definition.Name || version != definition.Version {
		return ErrDefinitionMismatch
	}

	buf := data[FragmentHeaderLength:]
	for len(buf) > 0 {
		if len(buf) < HeaderLength {
			if isLast {
				return nil
			}
			return ErrCorrupt
		}

		header, err := DecodeHeader(buf)
		if err != nil {
			if isLast {
				return nil
			}
			return err
		}

		remaining := buf[HeaderLength:]
		if int64(len(remaining)) < int64(header.Length) {
			if isLast {
				return nil
			}
			return ErrCorrupt
		}

		payload := remaining[:header.Length]

		if header.IsRemove() {
			delete(live, header.ID)
		} else {
			if checksum(payload) != header.Checksum {
				if isLast && len(remaining) == int(header.Length) {
					return nil
				}
				return ErrCorrupt
			}
			entity, err := definition.Decode(header, payload)
			if err != nil {
				return err
			}
			if _, seen := live[header.ID]; !seen {
				*order = append(*order, header.ID)
			}
			live[header.ID] = entity
		}

		buf = remaining[header.Length:]
	}
	return nil
}
