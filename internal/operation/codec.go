package operation

import (
	"encoding/binary"
	"errors"
)

var errShortResult = errors.New("operation: truncated result payload")

func putInt32(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf, uint32(v))
}

func getInt32(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}

func putString(buf []byte, s string) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return 4 + len(s)
}

func stringLen(s string) int {
	return 4 + len(s)
}

func getString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, errShortResult
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+n {
		return "", 0, errShortResult
	}
	return string(buf[4 : 4+n]), 4 + n, nil
}
