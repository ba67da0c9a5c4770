package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1

	hdrLen = 4 + 1 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("rpccache: corrupt entry")
	magic4     = [...]byte{'R', 'P', 'C', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Frame is the unit stored by the local store.
// Version is the CAS version (never 0). ExpiresAt is unix nanos; 0 means no expiry.
type Frame struct {
	Version   uint64
	ExpiresAt int64
	Payload   []byte
}

// Encode: magic(4) | ver(1) | kind(1) | version(u64 be) | expiresAt(i64 be) | vlen(u32 be) | payload(vlen)
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(f.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], f.Version)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(f.ExpiresAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
	buf.Write(u4[:])

	buf.Write(f.Payload)
	return buf.Bytes()
}

// Decode parses a frame. The returned Payload aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Frame{}, ErrCorrupt
	}

	off := 6

	ver := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	if ver == 0 {
		return Frame{}, ErrCorrupt
	}

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact length; trailing bytes are corruption
		return Frame{}, ErrCorrupt
	}

	return Frame{Version: ver, ExpiresAt: exp, Payload: b[off : off+vlen]}, nil
}

// Expired reports whether the frame has an expiry at or before nowNano.
func (f Frame) Expired(nowNano int64) bool {
	return f.ExpiresAt != 0 && f.ExpiresAt <= nowNano
}
