package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// shared encoder/decoder; both are safe for concurrent EncodeAll/DecodeAll.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// Zstd compresses the output of Inner. Values at or under MinSize bytes are stored
// uncompressed behind a one byte marker.
type Zstd[V any] struct {
	Inner   Codec[V]
	MinSize int
}

var _ Codec[struct{}] = Zstd[struct{}]{}

const (
	markPlain byte = 0
	markZstd  byte = 1
)

func (c Zstd[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if len(b) <= c.MinSize {
		return append([]byte{markPlain}, b...), nil
	}
	enc, _, err := zstdCoders()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(b, []byte{markZstd}), nil
}

func (c Zstd[V]) Decode(b []byte) (V, error) {
	var zero V
	if len(b) == 0 {
		return zero, fmt.Errorf("codec: empty zstd frame")
	}
	switch b[0] {
	case markPlain:
		return c.Inner.Decode(b[1:])
	case markZstd:
		_, dec, err := zstdCoders()
		if err != nil {
			return zero, err
		}
		raw, err := dec.DecodeAll(b[1:], nil)
		if err != nil {
			return zero, fmt.Errorf("codec: zstd: %w", err)
		}
		return c.Inner.Decode(raw)
	default:
		return zero, fmt.Errorf("codec: unknown zstd marker %d", b[0])
	}
}
