package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Limit.Decode for values above MaxDecode.
var ErrTooLarge = errors.New("codec: entry too large")

// Limit caps the size of stored values it will decode. A shared store can hold
// entries written by other processes with other limits; those decode as errors and
// the decorator treats them like corrupt entries. MaxDecode <= 0 disables the check.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

var _ Codec[struct{}] = Limit[struct{}]{}

func (l Limit[V]) Encode(v V) ([]byte, error) { return l.Inner.Encode(v) }

func (l Limit[V]) Decode(b []byte) (V, error) {
	if l.MaxDecode > 0 && len(b) > l.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), l.MaxDecode)
	}
	return l.Inner.Decode(b)
}
