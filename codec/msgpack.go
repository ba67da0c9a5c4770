package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is the default entry codec. The zero value is ready to use.
// Field names follow `msgpack` struct tags; fields tagged "-" (an entry's
// disposition and age) are never written.
type Msgpack[V any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("codec: msgpack: %w", err)
	}
	return v, nil
}
