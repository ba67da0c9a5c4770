package codec

import (
	"encoding/json"
	"fmt"
)

// JSON encodes with encoding/json. Readable in redis-cli; payload bytes are base64.
// Also decodes Twirp error bodies in transport/twirp.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("codec: json: %w", err)
	}
	return v, nil
}
