// Package codec serializes cache entries to the bytes a store keeps.
//
// Msgpack is the default entry codec. Wrappers compose: Limit guards decoding of
// oversized values from a shared store and Zstd compresses large payloads.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Implementations must be safe for concurrent use.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
