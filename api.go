package rpccache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/rpccache/codec"
	"github.com/unkn0wn-root/rpccache/store"
)

// Disposition tells whether a response came from the cache.
type Disposition string

const (
	Hit  Disposition = "HIT"
	Miss Disposition = "MISS"
)

// Header names used on the request/response surface.
const (
	HeaderCacheControl = "Cache-Control"
	HeaderCache        = "X-Cache"
	HeaderAge          = "Age"
)

// Request identifies one RPC call for keying.
type Request struct {
	Service string // fully qualified service name, e.g. "example.hello_world.HelloWorld"
	Method  string
	Body    []byte // serialized request message
}

// Response is a captured RPC response. Payload and Header are persisted with the
// entry; Cache and Age are set by the Decorator on every returned response and are
// never stored.
type Response struct {
	Payload []byte            `json:"payload" msgpack:"p" cbor:"p"`
	Header  map[string]string `json:"header,omitempty" msgpack:"h,omitempty" cbor:"h,omitempty"`

	Cache Disposition   `json:"-" msgpack:"-" cbor:"-"`
	Age   time.Duration `json:"-" msgpack:"-" cbor:"-"`
}

// Entry is what the store holds for a key.
type Entry struct {
	Response Response `json:"response" msgpack:"r" cbor:"r"`
	CachedAt int64    `json:"cached_at" msgpack:"t" cbor:"t"` // epoch seconds
}

// Invoker performs the real RPC call. A non-nil error is an upstream failure and
// the returned response is ignored.
type Invoker func(ctx context.Context) (*Response, error)

// Scheduler runs background revalidation. Submit must not block; it returns false
// when the task was dropped. *revalidate.Pool implements it.
type Scheduler interface {
	Submit(task func()) bool
}

// Options configure a Decorator. Only Store is required.
type Options struct {
	Store store.Store

	// Scheduler for stale-while-revalidate refreshes. If nil, the Decorator owns a
	// revalidate.Pool sized by Workers/QueueSize and closes it on Close.
	Scheduler Scheduler
	Workers   int // 0 => revalidate.DefaultWorkers
	QueueSize int // 0 => revalidate.DefaultQueue

	Codec             c.Codec[Entry]   // nil => msgpack
	Logger            Logger           // nil => NopLogger
	Hooks             Hooks            // nil => NopHooks
	Clock             func() time.Time // nil => time.Now
	RevalidateTimeout time.Duration    // per background refresh; 0 => 30s
	Disabled          bool             // pass-through: always call upstream, never touch the store
}
