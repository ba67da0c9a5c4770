package rpccache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the Decorator calls them on the
// request path. Keys passed to hooks are cache keys (no namespace).
type Hooks interface {
	// A fresh entry was served.
	Hit(key string)
	// The upstream was called and its response returned.
	Miss(key string)
	// A stale entry was served. reason ∈ {"revalidate", "error"}
	StaleServed(key, reason string)

	// Store read failed; the request proceeded as a miss.
	StoreReadError(key string, err error)
	// Store write failed; the response was returned uncached.
	StoreWriteError(key string, err error)
	// A stored entry could not be decoded; treated as a miss.
	EntryDecodeError(key string, err error)
	// A conditional write lost to a newer value.
	WriteRejected(key string)

	// The scheduler had no room for a refresh.
	RevalidationDropped(key string)
	// A background refresh failed (upstream error, timeout or panic).
	RevalidationFailed(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string)                       {}
func (NopHooks) Miss(string)                      {}
func (NopHooks) StaleServed(string, string)       {}
func (NopHooks) StoreReadError(string, error)     {}
func (NopHooks) StoreWriteError(string, error)    {}
func (NopHooks) EntryDecodeError(string, error)   {}
func (NopHooks) WriteRejected(string)             {}
func (NopHooks) RevalidationDropped(string)       {}
func (NopHooks) RevalidationFailed(string, error) {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) Hit(k string) {
	for _, h := range m {
		h.Hit(k)
	}
}

func (m MultiHooks) Miss(k string) {
	for _, h := range m {
		h.Miss(k)
	}
}

func (m MultiHooks) StaleServed(k, reason string) {
	for _, h := range m {
		h.StaleServed(k, reason)
	}
}

func (m MultiHooks) StoreReadError(k string, err error) {
	for _, h := range m {
		h.StoreReadError(k, err)
	}
}

func (m MultiHooks) StoreWriteError(k string, err error) {
	for _, h := range m {
		h.StoreWriteError(k, err)
	}
}

func (m MultiHooks) EntryDecodeError(k string, err error) {
	for _, h := range m {
		h.EntryDecodeError(k, err)
	}
}

func (m MultiHooks) WriteRejected(k string) {
	for _, h := range m {
		h.WriteRejected(k)
	}
}

func (m MultiHooks) RevalidationDropped(k string) {
	for _, h := range m {
		h.RevalidationDropped(k)
	}
}

func (m MultiHooks) RevalidationFailed(k string, err error) {
	for _, h := range m {
		h.RevalidationFailed(k, err)
	}
}
