package rpccache

import (
	"strings"

	"github.com/unkn0wn-root/rpccache/internal/util"
)

// KeyFor derives the cache key "<service>/<method>/<hex sha256(body)>". It is a pure
// function of its inputs and stable across processes.
func KeyFor(service, method string, body []byte) string {
	return service + "/" + method + "/" + util.ContentHash(body)
}

// SplitKey returns the service and method a key produced by KeyFor was built from.
// ok is false for keys of any other shape.
func SplitKey(key string) (service, method string, ok bool) {
	i := strings.LastIndexByte(key, '/')
	if i < 0 {
		return "", "", false
	}
	j := strings.LastIndexByte(key[:i], '/')
	if j <= 0 {
		return "", "", false
	}
	return key[:j], key[j+1 : i], true
}
