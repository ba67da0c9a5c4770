package util

import "testing"

func TestContentHashStable(t *testing.T) {
	// sha256("") is a well known constant.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := ContentHash(nil); got != empty {
		t.Fatalf("ContentHash(nil) = %s", got)
	}
	if ContentHash([]byte("a")) == ContentHash([]byte("b")) {
		t.Fatal("distinct inputs collided")
	}
}

func TestNamespaced(t *testing.T) {
	if got := Namespaced("", "k"); got != "k" {
		t.Fatalf("got %q", got)
	}
	if got := Namespaced("twirp", "svc/m/h"); got != "twirp:svc/m/h" {
		t.Fatalf("got %q", got)
	}
	if got := ShortHash("k"); len(got) != 16 {
		t.Fatalf("ShortHash length = %d", len(got))
	}
}
