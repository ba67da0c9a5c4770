package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func newProvider(t *testing.T, maxCost int64) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 1000, MaxCost: maxCost, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestSetVisibleToNextGet(t *testing.T) {
	p := newProvider(t, 1<<20)
	ctx := context.Background()

	ok, err := p.Set(ctx, "k", []byte("frame"), 0)
	if err != nil || !ok {
		t.Fatalf("Set = %v, %v", ok, err)
	}
	got, found, err := p.Get(ctx, "k")
	if err != nil || !found || string(got) != "frame" {
		t.Fatalf("Get = %q, %v, %v", got, found, err)
	}
}

func TestSetReportsDroppedAdmission(t *testing.T) {
	p := newProvider(t, 1<<10)
	ctx := context.Background()

	// costs more than the whole cache: buffered, then rejected by the policy
	ok, err := p.Set(ctx, "big", bytes.Repeat([]byte{1}, 4<<10), 0)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Set reported success for a value the cache did not admit")
	}
	if _, found, _ := p.Get(ctx, "big"); found {
		t.Fatal("rejected value is visible")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
