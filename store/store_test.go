package store

import "testing"

func TestTokenMatches(t *testing.T) {
	tests := []struct {
		name    string
		tok     Token
		present bool
		current uint64
		want    bool
	}{
		{"absent vs empty", Absent, false, 0, true},
		{"absent vs existing", Absent, true, 1, false},
		{"absent vs existing version zero", Absent, true, 0, false},
		{"version match", Version(5), true, 5, true},
		{"version mismatch", Version(5), true, 6, false},
		{"version vs empty", Version(5), false, 0, false},
		{"version zero vs empty", Version(0), false, 0, false},
		{"unconditional vs empty", Unconditional, false, 0, true},
		{"unconditional vs existing", Unconditional, true, 9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Matches(tt.present, tt.current); got != tt.want {
				t.Fatalf("%v.Matches(%v, %d) = %v, want %v", tt.tok, tt.present, tt.current, got, tt.want)
			}
		})
	}
}

func TestZeroTokenIsAbsent(t *testing.T) {
	var tok Token
	if !tok.IsAbsent() || tok != Absent {
		t.Fatal("zero Token must be Absent")
	}
	if _, ok := tok.Version(); ok {
		t.Fatal("Absent must not carry a version")
	}
	if v, ok := Version(0).Version(); !ok || v != 0 {
		t.Fatal("Version(0) must be a real version distinct from Absent")
	}
	if Version(0) == Absent {
		t.Fatal("Version(0) collided with Absent")
	}
}
