package work

import "testing"

func TestComputeDeterministic(t *testing.T) {
	a := Compute([]byte("hello"), 100)
	b := Compute([]byte("hello"), 100)
	if a.Result != b.Result {
		t.Fatalf("expected identical digests, got %q and %q", a.Result, b.Result)
	}
	if len(a.Result) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a.Result))
	}
}

func TestComputeDiffersByInput(t *testing.T) {
	a := Compute([]byte("hello"), 10)
	b := Compute([]byte("world"), 10)
	if a.Result == b.Result {
		t.Fatalf("expected different digests for different inputs")
	}
}

func TestComputeDiffersByIterations(t *testing.T) {
	a := Compute([]byte("hello"), 10)
	b := Compute([]byte("hello"), 11)
	if a.Result == b.Result {
		t.Fatalf("expected different digests for different iteration counts")
	}
}

func TestComputeSingleRound(t *testing.T) {
	r := Compute([]byte("x"), 1)
	if r.Result == "" {
		t.Fatal("expected non-empty digest")
	}
}
