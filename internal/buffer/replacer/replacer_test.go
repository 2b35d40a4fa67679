// ABOUTME: Tests for the LRU and CLOCK victim-selection policies
// ABOUTME: Exercises the scenarios from the replacer invariants directly

package replacer

import "testing"

func TestLRUVictimOrder(t *testing.T) {
	r := NewLRU(7)
	for _, f := range []FrameID{1, 2, 3, 4, 5, 6} {
		r.Unpin(f)
	}
	r.Unpin(1) // duplicate, ignored

	if got := r.Size(); got != 6 {
		t.Fatalf("Size() = %d, want 6", got)
	}

	want := []FrameID{1, 2, 3}
	for _, w := range want {
		got, ok := r.Victim()
		if !ok || got != w {
			t.Fatalf("Victim() = (%d, %v), want (%d, true)", got, ok, w)
		}
	}

	r.Pin(4)
	if got := r.Size(); got != 2 {
		t.Fatalf("Size() after Pin(4) = %d, want 2", got)
	}
	r.Unpin(4)

	want = []FrameID{5, 6, 4}
	for _, w := range want {
		got, ok := r.Victim()
		if !ok || got != w {
			t.Fatalf("Victim() = (%d, %v), want (%d, true)", got, ok, w)
		}
	}
}

func TestLRUEmptyVictim(t *testing.T) {
	r := NewLRU(1)
	if _, ok := r.Victim(); ok {
		t.Fatal("Victim() on empty replacer returned ok=true")
	}
}

func TestCLOCKScenarioS1(t *testing.T) {
	c := NewCLOCK(7)
	for _, f := range []FrameID{1, 2, 3, 4, 5, 6} {
		c.Unpin(f)
	}
	c.Unpin(1) // duplicate, ignored

	if got := c.Size(); got != 6 {
		t.Fatalf("Size() = %d, want 6", got)
	}

	want := []FrameID{1, 2, 3}
	for _, w := range want {
		got, ok := c.Victim()
		if !ok || got != w {
			t.Fatalf("Victim() = (%d, %v), want (%d, true)", got, ok, w)
		}
	}

	c.Pin(3) // already evicted, no-op
	c.Pin(4)
	if got := c.Size(); got != 2 {
		t.Fatalf("Size() after pins = %d, want 2", got)
	}
	c.Unpin(4)

	want = []FrameID{5, 6, 4}
	for _, w := range want {
		got, ok := c.Victim()
		if !ok || got != w {
			t.Fatalf("Victim() = (%d, %v), want (%d, true)", got, ok, w)
		}
	}
}

func TestCLOCKEmptyVictim(t *testing.T) {
	c := NewCLOCK(1)
	if _, ok := c.Victim(); ok {
		t.Fatal("Victim() on empty replacer returned ok=true")
	}
}

func TestCLOCKSingleEntryRewrap(t *testing.T) {
	c := NewCLOCK(2)
	c.Unpin(1)
	c.Unpin(2)
	if _, ok := c.Victim(); !ok {
		t.Fatal("expected a victim")
	}
	// Only one candidate left; the first sweep already cleared its ref bit,
	// so Victim takes it without another wrap.
	got, ok := c.Victim()
	if !ok || got != 2 {
		t.Fatalf("Victim() = (%d, %v), want (2, true)", got, ok)
	}
	if _, ok := c.Victim(); ok {
		t.Fatal("expected empty replacer after draining both candidates")
	}
}
