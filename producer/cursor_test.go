package producer

import "testing"

func TestCursorMonotonic(t *testing.T) {
	var c Cursor
	if !c.Before(10, 0) {
		t.Fatal("unset cursor should admit everything")
	}

	c.Advance(10, 2)
	if c.Before(10, 2) {
		t.Fatal("same position should not be admitted twice")
	}
	if c.Before(10, 1) {
		t.Fatal("earlier log index in the same block should not be admitted")
	}
	if !c.Before(10, 3) {
		t.Fatal("later log index in the same block should be admitted")
	}
	if !c.Before(11, 0) {
		t.Fatal("later block should be admitted")
	}

	c.Advance(10, 1) // simulate a reorg replay of an older log
	if c.BlockNumber != 10 || c.LogIndex != 2 {
		t.Fatalf("advancing backwards must be a no-op, got (%d,%d)", c.BlockNumber, c.LogIndex)
	}
}

func TestCursorCrossBlockOrdering(t *testing.T) {
	var c Cursor
	c.Advance(5, 100)
	if c.Before(4, 0) {
		t.Fatal("earlier block must never be admitted regardless of log index")
	}
}
