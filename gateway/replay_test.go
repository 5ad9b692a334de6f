package gateway

import "testing"

func TestReplayGuardRejectsSameScopeReuse(t *testing.T) {
	g := NewDelegatedReplayGuard()
	if !g.Reserve("0xabc", 1, 0, "nonce-1", 1000, 0) {
		t.Fatal("first use should be admitted")
	}
	if g.Reserve("0xabc", 1, 0, "nonce-1", 1000, 0) {
		t.Fatal("second use of the same nonce in the same scope must be denied")
	}
}

func TestReplayGuardAllowsCrossScopeReuse(t *testing.T) {
	g := NewDelegatedReplayGuard()
	if !g.Reserve("0xabc", 1, 0, "nonce-1", 1000, 0) {
		t.Fatal("first use should be admitted")
	}
	if !g.Reserve("0xabc", 2, 0, "nonce-1", 1000, 0) {
		t.Fatal("same nonce in a different service scope must be admitted")
	}
	if !g.Reserve("0xabc", 1, 1, "nonce-1", 1000, 0) {
		t.Fatal("same nonce in a different job scope must be admitted")
	}
	if !g.Reserve("0xdef", 1, 0, "nonce-1", 1000, 0) {
		t.Fatal("same nonce from a different caller must be admitted")
	}
}

func TestReplayGuardAllowsReuseAfterExpiry(t *testing.T) {
	g := NewDelegatedReplayGuard()
	if !g.Reserve("0xabc", 1, 0, "nonce-1", 1000, 0) {
		t.Fatal("first use should be admitted")
	}
	if g.Reserve("0xabc", 1, 0, "nonce-1", 2000, 500) {
		t.Fatal("reuse before the reserved expiry must be denied")
	}
	if !g.Reserve("0xabc", 1, 0, "nonce-1", 3000, 1001) {
		t.Fatal("reuse after the reserved expiry has elapsed must be admitted")
	}
}

func TestReplayGuardPrunesExpiredEntries(t *testing.T) {
	g := NewDelegatedReplayGuard()
	g.Reserve("0xabc", 1, 0, "nonce-1", 1000, 0)
	g.Reserve("0xabc", 1, 0, "nonce-2", 5000, 0)

	// Advancing past nonce-1's expiry but not nonce-2's should prune
	// only the former on the next reservation.
	g.Reserve("0xdef", 9, 9, "nonce-unrelated", 9999, 1001)
	if g.Len() != 2 {
		t.Fatalf("expected 2 tracked entries (nonce-2 and the new one), got %d", g.Len())
	}
}
