package navbitsync

import "testing"

func TestBitPhaseRefStartsUnresolved(t *testing.T) {
	b := New()
	if b.BitPhaseRef() != -1 {
		t.Fatalf("BitPhaseRef() = %d, want -1 before sync", b.BitPhaseRef())
	}
}

func TestSyncAchievedOnConsistentTransitions(t *testing.T) {
	b := New()
	// A 20ms-periodic bit stream flipping sign every 20ms, fed 1ms at a
	// time, should converge bit-sync within a handful of bit periods.
	sign := int32(1000)
	synced := false
	for cycle := 0; cycle < 10 && !synced; cycle++ {
		for ms := 0; ms < bitPeriodMs; ms++ {
			b.Update(sign, 1)
			if b.BitPhaseRef() >= 0 {
				synced = true
				break
			}
		}
		sign = -sign
	}
	if !synced {
		t.Fatalf("bit-sync never converged")
	}
	if b.BitPhaseRef() == b.BitPhase() {
		// fine, can coincide immediately after sync declared
	}
}

func TestPolaritySetUnknown(t *testing.T) {
	b := New()
	b.polarity = PolarityNormal
	b.SetPolarityUnknown()
	if b.Polarity() != PolarityUnknown {
		t.Fatalf("Polarity() = %v, want Unknown", b.Polarity())
	}
}
