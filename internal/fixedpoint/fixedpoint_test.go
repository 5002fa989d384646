package fixedpoint

import (
	"math"
	"testing"
)

func TestAdvanceCodePhaseWidening(t *testing.T) {
	// rateFp near the top of the 32-bit device range times a large sample
	// count must not overflow a 32-bit intermediate.
	rateFp := int32(1<<31 - 1)
	got := AdvanceCodePhase(0, rateFp, 1_000_000)
	want := CodePhase(uint64(uint32(rateFp)) * 1_000_000)
	if got != want {
		t.Fatalf("AdvanceCodePhase: got %d want %d", got, want)
	}
}

func TestAdvanceCarrierPhasePreservesSign(t *testing.T) {
	got := AdvanceCarrierPhase(0, -1000, 200)
	if got != -200000 {
		t.Fatalf("AdvanceCarrierPhase: got %d want -200000", got)
	}
}

func TestPropagateCodePhaseZeroSamples(t *testing.T) {
	// Propagating zero samples must return the same phase, within
	// sub-chip (1/16 chip) rounding.
	got := PropagateCodePhase(512.5, 0, 0)
	if diff := float64(got) - 512.5; diff < -1.0/16 || diff > 1.0/16 {
		t.Fatalf("PropagateCodePhase(p,f,0) = %v, want ~512.5", got)
	}
}

func TestPropagateCodePhaseRolloverAt1023(t *testing.T) {
	// Rollover must occur at exactly 1023.0 chips, not 1024.0: propagating
	// from just below 1023 chips forward by one chip (16 samples) must fold
	// back into [0, 1023).
	got := PropagateCodePhase(1022.9, 0, 16)
	if got < 0 || got >= CACodeLengthChips {
		t.Fatalf("PropagateCodePhase rollover out of range: got %v", got)
	}
}

func TestNCOCarrierWordRoundTrip(t *testing.T) {
	word := NCOCarrierWord(1000.0)
	wantApprox := int32(math.Round(1000.0 * CarrierFreqUnitsPerHz))
	if word != wantApprox {
		t.Fatalf("NCOCarrierWord(1000) = %d, want %d", word, wantApprox)
	}
}
