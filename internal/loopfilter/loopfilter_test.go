package loopfilter

import (
	"math"
	"testing"
)

func TestInitSeedsCarrierFrequency(t *testing.T) {
	var lf LoopFilter
	lf.Init(1000, 0, 1, 0.7, 1, 1540, 1234.5, 10, 0.7, 1, 5)
	if lf.CarrFreq() != 1234.5 {
		t.Fatalf("CarrFreq() = %v, want 1234.5", lf.CarrFreq())
	}
	if lf.CarrFiltY() != 1234.5 {
		t.Fatalf("CarrFiltY() = %v, want 1234.5", lf.CarrFiltY())
	}
}

func TestUpdateTracksPromptLock(t *testing.T) {
	var lf LoopFilter
	lf.Init(1000, 0, 1, 0.7, 1, 1540, 0, 10, 0.7, 1, 5)

	// A perfectly in-phase prompt with balanced early/late should produce
	// a near-zero correction.
	for i := 0; i < 5; i++ {
		carr, code := lf.Update(Correlations{
			Early:  complex(900, 0),
			Prompt: complex(1000, 0),
			Late:   complex(900, 0),
		})
		if carr != lf.CarrFreq() || code != lf.CodeFreq() {
			t.Fatalf("Update return mismatched stored state")
		}
		if math.Abs(carr) > 1e-9 || math.Abs(code) > 1e-9 {
			t.Fatalf("Update on in-phase balanced taps = (%v, %v), want near zero", carr, code)
		}
	}
}

func TestAddCarrFreqResyncsState(t *testing.T) {
	var lf LoopFilter
	lf.Init(1000, 0, 1, 0.7, 1, 1540, 100, 10, 0.7, 1, 5)
	lf.AddCarrFreq(50)
	if lf.CarrFreq() != 150 {
		t.Fatalf("CarrFreq() after AddCarrFreq = %v, want 150", lf.CarrFreq())
	}
	if lf.CarrFiltY() != 150 {
		t.Fatalf("CarrFiltY() after AddCarrFreq = %v, want 150", lf.CarrFiltY())
	}
}

func TestRetuneKeepsIntegratorState(t *testing.T) {
	var lf LoopFilter
	lf.Init(1000, 0, 1, 0.7, 1, 1540, 42, 10, 0.7, 1, 5)
	before := lf.CarrFiltY()
	lf.Retune(200, 1, 0.7, 1, 1540, 50, 0.7, 1, 0)
	if lf.CarrFiltY() != before {
		t.Fatalf("Retune changed integrator state: before=%v after=%v", before, lf.CarrFiltY())
	}
}
