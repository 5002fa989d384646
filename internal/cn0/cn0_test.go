package cn0

import "testing"

func TestInitSeedsValue(t *testing.T) {
	var e Estimator
	e.Init(42.0, 0.001)
	if e.CN0() != 42.0 {
		t.Fatalf("CN0() = %v, want 42.0", e.CN0())
	}
}

func TestUpdateStrongSignalRaisesEstimate(t *testing.T) {
	var e Estimator
	e.Init(20.0, 0.001)
	for w := 0; w < 5; w++ {
		for i := 0; i < windowSize; i++ {
			e.Update(1000, 0)
		}
	}
	if e.CN0() <= 20.0 {
		t.Fatalf("CN0() = %v, expected improvement above seed for a noiseless strong prompt", e.CN0())
	}
}

func TestUpdateOnlyChangesEveryWindow(t *testing.T) {
	var e Estimator
	e.Init(20.0, 0.001)
	for i := 0; i < windowSize-1; i++ {
		e.Update(1000, 0)
	}
	if e.CN0() != 20.0 {
		t.Fatalf("CN0() changed before a full window completed: got %v", e.CN0())
	}
}
