package alias

import "testing"

func TestFirstSecondBelowHistoryLenReturnsZero(t *testing.T) {
	var d Detector
	d.SetHalfPeriod(0.001)
	d.First(1000, 0)
	if err := d.Second(1000, 0); err != 0 {
		t.Fatalf("Second() on first call = %v, want 0 (insufficient history)", err)
	}
}

func TestSecondWithoutHalfPeriodReturnsZero(t *testing.T) {
	var d Detector
	d.First(1000, 0)
	for i := 0; i < historyLen+1; i++ {
		d.First(1000, 0)
		if err := d.Second(1000, 0); err != 0 {
			t.Fatalf("Second() with no half-period configured = %v, want 0", err)
		}
	}
}

func TestResetClearsHistory(t *testing.T) {
	var d Detector
	d.SetHalfPeriod(0.001)
	for i := 0; i < historyLen; i++ {
		d.First(1000, 0)
		d.Second(1000, 0)
	}
	if len(d.history) == 0 {
		t.Fatalf("expected nonempty history before reset")
	}
	d.Reset()
	if len(d.history) != 0 {
		t.Fatalf("Reset() left history of length %d, want 0", len(d.history))
	}
}
