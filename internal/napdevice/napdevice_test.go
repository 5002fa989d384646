package napdevice

import (
	"errors"
	"testing"
)

func TestCodeWriteOutOfRangeChannel(t *testing.T) {
	d := NewSimDevice(4, 1)
	if err := d.CodeWrite(10, 5); err == nil {
		t.Fatalf("CodeWrite with out-of-range channel should error")
	}
}

func TestCorrReadBeforeEnableReturnsZero(t *testing.T) {
	d := NewSimDevice(4, 1)
	samples, corrs, err := d.CorrRead(0)
	if err != nil {
		t.Fatalf("CorrRead error: %v", err)
	}
	if samples != 0 || corrs != ([3]Correlation{}) {
		t.Fatalf("CorrRead on disabled channel should be zero, got samples=%d corrs=%+v", samples, corrs)
	}
}

func TestCorrReadAfterInit(t *testing.T) {
	d := NewSimDevice(4, 1)
	if err := d.CodeWrite(0, 5); err != nil {
		t.Fatalf("CodeWrite error: %v", err)
	}
	if err := d.InitWrite(0, 5, 0, 0); err != nil {
		t.Fatalf("InitWrite error: %v", err)
	}
	if err := d.UpdateWrite(0, 1000, 2000, 0, 0); err != nil {
		t.Fatalf("UpdateWrite error: %v", err)
	}
	samples, corrs, err := d.CorrRead(0)
	if err != nil {
		t.Fatalf("CorrRead error: %v", err)
	}
	if samples == 0 {
		t.Fatalf("expected nonzero sample count after enable")
	}
	if corrs[1].I <= corrs[0].I || corrs[1].I <= corrs[2].I {
		t.Fatalf("expected prompt tap to dominate: %+v", corrs)
	}
}

func TestWriteRetriesThroughTransientFailure(t *testing.T) {
	d := NewSimDevice(4, 1)
	attempts := 0
	d.SetFailureInjector(func(op string, channel int) error {
		if op == "code_wr" {
			attempts++
			if attempts < 3 {
				return errors.New("transient NAP bus error")
			}
		}
		return nil
	})
	if err := d.CodeWrite(0, 7); err != nil {
		t.Fatalf("CodeWrite should have succeeded after retries, got: %v", err)
	}
	if attempts < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", attempts)
	}
}

func TestWriteSurfacesPersistentFailure(t *testing.T) {
	d := NewSimDevice(4, 1)
	d.SetFailureInjector(func(op string, channel int) error {
		return errors.New("permanently stuck bus")
	})
	if err := d.CodeWrite(0, 7); err == nil {
		t.Fatalf("CodeWrite should fail once retry budget is exhausted")
	}
}
