package loopparams

import "testing"

func TestParseDefaultSpec(t *testing.T) {
	stages, err := Parse(DefaultSpec)
	if err != nil {
		t.Fatalf("Parse(DefaultSpec) error: %v", err)
	}
	if stages[0].CoherentMs != 1 {
		t.Fatalf("stage0.CoherentMs = %d, want 1", stages[0].CoherentMs)
	}
	if stages[1].CoherentMs != 5 {
		t.Fatalf("stage1.CoherentMs = %d, want 5", stages[1].CoherentMs)
	}
	if stages[1].CarrBW != 50 {
		t.Fatalf("stage1.CarrBW = %v, want 50", stages[1].CarrBW)
	}
}

func TestParseSingleStageDuplicatesAcrossStages(t *testing.T) {
	stages, err := Parse("(1 ms, (1, 0.7, 1, 1540), (10, 0.7, 1, 5))")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if stages[0] != stages[1] {
		t.Fatalf("single-stage spec did not duplicate: %+v vs %+v", stages[0], stages[1])
	}
}

func TestParseRejectsNonOneMsStageZero(t *testing.T) {
	_, err := Parse("(2 ms, (1, 0.7, 1, 1540), (10, 0.7, 1, 5))")
	if err == nil {
		t.Fatalf("Parse() with stage-0 coherent_ms=2 should fail")
	}
}

func TestParseRejectsMalformedGrammar(t *testing.T) {
	_, err := Parse("not a spec at all")
	if err == nil {
		t.Fatalf("Parse() of garbage should fail")
	}
}

func TestParseRejectsInvalidCoherentMs(t *testing.T) {
	_, err := Parse("(1 ms, (1, 0.7, 1, 1540), (10, 0.7, 1, 5)), (3 ms, (1, 0.7, 1, 1540), (50, 0.7, 1, 0))")
	if err == nil {
		t.Fatalf("Parse() with stage-1 coherent_ms=3 (does not divide 20) should fail")
	}
}

func TestRoundTripSerialize(t *testing.T) {
	stages, err := Parse(DefaultSpec)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	serialized := Serialize(stages)
	roundTripped, err := Parse(serialized)
	if err != nil {
		t.Fatalf("Parse(Serialize(stages)) error: %v", err)
	}
	if roundTripped != stages {
		t.Fatalf("round trip mismatch: got %+v want %+v", roundTripped, stages)
	}
}
