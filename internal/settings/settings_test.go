package settings

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s != Default() {
		t.Fatalf("Load() on missing file = %+v, want %+v", s, Default())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	want := Default()
	want.NChannels = 4
	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestValidateRejectsBadLoopParams(t *testing.T) {
	s := Default()
	s.LoopParamsSpec = "garbage"
	if _, err := s.Validate(); err == nil {
		t.Fatalf("Validate() with malformed loop_params should fail")
	}
}

func TestValidateRejectsNonPositiveChannelCount(t *testing.T) {
	s := Default()
	s.NChannels = 0
	if _, err := s.Validate(); err == nil {
		t.Fatalf("Validate() with n_channels=0 should fail")
	}
}
