package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := "tick_rate_hz: 10\ntransit:\n  charge_ticks: 40\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tn, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tn.TickRateHz != 10 || tn.Transit.ChargeTicks != 40 {
		t.Fatalf("overrides not applied: %+v", tn)
	}
	if tn.Transit.LandingDropSteps != 15 || tn.Transit.StabilizerItem != "RIFT_ANCHOR" {
		t.Fatalf("defaults lost: %+v", tn.Transit)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("transit:\n  frame_check_permille: 2000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoad_ShippedTuningMatchesDefaults(t *testing.T) {
	tn, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load configs/tuning.yaml: %v", err)
	}
	if tn != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from defaults:\n got  %+v\n want %+v", tn, Defaults())
	}
}
