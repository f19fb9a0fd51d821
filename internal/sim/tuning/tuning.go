package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Transit Transit `yaml:"transit"`
}

type Transit struct {
	ChargeTicks     int `yaml:"charge_ticks"`
	ReentryDistance int `yaml:"reentry_distance"`
	ReentryTickGap  int `yaml:"reentry_tick_gap"`

	LandingDropSteps    int `yaml:"landing_drop_steps"`
	LandingSearchRadius int `yaml:"landing_search_radius"`
	ArrivalSearchRadius int `yaml:"arrival_search_radius"`
	StabilizeRadius     int `yaml:"stabilize_radius"`
	PeerSearchRadius    int `yaml:"peer_search_radius"`

	FrameCheckPermille   int `yaml:"frame_check_permille"`
	SweepPermille        int `yaml:"sweep_permille"`
	LinkRepairEveryTicks int `yaml:"link_repair_every_ticks"`

	StabilizerItem string `yaml:"stabilizer_item"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		Transit: Transit{
			ChargeTicks:          80,
			ReentryDistance:      5,
			ReentryTickGap:       20,
			LandingDropSteps:     15,
			LandingSearchRadius:  2,
			ArrivalSearchRadius:  6,
			StabilizeRadius:      4,
			PeerSearchRadius:     16,
			FrameCheckPermille:   20,
			SweepPermille:        5,
			LinkRepairEveryTicks: 1200,
			StabilizerItem:       "RIFT_ANCHOR",
		},
	}
}

// Load reads tuning.yaml over the defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	tr := t.Transit
	if tr.ChargeTicks <= 0 {
		return fmt.Errorf("transit.charge_ticks must be > 0")
	}
	if tr.ReentryDistance <= 0 || tr.ReentryTickGap <= 0 {
		return fmt.Errorf("transit.reentry_distance and transit.reentry_tick_gap must be > 0")
	}
	if tr.LandingDropSteps <= 0 || tr.LandingDropSteps > 256 {
		return fmt.Errorf("transit.landing_drop_steps must be in [1, 256]")
	}
	if tr.LandingSearchRadius < 0 || tr.LandingSearchRadius > 16 {
		return fmt.Errorf("transit.landing_search_radius must be in [0, 16]")
	}
	if tr.ArrivalSearchRadius < 0 || tr.StabilizeRadius <= 0 || tr.PeerSearchRadius < 0 {
		return fmt.Errorf("transit search radii must be >= 0 (stabilize_radius > 0)")
	}
	if tr.FrameCheckPermille < 0 || tr.FrameCheckPermille > 1000 {
		return fmt.Errorf("transit.frame_check_permille must be in [0, 1000]")
	}
	if tr.SweepPermille < 0 || tr.SweepPermille > 1000 {
		return fmt.Errorf("transit.sweep_permille must be in [0, 1000]")
	}
	if tr.LinkRepairEveryTicks < 0 {
		return fmt.Errorf("transit.link_repair_every_ticks must be >= 0")
	}
	if strings.TrimSpace(tr.StabilizerItem) == "" {
		return fmt.Errorf("transit.stabilizer_item must not be empty")
	}
	return nil
}
