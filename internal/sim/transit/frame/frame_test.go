package frame

import (
	"testing"

	modelpkg "voxelgate.ai/internal/sim/transit/model"
)

type fakeView struct {
	frame map[modelpkg.Vec3i]bool
	gates map[modelpkg.Vec3i]modelpkg.Axis
}

func (f fakeView) IsFrameMaterial(p modelpkg.Vec3i) bool { return f.frame[p] }
func (f fakeView) GateAxisAt(p modelpkg.Vec3i) (modelpkg.Axis, bool) {
	a, ok := f.gates[p]
	return a, ok
}

func TestIsSupported(t *testing.T) {
	cell := modelpkg.Vec3i{X: 0, Y: 5, Z: 0}
	cases := []struct {
		name string
		view fakeView
		axis modelpkg.Axis
		want bool
	}{
		{
			name: "frame_below",
			view: fakeView{frame: map[modelpkg.Vec3i]bool{{X: 0, Y: 4, Z: 0}: true}},
			axis: modelpkg.AxisX,
			want: true,
		},
		{
			name: "frame_along_axis",
			view: fakeView{frame: map[modelpkg.Vec3i]bool{{X: 1, Y: 5, Z: 0}: true}},
			axis: modelpkg.AxisX,
			want: true,
		},
		{
			name: "frame_off_plane_ignored",
			view: fakeView{frame: map[modelpkg.Vec3i]bool{{X: 0, Y: 5, Z: 1}: true}},
			axis: modelpkg.AxisX,
			want: false,
		},
		{
			name: "frame_off_plane_for_z_axis",
			view: fakeView{frame: map[modelpkg.Vec3i]bool{{X: 0, Y: 5, Z: 1}: true}},
			axis: modelpkg.AxisZ,
			want: true,
		},
		{
			name: "same_axis_gate_neighbor",
			view: fakeView{gates: map[modelpkg.Vec3i]modelpkg.Axis{{X: 0, Y: 6, Z: 0}: modelpkg.AxisX}},
			axis: modelpkg.AxisX,
			want: true,
		},
		{
			name: "other_axis_gate_neighbor",
			view: fakeView{gates: map[modelpkg.Vec3i]modelpkg.Axis{{X: 0, Y: 6, Z: 0}: modelpkg.AxisZ}},
			axis: modelpkg.AxisX,
			want: false,
		},
		{
			name: "nothing",
			view: fakeView{},
			axis: modelpkg.AxisZ,
			want: false,
		},
	}
	for _, tc := range cases {
		if got := IsSupported(tc.view, cell, tc.axis); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestAffected(t *testing.T) {
	v := fakeView{gates: map[modelpkg.Vec3i]modelpkg.Axis{
		{X: 0, Y: 1, Z: 0}: modelpkg.AxisX,
		{X: 5, Y: 5, Z: 5}: modelpkg.AxisX,
	}}
	got := Affected(v, modelpkg.Vec3i{X: 0, Y: 0, Z: 0})
	if len(got) != 1 || got[0] != (modelpkg.Vec3i{X: 0, Y: 1, Z: 0}) {
		t.Fatalf("unexpected affected cells: %+v", got)
	}
}
