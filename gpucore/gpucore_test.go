package gpucore

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

type stubFence struct {
	ok  bool
	err error
}

func (f stubFence) Signalled() (bool, error) { return f.ok, f.err }

func TestFenceSignalled(t *testing.T) {
	tests := []struct {
		name  string
		fence Fence
		want  bool
	}{
		{"nil", nil, true},
		{"always", SignalledFence{}, true},
		{"pending", stubFence{ok: false}, false},
		{"done", stubFence{ok: true}, true},
		{"error", stubFence{ok: true, err: errors.New("lost")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FenceSignalled(tt.fence); got != tt.want {
				t.Errorf("FenceSignalled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWarpUniformsBytes(t *testing.T) {
	u := WarpUniforms{Eye: 1, TilesWide: 40, TilesHigh: 45, FractionOffset: 0.5, Layer: 1, ViewportWidth: 960, ViewportHeight: 1080}
	u.Start[0] = 2
	u.End[15] = 3

	b := u.Bytes()
	if len(b) != WarpUniformsSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), WarpUniformsSize)
	}
	read := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	if read(0) != 2 {
		t.Errorf("start[0] = %v, want 2", read(0))
	}
	if read(31) != 3 {
		t.Errorf("end[15] = %v, want 3", read(31))
	}
	if read(32) != 1 || read(33) != 40 || read(34) != 45 || read(35) != 0.5 {
		t.Errorf("params = %v %v %v %v, want 1 40 45 0.5", read(32), read(33), read(34), read(35))
	}
	if read(36) != 1 || read(37) != 960 || read(38) != 1080 || read(39) != 0 {
		t.Errorf("target = %v %v %v %v, want 1 960 1080 0", read(36), read(37), read(38), read(39))
	}
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		n, local, want uint32
	}{
		{0, 8, 0},
		{1, 8, 1},
		{8, 8, 1},
		{9, 8, 2},
		{41, 8, 6},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := WorkgroupCount(tt.n, tt.local); got != tt.want {
			t.Errorf("WorkgroupCount(%d, %d) = %d, want %d", tt.n, tt.local, got, tt.want)
		}
	}
}
