package liburing_test

import (
	"testing"

	"github.com/ringbahn/iou/pkg/liburing"
)

func TestRoundupPow2(t *testing.T) {
	cases := [][2]uint32{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {1023, 1024}, {1024, 1024}, {4095, 4096},
	}
	for _, c := range cases {
		if got := liburing.RoundupPow2(c[0]); got != c[1] {
			t.Error("RoundupPow2:", c[0], "got", got, "want", c[1])
		}
	}
}

func TestFloorPow2(t *testing.T) {
	cases := [][2]uint32{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {4, 4}, {5, 4}, {1023, 512}, {1024, 1024},
	}
	for _, c := range cases {
		if got := liburing.FloorPow2(c[0]); got != c[1] {
			t.Error("FloorPow2:", c[0], "got", got, "want", c[1])
		}
	}
}
