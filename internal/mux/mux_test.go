package mux

import (
	"math"
	"testing"

	"github.com/andresmejia3/hyperredact/internal/types"
)

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Rectangle
		want float64
	}{
		{"Identical", types.Rect(0, 0, 10, 10), types.Rect(0, 0, 10, 10), 1.0},
		{"Contained", types.Rect(0, 0, 10, 10), types.Rect(1, 1, 9, 9), 1.0},
		{"Quarter", types.Rect(0, 0, 10, 10), types.Rect(5, 5, 10, 10), 0.25},
		{"Disjoint", types.Rect(0, 0, 10, 10), types.Rect(50, 50, 10, 10), 0.0},
		{"Empty box", types.Rect(0, 0, 0, 10), types.Rect(0, 0, 10, 10), 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlap(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Overlap(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMuxHighOverlapMerges(t *testing.T) {
	in := []types.Rectangle{types.Rect(0, 0, 10, 10), types.Rect(1, 1, 9, 9)}
	got := New(DefaultThreshold).Mux(in)

	if len(got) != 1 {
		t.Fatalf("Expected 1 face box, got %d: %v", len(got), got)
	}
	largest := 0
	for _, r := range in {
		largest = max(largest, r.Area())
	}
	if got[0].Area() < largest {
		t.Errorf("Merged box %v is smaller than the largest input (%d)", got[0], largest)
	}
}

func TestMuxDisjointIsIdentity(t *testing.T) {
	in := []types.Rectangle{types.Rect(0, 0, 10, 10), types.Rect(50, 50, 10, 10)}
	got := New(DefaultThreshold).Mux(in)

	if len(got) != 2 {
		t.Fatalf("Expected 2 face boxes, got %d: %v", len(got), got)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("box %d = %v, want %v", i, got[i], in[i])
		}
	}
}

func TestMuxEdgeCases(t *testing.T) {
	m := New(DefaultThreshold)

	if got := m.Mux(nil); len(got) != 0 {
		t.Errorf("Mux(nil) = %v, want empty", got)
	}

	dupes := []types.Rectangle{types.Rect(3, 3, 4, 4), types.Rect(3, 3, 4, 4), types.Rect(3, 3, 4, 4)}
	if got := m.Mux(dupes); len(got) != 1 || got[0] != types.Rect(3, 3, 4, 4) {
		t.Errorf("Exact duplicates = %v, want single (3,3,4,4)", got)
	}

	malformed := []types.Rectangle{types.Rect(0, 0, 0, 10), types.Rect(5, 5, 10, -2), types.Rect(20, 20, 5, 5)}
	if got := m.Mux(malformed); len(got) != 1 || got[0] != types.Rect(20, 20, 5, 5) {
		t.Errorf("Malformed input = %v, want only (20,20,5,5)", got)
	}
}

func TestMuxChainMergeKeepsInvariant(t *testing.T) {
	// The first two merge into a box that then swallows the third.
	in := []types.Rectangle{
		types.Rect(0, 0, 10, 10),
		types.Rect(4, 0, 10, 10),
		types.Rect(11, 0, 4, 10),
	}
	m := New(DefaultThreshold)
	got := m.Mux(in)

	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if Overlap(got[i], got[j]) > m.Threshold {
				t.Errorf("boxes %v and %v still overlap above threshold", got[i], got[j])
			}
		}
	}
	if len(got) != 1 || got[0] != types.Rect(0, 0, 15, 10) {
		t.Errorf("Chain merge = %v, want [(0,0,15,10)]", got)
	}
}

func TestMuxClipsToBounds(t *testing.T) {
	m := New(DefaultThreshold)
	m.Bounds = types.Rect(0, 0, 100, 100)

	got := m.Mux([]types.Rectangle{types.Rect(90, 90, 20, 20), types.Rect(200, 200, 5, 5)})
	if len(got) != 1 || got[0] != types.Rect(90, 90, 10, 10) {
		t.Errorf("Clipped = %v, want [(90,90,10,10)]", got)
	}
}
