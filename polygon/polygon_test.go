package polygon

import (
	"math/rand"
	"testing"
)

func square() [4]Point {
	return [4]Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
}

func TestContainsInsideOutside(t *testing.T) {
	p := New(square())
	if !p.Contains(Point{5, 5}) {
		t.Error("center should be inside")
	}
	if p.Contains(Point{15, 15}) {
		t.Error("outside point reported inside")
	}
}

func TestPermutationInvariant(t *testing.T) {
	vs := square()
	base := New(vs)
	probe := Point{3, 7}
	want := base.Contains(probe)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := vs
		r.Shuffle(4, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := New(shuffled).Contains(probe)
		if got != want {
			t.Errorf("permutation %v: Contains = %v, want %v", shuffled, got, want)
		}
	}
}
