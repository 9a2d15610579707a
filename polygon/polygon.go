// Package polygon implements the protection-polygon inclusion test used
// to filter vision detections to the region eligible for picking. The 4
// configured vertices are accepted in any order: Polygon sorts them by
// polar angle around their centroid before running a standard ray-cast
// point-in-polygon test, so the predicate is permutation-invariant over
// its input vertices.
package polygon

import "math"

// Point is a world coordinate in millimeters.
type Point struct {
	X, Y float64
}

// Polygon is a 4-vertex convex quadrilateral protection region.
type Polygon struct {
	vertices [4]Point
}

// New builds a Polygon from 4 vertices in any order, normalizing them to
// a consistent winding by sorting around their centroid.
func New(vs [4]Point) Polygon {
	cx, cy := 0.0, 0.0
	for _, v := range vs {
		cx += v.X
		cy += v.Y
	}
	cx /= 4
	cy /= 4
	sorted := vs
	angle := func(p Point) float64 {
		return math.Atan2(p.Y-cy, p.X-cx)
	}
	// Insertion sort: 4 elements, no need for anything fancier.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && angle(sorted[j]) < angle(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return Polygon{vertices: sorted}
}

// Contains reports whether p lies inside the polygon, using a standard
// ray-cast (even-odd rule) test.
func (poly Polygon) Contains(p Point) bool {
	v := poly.vertices
	inside := false
	for i, j := 0, len(v)-1; i < len(v); j, i = i, i+1 {
		vi, vj := v[i], v[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) &&
			p.X < (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
	}
	return inside
}
