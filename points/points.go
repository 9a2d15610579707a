// Package points loads the named robot-pose library from JSON once at
// startup, implemented with the standard library's encoding/json rather
// than a schema-validated parser.
package points

import (
	"encoding/json"
	"fmt"
	"os"
)

// Point is a single named robot pose: Cartesian coordinates plus the four
// joint angles needed to reach it without a path plan.
type Point struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	R    float64 `json:"r"`
	J1   float64 `json:"j1"`
	J2   float64 `json:"j2"`
	J3   float64 `json:"j3"`
	J4   float64 `json:"j4"`
}

// Library is a named-point lookup table loaded from a points file.
type Library struct {
	points map[string]Point
}

// Load reads a points file (a JSON array of Point) from path.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}
	var list []Point
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}
	lib := &Library{points: make(map[string]Point, len(list))}
	for _, p := range list {
		lib.points[p.Name] = p
	}
	return lib, nil
}

// Get looks up a named point.
func (l *Library) Get(name string) (Point, bool) {
	p, ok := l.points[name]
	return p, ok
}

// MustGet looks up a named point, panicking if it is absent. Intended for
// startup-time wiring of flow executors against a points file that has
// already been validated to contain the points a flow needs.
func (l *Library) MustGet(name string) Point {
	p, ok := l.points[name]
	if !ok {
		panic(fmt.Sprintf("points: no such point %q", name))
	}
	return p
}

// Names returns every point name in the library.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.points))
	for n := range l.points {
		names = append(names, n)
	}
	return names
}
