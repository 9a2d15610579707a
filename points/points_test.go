package points

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempPoints(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "points.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndGet(t *testing.T) {
	path := writeTempPoints(t, `[
		{"name": "pick_home", "x": 100, "y": 0, "z": 50, "r": 0, "j1": 0, "j2": 0, "j3": 0, "j4": 0},
		{"name": "place_bin", "x": 200, "y": 100, "z": 60, "r": 90, "j1": 10, "j2": 20, "j3": 30, "j4": 40}
	]`)

	lib, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := lib.Get("place_bin")
	if !ok {
		t.Fatal("place_bin not found")
	}
	if p.X != 200 || p.R != 90 {
		t.Errorf("place_bin = %+v, unexpected fields", p)
	}
	if _, ok := lib.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}
}

func TestMustGetPanicsOnMissing(t *testing.T) {
	path := writeTempPoints(t, `[]`)
	lib, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("MustGet did not panic on missing point")
		}
	}()
	lib.MustGet("nope")
}
