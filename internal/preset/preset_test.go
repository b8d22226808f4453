package preset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crateforge/internal/apperror"
)

func TestCurveBuildupIsMonotonic(t *testing.T) {
	c := Curve(CurveBuildup)
	for i := 1; i < len(c); i++ {
		if c[i] < c[i-1] {
			t.Fatalf("buildup curve not monotonic at %d: %v", i, c)
		}
	}
	if c[0] != 0 {
		t.Errorf("buildup curve should start at 0, got %v", c[0])
	}
}

func TestCurveUnknownNameFallsBackToFlat(t *testing.T) {
	c := Curve(NamedCurve("made-up"))
	for _, v := range c {
		if v != 0.5 {
			t.Fatalf("expected flat 0.5 fallback, got %v", c)
		}
	}
}

func TestWeightsNormalized(t *testing.T) {
	w := Weights{Harmony: 3, BPM: 2, Energy: 3, Mood: 1.5, Freshness: 0.5}
	n := w.Normalized()

	sum := n.Harmony + n.BPM + n.Energy + n.Mood + n.Freshness
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("normalized weights sum to %v, want 1.0", sum)
	}
}

func TestWeightsNormalizedZeroFallsBackToDefault(t *testing.T) {
	n := Weights{}.Normalized()
	if n != DefaultWeights {
		t.Errorf("zero weights should normalize to defaults, got %+v", n)
	}
}

func TestPresetEnergyCurvePrefersExplicitOverNamed(t *testing.T) {
	explicit := make([]float64, CurveLength)
	for i := range explicit {
		explicit[i] = 0.25
	}

	p := Preset{TargetEnergyCurve: explicit, NamedEnergyCurve: CurveBuildup}
	c := p.EnergyCurve()
	if c[0] != 0.25 || c[CurveLength-1] != 0.25 {
		t.Errorf("expected explicit curve to win, got %v", c)
	}
}

func TestValidateRejectsOutOfRangeStrictness(t *testing.T) {
	p := Preset{Name: "x", HarmonyStrictness: 1.5}
	if apperror.CodeOf(p.Validate()) != apperror.InvalidArgument {
		t.Fatalf("expected InvalidArgument")
	}
}

func TestValidateRejectsWrongCurveLength(t *testing.T) {
	p := Preset{Name: "x", TargetEnergyCurve: []float64{0.1, 0.2}}
	if apperror.CodeOf(p.Validate()) != apperror.InvalidArgument {
		t.Fatalf("expected InvalidArgument")
	}
}

func writePresetFile(t *testing.T, dir, name string, p Preset) {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRegistryLoadsPresetsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "buildup", Preset{Name: "buildup", HarmonyStrictness: 0.5, MoodConsistency: 0.5})

	reg, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	p, err := reg.Get("buildup")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Name != "buildup" {
		t.Errorf("Name = %q, want buildup", p.Name)
	}
}

func TestRegistryGetUnknownIsNotFound(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	_, err = reg.Get("nope")
	if apperror.CodeOf(err) != apperror.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRegistryHotReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()

	reg, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	writePresetFile(t, dir, "club", Preset{Name: "club", HarmonyStrictness: 0.8, MoodConsistency: 0.5})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := reg.Get("club"); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("preset was not hot-reloaded within the deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRegistryListSortedByName(t *testing.T) {
	dir := t.TempDir()
	writePresetFile(t, dir, "zzz", Preset{Name: "zzz"})
	writePresetFile(t, dir, "aaa", Preset{Name: "aaa"})

	reg, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	list := reg.List()
	if len(list) != 2 || list[0].Name != "aaa" || list[1].Name != "zzz" {
		t.Fatalf("unexpected order: %+v", list)
	}
}
