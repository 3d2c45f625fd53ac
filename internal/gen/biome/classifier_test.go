package biome

import (
	"testing"

	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/noise"
)

func testCatalog() *catalogs.BiomeCatalog {
	defs := []catalogs.BiomeDef{
		{ID: "DESERT", TempMin: 0.7, TempMax: 1.0, HumidityMin: 0.0, HumidityMax: 0.3},
		{ID: "FOREST", TempMin: 0.3, TempMax: 0.7, HumidityMin: 0.3, HumidityMax: 0.7},
		{ID: "PLAINS", TempMin: 0, TempMax: 1, HumidityMin: 0, HumidityMax: 1, Default: true},
	}
	cat := &catalogs.BiomeCatalog{
		Ordered: defs,
		Index:   map[string]uint16{},
		Defs:    map[string]catalogs.BiomeDef{},
	}
	for i, d := range defs {
		cat.Index[d.ID] = uint16(i)
		cat.Defs[d.ID] = d
	}
	return cat
}

func TestPickFirstMatch(t *testing.T) {
	cat := testCatalog()
	c := New(noise.NewField(1, noise.DefaultFrequencies()), cat, 4096, "")

	if got := c.Pick(0.8, 0.1); cat.Ordered[got].ID != "DESERT" {
		t.Fatalf("temp=0.8 humidity=0.1 classified as %s, want DESERT", cat.Ordered[got].ID)
	}
	if got := c.Pick(0.5, 0.5); cat.Ordered[got].ID != "FOREST" {
		t.Fatalf("temp=0.5 humidity=0.5 classified as %s, want FOREST", cat.Ordered[got].ID)
	}
	// Nothing narrower matches: fall through to the default.
	if got := c.Pick(0.1, 0.9); cat.Ordered[got].ID != "PLAINS" {
		t.Fatalf("unmatched signature classified as %s, want PLAINS default", cat.Ordered[got].ID)
	}
}

func TestDefaultResolution(t *testing.T) {
	cat := testCatalog()
	f := noise.NewField(1, noise.DefaultFrequencies())

	if c := New(f, cat, 4096, "FOREST"); cat.Ordered[c.DefaultID()].ID != "FOREST" {
		t.Fatal("named default not honored")
	}
	// Unknown name falls back to the flagged default.
	if c := New(f, cat, 4096, "NOPE"); cat.Ordered[c.DefaultID()].ID != "PLAINS" {
		t.Fatal("flagged default not honored")
	}
}

func TestTemperatureMonotonic(t *testing.T) {
	c := New(noise.NewField(1, noise.DefaultFrequencies()), testCatalog(), 4096, "")
	prev := -1.0
	for y := -8192; y <= 8192; y += 512 {
		temp := c.Temperature(y)
		if temp < prev {
			t.Fatalf("temperature not monotonic at y=%d", y)
		}
		if temp < 0 || temp > 1 {
			t.Fatalf("temperature out of range at y=%d: %v", y, temp)
		}
		prev = temp
	}
}

func TestClassifyStable(t *testing.T) {
	c := New(noise.NewField(99, noise.DefaultFrequencies()), testCatalog(), 4096, "")
	for i := 0; i < 50; i++ {
		x, y := i*37-500, i*91-700
		if c.Classify(x, y) != c.Classify(x, y) {
			t.Fatalf("classification flickered at (%d,%d)", x, y)
		}
	}
}
