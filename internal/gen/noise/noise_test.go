package noise

import "testing"

func TestSampleDeterministic(t *testing.T) {
	a := NewField(42, DefaultFrequencies())
	b := NewField(42, DefaultFrequencies())
	for _, k := range []Kind{KindTerrain, KindBiome, KindCave, KindStructure} {
		for i := -50; i < 50; i += 7 {
			if a.Sample(k, i, -i*3) != b.Sample(k, i, -i*3) {
				t.Fatalf("kind %v not deterministic at %d", k, i)
			}
		}
	}
}

func TestSampleInRange(t *testing.T) {
	f := NewField(1337, DefaultFrequencies())
	for x := -200; x < 200; x += 13 {
		for y := -200; y < 200; y += 17 {
			v := f.Sample(KindTerrain, x, y)
			if v < -1 || v > 1 {
				t.Fatalf("sample out of range at (%d,%d): %v", x, y, v)
			}
		}
	}
}

func TestKindsIndependent(t *testing.T) {
	f := NewField(7, DefaultFrequencies())
	same := true
	for x := 0; x < 64; x++ {
		if f.Sample(KindTerrain, x, 0) != f.Sample(KindCave, x, 0) {
			same = false
			break
		}
	}
	if same {
		t.Fatal("terrain and cave channels produced identical samples")
	}
}

func TestSeedChangesField(t *testing.T) {
	a := NewField(1, DefaultFrequencies())
	b := NewField(2, DefaultFrequencies())
	same := true
	for x := 0; x < 64; x++ {
		if a.Sample(KindTerrain, x, x) != b.Sample(KindTerrain, x, x) {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical terrain")
	}
}
