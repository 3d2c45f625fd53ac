// Package noise provides the deterministic coherent-noise sampler behind
// terrain, biome, cave and structure placement. Each kind owns an independent
// seed offset and frequency so tuning one feature never perturbs another.
package noise

import (
	"github.com/aquilax/go-perlin"

	"overwild.dev/internal/gen/mathx"
)

type Kind int

const (
	KindTerrain Kind = iota
	KindBiome
	KindCave
	KindStructure
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindTerrain:
		return "terrain"
	case KindBiome:
		return "biome"
	case KindCave:
		return "cave"
	case KindStructure:
		return "structure"
	}
	return "unknown"
}

// Per-kind seed salts. Fixed constants: changing one regenerates only the
// worlds that sample that kind.
var kindSalt = [kindCount]int64{
	KindTerrain:   0x7e11a1,
	KindBiome:     0xb10e02,
	KindCave:      0xca5e03,
	KindStructure: 0x57c704,
}

type Frequencies struct {
	Terrain   float64
	Biome     float64
	Cave      float64
	Structure float64
}

func DefaultFrequencies() Frequencies {
	return Frequencies{
		Terrain:   0.02,
		Biome:     0.005,
		Cave:      0.08,
		Structure: 0.05,
	}
}

type channel struct {
	p    *perlin.Perlin
	freq float64
}

// Field is immutable after construction and safe for concurrent sampling.
type Field struct {
	seed     int64
	channels [kindCount]channel
}

func NewField(seed int64, freqs Frequencies) *Field {
	f := &Field{seed: seed}
	byKind := [kindCount]float64{
		KindTerrain:   freqs.Terrain,
		KindBiome:     freqs.Biome,
		KindCave:      freqs.Cave,
		KindStructure: freqs.Structure,
	}
	for k := Kind(0); k < kindCount; k++ {
		fr := byKind[k]
		if fr <= 0 {
			fr = 0.01
		}
		f.channels[k] = channel{
			p:    perlin.NewPerlin(2, 2, 3, seed^kindSalt[k]),
			freq: fr,
		}
	}
	return f
}

func (f *Field) Seed() int64 { return f.seed }

// Sample returns coherent noise in [-1,1] for the given kind at a world tile
// position. Deterministic for fixed (seed, kind, x, y).
func (f *Field) Sample(k Kind, x, y int) float64 {
	if k < 0 || k >= kindCount {
		return 0
	}
	ch := f.channels[k]
	// go-perlin stays roughly in [-1,1] but can overshoot slightly; clamp so
	// downstream threshold bands see a closed interval.
	return mathx.ClampF(ch.p.Noise2D(float64(x)*ch.freq, float64(y)*ch.freq), -1, 1)
}

// Unit maps a sample into [0,1].
func Unit(v float64) float64 {
	return (v + 1) / 2
}
