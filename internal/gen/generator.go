// Package gen orchestrates chunk generation: terrain, biomes, caves,
// structures and resources, as a pure function of (seed, chunk key,
// registries, tuning).
package gen

import (
	"io"
	"log"
	"math/rand"

	"overwild.dev/internal/gen/biome"
	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/chunk"
	"overwild.dev/internal/gen/mathx"
	"overwild.dev/internal/gen/noise"
	"overwild.dev/internal/gen/structure"
	"overwild.dev/internal/gen/tuning"
)

// Per-stage seed salts, so cave rolls never correlate with resource rolls.
const (
	saltCaveOre   = 0x0ca_0e1
	saltStructure = 0x57a_b1e
	saltResource  = 0x2e5_0a2
)

type Generator struct {
	seed       int64
	field      *noise.Field
	classifier *biome.Classifier
	cats       *catalogs.Catalogs
	tune       tuning.Tuning
	log        *log.Logger
}

func New(seed int64, cats *catalogs.Catalogs, tune tuning.Tuning, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	field := noise.NewField(seed, noise.Frequencies{
		Terrain:   tune.Noise.TerrainFreq,
		Biome:     tune.Noise.BiomeFreq,
		Cave:      tune.Noise.CaveFreq,
		Structure: tune.Noise.StructureFreq,
	})
	return &Generator{
		seed:       seed,
		field:      field,
		classifier: biome.New(field, &cats.Biomes, tune.LatitudeScale, tune.DefaultBiome),
		cats:       cats,
		tune:       tune,
		log:        logger,
	}
}

func (g *Generator) Seed() int64                   { return g.seed }
func (g *Generator) ChunkSize() int                { return g.tune.ChunkSize }
func (g *Generator) Classifier() *biome.Classifier { return g.classifier }

// BandFor maps a unit height to a terrain band. Monotonic: higher heights
// never map to a lower band.
func BandFor(h float64, t tuning.Terrain) uint8 {
	switch {
	case h <= t.WaterMax:
		return chunk.TerrainWater
	case h <= t.SandMax:
		return chunk.TerrainSand
	case h <= t.GrassMax:
		return chunk.TerrainGrass
	case h <= t.StoneMax:
		return chunk.TerrainStone
	default:
		return chunk.TerrainSnow
	}
}

// Generate runs the full pipeline for one chunk. It is total: every stage
// falls back to "place nothing" rather than failing, so the worst outcome is
// an under-decorated chunk.
func (g *Generator) Generate(key chunk.Key) *chunk.Chunk {
	ch := chunk.New(key, g.tune.ChunkSize)
	g.genTerrain(ch)
	g.genBiomes(ch)
	g.carveCaves(ch)
	g.placeStructures(ch)
	g.placeResources(ch)
	ch.Generated = true
	_ = ch.Digest()
	return ch
}

// heightAt is the unit terrain height at a world tile: terrain noise plus the
// registry height bias of the biome at that position. Both terms are pure
// functions of world position, so chunk seams stay continuous.
func (g *Generator) heightAt(wx, wy int) float64 {
	h := noise.Unit(g.field.Sample(noise.KindTerrain, wx, wy))
	def := g.classifier.ClassifyDef(wx, wy)
	return mathx.ClampF(h+def.HeightBias, 0, 1)
}

func (g *Generator) genTerrain(ch *chunk.Chunk) {
	ox, oy := ch.Key.Origin(ch.Size)
	for y := 0; y < ch.Size; y++ {
		for x := 0; x < ch.Size; x++ {
			ch.SetTerrain(x, y, BandFor(g.heightAt(ox+x, oy+y), g.tune.Terrain))
		}
	}
}

func (g *Generator) genBiomes(ch *chunk.Chunk) {
	ox, oy := ch.Key.Origin(ch.Size)
	for y := 0; y < ch.Size; y++ {
		for x := 0; x < ch.Size; x++ {
			ch.SetBiome(x, y, g.classifier.Classify(ox+x, oy+y))
		}
	}
}

func (g *Generator) carveCaves(ch *chunk.Chunk) {
	ox, oy := ch.Key.Origin(ch.Size)
	for y := 0; y < ch.Size; y++ {
		for x := 0; x < ch.Size; x++ {
			if g.field.Sample(noise.KindCave, ox+x, oy+y) >= g.tune.Caves.Cutoff {
				continue
			}
			ch.SetTerrain(x, y, chunk.TerrainAir)
			// Each carved tile independently rolls an embedded resource.
			if g.tune.Caves.OrePermille > 0 &&
				mathx.Hash2(g.seed^saltCaveOre, ox+x, oy+y)%1000 < uint64(g.tune.Caves.OrePermille) {
				ch.Resources = append(ch.Resources, chunk.ResourceSpawn{
					ID:  g.tune.Caves.OreID,
					Pos: chunk.Point{X: ox + x, Y: oy + y},
				})
			}
		}
	}
}

// DominantBiome returns the most frequent biome palette id in the chunk,
// lowest id winning ties.
func DominantBiome(ch *chunk.Chunk) uint16 {
	counts := map[uint16]int{}
	for _, b := range ch.Biomes {
		counts[b]++
	}
	var best uint16
	bestN := -1
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}
	return best
}

func (g *Generator) placeStructures(ch *chunk.Chunk) {
	domID := DominantBiome(ch)
	dom, ok := g.cats.Biomes.ByPalette(domID)
	if !ok {
		g.log.Printf("chunk %v: dominant biome id %d not in registry, skipping structures", ch.Key, domID)
		return
	}
	for _, tplID := range dom.Structures {
		tpl, ok := g.cats.Structures.Defs[tplID]
		if !ok {
			g.log.Printf("chunk %v: biome %s references unknown structure %q, skipping", ch.Key, dom.ID, tplID)
			continue
		}
		// One Bernoulli trial per allowed template.
		h := mathx.HashString(mathx.Hash2(g.seed^saltStructure, ch.Key.CX, ch.Key.CY), tpl.ID)
		if h%1000 >= uint64(tpl.SpawnPermille) {
			continue
		}
		g.tryPlaceStructure(ch, tpl)
	}
}

// tryPlaceStructure searches for an anchor within the retry budget.
// Exhausting the budget is expected sparse placement, not an error.
func (g *Generator) tryPlaceStructure(ch *chunk.Chunk, tpl catalogs.StructureDef) {
	ox, oy := ch.Key.Origin(ch.Size)
	for attempt := 0; attempt < g.tune.Placement.AnchorRetries; attempt++ {
		rng := rand.New(rand.NewSource(structure.Seed(g.seed, ch.Key, tpl.ID, attempt)))
		anchor := chunk.Point{X: ox + rng.Intn(ch.Size), Y: oy + rng.Intn(ch.Size)}
		footprint := chunk.Rect{X: anchor.X, Y: anchor.Y, W: tpl.MaxSize[0], H: tpl.MaxSize[1]}

		if !g.anchorSuits(ch, tpl, anchor, footprint) {
			continue
		}
		inst := structure.Synthesize(tpl, anchor, rng, g.tune.Placement.RoomRetries)
		ch.Structures = append(ch.Structures, inst)
		return
	}
}

func (g *Generator) anchorSuits(ch *chunk.Chunk, tpl catalogs.StructureDef, anchor chunk.Point, footprint chunk.Rect) bool {
	// Anchor tile must sit in a biome the template allows.
	ox, oy := ch.Key.Origin(ch.Size)
	bid := ch.BiomeAt(anchor.X-ox, anchor.Y-oy)
	if def, ok := g.cats.Biomes.ByPalette(bid); !ok || !tpl.AllowedIn(def.ID) {
		return false
	}
	// No overlap with structures already placed in this chunk.
	for _, other := range ch.Structures {
		if footprint.Intersects(other.Bounds()) {
			return false
		}
	}
	// Flat enough: the in-chunk part of the footprint holds no water or air,
	// and its band spread stays within the configured tolerance.
	minBand, maxBand := -1, -1
	for y := footprint.Y; y < footprint.Y+footprint.H; y++ {
		for x := footprint.X; x < footprint.X+footprint.W; x++ {
			lx, ly := x-ox, y-oy
			if lx < 0 || lx >= ch.Size || ly < 0 || ly >= ch.Size {
				continue
			}
			t := ch.TerrainAt(lx, ly)
			if t == chunk.TerrainWater || t == chunk.TerrainAir {
				return false
			}
			b := int(t)
			if minBand == -1 || b < minBand {
				minBand = b
			}
			if b > maxBand {
				maxBand = b
			}
		}
	}
	return minBand != -1 && maxBand-minBand <= g.tune.Placement.FlatnessMaxSpread
}

func (g *Generator) placeResources(ch *chunk.Chunk) {
	domID := DominantBiome(ch)
	dom, ok := g.cats.Biomes.ByPalette(domID)
	if !ok {
		g.log.Printf("chunk %v: dominant biome id %d not in registry, skipping resources", ch.Key, domID)
		return
	}
	for _, entry := range dom.Resources {
		h := mathx.HashString(mathx.Hash2(g.seed^saltResource, ch.Key.CX, ch.Key.CY), entry.ID)
		if h%1000 >= uint64(entry.Permille) {
			continue
		}
		rng := rand.New(rand.NewSource(int64(h)))
		g.tryPlaceResource(ch, entry.ID, rng)
	}
}

func (g *Generator) tryPlaceResource(ch *chunk.Chunk, id string, rng *rand.Rand) {
	ox, oy := ch.Key.Origin(ch.Size)
	for attempt := 0; attempt < g.tune.Placement.ResourceRetries; attempt++ {
		x, y := rng.Intn(ch.Size), rng.Intn(ch.Size)
		if ch.TerrainAt(x, y) == chunk.TerrainAir {
			continue
		}
		ch.Resources = append(ch.Resources, chunk.ResourceSpawn{
			ID:  id,
			Pos: chunk.Point{X: ox + x, Y: oy + y},
		})
		return
	}
}
