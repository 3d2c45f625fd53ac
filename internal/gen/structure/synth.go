// Package structure lays out procedural interiors: axis-aligned rooms carved
// into a wall-filled bounding box, linked by probabilistic L-shaped corridors.
package structure

import (
	"math/rand"

	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/chunk"
	"overwild.dev/internal/gen/mathx"
)

// Seed derives the PRNG seed for one synthesis attempt. Every attempt gets an
// independent stream keyed by (world seed, chunk, template, attempt), so
// layout is reproducible on any thread regardless of generation order.
func Seed(worldSeed int64, key chunk.Key, templateID string, attempt int) int64 {
	h := mathx.Hash3(worldSeed, key.CX, key.CY, attempt)
	return int64(mathx.HashString(h, templateID))
}

// Synthesize builds a structure instance at anchor. It is total: with a
// footprint too small for rooms it still returns a valid all-wall instance.
func Synthesize(tpl catalogs.StructureDef, anchor chunk.Point, rng *rand.Rand, roomRetries int) chunk.StructureInstance {
	w := spanBetween(rng, tpl.MinSize[0], tpl.MaxSize[0])
	h := spanBetween(rng, tpl.MinSize[1], tpl.MaxSize[1])

	inst := chunk.StructureInstance{
		TemplateID: tpl.ID,
		Anchor:     anchor,
		W:          w,
		H:          h,
		Layout:     make([]uint8, w*h),
	}
	for i := range inst.Layout {
		inst.Layout[i] = chunk.CellWall
	}

	if roomRetries <= 0 {
		roomRetries = 1
	}

	for i := 0; i < tpl.RoomCount; i++ {
		room, ok := placeRoom(rng, tpl, w, h, inst.Rooms, roomRetries)
		if !ok {
			// Exhausted retries: fewer rooms, not an error.
			continue
		}
		inst.Rooms = append(inst.Rooms, room)
		stampRect(&inst, room)
	}

	// Corridors between consecutive rooms in generation order. With
	// corridor_permille < 1000 some rooms may stay sealed off; that is the
	// configured behavior, not a defect.
	for i := 1; i < len(inst.Rooms); i++ {
		if roll(rng, tpl.CorridorPermille) {
			carveCorridor(&inst, inst.Rooms[i-1].Center(), inst.Rooms[i].Center(), rng.Intn(2) == 0)
		}
	}

	if len(inst.Rooms) > 0 {
		for _, e := range tpl.Loot {
			if roll(rng, e.Permille) {
				inst.Loot = append(inst.Loot, randomFloorPoint(rng, inst.Rooms))
			}
		}
		for _, e := range tpl.Enemies {
			if roll(rng, e.Permille) {
				inst.Enemies = append(inst.Enemies, randomFloorPoint(rng, inst.Rooms))
			}
		}
	}

	return inst
}

func spanBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func roll(rng *rand.Rand, permille int) bool {
	if permille <= 0 {
		return false
	}
	if permille >= 1000 {
		return true
	}
	return rng.Intn(1000) < permille
}

func placeRoom(rng *rand.Rand, tpl catalogs.StructureDef, w, h int, placed []chunk.Rect, retries int) (chunk.Rect, bool) {
	for a := 0; a < retries; a++ {
		rw := spanBetween(rng, tpl.RoomMin[0], tpl.RoomMax[0])
		rh := spanBetween(rng, tpl.RoomMin[1], tpl.RoomMax[1])
		// Keep a one-tile wall border around every room. An oversized roll
		// burns one retry; smaller sizes in the range may still fit.
		if rw+2 > w || rh+2 > h {
			continue
		}
		r := chunk.Rect{
			X: 1 + rng.Intn(w-rw-1),
			Y: 1 + rng.Intn(h-rh-1),
			W: rw,
			H: rh,
		}
		overlap := false
		for _, p := range placed {
			if r.Intersects(p) {
				overlap = true
				break
			}
		}
		if !overlap {
			return r, true
		}
	}
	return chunk.Rect{}, false
}

func stampRect(inst *chunk.StructureInstance, r chunk.Rect) {
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			inst.Layout[x+y*inst.W] = chunk.CellFloor
		}
	}
}

func stampFloor(inst *chunk.StructureInstance, x, y int) {
	if x < 0 || x >= inst.W || y < 0 || y >= inst.H {
		return
	}
	inst.Layout[x+y*inst.W] = chunk.CellFloor
}

// carveCorridor stamps an L between two centers: horizontal run then vertical,
// or the reverse.
func carveCorridor(inst *chunk.StructureInstance, a, b chunk.Point, horizontalFirst bool) {
	if horizontalFirst {
		carveH(inst, a.X, b.X, a.Y)
		carveV(inst, a.Y, b.Y, b.X)
	} else {
		carveV(inst, a.Y, b.Y, a.X)
		carveH(inst, a.X, b.X, b.Y)
	}
}

func carveH(inst *chunk.StructureInstance, x0, x1, y int) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	for x := x0; x <= x1; x++ {
		stampFloor(inst, x, y)
	}
}

func carveV(inst *chunk.StructureInstance, y0, y1, x int) {
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		stampFloor(inst, x, y)
	}
}

func randomFloorPoint(rng *rand.Rand, rooms []chunk.Rect) chunk.Point {
	r := rooms[rng.Intn(len(rooms))]
	return chunk.Point{X: r.X + rng.Intn(r.W), Y: r.Y + rng.Intn(r.H)}
}
