// Package chunk holds the world's unit of generation and streaming: a
// fixed-size tile grid keyed by an integer 2D coordinate.
package chunk

import (
	"crypto/sha256"
	"encoding/binary"

	"overwild.dev/internal/gen/mathx"
)

// Terrain band ids. Order is meaningful: height maps to bands monotonically
// (water lowest, snow highest). Air is not a band, it is carved by caves.
const (
	TerrainWater uint8 = iota
	TerrainSand
	TerrainGrass
	TerrainStone
	TerrainSnow
	TerrainAir
)

func TerrainName(t uint8) string {
	switch t {
	case TerrainWater:
		return "WATER"
	case TerrainSand:
		return "SAND"
	case TerrainGrass:
		return "GRASS"
	case TerrainStone:
		return "STONE"
	case TerrainSnow:
		return "SNOW"
	case TerrainAir:
		return "AIR"
	}
	return "UNKNOWN"
}

type Key struct {
	CX int
	CY int
}

// Packed returns the int64 map key form (CX high 32 bits, CY low 32).
func (k Key) Packed() int64 { return mathx.PackKey(k.CX, k.CY) }

func Unpack(p int64) Key {
	x, y := mathx.UnpackKey(p)
	return Key{CX: x, CY: y}
}

// KeyAt maps a world tile coordinate to its owning chunk. Together with
// Origin this is the invertible, exhaustive partition of the tile plane.
func KeyAt(tileX, tileY, size int) Key {
	return Key{CX: mathx.FloorDiv(tileX, size), CY: mathx.FloorDiv(tileY, size)}
}

// Origin returns the world tile coordinate of the chunk's (0,0) cell.
func (k Key) Origin(size int) (int, int) {
	return k.CX * size, k.CY * size
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Structure layout cells.
const (
	CellWall uint8 = iota
	CellFloor
)

// StructureInstance is a concrete placement of a structure template, owned
// by the chunk containing its anchor.
type StructureInstance struct {
	TemplateID string  `json:"template_id"`
	Anchor     Point   `json:"anchor"` // world tile of the layout origin
	W          int     `json:"w"`
	H          int     `json:"h"`
	Layout     []uint8 `json:"layout"` // len = W*H, x fastest
	Rooms      []Rect  `json:"rooms"`  // layout-local
	Loot       []Point `json:"loot"`   // layout-local spawn points
	Enemies    []Point `json:"enemies"`
}

func (s *StructureInstance) Cell(x, y int) uint8 {
	return s.Layout[x+y*s.W]
}

// Bounds returns the instance's bounding box in world tiles.
func (s *StructureInstance) Bounds() Rect {
	return Rect{X: s.Anchor.X, Y: s.Anchor.Y, W: s.W, H: s.H}
}

type ResourceSpawn struct {
	ID        string `json:"id"`
	Pos       Point  `json:"pos"` // world tile
	Collected bool   `json:"collected"`
}

type Chunk struct {
	Key  Key
	Size int

	Terrain []uint8  // len = Size*Size, x fastest
	Biomes  []uint16 // biome palette ids, same indexing

	Structures []StructureInstance
	Resources  []ResourceSpawn

	Generated bool
	Loaded    bool

	// Player modifications since generation, tile index -> terrain id.
	// Kept separately so unmodified chunks never need persisting.
	overlay map[int]uint8

	dirty bool
	hash  [32]byte
}

func New(key Key, size int) *Chunk {
	return &Chunk{
		Key:     key,
		Size:    size,
		Terrain: make([]uint8, size*size),
		Biomes:  make([]uint16, size*size),
	}
}

func (c *Chunk) index(x, y int) int {
	// x fastest, then y
	return x + y*c.Size
}

func (c *Chunk) TerrainAt(x, y int) uint8  { return c.Terrain[c.index(x, y)] }
func (c *Chunk) BiomeAt(x, y int) uint16   { return c.Biomes[c.index(x, y)] }
func (c *Chunk) SetBiome(x, y int, b uint16) {
	i := c.index(x, y)
	if c.Biomes[i] == b {
		return
	}
	c.Biomes[i] = b
	c.dirty = true
}

// SetTerrain is the generation-time write path. It does not touch the
// overlay: only Modify records player changes.
func (c *Chunk) SetTerrain(x, y int, t uint8) {
	i := c.index(x, y)
	if c.Terrain[i] == t {
		return
	}
	c.Terrain[i] = t
	c.dirty = true
}

// Modify applies a player change to a tile and records it in the overlay.
func (c *Chunk) Modify(x, y int, t uint8) {
	i := c.index(x, y)
	if c.overlay == nil {
		c.overlay = map[int]uint8{}
	}
	c.overlay[i] = t
	if c.Terrain[i] != t {
		c.Terrain[i] = t
		c.dirty = true
	}
}

func (c *Chunk) Modified() bool { return len(c.overlay) > 0 }

// Clone returns a deep copy that can be read without the owner's lock.
// Structure and resource entries are shared: they are immutable after
// generation except the Collected flag, which the copy freezes.
func (c *Chunk) Clone() *Chunk {
	out := &Chunk{
		Key:        c.Key,
		Size:       c.Size,
		Terrain:    append([]uint8(nil), c.Terrain...),
		Biomes:     append([]uint16(nil), c.Biomes...),
		Structures: append([]StructureInstance(nil), c.Structures...),
		Resources:  append([]ResourceSpawn(nil), c.Resources...),
		Generated:  c.Generated,
		Loaded:     c.Loaded,
		overlay:    c.Overlay(),
		dirty:      c.dirty,
		hash:       c.hash,
	}
	return out
}

// Overlay returns a copy of the modification overlay.
func (c *Chunk) Overlay() map[int]uint8 {
	if len(c.overlay) == 0 {
		return nil
	}
	out := make(map[int]uint8, len(c.overlay))
	for i, t := range c.overlay {
		out[i] = t
	}
	return out
}

// ApplyOverlay replays persisted player modifications onto a freshly
// regenerated chunk.
func (c *Chunk) ApplyOverlay(ov map[int]uint8) {
	for i, t := range ov {
		if i < 0 || i >= len(c.Terrain) {
			continue
		}
		if c.overlay == nil {
			c.overlay = map[int]uint8{}
		}
		c.overlay[i] = t
		c.Terrain[i] = t
	}
	c.dirty = true
}

// Digest hashes terrain, biome and structure layout data deterministically.
func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		h.Write(c.Terrain)
		var tmp [2]byte
		for _, v := range c.Biomes {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		for _, s := range c.Structures {
			h.Write([]byte(s.TemplateID))
			var hdr [16]byte
			binary.LittleEndian.PutUint32(hdr[0:], uint32(s.Anchor.X))
			binary.LittleEndian.PutUint32(hdr[4:], uint32(s.Anchor.Y))
			binary.LittleEndian.PutUint32(hdr[8:], uint32(s.W))
			binary.LittleEndian.PutUint32(hdr[12:], uint32(s.H))
			h.Write(hdr[:])
			h.Write(s.Layout)
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}
