// Package catalogs loads the immutable biome and structure registries from
// JSON config, validates them against the shipped JSON Schemas, and assigns
// stable palette ids.
package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"os"
)

type Catalogs struct {
	Biomes     BiomeCatalog
	Structures StructureCatalog
}

type SpawnEntry struct {
	ID       string `json:"id"`
	Permille int    `json:"permille"`
}

type BiomeDef struct {
	ID          string  `json:"id"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	HumidityMin float64 `json:"humidity_min"`
	HumidityMax float64 `json:"humidity_max"`

	// Added to unit terrain height before band mapping; lets a desert sit
	// higher than a swamp at the same noise value.
	HeightBias float64 `json:"height_bias,omitempty"`

	Default bool `json:"default,omitempty"`

	Resources  []SpawnEntry `json:"resources,omitempty"`
	Enemies    []SpawnEntry `json:"enemies,omitempty"`
	Structures []string     `json:"structures,omitempty"`

	Palette []string `json:"palette,omitempty"` // display colors, passed through to collaborators
}

// Contains reports whether a temperature/humidity signature falls inside the
// biome's configured ranges.
func (b BiomeDef) Contains(temp, humidity float64) bool {
	return temp >= b.TempMin && temp <= b.TempMax &&
		humidity >= b.HumidityMin && humidity <= b.HumidityMax
}

// BiomeCatalog preserves file order: classification scans biomes first-match,
// so order is part of the registry's meaning.
type BiomeCatalog struct {
	Ordered []BiomeDef
	Index   map[string]uint16 // id -> palette id (position in Ordered)
	Defs    map[string]BiomeDef
	Digest  string
}

func (c *BiomeCatalog) ByPalette(id uint16) (BiomeDef, bool) {
	if int(id) >= len(c.Ordered) {
		return BiomeDef{}, false
	}
	return c.Ordered[id], true
}

type StructureDef struct {
	ID            string `json:"id"`
	SpawnPermille int    `json:"spawn_permille"`

	// Size bounds in tiles. MinSize == MaxSize means a fixed footprint.
	MinSize [2]int `json:"min_size"`
	MaxSize [2]int `json:"max_size"`

	RoomCount        int    `json:"room_count"`
	RoomMin          [2]int `json:"room_min"`
	RoomMax          [2]int `json:"room_max"`
	CorridorPermille int    `json:"corridor_permille"`

	Wall  string `json:"wall"`
	Floor string `json:"floor"`

	Loot    []SpawnEntry `json:"loot,omitempty"`
	Enemies []SpawnEntry `json:"enemies,omitempty"`

	// Allowed biome ids. Empty means any biome.
	Biomes []string `json:"biomes,omitempty"`
}

func (d StructureDef) AllowedIn(biomeID string) bool {
	if len(d.Biomes) == 0 {
		return true
	}
	for _, b := range d.Biomes {
		if b == biomeID {
			return true
		}
	}
	return false
}

type StructureCatalog struct {
	Ordered []StructureDef
	Defs    map[string]StructureDef
	Digest  string
}

// Load reads biomes.json and structures.json from configDir, validating each
// against its schema in schemaDir.
func Load(configDir, schemaDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBiomes(
		filepath.Join(configDir, "biomes.json"),
		filepath.Join(schemaDir, "biomes.schema.json"),
		&c.Biomes,
	); err != nil {
		return nil, err
	}
	if err := loadStructures(
		filepath.Join(configDir, "structures.json"),
		filepath.Join(schemaDir, "structures.schema.json"),
		&c.Structures,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validateAgainst(schemaPath string, raw []byte) error {
	s, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return fmt.Errorf("compile %s: %w", schemaPath, err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(schemaPath), err)
	}
	return nil
}

func loadBiomes(path, schemaPath string, out *BiomeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateAgainst(schemaPath, raw); err != nil {
		return fmt.Errorf("biomes.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var defs []BiomeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("biomes.json: %w", err)
	}
	if len(defs) == 0 {
		return fmt.Errorf("biomes.json: empty registry")
	}
	out.Ordered = defs
	out.Index = map[string]uint16{}
	out.Defs = map[string]BiomeDef{}
	for i, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("biomes.json: empty id at index %d", i)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("biomes.json: duplicate id %q", d.ID)
		}
		out.Index[d.ID] = uint16(i)
		out.Defs[d.ID] = d
	}
	return nil
}

func loadStructures(path, schemaPath string, out *StructureCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateAgainst(schemaPath, raw); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var defs []StructureDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	out.Ordered = defs
	out.Defs = map[string]StructureDef{}
	for i, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("structures.json: empty id at index %d", i)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("structures.json: duplicate id %q", d.ID)
		}
		if d.MaxSize[0] < d.MinSize[0] || d.MaxSize[1] < d.MinSize[1] {
			return fmt.Errorf("structures.json: %s: max_size below min_size", d.ID)
		}
		out.Defs[d.ID] = d
	}
	return nil
}
