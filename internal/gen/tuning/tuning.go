// Package tuning loads worldgen and streaming parameters from tuning.yaml.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ChunkSize      int `yaml:"chunk_size"`
	LoadRadius     int `yaml:"load_radius"`
	UnloadDistance int `yaml:"unload_distance"`
	GenWorkers     int `yaml:"gen_workers"`

	// World extent in chunks from the origin, per axis. Zero = unbounded.
	// Requests outside the boundary yield empty chunks, never errors.
	BoundaryChunks int `yaml:"boundary_chunks"`

	DefaultBiome string `yaml:"default_biome"`

	// Temperature is monotonic in world Y: temp = 0.5 + y/latitude_scale,
	// clamped to [0,1].
	LatitudeScale float64 `yaml:"latitude_scale"`

	Noise     Noise     `yaml:"noise"`
	Terrain   Terrain   `yaml:"terrain"`
	Caves     Caves     `yaml:"caves"`
	Placement Placement `yaml:"placement"`
	Cache     Cache     `yaml:"cache"`

	SnapshotEverySec int `yaml:"snapshot_every_sec"`
}

type Noise struct {
	TerrainFreq   float64 `yaml:"terrain_freq"`
	BiomeFreq     float64 `yaml:"biome_freq"`
	CaveFreq      float64 `yaml:"cave_freq"`
	StructureFreq float64 `yaml:"structure_freq"`
}

// Terrain holds the ordered height thresholds mapping unit height to bands:
// water < sand < grass < stone < snow.
type Terrain struct {
	WaterMax float64 `yaml:"water_max"`
	SandMax  float64 `yaml:"sand_max"`
	GrassMax float64 `yaml:"grass_max"`
	StoneMax float64 `yaml:"stone_max"`
}

type Caves struct {
	// Cave noise below the cutoff carves the tile to air.
	Cutoff      float64 `yaml:"cutoff"`
	OrePermille int     `yaml:"ore_permille"`
	OreID       string  `yaml:"ore_id"`
}

type Placement struct {
	AnchorRetries   int `yaml:"anchor_retries"`
	RoomRetries     int `yaml:"room_retries"`
	ResourceRetries int `yaml:"resource_retries"`
	// Max band spread across a structure footprint still counted as flat.
	FlatnessMaxSpread int `yaml:"flatness_max_spread"`
}

type Cache struct {
	// Unloaded, unmodified chunks beyond this count are evicted LRU-first.
	// Zero disables eviction.
	MaxChunks int `yaml:"max_chunks"`
}

func Default() Tuning {
	return Tuning{
		ChunkSize:      16,
		LoadRadius:     2,
		UnloadDistance: 4,
		GenWorkers:     4,
		BoundaryChunks: 0,
		DefaultBiome:   "PLAINS",
		LatitudeScale:  4096,
		Noise: Noise{
			TerrainFreq:   0.02,
			BiomeFreq:     0.005,
			CaveFreq:      0.08,
			StructureFreq: 0.05,
		},
		Terrain: Terrain{
			WaterMax: 0.30,
			SandMax:  0.38,
			GrassMax: 0.62,
			StoneMax: 0.82,
		},
		Caves: Caves{
			Cutoff:      -0.55,
			OrePermille: 30,
			OreID:       "CRYSTAL",
		},
		Placement: Placement{
			AnchorRetries:     12,
			RoomRetries:       24,
			ResourceRetries:   10,
			FlatnessMaxSpread: 1,
		},
		Cache:            Cache{MaxChunks: 0},
		SnapshotEverySec: 60,
	}
}

func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, t.Validate()
}

func (t Tuning) Validate() error {
	if t.ChunkSize <= 0 {
		return fmt.Errorf("tuning: chunk_size must be positive, got %d", t.ChunkSize)
	}
	if t.LoadRadius < 0 {
		return fmt.Errorf("tuning: load_radius must be non-negative, got %d", t.LoadRadius)
	}
	if t.UnloadDistance < t.LoadRadius {
		return fmt.Errorf("tuning: unload_distance %d < load_radius %d (hysteresis band required)", t.UnloadDistance, t.LoadRadius)
	}
	b := t.Terrain
	if !(b.WaterMax <= b.SandMax && b.SandMax <= b.GrassMax && b.GrassMax <= b.StoneMax) {
		return fmt.Errorf("tuning: terrain thresholds must be non-decreasing")
	}
	return nil
}
