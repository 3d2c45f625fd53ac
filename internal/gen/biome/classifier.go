// Package biome classifies world positions into registered biomes from their
// temperature/humidity signature.
package biome

import (
	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/mathx"
	"overwild.dev/internal/gen/noise"
)

type Classifier struct {
	field     *noise.Field
	cat       *catalogs.BiomeCatalog
	latScale  float64
	defaultID uint16
}

// New builds a classifier over the biome noise channel. defaultBiome falls
// back to the registry's flagged default, then to palette id 0.
func New(field *noise.Field, cat *catalogs.BiomeCatalog, latScale float64, defaultBiome string) *Classifier {
	c := &Classifier{field: field, cat: cat, latScale: latScale}
	if latScale == 0 {
		c.latScale = 4096
	}
	if id, ok := cat.Index[defaultBiome]; ok {
		c.defaultID = id
		return c
	}
	for i, d := range cat.Ordered {
		if d.Default {
			c.defaultID = uint16(i)
			return c
		}
	}
	return c
}

// Temperature is monotonic in world Y, the 2D analogue of latitude.
// Continuous in world position, so biome edges never flicker at chunk seams.
func (c *Classifier) Temperature(y int) float64 {
	return mathx.ClampF(0.5+float64(y)/c.latScale, 0, 1)
}

// Humidity samples the dedicated biome noise channel into [0,1].
func (c *Classifier) Humidity(x, y int) float64 {
	return noise.Unit(c.field.Sample(noise.KindBiome, x, y))
}

// Pick scans the registry first-match for a raw temperature/humidity
// signature, falling back to the default biome.
func (c *Classifier) Pick(temp, humidity float64) uint16 {
	for i, d := range c.cat.Ordered {
		if d.Contains(temp, humidity) {
			return uint16(i)
		}
	}
	return c.defaultID
}

// Classify returns the palette id of the first registered biome whose
// temperature and humidity ranges both contain the point, or the default.
func (c *Classifier) Classify(x, y int) uint16 {
	return c.Pick(c.Temperature(y), c.Humidity(x, y))
}

// ClassifyDef resolves the full definition for a position.
func (c *Classifier) ClassifyDef(x, y int) catalogs.BiomeDef {
	return c.cat.Ordered[c.Classify(x, y)]
}

func (c *Classifier) DefaultID() uint16 { return c.defaultID }
