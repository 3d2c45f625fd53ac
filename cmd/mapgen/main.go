// Command mapgen renders a region of a seeded world as ASCII and prints
// generation statistics. Useful for eyeballing a seed or diffing registry
// changes without running the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"overwild.dev/internal/gen"
	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/chunk"
	"overwild.dev/internal/gen/tuning"
)

var terrainGlyphs = map[uint8]byte{
	chunk.TerrainWater: '~',
	chunk.TerrainSand:  '.',
	chunk.TerrainGrass: ',',
	chunk.TerrainStone: '^',
	chunk.TerrainSnow:  '*',
	chunk.TerrainAir:   ' ',
}

func main() {
	var (
		seed       = flag.Int64("seed", 1337, "world seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemaDir  = flag.String("schemas", "./schemas", "schema directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		cx         = flag.Int("cx", -2, "region origin chunk x")
		cy         = flag.Int("cy", -2, "region origin chunk y")
		cw         = flag.Int("w", 4, "region width in chunks")
		chh        = flag.Int("h", 4, "region height in chunks")
		noMap      = flag.Bool("stats_only", false, "print statistics without the map")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[mapgen] ", log.LstdFlags)

	cats, err := catalogs.Load(*configDir, *schemaDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *cw <= 0 || *chh <= 0 {
		logger.Fatalf("region must be at least 1x1 chunks")
	}

	g := gen.New(*seed, cats, tune, logger)
	size := tune.ChunkSize

	chunks := map[chunk.Key]*chunk.Chunk{}
	for dy := 0; dy < *chh; dy++ {
		for dx := 0; dx < *cw; dx++ {
			key := chunk.Key{CX: *cx + dx, CY: *cy + dy}
			chunks[key] = g.Generate(key)
		}
	}

	if !*noMap {
		renderRegion(chunks, *cx, *cy, *cw, *chh, size)
	}
	printStats(chunks, cats, *seed)
}

func renderRegion(chunks map[chunk.Key]*chunk.Chunk, cx, cy, cw, chh, size int) {
	width := cw * size
	rows := make([][]byte, chh*size)
	for i := range rows {
		rows[i] = make([]byte, width)
	}

	for key, ch := range chunks {
		bx := (key.CX - cx) * size
		by := (key.CY - cy) * size
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				rows[by+y][bx+x] = terrainGlyphs[ch.TerrainAt(x, y)]
			}
		}
		ox, oy := key.Origin(size)
		for _, st := range ch.Structures {
			for ly := 0; ly < st.H; ly++ {
				for lx := 0; lx < st.W; lx++ {
					wx, wy := st.Anchor.X+lx, st.Anchor.Y+ly
					px, py := wx-ox+bx, wy-oy+by
					if px < 0 || px >= width || py < 0 || py >= len(rows) {
						continue
					}
					if st.Cell(lx, ly) == chunk.CellWall {
						rows[py][px] = 'H'
					} else {
						rows[py][px] = '+'
					}
				}
			}
		}
		for _, r := range ch.Resources {
			px, py := r.Pos.X-ox+bx, r.Pos.Y-oy+by
			if px >= 0 && px < width && py >= 0 && py < len(rows) {
				rows[py][px] = 'o'
			}
		}
	}

	for _, row := range rows {
		fmt.Println(string(row))
	}
}

func printStats(chunks map[chunk.Key]*chunk.Chunk, cats *catalogs.Catalogs, seed int64) {
	terrain := map[uint8]int{}
	biomes := map[uint16]int{}
	structs := map[string]int{}
	resources := map[string]int{}
	tiles := 0

	for _, ch := range chunks {
		for i := range ch.Terrain {
			terrain[ch.Terrain[i]]++
			biomes[ch.Biomes[i]]++
			tiles++
		}
		for _, st := range ch.Structures {
			structs[st.TemplateID]++
		}
		for _, r := range ch.Resources {
			resources[r.ID]++
		}
	}

	fmt.Printf("\nseed=%d chunks=%d tiles=%d\n", seed, len(chunks), tiles)

	names := []string{"WATER", "SAND", "GRASS", "STONE", "SNOW", "AIR"}
	fmt.Println("terrain:")
	for t := uint8(0); t <= chunk.TerrainAir; t++ {
		if terrain[t] == 0 {
			continue
		}
		fmt.Printf("  %-6s %6.2f%%\n", names[t], 100*float64(terrain[t])/float64(tiles))
	}

	fmt.Println("biomes:")
	type bc struct {
		id string
		n  int
	}
	var bs []bc
	for pid, n := range biomes {
		name := fmt.Sprintf("#%d", pid)
		if def, ok := cats.Biomes.ByPalette(pid); ok {
			name = def.ID
		}
		bs = append(bs, bc{id: name, n: n})
	}
	sort.Slice(bs, func(i, j int) bool { return bs[i].n > bs[j].n })
	for _, b := range bs {
		fmt.Printf("  %-8s %6.2f%%\n", b.id, 100*float64(b.n)/float64(tiles))
	}

	if len(structs) > 0 {
		fmt.Println("structures:")
		var ids []string
		for id := range structs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %-8s %d\n", id, structs[id])
		}
	}
	if len(resources) > 0 {
		fmt.Println("resources:")
		var ids []string
		for id := range resources {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %-8s %d\n", id, resources[id])
		}
	}
}
