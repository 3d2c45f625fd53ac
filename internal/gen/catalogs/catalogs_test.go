package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func loadRepo(t *testing.T) *Catalogs {
	t.Helper()
	c, err := Load("../../../configs", "../../../schemas")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return c
}

func TestLoadRepoCatalogs(t *testing.T) {
	c := loadRepo(t)
	if len(c.Biomes.Ordered) == 0 || len(c.Structures.Ordered) == 0 {
		t.Fatal("registries empty")
	}
	if c.Biomes.Digest == "" || c.Structures.Digest == "" {
		t.Fatal("missing catalog digests")
	}
	// Palette ids follow file order so classification stays first-match stable.
	for i, d := range c.Biomes.Ordered {
		if c.Biomes.Index[d.ID] != uint16(i) {
			t.Fatalf("palette id for %s out of order", d.ID)
		}
	}
}

func TestBiomeContains(t *testing.T) {
	c := loadRepo(t)
	desert, ok := c.Biomes.Defs["DESERT"]
	if !ok {
		t.Fatal("DESERT missing from registry")
	}
	if !desert.Contains(0.8, 0.1) {
		t.Fatal("temp=0.8 humidity=0.1 must fall inside DESERT")
	}
	forest := c.Biomes.Defs["FOREST"]
	if forest.Contains(0.8, 0.1) {
		t.Fatal("temp=0.8 humidity=0.1 must not match FOREST")
	}
}

func TestStructureAllowedIn(t *testing.T) {
	c := loadRepo(t)
	crypt := c.Structures.Defs["CRYPT"]
	if crypt.AllowedIn("DESERT") {
		t.Fatal("CRYPT is not a desert structure")
	}
	if !crypt.AllowedIn("SWAMP") {
		t.Fatal("CRYPT should be allowed in SWAMP")
	}
	open := StructureDef{ID: "X"}
	if !open.AllowedIn("ANYTHING") {
		t.Fatal("empty biome list means allowed anywhere")
	}
}

func TestSchemaRejectsBadBiome(t *testing.T) {
	dir := t.TempDir()
	// temp_max above 1 violates the schema.
	bad := `[{"id":"X","temp_min":0,"temp_max":2,"humidity_min":0,"humidity_max":1}]`
	if err := os.WriteFile(filepath.Join(dir, "biomes.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	var out BiomeCatalog
	err := loadBiomes(filepath.Join(dir, "biomes.json"), "../../../schemas/biomes.schema.json", &out)
	if err == nil {
		t.Fatal("schema violation must fail the load")
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	dir := t.TempDir()
	dup := `[
	  {"id":"X","temp_min":0,"temp_max":1,"humidity_min":0,"humidity_max":1},
	  {"id":"X","temp_min":0,"temp_max":1,"humidity_min":0,"humidity_max":1}
	]`
	if err := os.WriteFile(filepath.Join(dir, "biomes.json"), []byte(dup), 0o644); err != nil {
		t.Fatal(err)
	}
	var out BiomeCatalog
	err := loadBiomes(filepath.Join(dir, "biomes.json"), "../../../schemas/biomes.schema.json", &out)
	if err == nil {
		t.Fatal("duplicate biome id must fail the load")
	}
}
