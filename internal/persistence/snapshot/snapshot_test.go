package snapshot

import (
	"path/filepath"
	"testing"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header:    Header{Version: Version, WorldID: "w1", SavedAt: "2026-01-02T03:04:05Z"},
		Seed:      42,
		ChunkSize: 16,
		Generated: []KeyV1{{CX: 1, CY: 0}, {CX: 0, CY: 0}, {CX: -1, CY: 2}},
		Modified: []ModifiedChunkV1{
			{CX: 0, CY: 0, Tiles: []TileModV1{{I: 5, T: 5}, {I: 1, T: 0}}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "snap-20260102T030405.json.zst")
	if err := Save(p, sample()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Seed != 42 || got.ChunkSize != 16 {
		t.Fatalf("world params lost: %+v", got)
	}
	if len(got.Generated) != 3 || len(got.Modified) != 1 {
		t.Fatalf("chunk sets lost: %+v", got)
	}
	// Save normalizes: sorted keys, sorted tile indices.
	if got.Generated[0] != (KeyV1{CX: -1, CY: 2}) {
		t.Fatalf("generated keys not sorted: %+v", got.Generated)
	}
	if got.Modified[0].Tiles[0].I != 1 {
		t.Fatalf("overlay tiles not sorted: %+v", got.Modified[0].Tiles)
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "snap-x.json.zst")
	s := sample()
	s.Header.Version = 99
	if err := Save(p, s); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("version mismatch must fail")
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if p, err := Latest(dir); err != nil || p != "" {
		t.Fatalf("empty dir: %q %v", p, err)
	}
	older := filepath.Join(dir, "snap-20260101T000000.json.zst")
	newer := filepath.Join(dir, "snap-20260102T000000.json.zst")
	for _, p := range []string{newer, older} {
		if err := Save(p, sample()); err != nil {
			t.Fatal(err)
		}
	}
	p, err := Latest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if p != newer {
		t.Fatalf("latest picked %s", p)
	}
}
