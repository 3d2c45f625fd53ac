// Package snapshot persists the reproducible-world boundary: the set of
// generated chunk coordinates plus a modification overlay per player-modified
// chunk. Unmodified chunks are never written; they regenerate from the seed.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	SavedAt string `json:"saved_at"` // RFC3339 UTC
}

type KeyV1 struct {
	CX int `json:"cx"`
	CY int `json:"cy"`
}

type TileModV1 struct {
	I int   `json:"i"` // tile index within the chunk, x fastest
	T uint8 `json:"t"` // terrain id
}

type ModifiedChunkV1 struct {
	CX    int         `json:"cx"`
	CY    int         `json:"cy"`
	Tiles []TileModV1 `json:"tiles"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed      int64 `json:"seed"`
	ChunkSize int   `json:"chunk_size"`

	// Registry digests captured at save time. A mismatch on restore means
	// regenerated chunks would diverge from what the player saw.
	BiomesDigest     string `json:"biomes_digest,omitempty"`
	StructuresDigest string `json:"structures_digest,omitempty"`

	Generated []KeyV1           `json:"generated"`
	Modified  []ModifiedChunkV1 `json:"modified,omitempty"`
}

// Normalize sorts all slices so equal world states serialize identically.
func (s *SnapshotV1) Normalize() {
	sort.Slice(s.Generated, func(i, j int) bool {
		if s.Generated[i].CX != s.Generated[j].CX {
			return s.Generated[i].CX < s.Generated[j].CX
		}
		return s.Generated[i].CY < s.Generated[j].CY
	})
	sort.Slice(s.Modified, func(i, j int) bool {
		if s.Modified[i].CX != s.Modified[j].CX {
			return s.Modified[i].CX < s.Modified[j].CX
		}
		return s.Modified[i].CY < s.Modified[j].CY
	})
	for i := range s.Modified {
		tiles := s.Modified[i].Tiles
		sort.Slice(tiles, func(a, b int) bool { return tiles[a].I < tiles[b].I })
	}
}

// Save writes a zstd-compressed JSON snapshot atomically.
func Save(path string, s SnapshotV1) error {
	s.Normalize()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := json.NewEncoder(enc).Encode(s); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Load(path string) (SnapshotV1, error) {
	var s SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return s, err
	}
	defer dec.Close()
	if err := json.NewDecoder(dec).Decode(&s); err != nil {
		return s, fmt.Errorf("snapshot %s: %w", filepath.Base(path), err)
	}
	if s.Header.Version != Version {
		return s, fmt.Errorf("snapshot %s: unsupported version %d", filepath.Base(path), s.Header.Version)
	}
	return s, nil
}

// Latest returns the newest snapshot path in dir, or "" if none exist.
// Snapshot files sort by name (snap-<stamp>.json.zst, stamp = UTC
// 20060102T150405).
func Latest(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	best := ""
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "snap-") || !strings.HasSuffix(name, ".json.zst") {
			continue
		}
		if name > best {
			best = name
		}
	}
	if best == "" {
		return "", nil
	}
	return filepath.Join(dir, best), nil
}
