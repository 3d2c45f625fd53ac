package world

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"overwild.dev/internal/gen"
	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/chunk"
	"overwild.dev/internal/gen/mathx"
	"overwild.dev/internal/gen/tuning"
	"overwild.dev/internal/persistence/snapshot"
)

// World wires the generator, cache and streamer together and owns the
// persistence boundary. Collaborators consume chunks and events through it;
// nothing here renders, simulates materials or runs gameplay.
type World struct {
	id   string
	seed int64
	cats *catalogs.Catalogs
	tune tuning.Tuning
	gen  *gen.Generator

	cache    *Cache
	streamer *Streamer
	log      *log.Logger

	mu sync.Mutex
	// Overlays restored from a snapshot for chunks not yet regenerated.
	// Once a chunk regenerates the overlay moves onto the chunk itself.
	restoreOverlays map[int64]map[int]uint8
	// Coordinates known generated in a previous session.
	knownGenerated map[int64]bool
	subs           []func(Event)
	modSubs        []func(tileX, tileY int, terrain uint8)
}

func New(id string, seed int64, cats *catalogs.Catalogs, tune tuning.Tuning, logger *log.Logger) *World {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		id:              id,
		seed:            seed,
		cats:            cats,
		tune:            tune,
		gen:             gen.New(seed, cats, tune, logger),
		log:             logger,
		restoreOverlays: map[int64]map[int]uint8{},
		knownGenerated:  map[int64]bool{},
	}
	w.cache = NewCache(w.gen, tune.Cache.MaxChunks, w.onGenerate)
	w.streamer = NewStreamer(w.cache, tune.LoadRadius, tune.UnloadDistance, tune.GenWorkers)
	return w
}

func (w *World) ID() string               { return w.id }
func (w *World) Seed() int64              { return w.seed }
func (w *World) ChunkSize() int           { return w.tune.ChunkSize }
func (w *World) LoadRadius() int          { return w.tune.LoadRadius }
func (w *World) UnloadDistance() int      { return w.tune.UnloadDistance }
func (w *World) BiomesDigest() string     { return w.cats.Biomes.Digest }
func (w *World) StructuresDigest() string { return w.cats.Structures.Digest }

func (w *World) Close() { w.streamer.Close() }

// onGenerate runs under the coordinate's exclusive claim and replays any
// overlay persisted for this chunk in a previous session.
func (w *World) onGenerate(ch *chunk.Chunk) {
	p := ch.Key.Packed()
	w.mu.Lock()
	ov, ok := w.restoreOverlays[p]
	if ok {
		delete(w.restoreOverlays, p)
	}
	delete(w.knownGenerated, p)
	w.mu.Unlock()
	if ok {
		ch.ApplyOverlay(ov)
	}
}

func (w *World) inBounds(key chunk.Key) bool {
	r := w.tune.BoundaryChunks
	if r <= 0 {
		return true
	}
	return mathx.AbsInt(key.CX) <= r && mathx.AbsInt(key.CY) <= r
}

// ChunkAt returns the generated chunk for a coordinate, generating it on the
// calling goroutine if needed. Out-of-bounds coordinates yield an empty,
// ungenerated chunk rather than an error.
func (w *World) ChunkAt(key chunk.Key) *chunk.Chunk {
	if !w.inBounds(key) {
		return chunk.New(key, w.tune.ChunkSize)
	}
	return w.cache.GetOrGenerate(key)
}

// PeekChunk returns a chunk only if already generated.
func (w *World) PeekChunk(key chunk.Key) (*chunk.Chunk, bool) {
	return w.cache.TryGet(key)
}

// SnapshotChunk returns a locked deep copy of an already generated chunk,
// safe to serialize while modifications keep landing on the live one.
func (w *World) SnapshotChunk(key chunk.Key) (*chunk.Chunk, bool) {
	return w.cache.SnapshotChunk(key)
}

// ModifyTile records a player modification at a world tile.
func (w *World) ModifyTile(tileX, tileY int, terrain uint8) {
	key := chunk.KeyAt(tileX, tileY, w.tune.ChunkSize)
	if !w.inBounds(key) {
		return
	}
	w.cache.ModifyTile(tileX, tileY, terrain)
	w.mu.Lock()
	subs := append([]func(int, int, uint8){}, w.modSubs...)
	w.mu.Unlock()
	for _, fn := range subs {
		fn(tileX, tileY, terrain)
	}
}

// OnModify registers a listener for applied player modifications.
func (w *World) OnModify(fn func(tileX, tileY int, terrain uint8)) {
	w.mu.Lock()
	w.modSubs = append(w.modSubs, fn)
	w.mu.Unlock()
}

// Subscribe registers an event listener. Listeners run on the goroutine
// calling UpdateObserver and must not block.
func (w *World) Subscribe(fn func(Event)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()
}

func (w *World) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	w.mu.Lock()
	subs := append([]func(Event){}, w.subs...)
	w.mu.Unlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// UpdateObserver advances streaming for the observer's world tile position.
// Call once per tick from the interactive loop.
func (w *World) UpdateObserver(tileX, tileY int) []Event {
	events := w.streamer.Update(tileX, tileY)
	w.publish(events)
	return events
}

// SettleObserver blocks until the observer's surroundings are fully loaded.
func (w *World) SettleObserver(tileX, tileY int) []Event {
	events := w.streamer.Settle(tileX, tileY)
	w.publish(events)
	return events
}

// LoadedChunks returns the keys currently attached to the live world.
func (w *World) LoadedChunks() []chunk.Key { return w.streamer.Loaded() }

// CachedChunks reports how many generated chunks the cache holds.
func (w *World) CachedChunks() int { return w.cache.Len() }

// ExportSnapshot captures the persistence boundary: every generated
// coordinate and the overlay of every modified chunk.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.id,
			SavedAt: time.Now().UTC().Format(time.RFC3339),
		},
		Seed:             w.seed,
		ChunkSize:        w.tune.ChunkSize,
		BiomesDigest:     w.cats.Biomes.Digest,
		StructuresDigest: w.cats.Structures.Digest,
	}

	seen := map[int64]bool{}
	for _, k := range w.cache.GeneratedKeys() {
		seen[k.Packed()] = true
		s.Generated = append(s.Generated, snapshot.KeyV1{CX: k.CX, CY: k.CY})
	}
	for p, ov := range w.cache.ModifiedOverlays() {
		k := chunk.Unpack(p)
		mc := snapshot.ModifiedChunkV1{CX: k.CX, CY: k.CY}
		for i, t := range ov {
			mc.Tiles = append(mc.Tiles, snapshot.TileModV1{I: i, T: t})
		}
		s.Modified = append(s.Modified, mc)
	}

	// Coordinates restored from a prior session but not regenerated yet are
	// still part of the generated set, and their overlays still pending.
	w.mu.Lock()
	for p := range w.knownGenerated {
		if !seen[p] {
			k := chunk.Unpack(p)
			s.Generated = append(s.Generated, snapshot.KeyV1{CX: k.CX, CY: k.CY})
		}
	}
	for p, ov := range w.restoreOverlays {
		k := chunk.Unpack(p)
		mc := snapshot.ModifiedChunkV1{CX: k.CX, CY: k.CY}
		for i, t := range ov {
			mc.Tiles = append(mc.Tiles, snapshot.TileModV1{I: i, T: t})
		}
		s.Modified = append(s.Modified, mc)
	}
	w.mu.Unlock()

	s.Normalize()
	return s
}

// RestoreSnapshot primes the world from a prior session. Chunks regenerate
// lazily from the seed; overlays replay when their chunk next generates.
func (w *World) RestoreSnapshot(s snapshot.SnapshotV1) error {
	if s.Seed != w.seed {
		return fmt.Errorf("snapshot seed %d does not match world seed %d", s.Seed, w.seed)
	}
	if s.ChunkSize != w.tune.ChunkSize {
		return fmt.Errorf("snapshot chunk size %d does not match configured %d", s.ChunkSize, w.tune.ChunkSize)
	}
	if s.BiomesDigest != "" && s.BiomesDigest != w.cats.Biomes.Digest {
		w.log.Printf("world %s: biome registry changed since snapshot; regenerated chunks may differ", w.id)
	}
	if s.StructuresDigest != "" && s.StructuresDigest != w.cats.Structures.Digest {
		w.log.Printf("world %s: structure registry changed since snapshot; regenerated chunks may differ", w.id)
	}

	w.mu.Lock()
	for _, k := range s.Generated {
		w.knownGenerated[mathx.PackKey(k.CX, k.CY)] = true
	}
	for _, m := range s.Modified {
		ov := make(map[int]uint8, len(m.Tiles))
		for _, t := range m.Tiles {
			ov[t.I] = t.T
		}
		w.restoreOverlays[mathx.PackKey(m.CX, m.CY)] = ov
	}
	w.mu.Unlock()
	return nil
}
