// Package world owns the live chunk state: the generation cache and the
// observer-driven streamer.
package world

import (
	"sort"
	"sync"

	"overwild.dev/internal/gen"
	"overwild.dev/internal/gen/chunk"
)

// entry is the per-coordinate claim. Whoever installs it generates; everyone
// else waits on ready. mu guards post-generation mutation (loaded flag,
// player overlays) so modification shares the coordinate's lock.
type entry struct {
	ready chan struct{}
	mu    sync.Mutex
	ch    *chunk.Chunk // set before ready is closed
	touch uint64
}

type Cache struct {
	gen *gen.Generator

	mu        sync.Mutex
	entries   map[int64]*entry
	clock     uint64
	maxChunks int // LRU bound for unloaded+unmodified entries; 0 = unbounded

	// Invoked on a freshly generated chunk before it is published, while the
	// coordinate claim is still exclusive. Used to replay persisted overlays.
	onGenerate func(*chunk.Chunk)
}

func NewCache(g *gen.Generator, maxChunks int, onGenerate func(*chunk.Chunk)) *Cache {
	return &Cache{
		gen:        g,
		entries:    map[int64]*entry{},
		maxChunks:  maxChunks,
		onGenerate: onGenerate,
	}
}

// GetOrGenerate returns the chunk for a coordinate, generating it at most
// once across all callers. Losers of the claim race block until the winner
// publishes; the main loop should reach here only via TryGet or the worker
// pool.
func (c *Cache) GetOrGenerate(key chunk.Key) *chunk.Chunk {
	return c.getEntry(key).ch
}

// getEntry returns the ready entry for a coordinate, generating if needed.
// Callers holding the returned entry keep a valid chunk even if eviction
// drops it from the map.
func (c *Cache) getEntry(key chunk.Key) *entry {
	p := key.Packed()

	c.mu.Lock()
	c.clock++
	if e, ok := c.entries[p]; ok {
		e.touch = c.clock
		c.mu.Unlock()
		<-e.ready
		return e
	}
	e := &entry{ready: make(chan struct{}), touch: c.clock}
	c.entries[p] = e
	c.mu.Unlock()

	ch := c.gen.Generate(key)
	if c.onGenerate != nil {
		c.onGenerate(ch)
	}
	e.ch = ch
	close(e.ready)

	c.mu.Lock()
	c.evictLocked()
	c.mu.Unlock()
	return e
}

// TryGet returns a chunk only if it is already generated. Never blocks.
func (c *Cache) TryGet(key chunk.Key) (*chunk.Chunk, bool) {
	c.mu.Lock()
	e, ok := c.entries[key.Packed()]
	if ok {
		c.clock++
		e.touch = c.clock
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.ch, true
	default:
		return nil, false
	}
}

// SnapshotChunk returns a deep copy of an already generated chunk, taken
// under the coordinate lock. Serializers read the copy while writers keep
// modifying the live chunk. Never blocks on generation.
func (c *Cache) SnapshotChunk(key chunk.Key) (*chunk.Chunk, bool) {
	c.mu.Lock()
	e, ok := c.entries[key.Packed()]
	if ok {
		c.clock++
		e.touch = c.clock
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	e.mu.Lock()
	cp := e.ch.Clone()
	e.mu.Unlock()
	return cp, true
}

// SetLoaded flips the chunk's attached-to-live-world flag and reports the
// previous value. The cached data itself is never discarded here.
func (c *Cache) SetLoaded(key chunk.Key, loaded bool) (prev bool, ok bool) {
	c.mu.Lock()
	e, found := c.entries[key.Packed()]
	c.mu.Unlock()
	if !found {
		return false, false
	}
	<-e.ready
	e.mu.Lock()
	prev = e.ch.Loaded
	e.ch.Loaded = loaded
	e.mu.Unlock()
	return prev, true
}

// ModifyTile applies a player modification to a world tile, generating the
// owning chunk first if needed. The write happens under the chunk's
// coordinate lock.
func (c *Cache) ModifyTile(tileX, tileY int, t uint8) {
	size := c.gen.ChunkSize()
	key := chunk.KeyAt(tileX, tileY, size)
	e := c.getEntry(key)

	ox, oy := key.Origin(size)
	e.mu.Lock()
	e.ch.Modify(tileX-ox, tileY-oy, t)
	e.mu.Unlock()

	// Eviction may have raced the write and dropped the entry while it was
	// still unmodified. A modified chunk must stay resident or its overlay
	// would vanish before the next snapshot, so reinstall ours.
	p := key.Packed()
	c.mu.Lock()
	if cur, ok := c.entries[p]; !ok || cur != e {
		c.clock++
		e.touch = c.clock
		c.entries[p] = e
	}
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GeneratedKeys returns all generated coordinates in deterministic order.
func (c *Cache) GeneratedKeys() []chunk.Key {
	c.mu.Lock()
	keys := make([]chunk.Key, 0, len(c.entries))
	for p, e := range c.entries {
		select {
		case <-e.ready:
			keys = append(keys, chunk.Unpack(p))
		default:
		}
	}
	c.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CY < keys[j].CY
	})
	return keys
}

// ModifiedOverlays returns the modification overlay of every modified chunk,
// keyed by packed coordinate. This is exactly the state that must persist.
func (c *Cache) ModifiedOverlays() map[int64]map[int]uint8 {
	c.mu.Lock()
	entries := make(map[int64]*entry, len(c.entries))
	for p, e := range c.entries {
		entries[p] = e
	}
	c.mu.Unlock()

	out := map[int64]map[int]uint8{}
	for p, e := range entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		e.mu.Lock()
		if ov := e.ch.Overlay(); ov != nil {
			out[p] = ov
		}
		e.mu.Unlock()
	}
	return out
}

// evictLocked drops the least recently touched entries that are generated,
// unloaded and unmodified until the cache fits the bound. Modified chunks
// are always retained.
func (c *Cache) evictLocked() {
	if c.maxChunks <= 0 {
		return
	}
	for len(c.entries) > c.maxChunks {
		var victim int64
		var victimEntry *entry
		found := false
		for p, e := range c.entries {
			select {
			case <-e.ready:
			default:
				continue // in-flight, never evict
			}
			e.mu.Lock()
			evictable := !e.ch.Loaded && !e.ch.Modified()
			e.mu.Unlock()
			if !evictable {
				continue
			}
			if !found || e.touch < victimEntry.touch {
				victim, victimEntry, found = p, e, true
			}
		}
		if !found {
			return
		}
		delete(c.entries, victim)
	}
}
