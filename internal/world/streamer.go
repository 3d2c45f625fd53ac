package world

import (
	"sort"
	"sync"
	"time"

	"overwild.dev/internal/gen/chunk"
	"overwild.dev/internal/gen/mathx"
)

type EventKind int

const (
	EventLoad EventKind = iota
	EventUnload
)

func (k EventKind) String() string {
	if k == EventLoad {
		return "chunk_loaded"
	}
	return "chunk_unloaded"
}

type Event struct {
	Kind EventKind
	Key  chunk.Key
}

// Streamer decides which chunks are attached to the live world around an
// observer. Generation runs on a worker pool; Update is called from the main
// loop and never blocks on generation.
//
// load radius and unload distance form a hysteresis band: a chunk loads when
// it comes within loadRadius of the observer and unloads only once it is
// farther than unloadDist, so small movements at a boundary never thrash.
type Streamer struct {
	cache      *Cache
	loadRadius int
	unloadDist int

	// Owned by the Update caller's goroutine.
	loaded map[chunk.Key]bool

	jobs    chan chunk.Key
	done    chan chunk.Key
	pending map[chunk.Key]bool
	wg      sync.WaitGroup

	closeOnce sync.Once
}

func NewStreamer(cache *Cache, loadRadius, unloadDist, workers int) *Streamer {
	if loadRadius < 0 {
		loadRadius = 0
	}
	if unloadDist < loadRadius {
		unloadDist = loadRadius
	}
	if workers <= 0 {
		workers = 1
	}
	s := &Streamer{
		cache:      cache,
		loadRadius: loadRadius,
		unloadDist: unloadDist,
		loaded:     map[chunk.Key]bool{},
		jobs:       make(chan chunk.Key, 4096),
		done:       make(chan chunk.Key, 4096),
		pending:    map[chunk.Key]bool{},
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *Streamer) worker() {
	defer s.wg.Done()
	for key := range s.jobs {
		s.cache.GetOrGenerate(key)
		s.done <- key
	}
}

func (s *Streamer) Close() {
	s.closeOnce.Do(func() { close(s.jobs) })
	s.wg.Wait()
}

// Loaded returns the currently loaded keys in deterministic order.
func (s *Streamer) Loaded() []chunk.Key {
	keys := make([]chunk.Key, 0, len(s.loaded))
	for k := range s.loaded {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CY < keys[j].CY
	})
	return keys
}

func chebyshev(a, b chunk.Key) int {
	dx := mathx.AbsInt(a.CX - b.CX)
	dy := mathx.AbsInt(a.CY - b.CY)
	if dx > dy {
		return dx
	}
	return dy
}

// Update advances streaming for an observer at a world tile position and
// returns the load/unload events produced this tick. Call from one goroutine.
func (s *Streamer) Update(tileX, tileY int) []Event {
	center := chunk.KeyAt(tileX, tileY, s.cache.gen.ChunkSize())
	var events []Event

	// Collect chunks whose generation finished since the last tick.
	for {
		select {
		case k := <-s.done:
			delete(s.pending, k)
			if !s.loaded[k] && chebyshev(k, center) <= s.loadRadius {
				events = append(events, s.load(k)...)
			}
			// A chunk the observer moved away from stays cached, unloaded.
			continue
		default:
		}
		break
	}

	// Want everything within the load radius, nearest first so the ground
	// under the observer materializes before the fringe.
	wanted := make([]chunk.Key, 0, (2*s.loadRadius+1)*(2*s.loadRadius+1))
	for dy := -s.loadRadius; dy <= s.loadRadius; dy++ {
		for dx := -s.loadRadius; dx <= s.loadRadius; dx++ {
			wanted = append(wanted, chunk.Key{CX: center.CX + dx, CY: center.CY + dy})
		}
	}
	sort.Slice(wanted, func(i, j int) bool {
		di, dj := chebyshev(wanted[i], center), chebyshev(wanted[j], center)
		if di != dj {
			return di < dj
		}
		if wanted[i].CX != wanted[j].CX {
			return wanted[i].CX < wanted[j].CX
		}
		return wanted[i].CY < wanted[j].CY
	})

	for _, k := range wanted {
		if s.loaded[k] || s.pending[k] {
			continue
		}
		if _, ok := s.cache.TryGet(k); ok {
			events = append(events, s.load(k)...)
			continue
		}
		select {
		case s.jobs <- k:
			s.pending[k] = true
		default:
			// Queue full: retry next tick.
		}
	}

	// Unload only beyond the hysteresis distance.
	for _, k := range s.Loaded() {
		if chebyshev(k, center) > s.unloadDist {
			delete(s.loaded, k)
			s.cache.SetLoaded(k, false)
			events = append(events, Event{Kind: EventUnload, Key: k})
		}
	}
	return events
}

func (s *Streamer) load(k chunk.Key) []Event {
	prev, ok := s.cache.SetLoaded(k, true)
	if !ok {
		return nil
	}
	s.loaded[k] = true
	if prev {
		return nil
	}
	return []Event{{Kind: EventLoad, Key: k}}
}

// Settle drives Update until every chunk within the load radius is loaded.
// Meant for tests and synchronous tooling, not the interactive loop.
func (s *Streamer) Settle(tileX, tileY int) []Event {
	var events []Event
	for {
		events = append(events, s.Update(tileX, tileY)...)
		if len(s.pending) == 0 && s.allWantedLoaded(tileX, tileY) {
			return events
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Streamer) allWantedLoaded(tileX, tileY int) bool {
	center := chunk.KeyAt(tileX, tileY, s.cache.gen.ChunkSize())
	for dy := -s.loadRadius; dy <= s.loadRadius; dy++ {
		for dx := -s.loadRadius; dx <= s.loadRadius; dx++ {
			if !s.loaded[chunk.Key{CX: center.CX + dx, CY: center.CY + dy}] {
				return false
			}
		}
	}
	return true
}
