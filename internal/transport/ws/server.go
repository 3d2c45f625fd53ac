// Package ws exposes the world over a websocket observer feed. Observers
// send position and tile-modification messages; the server streams back
// chunk load/unload events and full chunk payloads.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"overwild.dev/internal/gen/chunk"
	"overwild.dev/internal/protocol"
	"overwild.dev/internal/world"
)

type posUpdate struct {
	X, Y int
}

type client struct {
	id  string
	out chan []byte
}

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
	nextID  atomic.Int64

	pos  chan posUpdate
	done chan struct{}
	once sync.Once
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[*client]bool{},
		pos:     make(chan posUpdate, 256),
		done:    make(chan struct{}),
	}
	go s.pump()
	return s
}

// Close stops the streaming pump. Open connections drain on their own.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
}

// pump owns observer movement: the streamer must see position updates from a
// single goroutine, so every connection funnels through here. The ticker
// re-runs the last position so chunks generated in the background still
// surface their load events between client messages.
func (s *Server) pump() {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	var last posUpdate
	have := false
	step := func(p posUpdate) {
		for _, ev := range s.world.UpdateObserver(p.X, p.Y) {
			s.broadcastEvent(ev)
		}
	}
	for {
		select {
		case <-s.done:
			return
		case p := <-s.pos:
			last, have = p, true
			step(p)
		case <-tick.C:
			if have {
				step(last)
			}
		}
	}
}

func (s *Server) broadcastEvent(ev world.Event) {
	msg := protocol.EventMsg{
		Type: protocol.TypeEvent,
		Kind: ev.Kind.String(),
		CX:   ev.Key.CX,
		CY:   ev.Key.CY,
	}
	s.broadcast(msg)

	if ev.Kind != world.EventLoad {
		return
	}
	// Copy under the coordinate lock: readers modify tiles concurrently.
	ch, ok := s.world.SnapshotChunk(ev.Key)
	if !ok {
		return
	}
	s.broadcast(chunkPayload(ch))
}

func chunkPayload(ch *chunk.Chunk) protocol.ChunkMsg {
	msg := protocol.ChunkMsg{
		Type:    protocol.TypeChunk,
		CX:      ch.Key.CX,
		CY:      ch.Key.CY,
		Size:    ch.Size,
		Terrain: widen(ch.Terrain),
		Biomes:  ch.Biomes,
	}
	for _, st := range ch.Structures {
		ref := protocol.StructureRef{
			TemplateID: st.TemplateID,
			AnchorX:    st.Anchor.X,
			AnchorY:    st.Anchor.Y,
			W:          st.W,
			H:          st.H,
			Layout:     widen(st.Layout),
		}
		for _, p := range st.Loot {
			ref.Loot = append(ref.Loot, [2]int{p.X, p.Y})
		}
		for _, p := range st.Enemies {
			ref.Enemies = append(ref.Enemies, [2]int{p.X, p.Y})
		}
		msg.Structures = append(msg.Structures, ref)
	}
	for _, r := range ch.Resources {
		msg.Resources = append(msg.Resources, protocol.ResourceRef{
			ID:        r.ID,
			X:         r.Pos.X,
			Y:         r.Pos.Y,
			Collected: r.Collected,
		})
	}
	return msg
}

func widen(b []uint8) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func (s *Server) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.out <- b:
		default:
			// Slow consumer: drop rather than stall the stream.
		}
	}
	s.mu.Unlock()
}

func (s *Server) attach(c *client) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		s.attach(c)
		defer s.detach(c)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-c.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypePos:
				var pos protocol.PosMsg
				if err := json.Unmarshal(msg, &pos); err != nil {
					continue
				}
				if pos.ProtocolVersion != protocol.Version {
					continue
				}
				select {
				case s.pos <- posUpdate{X: pos.X, Y: pos.Y}:
				default:
					// Movement backlog: the next update supersedes this one.
				}
			case protocol.TypeModify:
				var mod protocol.ModifyMsg
				if err := json.Unmarshal(msg, &mod); err != nil {
					continue
				}
				if mod.ProtocolVersion != protocol.Version {
					continue
				}
				s.world.ModifyTile(mod.X, mod.Y, mod.Terrain)
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	if hello.ObserverName == "" {
		hello.ObserverName = "observer"
	}

	c := &client{
		id:  fmt.Sprintf("%s-%d", hello.ObserverName, s.nextID.Add(1)),
		out: make(chan []byte, 64),
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ObserverID:      c.id,
		WorldParams: protocol.WorldParams{
			WorldID:        s.world.ID(),
			Seed:           s.world.Seed(),
			ChunkSize:      s.world.ChunkSize(),
			LoadRadius:     s.world.LoadRadius(),
			UnloadDistance: s.world.UnloadDistance(),
		},
		Catalogs: protocol.CatalogDigests{
			BiomesDigest:     s.world.BiomesDigest(),
			StructuresDigest: s.world.StructuresDigest(),
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return c
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
