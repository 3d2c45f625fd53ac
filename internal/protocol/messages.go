package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ObserverName    string `json:"observer_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ObserverID      string         `json:"observer_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	WorldID        string `json:"world_id"`
	Seed           int64  `json:"seed"`
	ChunkSize      int    `json:"chunk_size"`
	LoadRadius     int    `json:"load_radius"`
	UnloadDistance int    `json:"unload_distance"`
}

type CatalogDigests struct {
	BiomesDigest     string `json:"biomes_digest"`
	StructuresDigest string `json:"structures_digest"`
}

// POS (client -> server): observer moved to a world tile.
type PosMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
}

// MODIFY (client -> server): player changed a tile.
type ModifyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Terrain         uint8  `json:"terrain"`
}

// EVENT (server -> client): a chunk attached to or detached from the live
// world around this observer.
type EventMsg struct {
	Type string `json:"type"`
	Kind string `json:"kind"` // "chunk_loaded" | "chunk_unloaded"
	CX   int    `json:"cx"`
	CY   int    `json:"cy"`
}

// CHUNK (server -> client): full payload for a loaded chunk.
// Tile slices are []int rather than []uint8: byte slices would marshal to
// base64 strings, and the wire contract is arrays of integers.
type ChunkMsg struct {
	Type       string         `json:"type"`
	CX         int            `json:"cx"`
	CY         int            `json:"cy"`
	Size       int            `json:"size"`
	Terrain    []int          `json:"terrain"`
	Biomes     []uint16       `json:"biomes"`
	Structures []StructureRef `json:"structures,omitempty"`
	Resources  []ResourceRef  `json:"resources,omitempty"`
}

type StructureRef struct {
	TemplateID string   `json:"template_id"`
	AnchorX    int      `json:"anchor_x"`
	AnchorY    int      `json:"anchor_y"`
	W          int      `json:"w"`
	H          int      `json:"h"`
	Layout     []int    `json:"layout"`
	Loot       [][2]int `json:"loot,omitempty"`
	Enemies    [][2]int `json:"enemies,omitempty"`
}

type ResourceRef struct {
	ID        string `json:"id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Collected bool   `json:"collected"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadVersion      = "E_BAD_VERSION"
)
