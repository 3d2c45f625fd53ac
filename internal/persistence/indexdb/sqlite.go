// Package indexdb maintains a queryable SQLite read-model over the event
// logs and snapshots. The JSONL logs remain the source of truth; the index
// can always be rebuilt from them.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/tuning"
	"overwild.dev/internal/persistence/snapshot"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqModify
	reqSnapshot
)

type req struct {
	kind reqKind

	event    eventRow
	modify   modifyRow
	snapshot snapshotRow
}

type eventRow struct {
	TS   string
	Kind string
	CX   int
	CY   int
}

type modifyRow struct {
	TS      string
	X, Y    int
	Terrain uint8
}

type snapshotRow struct {
	SavedAt   string
	Path      string
	Seed      int64
	Generated int
	Modified  int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: a teleporting observer loads many chunks at once.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stream_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			kind TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stream_events_pos ON stream_events(cx, cy);`,
		`CREATE TABLE IF NOT EXISTS modifications (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			terrain INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_modifications_pos ON modifications(x, y);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			saved_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			generated INTEGER NOT NULL,
			modified INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_saved_at ON snapshots(saved_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteEvent(kind string, cx, cy int) {
	if s == nil || s.closed.Load() {
		return
	}
	r := eventRow{
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
		Kind: kind,
		CX:   cx,
		CY:   cy,
	}
	select {
	case s.ch <- req{kind: reqEvent, event: r}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

func (s *SQLiteIndex) WriteModify(x, y int, terrain uint8) {
	if s == nil || s.closed.Load() {
		return
	}
	r := modifyRow{
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		X:       x,
		Y:       y,
		Terrain: terrain,
	}
	select {
	case s.ch <- req{kind: reqModify, modify: r}:
	default:
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		SavedAt:   snap.Header.SavedAt,
		Path:      path,
		Seed:      snap.Seed,
		Generated: len(snap.Generated),
		Modified:  len(snap.Modified),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

// UpsertCatalogs stores the raw catalog JSON and applied tuning alongside
// their digests so tooling can inspect exactly what a world ran with.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	read := func(name, digest, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	if configDir != "" {
		read("biomes", cats.Biomes.Digest, filepath.Join(configDir, "biomes.json"))
		read("structures", cats.Structures.Digest, filepath.Join(configDir, "structures.json"))
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestSnapshot returns the most recently recorded snapshot path.
func (s *SQLiteIndex) LatestSnapshot() (path string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT path FROM snapshots ORDER BY saved_at DESC LIMIT 1`)
	if err := row.Scan(&path); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return path, true, nil
}

// ModificationCount reports how many tile modifications the index holds.
func (s *SQLiteIndex) ModificationCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM modifications`).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO stream_events(ts,kind,cx,cy) VALUES(?,?,?,?)`)
	insertModify, _ := s.db.Prepare(`INSERT INTO modifications(ts,x,y,terrain) VALUES(?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,saved_at,seed,generated,modified) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertModify != nil {
			_ = insertModify.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			if insertEvent != nil {
				e := r.event
				if _, err := tx.Stmt(insertEvent).Exec(e.TS, e.Kind, e.CX, e.CY); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		case reqModify:
			if insertModify != nil {
				m := r.modify
				if _, err := tx.Stmt(insertModify).Exec(m.TS, m.X, m.Y, int(m.Terrain)); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		case reqSnapshot:
			if insertSnapshot != nil {
				sn := r.snapshot
				if _, err := tx.Stmt(insertSnapshot).Exec(sn.Path, sn.SavedAt, sn.Seed, sn.Generated, sn.Modified); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
