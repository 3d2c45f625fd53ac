package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"overwild.dev/internal/gen/catalogs"
	"overwild.dev/internal/gen/tuning"
	"overwild.dev/internal/persistence/indexdb"
	persistlog "overwild.dev/internal/persistence/log"
	"overwild.dev/internal/persistence/snapshot"
	"overwild.dev/internal/transport/ws"
	"overwild.dev/internal/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemaDir  = flag.String("schemas", "./schemas", "schema directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

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
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)
	snapDir := filepath.Join(worldDir, "snapshots")

	// Optional: read-model index (does not affect generation determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	w := world.New(*worldID, *seed, cats, tune, logger)
	defer w.Close()

	// Resume from snapshot if one exists.
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		p, err := snapshot.Latest(snapDir)
		if err != nil {
			logger.Fatalf("scan snapshots: %v", err)
		}
		snapshotToLoad = p
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.Load(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.RestoreSnapshot(snap); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s generated=%d modified=%d",
			filepath.Base(snapshotToLoad), len(snap.Generated), len(snap.Modified))
	}

	streamLog := persistlog.NewStreamLogger(worldDir)
	modifyLog := persistlog.NewModifyLogger(worldDir)
	defer streamLog.Close()
	defer modifyLog.Close()
	w.Subscribe(func(ev world.Event) {
		_ = streamLog.WriteEvent(ev.Kind.String(), ev.Key.CX, ev.Key.CY)
		idx.WriteEvent(ev.Kind.String(), ev.Key.CX, ev.Key.CY)
	})
	w.OnModify(func(x, y int, terrain uint8) {
		_ = modifyLog.WriteModify(x, y, terrain)
		idx.WriteModify(x, y, terrain)
	})

	ctx, cancel := signalContext()
	defer cancel()

	saveSnapshot := func() {
		snap := w.ExportSnapshot()
		stamp := time.Now().UTC().Format("20060102T150405")
		path := filepath.Join(snapDir, fmt.Sprintf("snap-%s.json.zst", stamp))
		if err := snapshot.Save(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		idx.RecordSnapshot(path, snap)
		logger.Printf("snapshot saved: %s generated=%d modified=%d",
			filepath.Base(path), len(snap.Generated), len(snap.Modified))
	}

	// Periodic snapshot writer.
	if tune.SnapshotEverySec > 0 {
		go func() {
			t := time.NewTicker(time.Duration(tune.SnapshotEverySec) * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					saveSnapshot()
				}
			}
		}()
	}

	wsSrv := ws.NewServer(w, logger)
	defer wsSrv.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP overwild_world_loaded_chunks Chunks attached to the live world.\n")
		fmt.Fprintf(rw, "# TYPE overwild_world_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "overwild_world_loaded_chunks{world=%q} %d\n", *worldID, len(w.LoadedChunks()))

		fmt.Fprintf(rw, "# HELP overwild_world_cached_chunks Generated chunks resident in the cache.\n")
		fmt.Fprintf(rw, "# TYPE overwild_world_cached_chunks gauge\n")
		fmt.Fprintf(rw, "overwild_world_cached_chunks{world=%q} %d\n", *worldID, w.CachedChunks())
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (world=%s seed=%d)", *addr, *worldID, *seed)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Final snapshot on shutdown.
	saveSnapshot()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
