package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mepclicker.app/internal/persistence/archive"
	"mepclicker.app/internal/persistence/indexdb"
	persistlog "mepclicker.app/internal/persistence/log"
	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/sim/state"
	"mepclicker.app/internal/sim/tuning"
	"mepclicker.app/internal/telemetry"
	"mepclicker.app/internal/transport/adminhttp"
	"mepclicker.app/internal/transport/httpapi"
	"mepclicker.app/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemaDir  = flag.String("schemas", "./schemas", "json schema directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		storeKind  = flag.String("store", "file", "save store: file|zst|sqlite")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (audits, saves, telemetry, catalogs)")
		telemetryF = flag.String("telemetry", "", "comma-separated telemetry endpoints (overrides tuning)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if v := strings.TrimSpace(*telemetryF); v != "" {
		tune.Telemetry.Endpoints = strings.Split(v, ",")
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	store, closeStore, err := openStore(*storeKind, *dataDir)
	if err != nil {
		logger.Fatalf("open save store: %v", err)
	}
	defer closeStore()

	// Optional read-model index; the engine never waits on it.
	var idx *indexdb.SQLiteIndex
	if !*disableDB && envBool("MEP_INDEX_ENABLED", true) {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "mep.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index catalogs: %v", err)
		}
	}

	var reporter *telemetry.Reporter
	if len(tune.Telemetry.Endpoints) > 0 {
		cfg := telemetry.ConfigFrom(tune.Telemetry)
		cfg.Logger = logger
		reporter, err = telemetry.New(cfg)
		if err != nil {
			logger.Printf("telemetry disabled: %v", err)
		} else {
			defer reporter.Close()
			logger.Printf("telemetry session=%s endpoints=%d", reporter.SessionID(), len(cfg.Endpoints))
		}
	}

	auditFile := persistlog.NewAuditLogger(*dataDir)
	defer auditFile.Close()
	var audit game.AuditLogger = auditFile
	if idx != nil {
		audit = multiAuditLogger{a: auditFile, b: idx}
	}

	engine, err := game.New(game.Config{
		Catalogs: cats,
		Tuning:   tune,
		Store:    store,
		Logger:   logger,
		Audit:    audit,
		OnSaved:  onSaved(reporter, idx),
	})
	if err != nil {
		logger.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	events, unsubscribe := engine.Subscribe(64, game.EventRebirth)
	defer unsubscribe()
	go archiveRebirths(events, *dataDir, logger)

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	wsOpts := ws.DefaultOptions()
	if sch, err := jsonschema.Compile(filepath.Join(*schemaDir, "act.schema.json")); err != nil {
		logger.Printf("act schema unavailable: %v", err)
	} else {
		wsOpts.ActSchema = sch
	}
	wsSrv := ws.NewServer(engine, logger, wsOpts)

	var sink httpapi.TelemetrySink
	if idx != nil {
		sink = idx
	}
	schema, err := httpapi.LoadTelemetrySchema(*schemaDir)
	if err != nil {
		logger.Printf("telemetry schema unavailable, falling back to field checks: %v", err)
	}
	api := httpapi.NewServer(func() tuning.Features { return engine.Tuning().Features }, schema, sink, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpapi.HealthHandler())
	mux.HandleFunc("/metrics", httpapi.Metrics{
		Engine:    engine,
		WS:        wsSrv,
		API:       api,
		Telemetry: reporter,
		Index:     idx,
	}.Handler())
	api.Register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	enableAdminHTTP := envBool("MEP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("MEP_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		adminhttp.NewServer(engine, logger, adminhttp.Options{
			AllowRemote: envBool("MEP_ADMIN_ALLOW_REMOTE", false),
		}).Register(mux)
	} else {
		logger.Printf("admin endpoints disabled (MEP_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

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

	logger.Printf("listening on %s (store=%s)", *addr, *storeKind)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-runDone
	if !engine.RequestSave() {
		logger.Printf("final save skipped")
	}
	logger.Printf("shutdown complete")
}

// onSaved fans a completed save out to telemetry and the index. Both only
// enqueue, so they are safe under the engine lock.
func onSaved(reporter *telemetry.Reporter, idx *indexdb.SQLiteIndex) func(time.Time, state.PlayerState) {
	if reporter == nil && idx == nil {
		return nil
	}
	return func(at time.Time, s state.PlayerState) {
		if reporter != nil {
			reporter.Report(at, s)
		}
		if idx != nil {
			idx.RecordSave(at, s)
		}
	}
}

func archiveRebirths(events <-chan game.Event, dataDir string, logger *log.Logger) {
	for ev := range events {
		if ev.Type != game.EventRebirth {
			continue
		}
		path, ok, err := archive.ArchiveRebirth(dataDir, ev.State, time.Now())
		switch {
		case err != nil:
			logger.Printf("archive rebirth: %v", err)
		case ok:
			logger.Printf("archived rebirth %d to %s", ev.State.RebirthCount, path)
		}
	}
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiAuditLogger struct {
	a game.AuditLogger
	b game.AuditLogger
}

// WriteAudit writes to both sinks even when the first fails.
func (m multiAuditLogger) WriteAudit(entry game.AuditEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		errB = m.b.WriteAudit(entry)
	}
	return errors.Join(errA, errB)
}
