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

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/sim/state"
	"mepclicker.app/internal/sim/tuning"
)

// SQLiteIndex is a secondary read index. Writes are queued to a single writer
// goroutine and dropped when it falls behind; the audit JSONL files and the
// save blob remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAudit     atomic.Uint64
	dropSave      atomic.Uint64
	dropTelemetry atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSave
	reqTelemetry
)

type req struct {
	kind reqKind

	audit     game.AuditEntry
	save      SaveRow
	telemetry TelemetryRow
}

type SaveRow struct {
	At             time.Time
	Balance        float64
	LifetimeEarned float64
	ProductionRate float64
	RebirthCount   int
	Inventory      int
	Equipped       int
	AdminMode      bool
}

type TelemetryRow struct {
	ReceivedAt time.Time
	SessionID  string
	MEP        float64
	TotalMEP   float64
	Rebirths   int
	Raw        []byte
}

type Stats struct {
	QueueDepth         int
	QueueCapacity      int
	DropAuditTotal     uint64
	DropSaveTotal      uint64
	DropTelemetryTotal uint64
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
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			gain REAL NOT NULL,
			cost REAL NOT NULL,
			balance REAL NOT NULL,
			items INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action_at ON audits(action, at);`,
		`CREATE TABLE IF NOT EXISTS saves (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			balance REAL NOT NULL,
			lifetime_earned REAL NOT NULL,
			production_rate REAL NOT NULL,
			rebirth_count INTEGER NOT NULL,
			inventory INTEGER NOT NULL,
			equipped INTEGER NOT NULL,
			admin_mode INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS telemetry (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			received_at TEXT NOT NULL,
			session_id TEXT,
			mep REAL NOT NULL,
			total_mep REAL NOT NULL,
			rebirths INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_session ON telemetry(session_id, received_at);`,
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

// DB exposes the handle for read queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropAuditTotal:     s.dropAudit.Load(),
		DropSaveTotal:      s.dropSave.Load(),
		DropTelemetryTotal: s.dropTelemetry.Load(),
	}
}

func (s *SQLiteIndex) WriteAudit(entry game.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

// RecordSave matches game.Config.OnSaved.
func (s *SQLiteIndex) RecordSave(at time.Time, st state.PlayerState) {
	if s == nil || s.closed.Load() {
		return
	}
	r := SaveRow{
		At:             at,
		Balance:        st.Balance,
		LifetimeEarned: st.LifetimeEarned,
		ProductionRate: st.ProductionRate,
		RebirthCount:   st.RebirthCount,
		Inventory:      len(st.Inventory),
		Equipped:       len(st.EquippedIDs),
		AdminMode:      st.AdminModeEnabled,
	}
	select {
	case s.ch <- req{kind: reqSave, save: r}:
	default:
		s.dropSave.Add(1)
	}
}

func (s *SQLiteIndex) RecordTelemetry(r TelemetryRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTelemetry, telemetry: r}:
	default:
		s.dropTelemetry.Add(1)
	}
}

// UpsertCatalogs stores the raw catalog files and the applied tuning with
// their digests. It writes synchronously.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	read := func(name, file, digest string) {
		if configDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	read("items", "items.json", cats.Items.Digest)
	read("upgrades", "upgrades.json", cats.Upgrades.Digest)
	read("crates", "crates.json", cats.Crates.Digest)
	read("rebirth_stages", "rebirth_stages.json", cats.Rebirth.Digest)

	// Tuning: store the values we actually apply (canonical JSON).
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

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(at,action,target,gain,cost,balance,items,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT INTO saves(at,balance,lifetime_earned,production_rate,rebirth_count,inventory,equipped,admin_mode) VALUES(?,?,?,?,?,?,?,?)`)
	insertTelemetry, _ := s.db.Prepare(`INSERT INTO telemetry(received_at,session_id,mep,total_mep,rebirths,raw_json) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAudit, insertSave, insertTelemetry} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
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
	exec := func(stmt *sql.Stmt, args ...any) {
		if stmt == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(stmt).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for {
		var (
			r  req
			ok bool
		)
		if tx == nil {
			r, ok = <-s.ch
		} else {
			// Commit an idle batch instead of holding it open until the next write.
			select {
			case r, ok = <-s.ch:
			case <-time.After(commitMaxWait):
				commit()
				continue
			}
		}
		if !ok {
			break
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			raw, _ := json.Marshal(a)
			exec(insertAudit, ts(a.At), a.Action, a.Target, a.Gain, a.Cost, a.Balance, len(a.Items), string(raw))
		case reqSave:
			sv := r.save
			exec(insertSave, ts(sv.At), sv.Balance, sv.LifetimeEarned, sv.ProductionRate, sv.RebirthCount, sv.Inventory, sv.Equipped, boolInt(sv.AdminMode))
		case reqTelemetry:
			tl := r.telemetry
			exec(insertTelemetry, ts(tl.ReceivedAt), tl.SessionID, tl.MEP, tl.TotalMEP, tl.Rebirths, string(tl.Raw))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func ts(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
