package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mepclicker.app/internal/persistence/archive"
	persistlog "mepclicker.app/internal/persistence/log"
	"mepclicker.app/internal/persistence/save"
	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/clock"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/sim/state"
	"mepclicker.app/internal/sim/tuning"
)

func engineSave(t *testing.T) (*catalogs.Catalogs, []byte) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	require.NoError(t, err)
	e, err := game.New(game.Config{
		Catalogs: cats,
		Tuning:   tuning.Defaults(),
		Clock:    clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Store:    save.NewMemory(),
	})
	require.NoError(t, err)
	defer e.Close()
	require.True(t, e.SetBalance(1500))
	require.True(t, e.SetFrozen(true))
	blob, err := save.Encode(e.Snapshot())
	require.NoError(t, err)
	return cats, blob
}

func TestSummarizeSave_AllBackends(t *testing.T) {
	cats, blob := engineSave(t)
	dir := t.TempDir()
	key := tuning.Defaults().SaveKey

	plain := save.FileStore{Dir: dir}
	require.NoError(t, plain.Save(key, blob))
	zst := save.FileStore{Dir: dir, Compress: true}
	require.NoError(t, zst.Save(key, blob))
	sqlitePath := filepath.Join(dir, "saves.sqlite")
	db, err := save.OpenSQLite(sqlitePath)
	require.NoError(t, err)
	require.NoError(t, db.Save(key, blob))
	require.NoError(t, db.Close())

	for _, src := range []struct{ path, sqlite string }{
		{plain.Path(key), ""},
		{zst.Path(key), ""},
		{"", sqlitePath},
	} {
		got, err := loadBlob(src.path, src.sqlite, key)
		require.NoError(t, err)
		var out bytes.Buffer
		require.NoError(t, summarizeSave(&out, got, cats, tuning.Defaults()))
		s := out.String()
		require.Contains(t, s, "balance=1.50K")
		require.Contains(t, s, "inventory=1 [Common=1]")
		require.Contains(t, s, "equipped=m-orig")
		require.Contains(t, s, "overrides=frozen")
		require.NotContains(t, s, "warning")
	}
}

func TestSummarizeSave_FlagsDrift(t *testing.T) {
	cats, _ := engineSave(t)
	var out bytes.Buffer
	blob := []byte(`{"balance":1,"productionRate":123456,"inventory":["m-orig"],"equippedIds":["m-orig"]}`)
	require.NoError(t, summarizeSave(&out, blob, cats, tuning.Defaults()))
	require.Contains(t, out.String(), "warning: stored stats differ")
}

func TestSummarizeSave_ReportsSkippedFields(t *testing.T) {
	cats, _ := engineSave(t)
	var out bytes.Buffer
	blob := []byte(`{"balance":5,"forcedRarity":"Celestial","inventory":["m-orig"],"equippedIds":["m-orig"]}`)
	require.NoError(t, summarizeSave(&out, blob, cats, tuning.Defaults()))
	require.Contains(t, out.String(), "warning: unreadable fields kept defaults: forcedRarity\n")
	require.Contains(t, out.String(), "balance=5 ")
}

func TestSummarizeAudit(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewAuditLogger(dir)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.WriteAudit(game.AuditEntry{At: at, Action: "UPGRADE", Target: "click-1", Cost: 10, Balance: 5}))
	require.NoError(t, l.WriteAudit(game.AuditEntry{At: at, Action: "SELL", Target: "m-orig", Gain: 2, Balance: 7}))
	require.NoError(t, l.WriteAudit(game.AuditEntry{At: at, Action: "UPGRADE", Target: "click-1", Cost: 15, Balance: 1}))
	require.NoError(t, l.Close())

	var out bytes.Buffer
	require.NoError(t, summarizeAudit(&out, filepath.Join(dir, "audit"), 1))
	s := out.String()
	require.Contains(t, s, "audit files=1 spent=25 gained=2")
	require.Contains(t, s, "  UPGRADE=2\n")
	require.Contains(t, s, "  SELL=1\n")
	require.Contains(t, s, "2026-01-01T00:00:00Z UPGRADE click-1 balance=1\n")
	require.NotContains(t, s, "SELL m-orig")
}

func TestSummarizeArchives(t *testing.T) {
	dir := t.TempDir()
	st := state.Default("m-orig")
	st.RebirthCount = 3
	st.LifetimeEarned = 2e6
	_, ok, err := archive.ArchiveRebirth(dir, st, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ok)

	var out bytes.Buffer
	require.NoError(t, summarizeArchives(&out, dir))
	require.Equal(t, "rebirth 3 lifetime=2.00M items=1 at=2026-01-01T00:00:00Z\n", out.String())
}
