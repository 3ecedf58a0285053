package save

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/state"
)

func sample() state.PlayerState {
	r := catalogs.Epic
	s := state.Default("m-orig")
	s.Balance = 1234.5
	s.LifetimeEarned = 9e20
	s.Inventory = []string{"m-orig", "u-white", "u-white"}
	s.EquippedIDs = []string{"u-white"}
	s.RebirthCount = 3
	s.UpgradeLevels = map[string]int{"click-1": 7, "boost-slot": 1}
	s.AdminModeEnabled = true
	s.CPSMultiplier = 2
	s.ForcedRarity = &r
	s.BulkCrateOpening = true
	return s
}

func mustDecode(t *testing.T, blob string) state.PlayerState {
	t.Helper()
	got, err := Decode([]byte(blob), state.Default("m-orig"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestRoundTripNormalisesSaveState(t *testing.T) {
	s := sample()
	s.SaveState = state.Saving
	blob, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := mustDecode(t, string(blob))

	want := s.Clone()
	want.SaveState = state.Saved
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestDecodeMergesOverDefaults(t *testing.T) {
	got := mustDecode(t, `{"balance": 42, "someFutureField": {"x": 1}}`)
	if got.Balance != 42 || got.TapMultiplier != 1 || got.SaveState != state.Saved {
		t.Fatalf("got %+v", got)
	}
	if !reflect.DeepEqual(got.Inventory, []string{"m-orig"}) {
		t.Fatalf("inventory=%v", got.Inventory)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	def := state.Default("m-orig")
	for _, in := range []string{`{not json`, `[1,2]`, `"balance"`} {
		got, err := Decode([]byte(in), def)
		if err == nil {
			t.Fatalf("%s: expected error", in)
		}
		if !reflect.DeepEqual(got, def) {
			t.Fatalf("%s: defaults not returned: %+v", in, got)
		}
	}
}

func TestDecodeKeepsDefaultForBadField(t *testing.T) {
	blob := `{"balance":123456,"rebirthCount":3,"upgradeLevels":{"click-1":7},
		"forcedRarity":"Celestial","tapMultiplier":"fast","inventory":["m-orig","u-white"]}`
	got, skipped, err := DecodeFields([]byte(blob), state.Default("m-orig"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sort.Strings(skipped)
	if !reflect.DeepEqual(skipped, []string{"forcedRarity", "tapMultiplier"}) {
		t.Fatalf("skipped=%v", skipped)
	}
	if got.Balance != 123456 || got.RebirthCount != 3 || got.UpgradeLevels["click-1"] != 7 {
		t.Fatalf("progress lost: %+v", got)
	}
	if !reflect.DeepEqual(got.Inventory, []string{"m-orig", "u-white"}) {
		t.Fatalf("inventory=%v", got.Inventory)
	}
	if got.ForcedRarity != nil || got.TapMultiplier != 1 {
		t.Fatalf("bad fields should keep defaults: rarity=%v tap=%v", got.ForcedRarity, got.TapMultiplier)
	}

	// A non-integer level drops the whole level map, not the save.
	got = mustDecode(t, `{"balance":9,"upgradeLevels":{"click-1":1.5}}`)
	if got.Balance != 9 || len(got.UpgradeLevels) != 0 {
		t.Fatalf("got balance=%v levels=%v", got.Balance, got.UpgradeLevels)
	}
}

func TestDecodeLegacyBrowserSave(t *testing.T) {
	got := mustDecode(t, `{"mep":null,"totalMepEarned":5000,"cps":3,"clickPower":1.3,"critChance":0.1,
		"inventory":["m-orig","m-zero"],"equippedIds":["m-zero"],"rebirths":2,
		"upgrades":{"click-1":3},"saveStatus":"Saving","isAdminEnabled":true,"isFrozen":false,
		"infiniteMep":true,"adminCpsMultiplier":1,"adminClickPowerMultiplier":1,
		"adminCpsFlatBonus":0,"noUpgradeCost":false,"forcedRarity":"Secret","autoOpenCrates":true}`)
	if got.Balance != 0 || got.LifetimeEarned != 5000 || got.RebirthCount != 2 {
		t.Fatalf("totals: %+v", got)
	}
	if got.UpgradeLevels["click-1"] != 3 {
		t.Fatalf("levels=%v", got.UpgradeLevels)
	}
	if !got.AdminModeEnabled || !got.UnlimitedBalance || !got.BulkCrateOpening {
		t.Fatalf("flags: %+v", got)
	}
	if got.ForcedRarity == nil || *got.ForcedRarity != catalogs.Secret {
		t.Fatalf("forcedRarity=%v", got.ForcedRarity)
	}
	if got.SaveState != state.Saved {
		t.Fatalf("saveState=%v", got.SaveState)
	}
}

func TestEncodeSaturatesNonFinite(t *testing.T) {
	s := sample()
	s.Balance = math.Inf(1)
	blob, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := mustDecode(t, string(blob)); got.Balance != math.MaxFloat64 {
		t.Fatalf("balance=%v", got.Balance)
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	const key = "monster-clicker-save"
	if _, err := st.Load(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load empty: %v", err)
	}
	for _, blob := range []string{`{"balance":1}`, `{"balance":2}`} {
		if err := st.Save(key, []byte(blob)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	b, err := st.Load(key)
	if err != nil || string(b) != `{"balance":2}` {
		t.Fatalf("load=%q err=%v", b, err)
	}
	for i := 0; i < 2; i++ {
		if err := st.Delete(key); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if _, err := st.Load(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load after delete: %v", err)
	}
}

func TestMemoryStore(t *testing.T) { exerciseStore(t, NewMemory()) }

func TestFileStorePlain(t *testing.T) {
	exerciseStore(t, FileStore{Dir: t.TempDir()})
}

func TestFileStoreCompressed(t *testing.T) {
	dir := t.TempDir()
	fs := FileStore{Dir: dir, Compress: true}
	exerciseStore(t, fs)
	if got := fs.Path("monster-clicker-save"); got != filepath.Join(dir, "monster-clicker-save.json.zst") {
		t.Fatalf("path=%s", got)
	}
	if got := (FileStore{Dir: dir}).Path("a/b"); got != filepath.Join(dir, "a_b.json") {
		t.Fatalf("path=%s", got)
	}
}

func TestCompressedLayout(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Version: 1, Key: "k", Size: 3}
	if err := WriteCompressed(&buf, h, []byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	gotH, blob, err := ReadCompressed(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if gotH != h || string(blob) != "abc" {
		t.Fatalf("header=%+v blob=%q", gotH, blob)
	}
}

func TestSQLiteStore(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "save.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)

	if err := st.Save("k", []byte("{}")); err != nil {
		t.Fatalf("save: %v", err)
	}
	at, err := st.UpdatedAt("k")
	if err != nil {
		t.Fatalf("updated_at: %v", err)
	}
	if d := time.Since(at); d > time.Minute || d < -time.Minute {
		t.Fatalf("updated_at=%v", at)
	}
}

func TestPolicyDue(t *testing.T) {
	p := DefaultPolicy()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if p.Due(t0, t0.Add(120*time.Second)) {
		t.Fatalf("due at exactly the threshold")
	}
	if !p.Due(t0, t0.Add(121*time.Second)) {
		t.Fatalf("not due past the threshold")
	}
}
