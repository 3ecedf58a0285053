package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mepclicker.app/internal/persistence/save"
	"mepclicker.app/internal/protocol"
	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/state"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func asAny(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile(t, "hello.schema.json"), asAny(t, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "browser",
		MaxQueue:        16,
	}))

	digest := protocol.DigestRef{Digest: strings.Repeat("a", 64), Count: 1}
	validate(compile(t, "welcome.schema.json"), asAny(t, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		Catalogs: protocol.CatalogDigests{
			Items:         digest,
			Upgrades:      digest,
			Crates:        digest,
			RebirthStages: digest,
		},
		State: protocol.StateView{
			PlayerState: state.Default("m-orig"),
			BalanceText: "0",
			SlotLimit:   1,
		},
	}))

	act := compile(t, "act.schema.json")
	validate(act, asAny(t, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "a1", Op: protocol.OpTap, X: 3, Y: 4}))
	validate(act, asAny(t, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "a2", Op: protocol.OpUpgrade, UpgradeID: "click-1"}))
	if err := act.Validate(asAny(t, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "a3", Op: protocol.OpOpenCrate})); err == nil {
		t.Fatalf("expected OPEN_CRATE without crate_id to be rejected")
	}
	if err := act.Validate(asAny(t, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "a4", Op: "DANCE"})); err == nil {
		t.Fatalf("expected unknown op to be rejected")
	}
}

func TestSchemas_ValidateSaveBlob(t *testing.T) {
	s := compile(t, "save.schema.json")

	st := state.Default("m-orig")
	st.Balance = 1e40
	r := catalogs.Legendary
	st.ForcedRarity = &r
	st.UpgradeLevels["click-1"] = 3
	blob, err := save.Encode(st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var v any
	if err := json.Unmarshal(blob, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"balance":"lots","lifetimeEarned":0,"inventory":[],"equippedIds":[],"rebirthCount":0,"upgradeLevels":{}}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("expected string balance to be rejected")
	}
}

func TestActTarget(t *testing.T) {
	cases := []struct {
		act  protocol.ActMsg
		want string
		need bool
	}{
		{protocol.ActMsg{Op: protocol.OpTap}, "", false},
		{protocol.ActMsg{Op: protocol.OpUpgrade, UpgradeID: "u"}, "u", true},
		{protocol.ActMsg{Op: protocol.OpOpenCrate, CrateID: "c"}, "c", true},
		{protocol.ActMsg{Op: protocol.OpEquip, ItemID: "i"}, "i", true},
		{protocol.ActMsg{Op: protocol.OpSell, ItemID: "i"}, "i", true},
		{protocol.ActMsg{Op: protocol.OpRebirth}, "", false},
	}
	for _, c := range cases {
		got, need := c.act.Target()
		if got != c.want || need != c.need {
			t.Fatalf("%s: got (%q,%v) want (%q,%v)", c.act.Op, got, need, c.want, c.need)
		}
	}
	if protocol.KnownOp("DANCE") || !protocol.KnownOp(protocol.OpSave) {
		t.Fatalf("KnownOp mismatch")
	}
}
