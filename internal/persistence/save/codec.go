package save

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"mepclicker.app/internal/sim/state"
)

// Encode serializes the full record. Non-finite numbers are saturated first.
func Encode(s state.PlayerState) ([]byte, error) {
	c := s.Clone()
	c.Sanitize()
	return json.Marshal(c)
}

// Decode merges blob over defaults field by field: missing fields keep their
// default, unknown fields are ignored and a field whose value does not parse
// keeps its default too. saveState always comes back Saved. Only a blob that
// is not a JSON object is an error.
func Decode(blob []byte, defaults state.PlayerState) (state.PlayerState, error) {
	st, _, err := DecodeFields(blob, defaults)
	return st, err
}

// DecodeFields is Decode that also names the fields it had to skip.
func DecodeFields(blob []byte, defaults state.PlayerState) (state.PlayerState, []string, error) {
	if !gjson.ValidBytes(blob) {
		return defaults, nil, fmt.Errorf("decode save: invalid json")
	}
	if root := gjson.ParseBytes(blob); !root.IsObject() {
		return defaults, nil, fmt.Errorf("decode save: not an object")
	}
	if isLegacy(blob) {
		migrated, err := migrateLegacy(blob)
		if err != nil {
			return defaults, nil, err
		}
		blob = migrated
	}
	out := defaults.Clone()
	var skipped []string
	gjson.ParseBytes(blob).ForEach(func(k, v gjson.Result) bool {
		field, err := json.Marshal(map[string]json.RawMessage{k.String(): json.RawMessage(v.Raw)})
		if err != nil {
			skipped = append(skipped, k.String())
			return true
		}
		next := out.Clone()
		if err := json.Unmarshal(field, &next); err != nil {
			skipped = append(skipped, k.String())
			return true
		}
		out = next
		return true
	})
	out.Sanitize()
	out.SaveState = state.Saved
	return out, skipped, nil
}

// Saves written by the browser build used different field names.
var legacyFields = map[string]string{
	"mep":                       "balance",
	"totalMepEarned":            "lifetimeEarned",
	"cps":                       "productionRate",
	"clickPower":                "tapPower",
	"critChance":                "critChance",
	"inventory":                 "inventory",
	"equippedIds":               "equippedIds",
	"rebirths":                  "rebirthCount",
	"upgrades":                  "upgradeLevels",
	"isAdminEnabled":            "adminModeEnabled",
	"isFrozen":                  "economyFrozen",
	"infiniteMep":               "unlimitedBalance",
	"adminCpsMultiplier":        "cpsMultiplier",
	"adminClickPowerMultiplier": "tapMultiplier",
	"adminCpsFlatBonus":         "cpsFlatBonus",
	"noUpgradeCost":             "freeCosts",
	"forcedRarity":              "forcedRarity",
	"autoOpenCrates":            "bulkCrateOpening",
}

func isLegacy(blob []byte) bool {
	r := gjson.GetManyBytes(blob, "mep", "balance")
	return r[0].Exists() && !r[1].Exists()
}

func migrateLegacy(blob []byte) ([]byte, error) {
	out := map[string]json.RawMessage{}
	gjson.ParseBytes(blob).ForEach(func(k, v gjson.Result) bool {
		name, ok := legacyFields[k.String()]
		if !ok {
			return true
		}
		// JSON.stringify(Infinity) is null; keep the default.
		if v.Type == gjson.Null && name != "forcedRarity" {
			return true
		}
		out[name] = json.RawMessage(v.Raw)
		return true
	})
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("migrate legacy save: %w", err)
	}
	return b, nil
}
