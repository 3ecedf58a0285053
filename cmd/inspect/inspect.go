package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"mepclicker.app/internal/persistence/archive"
	persistlog "mepclicker.app/internal/persistence/log"
	"mepclicker.app/internal/persistence/save"
	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/game"
	"mepclicker.app/internal/sim/notation"
	"mepclicker.app/internal/sim/state"
	"mepclicker.app/internal/sim/stats"
	"mepclicker.app/internal/sim/tuning"
)

func loadBlob(path, sqlitePath, key string) ([]byte, error) {
	if sqlitePath != "" {
		s, err := save.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.Load(key)
	}
	if !strings.HasSuffix(path, ".zst") {
		return os.ReadFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, blob, err := save.ReadCompressed(f)
	return blob, err
}

func summarizeSave(w io.Writer, blob []byte, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	st, skipped, err := save.DecodeFields(blob, state.Default(tune.StarterItem))
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		fmt.Fprintf(w, "warning: unreadable fields kept defaults: %s\n", strings.Join(skipped, ", "))
	}

	fmt.Fprintf(w, "balance=%s lifetime=%s rate=%s/s tap=%s crit=%.1f%% rebirths=%d\n",
		notation.Format(st.Balance), notation.Format(st.LifetimeEarned),
		notation.Format(st.ProductionRate), notation.Format(st.TapPower),
		st.CritChance*100, st.RebirthCount)

	byRarity := map[catalogs.Rarity]int{}
	unknown := 0
	for _, id := range st.Inventory {
		def, ok := cats.Item(id)
		if !ok {
			unknown++
			continue
		}
		byRarity[def.Rarity]++
	}
	parts := []string{}
	for _, r := range catalogs.Rarities() {
		if n := byRarity[r]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", r, n))
		}
	}
	if unknown > 0 {
		parts = append(parts, fmt.Sprintf("unknown=%d", unknown))
	}
	fmt.Fprintf(w, "inventory=%d [%s]\n", len(st.Inventory), strings.Join(parts, " "))
	fmt.Fprintf(w, "equipped=%s\n", strings.Join(st.EquippedIDs, ","))

	ids := make([]string, 0, len(st.UpgradeLevels))
	for id := range st.UpgradeLevels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "upgrade %s=%d\n", id, st.UpgradeLevels[id])
	}

	flags := []string{}
	for _, f := range []struct {
		on   bool
		name string
	}{
		{st.AdminModeEnabled, "admin"},
		{st.EconomyFrozen, "frozen"},
		{st.UnlimitedBalance, "unlimited"},
		{st.FreeCosts, "free_costs"},
		{st.BulkCrateOpening, "bulk_crates"},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}
	if st.ForcedRarity != nil {
		flags = append(flags, "forced="+st.ForcedRarity.String())
	}
	if len(flags) > 0 {
		fmt.Fprintf(w, "overrides=%s\n", strings.Join(flags, ","))
	}

	// Stored derived values should match a fresh computation.
	d := stats.Compute(cats, tune.Economy, stats.Inputs{
		Equipped:      st.EquippedIDs,
		UpgradeLevels: st.UpgradeLevels,
		RebirthCount:  st.RebirthCount,
		CPSMultiplier: st.CPSMultiplier,
		TapMultiplier: st.TapMultiplier,
		CPSFlatBonus:  st.CPSFlatBonus,
	})
	if drift(d.ProductionRate, st.ProductionRate) || drift(d.TapPower, st.TapPower) {
		fmt.Fprintf(w, "warning: stored stats differ from derived (rate=%s tap=%s)\n",
			notation.Format(d.ProductionRate), notation.Format(d.TapPower))
	}
	return nil
}

func drift(a, b float64) bool {
	if a == b {
		return false
	}
	return math.Abs(a-b) > 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func summarizeAudit(w io.Writer, dir string, tail int) error {
	files, err := persistlog.Files(dir, "audit")
	if err != nil {
		return err
	}
	counts := map[string]int{}
	var spent, gained float64
	var last []game.AuditEntry
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e game.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			counts[e.Action]++
			spent += e.Cost
			gained += e.Gain
			if tail > 0 {
				last = append(last, e)
				if len(last) > tail {
					last = last[1:]
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	actions := make([]string, 0, len(counts))
	for a := range counts {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	fmt.Fprintf(w, "audit files=%d spent=%s gained=%s\n", len(files), notation.Format(spent), notation.Format(gained))
	for _, a := range actions {
		fmt.Fprintf(w, "  %s=%d\n", a, counts[a])
	}
	for _, e := range last {
		target := e.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "%s %s %s balance=%s\n", e.At.UTC().Format("2006-01-02T15:04:05Z"), e.Action, target, notation.Format(e.Balance))
	}
	return nil
}

func summarizeArchives(w io.Writer, dataDir string) error {
	metas, err := archive.List(dataDir)
	if err != nil {
		return err
	}
	for _, m := range metas {
		fmt.Fprintf(w, "rebirth %d lifetime=%s items=%d at=%s\n", m.Rebirth, notation.Format(m.LifetimeEarned), m.Inventory, m.CreatedAt)
	}
	return nil
}
