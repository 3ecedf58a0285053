// Package archive keeps a compressed copy of the record at every rebirth.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"mepclicker.app/internal/persistence/save"
	"mepclicker.app/internal/sim/state"
)

type RebirthArchiveMeta struct {
	Rebirth        int     `json:"rebirth"`
	LifetimeEarned float64 `json:"lifetime_earned"`
	Inventory      int     `json:"inventory"`
	Save           string  `json:"save"`
	CreatedAt      string  `json:"created_at"`
}

// ArchiveRebirth writes s into `dataDir/archives/rebirth_<NNN>/` where NNN is
// the completed rebirth count. An existing archive for the same count is left
// alone and reported as not archived.
func ArchiveRebirth(dataDir string, s state.PlayerState, at time.Time) (archivedPath string, archived bool, err error) {
	if s.RebirthCount <= 0 {
		return "", false, nil
	}
	dir := filepath.Join(dataDir, "archives", fmt.Sprintf("rebirth_%03d", s.RebirthCount))
	dst := filepath.Join(dir, "save.json.zst")
	if _, err := os.Stat(dst); err == nil {
		return dst, false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}

	blob, err := save.Encode(s)
	if err != nil {
		return "", false, err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", false, err
	}
	h := save.Header{Version: 1, Key: fmt.Sprintf("rebirth_%03d", s.RebirthCount), SavedAt: at.UTC().Format(time.RFC3339Nano), Size: len(blob)}
	if err := save.WriteCompressed(f, h, blob); err != nil {
		_ = f.Close()
		return "", false, err
	}
	if err := f.Close(); err != nil {
		return "", false, err
	}

	meta := RebirthArchiveMeta{
		Rebirth:        s.RebirthCount,
		LifetimeEarned: s.LifetimeEarned,
		Inventory:      len(s.Inventory),
		Save:           filepath.Base(dst),
		CreatedAt:      at.UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, true, nil
}

// List returns the archive metas under dataDir, oldest rebirth first.
func List(dataDir string) ([]RebirthArchiveMeta, error) {
	dirs, err := filepath.Glob(filepath.Join(dataDir, "archives", "rebirth_*"))
	if err != nil {
		return nil, err
	}
	var out []RebirthArchiveMeta
	for _, d := range dirs {
		b, err := os.ReadFile(filepath.Join(d, "meta.json"))
		if err != nil {
			continue
		}
		var m RebirthArchiveMeta
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rebirth < out[j].Rebirth })
	return out, nil
}
