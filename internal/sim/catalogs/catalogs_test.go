package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadShipped(t *testing.T) *Catalogs {
	t.Helper()
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	require.NoError(t, err)
	return c
}

// catalogDir copies the shipped catalogs except items.json, which the caller writes.
func catalogDir(t *testing.T, items string) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join("..", "..", "..", "configs")
	for _, f := range []string{"upgrades.json", "crates.json", "rebirth_stages.json"} {
		b, err := os.ReadFile(filepath.Join(src, f))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), b, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.json"), []byte(items), 0o644))
	return dir
}

func TestLoadShippedCatalogs(t *testing.T) {
	c := loadShipped(t)
	require.Len(t, c.Items.Order, 48)
	require.Equal(t, "m-orig", c.Items.Order[0])
	d, ok := c.Item("admin-monster")
	require.True(t, ok)
	require.Equal(t, Admin, d.Rarity)
	for _, digest := range []string{c.Items.Digest, c.Upgrades.Digest, c.Crates.Digest, c.Rebirth.Digest} {
		require.Len(t, digest, 64)
	}
	require.Equal(t, "boost-slot", c.Upgrades.ByEffect[EffectSlot])
	require.Equal(t, 3, c.Level(map[string]int{"click-1": 3}, EffectTapPower))
	require.Len(t, c.Crates.Order, 4)
	require.Len(t, c.Rebirth.Stages, 5)
}

func TestUpgradeCostCurve(t *testing.T) {
	c := loadShipped(t)
	u, _ := c.Upgrade("click-1")
	require.Equal(t, 10.0, u.Cost(0))
	require.Equal(t, 80.0, u.Cost(3))
	crit, _ := c.Upgrade("click-crit")
	// 100 * 1.5^3 = 337.5
	require.Equal(t, 337.0, crit.Cost(3))
}

func TestRebirthStageClampsToLast(t *testing.T) {
	c := loadShipped(t)
	s := c.Rebirth.StageFor(0)
	require.Equal(t, 1e12, s.Milestone)
	require.Equal(t, 2.0, s.Bonus)
	require.Equal(t, 1e24, c.Rebirth.StageFor(4).Milestone)
	s = c.Rebirth.StageFor(99)
	require.Equal(t, 1e24, s.Milestone)
	require.Equal(t, 5, s.Level)
}

func TestRarityText(t *testing.T) {
	r, err := ParseRarity("legendary")
	require.NoError(t, err)
	require.Equal(t, Legendary, r)
	_, err = ParseRarity("Shiny")
	require.Error(t, err)
	require.Equal(t, "Secret", Secret.String())
	require.True(t, Common < Admin)
	require.Len(t, Rarities(), 9)
}

func TestLoadRejectsDuplicateItem(t *testing.T) {
	dir := catalogDir(t, `[{"id":"a","name":"A","rarity":"Common","base_cps":1},{"id":"a","name":"A2","rarity":"Common","base_cps":1}]`)
	_, err := Load(dir)
	require.Error(t, err, "duplicate id")
}

func TestLoadRejectsEmptyCratePool(t *testing.T) {
	dir := catalogDir(t, `[{"id":"a","name":"A","rarity":"Common","base_cps":1}]`)
	_, err := Load(dir)
	require.Error(t, err, "empty pool for rare crate")
}
