package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

type Catalogs struct {
	Items    ItemCatalog
	Upgrades UpgradeCatalog
	Crates   CrateCatalog
	Rebirth  RebirthCatalog
}

type ItemCatalog struct {
	// Order is file order; drop pools keep it so seeded rolls are reproducible.
	Order  []string
	Defs   map[string]ItemDef
	Digest string
}

type ItemDef struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Rarity  Rarity  `json:"rarity"`
	BaseCPS float64 `json:"base_cps"`
}

type UpgradeCatalog struct {
	Order    []string
	Defs     map[string]UpgradeDef
	ByEffect map[Effect]string
	Digest   string
}

// Family groups upgrades for presentation.
type Family string

const (
	FamilyTap        Family = "tap"
	FamilyAutomation Family = "automation"
	FamilySynergy    Family = "synergy"
)

// Effect names the stat an upgrade feeds. Each effect is owned by at most one upgrade.
type Effect string

const (
	EffectTapPower        Effect = "tap_power"
	EffectCritChance      Effect = "crit_chance"
	EffectAutoTap         Effect = "auto_tap"
	EffectAutomationSpeed Effect = "automation_speed"
	EffectSlot            Effect = "slot"
	EffectSynergy         Effect = "synergy"
)

type UpgradeDef struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BaseCost    float64 `json:"base_cost"`
	Multiplier  float64 `json:"multiplier"`
	Family      Family  `json:"family"`
	Effect      Effect  `json:"effect"`
}

// Cost is the price of buying the next level when the upgrade sits at level.
func (u UpgradeDef) Cost(level int) float64 {
	if level < 0 {
		level = 0
	}
	return math.Floor(u.BaseCost * math.Pow(u.Multiplier, float64(level)))
}

type CrateCatalog struct {
	Order  []string
	Defs   map[string]CrateDef
	Digest string
}

type CrateDef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Rarities    []Rarity `json:"rarities"`
	Description string   `json:"description"`
}

// Eligible reports whether r is in the crate's native pool.
func (c CrateDef) Eligible(r Rarity) bool {
	for _, x := range c.Rarities {
		if x == r {
			return true
		}
	}
	return false
}

type RebirthCatalog struct {
	Stages []RebirthStage
	Digest string
}

type RebirthStage struct {
	Level     int     `json:"level"`
	Milestone float64 `json:"milestone"`
	Bonus     float64 `json:"bonus"`
}

// StageFor returns the stage consulted for a player with rebirthCount rebirths.
// Past the last defined stage the last stage applies.
func (r RebirthCatalog) StageFor(rebirthCount int) RebirthStage {
	if len(r.Stages) == 0 {
		return RebirthStage{}
	}
	if rebirthCount < 0 {
		rebirthCount = 0
	}
	if rebirthCount >= len(r.Stages) {
		return r.Stages[len(r.Stages)-1]
	}
	return r.Stages[rebirthCount]
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadUpgrades(filepath.Join(configDir, "upgrades.json"), &c.Upgrades); err != nil {
		return nil, err
	}
	if err := loadCrates(filepath.Join(configDir, "crates.json"), &c.Crates); err != nil {
		return nil, err
	}
	if err := loadRebirth(filepath.Join(configDir, "rebirth_stages.json"), &c.Rebirth); err != nil {
		return nil, err
	}
	if err := c.validatePools(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Item resolves an item id; unknown ids report false.
func (c *Catalogs) Item(id string) (ItemDef, bool) {
	if c == nil {
		return ItemDef{}, false
	}
	d, ok := c.Items.Defs[id]
	return d, ok
}

func (c *Catalogs) Upgrade(id string) (UpgradeDef, bool) {
	if c == nil {
		return UpgradeDef{}, false
	}
	d, ok := c.Upgrades.Defs[id]
	return d, ok
}

func (c *Catalogs) Crate(id string) (CrateDef, bool) {
	if c == nil {
		return CrateDef{}, false
	}
	d, ok := c.Crates.Defs[id]
	return d, ok
}

// ItemsWithRarity returns items of rarity r in catalog order.
func (c *Catalogs) ItemsWithRarity(r Rarity) []ItemDef {
	var out []ItemDef
	for _, id := range c.Items.Order {
		if d := c.Items.Defs[id]; d.Rarity == r {
			out = append(out, d)
		}
	}
	return out
}

// Level reads the level of the upgrade that owns effect.
func (c *Catalogs) Level(levels map[string]int, effect Effect) int {
	if c == nil {
		return 0
	}
	id, ok := c.Upgrades.ByEffect[effect]
	if !ok {
		return 0
	}
	return levels[id]
}

func (c *Catalogs) validatePools() error {
	for _, id := range c.Crates.Order {
		cr := c.Crates.Defs[id]
		n := 0
		for _, r := range cr.Rarities {
			n += len(c.ItemsWithRarity(r))
		}
		if n == 0 {
			return fmt.Errorf("crates.json: crate %s has an empty drop pool", id)
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	if len(defs) == 0 {
		return fmt.Errorf("items.json: no items")
	}
	out.Defs = make(map[string]ItemDef, len(defs))
	out.Order = make([]string, 0, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		if d.BaseCPS < 0 {
			return fmt.Errorf("items.json: %s: negative base_cps", d.ID)
		}
		out.Defs[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadUpgrades(path string, out *UpgradeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []UpgradeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("upgrades.json: %w", err)
	}
	out.Defs = make(map[string]UpgradeDef, len(defs))
	out.ByEffect = map[Effect]string{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("upgrades.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("upgrades.json: duplicate id %s", d.ID)
		}
		if d.Multiplier <= 0 || d.BaseCost < 0 {
			return fmt.Errorf("upgrades.json: %s: bad cost curve", d.ID)
		}
		switch d.Family {
		case FamilyTap, FamilyAutomation, FamilySynergy:
		default:
			return fmt.Errorf("upgrades.json: %s: unknown family %q", d.ID, d.Family)
		}
		if d.Effect != "" {
			if other, taken := out.ByEffect[d.Effect]; taken {
				return fmt.Errorf("upgrades.json: effect %s claimed by %s and %s", d.Effect, other, d.ID)
			}
			out.ByEffect[d.Effect] = d.ID
		}
		out.Defs[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadCrates(path string, out *CrateCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []CrateDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("crates.json: %w", err)
	}
	out.Defs = make(map[string]CrateDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("crates.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("crates.json: duplicate id %s", d.ID)
		}
		if d.Price < 0 {
			return fmt.Errorf("crates.json: %s: negative price", d.ID)
		}
		out.Defs[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadRebirth(path string, out *RebirthCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.Stages); err != nil {
		return fmt.Errorf("rebirth_stages.json: %w", err)
	}
	if len(out.Stages) == 0 {
		return fmt.Errorf("rebirth_stages.json: no stages")
	}
	return nil
}
