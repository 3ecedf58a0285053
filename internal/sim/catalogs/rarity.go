package catalogs

import (
	"fmt"
	"strings"
)

// Rarity is an ordered tier: Common < Uncommon < ... < Secret < Admin.
type Rarity int

const (
	Common Rarity = iota
	Uncommon
	Rare
	Epic
	Legendary
	Mythic
	Godlike
	Secret
	// Admin items are only reachable through the override surface.
	Admin
)

var rarityNames = [...]string{"Common", "Uncommon", "Rare", "Epic", "Legendary", "Mythic", "Godlike", "Secret", "Admin"}

// Rarities lists every tier in order.
func Rarities() []Rarity {
	out := make([]Rarity, len(rarityNames))
	for i := range out {
		out[i] = Rarity(i)
	}
	return out
}

func (r Rarity) Valid() bool { return r >= Common && int(r) < len(rarityNames) }

func (r Rarity) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Rarity(%d)", int(r))
	}
	return rarityNames[r]
}

// ParseRarity accepts tier names case-insensitively.
func ParseRarity(s string) (Rarity, error) {
	s = strings.TrimSpace(s)
	for i, n := range rarityNames {
		if strings.EqualFold(n, s) {
			return Rarity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown rarity %q", s)
}

func (r Rarity) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid rarity %d", int(r))
	}
	return []byte(rarityNames[r]), nil
}

func (r *Rarity) UnmarshalText(b []byte) error {
	v, err := ParseRarity(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
