package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	PassiveTickMs   int `yaml:"passive_tick_ms"`
	AutosaveCheckMs int `yaml:"autosave_check_ms"`
	AutosaveStaleMs int `yaml:"autosave_stale_ms"`
	SavingFlashMs   int `yaml:"saving_flash_ms"`

	AutoTap  AutoTap  `yaml:"auto_tap"`
	Economy  Economy  `yaml:"economy"`
	Features Features `yaml:"features"`

	StarterItem string `yaml:"starter_item"`
	SaveKey     string `yaml:"save_key"`
	AdminKey    string `yaml:"admin_key"`

	Telemetry Telemetry `yaml:"telemetry"`
}

type AutoTap struct {
	BaseIntervalMs int     `yaml:"base_interval_ms"`
	MinIntervalMs  int     `yaml:"min_interval_ms"`
	Speedup        float64 `yaml:"speedup"`
}

type Economy struct {
	MaxUpgradeLevel             int     `yaml:"max_upgrade_level"`
	BaseSlots                   int     `yaml:"base_slots"`
	BaseTapPower                float64 `yaml:"base_tap_power"`
	TapCPSRatio                 float64 `yaml:"tap_cps_ratio"`
	BaseCritChance              float64 `yaml:"base_crit_chance"`
	CritChancePerLevel          float64 `yaml:"crit_chance_per_level"`
	CritMultiplier              float64 `yaml:"crit_multiplier"`
	SynergyPerLevel             float64 `yaml:"synergy_per_level"`
	AutomationSpeedPerLevel     float64 `yaml:"automation_speed_per_level"`
	RebirthMultiplierPerRebirth float64 `yaml:"rebirth_multiplier_per_rebirth"`
	SellMultiplier              float64 `yaml:"sell_multiplier"`
	BulkCrateRolls              int     `yaml:"bulk_crate_rolls"`
	ForceMaxBalance             float64 `yaml:"force_max_balance"`
}

type Features struct {
	RebirthEnabled    bool   `yaml:"rebirth_enabled"`
	AdminPanelEnabled bool   `yaml:"admin_panel_enabled"`
	CratesEnabled     bool   `yaml:"crates_enabled"`
	Maintenance       bool   `yaml:"maintenance"`
	MOTD              string `yaml:"motd"`
}

type Telemetry struct {
	Endpoints        []string `yaml:"endpoints"`
	BatchSize        int      `yaml:"batch_size"`
	FlushIntervalMs  int      `yaml:"flush_interval_ms"`
	HTTPTimeoutMs    int      `yaml:"http_timeout_ms"`
	ReportsPerSecond float64  `yaml:"reports_per_second"`
	Burst            int      `yaml:"burst"`
}

// Defaults mirrors configs/tuning.yaml so a missing or partial file still runs.
func Defaults() Tuning {
	return Tuning{
		PassiveTickMs:   100,
		AutosaveCheckMs: 10_000,
		AutosaveStaleMs: 120_000,
		SavingFlashMs:   1_000,
		AutoTap: AutoTap{
			BaseIntervalMs: 1000,
			MinIntervalMs:  80,
			Speedup:        1.15,
		},
		Economy: Economy{
			MaxUpgradeLevel:             100,
			BaseSlots:                   1,
			BaseTapPower:                1,
			TapCPSRatio:                 0.1,
			BaseCritChance:              0.05,
			CritChancePerLevel:          0.05,
			CritMultiplier:              2,
			SynergyPerLevel:             0.05,
			AutomationSpeedPerLevel:     0.10,
			RebirthMultiplierPerRebirth: 1.5,
			SellMultiplier:              10,
			BulkCrateRolls:              10,
			ForceMaxBalance:             1e30,
		},
		Features: Features{
			RebirthEnabled:    true,
			AdminPanelEnabled: true,
			CratesEnabled:     true,
			MOTD:              "Keep clicking, stay caffeinated!",
		},
		StarterItem: "m-orig",
		SaveKey:     "monster-clicker-save",
		AdminKey:    "reuben2026",
		Telemetry: Telemetry{
			BatchSize:        16,
			FlushIntervalMs:  5000,
			HTTPTimeoutMs:    5000,
			ReportsPerSecond: 1,
			Burst:            4,
		},
	}
}

// Load reads path over Defaults(). Keys absent from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.PassiveTickMs <= 0:
		return fmt.Errorf("passive_tick_ms must be > 0")
	case t.AutosaveCheckMs <= 0 || t.AutosaveStaleMs < 0:
		return fmt.Errorf("autosave cadence must be positive")
	case t.AutoTap.BaseIntervalMs <= 0 || t.AutoTap.MinIntervalMs <= 0:
		return fmt.Errorf("auto_tap intervals must be > 0")
	case t.AutoTap.Speedup < 1:
		return fmt.Errorf("auto_tap.speedup must be >= 1")
	case t.Economy.MaxUpgradeLevel <= 0:
		return fmt.Errorf("economy.max_upgrade_level must be > 0")
	case t.Economy.BaseSlots < 1:
		return fmt.Errorf("economy.base_slots must be >= 1")
	case t.Economy.BulkCrateRolls < 1:
		return fmt.Errorf("economy.bulk_crate_rolls must be >= 1")
	case t.StarterItem == "":
		return fmt.Errorf("starter_item is required")
	}
	return nil
}

func (t Tuning) PassiveTick() time.Duration   { return time.Duration(t.PassiveTickMs) * time.Millisecond }
func (t Tuning) AutosaveCheck() time.Duration { return time.Duration(t.AutosaveCheckMs) * time.Millisecond }
func (t Tuning) AutosaveStale() time.Duration { return time.Duration(t.AutosaveStaleMs) * time.Millisecond }
func (t Tuning) SavingFlash() time.Duration   { return time.Duration(t.SavingFlashMs) * time.Millisecond }
