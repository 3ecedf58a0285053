package protocol

import (
	"math"
	"time"

	"mepclicker.app/internal/sim/economy"
	"mepclicker.app/internal/sim/notation"
	"mepclicker.app/internal/sim/state"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// MaxQueue bounds the per-connection outbound buffer.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Catalogs        CatalogDigests `json:"catalogs"`
	State           StateView      `json:"state"`
}

type CatalogDigests struct {
	Items         DigestRef `json:"items"`
	Upgrades      DigestRef `json:"upgrades"`
	Crates        DigestRef `json:"crates"`
	RebirthStages DigestRef `json:"rebirth_stages"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Seq             uint64    `json:"seq"`
	State           StateView `json:"state"`
}

// StateView is the player record plus the values a display needs.
type StateView struct {
	state.PlayerState

	BalanceText    string  `json:"balanceText"`
	ProductionText string  `json:"productionText"`
	SlotLimit      int     `json:"slotLimit"`
	NextRebirth    float64 `json:"nextRebirth"`
	RebirthReady   bool    `json:"rebirthReady"`
	AutoTapMs      int64   `json:"autoTapMs"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Event           string   `json:"event"`
	Target          string   `json:"target,omitempty"`
	Gain            float64  `json:"gain,omitempty"`
	GainText        string   `json:"gain_text,omitempty"`
	Crit            bool     `json:"crit,omitempty"`
	Auto            bool     `json:"auto,omitempty"`
	X               float64  `json:"x,omitempty"`
	Y               float64  `json:"y,omitempty"`
	Items           []string `json:"items,omitempty"`
}

// ACK (server -> client) answers one ACT.
type AckMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	AckFor          string   `json:"ack_for"`
	Accepted        bool     `json:"accepted"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
	Items           []string `json:"items,omitempty"`
}

// NewStateView builds a view of s. Non-finite numbers are saturated so the
// view always marshals.
func NewStateView(s state.PlayerState, slotLimit int, nextRebirth float64, ready bool, autoTap time.Duration) StateView {
	display := economy.EffectiveBalance(s.Balance, economy.FlagsOf(s))
	v := StateView{
		PlayerState:    s.Clone(),
		BalanceText:    notation.Format(display),
		ProductionText: notation.Format(s.ProductionRate),
		SlotLimit:      slotLimit,
		NextRebirth:    nextRebirth,
		RebirthReady:   ready,
		AutoTapMs:      autoTap.Milliseconds(),
	}
	v.PlayerState.Sanitize()
	if math.IsInf(v.NextRebirth, 0) || math.IsNaN(v.NextRebirth) {
		v.NextRebirth = 0
	}
	return v
}
