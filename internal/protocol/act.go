package protocol

// Act ops.
const (
	OpTap       = "TAP"
	OpUpgrade   = "UPGRADE"
	OpOpenCrate = "OPEN_CRATE"
	OpEquip     = "EQUIP"
	OpSell      = "SELL"
	OpRebirth   = "REBIRTH"
	OpSave      = "SAVE"
)

// ACT (client -> server)
type ActMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Op              string  `json:"op"`
	ItemID          string  `json:"item_id,omitempty"`
	CrateID         string  `json:"crate_id,omitempty"`
	UpgradeID       string  `json:"upgrade_id,omitempty"`
	X               float64 `json:"x,omitempty"`
	Y               float64 `json:"y,omitempty"`
}

func KnownOp(op string) bool {
	switch op {
	case OpTap, OpUpgrade, OpOpenCrate, OpEquip, OpSell, OpRebirth, OpSave:
		return true
	}
	return false
}

// Target returns the id field the op reads, and whether the op needs one.
func (a ActMsg) Target() (string, bool) {
	switch a.Op {
	case OpUpgrade:
		return a.UpgradeID, true
	case OpOpenCrate:
		return a.CrateID, true
	case OpEquip, OpSell:
		return a.ItemID, true
	}
	return "", false
}
