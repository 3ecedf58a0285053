package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Action layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnknownOp    = "E_UNKNOWN_OP"
	ErrRejected     = "E_REJECTED"
	ErrDisabled     = "E_DISABLED"
	ErrMaintenance  = "E_MAINTENANCE"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrUnknownOp:       {},
	ErrRejected:        {},
	ErrDisabled:        {},
	ErrMaintenance:     {},
	ErrRateLimit:       {},
	ErrNoPermission:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
