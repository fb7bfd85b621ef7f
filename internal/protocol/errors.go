package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrConflict      = "E_CONFLICT"
	ErrBlocked       = "E_BLOCKED"
	ErrCooldown      = "E_COOLDOWN"
	ErrIntegrity     = "E_INTEGRITY"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNoResource:      {},
	ErrInvalidTarget:   {},
	ErrRateLimit:       {},
	ErrConflict:        {},
	ErrBlocked:         {},
	ErrCooldown:        {},
	ErrIntegrity:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
