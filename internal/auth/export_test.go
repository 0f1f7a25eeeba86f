package auth

import "time"

// SetClock replaces the clock of the token services and the ledger.
func SetClock(v any, now func() time.Time) {
	switch x := v.(type) {
	case *PasetoService:
		x.now = now
	case *JWTService:
		x.now = now
	case *Issuer:
		x.now = now
	case *Ledger:
		x.now = now
	default:
		panic("SetClock: unsupported type")
	}
}
