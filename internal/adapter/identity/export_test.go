package identity

import "time"

// SetClock swaps the verifier clock for deterministic tests.
func (v *GoogleVerifier) SetClock(now func() time.Time) {
	v.now = now
}
