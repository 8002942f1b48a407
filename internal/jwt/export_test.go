package jwt

import "time"

// SetClock overrides the generator clock.
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}
