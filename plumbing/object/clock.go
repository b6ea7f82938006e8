package object

import (
	"fmt"
	"time"
)

// Clock supplies the current moment for commit and tag timestamps, kept as
// an interface so callers can inject a fixed time in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NewIdentity builds an Identity stamped with clock's current time, encoding
// its zone offset the way Git expects ("+0000" style, not a zone name).
func NewIdentity(clock Clock, name, email string) Identity {
	now := clock.Now()
	_, offsetSeconds := now.Zone()
	sign := '+'
	if offsetSeconds < 0 {
		sign = '-'
		offsetSeconds = -offsetSeconds
	}
	return Identity{
		Name:     name,
		Email:    email,
		When:     now,
		TZOffset: fmt.Sprintf("%c%02d%02d", sign, offsetSeconds/3600, (offsetSeconds%3600)/60),
	}
}
