package verification

import (
	"fmt"
	"time"
)

const (
	// ExpirySeconds is how long an issued code stays usable on the client.
	ExpirySeconds = 180
	// CodeExpiry is ExpirySeconds as a duration.
	CodeExpiry = ExpirySeconds * time.Second
)

// CountdownState is the derived remaining validity of an issued code.
type CountdownState struct {
	Active           bool `json:"active"`
	RemainingSeconds int  `json:"remaining_seconds"`
	Expired          bool `json:"expired"`
}

// Formatted renders the remaining time as m:ss.
func (c CountdownState) Formatted() string {
	return fmt.Sprintf("%d:%02d", c.RemainingSeconds/60, c.RemainingSeconds%60)
}

// RemainingSeconds returns max(0, ExpirySeconds - floor(elapsed)) for a code
// issued at issuedAt. A zero issuedAt means nothing was sent yet and yields the
// full duration; an issuedAt in the future counts as no time elapsed.
func RemainingSeconds(issuedAt, now time.Time) int {
	if issuedAt.IsZero() {
		return ExpirySeconds
	}
	elapsed := now.Sub(issuedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := ExpirySeconds - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Compute derives the countdown. While inactive it reports the full duration
// and never expires.
func Compute(active bool, issuedAt, now time.Time) CountdownState {
	if !active {
		return CountdownState{RemainingSeconds: ExpirySeconds}
	}
	remaining := RemainingSeconds(issuedAt, now)
	return CountdownState{
		Active:           true,
		RemainingSeconds: remaining,
		Expired:          remaining == 0,
	}
}
