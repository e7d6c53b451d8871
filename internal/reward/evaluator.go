// Package reward turns accumulated activity into coin grants and reports them
// to the coins backend
package reward

import "caosbot/internal/models"

// Accrue adds delta to counter and reports whether the threshold was reached.
// A crossing grants once: the counter resets to zero, or keeps the part past
// the threshold when carry is set. Negative results are clamped to zero
func Accrue(counter, delta int64, t models.Threshold, carry bool) (next int64, grant bool) {
	next = counter + delta
	if next < 0 {
		next = 0
	}
	if !t.Enabled() || next < t.Amount {
		return next, false
	}
	if carry {
		return next - t.Amount, true
	}
	return 0, true
}

// Grant is one reward due to a user
type Grant struct {
	Coins  int
	Reason string
}

// Combine folds several grants from the same update into a single report
func Combine(grants []Grant) (coins int, reason string) {
	for i, g := range grants {
		coins += g.Coins
		if i > 0 {
			reason += " y "
		}
		reason += g.Reason
	}
	return coins, reason
}
