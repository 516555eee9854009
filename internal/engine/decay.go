package engine

import "math"

// Time decay:
//   - signals younger than the decay window (default 90 days) keep full weight
//   - past the window, weight = exp(-(age - window) / tau), tau default 30
//   - floored at 0.1 so old history never vanishes entirely
//
// The curve is continuous at the window boundary and non-increasing in age.

// DecayParams configures the decay curve.
type DecayParams struct {
	WindowDays float64
	Tau        float64
	Floor      float64
}

// DefaultDecay is the curve used when no configuration overrides it.
var DefaultDecay = DecayParams{WindowDays: 90, Tau: 30, Floor: 0.1}

// Weight maps an age in days to a weight in [Floor, 1].
func (p DecayParams) Weight(ageDays float64) float64 {
	if ageDays <= p.WindowDays {
		return 1.0
	}
	w := math.Exp(-(ageDays - p.WindowDays) / p.Tau)
	if w < p.Floor {
		return p.Floor
	}
	return w
}

// Decay applies DefaultDecay.
func Decay(ageDays float64) float64 {
	return DefaultDecay.Weight(ageDays)
}
