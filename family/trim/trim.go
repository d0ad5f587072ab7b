// Package trim implements the two-round frequency calibration search
// spec §4.E.3 shares across STC15A/STC15/STC8/STC8d/STC8g/STC32: treat
// the bootloader as a black-box oracle ("given this trim, what period
// do you measure"), bracket the target count between two challenges,
// linearly interpolate, then refine with a second, narrower round.
package trim

import "math"

// Challenge is one (trim value, trim range) pair offered to the
// target's trim oracle.
type Challenge struct {
	Value int
	Range int
}

// Bracket finds the first adjacent pair of counts that brackets
// target and linearly interpolates a trim value within it. Counts
// must be in the same order as challenges. ok is false if no
// bracketing pair exists (spec: CalibrationFail -- "unreachable
// target frequency").
func Bracket(challenges []Challenge, counts []int, target float64) (approxTrim int, pairIdx int, ok bool) {
	for i := 0; i+1 < len(counts) && i+1 < len(challenges); i++ {
		a, b := float64(counts[i]), float64(counts[i+1])
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo == hi {
			continue
		}
		if target < lo || target > hi {
			continue
		}
		frac := (target - a) / (b - a)
		va, vb := float64(challenges[i].Value), float64(challenges[i+1].Value)
		approx := va + frac*(vb-va)
		return int(math.Round(approx)), i, true
	}
	return 0, 0, false
}

// Finest picks, among a round-2 challenge/count set, the challenge
// whose measured count lies closest to target. Ties favor the
// earlier entry (spec §8: calibration determinism).
func Finest(challenges []Challenge, counts []int, target float64) (Challenge, int) {
	best := 0
	bestDist := math.Abs(float64(counts[0]) - target)
	for i := 1; i < len(counts) && i < len(challenges); i++ {
		d := math.Abs(float64(counts[i]) - target)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return challenges[best], counts[best]
}
