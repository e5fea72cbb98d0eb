package ensemble

import (
	"math/rand"
)

// sampleNoReplace draws k distinct indices from 0..len(wts)-1 with
// probability proportional to wts, without replacement. The untaken weights
// are renormalized on every draw, which also corrects floating point drift in
// the caller's weight vector. k = 0 returns nil.
func sampleNoReplace(rng *rand.Rand, wts []float64, k int) []int {
	if k <= 0 {
		return nil
	}
	if k > len(wts) {
		k = len(wts)
	}

	picked := make([]int, 0, k)
	taken := make([]bool, len(wts))
	for len(picked) < k {
		var total float64
		for i, w := range wts {
			if !taken[i] {
				total += w
			}
		}

		idx := -1
		if total <= 0 {
			// remaining weights all zero, fall back to a uniform pick
			left := 0
			for i := range wts {
				if !taken[i] {
					left++
				}
			}
			nth := rng.Intn(left)
			for i := range wts {
				if taken[i] {
					continue
				}
				if nth == 0 {
					idx = i
					break
				}
				nth--
			}
		} else {
			u := rng.Float64() * total
			for i, w := range wts {
				if taken[i] {
					continue
				}
				u -= w
				idx = i
				if u <= 0 {
					break
				}
			}
			// idx lands on the last untaken index when u outruns the
			// remaining mass due to rounding
		}

		picked = append(picked, idx)
		taken[idx] = true
	}
	return picked
}

// binomial draws the number of successes in n trials with probability p. The
// probability is clamped into [0, 1] so an out-of-range skew parameter
// degrades to always/never rather than failing mid-run.
func binomial(rng *rand.Rand, n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	c := 0
	for i := 0; i < n; i++ {
		if rng.Float64() < p {
			c++
		}
	}
	return c
}

// multinomial distributes n draws over categories with the given
// probabilities, which must sum to roughly 1. n = 0 returns all zeros.
func multinomial(rng *rand.Rand, n int, probs []float64) []int {
	out := make([]int, len(probs))
	for i := 0; i < n; i++ {
		u := rng.Float64()
		idx := len(probs) - 1
		for j, p := range probs {
			u -= p
			if u <= 0 {
				idx = j
				break
			}
		}
		out[idx]++
	}
	return out
}
