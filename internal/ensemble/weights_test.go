package ensemble

import (
	"math"
	"testing"
)

func TestAlphaBeta(t *testing.T) {
	tests := []struct {
		name string
		s    Schedule
		cyc  int
		ncyc int
		want float64
	}{
		{"fixed", Fixed(0.7), 3, 10, 0.7},
		{"up start", Up(), 1, 10, 0},
		{"up end", Up(), 10, 10, 1},
		{"up middle", Up(), 6, 11, 0.5},
		{"down start", Down(), 1, 10, 1},
		{"down end", Down(), 10, 10, 0},
		{"up single cycle", Up(), 1, 1, 0},
		{"down single cycle", Down(), 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := alphaBeta(tt.s, tt.cyc, tt.ncyc)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("alphaBeta(%+v, %d, %d) = %v, want %v", tt.s, tt.cyc, tt.ncyc, got, tt.want)
			}
		})
	}
}

func TestQValue(t *testing.T) {
	tests := []struct {
		name string
		s    Schedule
		cyc  int
		ncyc int
		want float64
	}{
		{"fixed", Fixed(0.3), 2, 5, 0.3},
		{"up start", Up(), 1, 5, -1},
		{"up middle", Up(), 3, 5, 0},
		{"up end", Up(), 5, 5, 1},
		{"down start", Down(), 1, 5, 1},
		{"down middle", Down(), 3, 5, 0},
		{"down end", Down(), 5, 5, -1},
		{"up single cycle", Up(), 1, 1, -1},
		{"down single cycle", Down(), 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := qValue(tt.s, tt.cyc, tt.ncyc)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("qValue(%+v, %d, %d) = %v, want %v", tt.s, tt.cyc, tt.ncyc, got, tt.want)
			}
		})
	}
}

func TestRankWeights(t *testing.T) {
	const n = 20

	for _, scheme := range []string{WtLog, WtLin, WtExp, WtUni} {
		for _, kf := range []int{0, 1} {
			wts := rankWeights(scheme, n, kf)

			if len(wts) != n {
				t.Fatalf("%s kf=%d: length %d, want %d", scheme, kf, len(wts), n)
			}

			var sum float64
			for r, w := range wts {
				if w < 0 {
					t.Errorf("%s kf=%d: negative weight %v at rank %d", scheme, kf, w, r+1)
				}
				sum += w
			}
			// the log scheme uses an approximate factorial, so the
			// normalization is only near-exact
			if math.Abs(sum-1) > 0.02 {
				t.Errorf("%s kf=%d: weights sum to %v, want ~1", scheme, kf, sum)
			}

			if scheme != WtUni {
				for r := 1; r < n; r++ {
					if wts[r] < wts[r-1] {
						t.Errorf("%s kf=%d: weights not nondecreasing at rank %d: %v < %v", scheme, kf, r+1, wts[r], wts[r-1])
					}
				}
			}
		}
	}
}

func TestRankWeights_Uniform(t *testing.T) {
	wts := rankWeights(WtUni, 8, 0)
	for r, w := range wts {
		if math.Abs(w-0.125) > 1e-12 {
			t.Errorf("Uniform weight at rank %d = %v, want 0.125", r+1, w)
		}
	}
}
