package domain

import "math"

// IFRS 9 impairment stages.
const (
	Stage1 = "Stage 1"
	Stage2 = "Stage 2"
	Stage3 = "Stage 3"
)

// DeriveECL returns exposure × pd × lgd rounded to cents, half away from zero.
func DeriveECL(exposure, pd, lgd float64) float64 {
	return math.Round(exposure*pd*lgd*100) / 100
}

// StageFor assigns the impairment stage for a probability of default.
func StageFor(pd float64) string {
	switch {
	case pd < 0.2:
		return Stage1
	case pd < 0.5:
		return Stage2
	default:
		return Stage3
	}
}
