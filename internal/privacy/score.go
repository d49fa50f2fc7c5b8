// Package privacy derives the privacy score from attribute permission state.
package privacy

import "math"

// MaxScore is the score ceiling.
const MaxScore = 100

// Score is the derived privacy posture of one user.
type Score struct {
	Score                int    `json:"score"`
	MaxScore             int    `json:"maxScore"`
	AllowedAttributes    int    `json:"allowedAttributes"`
	RestrictedAttributes int    `json:"restrictedAttributes"`
	TotalAttributes      int    `json:"totalAttributes"`
	Message              string `json:"message"`
}

// Compute derives the score from allowed and total attribute counts. The
// score is the allowed share of the catalog scaled to 0..100 and rounded
// half away from zero, so it never decreases when an attribute flips from
// restricted to allowed.
func Compute(allowed, total int) Score {
	score := MaxScore
	if total > 0 {
		score = int(math.Round(float64(allowed) / float64(total) * MaxScore))
	}
	return Score{
		Score:                score,
		MaxScore:             MaxScore,
		AllowedAttributes:    allowed,
		RestrictedAttributes: total - allowed,
		TotalAttributes:      total,
		Message:              messageFor(score),
	}
}

// Bucket thresholds are tunable; messages must stay ordered with the score.
func messageFor(score int) string {
	switch {
	case score >= 80:
		return "Your data is well protected"
	case score >= 50:
		return "Your data protection is moderate"
	default:
		return "Your data protection needs attention"
	}
}
