package audit

// Health thresholds on the 0-100 score.
const (
	healthyThreshold = 80
	warningThreshold = 50
)

// Score computes the health score and status for a set of diagnostics.
// Each diagnostic subtracts its severity weight from 100; the result is
// clamped to [0, 100].
func Score(diags []Diagnostic) (int, Health) {
	penalty := 0
	for _, d := range diags {
		penalty += d.Severity.Weight()
	}
	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, StatusFor(score)
}

// StatusFor maps a score to a health status.
func StatusFor(score int) Health {
	switch {
	case score >= healthyThreshold:
		return HealthHealthy
	case score >= warningThreshold:
		return HealthWarning
	default:
		return HealthCritical
	}
}
