package fusion

import "math"

var baseWeights = struct {
	behaviour, twin, route, temporal float64
}{behaviour: 0.35, twin: 0.30, route: 0.25, temporal: 0.10}

// qualityFactor is q(age) = exp(-0.01*age_s).
func qualityFactor(ageS float64) float64 {
	return math.Exp(-0.01 * ageS)
}

func temporalScore(hour int) float64 {
	switch {
	case hour >= 22 || hour < 6:
		return 0.8
	case (hour >= 6 && hour < 9) || (hour >= 18 && hour < 22):
		return 0.4
	default:
		return 0.1
	}
}

// weightedFallback is the always-available scoring path: base weights
// decayed by each signal's quality factor.
func weightedFallback(in fusionInput) (composite, confidence float64) {
	qBehaviour := qualityFactor(in.ages.BehaviourAgeS)
	qTwin := qualityFactor(in.ages.TwinAgeS)
	qRoute := qualityFactor(in.ages.RouteAgeS)
	qTemporal := 1.0 // temporal has no staleness of its own

	wBehaviour := baseWeights.behaviour * qBehaviour
	wTwin := baseWeights.twin * qTwin
	wRoute := baseWeights.route * qRoute
	wTemporal := baseWeights.temporal * qTemporal

	hour := timeOfDayHour(in)
	sTemporal := temporalScore(hour)

	numerator := wBehaviour*in.behaviour.AnomalyScore +
		wTwin*in.twin.DeviationScore +
		wRoute*in.route.RouteRiskScore +
		wTemporal*sTemporal
	denominator := wBehaviour + wTwin + wRoute + wTemporal

	composite = 0
	if denominator > 0 {
		composite = clip01(numerator / denominator)
	}

	confidence = qBehaviour * qTwin * qRoute
	return composite, confidence
}

func timeOfDayHour(in fusionInput) int {
	return in.twin.Timestamp.Hour()
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
