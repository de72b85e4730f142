package fusion

// BayesNet is the capability a Bayesian model artifact exposes: a
// discrete network over {BehaviourRisk, TwinDeviation, RouteCompliance,
// TimeOfDay} queried for a TheftRisk distribution. A missing or
// failing BayesNet means the fusion path falls back to weighted scoring.
type BayesNet interface {
	// Query returns P(TheftRisk=c) for c in {low, medium, high, critical},
	// keyed by those exact strings, given discretized evidence.
	Query(evidence Evidence) (map[string]float64, error)
}

// Evidence is the discretized input to a BayesNet query.
type Evidence struct {
	BehaviourRisk   string // normal | suspicious | critical
	TwinDeviation   string // nominal | degraded | critical
	RouteCompliance string // on_route | minor_off | major_off
	TimeOfDay       string // day | night
}

var theftRiskWeight = map[string]float64{
	"low":      0,
	"medium":   0.33,
	"high":     0.67,
	"critical": 1,
}

func discretizeBehaviour(anomalyScore float64) string {
	switch {
	case anomalyScore >= 0.7:
		return "critical"
	case anomalyScore >= 0.4:
		return "suspicious"
	default:
		return "normal"
	}
}

func discretizeTwin(deviationScore float64) string {
	switch {
	case deviationScore >= 0.7:
		return "critical"
	case deviationScore >= 0.4:
		return "degraded"
	default:
		return "nominal"
	}
}

func discretizeRoute(deviationKm float64) string {
	switch {
	case deviationKm >= 2:
		return "major_off"
	case deviationKm >= 0.5:
		return "minor_off"
	default:
		return "on_route"
	}
}

func discretizeTimeOfDay(hour int) string {
	if hour >= 22 || hour < 6 {
		return "night"
	}
	return "day"
}

// queryBayes runs the Bayesian path and returns ok=false on any failure,
// instructing the caller to fall back to weighted scoring.
func queryBayes(net BayesNet, in fusionInput) (composite, confidence float64, ok bool) {
	if net == nil {
		return 0, 0, false
	}

	ev := Evidence{
		BehaviourRisk:   discretizeBehaviour(in.behaviour.AnomalyScore),
		TwinDeviation:   discretizeTwin(in.twin.DeviationScore),
		RouteCompliance: discretizeRoute(in.route.DeviationKm),
		TimeOfDay:       discretizeTimeOfDay(in.twin.Timestamp.Hour()),
	}

	dist, err := net.Query(ev)
	if err != nil || len(dist) == 0 {
		return 0, 0, false
	}

	var weightedSum, maxP float64
	for class, p := range dist {
		w, known := theftRiskWeight[class]
		if !known {
			return 0, 0, false
		}
		weightedSum += p * w
		if p > maxP {
			maxP = p
		}
	}

	return clip01(weightedSum), maxP, true
}
