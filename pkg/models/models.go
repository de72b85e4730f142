// Package models defines the value records that flow across the bus and the
// HTTP bridge. Records are immutable once published — processors read them,
// they never mutate them in place.
package models

import "time"

// TrackClass is the closed set of object classes the detector emits.
type TrackClass string

const (
	ClassPerson     TrackClass = "person"
	ClassCar        TrackClass = "car"
	ClassTruck      TrackClass = "truck"
	ClassBus        TrackClass = "bus"
	ClassMotorcycle TrackClass = "motorcycle"
	ClassOther      TrackClass = "other"
)

// SceneTag is a scene-level annotation attached to a PerceptionOutput.
type SceneTag string

const (
	TagNight             SceneTag = "night"
	TagNoDriverPresent   SceneTag = "no_driver_present"
	TagLoiteringDetected SceneTag = "loitering_detected"
	TagCrowdDetected     SceneTag = "crowd_detected"
)

// DoorState is the IoT-reported cargo door position.
type DoorState string

const (
	DoorOpen   DoorState = "OPEN"
	DoorClosed DoorState = "CLOSED"
)

// TwinStatus is the Digital Twin's coarse health classification.
type TwinStatus string

const (
	TwinNominal  TwinStatus = "NOMINAL"
	TwinDegraded TwinStatus = "DEGRADED"
	TwinCritical TwinStatus = "CRITICAL"
)

// RiskLevel is the quantile-like discretization of a composite risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// FusionMethod records which scoring path produced a RiskOutput.
type FusionMethod string

const (
	FusionBayesian         FusionMethod = "bayesian"
	FusionWeightedFallback FusionMethod = "weighted_fallback"
)

// TriggeredRule is one of the fixed tags a fusion event can raise. These are
// advisory flags carried on RiskOutput, distinct from the Decision
// Processor's rule table.
type TriggeredRule string

const (
	RuleLoiteringDetected       TriggeredRule = "LOITERING_DETECTED"
	RuleDoorOpenNoRFID          TriggeredRule = "DOOR_OPEN_NO_RFID"
	RuleGeofenceViolation       TriggeredRule = "GEOFENCE_VIOLATION"
	RuleHighRiskZoneEntry       TriggeredRule = "HIGH_RISK_ZONE_ENTRY"
	RuleCriticalThresholdBreach TriggeredRule = "CRITICAL_THRESHOLD_BREACH"
)

// Action is one of the effects a fired decision rule can take.
type Action string

const (
	ActionSMS         Action = "sms"
	ActionEmail       Action = "email"
	ActionLogIncident Action = "log_incident"
)

// BBox is an axis-aligned bounding box in image coordinates.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Velocity is a per-tick displacement in pixels.
type Velocity struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// GPS is a WGS84 coordinate pair.
type GPS struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Track is one tracked object within a single frame.
type Track struct {
	TrackID    int        `json:"track_id"`
	Class      TrackClass `json:"class"`
	RawClass   string     `json:"raw_class,omitempty"` // pre-mapping detector label
	Confidence float64    `json:"confidence"`
	BBox       BBox       `json:"bbox"`
	Velocity   Velocity   `json:"velocity"`
	DwellSec   float64    `json:"dwell_seconds"`
}

// PerceptionOutput is emitted once per processed frame on perception.output.
type PerceptionOutput struct {
	TruckID   string     `json:"truck_id"`
	FrameID   uint64     `json:"frame_id"`
	Timestamp time.Time  `json:"timestamp"`
	Tracks    []Track    `json:"tracks"`
	SceneTags []SceneTag `json:"scene_tags"`
}

// IoTTelemetry is one telemetry sample published on iot.telemetry.
type IoTTelemetry struct {
	TruckID        string    `json:"truck_id"`
	Timestamp      time.Time `json:"timestamp"`
	GPS            GPS       `json:"gps"`
	DoorState      DoorState `json:"door_state"`
	CargoWeightKg  float64   `json:"cargo_weight_kg"`
	EngineOn       bool      `json:"engine_on"`
	DriverRFIDSeen bool      `json:"driver_rfid_scanned"`
	SignalStrength float64   `json:"iot_signal_strength"`
	FuelLevel      float64   `json:"fuel_level,omitempty"` // carried, unused by scoring
}

// TwinBaseline is the per-truck expectation looked up from the State Store.
type TwinBaseline struct {
	ExpectedCargoWeightKg float64   `json:"expected_cargo_weight_kg"`
	ExpectedDoorState     DoorState `json:"expected_door_state"`
	PlannedRouteCenter    GPS       `json:"planned_route_center"`
	MaxDeviationKm        float64   `json:"max_deviation_km"`
}

// DefaultTwinBaseline is used when no baseline has been seeded for a truck.
func DefaultTwinBaseline() TwinBaseline {
	return TwinBaseline{
		ExpectedCargoWeightKg: 2000,
		ExpectedDoorState:     DoorClosed,
		PlannedRouteCenter:    GPS{},
		MaxDeviationKm:        2,
	}
}

// TwinOutput is emitted on twin.output by the Digital Twin Processor.
type TwinOutput struct {
	TruckID        string     `json:"truck_id"`
	Timestamp      time.Time  `json:"timestamp"`
	GPS            GPS        `json:"gps"`
	DoorState      DoorState  `json:"door_state"`
	CargoWeightKg  float64    `json:"cargo_weight_kg"`
	EngineOn       bool       `json:"engine_on"`
	DriverRFIDSeen bool       `json:"driver_rfid_scanned"`
	DeviationScore float64    `json:"deviation_score"`
	Reasons        []string   `json:"reasons"`
	Status         TwinStatus `json:"twin_status"`
	SignalFresh    bool       `json:"signal_fresh"`
}

// RouteOutput is emitted on route.output by the Route Processor.
type RouteOutput struct {
	TruckID         string    `json:"truck_id"`
	Timestamp       time.Time `json:"timestamp"`
	GPS             GPS       `json:"gps"`
	InSafeCorridor  bool      `json:"in_safe_corridor"`
	DeviationKm     float64   `json:"deviation_km"`
	InHighRiskZone  bool      `json:"in_high_risk_zone"`
	RiskZoneName    string    `json:"risk_zone_name,omitempty"`
	RouteRiskScore  float64   `json:"route_risk_score"`
	TimeMultiplier  float64   `json:"time_multiplier"`
	NearestCorridor string    `json:"nearest_corridor,omitempty"`
}

// BehaviourOutput is emitted on behaviour.output by the Behaviour Processor.
type BehaviourOutput struct {
	TruckID            string          `json:"truck_id"`
	Timestamp          time.Time       `json:"timestamp"`
	AnomalyScore       float64         `json:"anomaly_score"`
	IsAnomaly          bool            `json:"is_anomaly"`
	FlaggedTrackIDs    []int           `json:"flagged_track_ids"`
	LoiteringDetected  bool            `json:"loitering_detected"`
	LoiteringDurationS float64         `json:"loitering_duration_s"`
	CrowdAnomaly       bool            `json:"crowd_anomaly"`
	RawTrackScores     map[int]float64 `json:"raw_track_scores"`
}

// ComponentScores is the per-input breakdown behind a composite risk score.
type ComponentScores struct {
	Behaviour float64 `json:"behaviour"`
	Twin      float64 `json:"twin"`
	Route     float64 `json:"route"`
	Temporal  float64 `json:"temporal"`
}

// SignalAges records how stale each input was at fusion time, in seconds.
// Kept for the Explainability template's evidence sentence.
type SignalAges struct {
	BehaviourAgeS float64 `json:"behaviour_age_s"`
	TwinAgeS      float64 `json:"twin_age_s"`
	RouteAgeS     float64 `json:"route_age_s"`
}

// RiskOutput is emitted on risk.output by the Risk Fusion Processor.
type RiskOutput struct {
	TruckID         string          `json:"truck_id"`
	Timestamp       time.Time       `json:"timestamp"`
	IncidentID      string          `json:"incident_id"`
	CompositeScore  float64         `json:"composite_risk_score"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	Confidence      float64         `json:"confidence"`
	ComponentScores ComponentScores `json:"component_scores"`
	SignalAges      SignalAges      `json:"signal_ages"`
	TriggeredRules  []TriggeredRule `json:"triggered_rules"`
	FusionMethod    FusionMethod    `json:"fusion_method"`
}

// DecisionOutput is emitted on decision.output by the Decision Processor.
type DecisionOutput struct {
	TruckID          string    `json:"truck_id"`
	IncidentID       string    `json:"incident_id"`
	Timestamp        time.Time `json:"timestamp"`
	RuleID           *string   `json:"rule_id"`
	RuleName         string    `json:"rule_name,omitempty"`
	ActionsTaken     []Action  `json:"actions_taken"`
	AlertSuppressed  bool      `json:"alert_suppressed"`
	SuppressedReason string    `json:"suppressed_reason,omitempty"`
	RiskScore        float64   `json:"risk_score"`
	RiskLevel        RiskLevel `json:"risk_level"`
}

// ExplanationOutput is emitted on explain.output by the Explainability Processor.
type ExplanationOutput struct {
	IncidentID       string    `json:"incident_id"`
	TruckID          string    `json:"truck_id"`
	Timestamp        time.Time `json:"timestamp"`
	Text             string    `json:"explanation_text"`
	SummarizerID     string    `json:"summarizer_id"`
	GenerationTimeMs int64     `json:"generation_time_ms"`
	Confidence       float64   `json:"confidence"`
	RiskLevel        RiskLevel `json:"risk_level"`
}

// Clip01 clips a score into [0,1], the invariant every score field carries.
func Clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
