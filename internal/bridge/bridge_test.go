package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/behaviour"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/decision"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/explainability"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/fusion"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/geocoder"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/route"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/summarizer"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/tripstore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/twin"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func newTestServer(t *testing.T) *Server {
	s, _ := newTestServerWithTrips(t)
	return s
}

func newTestServerWithTrips(t *testing.T) (*Server, *tripstore.StubTripStore) {
	t.Helper()

	store := statestore.New(statestore.NewMemoryKV())
	trips := tripstore.NewStubTripStore()
	trips.Seed(tripstore.Trip{TripID: "TRIP-001", TruckID: "TRUCK-001", Status: "active"})

	s := New(store, trips, nil)
	s.Behaviour = behaviour.New(nil)
	s.Twin = twin.New(store)
	s.Route = route.New(context.Background(), route.Config{})
	s.Fusion = fusion.New(store, nil, fusion.NewMetricsWith(prometheus.NewRegistry()), 10*time.Second)
	s.Decision = decision.New(store, nil, nil)
	s.Explainability = explainability.New(store, summarizer.NewTemplateSummarizer())
	return s, trips
}

func post(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestPerceptionRequiresFrameAndTrip(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/perception", map[string]interface{}{
		"trip_id": "TRIP-001", "truck_id": "TRUCK-001",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownTripIs404(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/behaviour-analysis", map[string]interface{}{
		"trip_id": "TRIP-NOPE", "truck_id": "TRUCK-001", "tracks": []models.Track{},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "unknown trip")
}

func TestBehaviourAnalysisHappyPath(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/behaviour-analysis", map[string]interface{}{
		"trip_id":  "TRIP-001",
		"truck_id": "TRUCK-001",
		"tracks": []models.Track{
			{TrackID: 1, Class: models.ClassPerson, Confidence: 0.9, DwellSec: 70, Velocity: models.Velocity{DX: 0.1}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.BehaviourOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.IsAnomaly)
	assert.True(t, out.LoiteringDetected)
	assert.Contains(t, out.FlaggedTrackIDs, 1)
}

func TestDigitalTwinHappyPath(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/digital-twin", twinRequest{
		TripID: "TRIP-001",
		IoTTelemetry: models.IoTTelemetry{
			TruckID:        "TRUCK-001",
			Timestamp:      time.Now(),
			DoorState:      models.DoorClosed,
			CargoWeightKg:  2000,
			EngineOn:       true,
			DriverRFIDSeen: true,
			SignalStrength: 0.9,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.TwinOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, models.TwinNominal, out.Status)
}

func TestDigitalTwinUnknownTripIs404(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/digital-twin", twinRequest{
		TripID: "TRIP-NOPE",
		IoTTelemetry: models.IoTTelemetry{
			TruckID: "TRUCK-001", Timestamp: time.Now(), DoorState: models.DoorClosed,
			CargoWeightKg: 2000, SignalStrength: 0.9,
		},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDigitalTwinRejectsOutOfRangeSignal(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/digital-twin", twinRequest{
		TripID: "TRIP-001",
		IoTTelemetry: models.IoTTelemetry{
			TruckID: "TRUCK-001", Timestamp: time.Now(), DoorState: models.DoorClosed,
			CargoWeightKg: 2000, SignalStrength: 1.4,
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDigitalTwinCriticalEscalatesTripStatus(t *testing.T) {
	s, trips := newTestServerWithTrips(t)
	rec := post(t, s, "/agents/digital-twin", twinRequest{
		TripID: "TRIP-001",
		IoTTelemetry: models.IoTTelemetry{
			TruckID:        "TRUCK-001",
			Timestamp:      time.Now(),
			GPS:            models.GPS{Lat: 28.61, Lon: 77.20}, // far off the default route center
			DoorState:      models.DoorOpen,
			CargoWeightKg:  1500,
			EngineOn:       false,
			DriverRFIDSeen: false,
			SignalStrength: 0.1,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.TwinOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, models.TwinCritical, out.Status)

	trip, err := trips.GetTrip(context.Background(), "TRIP-001")
	require.NoError(t, err)
	assert.Equal(t, "under_review", trip.Status)
}

func TestRouteRequiresCoordinates(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/route", map[string]interface{}{
		"trip_id": "TRIP-001", "truck_id": "TRUCK-001", "gps_lat": 28.61,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutePlaceNameWithoutGeocoderBackendIs400(t *testing.T) {
	s := newTestServer(t)
	s.Geo = geocoder.NewNullGeocoder()
	rec := post(t, s, "/agents/route", map[string]interface{}{
		"trip_id": "TRIP-001", "truck_id": "TRUCK-001", "place": "Azadpur Mandi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteHappyPath(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/route", map[string]interface{}{
		"trip_id": "TRIP-001", "truck_id": "TRUCK-001", "gps_lat": 28.61, "gps_lon": 77.20,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.RouteOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.GreaterOrEqual(t, out.RouteRiskScore, 0.0)
	assert.LessOrEqual(t, out.RouteRiskScore, 1.0)
	if out.InSafeCorridor {
		assert.Equal(t, 0.0, out.DeviationKm)
	}
}

func TestRiskFusionRejectsOutOfRangeScores(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/risk-fusion", map[string]interface{}{
		"trip_id":   "TRIP-001",
		"truck_id":  "TRUCK-001",
		"behaviour": map[string]interface{}{"anomaly_score": 1.7},
		"twin":      map[string]interface{}{"deviation_score": 0.5},
		"route":     map[string]interface{}{"route_risk_score": 0.5},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiskFusionHappyPath(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	rec := post(t, s, "/agents/risk-fusion", riskFusionRequest{
		TripID:    "TRIP-001",
		TruckID:   "TRUCK-001",
		Behaviour: models.BehaviourOutput{Timestamp: now, AnomalyScore: 0.9},
		Twin:      models.TwinOutput{Timestamp: now, DeviationScore: 0.9},
		Route:     models.RouteOutput{Timestamp: now, RouteRiskScore: 0.9},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.RiskOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.IncidentID)
	assert.GreaterOrEqual(t, out.CompositeScore, 0.45)
}

func TestDecisionRejectsOutOfRangeScore(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/decision", decisionRequest{
		TripID: "TRIP-001",
		RiskOutput: models.RiskOutput{
			TruckID: "TRUCK-001", IncidentID: "inc-1", CompositeScore: -0.2,
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecisionUnknownTripIs404(t *testing.T) {
	s := newTestServer(t)
	rec := post(t, s, "/agents/decision", decisionRequest{
		TripID: "TRIP-NOPE",
		RiskOutput: models.RiskOutput{
			TruckID: "TRUCK-001", IncidentID: "inc-1", CompositeScore: 0.9,
		},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecisionHappyPath(t *testing.T) {
	s, trips := newTestServerWithTrips(t)
	rec := post(t, s, "/agents/decision", decisionRequest{
		TripID: "TRIP-001",
		RiskOutput: models.RiskOutput{
			TruckID:        "TRUCK-001",
			IncidentID:     "inc-1",
			Timestamp:      time.Now(),
			CompositeScore: 0.9,
			RiskLevel:      models.RiskCritical,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.DecisionOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.RuleID)
	assert.Equal(t, "R001", *out.RuleID)
	assert.False(t, out.AlertSuppressed)

	// The fired decision persisted an alert and flagged the trip.
	alerts := trips.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "inc-1", alerts[0].IncidentID)
	assert.Equal(t, "TRIP-001", alerts[0].TripID)

	trip, err := trips.GetTrip(context.Background(), "TRIP-001")
	require.NoError(t, err)
	assert.Equal(t, "flagged", trip.Status)
}

func TestDecisionSuppressedRepeatPersistsNoAlert(t *testing.T) {
	s, trips := newTestServerWithTrips(t)
	body := decisionRequest{
		TripID: "TRIP-001",
		RiskOutput: models.RiskOutput{
			TruckID:        "TRUCK-001",
			IncidentID:     "inc-1",
			Timestamp:      time.Now(),
			CompositeScore: 0.9,
			RiskLevel:      models.RiskCritical,
		},
	}
	require.Equal(t, http.StatusOK, post(t, s, "/agents/decision", body).Code)

	body.IncidentID = "inc-2"
	rec := post(t, s, "/agents/decision", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.DecisionOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.AlertSuppressed)
	assert.Len(t, trips.Alerts(), 1)
}

func TestExplainHappyPath(t *testing.T) {
	s := newTestServer(t)
	ruleID := "R001"
	risk := models.RiskOutput{
		TruckID:        "TRUCK-001",
		IncidentID:     "inc-42",
		Timestamp:      time.Now(),
		CompositeScore: 0.9,
		RiskLevel:      models.RiskCritical,
		Confidence:     0.8,
		FusionMethod:   models.FusionWeightedFallback,
		TriggeredRules: []models.TriggeredRule{models.RuleLoiteringDetected, models.RuleGeofenceViolation},
	}
	rec := post(t, s, "/agents/explain", explainRequest{
		TripID:      "TRIP-001",
		RiskPayload: risk,
		DecisionPayload: models.DecisionOutput{
			TruckID:    "TRUCK-001",
			IncidentID: "inc-42",
			Timestamp:  risk.Timestamp,
			RuleID:     &ruleID,
			RuleName:   "Critical threshold breach",
			RiskScore:  0.9,
			RiskLevel:  models.RiskCritical,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out models.ExplanationOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "inc-42", out.IncidentID)
	assert.NotEmpty(t, out.Text)
	assert.NotEmpty(t, out.SummarizerID)
}

func TestMalformedBodyIs400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/agents/decision", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
