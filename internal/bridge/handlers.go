package bridge

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/perception"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/tripstore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// decodeBody decodes the JSON request body into v, writing a 400 and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func validScore(v float64) bool { return v >= 0 && v <= 1 }

// --- POST /agents/perception ---

type perceptionRequest struct {
	TripID   string `json:"trip_id"`
	TruckID  string `json:"truck_id"`
	FrameB64 string `json:"frame_b64"`
	FrameID  uint64 `json:"frame_id"`
}

type perceptionResponse struct {
	Tracks    []models.Track    `json:"tracks"`
	SceneTags []models.SceneTag `json:"scene_tags"`
	AlertRef  string            `json:"alert_ref,omitempty"`
}

func (s *Server) handlePerception(w http.ResponseWriter, r *http.Request) {
	var req perceptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FrameB64 == "" || req.TripID == "" {
		writeError(w, http.StatusBadRequest, "frame_b64 and trip_id are required")
		return
	}
	if _, ok := s.resolveTrip(r.Context(), w, req.TripID); !ok {
		return
	}
	if s.Perception == nil {
		writeError(w, http.StatusInternalServerError, "perception processor not configured")
		return
	}

	imageBytes, err := base64.StdEncoding.DecodeString(req.FrameB64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "frame_b64 is not valid base64")
		return
	}

	out, err := s.Perception.Process(r.Context(), perception.FrameInput{
		TruckID:    req.TruckID,
		FrameID:    req.FrameID,
		Timestamp:  time.Now(),
		ImageBytes: imageBytes,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "perception inference failed")
		return
	}

	s.publish("perception.output", out)
	writeJSON(w, http.StatusOK, perceptionResponse{
		Tracks:    out.Tracks,
		SceneTags: out.SceneTags,
	})
}

// --- POST /agents/behaviour-analysis ---

type behaviourRequest struct {
	TripID  string         `json:"trip_id"`
	TruckID string         `json:"truck_id"`
	Tracks  []models.Track `json:"tracks"`
}

func (s *Server) handleBehaviour(w http.ResponseWriter, r *http.Request) {
	var req behaviourRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := s.resolveTrip(r.Context(), w, req.TripID); !ok {
		return
	}
	if s.Behaviour == nil {
		writeError(w, http.StatusInternalServerError, "behaviour processor not configured")
		return
	}

	out := s.Behaviour.Process(r.Context(), models.PerceptionOutput{
		TruckID:   req.TruckID,
		Timestamp: time.Now(),
		Tracks:    req.Tracks,
	})

	s.publish("behaviour.output", out)
	writeJSON(w, http.StatusOK, out)
}

// --- POST /agents/digital-twin ---

// twinRequest is the telemetry body plus the trip id the bridge needs to
// resolve the trip and persist side effects.
type twinRequest struct {
	TripID string `json:"trip_id"`
	models.IoTTelemetry
}

func (s *Server) handleTwin(w http.ResponseWriter, r *http.Request) {
	var req twinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TripID == "" {
		writeError(w, http.StatusBadRequest, "trip_id is required")
		return
	}
	if !validScore(req.SignalStrength) {
		writeError(w, http.StatusBadRequest, "iot_signal_strength must be in [0,1]")
		return
	}
	trip, ok := s.resolveTrip(r.Context(), w, req.TripID)
	if !ok {
		return
	}
	if s.Twin == nil {
		writeError(w, http.StatusInternalServerError, "twin processor not configured")
		return
	}

	in := req.IoTTelemetry
	if in.TruckID == "" {
		in.TruckID = trip.TruckID
	}

	out := s.Twin.Process(r.Context(), in)

	if out.Status == models.TwinCritical && s.Trips != nil {
		if err := s.Trips.EscalateStatus(r.Context(), req.TripID, "under_review"); err != nil {
			s.logger.Warn("failed to escalate trip status", "trip_id", req.TripID, "error", err)
		}
	}

	s.publish("twin.output", out)
	writeJSON(w, http.StatusOK, out)
}

// --- POST /agents/route ---

type routeRequest struct {
	TripID  string   `json:"trip_id"`
	TruckID string   `json:"truck_id"`
	GPSLat  *float64 `json:"gps_lat"`
	GPSLon  *float64 `json:"gps_lon"`
	Place   string   `json:"place,omitempty"` // resolved via Geocoder when coords are absent
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if (req.GPSLat == nil || req.GPSLon == nil) && req.Place != "" && s.Geo != nil {
		gps, err := s.Geo.Coords(r.Context(), req.Place)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not resolve place name")
			return
		}
		req.GPSLat, req.GPSLon = &gps.Lat, &gps.Lon
	}
	if req.GPSLat == nil || req.GPSLon == nil {
		writeError(w, http.StatusBadRequest, "gps_lat and gps_lon are required")
		return
	}
	if _, ok := s.resolveTrip(r.Context(), w, req.TripID); !ok {
		return
	}
	if s.Route == nil {
		writeError(w, http.StatusInternalServerError, "route processor not configured")
		return
	}

	out := s.Route.Process(models.TwinOutput{
		TruckID: req.TruckID,
		GPS:     models.GPS{Lat: *req.GPSLat, Lon: *req.GPSLon},
	})

	s.publish("route.output", out)
	writeJSON(w, http.StatusOK, out)
}

// --- POST /agents/risk-fusion ---

type riskFusionRequest struct {
	TripID    string                 `json:"trip_id"`
	TruckID   string                 `json:"truck_id"`
	Behaviour models.BehaviourOutput `json:"behaviour"`
	Twin      models.TwinOutput      `json:"twin"`
	Route     models.RouteOutput     `json:"route"`
}

func (s *Server) handleRiskFusion(w http.ResponseWriter, r *http.Request) {
	var req riskFusionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validScore(req.Behaviour.AnomalyScore) || !validScore(req.Twin.DeviationScore) || !validScore(req.Route.RouteRiskScore) {
		writeError(w, http.StatusBadRequest, "component scores must be in [0,1]")
		return
	}
	if _, ok := s.resolveTrip(r.Context(), w, req.TripID); !ok {
		return
	}
	if s.Fusion == nil {
		writeError(w, http.StatusInternalServerError, "fusion processor not configured")
		return
	}

	req.Behaviour.TruckID = req.TruckID
	req.Twin.TruckID = req.TruckID
	req.Route.TruckID = req.TruckID

	s.Fusion.OnBehaviour(r.Context(), req.Behaviour)
	s.Fusion.OnTwin(r.Context(), req.Twin)
	out, fired := s.Fusion.OnRoute(r.Context(), req.Route)
	if !fired {
		writeError(w, http.StatusInternalServerError, "fusion did not produce a composite score")
		return
	}

	s.publish("risk.output", out)
	writeJSON(w, http.StatusOK, out)
}

// --- POST /agents/decision ---

// decisionRequest is the risk payload plus the trip id the bridge needs to
// resolve the trip and persist side effects.
type decisionRequest struct {
	TripID string `json:"trip_id"`
	models.RiskOutput
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TripID == "" {
		writeError(w, http.StatusBadRequest, "trip_id is required")
		return
	}
	if !validScore(req.CompositeScore) {
		writeError(w, http.StatusBadRequest, "composite score must be in [0,1]")
		return
	}
	trip, ok := s.resolveTrip(r.Context(), w, req.TripID)
	if !ok {
		return
	}
	if s.Decision == nil {
		writeError(w, http.StatusInternalServerError, "decision processor not configured")
		return
	}

	in := req.RiskOutput
	if in.TruckID == "" {
		in.TruckID = trip.TruckID
	}

	out := s.Decision.Process(r.Context(), in)

	if out.RuleID != nil && !out.AlertSuppressed && s.Trips != nil {
		alert := tripstore.Alert{
			TripID:     req.TripID,
			TruckID:    in.TruckID,
			IncidentID: in.IncidentID,
			RiskLevel:  string(in.RiskLevel),
			CreatedAt:  time.Now(),
		}
		if err := s.Trips.PersistAlert(r.Context(), alert); err != nil {
			s.logger.Warn("failed to persist alert", "trip_id", req.TripID, "error", err)
		}
		if in.RiskLevel == models.RiskCritical {
			if err := s.Trips.EscalateStatus(r.Context(), req.TripID, "flagged"); err != nil {
				s.logger.Warn("failed to escalate trip status", "trip_id", req.TripID, "error", err)
			}
		}
	}

	s.publish("decision.output", out)
	writeJSON(w, http.StatusOK, out)
}

// --- POST /agents/explain ---

type explainRequest struct {
	TripID          string                `json:"trip_id"`
	RiskPayload     models.RiskOutput     `json:"risk_payload"`
	DecisionPayload models.DecisionOutput `json:"decision_payload"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if s.Explainability == nil || s.Store == nil {
		writeError(w, http.StatusInternalServerError, "explainability processor not configured")
		return
	}

	s.Store.CacheRisk(req.RiskPayload)

	out, ok := s.Explainability.Explain(r.Context(), req.DecisionPayload)
	if !ok {
		writeError(w, http.StatusInternalServerError, "summarizer failed to produce an explanation")
		return
	}

	s.publish("explain.output", out)
	writeJSON(w, http.StatusOK, out)
}

// publish republishes a bridge-computed output to its bus topic, if a
// Bus is configured.
func (s *Server) publish(topic string, v interface{}) {
	if s.Bus == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode bridge publish", "topic", topic, "error", err)
		return
	}
	s.Bus.Publish(topic, raw)
}
