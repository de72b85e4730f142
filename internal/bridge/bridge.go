// Package bridge implements the HTTP Bridge: a synchronous
// surface letting operators invoke any processor's core computation
// without going through the bus. Each handler decodes a request, resolves
// the trip, calls the processor's pure function, persists durable side
// effects via TripStore, optionally republishes to the matching bus
// topic, and encodes the result.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/behaviour"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/decision"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/explainability"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/fusion"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/geocoder"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/perception"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/route"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/statestore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/tripstore"
	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/twin"
)

// Server holds every processor the bridge fronts. It owns no processor
// state itself — StateStore, the trackers, and the correlator live inside
// the processors and packages it wires to.
type Server struct {
	Perception     *perception.Processor
	Behaviour      *behaviour.Processor
	Twin           *twin.Processor
	Route          *route.Processor
	Fusion         *fusion.Processor
	Decision       *decision.Processor
	Explainability *explainability.Processor

	Store *statestore.StateStore
	Trips tripstore.TripStore
	Geo   geocoder.Geocoder // optional place-name resolution for /agents/route
	Bus   bus.Bus           // optional: nil means bridge calls stay off-bus

	logger *slog.Logger
}

// New wires a Server. Any processor field left nil has its endpoint
// return 500 on invocation rather than panicking.
func New(store *statestore.StateStore, trips tripstore.TripStore, b bus.Bus) *Server {
	return &Server{
		Store:  store,
		Trips:  trips,
		Bus:    b,
		logger: slog.Default().With("component", "bridge"),
	}
}

// Router builds the gorilla/mux router for all seven endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/agents/perception", s.handlePerception).Methods(http.MethodPost)
	r.HandleFunc("/agents/behaviour-analysis", s.handleBehaviour).Methods(http.MethodPost)
	r.HandleFunc("/agents/digital-twin", s.handleTwin).Methods(http.MethodPost)
	r.HandleFunc("/agents/route", s.handleRoute).Methods(http.MethodPost)
	r.HandleFunc("/agents/risk-fusion", s.handleRiskFusion).Methods(http.MethodPost)
	r.HandleFunc("/agents/decision", s.handleDecision).Methods(http.MethodPost)
	r.HandleFunc("/agents/explain", s.handleExplain).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// resolveTrip looks the trip up via TripStore, writing a 404 and
// returning ok=false on ErrUnknownTrip.
func (s *Server) resolveTrip(ctx context.Context, w http.ResponseWriter, tripID string) (tripstore.Trip, bool) {
	if s.Trips == nil {
		return tripstore.Trip{TripID: tripID}, true
	}
	trip, err := s.Trips.GetTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, tripstore.ErrUnknownTrip) {
			writeError(w, http.StatusNotFound, "unknown trip id")
			return tripstore.Trip{}, false
		}
		writeError(w, http.StatusInternalServerError, "trip lookup failed")
		return tripstore.Trip{}, false
	}
	return trip, true
}
