package tripstore

import (
	"context"
	"fmt"
	"os"
	"time"

	supabase "github.com/supabase-community/supabase-go"
)

// tripRow and alertRow are plain structs tagged for the Supabase REST
// client, one per table.
type tripRow struct {
	TripID  string `json:"trip_id"`
	TruckID string `json:"truck_id"`
	Status  string `json:"status"`
}

type alertRow struct {
	TripID     string `json:"trip_id"`
	TruckID    string `json:"truck_id"`
	IncidentID string `json:"incident_id"`
	RiskLevel  string `json:"risk_level"`
	CreatedAt  string `json:"created_at"`
}

// SupabaseTripStore backs the TripStore with the trips/alerts tables in
// Supabase.
type SupabaseTripStore struct {
	client *supabase.Client
}

// NewSupabaseTripStore builds a client from SUPABASE_URL/SUPABASE_SERVICE_KEY
// . Returns an error if either is unset — callers should fall back to
// StubTripStore, matching the rest of the system's "optional backend"
// convention.
func NewSupabaseTripStore() (*SupabaseTripStore, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")
	if url == "" || key == "" {
		return nil, fmt.Errorf("tripstore: SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("tripstore: create supabase client: %w", err)
	}
	return &SupabaseTripStore{client: client}, nil
}

func (s *SupabaseTripStore) GetTrip(_ context.Context, tripID string) (Trip, error) {
	var rows []tripRow
	_, err := s.client.From("trips").
		Select("*", "", false).
		Eq("trip_id", tripID).
		ExecuteTo(&rows)
	if err != nil {
		return Trip{}, fmt.Errorf("tripstore: get trip: %w", err)
	}
	if len(rows) == 0 {
		return Trip{}, ErrUnknownTrip
	}
	r := rows[0]
	return Trip{TripID: r.TripID, TruckID: r.TruckID, Status: r.Status}, nil
}

func (s *SupabaseTripStore) PersistAlert(_ context.Context, alert Alert) error {
	row := alertRow{
		TripID:     alert.TripID,
		TruckID:    alert.TruckID,
		IncidentID: alert.IncidentID,
		RiskLevel:  alert.RiskLevel,
		CreatedAt:  alert.CreatedAt.Format(time.RFC3339),
	}
	var result []alertRow
	_, err := s.client.From("alerts").
		Insert(row, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("tripstore: persist alert: %w", err)
	}
	return nil
}

func (s *SupabaseTripStore) EscalateStatus(_ context.Context, tripID, status string) error {
	update := map[string]interface{}{"status": status}
	var result []tripRow
	_, err := s.client.From("trips").
		Update(update, "", "").
		Eq("trip_id", tripID).
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("tripstore: escalate status: %w", err)
	}
	return nil
}

var _ TripStore = (*SupabaseTripStore)(nil)
