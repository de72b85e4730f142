package incidentarchive

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// SpannerArchive implements Archive against a Cloud Spanner `Incidents`
// table keyed (TruckID, IncidentID).
type SpannerArchive struct {
	client *spanner.Client
	logger *log.Logger
}

// NewSpannerArchive creates an Archive backed by Spanner.
func NewSpannerArchive(project, instance, dbName string) (Archive, error) {
	ctx := context.Background()
	dbPath := fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, dbName)

	client, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spanner client: %w", err)
	}

	return &SpannerArchive{
		client: client,
		logger: log.New(log.Writer(), "[SpannerArchive] ", log.LstdFlags),
	}, nil
}

func (sa *SpannerArchive) Record(ctx context.Context, rec Record) error {
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return err
	}

	_, err = sa.client.Apply(ctx, []*spanner.Mutation{
		spanner.InsertOrUpdate("Incidents",
			[]string{"TruckID", "IncidentID", "RuleID", "RiskLevel", "Score", "Actions", "OccurredAt", "ArchivedAt"},
			[]interface{}{rec.TruckID, rec.IncidentID, rec.RuleID, string(rec.RiskLevel), rec.Score, string(actions), rec.Timestamp, spanner.CommitTimestamp},
		),
	})

	if err == nil {
		sa.logger.Printf("archived incident %s for truck %s", rec.IncidentID, rec.TruckID)
	}

	return err
}

func (sa *SpannerArchive) Recent(ctx context.Context, truckID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	// Stale read: reporting tolerates a 15-second lag for cheaper reads.
	roTx := sa.client.ReadOnlyTransaction().WithTimestampBound(spanner.MaxStaleness(15 * time.Second))
	defer roTx.Close()

	stmt := spanner.Statement{
		SQL: `SELECT TruckID, IncidentID, RuleID, RiskLevel, Score, Actions, OccurredAt FROM Incidents
		      WHERE TruckID = @truckID
		      ORDER BY OccurredAt DESC
		      LIMIT @limit`,
		Params: map[string]interface{}{"truckID": truckID, "limit": int64(limit)},
	}

	iter := roTx.Query(ctx, stmt)
	defer iter.Stop()

	var records []Record
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var rec Record
		var level, actionsJSON string
		if err := row.Columns(&rec.TruckID, &rec.IncidentID, &rec.RuleID, &level, &rec.Score, &actionsJSON, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.RiskLevel = models.RiskLevel(level)
		if err := json.Unmarshal([]byte(actionsJSON), &rec.Actions); err != nil {
			rec.Actions = nil
		}
		records = append(records, rec)
	}

	return records, nil
}

func (sa *SpannerArchive) Close() error {
	sa.client.Close()
	return nil
}
