package behaviour

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

const (
	loiteringDwellThresholdSec = 30
	crowdTrackCount            = 4
	crowdAnomalyFloor          = 0.5
	nearDoorDwellSec           = 20
)

// Processor is the Behaviour Processor: per-track anomaly scoring with an
// optional learned Scorer and a deterministic heuristic fallback.
type Processor struct {
	scorer Scorer
	logger *slog.Logger
}

// New constructs a Behaviour Processor. scorer may be nil, in which case
// every track is scored with the heuristic formula.
func New(scorer Scorer) *Processor {
	return &Processor{
		scorer: scorer,
		logger: slog.Default().With("component", "behaviour"),
	}
}

// Process scores every track in a PerceptionOutput and derives the
// batch-level anomaly signal.
func (p *Processor) Process(ctx context.Context, in models.PerceptionOutput) models.BehaviourOutput {
	out := models.BehaviourOutput{
		TruckID:         in.TruckID,
		Timestamp:       in.Timestamp,
		RawTrackScores:  make(map[int]float64),
		FlaggedTrackIDs: nil,
	}

	if len(in.Tracks) == 0 {
		return out
	}

	features := make([][featureCount]float64, len(in.Tracks))
	for i, tr := range in.Tracks {
		features[i] = featureVector(tr, in.Timestamp)
	}

	var scores []float64
	if p.scorer != nil {
		if raw, err := p.scorer.Score(toSlices(features)); err == nil && len(raw) == len(in.Tracks) {
			scores = NormalizeModelScores(raw)
		} else if err != nil {
			p.logger.Warn("scorer failed, falling back to heuristic", "truck_id", in.TruckID, "error", err)
		}
	}
	if scores == nil {
		scores = make([]float64, len(in.Tracks))
		for i := range features {
			scores[i] = HeuristicScore(features[i])
		}
	}

	maxScore := 0.0
	personLoiterDwell := 0.0
	personCount := 0
	for i, tr := range in.Tracks {
		out.RawTrackScores[tr.TrackID] = scores[i]
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
		if scores[i] >= flagThreshold {
			out.FlaggedTrackIDs = append(out.FlaggedTrackIDs, tr.TrackID)
		}
		if tr.Class == models.ClassPerson {
			personCount++
			if tr.DwellSec > loiteringDwellThresholdSec && scores[i] >= flagThreshold && tr.DwellSec > personLoiterDwell {
				personLoiterDwell = tr.DwellSec
			}
		}
	}
	sort.Ints(out.FlaggedTrackIDs)

	out.AnomalyScore = models.Clip01(maxScore)
	out.IsAnomaly = out.AnomalyScore >= flagThreshold
	out.LoiteringDetected = personLoiterDwell > 0
	out.LoiteringDurationS = personLoiterDwell
	out.CrowdAnomaly = personCount > crowdTrackCount && out.AnomalyScore > crowdAnomalyFloor

	return out
}

func featureVector(tr models.Track, ts time.Time) [featureCount]float64 {
	var f [featureCount]float64
	f[FeatDwellSeconds] = tr.DwellSec
	f[FeatVelocityMag] = magnitude(tr.Velocity.DX, tr.Velocity.DY)
	f[FeatConfidence] = tr.Confidence
	if tr.DwellSec > nearDoorDwellSec {
		f[FeatNearDoor] = 1
	}
	f[FeatHourOfDay] = float64(ts.Hour())
	return f
}

func toSlices(features [][featureCount]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, f := range features {
		cp := make([]float64, featureCount)
		copy(cp, f[:])
		out[i] = cp
	}
	return out
}

// Run subscribes to perception.output and publishes to behaviour.output
// until ctx is canceled.
func (p *Processor) Run(ctx context.Context, b bus.Bus) error {
	sub := b.Subscribe("perception.output")
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			p.handle(b, payload)
		}
	}
}

func (p *Processor) handle(b bus.Bus, payload []byte) {
	var in models.PerceptionOutput
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed perception.output message", "error", err)
		return
	}

	out := p.Process(context.Background(), in)

	encoded, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("failed to encode behaviour.output", "error", err)
		return
	}
	b.Publish("behaviour.output", encoded)
}
