package behaviour

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func track(id int, class models.TrackClass, dwell float64, vx, vy, conf float64) models.Track {
	return models.Track{
		TrackID:    id,
		Class:      class,
		Confidence: conf,
		Velocity:   models.Velocity{DX: vx, DY: vy},
		DwellSec:   dwell,
	}
}

func TestHeuristicWorstCaseScenario(t *testing.T) {
	// dwell=70s, v=(0.1,0), conf=0.9, hour=23 -> 1.0, flagged, loitering.
	p := New(nil)
	ts := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	in := models.PerceptionOutput{
		TruckID:   "truck-1",
		Timestamp: ts,
		Tracks:    []models.Track{track(1, models.ClassPerson, 70, 0.1, 0, 0.9)},
	}

	out := p.Process(context.Background(), in)

	assert.Equal(t, 1.0, out.AnomalyScore)
	assert.True(t, out.IsAnomaly)
	assert.Contains(t, out.FlaggedTrackIDs, 1)
	assert.True(t, out.LoiteringDetected)
	assert.Equal(t, 70.0, out.LoiteringDurationS)
}

func TestHeuristicNoSignals(t *testing.T) {
	p := New(nil)
	ts := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	in := models.PerceptionOutput{
		TruckID:   "truck-1",
		Timestamp: ts,
		Tracks:    []models.Track{track(1, models.ClassCar, 5, 3, 3, 0.9)},
	}

	out := p.Process(context.Background(), in)

	assert.Equal(t, 0.0, out.AnomalyScore)
	assert.False(t, out.IsAnomaly)
	assert.Empty(t, out.FlaggedTrackIDs)
	assert.False(t, out.LoiteringDetected)
}

func TestEmptyTrackListYieldsZeroOutput(t *testing.T) {
	p := New(nil)
	out := p.Process(context.Background(), models.PerceptionOutput{TruckID: "truck-1"})
	assert.Equal(t, 0.0, out.AnomalyScore)
	assert.Empty(t, out.RawTrackScores)
}

func TestCrowdAnomalyRequiresBothCountAndScore(t *testing.T) {
	p := New(nil)
	ts := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)

	tracks := make([]models.Track, 0, 5)
	for i := 1; i <= 5; i++ {
		tracks = append(tracks, track(i, models.ClassPerson, 65, 0, 0, 0.9))
	}
	out := p.Process(context.Background(), models.PerceptionOutput{TruckID: "t", Timestamp: ts, Tracks: tracks})

	require.True(t, out.AnomalyScore > crowdAnomalyFloor)
	assert.True(t, out.CrowdAnomaly)
}

type fakeScorer struct {
	raw []float64
	err error
}

func (f *fakeScorer) Score(batch [][]float64) ([]float64, error) {
	return f.raw, f.err
}

func TestNormalizeModelScoresMostNegativeMapsToOne(t *testing.T) {
	out := NormalizeModelScores([]float64{-5, 3, 0})
	assert.Equal(t, 1.0, out[0])
	assert.Equal(t, 0.0, out[1])
}

func TestNormalizeModelScoresAllEqualIsAllZero(t *testing.T) {
	out := NormalizeModelScores([]float64{2, 2, 2})
	assert.Equal(t, []float64{0, 0, 0}, out)
}

func TestSingleTrackBatchNormalizesToZero(t *testing.T) {
	// A batch of one track is zero by definition (min == max).
	out := NormalizeModelScores([]float64{-5})
	assert.Equal(t, []float64{0}, out)
}

func TestLearnedScorerDrivesOutputWhenPresent(t *testing.T) {
	p := New(&fakeScorer{raw: []float64{-5, 3}})
	ts := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	in := models.PerceptionOutput{
		TruckID:   "truck-1",
		Timestamp: ts,
		Tracks: []models.Track{
			track(1, models.ClassCar, 5, 1, 1, 0.9),
			track(2, models.ClassCar, 5, 1, 1, 0.9),
		},
	}

	out := p.Process(context.Background(), in)

	assert.Equal(t, 1.0, out.RawTrackScores[1])
	assert.Equal(t, 0.0, out.RawTrackScores[2])
	assert.Contains(t, out.FlaggedTrackIDs, 1)
}

func TestScorerErrorFallsBackToHeuristic(t *testing.T) {
	p := New(&fakeScorer{err: assertErr("model unavailable")})
	ts := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	in := models.PerceptionOutput{
		TruckID:   "truck-1",
		Timestamp: ts,
		Tracks:    []models.Track{track(1, models.ClassPerson, 70, 0.1, 0, 0.9)},
	}

	out := p.Process(context.Background(), in)

	assert.Equal(t, 1.0, out.AnomalyScore)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
