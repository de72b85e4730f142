package perception

import (
	"math"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// maxAgeFrames is the tracker's max-age before a track is dropped.
const maxAgeFrames = 30

// centroidRingSize bounds the per-track centroid history.
const centroidRingSize = 10

// matchDistancePx is the max centroid movement a detection can be matched
// to an existing track across consecutive frames.
const matchDistancePx = 80

var classAllowlist = map[string]models.TrackClass{
	"person":     models.ClassPerson,
	"car":        models.ClassCar,
	"truck":      models.ClassTruck,
	"bus":        models.ClassBus,
	"motorcycle": models.ClassMotorcycle,
}

type centroid struct{ x, y float64 }

// trackState is the tracker's per-track bookkeeping, independent of any
// single frame's PerceptionOutput.
type trackState struct {
	id              int
	class           models.TrackClass
	rawClass        string
	confidence      float64
	bbox            models.BBox
	centroids       []centroid // ring buffer, most recent last
	firstSeen       time.Time
	lastSeenFrame   uint64
	framesSinceSeen int
}

func (t *trackState) pushCentroid(c centroid) {
	t.centroids = append(t.centroids, c)
	if len(t.centroids) > centroidRingSize {
		t.centroids = t.centroids[len(t.centroids)-centroidRingSize:]
	}
}

func (t *trackState) velocity() models.Velocity {
	n := len(t.centroids)
	if n < 2 {
		return models.Velocity{}
	}
	prev, last := t.centroids[n-2], t.centroids[n-1]
	return models.Velocity{DX: last.x - prev.x, DY: last.y - prev.y}
}

// Tracker assigns persistent integer ids to per-frame detections and
// tracks dwell time and velocity, one instance per truck.
type Tracker struct {
	nextID int
	tracks []*trackState
}

// NewTracker creates an empty tracker for a single truck's camera stream.
func NewTracker() *Tracker {
	return &Tracker{nextID: 1}
}

// Update folds one frame's raw detections into the tracker's state and
// returns the confirmed Track records for that frame.
func (t *Tracker) Update(detections []RawDetection, frameID uint64, now time.Time) []models.Track {
	matched := make(map[*trackState]bool, len(t.tracks))

	for _, det := range detections {
		class, ok := classAllowlist[det.ClassLabel]
		if !ok {
			continue // out-of-taxonomy detections are dropped
		}
		cx, cy := centroidOf(det)

		track := t.findMatch(cx, cy, matched)
		if track == nil {
			track = &trackState{
				id:        t.nextID,
				firstSeen: now,
			}
			t.nextID++
			t.tracks = append(t.tracks, track)
		}

		track.class = class
		track.rawClass = det.ClassLabel
		track.confidence = det.Confidence
		track.bbox = models.BBox{X1: det.X1, Y1: det.Y1, X2: det.X2, Y2: det.Y2}
		track.pushCentroid(centroid{x: cx, y: cy})
		track.lastSeenFrame = frameID
		track.framesSinceSeen = 0
		matched[track] = true
	}

	// Age out unmatched tracks.
	alive := t.tracks[:0]
	for _, track := range t.tracks {
		if !matched[track] {
			track.framesSinceSeen++
		}
		if track.framesSinceSeen <= maxAgeFrames {
			alive = append(alive, track)
		}
	}
	t.tracks = alive

	out := make([]models.Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		if track.framesSinceSeen > 0 {
			continue // only emit tracks confirmed in this frame
		}
		out = append(out, models.Track{
			TrackID:    track.id,
			Class:      track.class,
			RawClass:   track.rawClass,
			Confidence: track.confidence,
			BBox:       track.bbox,
			Velocity:   track.velocity(),
			DwellSec:   now.Sub(track.firstSeen).Seconds(),
		})
	}
	return out
}

func (t *Tracker) findMatch(cx, cy float64, matched map[*trackState]bool) *trackState {
	var best *trackState
	bestDist := math.MaxFloat64
	for _, track := range t.tracks {
		if matched[track] || len(track.centroids) == 0 {
			continue
		}
		last := track.centroids[len(track.centroids)-1]
		dist := math.Hypot(cx-last.x, cy-last.y)
		if dist < matchDistancePx && dist < bestDist {
			best = track
			bestDist = dist
		}
	}
	return best
}

func centroidOf(d RawDetection) (float64, float64) {
	return (d.X1 + d.X2) / 2, (d.Y1 + d.Y2) / 2
}
