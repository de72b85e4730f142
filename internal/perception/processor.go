// Package perception implements the Perception Processor: it
// decodes camera frames, delegates raw detection to an external Detector,
// and runs an in-process multi-object tracker to produce persistent,
// velocity- and dwell-annotated Track records.
package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

const (
	baseConfidenceThreshold    = 0.5
	noAcceleratorConfidence    = 0.4
	loiteringSceneThresholdSec = 30
	crowdSceneThreshold        = 4
)

// AcceleratorAware lets a Detector report whether it runs on an
// accelerator; Detector implementations that don't care can skip it and
// the processor assumes an accelerator is present.
type AcceleratorAware interface {
	HasAccelerator() bool
}

// HasAccelerator reports false for StubDetector — no GPU/NPU backs it.
func (d *StubDetector) HasAccelerator() bool { return false }

// FrameInput is the wire shape published on camera.frames and accepted by
// the HTTP bridge's /agents/perception endpoint.
type FrameInput struct {
	TruckID    string    `json:"truck_id"`
	FrameID    uint64    `json:"frame_id"`
	Timestamp  time.Time `json:"timestamp"`
	ImageBytes []byte    `json:"image_bytes"`
}

// Processor is the Perception Processor. One Tracker is kept per truck.
type Processor struct {
	detector Detector
	logger   *slog.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker
}

// New constructs a Perception Processor around the given Detector.
func New(detector Detector) *Processor {
	return &Processor{
		detector: detector,
		logger:   slog.Default().With("component", "perception"),
		trackers: make(map[string]*Tracker),
	}
}

func (p *Processor) trackerFor(truckID string) *Tracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackers[truckID]
	if !ok {
		t = NewTracker()
		p.trackers[truckID] = t
	}
	return t
}

// Process runs the pure computation for one frame: decode, detect, track,
// tag. A decode failure yields an empty track list, never an error.
func (p *Processor) Process(ctx context.Context, in FrameInput) (models.PerceptionOutput, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	out := models.PerceptionOutput{
		TruckID:   in.TruckID,
		FrameID:   in.FrameID,
		Timestamp: ts,
		Tracks:    nil,
		SceneTags: nil,
	}

	if _, _, ok := decodeDimensions(in.ImageBytes); !ok {
		return out, nil
	}

	threshold := baseConfidenceThreshold
	if aa, ok := p.detector.(AcceleratorAware); ok && !aa.HasAccelerator() {
		threshold = noAcceleratorConfidence
	}

	detections, err := p.detector.Detect(ctx, in.TruckID, in.FrameID, in.ImageBytes, threshold)
	if err != nil {
		p.logger.Warn("detector call failed, emitting empty frame", "truck_id", in.TruckID, "error", err)
		return out, nil
	}

	filtered := detections[:0]
	for _, d := range detections {
		if d.Confidence >= threshold {
			filtered = append(filtered, d)
		}
	}

	tracker := p.trackerFor(in.TruckID)
	out.Tracks = tracker.Update(filtered, in.FrameID, ts)
	out.SceneTags = sceneTags(out.Tracks, ts)
	return out, nil
}

func sceneTags(tracks []models.Track, ts time.Time) []models.SceneTag {
	var tags []models.SceneTag

	hour := ts.Hour()
	if hour >= 22 || hour < 6 {
		tags = append(tags, models.TagNight)
	}

	personCount := 0
	maxDwell := 0.0
	for _, tr := range tracks {
		if tr.Class == models.ClassPerson {
			personCount++
			if tr.DwellSec > maxDwell {
				maxDwell = tr.DwellSec
			}
		}
	}
	if personCount == 0 {
		tags = append(tags, models.TagNoDriverPresent)
	}
	if maxDwell > loiteringSceneThresholdSec {
		tags = append(tags, models.TagLoiteringDetected)
	}
	if personCount > crowdSceneThreshold {
		tags = append(tags, models.TagCrowdDetected)
	}
	return tags
}

// Run subscribes to camera.frames and publishes to perception.output until
// ctx is canceled.
func (p *Processor) Run(ctx context.Context, b bus.Bus) error {
	sub := b.Subscribe("camera.frames")
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			p.handleFrame(ctx, b, payload)
		}
	}
}

func (p *Processor) handleFrame(ctx context.Context, b bus.Bus, payload []byte) {
	var in FrameInput
	if err := json.Unmarshal(payload, &in); err != nil {
		p.logger.Warn("dropping malformed camera.frames message", "error", err)
		return
	}

	out, err := p.Process(ctx, in)
	if err != nil {
		p.logger.Error("perception processing failed", "truck_id", in.TruckID, "error", err)
		return
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("failed to encode perception.output", "error", err)
		return
	}
	b.Publish("perception.output", encoded)
}

// ErrNoAccelerator names the relaxed-confidence-threshold condition. No
// function in this module returns it; the processor applies the relaxed
// threshold without reporting an error.
var ErrNoAccelerator = fmt.Errorf("perception: no accelerator available, using relaxed confidence threshold")
