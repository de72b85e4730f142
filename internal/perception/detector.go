package perception

import (
	"context"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pb"
)

// RawDetection is one detector hit before it is folded into the tracker.
type RawDetection struct {
	ClassLabel     string
	Confidence     float64
	X1, Y1, X2, Y2 float64
}

// Detector is the boundary to the external CV detector/tracker service.
// Perception owns decode + the multi-object tracker; Detector only
// returns raw per-frame boxes.
type Detector interface {
	Detect(ctx context.Context, truckID string, frameID uint64, imageBytes []byte, confidenceThreshold float64) ([]RawDetection, error)
}

// GRPCDetector calls an external detector/tracker service over gRPC.
type GRPCDetector struct {
	client pb.DetectorServiceClient
}

// NewGRPCDetector wraps a generated (or, as here, hand-written) gRPC client.
func NewGRPCDetector(client pb.DetectorServiceClient) *GRPCDetector {
	return &GRPCDetector{client: client}
}

func (d *GRPCDetector) Detect(ctx context.Context, truckID string, frameID uint64, imageBytes []byte, confidenceThreshold float64) ([]RawDetection, error) {
	resp, err := d.client.DetectFrame(ctx, &pb.DetectFrameRequest{
		TruckId:             truckID,
		FrameId:             frameID,
		ImageBytes:          imageBytes,
		ConfidenceThreshold: float32(confidenceThreshold),
		CapturedAt:          timestamppb.Now(),
	}, []grpc.CallOption{}...)
	if err != nil {
		return nil, err
	}

	out := make([]RawDetection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		out = append(out, RawDetection{
			ClassLabel: det.ClassLabel,
			Confidence: float64(det.Confidence),
			X1:         float64(det.X1),
			Y1:         float64(det.Y1),
			X2:         float64(det.X2),
			Y2:         float64(det.Y2),
		})
	}
	return out, nil
}

// StubDetector is an in-process, dependency-free detector used when no
// external gRPC endpoint is configured. It derives a small, deterministic
// set of detections from the decoded frame's dimensions so the rest of the
// pipeline (tracker, behaviour scoring) has something real to chew on in
// demos and tests.
type StubDetector struct{}

func NewStubDetector() *StubDetector { return &StubDetector{} }

func (d *StubDetector) Detect(_ context.Context, _ string, frameID uint64, imageBytes []byte, confidenceThreshold float64) ([]RawDetection, error) {
	w, h, ok := decodeDimensions(imageBytes)
	if !ok || len(imageBytes) == 0 {
		return nil, nil
	}

	// Deterministic pseudo-detection derived from frame id and frame dimensions,
	// so repeated calls with the same frame produce a stable, slowly
	// drifting bounding box (as if tracking one object across frames).
	phase := float64(frameID%60) / 60.0
	cx := float64(w) * (0.3 + 0.4*phase)
	cy := float64(h) * 0.5
	halfW := float64(w) * 0.08
	halfH := float64(h) * 0.2
	confidence := 0.55 + 0.2*math.Sin(phase*math.Pi)
	if confidence < confidenceThreshold {
		return nil, nil
	}

	return []RawDetection{{
		ClassLabel: "person",
		Confidence: confidence,
		X1:         cx - halfW,
		Y1:         cy - halfH,
		X2:         cx + halfW,
		Y2:         cy + halfH,
	}}, nil
}

var _ Detector = (*GRPCDetector)(nil)
var _ Detector = (*StubDetector)(nil)
