// Package pb holds hand-written protobuf-shaped message and client types
// for the external CV detector/tracker service. These are written by
// hand rather than generated by protoc — there is no .proto toolchain in
// this repo, only the wire-shaped Go types a generated client would
// produce.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Detection is one raw bounding box the detector emits for a single frame,
// before the Perception Processor maps it onto the closed Track taxonomy.
type Detection struct {
	ClassLabel     string
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

// DetectFrameRequest carries raw image bytes for one frame.
type DetectFrameRequest struct {
	TruckId             string
	FrameId             uint64
	ImageBytes          []byte
	ConfidenceThreshold float32
	CapturedAt          *timestamppb.Timestamp
}

// DetectFrameResponse is the detector's reply for one frame.
type DetectFrameResponse struct {
	Detections []*Detection
}

// DetectorServiceClient is the gRPC client contract for the external
// detector/tracker. A real deployment generates this from a .proto file;
// here it is the interface internal/perception programs against.
type DetectorServiceClient interface {
	DetectFrame(ctx context.Context, in *DetectFrameRequest, opts ...grpc.CallOption) (*DetectFrameResponse, error)
}

// detectorServiceClient is the hand-written stand-in for what protoc-gen-go-grpc
// would emit: a thin wrapper invoking the method over an established conn.
type detectorServiceClient struct {
	conn *grpc.ClientConn
}

// NewDetectorServiceClient wraps conn as a DetectorServiceClient.
func NewDetectorServiceClient(conn *grpc.ClientConn) DetectorServiceClient {
	return &detectorServiceClient{conn: conn}
}

func (c *detectorServiceClient) DetectFrame(ctx context.Context, in *DetectFrameRequest, opts ...grpc.CallOption) (*DetectFrameResponse, error) {
	out := new(DetectFrameResponse)
	if err := c.conn.Invoke(ctx, "/rakshak.perception.DetectorService/DetectFrame", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
