package perception

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessEmptyTrackListOnBadBytes(t *testing.T) {
	p := New(NewStubDetector())
	out, err := p.Process(context.Background(), FrameInput{
		TruckID:    "truck-1",
		FrameID:    1,
		ImageBytes: []byte("not an image"),
	})
	require.NoError(t, err)
	assert.Empty(t, out.Tracks)
}

func TestProcessEmitsTrackFromStubDetector(t *testing.T) {
	p := New(NewStubDetector())
	out, err := p.Process(context.Background(), FrameInput{
		TruckID:    "truck-1",
		FrameID:    1,
		Timestamp:  time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
		ImageBytes: pngBytes(t, 640, 480),
	})
	require.NoError(t, err)
	require.Len(t, out.Tracks, 1)
	assert.Equal(t, 1, out.Tracks[0].TrackID)
}

func TestTrackIDPersistsAcrossFrames(t *testing.T) {
	p := New(NewStubDetector())
	frame := pngBytes(t, 640, 480)
	ts := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)

	first, err := p.Process(context.Background(), FrameInput{TruckID: "truck-1", FrameID: 1, Timestamp: ts, ImageBytes: frame})
	require.NoError(t, err)
	second, err := p.Process(context.Background(), FrameInput{TruckID: "truck-1", FrameID: 2, Timestamp: ts.Add(time.Second), ImageBytes: frame})
	require.NoError(t, err)

	require.Len(t, first.Tracks, 1)
	require.Len(t, second.Tracks, 1)
	assert.Equal(t, first.Tracks[0].TrackID, second.Tracks[0].TrackID)
}

func TestNightSceneTag(t *testing.T) {
	p := New(NewStubDetector())
	out, err := p.Process(context.Background(), FrameInput{
		TruckID:    "truck-1",
		FrameID:    1,
		Timestamp:  time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC),
		ImageBytes: pngBytes(t, 640, 480),
	})
	require.NoError(t, err)
	assert.Contains(t, out.SceneTags, models.TagNight)
}
