package behaviour

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "google.golang.org/api/storage/v1"
)

// weightModel is the on-disk shape of a logistic-regression-style scorer:
// one weight per feature plus a bias, applied per track then summed.
type weightModel struct {
	Weights [featureCount]float64 `json:"weights"`
	Bias    float64               `json:"bias"`
}

// Score implements Scorer. It returns a raw (unnormalized) linear score per
// track; NormalizeModelScores maps the batch into [0,1] afterwards.
func (m *weightModel) Score(batch [][]float64) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, features := range batch {
		sum := m.Bias
		for j := 0; j < featureCount && j < len(features); j++ {
			sum += m.Weights[j] * features[j]
		}
		out[i] = sum
	}
	return out, nil
}

// LoadScorer inspects path and returns a Scorer, or nil if the path is
// empty, unreadable, or not a recognized artifact — callers fall back to
// the heuristic path in either case.
func LoadScorer(ctx context.Context, path string) Scorer {
	if path == "" {
		return nil
	}
	if !strings.HasSuffix(path, ".json") {
		return nil
	}

	raw, err := readArtifact(ctx, path)
	if err != nil {
		return nil
	}

	var m weightModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return &m
}

func readArtifact(ctx context.Context, path string) ([]byte, error) {
	if strings.HasPrefix(path, "gs://") {
		return readGCSArtifact(ctx, path)
	}
	return os.ReadFile(path)
}

// readGCSArtifact fetches a model artifact from Cloud Storage once at
// startup. Objects are expected small (a weight vector), so the
// whole body is buffered.
func readGCSArtifact(ctx context.Context, path string) ([]byte, error) {
	trimmed := strings.TrimPrefix(path, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("behaviour: malformed gs:// path %q", path)
	}
	bucket, object := parts[0], parts[1]

	svc, err := gcs.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("behaviour: gcs client: %w", err)
	}

	resp, err := svc.Objects.Get(bucket, object).Download()
	if err != nil {
		return nil, fmt.Errorf("behaviour: gcs download: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
