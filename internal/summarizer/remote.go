package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/circuitbreaker"
)

// RemoteSummarizer posts the prompt to a configured HTTP endpoint
// (SUMMARIZER_REMOTE_URL) — a stand-in for a hosted LLM explanation
// service. Calls are wrapped in a circuit breaker; on any failure
// (including an open breaker) the caller is expected to fall back to
// TemplateSummarizer — see FallbackSummarizer.
type RemoteSummarizer struct {
	endpoint string
	modelID  string
	client   *http.Client
	breaker  *circuitbreaker.CircuitBreaker
}

// NewRemoteSummarizer builds a client against endpoint. Remote calls get
// a 15s deadline.
func NewRemoteSummarizer(endpoint, modelID string) *RemoteSummarizer {
	return &RemoteSummarizer{
		endpoint: endpoint,
		modelID:  modelID,
		client:   &http.Client{Timeout: 15 * time.Second},
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig("summarizer-remote")),
	}
}

type remoteRequest struct {
	Prompt Prompt `json:"prompt"`
}

type remoteResponse struct {
	Text string `json:"text"`
}

func (s *RemoteSummarizer) Summarize(ctx context.Context, p Prompt) (string, string, error) {
	result, err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return s.call(ctx, p)
	})
	if err != nil {
		return "", "", fmt.Errorf("summarizer: remote call: %w", err)
	}
	return result.(string), s.modelID, nil
}

func (s *RemoteSummarizer) call(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(remoteRequest{Prompt: p})
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("remote summarizer returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Text, nil
}

// FallbackSummarizer tries primary first and falls back to secondary on
// any error — how the remote and local variants degrade to the template.
type FallbackSummarizer struct {
	primary   Summarizer
	secondary Summarizer
}

// NewFallbackSummarizer wires primary with a fallback to secondary.
func NewFallbackSummarizer(primary, secondary Summarizer) *FallbackSummarizer {
	return &FallbackSummarizer{primary: primary, secondary: secondary}
}

func (s *FallbackSummarizer) Summarize(ctx context.Context, p Prompt) (string, string, error) {
	text, modelID, err := s.primary.Summarize(ctx, p)
	if err == nil {
		return text, modelID, nil
	}
	return s.secondary.Summarize(ctx, p)
}

var (
	_ Summarizer = (*RemoteSummarizer)(nil)
	_ Summarizer = (*FallbackSummarizer)(nil)
)
