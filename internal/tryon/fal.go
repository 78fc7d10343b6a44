package tryon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrGeneratorUnavailable indicates the backend client is not configured.
var ErrGeneratorUnavailable = errors.New("generation backend unavailable")

// HTTPDoer executes HTTP requests. Satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FalClient calls a fal.ai-style try-on endpoint over HTTP.
type FalClient struct {
	Endpoint string
	APIKey   string
	Client   HTTPDoer
	Timeout  time.Duration
}

// NewFalClient constructs a Generator posting to the provided endpoint.
func NewFalClient(endpoint, apiKey string, timeout time.Duration) *FalClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FalClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{},
		Timeout:  timeout,
	}
}

type falRequest struct {
	ModelImage    string `json:"model_image"`
	GarmentImage  string `json:"garment_image"`
	GenerateVideo bool   `json:"generate_video"`
}

type falResponse struct {
	ImageURL      string `json:"imageUrl"`
	ImageURLSnake string `json:"image_url"`
	VideoURL      string `json:"videoUrl"`
	VideoURLSnake string `json:"video_url"`
	Error         string `json:"error"`
}

// Generate submits the two payloads and waits for the composited result. The
// call is bounded by the client timeout; the deadline error surfaces to the
// caller for classification.
func (c *FalClient) Generate(ctx context.Context, req Request) (Result, error) {
	if c == nil || strings.TrimSpace(c.Endpoint) == "" {
		return Result{}, ErrGeneratorUnavailable
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	body, err := json.Marshal(falRequest{
		ModelImage:    req.ModelImage,
		GarmentImage:  req.GarmentImage,
		GenerateVideo: req.WithVideo,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Key "+c.APIKey)
	}

	started := time.Now()
	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("generation backend call: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read generation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("generation backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed falResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Result{}, fmt.Errorf("parse generation response: %w", err)
	}
	if parsed.Error != "" {
		return Result{}, fmt.Errorf("generation backend error: %s", parsed.Error)
	}

	imageURL := parsed.ImageURL
	if imageURL == "" {
		imageURL = parsed.ImageURLSnake
	}
	videoURL := parsed.VideoURL
	if videoURL == "" {
		videoURL = parsed.VideoURLSnake
	}

	if imageURL == "" {
		return Result{}, errors.New("generation backend returned no image url")
	}

	return Result{
		ImageURL:  imageURL,
		VideoURL:  videoURL,
		ElapsedMs: time.Since(started).Milliseconds(),
	}, nil
}

var _ Generator = (*FalClient)(nil)
