// Package client is a Go consumer of the try-on backend API. It plays the
// role the mobile app plays in production: preprocess locally selected
// photos, call the generation endpoint, and download the resulting assets.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/imaging"
)

// Session holds the bearer credentials returned by the auth endpoints.
type Session struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Result is a successful generation outcome.
type Result struct {
	ImageURL         string `json:"imageUrl"`
	VideoURL         string `json:"videoUrl"`
	ElapsedMs        int64  `json:"elapsedMs"`
	RemainingCredits int    `json:"remainingCredits"`
}

// APIError is a classified failure response from the backend.
type APIError struct {
	StatusCode int
	Tag        string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Tag, e.Message)
}

// Client talks to one try-on backend instance. It keeps the current session
// internally; all methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	preprocess imaging.Options

	mu      sync.Mutex
	session Session
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport. Useful for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New constructs a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		preprocess: imaging.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Tokens  Session `json:"tokens"`
	Credits int     `json:"credits"`
}

// SignUp registers a new account and signs in as it.
func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	return c.authenticate(ctx, "/api/v1/auth/signup", email, password)
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	return c.authenticate(ctx, "/api/v1/auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (Session, error) {
	var resp authResponse
	if err := c.post(ctx, path, credentialsRequest{Email: email, Password: password}, &resp, ""); err != nil {
		return Session{}, err
	}

	c.mu.Lock()
	c.session = resp.Tokens
	c.mu.Unlock()

	return resp.Tokens, nil
}

// Refresh rotates the current session using its refresh token.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	refreshToken := c.Session().RefreshToken
	if refreshToken == "" {
		return Session{}, fmt.Errorf("refresh: not signed in")
	}

	var resp authResponse
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.post(ctx, "/api/v1/auth/refresh", body, &resp, ""); err != nil {
		return Session{}, err
	}

	c.mu.Lock()
	c.session = resp.Tokens
	c.mu.Unlock()

	return resp.Tokens, nil
}

// SignOut revokes the current session server-side and forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	session := c.Session()
	if session.RefreshToken == "" {
		return nil
	}

	body := map[string]string{"refreshToken": session.RefreshToken}
	err := c.post(ctx, "/api/v1/auth/logout", body, nil, "")

	// Local state is cleared even if the server call failed; the session is
	// unusable from the caller's point of view either way.
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()

	return err
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

type tryOnRequest struct {
	ModelImage    string `json:"modelImage"`
	TshirtImage   string `json:"tshirtImage"`
	GenerateVideo bool   `json:"generateVideo"`
}

type tryOnResponse struct {
	OK               bool   `json:"ok"`
	ImageURL         string `json:"imageUrl"`
	VideoURL         string `json:"videoUrl"`
	ElapsedMs        int64  `json:"elapsedMs"`
	RemainingCredits int    `json:"remainingCredits"`
}

// TryOn preprocesses both photos, submits the generation request and returns
// the normalized result. Requires a session.
func (c *Client) TryOn(ctx context.Context, modelImage, garmentImage []byte, withVideo bool) (Result, error) {
	modelPayload, err := imaging.Preprocess(modelImage, c.preprocess)
	if err != nil {
		return Result{}, fmt.Errorf("preprocess model image: %w", err)
	}
	garmentPayload, err := imaging.Preprocess(garmentImage, c.preprocess)
	if err != nil {
		return Result{}, fmt.Errorf("preprocess garment image: %w", err)
	}

	token := c.Session().AccessToken
	if token == "" {
		return Result{}, fmt.Errorf("tryon: not signed in")
	}

	var resp tryOnResponse
	req := tryOnRequest{ModelImage: modelPayload, TshirtImage: garmentPayload, GenerateVideo: withVideo}
	if err := c.post(ctx, "/tryon", req, &resp, token); err != nil {
		return Result{}, err
	}

	return Result{
		ImageURL:         resp.ImageURL,
		VideoURL:         resp.VideoURL,
		ElapsedMs:        resp.ElapsedMs,
		RemainingCredits: resp.RemainingCredits,
	}, nil
}

// Credits returns the current credit balance. Requires a session.
func (c *Client) Credits(ctx context.Context) (int, error) {
	token := c.Session().AccessToken
	if token == "" {
		return 0, fmt.Errorf("credits: not signed in")
	}

	var resp struct {
		Credits int `json:"credits"`
	}
	if err := c.get(ctx, "/api/v1/credits", &resp, token); err != nil {
		return 0, err
	}
	return resp.Credits, nil
}

// DownloadImage fetches a generated image URL into a local file. Download
// failures are independent of the generation that produced the URL.
func (c *Client) DownloadImage(ctx context.Context, url, path string) error {
	return c.download(ctx, url, path)
}

// DownloadVideo fetches a generated video URL into a local file.
func (c *Client) DownloadVideo(ctx context.Context, url, path string) error {
	return c.download(ctx, url, path)
}

func (c *Client) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}

	return out.Close()
}

func (c *Client) post(ctx context.Context, path string, body, out any, token string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out, token)
}

func (c *Client) get(ctx context.Context, path string, out any, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	return c.do(req, out, token)
}

func (c *Client) do(req *http.Request, out any, token string) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Tag = body.Error
		apiErr.Message = body.Message
	}

	return apiErr
}
