package tryon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFalClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Key secret" {
			t.Fatalf("unexpected authorization header %q", got)
		}

		var req falRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ModelImage != "model-payload" || req.GarmentImage != "garment-payload" || !req.GenerateVideo {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"imageUrl":"https://cdn.example.com/out.jpg","videoUrl":"https://cdn.example.com/out.mp4"}`)
	}))
	defer server.Close()

	client := NewFalClient(server.URL, "secret", time.Second)

	result, err := client.Generate(context.Background(), Request{
		ModelImage:   "model-payload",
		GarmentImage: "garment-payload",
		WithVideo:    true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.ImageURL != "https://cdn.example.com/out.jpg" || result.VideoURL != "https://cdn.example.com/out.mp4" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFalClientSnakeCaseResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"image_url":"https://cdn.example.com/snake.jpg"}`)
	}))
	defer server.Close()

	client := NewFalClient(server.URL, "", time.Second)

	result, err := client.Generate(context.Background(), Request{ModelImage: "m", GarmentImage: "g"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.ImageURL != "https://cdn.example.com/snake.jpg" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFalClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewFalClient(server.URL, "", time.Second)

	if _, err := client.Generate(context.Background(), Request{ModelImage: "m", GarmentImage: "g"}); err == nil {
		t.Fatal("expected error for non-2xx status")
	} else if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestFalClientBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"error":"faces not detected"}`)
	}))
	defer server.Close()

	client := NewFalClient(server.URL, "", time.Second)

	if _, err := client.Generate(context.Background(), Request{ModelImage: "m", GarmentImage: "g"}); err == nil {
		t.Fatal("expected error for backend-reported failure")
	}
}

func TestFalClientNoImageURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"videoUrl":"https://cdn.example.com/out.mp4"}`)
	}))
	defer server.Close()

	client := NewFalClient(server.URL, "", time.Second)

	if _, err := client.Generate(context.Background(), Request{ModelImage: "m", GarmentImage: "g"}); err == nil {
		t.Fatal("expected error when backend returns no image url")
	}
}

func TestFalClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewFalClient(server.URL, "", 50*time.Millisecond)

	_, err := client.Generate(context.Background(), Request{ModelImage: "m", GarmentImage: "g"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		// The http client wraps the deadline; the message must still surface it.
		if !strings.Contains(err.Error(), "deadline") && !strings.Contains(err.Error(), "Timeout") {
			t.Fatalf("expected deadline error, got %v", err)
		}
	}
}

func TestFalClientUnconfigured(t *testing.T) {
	client := &FalClient{}
	if _, err := client.Generate(context.Background(), Request{ModelImage: "m", GarmentImage: "g"}); !errors.Is(err, ErrGeneratorUnavailable) {
		t.Fatalf("expected generator unavailable, got %v", err)
	}
}
