package tryon

import "context"

// Request carries the two bounded image payloads and the video flag for one
// generation attempt. It has no identity and lives only for the invocation.
type Request struct {
	ModelImage   string
	GarmentImage string
	WithVideo    bool
}

// Result is the normalized output of a successful generation.
type Result struct {
	ImageURL  string
	VideoURL  string
	ElapsedMs int64
}

// Generator composites the model and garment images via the external
// generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (Result, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
