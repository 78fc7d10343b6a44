package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	_ "image/gif"
	_ "image/png"
)

// PayloadPrefix is the data-URI prefix every wire payload must carry.
const PayloadPrefix = "data:image/jpeg;base64,"

var (
	// ErrPreprocessingFailed indicates the source image could not be decoded
	// or re-encoded into the bounded wire payload.
	ErrPreprocessingFailed = errors.New("image preprocessing failed")
	// ErrPayloadMalformed indicates a wire payload missing the data-URI
	// prefix or carrying undecodable base64 content.
	ErrPayloadMalformed = errors.New("image payload malformed")
	// ErrPayloadTooLarge indicates a wire payload above the configured bound.
	ErrPayloadTooLarge = errors.New("image payload too large")
)

// Options bound the encoded payload. The defaults match what the mobile
// client produces: width capped at 640px, JPEG quality 25.
type Options struct {
	MaxWidth int
	Quality  int
}

// DefaultOptions returns the standard client-side preprocessing constraints.
func DefaultOptions() Options {
	return Options{MaxWidth: 640, Quality: 25}
}

// Preprocess normalizes a locally selected photo into a bounded,
// transport-safe payload: decode, scale down to MaxWidth preserving aspect
// ratio, re-encode as JPEG, and wrap in a base64 data URI. The output is
// deterministic for identical input and options. Failure at any stage is a
// hard error; the payload is never silently truncated.
func Preprocess(raw []byte, opts Options) (string, error) {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 640
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 25
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: decode source: %v", ErrPreprocessingFailed, err)
	}

	scaled := scaleToWidth(src, opts.MaxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return "", fmt.Errorf("%w: encode jpeg: %v", ErrPreprocessingFailed, err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	if encoded == "" {
		return "", fmt.Errorf("%w: empty base64 output", ErrPreprocessingFailed)
	}

	return PayloadPrefix + encoded, nil
}

// ValidatePayload bound-checks a wire payload the server did not produce
// itself: prefix, size cap, and decodable base64 content.
func ValidatePayload(payload string, maxBytes int) error {
	if !strings.HasPrefix(payload, PayloadPrefix) {
		return ErrPayloadMalformed
	}

	encoded := payload[len(PayloadPrefix):]
	if encoded == "" {
		return ErrPayloadMalformed
	}

	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(encoded)) > maxBytes {
		return ErrPayloadTooLarge
	}

	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		return ErrPayloadMalformed
	}

	return nil
}

// scaleToWidth downsamples the image to at most maxWidth columns using
// nearest-neighbour sampling. Images already within the bound are returned
// as-is. The payload is re-compressed at quality 25 afterwards, so sampling
// fidelity is irrelevant here.
func scaleToWidth(src image.Image, maxWidth int) image.Image {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxWidth || width == 0 || height == 0 {
		return src
	}

	scaledHeight := height * maxWidth / width
	if scaledHeight < 1 {
		scaledHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, scaledHeight))
	for y := 0; y < scaledHeight; y++ {
		srcY := bounds.Min.Y + y*height/scaledHeight
		for x := 0; x < maxWidth; x++ {
			srcX := bounds.Min.X + x*width/maxWidth
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	return dst
}
