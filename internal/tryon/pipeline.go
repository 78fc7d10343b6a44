package tryon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/imaging"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/logging"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
)

// Verifier maps an opaque bearer token to a stable user identity.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (string, error)
}

// Ledger is the atomic credit-consumption contract the pipeline depends on.
// See repositories.CreditLedger for the full semantics.
type Ledger interface {
	ConsumeOne(ctx context.Context, userID string) (int, error)
}

// Recorder persists the audit trail of billed attempts. Record writes are
// best-effort: they never change the pipeline outcome.
type Recorder interface {
	Create(ctx context.Context, record models.TryOn) error
	Complete(ctx context.Context, id, imageURL, videoURL string, elapsedMs int64) error
	MarkFailed(ctx context.Context, id string) error
}

// ResultSink receives completed generations for background processing.
type ResultSink interface {
	Enqueue(ctx context.Context, record models.TryOn) error
}

// Outcome pairs the normalized result with the post-debit balance so the
// client can update its display without a second round trip.
type Outcome struct {
	Result           Result
	RemainingCredits int
}

// Pipeline is the credit-gated generation orchestrator. It holds no mutable
// state between invocations; the only cross-request ordering guarantee is
// the ledger's atomic debit.
type Pipeline struct {
	Verifier  Verifier
	Ledger    Ledger
	Generator Generator

	// Optional collaborators.
	Records Recorder
	Archive ResultSink

	// MaxImageBytes bounds each decoded payload. Zero means no cap.
	MaxImageBytes int

	NowFunc func() time.Time
}

// Generate runs one request through the pipeline in strict order: structural
// validation, authentication, credit consumption, the external generation
// call, response normalization. The debit is the point of no return: every
// failure past it leaves the credit spent (bill-on-attempt, no refund).
func (p *Pipeline) Generate(ctx context.Context, bearerToken string, req Request) (Outcome, error) {
	if p.Verifier == nil || p.Ledger == nil || p.Generator == nil {
		return Outcome{}, fmt.Errorf("pipeline missing dependencies")
	}

	// 1. Structural validation, before any side effect.
	if err := p.validate(req); err != nil {
		return Outcome{}, err
	}

	// 2. Authentication. No ledger call happens on failure.
	stepCtx, step := logging.StartStep(ctx, "verify_token")
	userID, err := p.Verifier.Verify(stepCtx, strings.TrimSpace(bearerToken))
	if err != nil {
		step.Fail(err)
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	step.End()

	// 3. Credit consumption: the billing point of no return.
	stepCtx, step = logging.StartStep(ctx, "consume_credit")
	remaining, err := p.Ledger.ConsumeOne(stepCtx, userID)
	if err != nil {
		step.Fail(err)
		return Outcome{}, fmt.Errorf("%w: %v", ErrCreditCheckFailed, err)
	}
	if remaining == models.CreditsExhausted {
		step.End()
		return Outcome{}, ErrNoCredits
	}
	step.End()

	record := models.TryOn{
		ID:        uuid.NewString(),
		UserID:    userID,
		WithVideo: req.WithVideo,
		Status:    models.TryOnStatusPending,
		CreatedAt: p.now(),
	}
	p.createRecord(ctx, record)

	// 4. External generation call. Long-running; bounded by the generator's
	// own timeout. The credit is already committed.
	stepCtx, step = logging.StartStep(ctx, "generate")
	started := time.Now()
	result, err := p.Generator.Generate(stepCtx, req)
	if err != nil {
		step.Fail(err)
		p.failRecord(ctx, record.ID)
		return Outcome{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	step.End()

	// 5. Response normalization.
	if result.ImageURL == "" {
		p.failRecord(ctx, record.ID)
		return Outcome{}, fmt.Errorf("%w: backend returned no image url", ErrGenerationFailed)
	}
	if result.ElapsedMs == 0 {
		result.ElapsedMs = time.Since(started).Milliseconds()
	}

	p.completeRecord(ctx, record.ID, result)

	if p.Archive != nil {
		record.Status = models.TryOnStatusCompleted
		record.ImageURL = result.ImageURL
		record.VideoURL = result.VideoURL
		record.ElapsedMs = result.ElapsedMs
		if err := p.Archive.Enqueue(ctx, record); err != nil {
			logging.FromContext(ctx).Warn("enqueue result archive", "tryonId", record.ID, "error", err)
		}
	}

	return Outcome{Result: result, RemainingCredits: remaining}, nil
}

func (p *Pipeline) validate(req Request) error {
	if strings.TrimSpace(req.ModelImage) == "" {
		return fmt.Errorf("%w: model image is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.GarmentImage) == "" {
		return fmt.Errorf("%w: garment image is required", ErrInvalidRequest)
	}
	if err := imaging.ValidatePayload(req.ModelImage, p.MaxImageBytes); err != nil {
		return fmt.Errorf("%w: model image: %v", ErrInvalidRequest, err)
	}
	if err := imaging.ValidatePayload(req.GarmentImage, p.MaxImageBytes); err != nil {
		return fmt.Errorf("%w: garment image: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (p *Pipeline) createRecord(ctx context.Context, record models.TryOn) {
	if p.Records == nil {
		return
	}
	if err := p.Records.Create(ctx, record); err != nil {
		logging.FromContext(ctx).Warn("create tryon record", "tryonId", record.ID, "error", err)
	}
}

func (p *Pipeline) completeRecord(ctx context.Context, id string, result Result) {
	if p.Records == nil {
		return
	}
	if err := p.Records.Complete(ctx, id, result.ImageURL, result.VideoURL, result.ElapsedMs); err != nil {
		logging.FromContext(ctx).Warn("complete tryon record", "tryonId", id, "error", err)
	}
}

func (p *Pipeline) failRecord(ctx context.Context, id string) {
	if p.Records == nil {
		return
	}
	if err := p.Records.MarkFailed(ctx, id); err != nil {
		logging.FromContext(ctx).Warn("mark tryon record failed", "tryonId", id, "error", err)
	}
}

func (p *Pipeline) now() time.Time {
	if p.NowFunc != nil {
		return p.NowFunc()
	}
	return time.Now().UTC()
}
