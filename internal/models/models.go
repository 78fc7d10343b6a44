package models

import "time"

// User represents an account holding a credit balance for generations.
type User struct {
	ID        string
	Email     string
	Password  string
	Credits   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditsExhausted is the sentinel remaining-credit value reported by the
// ledger when a debit was refused because the balance reached zero.
const CreditsExhausted = -1

// TryOn records one billed generation attempt and its outcome.
type TryOn struct {
	ID          string
	UserID      string
	WithVideo   bool
	Status      string
	ImageURL    string
	VideoURL    string
	ElapsedMs   int64
	CreatedAt   time.Time
	CompletedAt *time.Time

	// Archived copies of the backend-hosted results, populated by the
	// background archiver once the originals have been re-homed.
	ArchiveStatus   string
	ArchiveImageURL string
	ArchiveVideoURL string
}

const (
	TryOnStatusPending   = "pending"
	TryOnStatusCompleted = "completed"
	TryOnStatusFailed    = "failed"
)

const (
	ArchiveStatusPending = "pending"
	ArchiveStatusReady   = "ready"
	ArchiveStatusFailed  = "failed"
)

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
