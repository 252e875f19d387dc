package models

import (
	"time"

	"github.com/google/uuid"
)

// Media is a listing image queued for mirroring to object storage.
type Media struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ListingID   string    `json:"listing_id" db:"listing_id"`
	Position    int       `json:"position" db:"position"`
	OriginalURL string    `json:"original_url" db:"original_url"`
	S3Key       *string   `json:"s3_key" db:"s3_key"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Status      string    `json:"status" db:"status"` // pending, uploaded, failed
	Attempts    int       `json:"attempts" db:"attempts"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const (
	MediaStatusPending  = "pending"
	MediaStatusUploaded = "uploaded"
	MediaStatusFailed   = "failed"
)
