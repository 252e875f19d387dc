package services

import (
	"github.com/google/uuid"
	"landscout/models"
)

// MaxMediaAttempts is how many downloads a media item gets before it is marked failed.
const MaxMediaAttempts = 3

// MediaQueue is the storage behind the media mirroring queue.
type MediaQueue interface {
	EnqueueMedia(m *models.Media) (bool, error)
	GetPendingMedia(limit, maxAttempts int) ([]models.Media, error)
	UpdateMediaStatus(id uuid.UUID, status string, s3Key *string, contentHash string, attempts int) error
	MediaQueueDepth() (map[string]int, error)
}

// MediaService handles media queueing and retrieval
type MediaService struct {
	store MediaQueue
}

func NewMediaService(store MediaQueue) *MediaService {
	return &MediaService{store: store}
}

// Enqueue adds a pending media row for the image URL. It reports false when the URL
// was already queued.
func (s *MediaService) Enqueue(listingID string, position int, originalURL string) (bool, error) {
	return s.store.EnqueueMedia(&models.Media{
		ID:          uuid.New(),
		ListingID:   listingID,
		Position:    position,
		OriginalURL: originalURL,
		Status:      models.MediaStatusPending,
	})
}

// GetPending returns pending media items for the worker to process
func (s *MediaService) GetPending(limit int) ([]models.Media, error) {
	return s.store.GetPendingMedia(limit, MaxMediaAttempts)
}

// MarkUploaded marks a media item as successfully uploaded
func (s *MediaService) MarkUploaded(m *models.Media, s3Key string, contentHash string) error {
	return s.store.UpdateMediaStatus(m.ID, models.MediaStatusUploaded, &s3Key, contentHash, m.Attempts)
}

// MarkFailed records a failed attempt and gives up after MaxMediaAttempts.
func (s *MediaService) MarkFailed(m *models.Media) error {
	attempts := m.Attempts + 1
	status := models.MediaStatusPending
	if attempts >= MaxMediaAttempts {
		status = models.MediaStatusFailed
	}
	return s.store.UpdateMediaStatus(m.ID, status, nil, "", attempts)
}

// GetQueueDepth returns media counts by status
func (s *MediaService) GetQueueDepth() (map[string]int, error) {
	return s.store.MediaQueueDepth()
}
