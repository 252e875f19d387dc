package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"landscout/identity"
	"landscout/models"
)

// ListingStore is the part of the working store listing processing writes to.
type ListingStore interface {
	UpsertListing(regionID, fingerprint string, l *models.Listing, seenAt time.Time) (bool, error)
	ReplaceListingImages(listingID string, urls models.ImageURLSet) error
	ListingIDsByFingerprint(fingerprint string) ([]string, error)
}

// ListingService fans one acquired listing out to the listing, image and media tables
type ListingService struct {
	store ListingStore
	media *MediaService
	now   func() time.Time
}

// NewListingService creates a ListingService. media may be nil to skip mirroring.
func NewListingService(store ListingStore, media *MediaService) *ListingService {
	return &ListingService{
		store: store,
		media: media,
		now:   time.Now,
	}
}

// ProcessResult contains the outcome of processing a listing
type ProcessResult struct {
	Fingerprint  string
	IsNewListing bool
	Duplicates   int // other listings advertising the same unit
	ImagesStored int
	MediaQueued  int
}

// ProcessListing stores a listing and its images and queues the images for mirroring.
// Safe to call repeatedly for the same listing.
func (s *ListingService) ProcessListing(regionID string, l *models.Listing, images models.ImageURLSet) (*ProcessResult, error) {
	if l.ID == "" {
		return nil, fmt.Errorf("listing without id")
	}
	result := &ProcessResult{Fingerprint: identity.Fingerprint(l)}

	isNew, err := s.store.UpsertListing(regionID, result.Fingerprint, l, s.now())
	if err != nil {
		return nil, fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	result.IsNewListing = isNew

	ids, err := s.store.ListingIDsByFingerprint(result.Fingerprint)
	if err != nil {
		log.Printf("Warning: duplicate lookup for %s: %v", l.ID, err)
	} else if len(ids) > 1 {
		result.Duplicates = len(ids) - 1
	}

	// Without resolved images, keep whatever a previous run stored.
	if len(images) == 0 {
		return result, nil
	}
	if err := s.store.ReplaceListingImages(l.ID, images); err != nil {
		return nil, fmt.Errorf("images for %s: %w", l.ID, err)
	}
	result.ImagesStored = len(images)

	if s.media != nil {
		for i, u := range images {
			queued, err := s.media.Enqueue(l.ID, i, u)
			if err != nil {
				log.Printf("Warning: failed to queue media %s: %v", u, err)
				continue
			}
			if queued {
				result.MediaQueued++
			}
		}
	}

	return result, nil
}

// ProcessStats tracks aggregate statistics for an acquisition run
type ProcessStats struct {
	ListingsProcessed int
	ListingsNew       int
	Duplicates        int
	ImagesStored      int
	MediaQueued       int
	Errors            int
}

// Aggregate adds a ProcessResult to the stats
func (s *ProcessStats) Aggregate(r *ProcessResult) {
	s.ListingsProcessed++
	if r.IsNewListing {
		s.ListingsNew++
	}
	if r.Duplicates > 0 {
		s.Duplicates++
	}
	s.ImagesStored += r.ImagesStored
	s.MediaQueued += r.MediaQueued
}

// ToJSON returns JSON-serializable metadata
func (s *ProcessStats) ToJSON() json.RawMessage {
	data, _ := json.Marshal(map[string]int{
		"listings_processed": s.ListingsProcessed,
		"listings_new":       s.ListingsNew,
		"duplicates":         s.Duplicates,
		"images_stored":      s.ImagesStored,
		"media_queued":       s.MediaQueued,
		"errors":             s.Errors,
	})
	return data
}
