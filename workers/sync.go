package workers

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"landscout/models"
	"landscout/storage"
)

// SyncSource is the working store listings are copied from.
type SyncSource interface {
	GetUnsyncedListings(limit int) ([]storage.UnsyncedListing, error)
	GetListingImages(listingID string) (models.ImageURLSet, error)
	MarkListingSynced(id string) error
}

// ListingMirror is the shared store listings are copied to.
type ListingMirror interface {
	UpsertUnit(ctx context.Context, fingerprint string, l *models.Listing) (uuid.UUID, error)
	UpsertListing(ctx context.Context, unitID uuid.UUID, regionID string, l *models.Listing, seenAt time.Time) error
	ReplaceListingImages(ctx context.Context, listingID string, urls models.ImageURLSet) error
}

// SyncWorker copies new and changed listings from SQLite to Postgres
type SyncWorker struct {
	source    SyncSource
	mirror    ListingMirror
	triggerCh chan struct{}
}

func NewSyncWorker(source SyncSource, mirror ListingMirror) *SyncWorker {
	return &SyncWorker{
		source:    source,
		mirror:    mirror,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *SyncWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the sync worker loop
func (w *SyncWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx, batchSize)
		case <-w.triggerCh:
			w.ProcessBatch(ctx, batchSize)
		}
	}
}

// ProcessBatch copies up to batchSize unsynced listings. A listing that fails stays
// unsynced and is retried on the next batch.
func (w *SyncWorker) ProcessBatch(ctx context.Context, batchSize int) (synced, failed int) {
	pending, err := w.source.GetUnsyncedListings(batchSize)
	if err != nil {
		log.Printf("Sync worker: query error: %v", err)
		return 0, 0
	}

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := w.syncOne(ctx, &pending[i]); err != nil {
			log.Printf("Sync worker: %s: %v", pending[i].Listing.ID, err)
			failed++
			continue
		}
		synced++
	}

	if synced > 0 || failed > 0 {
		log.Printf("Sync worker: synced %d, failed %d", synced, failed)
	}
	return synced, failed
}

func (w *SyncWorker) syncOne(ctx context.Context, u *storage.UnsyncedListing) error {
	unitID, err := w.mirror.UpsertUnit(ctx, u.Fingerprint, &u.Listing)
	if err != nil {
		return err
	}
	if err := w.mirror.UpsertListing(ctx, unitID, u.RegionID, &u.Listing, u.SeenAt); err != nil {
		return err
	}

	images, err := w.source.GetListingImages(u.Listing.ID)
	if err != nil {
		return err
	}
	if len(images) > 0 {
		if err := w.mirror.ReplaceListingImages(ctx, u.Listing.ID, images); err != nil {
			return err
		}
	}

	return w.source.MarkListingSynced(u.Listing.ID)
}
