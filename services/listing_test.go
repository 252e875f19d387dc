package services

import (
	"path/filepath"
	"testing"

	"landscout/models"
	"landscout/storage"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProcessListingStoresAndQueues(t *testing.T) {
	store := newStore(t)
	svc := NewListingService(store, NewMediaService(store))

	l := &models.Listing{ID: "2400001", BuildingName: "래미안", Area: "84", TradeCode: "A1"}
	images := models.ImageURLSet{"https://landthumb-phinf.pstatic.net/a.jpg", "https://landthumb-phinf.pstatic.net/b.jpg"}

	res, err := svc.ProcessListing("1168000000", l, images)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.IsNewListing || res.ImagesStored != 2 || res.MediaQueued != 2 || res.Fingerprint == "" {
		t.Fatalf("result = %+v", res)
	}

	stored, _ := store.GetListingImages("2400001")
	if len(stored) != 2 || stored[0] != images[0] {
		t.Fatalf("stored images = %v", stored)
	}

	res, err = svc.ProcessListing("1168000000", l, images)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if res.IsNewListing || res.MediaQueued != 0 {
		t.Fatalf("reprocessing should not duplicate: %+v", res)
	}
}

func TestProcessListingKeepsImagesWhenNoneResolved(t *testing.T) {
	store := newStore(t)
	svc := NewListingService(store, nil)
	l := &models.Listing{ID: "1"}

	svc.ProcessListing("r", l, models.ImageURLSet{"https://x/1.jpg"})
	res, err := svc.ProcessListing("r", l, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ImagesStored != 0 {
		t.Fatalf("images stored = %d", res.ImagesStored)
	}
	stored, _ := store.GetListingImages("1")
	if len(stored) != 1 {
		t.Fatalf("previous images dropped: %v", stored)
	}
}

func TestProcessListingCountsDuplicates(t *testing.T) {
	store := newStore(t)
	svc := NewListingService(store, nil)

	a := &models.Listing{ID: "a", BuildingName: "래미안", Unit: "101동", Area: "84.9", TradeCode: "A1", Broker: "가"}
	b := &models.Listing{ID: "b", BuildingName: "래미안", Unit: "101", Area: "84.9", TradeCode: "A1", Broker: "나"}

	svc.ProcessListing("r", a, nil)
	res, err := svc.ProcessListing("r", b, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", res.Duplicates)
	}

	var stats ProcessStats
	stats.Aggregate(res)
	if stats.ListingsProcessed != 1 || stats.Duplicates != 1 || stats.ListingsNew != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestProcessListingRequiresID(t *testing.T) {
	svc := NewListingService(newStore(t), nil)
	if _, err := svc.ProcessListing("r", &models.Listing{}, nil); err == nil {
		t.Fatalf("expected error for listing without id")
	}
}

func TestMarkFailedGivesUp(t *testing.T) {
	store := newStore(t)
	media := NewMediaService(store)
	media.Enqueue("a", 0, "https://x/1.jpg")

	for i := 0; i < MaxMediaAttempts; i++ {
		pending, err := media.GetPending(10)
		if err != nil {
			t.Fatalf("pending: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("attempt %d: pending = %d", i, len(pending))
		}
		if err := media.MarkFailed(&pending[0]); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	pending, _ := media.GetPending(10)
	if len(pending) != 0 {
		t.Fatalf("media should be abandoned after %d attempts", MaxMediaAttempts)
	}
	depth, _ := media.GetQueueDepth()
	if depth[models.MediaStatusFailed] != 1 {
		t.Fatalf("depth = %v", depth)
	}
}
