package scraper

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"landscout/config"
	"landscout/images"
	"landscout/land"
	"landscout/models"
	"landscout/services"
	"landscout/storage"
)

type fakeResolver struct {
	err      error
	keywords []string
}

func (r *fakeResolver) Resolve(_ context.Context, keyword string) (models.RegionQuery, error) {
	r.keywords = append(r.keywords, keyword)
	if r.err != nil {
		return models.RegionQuery{}, r.err
	}
	return models.RegionQuery{RegionID: "1171010700", Lat: 37.508, Lon: 127.082, DisplayName: keyword}, nil
}

type fakeSource struct {
	listings []models.Listing
	err      error
	limits   []int
	onPage   func(opts land.PaginateOptions) // runs before listings are returned
}

func (s *fakeSource) Paginate(_ context.Context, _ string, _, _ float64, limit int, opts land.PaginateOptions) ([]models.Listing, error) {
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return nil, s.err
	}
	if opts.OnCluster != nil {
		opts.OnCluster(models.ClusterSummary{TotalCount: len(s.listings)})
	}
	if s.onPage != nil {
		s.onPage(opts)
	}
	out := s.listings
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeImages struct{ calls int }

func (f *fakeImages) Resolve(_ context.Context, req images.Request) models.ImageURLSet {
	f.calls++
	set := models.ImageURLSet{}
	set.Add(req.Thumbnail)
	set.Add("https://landthumb-phinf.pstatic.net/" + req.ArticleNo + "/full.jpg")
	return set
}

func newTestOrchestrator(t *testing.T, resolver RegionResolver, source ListingSource) (*Orchestrator, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "orch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Scraper: config.ScraperConfig{Limit: 50},
		Site: &config.SiteConfig{Regions: map[string]config.Region{
			"1171010700": {Code: "1171010700", Label: "잠실동", Watch: true, Limit: 2},
			"1111000000": {Code: "1111000000", Label: "종로구"},
		}},
	}
	listings := services.NewListingService(store, services.NewMediaService(store))
	return NewOrchestrator(cfg, store, resolver, source, listings), store
}

func sampleListings() []models.Listing {
	return []models.Listing{
		{ID: "1", BuildingName: "엘스", ImageURL: "https://landthumb-phinf.pstatic.net/1/t.jpg"},
		{ID: "2", BuildingName: "리센츠"},
		{ID: "3", BuildingName: "트리지움"},
	}
}

func TestRunRegionStoresListings(t *testing.T) {
	source := &fakeSource{listings: sampleListings()}
	o, store := newTestOrchestrator(t, &fakeResolver{}, source)
	imgs := &fakeImages{}
	o.SetImageSource(imgs)

	run, err := o.RunRegion(context.Background(), "잠실동", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if source.limits[0] != 50 {
		t.Fatalf("default limit not applied: %v", source.limits)
	}
	if run.Status != models.RunStatusCompleted || run.ListingsFound != 3 || run.TotalEstimate != 3 {
		t.Fatalf("run = %+v", run)
	}
	if len(run.Listings) != 3 || run.Listings[0].ID != "1" || run.Listings[2].ID != "3" {
		t.Fatalf("run listings not in server order: %+v", run.Listings)
	}
	if imgs.calls != 3 || run.ImagesResolved != 3 {
		t.Fatalf("image calls=%d resolved=%d", imgs.calls, run.ImagesResolved)
	}

	photos, _ := store.GetListingImages("1")
	if len(photos) != 2 || photos[0] != "https://landthumb-phinf.pstatic.net/1/t.jpg" {
		t.Fatalf("photos = %v", photos)
	}
	if n, _ := store.GetListingCount("1171010700"); n != 3 {
		t.Fatalf("stored listings = %d", n)
	}

	stored, _ := store.GetRun(run.ID)
	if stored == nil || stored.Status != models.RunStatusCompleted || stored.RegionID != "1171010700" {
		t.Fatalf("stored run = %+v", stored)
	}
	logs, _ := store.GetRunLogs(run.ID)
	if len(logs) == 0 {
		t.Fatalf("expected run logs")
	}
}

func TestRunRegionWithoutImageSourceKeepsThumbnail(t *testing.T) {
	o, store := newTestOrchestrator(t, &fakeResolver{}, &fakeSource{listings: sampleListings()})

	run, err := o.RunRegion(context.Background(), "잠실동", 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.ImagesResolved != 0 {
		t.Fatalf("thumbnail alone should not count as resolved")
	}
	photos, _ := store.GetListingImages("1")
	if len(photos) != 1 {
		t.Fatalf("photos = %v", photos)
	}
	if photos, _ := store.GetListingImages("2"); len(photos) != 0 {
		t.Fatalf("listing without thumbnail got photos: %v", photos)
	}
}

func TestRunRegionResolveFailure(t *testing.T) {
	resolver := &fakeResolver{err: &land.ResolutionError{Keyword: "없는동"}}
	source := &fakeSource{}
	o, store := newTestOrchestrator(t, resolver, source)

	run, err := o.RunRegion(context.Background(), "없는동", 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	var rerr *land.ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("error type = %T", err)
	}
	if len(source.limits) != 0 {
		t.Fatalf("paginate should not run after a failed resolve")
	}
	stored, _ := store.GetRun(run.ID)
	if stored.Status != models.RunStatusFailed || !strings.Contains(stored.ErrorMessage, "구체적") {
		t.Fatalf("stored run = %+v", stored)
	}
}

func TestRunRegionPaginateFailure(t *testing.T) {
	source := &fakeSource{err: &land.NetworkError{Op: "articles", Err: errors.New("timeout")}}
	o, _ := newTestOrchestrator(t, &fakeResolver{}, source)

	run, err := o.RunRegion(context.Background(), "잠실동", 5)
	if err == nil || run.Status != models.RunStatusFailed {
		t.Fatalf("run=%+v err=%v", run, err)
	}
}

func TestCancelKeepsCollectedListings(t *testing.T) {
	var o *Orchestrator
	source := &fakeSource{listings: sampleListings(), onPage: func(opts land.PaginateOptions) {
		o.Cancel()
		if !opts.ShouldCancel() {
			panic("ShouldCancel not wired to Cancel")
		}
	}}
	o, store := newTestOrchestrator(t, &fakeResolver{}, source)
	imgs := &fakeImages{}
	o.SetImageSource(imgs)

	run, err := o.RunRegion(context.Background(), "잠실동", 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != models.RunStatusCancelled || run.ListingsFound != 3 {
		t.Fatalf("run = %+v", run)
	}
	if n, _ := store.GetListingCount("1171010700"); n != 3 {
		t.Fatalf("cancelled run stored %d listings, want 3", n)
	}
	if imgs.calls != 0 || run.ImagesResolved != 0 {
		t.Fatalf("photos resolved after cancel: calls=%d resolved=%d", imgs.calls, run.ImagesResolved)
	}
	if photos, _ := store.GetListingImages("1"); len(photos) != 1 {
		t.Fatalf("thumbnail should still be stored: %v", photos)
	}
	stored, _ := store.GetRun(run.ID)
	if stored.Status != models.RunStatusCancelled {
		t.Fatalf("stored status = %s", stored.Status)
	}

	// A cancel only applies to runs requested before it.
	source.onPage = nil
	run, _ = o.RunRegion(context.Background(), "잠실동", 10)
	if run.Status != models.RunStatusCompleted || imgs.calls != 3 {
		t.Fatalf("next run status = %s, image calls = %d", run.Status, imgs.calls)
	}
}

func TestCancelStopsRemainingRegions(t *testing.T) {
	var o *Orchestrator
	resolver := &fakeResolver{}
	source := &fakeSource{listings: sampleListings(), onPage: func(land.PaginateOptions) {
		o.Cancel()
	}}
	o, store := newTestOrchestrator(t, resolver, source)
	o.cfg.Site.Regions["1168010300"] = config.Region{Code: "1168010300", Label: "역삼동", Watch: true, Limit: 2}

	if err := o.RunAll(context.Background()); err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(resolver.keywords) != 1 || resolver.keywords[0] != "역삼동" {
		t.Fatalf("regions acquired after cancel: %v", resolver.keywords)
	}
	if n, _ := store.GetListingCount("1171010700"); n != 2 {
		t.Fatalf("first region listings = %d, want 2", n)
	}

	// A later batch is not affected by the earlier cancel.
	source.onPage = nil
	if err := o.RunAll(context.Background()); err != nil {
		t.Fatalf("second run all: %v", err)
	}
	if len(resolver.keywords) != 3 {
		t.Fatalf("second batch keywords = %v", resolver.keywords)
	}
}

func TestCancelAfterPrepareStopsQueuedCommand(t *testing.T) {
	resolver := &fakeResolver{}
	o, _ := newTestOrchestrator(t, resolver, &fakeSource{listings: sampleListings()})
	ctx := context.Background()

	run := o.PrepareCommand(&models.Command{Command: models.CmdScrapeNow})
	if err := o.HandleCommand(ctx, &models.Command{Command: models.CmdCancel}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(resolver.keywords) != 0 {
		t.Fatalf("cancelled batch still acquired %v", resolver.keywords)
	}

	// Prepared after the cancel, so it runs.
	if err := o.PrepareCommand(&models.Command{Command: models.CmdScrapeNow})(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(resolver.keywords) != 1 {
		t.Fatalf("keywords = %v", resolver.keywords)
	}
}

func TestRunAllUsesWatchedRegions(t *testing.T) {
	resolver := &fakeResolver{}
	source := &fakeSource{listings: sampleListings()}
	o, _ := newTestOrchestrator(t, resolver, source)

	if err := o.RunAll(context.Background()); err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(resolver.keywords) != 1 || resolver.keywords[0] != "잠실동" {
		t.Fatalf("keywords = %v", resolver.keywords)
	}
	if source.limits[0] != 2 {
		t.Fatalf("region limit not used: %v", source.limits)
	}
}

func TestHandleCommand(t *testing.T) {
	resolver := &fakeResolver{}
	o, store := newTestOrchestrator(t, resolver, &fakeSource{listings: sampleListings()})
	ctx := context.Background()

	o.HandleCommand(ctx, &models.Command{Command: models.CmdPause})
	if !o.IsPaused() {
		t.Fatalf("expected paused")
	}
	o.RunAll(ctx)
	if len(resolver.keywords) != 0 {
		t.Fatalf("paused scraper ran")
	}
	o.HandleCommand(ctx, &models.Command{Command: models.CmdResume})
	if o.IsPaused() {
		t.Fatalf("expected resumed")
	}

	if _, err := store.EnqueueCommand(models.CmdScrapeRegion, &models.CommandParams{Keyword: "판교", Limit: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cmds, _ := store.GetPendingCommands()
	if err := o.HandleCommand(ctx, &cmds[0]); err != nil {
		t.Fatalf("scrape_region: %v", err)
	}
	if resolver.keywords[len(resolver.keywords)-1] != "판교" {
		t.Fatalf("keywords = %v", resolver.keywords)
	}

	if err := o.HandleCommand(ctx, &models.Command{Command: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}

	status, err := o.MarshalStatus()
	if err != nil || !strings.Contains(string(status), "잠실동") {
		t.Fatalf("status = %s, %v", status, err)
	}
}
