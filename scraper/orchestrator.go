package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"landscout/config"
	"landscout/images"
	"landscout/land"
	"landscout/logging"
	"landscout/models"
	"landscout/services"
	"landscout/storage"
)

// RegionResolver turns a keyword into a search target.
type RegionResolver interface {
	Resolve(ctx context.Context, keyword string) (models.RegionQuery, error)
}

// ListingSource pages through the listings of a region.
type ListingSource interface {
	Paginate(ctx context.Context, regionID string, lat, lon float64, limit int, opts land.PaginateOptions) ([]models.Listing, error)
}

type Orchestrator struct {
	cfg      *config.Config
	store    *storage.SQLiteStore
	resolver RegionResolver
	source   ListingSource
	images   images.Source
	listings *services.ListingService

	runMu  sync.Mutex
	paused atomic.Bool
	// cancelEpoch counts cancel requests. A run belongs to the epoch current when it
	// was requested and stops once the counter moves on.
	cancelEpoch atomic.Int64
}

func NewOrchestrator(cfg *config.Config, store *storage.SQLiteStore, resolver RegionResolver, source ListingSource, listings *services.ListingService) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		source:   source,
		listings: listings,
	}
}

// SetImageSource enables photo resolution for every acquired listing.
func (o *Orchestrator) SetImageSource(src images.Source) {
	o.images = src
}

// RunAll acquires every watched region of the site config. A cancel stops the whole
// batch, not just the region in progress.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	return o.runAll(ctx, o.cancelEpoch.Load())
}

func (o *Orchestrator) runAll(ctx context.Context, epoch int64) error {
	if o.paused.Load() {
		log.Println("Scraper is paused, skipping run")
		return nil
	}

	for _, region := range o.watched() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if o.cancelledSince(epoch) {
			log.Println("Acquisition batch cancelled, skipping remaining regions")
			return nil
		}
		keyword := region.Label
		if keyword == "" {
			keyword = region.Code
		}
		if _, err := o.runRegion(ctx, keyword, region.Limit, epoch); err != nil {
			log.Printf("Error running region %s: %v", keyword, err)
		}
	}

	return nil
}

// RunRegion resolves keyword, collects up to limit listings, resolves their photos and
// stores everything. limit <= 0 uses the configured default. Runs are serialised.
func (o *Orchestrator) RunRegion(ctx context.Context, keyword string, limit int) (*models.AcquisitionRun, error) {
	return o.runRegion(ctx, keyword, limit, o.cancelEpoch.Load())
}

func (o *Orchestrator) runRegion(ctx context.Context, keyword string, limit int, epoch int64) (*models.AcquisitionRun, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	cancelled := func() bool { return o.cancelledSince(epoch) }

	if limit <= 0 {
		limit = o.cfg.Scraper.Limit
	}

	run := &models.AcquisitionRun{
		Keyword:   keyword,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	runID, err := o.store.CreateRun(run)
	if err != nil {
		return nil, err
	}
	run.ID = runID

	stats := &services.ProcessStats{}
	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		if err := o.store.UpdateRun(run); err != nil {
			log.Printf("Warning: failed to update run %d: %v", run.ID, err)
		}
		if run.RegionID != "" {
			if err := o.store.UpdateRegionStats(run.RegionID); err != nil {
				log.Printf("Warning: failed to update stats for %s: %v", run.RegionID, err)
			}
		}
		if logging.DebugEnabled() {
			logging.Debugf("Run %d stats: %s", run.ID, stats.ToJSON())
		}
	}()

	o.log(run, models.LogLevelInfo, fmt.Sprintf("Starting acquisition for %q (limit %d)", keyword, limit))

	region, err := o.resolver.Resolve(ctx, keyword)
	if err != nil {
		o.fail(run, err)
		return run, err
	}
	run.RegionID = region.RegionID
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Resolved %s -> %s (%.4f, %.4f)", keyword, region.RegionID, region.Lat, region.Lon))

	listings, err := o.source.Paginate(ctx, region.RegionID, region.Lat, region.Lon, limit, land.PaginateOptions{
		OnCluster: func(s models.ClusterSummary) {
			run.TotalEstimate = s.TotalCount
			if s.TotalCount == 0 {
				o.log(run, models.LogLevelWarn, "Region has no listings on the map")
				return
			}
			o.log(run, models.LogLevelInfo, fmt.Sprintf("Cluster estimate: %d listings", s.TotalCount))
		},
		OnProgress: func(current, total int, message string) {
			logging.Debugf("Run %d: %s (%d/%d)", run.ID, message, current, total)
		},
		ShouldCancel: cancelled,
	})
	if err != nil {
		o.fail(run, err)
		return run, err
	}
	run.ListingsFound = len(listings)
	run.Listings = listings
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Collected %d listings", len(listings)))

	// Collected listings are kept after a cancel; only photo lookups are skipped.
	for i := range listings {
		if ctx.Err() != nil {
			break
		}
		l := &listings[i]

		var photos models.ImageURLSet
		if cancelled() {
			photos.Add(l.ImageURL)
		} else {
			photos = o.resolveImages(ctx, l)
		}
		if len(photos) > 1 || (len(photos) == 1 && photos[0] != l.ImageURL) {
			run.ImagesResolved++
		}

		result, err := o.listings.ProcessListing(region.RegionID, l, photos)
		if err != nil {
			o.log(run, models.LogLevelError, fmt.Sprintf("Process error for %s: %v", l.ID, err))
			run.ErrorsCount++
			stats.Errors++
			continue
		}
		stats.Aggregate(result)
	}

	switch {
	case ctx.Err() != nil:
		run.Status = models.RunStatusCancelled
		run.ErrorMessage = ctx.Err().Error()
	case cancelled():
		run.Status = models.RunStatusCancelled
		run.ErrorMessage = "cancelled"
	default:
		run.Status = models.RunStatusCompleted
	}

	o.log(run, models.LogLevelInfo,
		fmt.Sprintf("Finished (%s): %d found, %d new, %d duplicates, %d with photos, %d errors",
			run.Status, run.ListingsFound, stats.ListingsNew, stats.Duplicates, run.ImagesResolved, run.ErrorsCount))

	return run, nil
}

// resolveImages returns the listing's photos, or just its thumbnail when photo
// resolution is off.
func (o *Orchestrator) resolveImages(ctx context.Context, l *models.Listing) models.ImageURLSet {
	if o.images == nil {
		var set models.ImageURLSet
		set.Add(l.ImageURL)
		return set
	}
	return o.images.Resolve(ctx, images.Request{
		ArticleNo:    l.ID,
		PropertyCode: l.PropertyCode,
		TradeCode:    l.TradeCode,
		Thumbnail:    l.ImageURL,
	})
}

func (o *Orchestrator) fail(run *models.AcquisitionRun, err error) {
	run.Status = models.RunStatusFailed
	run.ErrorsCount++
	run.ErrorMessage = land.UserMessage(err)
	o.log(run, models.LogLevelError, fmt.Sprintf("Acquisition failed: %v", err))
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	return o.PrepareCommand(cmd)(ctx)
}

// PrepareCommand binds cmd to the cancel requests seen so far and returns the work to
// run, possibly later on another goroutine. A cancel issued after PrepareCommand
// returns stops the prepared acquisition even if it has not started yet.
func (o *Orchestrator) PrepareCommand(cmd *models.Command) func(ctx context.Context) error {
	epoch := o.cancelEpoch.Load()
	return func(ctx context.Context) error {
		return o.handleCommand(ctx, cmd, epoch)
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, cmd *models.Command, epoch int64) error {
	params, err := o.store.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		return o.runAll(ctx, epoch)
	case models.CmdScrapeRegion:
		if params.Keyword == "" {
			return o.runAll(ctx, epoch)
		}
		_, err := o.runRegion(ctx, params.Keyword, params.Limit, epoch)
		return err
	case models.CmdPause:
		o.paused.Store(true)
		log.Println("Scraper paused")
	case models.CmdResume:
		o.paused.Store(false)
		log.Println("Scraper resumed")
	case models.CmdCancel:
		o.Cancel()
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}

	return nil
}

// Cancel stops every acquisition requested before this call, including queued batches.
// Listings collected so far are kept.
func (o *Orchestrator) Cancel() {
	o.cancelEpoch.Add(1)
	log.Println("Acquisition cancel requested")
}

func (o *Orchestrator) cancelledSince(epoch int64) bool {
	return o.cancelEpoch.Load() != epoch
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) log(run *models.AcquisitionRun, level models.LogLevel, message string) {
	log.Printf("[%s] %s: %s", level, run.Keyword, message)
	if err := o.store.Log(&run.ID, level, "acquisition", message); err != nil {
		log.Printf("Warning: failed to record log: %v", err)
	}
}

func (o *Orchestrator) watched() []config.Region {
	regions := o.cfg.Site.Watched()
	sort.Slice(regions, func(i, j int) bool { return regions[i].Code < regions[j].Code })
	return regions
}

// WatchedKeywords lists the regions RunAll acquires, in run order.
func (o *Orchestrator) WatchedKeywords() []string {
	var ids []string
	for _, r := range o.watched() {
		if r.Label != "" {
			ids = append(ids, r.Label)
		} else {
			ids = append(ids, r.Code)
		}
	}
	return ids
}

// MarshalStatus reports the pause state and when each watched region was last acquired.
func (o *Orchestrator) MarshalStatus() ([]byte, error) {
	lastRuns := make(map[string]*time.Time)
	for _, r := range o.watched() {
		t, err := o.store.GetLastRunTime(r.Code)
		if err != nil {
			return nil, err
		}
		if t.IsZero() {
			lastRuns[r.Code] = nil
		} else {
			lastRuns[r.Code] = &t
		}
	}
	status := map[string]interface{}{
		"paused":    o.paused.Load(),
		"regions":   o.WatchedKeywords(),
		"last_runs": lastRuns,
	}
	return json.Marshal(status)
}
