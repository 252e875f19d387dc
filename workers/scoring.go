package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"landscout/enrichment"
	"landscout/models"
)

// RegionSource lists the regions to score.
type RegionSource interface {
	BasicRegions(ctx context.Context) ([]models.AdminRegion, error)
}

// ScoreStore keeps the catalogue snapshot and the computed scores.
type ScoreStore interface {
	ReplaceAdminRegions(regions []models.AdminRegion) error
	GetAdminRegions() ([]models.AdminRegion, error)
	UpsertRegionScore(score *models.RegionScore) error
}

// ScoreMirror receives a copy of every stored score.
type ScoreMirror interface {
	UpsertRegionScore(ctx context.Context, score *models.RegionScore) error
}

// ScoringWorker refreshes the region catalogue and scores every region by nearby amenities
type ScoringWorker struct {
	scorer    *enrichment.Scorer
	source    RegionSource
	store     ScoreStore
	mirror    ScoreMirror
	workers   int
	triggerCh chan struct{}
	logFunc   LogFunc
}

// NewScoringWorker creates a scoring worker. source may be nil, in which case the last
// stored catalogue is scored.
func NewScoringWorker(scorer *enrichment.Scorer, source RegionSource, store ScoreStore, workers int) *ScoringWorker {
	if workers <= 0 {
		workers = enrichment.DefaultWorkers
	}
	return &ScoringWorker{
		scorer:    scorer,
		source:    source,
		store:     store,
		workers:   workers,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *ScoringWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

func (w *ScoringWorker) SetMirror(m ScoreMirror) {
	w.mirror = m
}

// Trigger causes the worker to run immediately
func (w *ScoringWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run scores on every tick and on Trigger. A zero interval only reacts to Trigger.
func (w *ScoringWorker) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Scoring worker stopping")
			return
		case <-tick:
			w.runLogged(ctx)
		case <-w.triggerCh:
			log.Println("Scoring worker triggered manually")
			w.runLogged(ctx)
		}
	}
}

func (w *ScoringWorker) runLogged(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil {
		log.Printf("Scoring worker: %v", err)
		w.logFunc(models.LogLevelError, "scoring", err.Error())
	}
}

// RunOnce scores every region and persists the results. It returns how many scores were stored.
func (w *ScoringWorker) RunOnce(ctx context.Context) (int, error) {
	regions, err := w.regions(ctx)
	if err != nil {
		return 0, err
	}
	if len(regions) == 0 {
		return 0, fmt.Errorf("no regions to score")
	}

	log.Printf("Scoring worker: scoring %d regions with %d workers", len(regions), w.workers)
	start := time.Now()
	scores := w.scorer.ScoreAll(ctx, regions, w.workers)

	stored := 0
	for i := range scores {
		sc := &scores[i]
		if err := w.store.UpsertRegionScore(sc); err != nil {
			log.Printf("Scoring worker: store %s: %v", sc.RegionCode, err)
			continue
		}
		stored++
		if w.mirror != nil {
			if err := w.mirror.UpsertRegionScore(ctx, sc); err != nil {
				log.Printf("Scoring worker: mirror %s: %v", sc.RegionCode, err)
			}
		}
	}

	msg := fmt.Sprintf("scored %d/%d regions in %s", stored, len(regions), time.Since(start).Round(time.Second))
	log.Printf("Scoring worker: %s", msg)
	w.logFunc(models.LogLevelInfo, "scoring", msg)
	return stored, nil
}

// regions refreshes the catalogue from the source, falling back to the stored snapshot.
func (w *ScoringWorker) regions(ctx context.Context) ([]models.AdminRegion, error) {
	if w.source != nil {
		regions, err := w.source.BasicRegions(ctx)
		if err == nil && len(regions) > 0 {
			if err := w.store.ReplaceAdminRegions(regions); err != nil {
				log.Printf("Scoring worker: failed to store catalogue: %v", err)
			}
			return regions, nil
		}
		if err != nil {
			log.Printf("Scoring worker: catalogue fetch failed, using stored regions: %v", err)
		}
	}

	regions, err := w.store.GetAdminRegions()
	if err != nil {
		return nil, fmt.Errorf("stored regions: %w", err)
	}
	return regions, nil
}
