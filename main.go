package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"landscout/cache"
	"landscout/config"
	"landscout/enrichment"
	"landscout/httputil"
	"landscout/images"
	"landscout/kakao"
	"landscout/land"
	"landscout/logging"
	"landscout/models"
	"landscout/publicdata"
	"landscout/ratelimit"
	"landscout/scheduler"
	"landscout/scraper"
	"landscout/services"
	"landscout/storage"
	"landscout/workers"
)

const mediaPerSecond = 2

var (
	scrapeNow = flag.Bool("scrape", false, "Run acquisition for every watched region once and exit")
	region    = flag.String("region", "", "Acquire a single region keyword once and exit")
	limit     = flag.Int("limit", 0, "Listing limit for -region (0 uses SCRAPE_LIMIT)")
	scoreNow  = flag.Bool("score", false, "Score every region once and exit")
	resetData = flag.Bool("reset", false, "Clear all stored listings, runs, scores and commands, then exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}
	logging.SetLevel(cfg.LogLevel)

	log.Println("Starting landscout...")
	log.Printf("Loaded %d known regions (%d watched)", len(cfg.Site.Regions), len(cfg.Site.Watched()))

	clients := httputil.NewClients(cfg)
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", maskConnectionString(cfg.Proxy.URL))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One limiter per upstream API family
	landLimiter := ratelimit.New(cfg.Land.RateLimit)
	kakaoLimiter := ratelimit.New(cfg.Kakao.RateLimit)
	publicLimiter := ratelimit.New(cfg.PublicData.RateLimit)

	landClient := land.NewClient(clients.Land, landLimiter, land.Options{
		Endpoints: land.EndpointsFrom(cfg.Site.Endpoints),
		PageSize:  cfg.Land.PageSize,
		Zoom:      cfg.Land.Zoom,
		Deltas:    land.Deltas{Lat: cfg.Land.DeltaLat, Lon: cfg.Land.DeltaLon},
		Delay:     cfg.Land.RequestDelay,
	})
	resolver := land.NewRegionResolver(landClient, cfg.Site)

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	var pgStore *storage.PostgresStore
	if cfg.DBURL != "" {
		pgStore, err = storage.NewPostgresStore(ctx, cfg.DBURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare Postgres schema: %v", err)
		}
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DBURL))
	}

	mediaService := services.NewMediaService(sqliteStore)
	listingService := services.NewListingService(sqliteStore, mediaService)
	log.Println("Services initialized")

	orchestrator := scraper.NewOrchestrator(cfg, sqliteStore, resolver, landClient, listingService)

	if cfg.Images.Resolve {
		imageResolver := images.NewResolver(clients.Land, landLimiter, images.EndpointsFrom(cfg.Site.Endpoints))
		if cfg.Images.BrowserFallback {
			browser := scraper.NewBrowserFetcher()
			defer browser.Close()
			imageResolver.SetPageFetcher(browser)
			log.Println("Detail pages render through headless Chromium")
		}

		var resultCache cache.Cache = cache.NewMemoryCache()
		if cfg.Redis.URL != "" {
			redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.URL, "landscout:images:")
			if err != nil {
				log.Printf("Warning: Redis unavailable, using in-memory image cache: %v", err)
			} else {
				defer redisCache.Close()
				resultCache = redisCache
				log.Printf("Image cache: %s", maskConnectionString(cfg.Redis.URL))
			}
		}
		orchestrator.SetImageSource(images.NewCachedResolver(imageResolver, resultCache, cfg.Images.CacheTTL))
		log.Println("Photo resolution enabled")
	}

	kakaoClient := kakao.NewClient(clients.API, kakaoLimiter, cfg.Kakao.APIKey, kakao.Options{RadiusM: cfg.Kakao.RadiusM})
	if !kakaoClient.Enabled() {
		log.Println("Warning: KAKAO_REST_API_KEY not set, region scores will be zero")
	}
	var regionSource workers.RegionSource
	if cfg.PublicData.ServiceKey != "" {
		regionSource = publicdata.NewClient(clients.API, publicLimiter, cfg.PublicData.ServiceKey)
	} else {
		log.Println("Warning: SERVICE_KEY not set, scoring uses the stored region catalogue")
	}
	scoringWorker := workers.NewScoringWorker(enrichment.NewScorer(kakaoClient, nil), regionSource, sqliteStore, cfg.Scraper.ScoreWorkers)
	scoringWorker.SetLogger(workers.StoreLogger(sqliteStore))
	if pgStore != nil {
		scoringWorker.SetMirror(pgStore)
	}

	// Handle one-shot commands
	switch {
	case *resetData:
		if err := sqliteStore.ResetAllData(); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("All data cleared")
		return
	case *region != "":
		run, err := orchestrator.RunRegion(ctx, *region, *limit)
		if err != nil {
			log.Fatalf("Acquisition failed: %s", land.UserMessage(err))
		}
		log.Printf("Acquired %d listings for %s (%s)", run.ListingsFound, *region, run.Status)
		printListings(os.Stdout, run.Listings)
		return
	case *scrapeNow:
		log.Println("Running acquisition...")
		if err := orchestrator.RunAll(ctx); err != nil {
			log.Fatalf("Acquisition failed: %v", err)
		}
		log.Println("Acquisition complete!")
		return
	case *scoreNow:
		n, err := scoringWorker.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Scoring failed: %v", err)
		}
		log.Printf("Scored %d regions", n)
		return
	}

	// Daemon mode
	var uploader workers.Uploader = workers.NewNoOpUploader()
	if cfg.S3.Enabled() {
		s3Uploader, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to create S3 uploader: %v", err)
		}
		uploader = s3Uploader
		log.Printf("Media uploads to bucket %s", cfg.S3.Bucket)
	} else {
		log.Println("S3 not configured, media worker runs with NoOp uploader")
	}
	mediaWorker := workers.NewMediaWorker(mediaService, uploader, clients.Media, mediaPerSecond)
	mediaWorker.SetLogger(workers.StoreLogger(sqliteStore))
	go mediaWorker.Run(ctx, 20, 2*time.Minute) // batch of 20 every 2 min
	log.Println("Media worker started")

	go scoringWorker.Run(ctx, 0) // trigger-only, SCORE_CRON drives it
	log.Println("Scoring worker started")

	sched := scheduler.New(cfg, orchestrator, sqliteStore)
	if pgStore != nil {
		syncWorker := workers.NewSyncWorker(sqliteStore, pgStore)
		go syncWorker.Run(ctx, 50, 10*time.Minute) // batch of 50 every 10 min
		log.Println("Sync worker started")
		sched.SetWorkers(mediaWorker, scoringWorker, syncWorker)
	} else {
		sched.SetWorkers(mediaWorker, scoringWorker, nil)
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	if status, err := orchestrator.MarshalStatus(); err == nil {
		log.Printf("Status: %s", status)
	}
	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	orchestrator.Cancel()
	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

// printListings writes listings as a tab-aligned table in column order.
func printListings(out io.Writer, listings []models.Listing) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(models.Headers(), "\t"))
	for _, l := range listings {
		fmt.Fprintln(w, strings.Join(l.Row(), "\t"))
	}
	w.Flush()
}

// maskConnectionString masks the password in a connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
