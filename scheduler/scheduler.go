package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"landscout/config"
	"landscout/models"
	"landscout/scraper"
	"landscout/storage"
)

const commandPollInterval = 2 * time.Second

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	store        *storage.SQLiteStore
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	mediaWorker   Triggerable
	scoringWorker Triggerable
	syncWorker    Triggerable
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual and scheduled triggering. Any may be nil.
func (s *Scheduler) SetWorkers(media, scoring, syncer Triggerable) {
	s.mediaWorker = media
	s.scoringWorker = scoring
	s.syncWorker = syncer
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollCommands(ctx)
	}()

	cronJobs := 0
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Scheduling acquisition with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			if err := s.orchestrator.RunAll(ctx); err != nil {
				log.Printf("Scheduled run error: %v", err)
			}
			if s.syncWorker != nil {
				s.syncWorker.Trigger()
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.cfg.Scheduler.Cron, err)
		}
		cronJobs++
	}

	if s.cfg.Scheduler.ScoreCron != "" && s.scoringWorker != nil {
		log.Printf("Scheduling scoring with cron: %s", s.cfg.Scheduler.ScoreCron)
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.ScoreCron, s.scoringWorker.Trigger); err != nil {
			return fmt.Errorf("invalid score cron expression %q: %w", s.cfg.Scheduler.ScoreCron, err)
		}
		cronJobs++
	}

	if cronJobs > 0 {
		s.cron.Start()
	}

	if s.cfg.Scheduler.Cron == "" && s.cfg.Scheduler.Interval > 0 {
		log.Printf("Scheduling acquisition every %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					if err := s.orchestrator.RunAll(ctx); err != nil {
						log.Printf("Scheduled run error: %v", err)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else if s.cfg.Scheduler.Cron == "" {
		log.Println("No acquisition schedule configured, daemon will only respond to commands")
	}

	return nil
}

// Stop halts scheduling and waits for in-flight cron jobs and pollers to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessCommands handles every pending command once. Acquisitions run in the background
// so a later cancel command is still seen.
func (s *Scheduler) ProcessCommands(ctx context.Context) {
	cmds, err := s.store.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return
	}

	for i := range cmds {
		cmd := cmds[i]
		log.Printf("Processing command: %s", cmd.Command)
		if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
		if err := s.handleCommand(ctx, &cmd); err != nil {
			log.Printf("Command error: %v", err)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunMedia:
		return s.trigger(s.mediaWorker, "Media")
	case models.CmdScoreNow:
		return s.trigger(s.scoringWorker, "Scoring")
	case models.CmdScrapeNow, models.CmdScrapeRegion:
		// Prepared here so a cancel later in the same batch still reaches it.
		run := s.orchestrator.PrepareCommand(cmd)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := run(ctx); err != nil {
				log.Printf("Command %s error: %v", cmd.Command, err)
			}
			if s.syncWorker != nil {
				s.syncWorker.Trigger()
			}
		}()
		return nil
	default:
		return s.orchestrator.HandleCommand(ctx, cmd)
	}
}

func (s *Scheduler) trigger(w Triggerable, name string) error {
	if w == nil {
		return fmt.Errorf("%s worker not running", name)
	}
	w.Trigger()
	log.Printf("%s worker triggered via command", name)
	return nil
}
