package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/aqi-forecast/internal/aqi"
	"github.com/i474232898/aqi-forecast/internal/metrics"
	"github.com/i474232898/aqi-forecast/internal/training"
)

// RefreshWindow is how far back ingestion reaches for a location with no records.
const RefreshWindow = 24 * time.Hour

// Refresher ingests recent history for a location and lists the locations
// that already have stored records.
type Refresher interface {
	Refresh(ctx context.Context, loc aqi.Location, window time.Duration) (int, error)
	Locations(ctx context.Context) ([]aqi.Location, error)
}

// Retrainer runs one training run.
type Retrainer interface {
	Run(ctx context.Context) (*training.Report, error)
}

// Scheduler periodically ingests pollutant history for configured locations
// and, when a retrainer is set, periodically retrains the model.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Refresher
	locations []aqi.Location
	interval  time.Duration

	retrainer       Retrainer
	retrainInterval time.Duration
	onRetrained     func(*training.Report)
}

// New creates a new Scheduler.
func New(locations []aqi.Location, interval time.Duration, service Refresher) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		service:   service,
		locations: locations,
		interval:  interval,
	}
}

// WithRetraining enables a periodic training run. onRetrained, if set, is
// called after every successful run.
func (s *Scheduler) WithRetraining(r Retrainer, interval time.Duration, onRetrained func(*training.Report)) *Scheduler {
	s.retrainer = r
	s.retrainInterval = interval
	s.onRetrained = onRetrained
	return s
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; refreshing locations already in the store")
	}
	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}
	if _, err := s.scheduler.Every(interval).Do(s.RunIngest); err != nil {
		return err
	}

	if s.retrainer != nil && s.retrainInterval > 0 {
		if _, err := s.scheduler.Every(s.retrainInterval).WaitForSchedule().Do(s.RunRetrain); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// RunIngest refreshes every configured location concurrently. Without
// configured locations it refreshes the locations the store already holds.
func (s *Scheduler) RunIngest() {
	log.Println("scheduler: running pollutant ingest job")

	locations := s.locations
	if len(locations) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		stored, err := s.service.Locations(ctx)
		cancel()
		if err != nil {
			log.Printf("scheduler: list stored locations: %v", err)
			return
		}
		if len(stored) == 0 {
			log.Println("scheduler: no stored locations; nothing to ingest")
			return
		}
		locations = stored
	}

	var wg sync.WaitGroup
	for _, loc := range locations {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			n, err := s.service.Refresh(ctx, loc, RefreshWindow)
			if err != nil {
				metrics.IngestFailures.Inc()
				log.Printf("scheduler: ingest failed for %s: %v", loc.Key(), err)
				return
			}
			metrics.IngestedObservations.WithLabelValues(loc.Key()).Add(float64(n))
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed pollutant ingest job")
}

// RunRetrain runs one training run and reports the outcome.
func (s *Scheduler) RunRetrain() {
	log.Println("scheduler: running retrain job")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := s.retrainer.Run(ctx)
	if err != nil {
		metrics.TrainingRuns.WithLabelValues(aqi.KindOf(err)).Inc()
		log.Printf("scheduler: retrain failed: %v", err)
		return
	}
	metrics.TrainingRuns.WithLabelValues("ok").Inc()
	log.Printf("scheduler: retrain registered version %d (MSE %.2f)", report.Version, report.Metrics.MSE)
	if s.onRetrained != nil {
		s.onRetrained(report)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
