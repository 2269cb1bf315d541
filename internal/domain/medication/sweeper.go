package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/platform/metrics"
	"github.com/medportal/portal/internal/platform/websocket"
)

// Sweeper periodically finds medicines that crossed the refill threshold and
// notifies their owners once per medicine.
type Sweeper struct {
	repo      Repository
	events    websocket.EventPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	interval  time.Duration
	now       func() time.Time
	scheduler *gocron.Scheduler
}

func NewSweeper(repo Repository, events websocket.EventPublisher, m *metrics.Metrics, logger zerolog.Logger, interval time.Duration) *Sweeper {
	if events == nil {
		events = websocket.NopPublisher{}
	}
	return &Sweeper{
		repo:     repo,
		events:   events,
		metrics:  m,
		logger:   logger.With().Str("component", "refill_sweeper").Logger(),
		interval: interval,
		now:      time.Now,
	}
}

// Start schedules the sweep every interval, the first run immediately. Runs
// never overlap.
func (s *Sweeper) Start(ctx context.Context) error {
	s.scheduler = gocron.NewScheduler(time.UTC)
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("refill sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refill sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info().Dur("interval", s.interval).Msg("refill sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Sweep warns about every unwarned medicine with at most RefillThresholdDays
// left and returns how many warnings it sent. Courses that already ended are
// not warned about.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	from := day(now)
	due, err := s.repo.DueForRefill(ctx, from, from.AddDate(0, 0, RefillThresholdDays))
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, m := range due {
		ok, err := s.repo.MarkWarned(ctx, m.ID, now)
		if err != nil {
			return sent, err
		}
		if !ok {
			continue
		}
		sent++
		v := NewView(m, now)
		s.metrics.RecordRefillWarning()
		s.logger.Info().
			Str("medicine_id", m.ID.String()).
			Str("user_id", m.UserID.String()).
			Int("remaining_days", v.RemainingDays).
			Msg("refill warning")
		ev := websocket.NewEvent("medicine.refill", websocket.UserTopic(m.UserID.String()), "medicine", m.ID.String(), v)
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Msg("publish refill event")
		}
	}
	return sent, nil
}
