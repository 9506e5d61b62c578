// internal/app/system/workers/reminders.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/coflow/internal/app/system/timeouts"
	"github.com/dalemusser/coflow/internal/app/system/timezones"
	"github.com/dalemusser/coflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// reminderBatch caps how many entries one sweep hands off.
const reminderBatch = 200

// ReminderSource reads and flags schedule entries awaiting a reminder.
// *schedulestore.Store and the in-memory schedule implement it.
type ReminderSource interface {
	DueForReminder(ctx context.Context, from, to string, limit int) ([]models.ScheduleEntry, error)
	MarkReminderSent(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// Notifier delivers a meeting reminder for one schedule entry.
type Notifier interface {
	NotifyMeeting(ctx context.Context, e models.ScheduleEntry) error
}

// LogNotifier writes reminders to the log. It stands in when no delivery
// channel is configured.
type LogNotifier struct {
	Log *zap.Logger
}

// NotifyMeeting logs e.
func (n LogNotifier) NotifyMeeting(_ context.Context, e models.ScheduleEntry) error {
	n.Log.Info("meeting reminder",
		zap.String("user_id", e.UserID.Hex()),
		zap.String("group_id", e.GroupID.Hex()),
		zap.String("meeting_date", e.MeetingDate),
		zap.String("start_time", e.StartTime))
	return nil
}

// ReminderConfig tunes a ReminderSweep.
type ReminderConfig struct {
	Interval   time.Duration  // how often to sweep (e.g. 15 minutes)
	LeadDays   int            // remind for meetings from today through today+LeadDays
	RatePerSec float64        // hand-off rate to the Notifier; <= 0 means unlimited
	Location   *time.Location // zone meeting dates are written in
}

// ReminderSweep is a background worker that hands upcoming meetings to a
// Notifier and marks their schedule entries as reminded.
type ReminderSweep struct {
	entries  ReminderSource
	notify   Notifier
	log      *zap.Logger
	cfg      ReminderConfig
	limiter  *rate.Limiter
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReminderSweep creates a reminder worker. A nil notifier logs reminders.
func NewReminderSweep(src ReminderSource, notifier Notifier, logger *zap.Logger, cfg ReminderConfig) *ReminderSweep {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: logger}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.LeadDays < 0 {
		cfg.LeadDays = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &ReminderSweep{
		entries: src,
		notify:  notifier,
		log:     logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *ReminderSweep) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("reminder worker started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("lead_days", w.cfg.LeadDays),
		zap.Float64("rate_per_sec", w.cfg.RatePerSec))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *ReminderSweep) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("reminder worker stopped")
}

func (w *ReminderSweep) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := w.stopContext()
			if _, err := w.Sweep(ctx); err != nil {
				w.log.Error("reminder sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// stopContext returns a context cancelled when Stop is called.
func (w *ReminderSweep) stopContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Sweep runs one pass and returns the number of reminders handed off.
// Entries whose notification fails stay unmarked for the next pass.
func (w *ReminderSweep) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Sweep(), w.log, "reminder sweep")
	defer cancel()

	now := w.now().In(w.cfg.Location)
	from := timezones.Today(w.cfg.Location, now)
	to := timezones.Today(w.cfg.Location, now.AddDate(0, 0, w.cfg.LeadDays))

	due, err := w.entries.DueForReminder(ctx, from, to, reminderBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range due {
		if err := w.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		if err := w.notify.NotifyMeeting(ctx, e); err != nil {
			w.log.Warn("reminder not delivered",
				zap.String("entry_id", e.ID.Hex()),
				zap.String("user_id", e.UserID.Hex()),
				zap.Error(err))
			continue
		}
		ok, err := w.entries.MarkReminderSent(ctx, e.ID)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}

	if sent > 0 {
		w.log.Info("reminders sent", zap.Int("count", sent), zap.String("from", from), zap.String("to", to))
	}
	return sent, nil
}
