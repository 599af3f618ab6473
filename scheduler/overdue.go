package scheduler

import (
	"context"
	"fmt"
	"sync"

	"library-desk/library"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// OverdueSource is the part of the library the watcher reads.
type OverdueSource interface {
	Reload() error
	Overdue() []library.OverdueLoan
}

// OverdueWatcher re-reads the library on a cron schedule and hands every
// overdue loan to a report function.
type OverdueWatcher struct {
	src      OverdueSource
	schedule string
	report   func([]library.OverdueLoan)
	log      logrus.FieldLogger

	cron      *cron.Cron
	entryID   cron.EntryID
	mu        sync.Mutex
	isRunning bool
}

// NewOverdueWatcher creates a watcher. schedule is a standard five-field
// cron expression.
func NewOverdueWatcher(src OverdueSource, schedule string, report func([]library.OverdueLoan), log logrus.FieldLogger) *OverdueWatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OverdueWatcher{
		src:      src,
		schedule: schedule,
		report:   report,
		log:      log,
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
	}
}

// Start schedules the check and stops it again when ctx is done.
func (w *OverdueWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return nil
	}
	// The entry survives Stop, so a restart only resumes it.
	if w.entryID == 0 {
		id, err := w.cron.AddFunc(w.schedule, func() { w.Check() })
		if err != nil {
			return fmt.Errorf("invalid cron schedule '%s': %w", w.schedule, err)
		}
		w.entryID = id
	}
	w.cron.Start()
	w.isRunning = true

	w.log.WithField("schedule", w.schedule).Info("overdue watcher started")

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop waits for a running check to finish and stops the schedule.
func (w *OverdueWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return
	}
	<-w.cron.Stop().Done()
	w.isRunning = false
	w.log.Info("overdue watcher stopped")
}

// IsRunning returns whether the schedule is active.
func (w *OverdueWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

// Check reloads the library, reports the overdue loans and returns them.
// A failed reload is logged and the previous state is reported.
func (w *OverdueWatcher) Check() []library.OverdueLoan {
	if err := w.src.Reload(); err != nil {
		w.log.WithError(err).Error("reload before overdue check failed")
	}
	loans := w.src.Overdue()
	w.log.WithField("count", len(loans)).Debug("overdue check complete")
	if w.report != nil {
		w.report(loans)
	}
	return loans
}
