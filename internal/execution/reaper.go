package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/bullpen/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Reaper periodically fails executions left running by a crashed or
// restarted process.
type Reaper struct {
	db         *gorm.DB
	staleAfter time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	cron       *cron.Cron
}

// NewReaper validates schedule and returns a Reaper that has not started.
// logger and m may be nil.
func NewReaper(db *gorm.DB, schedule string, staleAfter time.Duration, logger *zap.Logger, m *metrics.Metrics) (*Reaper, error) {
	if staleAfter <= 0 {
		return nil, fmt.Errorf("execution: reaper stale_after must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reaper{
		db:         db,
		staleAfter: staleAfter,
		logger:     logger,
		metrics:    m,
		cron:       cron.New(cron.WithParser(cronParser)),
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.Sweep() }); err != nil {
		return nil, fmt.Errorf("execution: reaper schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is cancelled. An in-flight
// sweep is allowed to finish before Run returns.
func (r *Reaper) Run(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}

// Sweep runs one reap pass immediately.
func (r *Reaper) Sweep() int64 {
	n, err := Reap(r.db, now().Add(-r.staleAfter))
	if err != nil {
		r.logger.Error("reap executions", zap.Error(err))
		return 0
	}
	if r.metrics != nil {
		r.metrics.RecordReaped(n)
	}
	if n > 0 {
		r.logger.Warn("reaped abandoned executions", zap.Int64("count", n), zap.Duration("stale_after", r.staleAfter))
	}
	return n
}
