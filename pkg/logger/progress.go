package logger

import (
	"sync"
	"time"
)

// ProgressTracker reports periodic progress for long-running batch
// operations such as an n-way matching run over a large pool.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mu          sync.Mutex
}

// NewProgressTracker creates a tracker for the named operation
func NewProgressTracker(operation string, total int64, log Logger) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}

	t := &ProgressTracker{
		logger:      log.WithComponent("progress"),
		operation:   operation,
		total:       total,
		startTime:   time.Now(),
		lastLogTime: time.Now(),
		logInterval: 5 * time.Second,
	}

	t.logger.WithFields(Fields{
		"operation": operation,
		"total":     total,
	}).Info("starting operation")

	return t
}

// Increment advances the progress counter by n and logs at the configured interval
func (p *ProgressTracker) Increment(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += n
	if time.Since(p.lastLogTime) < p.logInterval && p.current < p.total {
		return
	}
	p.lastLogTime = time.Now()

	fields := Fields{
		"operation": p.operation,
		"current":   p.current,
		"total":     p.total,
		"elapsed":   time.Since(p.startTime).Round(time.Millisecond).String(),
	}
	if p.total > 0 {
		fields["percent"] = float64(p.current) / float64(p.total) * 100
	}
	p.logger.WithFields(fields).Info("operation progress")
}

// Done logs completion of the tracked operation
func (p *ProgressTracker) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"elapsed":   time.Since(p.startTime).Round(time.Millisecond).String(),
	}).Info("operation complete")
}
