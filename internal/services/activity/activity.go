package activity

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"wow-guild-mcp/internal/models"
)

// Recorder writes one activity row per tool or capture operation. Writes are
// asynchronous and best effort: a failed insert is logged and dropped, never
// surfaced to the caller.
type Recorder struct {
	db     *gorm.DB
	logger *zap.Logger
	queue  chan models.ActivityLog
	done   chan struct{}
}

// NewRecorder starts the background writer. A nil db disables recording; the
// returned Recorder is still safe to call.
func NewRecorder(db *gorm.DB, logger *zap.Logger) *Recorder {
	r := &Recorder{
		db:     db,
		logger: logger,
		queue:  make(chan models.ActivityLog, 256),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues one operation outcome. Never blocks: if the queue is full
// the entry is dropped.
func (r *Recorder) Record(operation string, duration time.Duration, err error, errorKind string) {
	if r == nil {
		return
	}
	entry := models.ActivityLog{
		Operation:  operation,
		DurationMS: duration.Milliseconds(),
		Success:    err == nil,
		ErrorKind:  errorKind,
		CreatedAt:  time.Now().UTC(),
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("activity log queue full, dropping entry", zap.String("operation", operation))
	}
}

// Close drains the queue and stops the writer.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.queue)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		if r.db == nil {
			continue
		}
		if err := r.db.Create(&entry).Error; err != nil {
			r.logger.Warn("activity log write failed", zap.Error(err))
		}
	}
}
