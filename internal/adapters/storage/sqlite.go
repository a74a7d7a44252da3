package storage

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// ErrJournalClosed is returned by Record after Close.
var ErrJournalClosed = errors.New("journal closed")

const (
	defaultQueueSize = 256
	batchSize        = 64
	busyRetries      = 3
	busyBackoff      = 20 * time.Millisecond
)

// EventModel is the GORM model for journaled events.
type EventModel struct {
	ID      string    `gorm:"primaryKey"`
	Session string    `gorm:"index"`
	Time    time.Time `gorm:"index"`
	Name    string
	Payload string
}

// journalItem is either an event to write or a flush marker.
type journalItem struct {
	event   domain.Event
	flushed chan struct{}
}

// SQLiteJournal implements ports.EventJournal using GORM and SQLite. Record
// never blocks; events are written in batches by a background goroutine.
type SQLiteJournal struct {
	db    *gorm.DB
	queue chan journalItem

	mu      sync.RWMutex // Protects closed against concurrent Record
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewSQLiteJournal opens the database at path and migrates the schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// One connection: ":memory:" databases are per connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&EventModel{}); err != nil {
		return nil, err
	}
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_name ON event_models(name)")

	j := &SQLiteJournal{
		db:    db,
		queue: make(chan journalItem, defaultQueueSize),
		done:  make(chan struct{}),
	}
	go j.writer()
	return j, nil
}

// Record queues event for writing. A full queue drops the event.
func (j *SQLiteJournal) Record(ctx context.Context, event domain.Event) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	select {
	case j.queue <- journalItem{event: event}:
		return nil
	default:
		j.dropped.Add(1)
		telemetry.Errors.WithLabelValues(string(domain.KindResourceExhausted)).Inc()
		return domain.ErrResourceExhausted
	}
}

// Flush waits until every event recorded before the call is written.
func (j *SQLiteJournal) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	select {
	case j.queue <- journalItem{flushed: flushed}:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events lost to a full queue.
func (j *SQLiteJournal) Dropped() uint64 { return j.dropped.Load() }

func (j *SQLiteJournal) writer() {
	defer close(j.done)
	batch := make([]EventModel, 0, batchSize)
	write := func() {
		if len(batch) == 0 {
			return
		}
		err := j.db.CreateInBatches(batch, batchSize).Error
		for i := 0; err != nil && isBusy(err) && i < busyRetries; i++ {
			time.Sleep(busyBackoff << i)
			err = j.db.CreateInBatches(batch, batchSize).Error
		}
		if err != nil {
			log.Printf("[JOURNAL] Failed to write %d events: %v", len(batch), err)
			telemetry.Errors.WithLabelValues(string(domain.KindInternal)).Inc()
		}
		batch = batch[:0]
	}

	for item := range j.queue {
		if item.flushed != nil {
			write()
			close(item.flushed)
			continue
		}
		model, err := toModel(item.event)
		if err != nil {
			log.Printf("[JOURNAL] Skipping %s: %v", item.event.Name, err)
			continue
		}
		batch = append(batch, model)
		if len(batch) >= batchSize || len(j.queue) == 0 {
			write()
		}
	}
	write()
}

// Events returns journaled events matching filter, newest first.
func (j *SQLiteJournal) Events(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	query := j.db.WithContext(ctx).Order("time desc")

	if filter.Session != "" {
		query = query.Where("session = ?", filter.Session)
	}
	if filter.Name != "" {
		query = query.Where("name = ?", filter.Name)
	}
	if !filter.Since.IsZero() {
		query = query.Where("time >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(models))
	for _, m := range models {
		ev, err := toDomain(m)
		if err != nil {
			log.Printf("[JOURNAL] Skipping unreadable event %s: %v", m.ID, err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close drains the queue and closes the database.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure interface compliance
var _ ports.EventJournal = (*SQLiteJournal)(nil)

// isBusy reports whether err is SQLite lock contention worth retrying.
func isBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
