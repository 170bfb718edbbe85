package services

import (
	"context"
	"sync"
	"time"

	"gemini-shim/internal/models"
	"gemini-shim/internal/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	logFlushInterval  = 5 * time.Second
	logFlushBatchSize = 100
	logBufferSize     = 1024
	cleanupInterval   = time.Hour
)

// RequestLogService buffers audit log entries and writes them to the
// database in batches. With a nil database it degrades to a no-op so the
// relay path never has to check whether auditing is configured.
type RequestLogService struct {
	db       *gorm.DB
	settings types.ShimSettings
	entries  chan *models.RequestLog
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRequestLogService creates a new RequestLogService instance
func NewRequestLogService(db *gorm.DB, configManager types.ConfigManager) *RequestLogService {
	return &RequestLogService{
		db:       db,
		settings: configManager.GetShimSettings(),
		entries:  make(chan *models.RequestLog, logBufferSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the flush and retention loops.
func (s *RequestLogService) Start() {
	if s.db == nil {
		return
	}
	if err := s.db.AutoMigrate(&models.RequestLog{}); err != nil {
		logrus.WithError(err).Error("Failed to migrate request_logs table, audit log disabled")
		s.db = nil
		return
	}
	s.wg.Add(2)
	go s.flushLoop()
	go s.cleanupLoop()
}

// Stop drains the buffer and stops the loops.
func (s *RequestLogService) Stop(ctx context.Context) {
	if s.db == nil {
		return
	}
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("RequestLogService stopped gracefully")
	case <-ctx.Done():
		logrus.Warn("RequestLogService stop timed out")
	}
}

// Record queues one log entry. It never blocks the relay path: when the
// buffer is full the entry is dropped and counted in the logs.
func (s *RequestLogService) Record(entry *models.RequestLog) {
	if s.db == nil {
		return
	}
	entry.ID = uuid.NewString()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	select {
	case s.entries <- entry:
	default:
		logrus.Warn("Request log buffer full, dropping entry")
	}
}

func (s *RequestLogService) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(logFlushInterval)
	defer ticker.Stop()

	batch := make([]*models.RequestLog, 0, logFlushBatchSize)
	for {
		select {
		case entry := <-s.entries:
			batch = append(batch, entry)
			if len(batch) >= logFlushBatchSize {
				s.writeBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.writeBatch(batch)
				batch = batch[:0]
			}
		case <-s.stopChan:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case entry := <-s.entries:
					batch = append(batch, entry)
				default:
					if len(batch) > 0 {
						s.writeBatch(batch)
					}
					return
				}
			}
		}
	}
}

func (s *RequestLogService) writeBatch(batch []*models.RequestLog) {
	if err := s.db.CreateInBatches(batch, logFlushBatchSize).Error; err != nil {
		logrus.WithError(err).Errorf("Failed to write %d request logs", len(batch))
		return
	}
	logrus.Debugf("Flushed %d request logs", len(batch))
}

func (s *RequestLogService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

// cleanup deletes entries older than the retention window.
func (s *RequestLogService) cleanup() {
	retention := time.Duration(s.settings.RequestLogRetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	result := s.db.Where("timestamp < ?", cutoff).Delete(&models.RequestLog{})
	if result.Error != nil {
		logrus.WithError(result.Error).Error("Failed to clean up expired request logs")
		return
	}
	if result.RowsAffected > 0 {
		logrus.Infof("Cleaned up %d expired request logs", result.RowsAffected)
	}
}

// LogQuery filters the audit log listing.
type LogQuery struct {
	ConversationID string
	Model          string
	StatusCode     int
	Page           int
	PageSize       int
}

// List returns one page of audit log entries, newest first.
func (s *RequestLogService) List(query LogQuery) ([]models.RequestLog, int64, error) {
	if s.db == nil {
		return nil, 0, nil
	}

	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 || query.PageSize > 500 {
		query.PageSize = 50
	}

	tx := s.db.Model(&models.RequestLog{})
	if query.ConversationID != "" {
		tx = tx.Where("conversation_id = ?", query.ConversationID)
	}
	if query.Model != "" {
		tx = tx.Where("model = ?", query.Model)
	}
	if query.StatusCode != 0 {
		tx = tx.Where("status_code = ?", query.StatusCode)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.RequestLog
	err := tx.Order("timestamp desc").
		Offset((query.Page - 1) * query.PageSize).
		Limit(query.PageSize).
		Find(&logs).Error
	return logs, total, err
}
