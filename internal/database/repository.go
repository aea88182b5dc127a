package database

import (
	"time"

	"github.com/shotwatch/shotwatch/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned for lookups of a missing bucket or event.
var ErrNotFound = gorm.ErrRecordNotFound

// Repository handles all database operations for buckets, events, the
// outgoing request queue and the error log.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateBucket inserts bucket unless one with the same ID exists. It
// reports whether a row was created.
func (r *Repository) CreateBucket(bucket *models.Bucket) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(bucket)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to insert bucket")
	}
	return result.RowsAffected > 0, nil
}

// GetBucket retrieves a bucket by its ID
func (r *Repository) GetBucket(id string) (*models.Bucket, error) {
	var bucket models.Bucket
	result := r.db.Where("id = ?", id).First(&bucket)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to get bucket")
	}
	return &bucket, nil
}

// ListBuckets returns every bucket ordered by ID.
func (r *Repository) ListBuckets() ([]models.Bucket, error) {
	var buckets []models.Bucket
	if err := r.db.Order("id ASC").Find(&buckets).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list buckets")
	}
	return buckets, nil
}

// InsertEvent stores a new event. Timestamps are kept in UTC so that they
// compare correctly as text.
func (r *Repository) InsertEvent(event *models.Event) error {
	event.Timestamp = event.Timestamp.UTC()
	if event.Data == nil {
		event.Data = map[string]any{}
	}
	if err := r.db.Create(event).Error; err != nil {
		return errors.Wrap(err, "failed to insert event")
	}
	return nil
}

// UpdateEvent saves the duration and data of an existing event.
func (r *Repository) UpdateEvent(event *models.Event) error {
	event.Timestamp = event.Timestamp.UTC()
	result := r.db.Save(event)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update event")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvent returns the most recent event of a bucket, or nil when the
// bucket is empty.
func (r *Repository) LatestEvent(bucketID string) (*models.Event, error) {
	var event models.Event
	result := r.db.Where("bucket_id = ?", bucketID).Order("timestamp DESC, id DESC").First(&event)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest event")
	}
	return &event, nil
}

// Events returns a bucket's events newest first. A zero start means no
// lower bound; limit <= 0 means no limit.
func (r *Repository) Events(bucketID string, start time.Time, limit int) ([]models.Event, error) {
	query := r.db.Where("bucket_id = ?", bucketID)
	if !start.IsZero() {
		query = query.Where("timestamp >= ?", start.UTC())
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.Event
	if err := query.Order("timestamp DESC, id DESC").Find(&events).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	return events, nil
}

// appSummaryColumns aggregates events per lower-cased application name.
const appSummaryColumns = `LOWER(COALESCE(json_extract(data, '$.application'), '')) AS app_name,
	CAST(ROUND(SUM(duration)) AS INTEGER) AS total_seconds,
	COUNT(*) AS event_count`

// GetAppSummarySince returns aggregated app usage since a given time
// Uses SQL SUM for efficiency - runtime can do additional calculations
func (r *Repository) GetAppSummarySince(since time.Time) ([]models.AppSummary, error) {
	var summaries []models.AppSummary

	result := r.db.Model(&models.Event{}).
		Select(appSummaryColumns).
		Where("timestamp >= ?", since.UTC()).
		Group("app_name").
		Order("total_seconds DESC").
		Scan(&summaries)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query app summary")
	}

	return summaries, nil
}

// DeleteOldEvents deletes events older than a specified date
func (r *Repository) DeleteOldEvents(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before.UTC()).Delete(&models.Event{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old events")
	}
	return result.RowsAffected, nil
}

// Enqueue appends a request to the outgoing queue.
func (r *Repository) Enqueue(req *models.QueuedRequest) error {
	if err := r.db.Create(req).Error; err != nil {
		return errors.Wrap(err, "failed to enqueue request")
	}
	return nil
}

// PeekQueue returns the oldest queued request, or nil when the queue is
// empty.
func (r *Repository) PeekQueue() (*models.QueuedRequest, error) {
	var req models.QueuedRequest
	result := r.db.Order("id ASC").First(&req)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to read queue")
	}
	return &req, nil
}

// Dequeue removes a delivered (or dropped) request.
func (r *Repository) Dequeue(id uint) error {
	if err := r.db.Delete(&models.QueuedRequest{}, id).Error; err != nil {
		return errors.Wrap(err, "failed to dequeue request")
	}
	return nil
}

// MarkAttempt increments the delivery attempt counter of a request.
func (r *Repository) MarkAttempt(id uint) error {
	err := r.db.Model(&models.QueuedRequest{}).Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return errors.Wrap(err, "failed to update request attempts")
	}
	return nil
}

// QueueDepth counts requests waiting to be delivered.
func (r *Repository) QueueDepth() (int64, error) {
	var n int64
	if err := r.db.Model(&models.QueuedRequest{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "failed to count queue")
	}
	return n, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// RecentErrors returns the newest error logs first.
func (r *Repository) RecentErrors(limit int) ([]models.ErrorLog, error) {
	var logs []models.ErrorLog
	if err := r.db.Order("timestamp DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query error logs")
	}
	return logs, nil
}

// Clear removes all events and error logs. Buckets and queued requests
// are kept.
func (r *Repository) Clear() error {
	if err := r.db.Exec("DELETE FROM events").Error; err != nil {
		return errors.Wrap(err, "failed to clear events")
	}
	if err := r.db.Exec("DELETE FROM error_logs").Error; err != nil {
		return errors.Wrap(err, "failed to clear error logs")
	}
	return nil
}
