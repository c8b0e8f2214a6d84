package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/streampulse/internal/models"
)

// streamRepo implements StreamRepository using GORM.
type streamRepo struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

// NewStreamRepository creates a new StreamRepository with the default ledger
// retention.
func NewStreamRepository(db *gorm.DB) *streamRepo {
	return &streamRepo{db: db, retention: models.ErrorRetention, now: time.Now}
}

// WithErrorRetention overrides how long ledger entries survive before Save
// ages them out. Non-positive values keep the default.
func (r *streamRepo) WithErrorRetention(retention time.Duration) *streamRepo {
	if retention > 0 {
		r.retention = retention
	}
	return r
}

// Create creates a new stream record.
func (r *streamRepo) Create(ctx context.Context, stream *models.Stream) error {
	if err := stream.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(stream).Error; err != nil {
		return fmt.Errorf("creating stream: %w", err)
	}
	return nil
}

// GetByID retrieves a stream by ID. Returns nil when not found.
func (r *streamRepo) GetByID(ctx context.Context, id models.ULID) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream by ID: %w", err)
	}
	return &stream, nil
}

// GetByURL retrieves a stream by its source URL. Returns nil when not found.
func (r *streamRepo) GetByURL(ctx context.Context, url string) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).Where("url = ?", url).First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream by URL: %w", err)
	}
	return &stream, nil
}

// GetAll retrieves all stream records.
func (r *streamRepo) GetAll(ctx context.Context) ([]*models.Stream, error) {
	var streams []*models.Stream
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&streams).Error; err != nil {
		return nil, fmt.Errorf("getting all streams: %w", err)
	}
	return streams, nil
}

// Save persists the record guarded by its version counter. The update only
// applies when the stored version still matches the one the caller loaded;
// otherwise ErrVersionConflict is returned and the record is left unchanged.
// Expired and malformed ledger entries are pruned before writing.
func (r *streamRepo) Save(ctx context.Context, stream *models.Stream) error {
	stream.StreamErrors = stream.StreamErrors.PruneBefore(r.now().Add(-r.retention))

	expected := stream.Version
	stream.Version = expected + 1

	res := r.db.WithContext(ctx).
		Model(&models.Stream{}).
		Where("id = ? AND version = ?", stream.ID, expected).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(stream)
	if res.Error != nil {
		stream.Version = expected
		return fmt.Errorf("saving stream: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		stream.Version = expected
		return ErrVersionConflict
	}
	return nil
}

// Delete hard-deletes a stream by ID.
// Uses Unscoped so the unique URL constraint doesn't conflict when
// re-creating a stream with the same URL.
func (r *streamRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.Stream{}).Error; err != nil {
		return fmt.Errorf("deleting stream: %w", err)
	}
	return nil
}

// Ensure streamRepo implements StreamRepository at compile time.
var _ StreamRepository = (*streamRepo)(nil)
