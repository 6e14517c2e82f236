package quiz

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates no quiz record exists for the requested identifier.
var ErrNotFound = eris.New("quiz record not found")

// MaxListLimit bounds the number of summaries returned by ListRecent.
const MaxListLimit = 50

// Repository defines persistence operations for quiz records.
type Repository interface {
	FindByAddress(ctx context.Context, address string) (*Record, error)
	CreateIfAbsent(ctx context.Context, record *Record) (*Record, bool, error)
	GetByID(ctx context.Context, id uint) (*Record, error)
	ListRecent(ctx context.Context, limit int) ([]Summary, error)
	DeleteByID(ctx context.Context, id uint) error
	CountRecords(ctx context.Context) (int64, error)
}

// GormRepository persists quiz records using a Gorm database connection.
type GormRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRepository constructs a Gorm-backed repository implementation.
func NewRepository(db *gorm.DB, logger *logrus.Logger) (*GormRepository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormRepository{db: db, logger: logger}, nil
}

var _ Repository = (*GormRepository)(nil)

// FindByAddress returns the record stored for address or nil when there is none.
func (r *GormRepository) FindByAddress(ctx context.Context, address string) (*Record, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return nil, eris.New("address is required")
	}

	var record Record
	err := r.db.WithContext(ctx).First(&record, "address = ?", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"address": trimmed}, err, "fetching quiz by address")
		return nil, eris.Wrapf(err, "fetching quiz by address: %s", trimmed)
	}

	return &record, nil
}

// CreateIfAbsent inserts record unless its address is already stored. The boolean reports
// whether a new row was written; when false the existing record is returned instead.
func (r *GormRepository) CreateIfAbsent(ctx context.Context, record *Record) (*Record, bool, error) {
	if record == nil {
		return nil, false, eris.New("record is nil")
	}

	record.Address = strings.TrimSpace(record.Address)
	if record.Address == "" {
		return nil, false, eris.New("record address is required")
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		r.logError(logrus.Fields{"address": record.Address}, result.Error, "creating quiz record")
		return nil, false, eris.Wrapf(result.Error, "creating quiz record: %s", record.Address)
	}

	if result.RowsAffected > 0 {
		return record, true, nil
	}

	existing, err := r.FindByAddress(ctx, record.Address)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		err := eris.Errorf("quiz record for %s vanished after insert conflict", record.Address)
		r.logError(logrus.Fields{"address": record.Address}, err, "resolving insert conflict")
		return nil, false, err
	}

	return existing, false, nil
}

// GetByID returns the record with id or nil when not found.
func (r *GormRepository) GetByID(ctx context.Context, id uint) (*Record, error) {
	var record Record
	err := r.db.WithContext(ctx).First(&record, id).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"id": id}, err, "fetching quiz by id")
		return nil, eris.Wrapf(err, "fetching quiz by id: %d", id)
	}

	return &record, nil
}

// ListRecent returns up to limit summaries, newest first.
func (r *GormRepository) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	summaries := make([]Summary, 0, limit)
	err := r.db.WithContext(ctx).
		Model(&Record{}).
		Select("id", "address", "title", "created_at").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		r.logError(logrus.Fields{"limit": limit}, err, "listing quiz records")
		return nil, eris.Wrap(err, "listing quiz records")
	}

	return summaries, nil
}

// DeleteByID removes the record with id, returning ErrNotFound when nothing was deleted.
func (r *GormRepository) DeleteByID(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&Record{}, id)
	if result.Error != nil {
		r.logError(logrus.Fields{"id": id}, result.Error, "deleting quiz record")
		return eris.Wrapf(result.Error, "deleting quiz record: %d", id)
	}

	if result.RowsAffected == 0 {
		return eris.Wrapf(ErrNotFound, "deleting quiz record: %d", id)
	}

	return nil
}

// CountRecords returns the total number of stored quiz records.
func (r *GormRepository) CountRecords(ctx context.Context) (int64, error) {
	var count int64

	if err := r.db.WithContext(ctx).Model(&Record{}).Count(&count).Error; err != nil {
		r.logError(nil, err, "counting quiz records")
		return 0, eris.Wrap(err, "counting quiz records")
	}

	return count, nil
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil || err == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
