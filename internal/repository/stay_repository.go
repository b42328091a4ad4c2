package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TimedStay struct {
	ID        uuid.UUID     `gorm:"type:uuid;primaryKey"`
	PlateText string        `gorm:"not null;uniqueIndex:ux_timed_stays_key,priority:1"`
	Zone      string        `gorm:"not null;uniqueIndex:ux_timed_stays_key,priority:2"`
	EntryTime time.Time     `gorm:"not null"`
	TimeLimit time.Duration `gorm:"not null"`
	Status    string        `gorm:"not null;default:ACTIVE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type StayRepository struct {
	db *gorm.DB
}

func NewStayRepository(db *gorm.DB) *StayRepository {
	return &StayRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *StayRepository) WithTx(tx *gorm.DB) *StayRepository {
	return &StayRepository{db: tx}
}

// GetForKey returns the stay for a (plate, zone) key regardless of status,
// or nil when the key has never been seen (or was reset).
func (r *StayRepository) GetForKey(ctx context.Context, plate, zone string) (*TimedStay, error) {
	var stay TimedStay
	err := r.db.WithContext(ctx).
		Where("plate_text = ? AND zone = ?", plate, zone).
		First(&stay).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stay, nil
}

func (r *StayRepository) Create(ctx context.Context, stay *TimedStay) error {
	if stay.ID == uuid.Nil {
		stay.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(stay).Error
}

// MarkExpired flips a stay to EXPIRED. The row is retained for audit.
func (r *StayRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&TimedStay{}).
		Where("id = ?", id).
		Update("status", "EXPIRED").Error
}

func (r *StayRepository) List(ctx context.Context) ([]TimedStay, error) {
	var stays []TimedStay
	err := r.db.WithContext(ctx).
		Order("entry_time DESC").
		Find(&stays).Error
	return stays, err
}

// ResetAll deletes every stay unconditionally. Administrative path only.
func (r *StayRepository) ResetAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&TimedStay{})
	return res.RowsAffected, res.Error
}
