package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Permit struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlateText string    `gorm:"not null;uniqueIndex:ux_permits_grant,priority:1;index:idx_permits_plate_zone,priority:1"`
	Zone      string    `gorm:"not null;uniqueIndex:ux_permits_grant,priority:2;index:idx_permits_plate_zone,priority:2"`
	ValidFrom time.Time `gorm:"not null;uniqueIndex:ux_permits_grant,priority:3"`
	ValidTo   time.Time `gorm:"not null;uniqueIndex:ux_permits_grant,priority:4"`
	Holder    *string
	CreatedAt time.Time
}

type PermitRepository struct {
	db *gorm.DB
}

func NewPermitRepository(db *gorm.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

// Seed bulk-loads permit grants. Re-seeding an identical fixture is a no-op:
// rows conflicting on (plate, zone, valid_from, valid_to) are skipped.
// Returns the number of rows actually inserted.
func (r *PermitRepository) Seed(ctx context.Context, permits []Permit) (int64, error) {
	if len(permits) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "plate_text"}, {Name: "zone"}, {Name: "valid_from"}, {Name: "valid_to"},
			},
			DoNothing: true,
		}).
		Create(&permits)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// LookupActive returns the permit covering (plate, zone) at the given
// instant, or nil when none matches. When several validity windows overlap,
// the most recently issued one wins.
func (r *PermitRepository) LookupActive(ctx context.Context, plate, zone string, at time.Time) (*Permit, error) {
	var permit Permit
	err := r.db.WithContext(ctx).
		Where("plate_text = ? AND zone = ? AND valid_from <= ? AND valid_to >= ?", plate, zone, at, at).
		Order("valid_from DESC").
		First(&permit).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &permit, nil
}

func (r *PermitRepository) List(ctx context.Context) ([]Permit, error) {
	var permits []Permit
	err := r.db.WithContext(ctx).
		Order("plate_text, zone, valid_from").
		Find(&permits).Error
	return permits, err
}
