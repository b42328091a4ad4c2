package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Event struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	PlateText  string `gorm:"not null;index:idx_events_plate_text"`
	RawPlate   string `gorm:"not null"`
	Confidence float64
	Timestamp  time.Time `gorm:"not null;index:idx_events_timestamp"`
	Zone       string    `gorm:"not null"`
	Kind       string    `gorm:"not null"`
	ImageRef   *string
	Verdict    string `gorm:"not null"`
	Message    string
	Extra      datatypes.JSON
	CreatedAt  time.Time
}

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: tx}
}

// Append inserts an event and fills in its assigned identity. Identities are
// monotonically increasing; insertion order is identity order.
func (r *EventRepository) Append(ctx context.Context, event *Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListRecent returns up to limit events, most recent insertion first.
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	var events []Event
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// RemoveLast deletes the event with the highest identity and returns it.
// Returns nil on an empty log. The select and delete run in one transaction
// so concurrent appends cannot slip between them.
func (r *EventRepository) RemoveLast(ctx context.Context) (*Event, error) {
	var removed *Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event Event
		if err := tx.Order("id DESC").First(&event).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if err := tx.Delete(&Event{}, event.ID).Error; err != nil {
			return err
		}
		removed = &event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
