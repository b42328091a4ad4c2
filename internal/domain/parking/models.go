package parking

import (
	"time"

	"github.com/google/uuid"
)

// EventKind tags which authorization scheme an event is evaluated against.
type EventKind string

const (
	KindPermit EventKind = "permit"
	KindTimed  EventKind = "timed"
)

type Verdict string

const (
	VerdictApproved      Verdict = "APPROVED"
	VerdictViolation     Verdict = "VIOLATION"
	VerdictLowConfidence Verdict = "REJECTED_LOW_CONFIDENCE"
)

type StayStatus string

const (
	StayActive  StayStatus = "ACTIVE"
	StayExpired StayStatus = "EXPIRED"
)

// EventPayload is a recognition result as submitted by the capture/OCR
// pipeline. Plate text and confidence arrive pre-computed and are treated
// as opaque inputs.
type EventPayload struct {
	PlateText  string                 `json:"plate_text"`
	Confidence float64                `json:"confidence"`
	Timestamp  time.Time              `json:"timestamp"`
	Zone       string                 `json:"zone"`
	Kind       EventKind              `json:"type"`
	ImageRef   string                 `json:"image_ref,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// RawEventPayload is the reduced test/demo submission form.
type RawEventPayload struct {
	PlateText string    `json:"plate_text"`
	Kind      EventKind `json:"type"`
}

// PermitFixture is one permit grant in a seed request.
type PermitFixture struct {
	PlateText string    `json:"plate_text"`
	Zone      string    `json:"zone"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	Holder    string    `json:"holder,omitempty"`
}

type PermitInfo struct {
	ID        uuid.UUID `json:"id"`
	PlateText string    `json:"plate_text"`
	Zone      string    `json:"zone"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	Holder    *string   `json:"holder,omitempty"`
}

type StayInfo struct {
	ID        uuid.UUID     `json:"id"`
	PlateText string        `json:"plate_text"`
	Zone      string        `json:"zone"`
	EntryTime time.Time     `json:"entry_time"`
	TimeLimit time.Duration `json:"time_limit"`
	Status    StayStatus    `json:"status"`
}

type EventInfo struct {
	ID         int64                  `json:"id"`
	PlateText  string                 `json:"plate_text"`
	RawPlate   string                 `json:"raw_plate"`
	Confidence float64                `json:"confidence"`
	Timestamp  time.Time              `json:"timestamp"`
	Zone       string                 `json:"zone"`
	Kind       EventKind              `json:"type"`
	ImageRef   *string                `json:"image_ref,omitempty"`
	Verdict    Verdict                `json:"verdict"`
	Message    string                 `json:"message,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// Decision is the engine's answer for one submitted event.
type Decision struct {
	Result  Verdict    `json:"result"`
	Message string     `json:"message"`
	Event   *EventInfo `json:"event,omitempty"`
}
