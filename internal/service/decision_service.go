package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"parkwatch/internal/domain/parking"
	"parkwatch/internal/notify"
	"parkwatch/internal/repository"
	"parkwatch/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage unavailable")
)

// Options are the decision engine knobs, filled from config.
type Options struct {
	ConfidenceThreshold float64
	TimedLimit          time.Duration
	DefaultZone         string
	LockTimeout         time.Duration
}

// DecisionService orchestrates confidence screening, permit lookup and
// timed-stay evaluation into one verdict per submitted event. It owns no
// persistent state of its own.
type DecisionService struct {
	db      *gorm.DB
	permits *repository.PermitRepository
	stays   *repository.StayRepository
	events  *repository.EventRepository
	hub     *notify.Hub
	locks   *keyLock
	opts    Options
	log     zerolog.Logger
}

func NewDecisionService(
	db *gorm.DB,
	permits *repository.PermitRepository,
	stays *repository.StayRepository,
	events *repository.EventRepository,
	hub *notify.Hub,
	opts Options,
	log zerolog.Logger,
) *DecisionService {
	if opts.ConfidenceThreshold == 0 {
		opts.ConfidenceThreshold = 0.95
	}
	if opts.TimedLimit == 0 {
		opts.TimedLimit = 2 * time.Hour
	}
	if opts.DefaultZone == "" {
		opts.DefaultZone = "default"
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = 5 * time.Second
	}
	return &DecisionService{
		db:      db,
		permits: permits,
		stays:   stays,
		events:  events,
		hub:     hub,
		locks:   newKeyLock(),
		opts:    opts,
		log:     log,
	}
}

// ProcessOCREvent validates a submitted recognition event and runs it through
// the decision flow. Validation failures reject the request before any state
// is touched.
func (s *DecisionService) ProcessOCREvent(ctx context.Context, payload parking.EventPayload) (*parking.Decision, error) {
	plate := utils.NormalizePlate(payload.PlateText)
	if plate == "" {
		return nil, fmt.Errorf("%w: plate_text cannot be empty after normalization", ErrInvalidInput)
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidInput)
	}
	switch payload.Kind {
	case parking.KindPermit, parking.KindTimed:
	default:
		return nil, fmt.Errorf("%w: type must be %q or %q", ErrInvalidInput, parking.KindPermit, parking.KindTimed)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	if payload.Zone == "" {
		payload.Zone = s.opts.DefaultZone
	}

	return s.decide(ctx, plate, payload)
}

// ProcessRawEvent is the test/demo submission path: a bare plate and type,
// everything else defaulted, returning the stored event.
func (s *DecisionService) ProcessRawEvent(ctx context.Context, raw parking.RawEventPayload) (*parking.EventInfo, error) {
	decision, err := s.ProcessOCREvent(ctx, parking.EventPayload{
		PlateText:  raw.PlateText,
		Confidence: 1.0,
		Kind:       raw.Kind,
	})
	if err != nil {
		return nil, err
	}
	return decision.Event, nil
}

func (s *DecisionService) decide(ctx context.Context, plate string, payload parking.EventPayload) (*parking.Decision, error) {
	// Confidence gate first: a low-confidence reading never consults the
	// registry and never mutates a stay, but the event itself is logged.
	if payload.Confidence < s.opts.ConfidenceThreshold {
		msg := fmt.Sprintf("confidence %.2f below threshold %.2f", payload.Confidence, s.opts.ConfidenceThreshold)
		return s.persistDecision(ctx, s.db, plate, payload, parking.VerdictLowConfidence, msg)
	}

	if payload.Kind == parking.KindPermit {
		permit, err := s.permits.LookupActive(ctx, plate, payload.Zone, payload.Timestamp)
		if err != nil {
			s.log.Error().Err(err).Str("plate", plate).Str("zone", payload.Zone).Msg("permit lookup failed")
			return nil, fmt.Errorf("%w: permit lookup: %v", ErrStorage, err)
		}
		if permit != nil {
			msg := fmt.Sprintf("active permit for %s in zone %s", plate, payload.Zone)
			return s.persistDecision(ctx, s.db, plate, payload, parking.VerdictApproved, msg)
		}
		msg := fmt.Sprintf("no active permit for %s in zone %s", plate, payload.Zone)
		return s.persistDecision(ctx, s.db, plate, payload, parking.VerdictViolation, msg)
	}

	return s.decideTimed(ctx, plate, payload)
}

// decideTimed runs the per-key state machine. The read-evaluate-write
// sequence is a critical section: serialized per (plate, zone), with the stay
// mutation and the event append committed in one transaction.
func (s *DecisionService) decideTimed(ctx context.Context, plate string, payload parking.EventPayload) (*parking.Decision, error) {
	release, err := s.locks.acquire(ctx, plate+"/"+payload.Zone, s.opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var decision *parking.Decision
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stays := s.stays.WithTx(tx)
		stay, err := stays.GetForKey(ctx, plate, payload.Zone)
		if err != nil {
			return err
		}

		var verdict parking.Verdict
		var msg string
		switch {
		case stay == nil:
			stay = &repository.TimedStay{
				ID:        uuid.New(),
				PlateText: plate,
				Zone:      payload.Zone,
				EntryTime: payload.Timestamp,
				TimeLimit: s.opts.TimedLimit,
				Status:    string(parking.StayActive),
			}
			if err := stays.Create(ctx, stay); err != nil {
				return err
			}
			verdict = parking.VerdictApproved
			msg = fmt.Sprintf("timed stay started for %s in zone %s (limit %s)", plate, payload.Zone, s.opts.TimedLimit)

		case stay.Status == string(parking.StayExpired):
			// Expired stays are kept for audit; the plate stays flagged
			// until an explicit reset.
			verdict = parking.VerdictViolation
			msg = fmt.Sprintf("timed stay for %s in zone %s already expired", plate, payload.Zone)

		default:
			elapsed := payload.Timestamp.Sub(stay.EntryTime)
			if elapsed <= stay.TimeLimit {
				// closed interval: elapsed == limit is still approved
				verdict = parking.VerdictApproved
				msg = fmt.Sprintf("within time limit (%s of %s)", elapsed, stay.TimeLimit)
			} else {
				if err := stays.MarkExpired(ctx, stay.ID); err != nil {
					return err
				}
				verdict = parking.VerdictViolation
				msg = fmt.Sprintf("time limit exceeded (%s over limit %s)", elapsed-stay.TimeLimit, stay.TimeLimit)
			}
		}

		decision, err = s.appendEvent(ctx, tx, plate, payload, verdict, msg)
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Str("plate", plate).Str("zone", payload.Zone).Msg("timed-stay evaluation failed")
		return nil, fmt.Errorf("%w: timed-stay evaluation: %v", ErrStorage, err)
	}

	s.publish("append", decision.Event.ID)
	return decision, nil
}

// persistDecision logs the event for verdicts computed without a stay
// mutation (low confidence and permit decisions).
func (s *DecisionService) persistDecision(ctx context.Context, tx *gorm.DB, plate string, payload parking.EventPayload, verdict parking.Verdict, msg string) (*parking.Decision, error) {
	decision, err := s.appendEvent(ctx, tx, plate, payload, verdict, msg)
	if err != nil {
		s.log.Error().Err(err).Str("plate", plate).Msg("failed to append event")
		return nil, fmt.Errorf("%w: event append: %v", ErrStorage, err)
	}
	s.publish("append", decision.Event.ID)
	return decision, nil
}

func (s *DecisionService) appendEvent(ctx context.Context, tx *gorm.DB, plate string, payload parking.EventPayload, verdict parking.Verdict, msg string) (*parking.Decision, error) {
	event := &repository.Event{
		PlateText:  plate,
		RawPlate:   payload.PlateText,
		Confidence: payload.Confidence,
		Timestamp:  payload.Timestamp,
		Zone:       payload.Zone,
		Kind:       string(payload.Kind),
		Verdict:    string(verdict),
		Message:    msg,
	}
	if payload.ImageRef != "" {
		event.ImageRef = &payload.ImageRef
	}
	if len(payload.Extra) > 0 {
		raw, err := json.Marshal(payload.Extra)
		if err != nil {
			return nil, err
		}
		event.Extra = raw
	}

	if err := s.events.WithTx(tx).Append(ctx, event); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("event_id", event.ID).
		Str("plate", plate).
		Str("zone", payload.Zone).
		Str("kind", string(payload.Kind)).
		Str("verdict", string(verdict)).
		Float64("confidence", payload.Confidence).
		Msg("event decided")

	info := toEventInfo(event)
	return &parking.Decision{Result: verdict, Message: msg, Event: &info}, nil
}

// ListEvents returns up to limit events, newest first.
func (s *DecisionService) ListEvents(ctx context.Context, limit int) ([]parking.EventInfo, error) {
	events, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", ErrStorage, err)
	}
	result := make([]parking.EventInfo, 0, len(events))
	for i := range events {
		result = append(result, toEventInfo(&events[i]))
	}
	return result, nil
}

// RemoveLastEvent removes the most recently inserted event. Returns nil on an
// empty log; that is not an error.
func (s *DecisionService) RemoveLastEvent(ctx context.Context) (*parking.EventInfo, error) {
	event, err := s.events.RemoveLast(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: remove last event: %v", ErrStorage, err)
	}
	if event == nil {
		return nil, nil
	}
	s.log.Info().Int64("event_id", event.ID).Msg("removed last event")
	s.publish("remove", event.ID)
	info := toEventInfo(event)
	return &info, nil
}

// SeedPermits validates and bulk-loads permit fixtures. Re-seeding an
// identical fixture loads nothing new.
func (s *DecisionService) SeedPermits(ctx context.Context, fixtures []parking.PermitFixture) (int64, error) {
	permits := make([]repository.Permit, 0, len(fixtures))
	for i, f := range fixtures {
		plate := utils.NormalizePlate(f.PlateText)
		if plate == "" {
			return 0, fmt.Errorf("%w: fixture %d: plate_text cannot be empty", ErrInvalidInput, i)
		}
		if f.Zone == "" {
			return 0, fmt.Errorf("%w: fixture %d: zone is required", ErrInvalidInput, i)
		}
		if !f.ValidFrom.Before(f.ValidTo) {
			return 0, fmt.Errorf("%w: fixture %d: valid_from must precede valid_to", ErrInvalidInput, i)
		}
		p := repository.Permit{
			ID:        uuid.New(),
			PlateText: plate,
			Zone:      f.Zone,
			ValidFrom: f.ValidFrom,
			ValidTo:   f.ValidTo,
		}
		if f.Holder != "" {
			holder := f.Holder
			p.Holder = &holder
		}
		permits = append(permits, p)
	}

	loaded, err := s.permits.Seed(ctx, permits)
	if err != nil {
		s.log.Error().Err(err).Msg("permit seed failed")
		return 0, fmt.Errorf("%w: permit seed: %v", ErrStorage, err)
	}
	s.log.Info().Int64("loaded", loaded).Int("submitted", len(fixtures)).Msg("permits seeded")
	return loaded, nil
}

func (s *DecisionService) ListPermits(ctx context.Context) ([]parking.PermitInfo, error) {
	permits, err := s.permits.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list permits: %v", ErrStorage, err)
	}
	result := make([]parking.PermitInfo, 0, len(permits))
	for _, p := range permits {
		result = append(result, parking.PermitInfo{
			ID:        p.ID,
			PlateText: p.PlateText,
			Zone:      p.Zone,
			ValidFrom: p.ValidFrom,
			ValidTo:   p.ValidTo,
			Holder:    p.Holder,
		})
	}
	return result, nil
}

func (s *DecisionService) ListStays(ctx context.Context) ([]parking.StayInfo, error) {
	stays, err := s.stays.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list stays: %v", ErrStorage, err)
	}
	result := make([]parking.StayInfo, 0, len(stays))
	for _, st := range stays {
		result = append(result, parking.StayInfo{
			ID:        st.ID,
			PlateText: st.PlateText,
			Zone:      st.Zone,
			EntryTime: st.EntryTime,
			TimeLimit: st.TimeLimit,
			Status:    parking.StayStatus(st.Status),
		})
	}
	return result, nil
}

// ResetStays deletes every timed stay. Administrative path only.
func (s *DecisionService) ResetStays(ctx context.Context) (int64, error) {
	cleared, err := s.stays.ResetAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("timed-stay reset failed")
		return 0, fmt.Errorf("%w: timed-stay reset: %v", ErrStorage, err)
	}
	s.log.Info().Int64("cleared", cleared).Msg("timed stays reset")
	return cleared, nil
}

func (s *DecisionService) publish(op string, eventID int64) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(notify.Change{Op: op, EventID: eventID, At: time.Now().UTC()})
}

func toEventInfo(e *repository.Event) parking.EventInfo {
	info := parking.EventInfo{
		ID:         e.ID,
		PlateText:  e.PlateText,
		RawPlate:   e.RawPlate,
		Confidence: e.Confidence,
		Timestamp:  e.Timestamp,
		Zone:       e.Zone,
		Kind:       parking.EventKind(e.Kind),
		ImageRef:   e.ImageRef,
		Verdict:    parking.Verdict(e.Verdict),
		Message:    e.Message,
	}
	if len(e.Extra) > 0 {
		var extra map[string]interface{}
		if err := json.Unmarshal(e.Extra, &extra); err == nil {
			info.Extra = extra
		}
	}
	return info
}
