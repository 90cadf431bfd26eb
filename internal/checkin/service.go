package checkin

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/credential"
	"github.com/venueworks/ticketing-backend/internal/models"
)

var (
	// ErrNotCheckedIn is returned when undoing a check-in that never happened.
	ErrNotCheckedIn = errors.New("registration is not checked in")

	// ErrWrongEvent is returned when a ticket belongs to a different event
	// than the one being scanned at.
	ErrWrongEvent = errors.New("ticket belongs to a different event")
)

// bulkWorkers bounds the fan-out of a bulk check-in.
const bulkWorkers = 8

// Store is the persistence surface the check-in service needs.
type Store interface {
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	MarkCheckedIn(ctx context.Context, entry *models.CheckinEntry, force bool) (bool, error)
	ClearCheckedIn(ctx context.Context, entry *models.CheckinEntry) (bool, error)
	Audit(ctx context.Context, regID uuid.UUID) ([]models.CheckinEntry, error)
}

// Actor identifies the staff member performing a check-in action.
type Actor struct {
	ID   uuid.UUID
	Name string
}

// Result is the outcome of checking in one registration. Checking in an
// already-checked-in registration succeeds without a state change.
type Result struct {
	RegistrationID   uuid.UUID `json:"registration_id"`
	CheckedIn        bool      `json:"checked_in"`
	AlreadyCheckedIn bool      `json:"already_checked_in"`
}

// BulkItem is one entry of a bulk check-in response.
type BulkItem struct {
	RegistrationID   uuid.UUID `json:"registration_id"`
	Success          bool      `json:"success"`
	AlreadyCheckedIn bool      `json:"already_checked_in,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// BulkSummary aggregates a bulk check-in. An already-checked-in entry counts
// toward Failed, with AlreadyCheckedIn tracking how many of the failures were
// that rather than a hard error.
type BulkSummary struct {
	Total            int        `json:"total"`
	Successful       int        `json:"successful"`
	Failed           int        `json:"failed"`
	AlreadyCheckedIn int        `json:"already_checked_in"`
	Results          []BulkItem `json:"results"`
}

// Service runs the check-in state machine over registrations.
type Service struct {
	store  Store
	codec  credential.Codec
	logger *zap.Logger
}

// NewService creates a check-in service.
func NewService(store Store, codec credential.Codec, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, codec: codec, logger: logger}
}

// CheckIn marks a registration as checked in at the given event. Idempotent:
// a second check-in succeeds with AlreadyCheckedIn set and no audit entry.
// force performs the transition and appends a fresh audit entry even when the
// registration is already checked in.
func (s *Service) CheckIn(ctx context.Context, eventID, regID uuid.UUID, actor Actor, note string, force bool) (*Result, error) {
	return s.checkIn(ctx, eventID, regID, actor, models.CheckinActionCheckIn, note, force)
}

func (s *Service) checkIn(ctx context.Context, eventID, regID uuid.UUID, actor Actor, action, note string, force bool) (*Result, error) {
	reg, err := s.store.GetRegistration(ctx, regID)
	if err != nil {
		return nil, err
	}
	if reg.EventID != eventID {
		return nil, ErrWrongEvent
	}
	updated, err := s.store.MarkCheckedIn(ctx, &models.CheckinEntry{
		RegistrationID: regID,
		Action:         action,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		Note:           note,
	}, force)
	if err != nil {
		return nil, err
	}
	return &Result{RegistrationID: regID, CheckedIn: true, AlreadyCheckedIn: !updated}, nil
}

// Undo reverses a check-in, appending an undo audit entry. Returns
// ErrNotCheckedIn when there is nothing to reverse.
func (s *Service) Undo(ctx context.Context, eventID, regID uuid.UUID, actor Actor, note string) error {
	reg, err := s.store.GetRegistration(ctx, regID)
	if err != nil {
		return err
	}
	if reg.EventID != eventID {
		return ErrWrongEvent
	}
	updated, err := s.store.ClearCheckedIn(ctx, &models.CheckinEntry{
		RegistrationID: regID,
		Action:         models.CheckinActionCheckInUndo,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		Note:           note,
	})
	if err != nil {
		return err
	}
	if !updated {
		return ErrNotCheckedIn
	}
	return nil
}

// Scan verifies a ticket credential and checks in the registration it names.
func (s *Service) Scan(ctx context.Context, eventID uuid.UUID, token string, actor Actor) (*Result, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.EventID != eventID {
		return nil, ErrWrongEvent
	}
	return s.CheckIn(ctx, eventID, claims.RegistrationID, actor, "", false)
}

// BulkCheckIn checks in many registrations concurrently with a bounded worker
// pool. One failure never aborts the batch; every input ID gets a per-item
// result in input order. Entries that were already checked in count as
// failures in the aggregate, tracked separately from hard errors.
func (s *Service) BulkCheckIn(ctx context.Context, eventID uuid.UUID, regIDs []uuid.UUID, actor Actor, note string) *BulkSummary {
	summary := &BulkSummary{
		Total:   len(regIDs),
		Results: make([]BulkItem, len(regIDs)),
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, bulkWorkers)
	for i, id := range regIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := s.checkIn(ctx, eventID, id, actor, models.CheckinActionBulkCheckIn, note, false)
			if err != nil {
				summary.Results[i] = BulkItem{RegistrationID: id, Success: false, Error: err.Error()}
				return
			}
			summary.Results[i] = BulkItem{
				RegistrationID:   id,
				Success:          !res.AlreadyCheckedIn,
				AlreadyCheckedIn: res.AlreadyCheckedIn,
			}
		}(i, id)
	}
	wg.Wait()

	for _, r := range summary.Results {
		switch {
		case r.Success:
			summary.Successful++
		case r.AlreadyCheckedIn:
			summary.Failed++
			summary.AlreadyCheckedIn++
		default:
			summary.Failed++
		}
	}
	return summary
}

// Audit returns the check-in audit trail of a registration at the event.
func (s *Service) Audit(ctx context.Context, eventID, regID uuid.UUID) ([]models.CheckinEntry, error) {
	reg, err := s.store.GetRegistration(ctx, regID)
	if err != nil {
		return nil, err
	}
	if reg.EventID != eventID {
		return nil, ErrWrongEvent
	}
	return s.store.Audit(ctx, regID)
}
