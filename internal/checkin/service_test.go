package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venueworks/ticketing-backend/internal/credential"
	"github.com/venueworks/ticketing-backend/internal/models"
)

type fakeStore struct {
	mu    sync.Mutex
	regs  map[uuid.UUID]*models.Registration
	audit []models.CheckinEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{regs: make(map[uuid.UUID]*models.Registration)}
}

func (s *fakeStore) addRegistration(eventID uuid.UUID, checkedIn bool) uuid.UUID {
	id := uuid.New()
	s.regs[id] = &models.Registration{
		ID: id, EventID: eventID, UserID: uuid.New(),
		Status:    models.RegistrationStatusConfirmed,
		CheckedIn: checkedIn,
	}
	return id
}

func (s *fakeStore) GetRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (s *fakeStore) MarkCheckedIn(_ context.Context, entry *models.CheckinEntry, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[entry.RegistrationID]
	if !ok {
		return false, ErrNotFound
	}
	if reg.CheckedIn && !force {
		return false, nil
	}
	now := time.Now()
	reg.CheckedIn = true
	reg.CheckedInAt = &now
	reg.CheckedInBy = &entry.ActorID
	entry.ID = uuid.New()
	entry.CreatedAt = now
	s.audit = append(s.audit, *entry)
	return true, nil
}

func (s *fakeStore) ClearCheckedIn(_ context.Context, entry *models.CheckinEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[entry.RegistrationID]
	if !ok {
		return false, ErrNotFound
	}
	if !reg.CheckedIn {
		return false, nil
	}
	reg.CheckedIn = false
	reg.CheckedInAt = nil
	reg.CheckedInBy = nil
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	s.audit = append(s.audit, *entry)
	return true, nil
}

func (s *fakeStore) Audit(_ context.Context, regID uuid.UUID) ([]models.CheckinEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CheckinEntry
	for _, e := range s.audit {
		if e.RegistrationID == regID {
			out = append(out, e)
		}
	}
	return out, nil
}

var staff = Actor{ID: uuid.New(), Name: "Door Staff"}

func TestCheckInIsIdempotent(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	regID := store.addRegistration(eventID, false)
	svc := NewService(store, credential.NewJWTCodec("s"), nil)

	res, err := svc.CheckIn(context.Background(), eventID, regID, staff, "", false)
	require.NoError(t, err)
	assert.True(t, res.CheckedIn)
	assert.False(t, res.AlreadyCheckedIn)

	res, err = svc.CheckIn(context.Background(), eventID, regID, staff, "", false)
	require.NoError(t, err, "second scan succeeds")
	assert.True(t, res.CheckedIn)
	assert.True(t, res.AlreadyCheckedIn)

	entries, err := store.Audit(context.Background(), regID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the no-op scan leaves no audit entry")
	assert.Equal(t, models.CheckinActionCheckIn, entries[0].Action)
	assert.Equal(t, staff.ID, entries[0].ActorID)
}

func TestCheckInWrongEvent(t *testing.T) {
	store := newFakeStore()
	regID := store.addRegistration(uuid.New(), false)
	svc := NewService(store, credential.NewJWTCodec("s"), nil)

	_, err := svc.CheckIn(context.Background(), uuid.New(), regID, staff, "", false)
	assert.ErrorIs(t, err, ErrWrongEvent)
}

func TestCheckInUnknownRegistration(t *testing.T) {
	svc := NewService(newFakeStore(), credential.NewJWTCodec("s"), nil)
	_, err := svc.CheckIn(context.Background(), uuid.New(), uuid.New(), staff, "", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckInNoteRecorded(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	regID := store.addRegistration(eventID, false)
	svc := NewService(store, credential.NewJWTCodec("s"), nil)

	_, err := svc.CheckIn(context.Background(), eventID, regID, staff, "VIP entrance", false)
	require.NoError(t, err)

	entries, err := store.Audit(context.Background(), regID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "VIP entrance", entries[0].Note)
}

func TestCheckInForce(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	regID := store.addRegistration(eventID, false)
	svc := NewService(store, credential.NewJWTCodec("s"), nil)

	_, err := svc.CheckIn(context.Background(), eventID, regID, staff, "", false)
	require.NoError(t, err)

	res, err := svc.CheckIn(context.Background(), eventID, regID, staff, "badge reprint", true)
	require.NoError(t, err)
	assert.True(t, res.CheckedIn)
	assert.False(t, res.AlreadyCheckedIn, "force performs a fresh transition")

	entries, err := store.Audit(context.Background(), regID)
	require.NoError(t, err)
	require.Len(t, entries, 2, "the forced check-in still audits")
	assert.Equal(t, models.CheckinActionCheckIn, entries[1].Action)
	assert.Equal(t, "badge reprint", entries[1].Note)
}

func TestUndo(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	regID := store.addRegistration(eventID, false)
	svc := NewService(store, credential.NewJWTCodec("s"), nil)

	t.Run("nothing to undo", func(t *testing.T) {
		err := svc.Undo(context.Background(), eventID, regID, staff, "")
		assert.ErrorIs(t, err, ErrNotCheckedIn)
	})

	t.Run("undo reverses and audits", func(t *testing.T) {
		_, err := svc.CheckIn(context.Background(), eventID, regID, staff, "", false)
		require.NoError(t, err)

		err = svc.Undo(context.Background(), eventID, regID, staff, "scanned wrong attendee")
		require.NoError(t, err)

		reg, err := store.GetRegistration(context.Background(), regID)
		require.NoError(t, err)
		assert.False(t, reg.CheckedIn)
		assert.Nil(t, reg.CheckedInAt)

		entries, err := svc.Audit(context.Background(), eventID, regID)
		require.NoError(t, err)
		require.Len(t, entries, 2, "the trail keeps both actions")
		assert.Equal(t, models.CheckinActionCheckIn, entries[0].Action)
		assert.Equal(t, models.CheckinActionCheckInUndo, entries[1].Action)
		assert.Equal(t, "scanned wrong attendee", entries[1].Note)
	})

	t.Run("re-check-in after undo", func(t *testing.T) {
		res, err := svc.CheckIn(context.Background(), eventID, regID, staff, "", false)
		require.NoError(t, err)
		assert.False(t, res.AlreadyCheckedIn)
	})
}

func TestScan(t *testing.T) {
	codec := credential.NewJWTCodec("scan-secret")
	store := newFakeStore()
	eventID := uuid.New()
	regID := store.addRegistration(eventID, false)
	svc := NewService(store, codec, nil)

	token, err := codec.Issue(credential.TicketClaims{
		RegistrationID: regID,
		EventID:        eventID,
		UserID:         uuid.New(),
		Quantity:       1,
	})
	require.NoError(t, err)

	t.Run("valid credential checks in", func(t *testing.T) {
		res, err := svc.Scan(context.Background(), eventID, token, staff)
		require.NoError(t, err)
		assert.True(t, res.CheckedIn)
	})

	t.Run("invalid credential rejected", func(t *testing.T) {
		_, err := svc.Scan(context.Background(), eventID, "garbage", staff)
		assert.ErrorIs(t, err, credential.ErrInvalidCredential)
	})

	t.Run("credential for another event rejected", func(t *testing.T) {
		_, err := svc.Scan(context.Background(), uuid.New(), token, staff)
		assert.ErrorIs(t, err, ErrWrongEvent)
	})
}

func TestBulkCheckIn(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()

	fresh1 := store.addRegistration(eventID, false)
	fresh2 := store.addRegistration(eventID, false)
	fresh3 := store.addRegistration(eventID, false)
	already := store.addRegistration(eventID, true)
	wrongEvent := store.addRegistration(uuid.New(), false)
	svc := NewService(store, credential.NewJWTCodec("s"), nil)

	ids := []uuid.UUID{fresh1, fresh2, fresh3, already, wrongEvent}
	summary := svc.BulkCheckIn(context.Background(), eventID, ids, staff, "gate B")

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 3, summary.Successful)
	assert.Equal(t, 2, summary.Failed, "already-checked-in counts as a failure")
	assert.Equal(t, 1, summary.AlreadyCheckedIn)

	require.Len(t, summary.Results, 5)
	for i, id := range ids {
		assert.Equal(t, id, summary.Results[i].RegistrationID, "results keep input order")
	}
	assert.False(t, summary.Results[3].Success)
	assert.True(t, summary.Results[3].AlreadyCheckedIn)
	assert.False(t, summary.Results[4].Success)
	assert.NotEmpty(t, summary.Results[4].Error)

	entries, err := store.Audit(context.Background(), fresh1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CheckinActionBulkCheckIn, entries[0].Action)
	assert.Equal(t, "gate B", entries[0].Note)
}
