package repo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

// MemoryStore keeps everything in process behind a single mutex, which makes
// every method one transaction. It backs tests and local runs without Postgres.
type MemoryStore struct {
	mu         sync.Mutex
	events     map[string]model.Event
	recipients map[string]model.Recipient
	records    []model.DeliveryRecord
	users      map[string]model.User
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:     map[string]model.Event{},
		recipients: map[string]model.Recipient{},
		users:      map[string]model.User{},
		now:        time.Now,
	}
}

func (s *MemoryStore) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, ok := s.events[e.ID]; ok {
		return model.Event{}, fmt.Errorf("event %s: %w", e.ID, ErrConflict)
	}
	now := s.now().UTC()
	e.DisplayDate = model.DateOf(e.DisplayDate)
	e.CreatedAt, e.UpdatedAt = now, now
	s.events[e.ID] = e
	return e, nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b model.Event) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) EventsOn(ctx context.Context, date time.Time) ([]model.Event, error) {
	day := model.DateOf(date)
	all, _ := s.ListEvents(ctx)

	var out []model.Event
	for _, e := range all {
		if e.DisplayDate.Equal(day) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, id string, patch model.EventPatch, updatedBy string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if patch.Reschedules(e) {
		s.purgeLocked(id)
	}
	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.DisplayDate != nil {
		e.DisplayDate = model.DateOf(*patch.DisplayDate)
	}
	if patch.Message != nil {
		e.Message = *patch.Message
	}
	e.UpdatedBy = updatedBy
	e.UpdatedAt = s.now().UTC()
	s.events[id] = e
	return e, nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	s.purgeLocked(id)
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) CreateRecipient(ctx context.Context, r model.Recipient) (model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := s.recipients[r.ID]; ok {
		return model.Recipient{}, fmt.Errorf("recipient %s: %w", r.ID, ErrConflict)
	}
	now := s.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	s.recipients[r.ID] = r
	return r, nil
}

func (s *MemoryStore) GetRecipient(ctx context.Context, id string) (model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipients[id]
	if !ok {
		return model.Recipient{}, fmt.Errorf("recipient %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) ListRecipients(ctx context.Context) ([]model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.Recipient) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) UpdateRecipient(ctx context.Context, id string, patch model.RecipientPatch) (model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipients[id]
	if !ok {
		return model.Recipient{}, fmt.Errorf("recipient %s: %w", id, ErrNotFound)
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Phone != nil {
		r.Phone = *patch.Phone
	}
	r.UpdatedAt = s.now().UTC()
	s.recipients[id] = r
	return r, nil
}

func (s *MemoryStore) DeleteRecipient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recipients[id]; !ok {
		return fmt.Errorf("recipient %s: %w", id, ErrNotFound)
	}
	delete(s.recipients, id)
	return nil
}

func (s *MemoryStore) FindSent(ctx context.Context, eventID, recipientID string) (*model.DeliveryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		rec := s.records[i]
		if rec.EventID == eventID && rec.RecipientID == recipientID && rec.Status == model.Sent {
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Append(ctx context.Context, rec model.DeliveryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) PurgeForEvent(ctx context.Context, eventID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.purgeLocked(eventID), nil
}

func (s *MemoryStore) purgeLocked(eventID string) int64 {
	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r model.DeliveryRecord) bool {
		return r.EventID == eventID
	})
	return int64(before - len(s.records))
}

// ListDeliveries returns records newest first; records appended in the same
// instant keep reverse insertion order.
func (s *MemoryStore) ListDeliveries(ctx context.Context, q DeliveryQuery) ([]model.DeliveryRecord, error) {
	q = q.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.DeliveryRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if q.EventID != "" && rec.EventID != q.EventID {
			continue
		}
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		matched = append(matched, rec)
	}
	slices.SortStableFunc(matched, func(a, b model.DeliveryRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if q.Offset >= len(matched) {
		return nil, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	return matched[q.Offset:end], nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := s.users[key]; ok {
		return model.User{}, fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now().UTC()
	s.users[key] = u
	return u, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return u, nil
}
