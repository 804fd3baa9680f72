package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// EventRepository stores dramas. UpdateEvent and DeleteEvent purge the
// event's delivery records in the same transaction whenever the event is
// rescheduled or removed.
type EventRepository interface {
	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	EventsOn(ctx context.Context, date time.Time) ([]model.Event, error)
	UpdateEvent(ctx context.Context, id string, patch model.EventPatch, updatedBy string) (model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

type RecipientRepository interface {
	CreateRecipient(ctx context.Context, r model.Recipient) (model.Recipient, error)
	GetRecipient(ctx context.Context, id string) (model.Recipient, error)
	ListRecipients(ctx context.Context) ([]model.Recipient, error)
	UpdateRecipient(ctx context.Context, id string, patch model.RecipientPatch) (model.Recipient, error)
	DeleteRecipient(ctx context.Context, id string) error
}

// Ledger is the append-only delivery log and the source of truth for
// scheduled dedup.
type Ledger interface {
	// FindSent returns nil, nil when the pair has no sent record.
	FindSent(ctx context.Context, eventID, recipientID string) (*model.DeliveryRecord, error)
	Append(ctx context.Context, rec model.DeliveryRecord) error
	PurgeForEvent(ctx context.Context, eventID string) (int64, error)
	ListDeliveries(ctx context.Context, q DeliveryQuery) ([]model.DeliveryRecord, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
}

type Store interface {
	EventRepository
	RecipientRepository
	Ledger
	UserRepository
}

type DeliveryQuery struct {
	EventID string
	Status  model.Status
	Limit   int
	Offset  int
}

const defaultListLimit = 50

func (q DeliveryQuery) normalized() DeliveryQuery {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
