package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/drama-notifier/internal/lock"
	"github.com/LeventeLantos/drama-notifier/internal/model"
	"github.com/LeventeLantos/drama-notifier/internal/repo"
)

const DefaultContentMax = 1000

var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Catalog manages dramas and contacts. Rescheduling or deleting a drama
// purges its delivery records inside the repository transaction while the
// dispatch lock is held.
type Catalog struct {
	events     repo.EventRepository
	recipients repo.RecipientRepository
	locker     lock.Locker
	contentMax int
}

func NewCatalog(events repo.EventRepository, recipients repo.RecipientRepository, contentMax int) *Catalog {
	if contentMax <= 0 {
		contentMax = DefaultContentMax
	}
	return &Catalog{
		events:     events,
		recipients: recipients,
		locker:     lock.NewLocalLocker(),
		contentMax: contentMax,
	}
}

func (c *Catalog) WithLocker(l lock.Locker) *Catalog {
	if l != nil {
		c.locker = l
	}
	return c
}

type EventInput struct {
	Name        string
	DisplayDate time.Time
	Message     string
}

type RecipientInput struct {
	Name  string
	Phone string
}

func (c *Catalog) checkMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return invalid("custom_sms is required")
	}
	if n := utf8.RuneCountInString(msg); n > c.contentMax {
		return invalid("custom_sms exceeds %d chars (got %d)", c.contentMax, n)
	}
	return nil
}

func (c *Catalog) CreateEvent(ctx context.Context, by model.Principal, in EventInput) (model.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Event{}, invalid("drama_name is required")
	}
	if in.DisplayDate.IsZero() {
		return model.Event{}, invalid("display_date is required")
	}
	if err := c.checkMessage(in.Message); err != nil {
		return model.Event{}, err
	}

	return c.events.CreateEvent(ctx, model.Event{
		Name:        name,
		DisplayDate: model.DateOf(in.DisplayDate),
		Message:     in.Message,
		CreatedBy:   by.Subject,
	})
}

func (c *Catalog) ListEvents(ctx context.Context) ([]model.Event, error) {
	return c.events.ListEvents(ctx)
}

func (c *Catalog) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return c.events.GetEvent(ctx, id)
}

func (c *Catalog) UpdateEvent(ctx context.Context, by model.Principal, id string, patch model.EventPatch) (model.Event, error) {
	if patch.IsEmpty() {
		return model.Event{}, invalid("no fields to update")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Event{}, invalid("drama_name must not be empty")
		}
		patch.Name = &name
	}
	if patch.Message != nil {
		if err := c.checkMessage(*patch.Message); err != nil {
			return model.Event{}, err
		}
	}

	if patch.DisplayDate == nil {
		return c.events.UpdateEvent(ctx, id, patch, by.Subject)
	}

	var updated model.Event
	err := lock.With(ctx, c.locker, lock.DispatchKey, func(ctx context.Context) error {
		var err error
		updated, err = c.events.UpdateEvent(ctx, id, patch, by.Subject)
		return err
	})
	return updated, err
}

func (c *Catalog) DeleteEvent(ctx context.Context, id string) error {
	return lock.With(ctx, c.locker, lock.DispatchKey, func(ctx context.Context) error {
		return c.events.DeleteEvent(ctx, id)
	})
}

func (c *Catalog) CreateRecipient(ctx context.Context, by model.Principal, in RecipientInput) (model.Recipient, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if name == "" {
		return model.Recipient{}, invalid("name is required")
	}
	if phone == "" {
		return model.Recipient{}, invalid("mobile_number is required")
	}

	return c.recipients.CreateRecipient(ctx, model.Recipient{
		Name:      name,
		Phone:     phone,
		CreatedBy: by.Subject,
	})
}

func (c *Catalog) ListRecipients(ctx context.Context) ([]model.Recipient, error) {
	return c.recipients.ListRecipients(ctx)
}

func (c *Catalog) UpdateRecipient(ctx context.Context, id string, patch model.RecipientPatch) (model.Recipient, error) {
	if patch.IsEmpty() {
		return model.Recipient{}, invalid("no fields to update")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Recipient{}, invalid("name must not be empty")
		}
		patch.Name = &name
	}
	if patch.Phone != nil {
		phone := strings.TrimSpace(*patch.Phone)
		if phone == "" {
			return model.Recipient{}, invalid("mobile_number must not be empty")
		}
		patch.Phone = &phone
	}
	return c.recipients.UpdateRecipient(ctx, id, patch)
}

func (c *Catalog) DeleteRecipient(ctx context.Context, id string) error {
	return c.recipients.DeleteRecipient(ctx, id)
}
