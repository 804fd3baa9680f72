package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/drama-notifier/internal/lock"
	"github.com/LeventeLantos/drama-notifier/internal/model"
	"github.com/LeventeLantos/drama-notifier/internal/repo"
)

const (
	DefaultWorkers     = 4
	DefaultSendTimeout = 30 * time.Second
	DefaultLeadDays    = 2
)

type SendClient interface {
	Send(ctx context.Context, phoneNumber, message string) (remoteMessageID string, err error)
}

type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeNothingScheduled Outcome = "nothing_scheduled"
	OutcomeNoRecipients     Outcome = "no_recipients"
)

// Delivery is what happened to one (event, recipient) pair during a run.
type Delivery struct {
	EventID     string       `json:"eventId"`
	RecipientID string       `json:"recipientId"`
	Status      model.Status `json:"status,omitempty"`
	Skipped     bool         `json:"skipped,omitempty"`
	ProviderID  string       `json:"providerId,omitempty"`
	Error       string       `json:"error,omitempty"`
}

type ManualResult struct {
	EventID    string     `json:"eventId"`
	Sent       int        `json:"sent"`
	Total      int        `json:"total"`
	Deliveries []Delivery `json:"deliveries"`
}

func (r ManualResult) Message() string {
	return fmt.Sprintf("SMS sent to %d/%d contacts", r.Sent, r.Total)
}

type ScheduledResult struct {
	Outcome    Outcome    `json:"outcome"`
	TargetDate time.Time  `json:"-"`
	Events     int        `json:"events"`
	Attempted  int        `json:"attempted"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Deliveries []Delivery `json:"deliveries,omitempty"`
}

func (r ScheduledResult) Message() string {
	switch r.Outcome {
	case OutcomeNothingScheduled:
		return "No dramas scheduled for sending today"
	case OutcomeNoRecipients:
		return "No contacts in database"
	default:
		return fmt.Sprintf("Scheduled send complete. %d SMS sent.", r.Sent)
	}
}

// Dispatcher sends event messages to recipients and records every attempt in
// the ledger. Transport failures become failed records, never errors; only
// missing events, storage errors and cancellation are returned.
type Dispatcher struct {
	events     repo.EventRepository
	recipients repo.RecipientRepository
	ledger     repo.Ledger
	client     SendClient
	locker     lock.Locker

	workers     int
	sendTimeout time.Duration
	leadDays    int

	now   func() time.Time
	newID func() string

	onRun func(ctx context.Context, s model.RunSummary)
}

func NewDispatcher(events repo.EventRepository, recipients repo.RecipientRepository, ledger repo.Ledger, client SendClient) *Dispatcher {
	return &Dispatcher{
		events:      events,
		recipients:  recipients,
		ledger:      ledger,
		client:      client,
		locker:      lock.NewLocalLocker(),
		workers:     DefaultWorkers,
		sendTimeout: DefaultSendTimeout,
		leadDays:    DefaultLeadDays,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

func (d *Dispatcher) WithSendTimeout(t time.Duration) *Dispatcher {
	if t > 0 {
		d.sendTimeout = t
	}
	return d
}

func (d *Dispatcher) WithLeadDays(n int) *Dispatcher {
	if n >= 0 {
		d.leadDays = n
	}
	return d
}

// WithLocker replaces the in-process lock guarding dispatch runs. Share the
// same Locker with Catalog so purges never interleave with a run.
func (d *Dispatcher) WithLocker(l lock.Locker) *Dispatcher {
	if l != nil {
		d.locker = l
	}
	return d
}

func (d *Dispatcher) Locker() lock.Locker {
	return d.locker
}

func (d *Dispatcher) WithRunHook(fn func(ctx context.Context, s model.RunSummary)) *Dispatcher {
	d.onRun = fn
	return d
}

// TargetDate is the display date a scheduled run at now notifies about.
func (d *Dispatcher) TargetDate(now time.Time) time.Time {
	return model.DateOf(now).AddDate(0, 0, d.leadDays)
}

type job struct {
	event     model.Event
	recipient model.Recipient
}

// DispatchManual sends the event's message to every current recipient,
// regardless of earlier deliveries. It holds the dispatch lock so a
// reschedule or delete cannot purge the ledger while its records are still
// being written.
func (d *Dispatcher) DispatchManual(ctx context.Context, eventID string) (ManualResult, error) {
	started := d.now()

	var (
		res        ManualResult
		deliveries []Delivery
		runErr     error
	)
	err := lock.With(ctx, d.locker, lock.DispatchKey, func(ctx context.Context) error {
		event, err := d.events.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}

		recipients, err := d.recipients.ListRecipients(ctx)
		if err != nil {
			return fmt.Errorf("list recipients: %w", err)
		}
		sortRecipients(recipients)

		jobs := make([]job, len(recipients))
		for i, r := range recipients {
			jobs[i] = job{event: event, recipient: r}
		}

		res = ManualResult{EventID: event.ID, Total: len(recipients)}
		deliveries, runErr = d.run(ctx, model.TriggerManual, jobs)
		return nil
	})
	if err != nil {
		return ManualResult{}, fmt.Errorf("dispatch manual: %w", err)
	}

	res.Deliveries = deliveries
	for _, dl := range deliveries {
		if dl.Status == model.Sent {
			res.Sent++
		}
	}

	slog.Info("manual dispatch finished",
		"event_id", res.EventID,
		"sent", res.Sent,
		"total", res.Total,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	d.publish(ctx, model.RunSummary{
		Trigger:    model.TriggerManual,
		Outcome:    string(OutcomeCompleted),
		Message:    res.Message(),
		EventID:    res.EventID,
		Attempted:  countAttempted(deliveries),
		Sent:       res.Sent,
		Failed:     countAttempted(deliveries) - res.Sent,
		StartedAt:  started,
		FinishedAt: d.now(),
	}, runErr)

	if runErr != nil {
		return res, fmt.Errorf("dispatch manual: %w", runErr)
	}
	return res, nil
}

// DispatchScheduled notifies every recipient about events displayed lead
// days after now, skipping pairs that already have a sent record. Runs are
// serialized through the locker so two triggers cannot both send one pair.
func (d *Dispatcher) DispatchScheduled(ctx context.Context, now time.Time) (ScheduledResult, error) {
	started := d.now()
	target := d.TargetDate(now)

	var res ScheduledResult
	err := lock.With(ctx, d.locker, lock.DispatchKey, func(ctx context.Context) error {
		var err error
		res, err = d.dispatchScheduledLocked(ctx, target)
		return err
	})
	res.TargetDate = target

	slog.Info("scheduled dispatch finished",
		"target_date", model.FormatDate(target),
		"outcome", res.Outcome,
		"events", res.Events,
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	d.publish(ctx, model.RunSummary{
		Trigger:    model.TriggerScheduled,
		Outcome:    string(res.Outcome),
		Message:    res.Message(),
		TargetDate: model.FormatDate(target),
		Attempted:  res.Attempted,
		Sent:       res.Sent,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		StartedAt:  started,
		FinishedAt: d.now(),
	}, err)

	if err != nil {
		return res, fmt.Errorf("dispatch scheduled: %w", err)
	}
	return res, nil
}

func (d *Dispatcher) dispatchScheduledLocked(ctx context.Context, target time.Time) (ScheduledResult, error) {
	res := ScheduledResult{TargetDate: target}

	events, err := d.events.EventsOn(ctx, target)
	if err != nil {
		return res, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		res.Outcome = OutcomeNothingScheduled
		return res, nil
	}
	sortEvents(events)
	res.Events = len(events)

	recipients, err := d.recipients.ListRecipients(ctx)
	if err != nil {
		return res, fmt.Errorf("list recipients: %w", err)
	}
	if len(recipients) == 0 {
		res.Outcome = OutcomeNoRecipients
		return res, nil
	}
	sortRecipients(recipients)

	jobs := make([]job, 0, len(events)*len(recipients))
	for _, e := range events {
		for _, r := range recipients {
			jobs = append(jobs, job{event: e, recipient: r})
		}
	}

	deliveries, runErr := d.run(ctx, model.TriggerScheduled, jobs)

	res.Outcome = OutcomeCompleted
	res.Deliveries = deliveries
	for _, dl := range deliveries {
		switch {
		case dl.Skipped:
			res.Skipped++
		case dl.Status == model.Sent:
			res.Sent++
			res.Attempted++
		case dl.Status == model.Failed:
			res.Failed++
			res.Attempted++
		}
	}
	return res, runErr
}

// run processes jobs on a bounded pool. Deliveries come back in job order;
// jobs never started (cancellation or a storage error) are left out. A
// storage error only stops new jobs; sends already in flight finish on ctx.
func (d *Dispatcher) run(ctx context.Context, trigger model.Trigger, jobs []job) ([]Delivery, error) {
	results := make([]Delivery, len(jobs))
	done := make([]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			dl, err := d.deliver(ctx, trigger, jobs[i])
			if err != nil {
				return err
			}
			results[i] = dl
			done[i] = true
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	out := make([]Delivery, 0, len(jobs))
	for i, ok := range done {
		if ok {
			out = append(out, results[i])
		}
	}
	return out, err
}

func (d *Dispatcher) deliver(ctx context.Context, trigger model.Trigger, j job) (Delivery, error) {
	dl := Delivery{EventID: j.event.ID, RecipientID: j.recipient.ID}

	if trigger == model.TriggerScheduled {
		prior, err := d.ledger.FindSent(ctx, j.event.ID, j.recipient.ID)
		if err != nil {
			return dl, fmt.Errorf("find sent %s/%s: %w", j.event.ID, j.recipient.ID, err)
		}
		if prior != nil {
			dl.Skipped = true
			return dl, nil
		}
	}

	providerID, sendErr := d.send(ctx, j.recipient.Phone, j.event.Message)

	var rec model.DeliveryRecord
	if sendErr != nil {
		dl.Status = model.Failed
		dl.Error = sendErr.Error()
		rec = model.FailedRecord(d.newID(), j.event.ID, j.recipient.ID, trigger, dl.Error, d.now())
		slog.Warn("sms send failed",
			"event_id", j.event.ID,
			"recipient_id", j.recipient.ID,
			"trigger", trigger,
			"error", sendErr,
		)
	} else {
		dl.Status = model.Sent
		dl.ProviderID = providerID
		rec = model.SentRecord(d.newID(), j.event.ID, j.recipient.ID, trigger, providerID, d.now())
	}

	// The outcome already happened at the provider; record it even if the
	// invocation is being cancelled.
	if err := d.ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
		return dl, fmt.Errorf("append delivery %s/%s: %w", j.event.ID, j.recipient.ID, err)
	}
	return dl, nil
}

func (d *Dispatcher) send(ctx context.Context, phone, body string) (id string, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sms client panic: %v", r)
		}
	}()

	id, err = d.client.Send(ctx, phone, body)
	if err == nil && id == "" {
		err = errors.New("provider returned an empty message id")
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("sms send timed out after %s: %w", d.sendTimeout, err)
	}
	return id, err
}

func (d *Dispatcher) publish(ctx context.Context, s model.RunSummary, runErr error) {
	if d.onRun == nil {
		return
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	d.onRun(context.WithoutCancel(ctx), s)
}

func countAttempted(deliveries []Delivery) int {
	n := 0
	for _, dl := range deliveries {
		if !dl.Skipped {
			n++
		}
	}
	return n
}

func sortEvents(events []model.Event) {
	slices.SortFunc(events, func(a, b model.Event) int { return strings.Compare(a.ID, b.ID) })
}

func sortRecipients(recipients []model.Recipient) {
	slices.SortFunc(recipients, func(a, b model.Recipient) int { return strings.Compare(a.ID, b.ID) })
}
