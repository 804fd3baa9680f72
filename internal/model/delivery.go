package model

import "time"

type Status string

const (
	Sent   Status = "sent"
	Failed Status = "failed"
)

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// DeliveryRecord is one send attempt for one (event, recipient) pair.
// ProviderID is set only for Sent records, Error only for Failed ones.
type DeliveryRecord struct {
	ID          string
	EventID     string
	RecipientID string
	Status      Status
	Trigger     Trigger
	ProviderID  *string
	Error       *string
	CreatedAt   time.Time
}

func SentRecord(id, eventID, recipientID string, trigger Trigger, providerID string, at time.Time) DeliveryRecord {
	return DeliveryRecord{
		ID:          id,
		EventID:     eventID,
		RecipientID: recipientID,
		Status:      Sent,
		Trigger:     trigger,
		ProviderID:  &providerID,
		CreatedAt:   at.UTC(),
	}
}

func FailedRecord(id, eventID, recipientID string, trigger Trigger, reason string, at time.Time) DeliveryRecord {
	return DeliveryRecord{
		ID:          id,
		EventID:     eventID,
		RecipientID: recipientID,
		Status:      Failed,
		Trigger:     trigger,
		Error:       &reason,
		CreatedAt:   at.UTC(),
	}
}
