package model

import "time"

// Event is a scheduled drama announcement. DisplayDate is always a UTC
// midnight; the time of day carries no meaning.
type Event struct {
	ID          string
	Name        string
	DisplayDate time.Time
	Message     string
	CreatedBy   string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EventPatch struct {
	Name        *string
	DisplayDate *time.Time
	Message     *string
}

func (p EventPatch) IsEmpty() bool {
	return p.Name == nil && p.DisplayDate == nil && p.Message == nil
}

// Reschedules reports whether applying p to e moves the event to another day.
func (p EventPatch) Reschedules(e Event) bool {
	return p.DisplayDate != nil && !DateOf(*p.DisplayDate).Equal(DateOf(e.DisplayDate))
}
