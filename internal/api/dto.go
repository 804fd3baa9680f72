package api

import (
	"fmt"
	"time"

	"github.com/LeventeLantos/drama-notifier/internal/model"
	"github.com/LeventeLantos/drama-notifier/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	Role  model.Role `json:"role"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toUser(u model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type contactRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

type contactResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toContact(r model.Recipient) contactResponse {
	return contactResponse{
		ID:        r.ID,
		Name:      r.Name,
		Phone:     r.Phone,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type dramaRequest struct {
	Name        *string `json:"name"`
	DisplayDate *string `json:"displayDate"`
	Message     *string `json:"message"`
}

func (r dramaRequest) input() (service.EventInput, error) {
	var in service.EventInput
	if r.Name != nil {
		in.Name = *r.Name
	}
	if r.Message != nil {
		in.Message = *r.Message
	}
	if r.DisplayDate != nil {
		d, err := parseDate(*r.DisplayDate)
		if err != nil {
			return in, err
		}
		in.DisplayDate = d
	}
	return in, nil
}

func (r dramaRequest) patch() (model.EventPatch, error) {
	p := model.EventPatch{Name: r.Name, Message: r.Message}
	if r.DisplayDate != nil {
		d, err := parseDate(*r.DisplayDate)
		if err != nil {
			return p, err
		}
		p.DisplayDate = &d
	}
	return p, nil
}

type dramaResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayDate string    `json:"displayDate"`
	Message     string    `json:"message"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toDrama(e model.Event) dramaResponse {
	return dramaResponse{
		ID:          e.ID,
		Name:        e.Name,
		DisplayDate: model.FormatDate(e.DisplayDate),
		Message:     e.Message,
		CreatedBy:   e.CreatedBy,
		UpdatedBy:   e.UpdatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

type manualResponse struct {
	Message string `json:"message"`
	service.ManualResult
}

type scheduledResponse struct {
	Message    string `json:"message"`
	TargetDate string `json:"targetDate"`
	service.ScheduledResult
}

type deliveryResponse struct {
	ID         string        `json:"id"`
	DramaID    string        `json:"dramaId"`
	ContactID  string        `json:"contactId"`
	Status     model.Status  `json:"status"`
	Trigger    model.Trigger `json:"trigger"`
	ProviderID *string       `json:"providerId,omitempty"`
	Error      *string       `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

func toDelivery(r model.DeliveryRecord) deliveryResponse {
	return deliveryResponse{
		ID:         r.ID,
		DramaID:    r.EventID,
		ContactID:  r.RecipientID,
		Status:     r.Status,
		Trigger:    r.Trigger,
		ProviderID: r.ProviderID,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

type badRequestError struct {
	msg string
}

func (e badRequestError) Error() string { return e.msg }

func parseDate(raw string) (time.Time, error) {
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, badRequestError{msg: fmt.Sprintf("displayDate must be %s, got %q", model.DateLayout, raw)}
	}
	return d, nil
}
