package model

import "time"

type Recipient struct {
	ID        string
	Name      string
	Phone     string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RecipientPatch struct {
	Name  *string
	Phone *string
}

func (p RecipientPatch) IsEmpty() bool {
	return p.Name == nil && p.Phone == nil
}
