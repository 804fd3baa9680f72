package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

const recipientColumns = `id, name, mobile_number, created_by, created_at, updated_at`

func scanRecipient(row pgx.Row) (model.Recipient, error) {
	var r model.Recipient
	err := row.Scan(&r.ID, &r.Name, &r.Phone, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) CreateRecipient(ctx context.Context, r model.Recipient) (model.Recipient, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	created, err := scanRecipient(s.pool.QueryRow(ctx, `
		INSERT INTO contacts (id, name, mobile_number, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+recipientColumns,
		r.ID, r.Name, r.Phone, r.CreatedBy))
	if isUniqueViolation(err) {
		return model.Recipient{}, fmt.Errorf("recipient %s: %w", r.ID, ErrConflict)
	}
	return created, err
}

func (s *PostgresStore) GetRecipient(ctx context.Context, id string) (model.Recipient, error) {
	r, err := scanRecipient(s.pool.QueryRow(ctx, `SELECT `+recipientColumns+` FROM contacts WHERE id = $1`, id))
	if err != nil {
		return model.Recipient{}, notFoundOr(err, "recipient", id)
	}
	return r, nil
}

// ListRecipients orders by id so dispatch iterates recipients deterministically.
func (s *PostgresStore) ListRecipients(ctx context.Context) ([]model.Recipient, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recipientColumns+` FROM contacts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateRecipient(ctx context.Context, id string, patch model.RecipientPatch) (model.Recipient, error) {
	r, err := scanRecipient(s.pool.QueryRow(ctx, `
		UPDATE contacts
		SET name          = COALESCE($2, name),
		    mobile_number = COALESCE($3, mobile_number),
		    updated_at    = now()
		WHERE id = $1
		RETURNING `+recipientColumns,
		id, patch.Name, patch.Phone))
	if err != nil {
		return model.Recipient{}, notFoundOr(err, "recipient", id)
	}
	return r, nil
}

func (s *PostgresStore) DeleteRecipient(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recipient %s: %w", id, ErrNotFound)
	}
	return nil
}
