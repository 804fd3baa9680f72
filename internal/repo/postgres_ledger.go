package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

const deliveryColumns = `id, drama_id, contact_id, status, dispatch_trigger, sms_request_id, error, created_at`

func scanDelivery(row pgx.Row) (model.DeliveryRecord, error) {
	var (
		rec     model.DeliveryRecord
		status  string
		trigger string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.EventID,
		&rec.RecipientID,
		&status,
		&trigger,
		&rec.ProviderID,
		&rec.Error,
		&rec.CreatedAt,
	); err != nil {
		return model.DeliveryRecord{}, err
	}
	rec.Status = model.Status(status)
	rec.Trigger = model.Trigger(trigger)
	return rec, nil
}

func (s *PostgresStore) FindSent(ctx context.Context, eventID, recipientID string) (*model.DeliveryRecord, error) {
	rec, err := scanDelivery(s.pool.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM sms_logs
		WHERE drama_id = $1 AND contact_id = $2 AND status = 'sent'
		ORDER BY created_at
		LIMIT 1
	`, eventID, recipientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec model.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sms_logs (id, drama_id, contact_id, status, dispatch_trigger, sms_request_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`, rec.ID, rec.EventID, rec.RecipientID, string(rec.Status), string(rec.Trigger),
		rec.ProviderID, rec.Error, nullTime(rec))
	return err
}

func nullTime(rec model.DeliveryRecord) any {
	if rec.CreatedAt.IsZero() {
		return nil
	}
	return rec.CreatedAt
}

func (s *PostgresStore) PurgeForEvent(ctx context.Context, eventID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sms_logs WHERE drama_id = $1`, eventID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, q DeliveryQuery) ([]model.DeliveryRecord, error) {
	q = q.normalized()

	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM sms_logs
		WHERE ($1 = '' OR drama_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, q.EventID, string(q.Status), q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
