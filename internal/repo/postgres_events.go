package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

const eventColumns = `id, drama_name, display_date, custom_sms, created_by,
	COALESCE(updated_by, ''), created_at, updated_at`

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	if err := row.Scan(
		&e.ID,
		&e.Name,
		&e.DisplayDate,
		&e.Message,
		&e.CreatedBy,
		&e.UpdatedBy,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return model.Event{}, err
	}
	e.DisplayDate = model.DateOf(e.DisplayDate)
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO dramas (id, drama_name, display_date, custom_sms, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+eventColumns,
		e.ID, e.Name, model.DateOf(e.DisplayDate), e.Message, e.CreatedBy)

	created, err := scanEvent(row)
	if isUniqueViolation(err) {
		return model.Event{}, fmt.Errorf("event %s: %w", e.ID, ErrConflict)
	}
	return created, err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (model.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM dramas WHERE id = $1`, id))
	if err != nil {
		return model.Event{}, notFoundOr(err, "event", id)
	}
	return e, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+eventColumns+` FROM dramas ORDER BY display_date, id`)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (s *PostgresStore) EventsOn(ctx context.Context, date time.Time) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM dramas
		WHERE display_date = $1
		ORDER BY id
	`, model.DateOf(date))
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// UpdateEvent locks the row, purges the event's delivery records when the
// display date moves, and applies the patch, all in one transaction.
func (s *PostgresStore) UpdateEvent(ctx context.Context, id string, patch model.EventPatch, updatedBy string) (model.Event, error) {
	var updated model.Event
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM dramas WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundOr(err, "event", id)
		}

		if patch.Reschedules(current) {
			if _, err := tx.Exec(ctx, `DELETE FROM sms_logs WHERE drama_id = $1`, id); err != nil {
				return fmt.Errorf("purge sms_logs: %w", err)
			}
		}

		var displayDate *time.Time
		if patch.DisplayDate != nil {
			d := model.DateOf(*patch.DisplayDate)
			displayDate = &d
		}

		updated, err = scanEvent(tx.QueryRow(ctx, `
			UPDATE dramas
			SET drama_name   = COALESCE($2, drama_name),
			    display_date = COALESCE($3, display_date),
			    custom_sms   = COALESCE($4, custom_sms),
			    updated_by   = $5,
			    updated_at   = now()
			WHERE id = $1
			RETURNING `+eventColumns,
			id, patch.Name, displayDate, patch.Message, updatedBy))
		return err
	})
	if err != nil {
		return model.Event{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sms_logs WHERE drama_id = $1`, id); err != nil {
			return fmt.Errorf("purge sms_logs: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM dramas WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("event %s: %w", id, ErrNotFound)
		}
		return nil
	})
}
