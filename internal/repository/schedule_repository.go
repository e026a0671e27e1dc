package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/autopost/internal/models"
)

type ScheduleRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Schedule, error)
	ListDue(ctx context.Context, from, to time.Time) ([]*models.Schedule, error)
	Claim(ctx context.Context, id int64) (bool, error)
	SetStatus(ctx context.Context, id int64, from []string, to, lastError string) (bool, error)
	Reschedule(ctx context.Context, id int64, next time.Time, lastError string) error
	ForceDue(ctx context.Context, id int64, at time.Time) (bool, error)
	Toggle(ctx context.Context, id int64) (string, error)
	RefreshCompletion(ctx context.Context, id int64) error
}

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

const scheduleColumns = `id, user_id, name, theme_id, target_accounts, post_type, caption, hashtags,
	scheduled_time, is_recurring, recurring_pattern, status, last_error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*models.Schedule, error) {
	var s models.Schedule
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.ThemeID, pq.Array(&s.TargetAccounts), &s.PostType,
		&s.Caption, pq.Array(&s.Hashtags), &s.ScheduledTime, &s.IsRecurring, &s.RecurringPattern,
		&s.Status, &s.LastError, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	s, err := scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *scheduleRepository) ListDue(ctx context.Context, from, to time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules
		WHERE status = $1 AND scheduled_time BETWEEN $2 AND $3
		ORDER BY scheduled_time`

	rows, err := r.db.QueryContext(ctx, query, models.ScheduleStatusPending, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}

// Claim moves a schedule from PENDING to PROCESSING. Only one caller can
// win the claim; the rest get false.
func (r *scheduleRepository) Claim(ctx context.Context, id int64) (bool, error) {
	return r.SetStatus(ctx, id, []string{models.ScheduleStatusPending}, models.ScheduleStatusProcessing, "")
}

func (r *scheduleRepository) SetStatus(ctx context.Context, id int64, from []string, to, lastError string) (bool, error) {
	query := `
		UPDATE schedules
		SET status = $1,
			last_error = $2,
			updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`
	result, err := r.db.ExecContext(ctx, query, to, lastError, id, pq.Array(from))
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *scheduleRepository) Reschedule(ctx context.Context, id int64, next time.Time, lastError string) error {
	query := `
		UPDATE schedules
		SET status = $1,
			scheduled_time = $2,
			last_error = $3,
			updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.ScheduleStatusPending, next, lastError, id, models.ScheduleStatusProcessing)
	if err != nil {
		return err
	}
	return nil
}

// ForceDue makes a schedule due at the given instant. Completed and
// in-flight schedules are left untouched.
func (r *scheduleRepository) ForceDue(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE schedules
		SET status = $1,
			scheduled_time = $2,
			last_error = '',
			updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`
	from := []string{models.ScheduleStatusPending, models.ScheduleStatusCancelled, models.ScheduleStatusFailed}
	result, err := r.db.ExecContext(ctx, query, models.ScheduleStatusPending, at, id, pq.Array(from))
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

// Toggle flips PENDING and CANCELLED in a single statement and returns the
// new status, or "" when the schedule is in neither state.
func (r *scheduleRepository) Toggle(ctx context.Context, id int64) (string, error) {
	query := `
		UPDATE schedules
		SET status = CASE status WHEN $1 THEN $2 ELSE $1 END,
			updated_at = NOW()
		WHERE id = $3 AND status IN ($1, $2)
		RETURNING status
	`
	var status string
	err := r.db.QueryRowContext(ctx, query, models.ScheduleStatusPending, models.ScheduleStatusCancelled, id).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return status, nil
}

// RefreshCompletion closes a non-recurring PROCESSING schedule once none of
// its posts are in flight: COMPLETED if anything was published, FAILED
// otherwise.
func (r *scheduleRepository) RefreshCompletion(ctx context.Context, id int64) error {
	query := `
		UPDATE schedules s
		SET status = CASE
				WHEN EXISTS (SELECT 1 FROM posts p WHERE p.schedule_id = s.id AND p.status = $1) THEN $2
				ELSE $3
			END,
			updated_at = NOW()
		WHERE s.id = $4
			AND s.status = $5
			AND NOT s.is_recurring
			AND NOT EXISTS (
				SELECT 1 FROM posts p WHERE p.schedule_id = s.id AND p.status IN ($6, $7)
			)
	`
	_, err := r.db.ExecContext(ctx, query,
		models.PostStatusPublished,
		models.ScheduleStatusCompleted,
		models.ScheduleStatusFailed,
		id,
		models.ScheduleStatusProcessing,
		models.PostStatusQueued,
		models.PostStatusProcessing,
	)
	if err != nil {
		return err
	}
	return nil
}

func affectedOne(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
