package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// taskClaimLease: на сколько откладывается задача, взятая в работу одним из экземпляров воркера.
// Если обработчик упадёт, не отметив результат, задачу подберут после истечения аренды.
const taskClaimLease = time.Minute

type taskRepository struct {
	db *sql.DB
}

// NewTaskRepository создаёт PostgreSQL-реализацию очереди downstream-задач.
func NewTaskRepository(store *Store) domain.TaskRepository {
	return &taskRepository{db: store.DB()}
}

func (r *taskRepository) Enqueue(ctx context.Context, task domain.DownstreamTask) (domain.DownstreamTask, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = domain.TaskStatusPending
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = now
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO downstream_tasks (
			id, kind, order_id, payload, status, attempts, last_error, next_attempt_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		task.ID, string(task.Kind), task.OrderID, task.Payload, string(task.Status), task.Attempts,
		task.LastError, task.NextAttemptAt, task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return domain.DownstreamTask{}, fmt.Errorf("enqueue downstream task: %w", err)
	}
	return task, nil
}

// PullDue захватывает просроченные задачи: выбранные строки сдвигаются на taskClaimLease,
// поэтому параллельные экземпляры воркера не получают одну и ту же задачу.
func (r *taskRepository) PullDue(ctx context.Context, now time.Time, limit int) ([]domain.DownstreamTask, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE downstream_tasks
		SET next_attempt_at = $2,
		    updated_at = $1
		WHERE id IN (
			SELECT id
			FROM downstream_tasks
			WHERE status = 'pending'
			  AND next_attempt_at <= $1
			ORDER BY next_attempt_at ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, order_id, payload, status, attempts, last_error, next_attempt_at, created_at, updated_at
	`, now, now.Add(taskClaimLease), limit)
	if err != nil {
		return nil, fmt.Errorf("pull due downstream tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.DownstreamTask, 0)
	for rows.Next() {
		var (
			task         domain.DownstreamTask
			kind, status string
		)
		if err := rows.Scan(
			&task.ID, &kind, &task.OrderID, &task.Payload, &status, &task.Attempts, &task.LastError,
			&task.NextAttemptAt, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan downstream task: %w", err)
		}
		task.Kind = domain.TaskKind(kind)
		task.Status = domain.TaskStatus(status)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downstream tasks: %w", err)
	}
	return tasks, nil
}

func (r *taskRepository) MarkDone(ctx context.Context, id string) error {
	return r.update(ctx, id, `
		UPDATE downstream_tasks
		SET status = 'done', attempts = attempts + 1, last_error = '', updated_at = $2
		WHERE id = $1
	`, time.Now().UTC())
}

func (r *taskRepository) Reschedule(ctx context.Context, id string, next time.Time, lastErr string) error {
	return r.update(ctx, id, `
		UPDATE downstream_tasks
		SET attempts = attempts + 1, next_attempt_at = $3, last_error = $4, updated_at = $2
		WHERE id = $1
	`, time.Now().UTC(), next.UTC(), lastErr)
}

func (r *taskRepository) MarkDead(ctx context.Context, id string, lastErr string) error {
	return r.update(ctx, id, `
		UPDATE downstream_tasks
		SET status = 'dead', attempts = attempts + 1, last_error = $3, updated_at = $2
		WHERE id = $1
	`, time.Now().UTC(), lastErr)
}

func (r *taskRepository) Stats(ctx context.Context) (domain.TaskStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stats domain.TaskStats
	if err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'dead')
		FROM downstream_tasks
	`).Scan(&stats.PendingCount, &stats.DeadCount); err != nil {
		return domain.TaskStats{}, fmt.Errorf("downstream task stats: %w", err)
	}
	return stats, nil
}

func (r *taskRepository) update(ctx context.Context, id, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update downstream task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

var _ domain.TaskRepository = (*taskRepository)(nil)
