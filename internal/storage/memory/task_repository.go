package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// TaskRepository: in-memory очередь повторной доставки.
type TaskRepository struct {
	mu    sync.Mutex
	tasks map[string]domain.DownstreamTask
	now   func() time.Time
}

// NewTaskRepository создаёт in-memory реализацию TaskRepository.
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		tasks: make(map[string]domain.DownstreamTask),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет задачу в статусе pending с попыткой «сейчас», если время не задано.
func (r *TaskRepository) Enqueue(_ context.Context, task domain.DownstreamTask) (domain.DownstreamTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = domain.TaskStatusPending
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = now
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Payload = append([]byte(nil), task.Payload...)
	r.tasks[task.ID] = task
	return task, nil
}

// PullDue возвращает просроченные pending-задачи, самые ранние первыми.
func (r *TaskRepository) PullDue(_ context.Context, now time.Time, limit int) ([]domain.DownstreamTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	due := make([]domain.DownstreamTask, 0)
	for _, task := range r.tasks {
		if task.Status == domain.TaskStatusPending && !task.NextAttemptAt.After(now) {
			due = append(due, task)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *TaskRepository) MarkDone(_ context.Context, id string) error {
	return r.update(id, func(t *domain.DownstreamTask) {
		t.Status = domain.TaskStatusDone
		t.Attempts++
		t.LastError = ""
	})
}

func (r *TaskRepository) Reschedule(_ context.Context, id string, next time.Time, lastErr string) error {
	return r.update(id, func(t *domain.DownstreamTask) {
		t.Attempts++
		t.NextAttemptAt = next
		t.LastError = lastErr
	})
}

func (r *TaskRepository) MarkDead(_ context.Context, id string, lastErr string) error {
	return r.update(id, func(t *domain.DownstreamTask) {
		t.Status = domain.TaskStatusDead
		t.Attempts++
		t.LastError = lastErr
	})
}

func (r *TaskRepository) Stats(_ context.Context) (domain.TaskStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.TaskStats
	for _, task := range r.tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
		case domain.TaskStatusDead:
			stats.DeadCount++
		}
	}
	return stats, nil
}

// All возвращает копию всех задач (для тестов).
func (r *TaskRepository) All() []domain.DownstreamTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DownstreamTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt) || (out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID)
	})
	return out
}

func (r *TaskRepository) update(id string, apply func(t *domain.DownstreamTask)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	apply(&task)
	task.UpdatedAt = r.now()
	r.tasks[id] = task
	return nil
}

var _ domain.TaskRepository = (*TaskRepository)(nil)
