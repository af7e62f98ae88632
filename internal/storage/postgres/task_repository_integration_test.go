package postgres

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func (s *storeSuite) TestTaskLeaseRescheduleAndDeath() {
	r := s.Require()
	repo := NewTaskRepository(s.store)
	now := time.Now().UTC()

	due, err := repo.Enqueue(s.ctx, domain.DownstreamTask{
		Kind:    domain.TaskKindLotDecrement,
		OrderID: "order-1",
		Payload: []byte(`{"lot_id":"lot-1","qty":1,"reference":"order-1:line-1"}`),
	})
	r.NoError(err)
	r.NotEmpty(due.ID)

	_, err = repo.Enqueue(s.ctx, domain.DownstreamTask{
		Kind:          domain.TaskKindCartClear,
		OrderID:       "order-1",
		Payload:       []byte(`{"user_id":"user-1"}`),
		NextAttemptAt: now.Add(time.Hour),
	})
	r.NoError(err)

	pulled, err := repo.PullDue(s.ctx, now.Add(time.Second), 10)
	r.NoError(err)
	r.Len(pulled, 1)
	r.Equal(due.ID, pulled[0].ID)
	r.Equal(domain.TaskKindLotDecrement, pulled[0].Kind)

	leased, err := repo.PullDue(s.ctx, now.Add(time.Second), 10)
	r.NoError(err)
	r.Empty(leased, "a leased task is not handed out twice")

	r.NoError(repo.Reschedule(s.ctx, due.ID, now, "inventory unavailable"))
	pulled, err = repo.PullDue(s.ctx, now.Add(time.Second), 10)
	r.NoError(err)
	r.Len(pulled, 1)
	r.Equal(1, pulled[0].Attempts)
	r.Equal("inventory unavailable", pulled[0].LastError)

	r.NoError(repo.MarkDead(s.ctx, due.ID, "gave up"))
	stats, err := repo.Stats(s.ctx)
	r.NoError(err)
	r.Equal(domain.TaskStats{PendingCount: 1, DeadCount: 1}, stats)

	r.ErrorIs(repo.MarkDone(s.ctx, "missing"), domain.ErrTaskNotFound)
}
