package ncatplugin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskFunc is a periodic task body. It receives a context that's
// cancelled the moment the task (or its owning plugin) is cancelled.
type TaskFunc func(ctx context.Context)

type scheduledTask struct {
	owner  string
	cancel context.CancelFunc
}

// Scheduler tracks one context.CancelFunc per scheduled task, keyed by
// owner, so a plugin's tasks can all be cancelled at once on unload
// without the plugin itself keeping a list.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*scheduledTask
}

func newScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[uuid.UUID]*scheduledTask)}
}

func (s *Scheduler) schedule(owner string, interval time.Duration, fn TaskFunc) uuid.UUID {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()

	s.mu.Lock()
	s.tasks[id] = &scheduledTask{owner: owner, cancel: cancel}
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	return id
}

// Cancel stops and forgets the task with the given id. Returns false if
// id is unknown or already cancelled.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	task.cancel()
	return true
}

func (s *Scheduler) cancelOwner(owner string) []uuid.UUID {
	s.mu.Lock()
	var ids []uuid.UUID
	for id, t := range s.tasks {
		if t.owner == owner {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Cancel(id)
	}
	return ids
}
