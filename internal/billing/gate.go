package billing

import "sync"

// TaskGate admits at most one task at a time. An inventory request that
// arrives while the gate is held is latched and reported on release.
type TaskGate struct {
	mu        sync.Mutex
	busy      bool
	active    TaskType
	pending   bool
	onRelease func(TaskType)
}

// SetOnRelease installs a hook invoked after every release.
func (g *TaskGate) SetOnRelease(fn func(TaskType)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRelease = fn
}

// Acquire claims the gate for task. On success it returns a release function
// that frees the gate on its first call and reports whether an inventory
// request was latched meanwhile; later calls are no-ops returning false.
func (g *TaskGate) Acquire(task TaskType) (release func() (replayInventory bool), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busy {
		if task == TaskRequestInventory {
			g.pending = true
		}
		return nil, false
	}

	g.busy = true
	g.active = task

	var once sync.Once
	return func() bool {
		replay := false
		once.Do(func() {
			replay = g.release(task)
		})
		return replay
	}, true
}

func (g *TaskGate) release(task TaskType) bool {
	g.mu.Lock()
	g.busy = false
	replay := g.pending
	g.pending = false
	hook := g.onRelease
	g.mu.Unlock()

	if hook != nil {
		hook(task)
	}
	return replay
}

// Active returns the task holding the gate.
func (g *TaskGate) Active() (TaskType, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.busy
}

// Pending reports whether an inventory request is latched.
func (g *TaskGate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}
