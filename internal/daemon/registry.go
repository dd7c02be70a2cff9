package daemon

import "sync"

// registry tracks the currently supervised child handles keyed by pid.
// Only the main (last) command of a chain is ever inserted, so it holds at
// most one entry in normal operation. takeAll swaps in a fresh map before
// the caller iterates the snapshot, which is what keeps a concurrent
// natural exit and a killAll from both claiming the same handle.
type registry struct {
	mu    sync.Mutex
	procs map[int]Handle
}

func newRegistry() *registry {
	return &registry{procs: make(map[int]Handle)}
}

func (r *registry) put(h Handle) {
	r.mu.Lock()
	r.procs[h.PID()] = h
	r.mu.Unlock()
}

// remove deletes pid and reports whether it was present. A false return
// means killAll already took the handle.
func (r *registry) remove(pid int) bool {
	r.mu.Lock()
	_, ok := r.procs[pid]
	if ok {
		delete(r.procs, pid)
	}
	r.mu.Unlock()
	return ok
}

// takeAll atomically snapshots and clears the registry.
func (r *registry) takeAll() map[int]Handle {
	r.mu.Lock()
	snap := r.procs
	r.procs = make(map[int]Handle)
	r.mu.Unlock()
	return snap
}

func (r *registry) size() int {
	r.mu.Lock()
	n := len(r.procs)
	r.mu.Unlock()
	return n
}

func (r *registry) pids() []int {
	r.mu.Lock()
	out := make([]int, 0, len(r.procs))
	for pid := range r.procs {
		out = append(out, pid)
	}
	r.mu.Unlock()
	return out
}
