package sched

import (
	"container/heap"
	"fmt"

	"github.com/me/gokern/internal/table"
	"github.com/me/gokern/pkg/model"
)

// readyQueue holds SCHEDULED entries ordered by scheduling counter
// (highest first), then declared priority, then FIFO sequence. The FIFO
// tie-break guarantees round-robin among equals: no starvation.
type readyQueue struct {
	items []*table.Entry
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Counter != b.Counter {
		return a.Counter > b.Counter
	}
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	return a.Seq < b.Seq
}

func (q *readyQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *readyQueue) Push(x any) {
	q.items = append(q.items, x.(*table.Entry))
}

func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return e
}

// enqueue inserts a SCHEDULED entry.
func (q *readyQueue) enqueue(e *table.Entry) {
	if e.State != model.StateScheduled {
		panic(fmt.Sprintf("kernel: enqueueing %s in state %s", e.Pid, e.State))
	}
	heap.Push(q, e)
}

// dequeueHighest removes and returns the best entry, or nil when empty.
func (q *readyQueue) dequeueHighest() *table.Entry {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q).(*table.Entry)
}

// maxCounter returns the largest counter currently queued. The heap root
// maximizes the counter (it is the first comparison key), so this is the
// root's counter.
func (q *readyQueue) maxCounter() (uint64, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].Counter, true
}

// waitingSet holds the pids of blocked processes in insertion order, so
// the per-pass scan is deterministic and O(number of waiters).
type waitingSet struct {
	pids  []model.Pid
	index map[model.Pid]struct{}
}

func newWaitingSet() waitingSet {
	return waitingSet{index: make(map[model.Pid]struct{})}
}

func (w *waitingSet) add(pid model.Pid) {
	if _, ok := w.index[pid]; ok {
		panic(fmt.Sprintf("kernel: %s already in waiting set", pid))
	}
	w.index[pid] = struct{}{}
	w.pids = append(w.pids, pid)
}

func (w *waitingSet) remove(pid model.Pid) {
	if _, ok := w.index[pid]; !ok {
		panic(fmt.Sprintf("kernel: %s not in waiting set", pid))
	}
	delete(w.index, pid)
	for i, p := range w.pids {
		if p == pid {
			w.pids = append(w.pids[:i], w.pids[i+1:]...)
			break
		}
	}
}

// list returns a snapshot of the waiting pids; the scan iterates the
// snapshot so wakes can mutate the set mid-scan.
func (w *waitingSet) list() []model.Pid {
	out := make([]model.Pid, len(w.pids))
	copy(out, w.pids)
	return out
}

func (w *waitingSet) len() int {
	return len(w.pids)
}
