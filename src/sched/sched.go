// Package sched implements the kernel's cooperative thread scheduler:
// the guarantee, central to every other package in this module, that
// exactly one kernel thread is ever doing work at a time, and that a
// thread only ever gives up the processor at a semaphore wait, an
// explicit Yield, or while blocked on a simulated device completion.
//
// The original Nachos kernel gets this guarantee by running on a single
// OS thread with hand-rolled context switches (Thread::Fork, ::Yield,
// ::Sleep in userthread.cc/synch.cc). This module is hosted Go, not a
// freestanding kernel, so real goroutines stand in for Nachos's raw
// stacks; a baton token is threaded between them so that only the
// goroutine holding it ever touches kernel state, which is what
// preserves the spec's single-threaded invariants despite running on
// the Go runtime's real scheduler underneath. The baton hand-off is
// grounded on the request/completion rendezvous the teacher uses for
// simulated device I/O, fs.Bdev_req_t's AckCh (biscuit/src/fs/blk.go);
// per-thread bookkeeping is grounded on the teacher's Tnote_t
// (biscuit/src/tinfo/tinfo.go), adapted from true goroutine-local state
// (runtime.Gptr/Setgptr, calls into a Go runtime the teacher patched
// itself — unavailable to a hosted module) to an explicit baton-holder
// pointer, since only one CoopThread is ever actually running.
package sched

import (
	"sync"

	"simkernel/src/defs"
)

// Tid names a kernel thread.
type Tid int

// State is a thread's scheduling state.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Finished
)

// CoopThread is one kernel thread of control.
type CoopThread struct {
	ID    Tid
	State State

	// StackSlot is the user stack region this thread owns, an index
	// into the owning AddrSpace's stack map, or defs.NoThread for the
	// process's initial thread.
	StackSlot int
	// DependentTID is the stack slot of the thread this one is waiting
	// on in a pending UserThreadJoin, or defs.NoThread if it is not
	// joining anyone.
	DependentTID Tid

	resume chan struct{}
	done   chan struct{}
}

// Scheduler hands a single baton between CoopThreads so that at most
// one of them runs at a time. Create one with NewScheduler; the zero
// value has no thread table, and Fork on it panics.
type Scheduler struct {
	mu      sync.Mutex
	next    Tid
	threads map[Tid]*CoopThread
	current Tid
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{threads: make(map[Tid]*CoopThread), current: defs.NoThread}
}

// Current returns the thread presently holding the baton, or nil if
// called outside any scheduled thread's body.
func (s *Scheduler) Current() *CoopThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[s.current]
}

// Fork starts body running as a new thread and returns its Tid
// immediately; body does not begin executing until the scheduler next
// hands it the baton. stackSlot records which user stack region (if
// any) the new thread owns.
func (s *Scheduler) Fork(body func(), stackSlot int) Tid {
	s.mu.Lock()
	id := s.next
	s.next++
	t := &CoopThread{
		ID:           id,
		State:        Ready,
		StackSlot:    stackSlot,
		DependentTID: Tid(defs.NoThread),
		resume:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.threads[id] = t
	s.mu.Unlock()

	go func() {
		<-t.resume
		body()
		s.finish(t)
	}()
	return id
}

// Run hands the baton to tid and blocks the caller until the baton
// comes back around to whichever thread called Run — i.e. it performs
// one context switch and waits for the switched-to thread's body to
// finish, then makes the caller the current thread again. Callers are
// themselves running inside a CoopThread body (or the bootstrap
// goroutine that starts the first thread).
func (s *Scheduler) Run(tid Tid) {
	s.mu.Lock()
	t, ok := s.threads[tid]
	if !ok || t.State == Finished {
		s.mu.Unlock()
		return
	}
	prev := s.current
	t.State = Running
	s.current = tid
	s.mu.Unlock()

	t.resume <- struct{}{}
	<-t.done

	s.mu.Lock()
	s.current = prev
	s.mu.Unlock()
}

// finish marks t as finished and releases whoever is waiting in Run.
func (s *Scheduler) finish(t *CoopThread) {
	s.mu.Lock()
	t.State = Finished
	s.mu.Unlock()
	t.done <- struct{}{}
}

// Yield is a no-op marker in this single-baton model: the caller
// retains the baton until it next calls Run on another thread or
// blocks in a Semaphore. Kept as an explicit call so that call sites
// mirroring the original Thread::Yield() read the same way; unlike
// Nachos, there is no ready queue to rotate since the baton model makes
// every switch an explicit Run.
func (s *Scheduler) Yield() {}

// Semaphore is the classic counting semaphore, the kernel's only
// blocking synchronization primitive (user-thread join, stack-map
// locking and the console's device waits build on it; the disk waits on
// its own request channels instead). Modeled directly on Nachos's
// Semaphore::P/V (threads/synch.cc): P blocks while the count is zero,
// V wakes one waiter if any are parked.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
}

// MkSemaphore returns a semaphore initialized to initial.
func MkSemaphore(initial int) *Semaphore {
	return &Semaphore{count: initial}
}

// P decrements the semaphore, parking the calling goroutine if the
// count is already zero until a matching V wakes it.
func (sem *Semaphore) P() {
	sem.mu.Lock()
	if sem.count > 0 {
		sem.count--
		sem.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	sem.waiters = append(sem.waiters, ch)
	sem.mu.Unlock()
	<-ch
}

// TryP decrements the semaphore without blocking if it is already
// positive, reporting whether it did so. Used where a caller wants to
// drain a possible stale post without risking a wait that nothing will
// ever satisfy (see addrspace's join semaphores, reused across thread
// generations that share one stack slot).
func (sem *Semaphore) TryP() bool {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	if sem.count > 0 {
		sem.count--
		return true
	}
	return false
}

// V increments the semaphore, waking one waiter if any are parked.
func (sem *Semaphore) V() {
	sem.mu.Lock()
	if len(sem.waiters) > 0 {
		ch := sem.waiters[0]
		sem.waiters = sem.waiters[1:]
		sem.mu.Unlock()
		ch <- struct{}{}
		return
	}
	sem.count++
	sem.mu.Unlock()
}
