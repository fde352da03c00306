// Package addrspace implements AddrSpace — a user process's page table,
// per-thread stack bookkeeping, and the join semaphores the user-thread
// layer rendezvous on. The user-thread operations built on top of it
// (UserThreadCreate/Exit/Join) live in package kernel.
// Grounded directly on the original userprog/addrspace.{h,cc} and
// userprog/userthread.cc, with the two flagged bugs corrected per
// spec.md §9: destruction releases exactly numPages frames (not the
// isOverflow counter, which the original reused as a loop bound by
// mistake), and the per-thread stack bitmap size is MAX_USER_THREADS =
// divRoundUp(UserStackSize, PageSize), matching defs.MaxUserThreads.
package addrspace

import (
	"simkernel/src/bitmap"
	"simkernel/src/caller"
	"simkernel/src/defs"
	"simkernel/src/frame"
	"simkernel/src/machine"
	"simkernel/src/sched"
	"simkernel/src/util"
)

// AddrSpace is one user process's virtual memory: a page table mapping
// every virtual page to a physical frame, plus the bitmap tracking
// which slots of the user stack region are occupied by live threads.
type AddrSpace struct {
	pageTable []machine.PageTableEntry
	numPages  int
	frames    *frame.FrameProvider
	mem       []byte // the Machine's shared physical memory

	stackMap    *bitmap.BitMap
	everUsed    [defs.MaxUserThreads]bool
	numThreads  int
	isEnding    bool
	stackMutex  *sched.Semaphore
	blockFinal  *sched.Semaphore
	joinSem     [defs.MaxUserThreads]*sched.Semaphore

	// IsOverflow records that construction could not acquire enough
	// frames; such a space is otherwise zero-valued and must not be
	// used except to check this flag.
	IsOverflow bool
}

// Executable is the minimal contract AddrSpace needs of an open
// executable file: read n bytes starting at position.
type Executable interface {
	ReadAt(buf []byte, position int) int
}

// New constructs an AddrSpace by loading exe, a NOFF-formatted
// executable, into a fresh page table backed by frames from fp. m's
// physical memory is where the loaded segments and zero-fill actually
// land; m's own page table and registers are untouched until a thread
// running in this space is scheduled and RestoreState installs them.
// Mirrors AddrSpace::AddrSpace: on insufficient frames it returns a
// space with IsOverflow set and nothing else initialized — callers
// must check IsOverflow before using the space further.
func New(exe Executable, fp *frame.FrameProvider, m *machine.Machine) *AddrSpace {
	hdrBuf := make([]byte, 128)
	exe.ReadAt(hdrBuf, 0)
	noff, ok := machine.DecodeNoffHeader(hdrBuf)
	caller.Assert(ok, "bad NOFF magic")

	size := int(noff.Code.Size + noff.InitData.Size + noff.UninitData.Size + defs.UserStackSize)
	numPages := util.DivRoundUp(size, defs.PageSize)

	as := newPages(fp, m, numPages)
	if as.IsOverflow {
		return as
	}
	as.zero()
	as.loadSegment(exe, noff.Code)
	as.loadSegment(exe, noff.InitData)
	return as
}

// NewBare constructs an AddrSpace with nothing but a stack region —
// no NOFF segments to load — for a registered in-memory program body
// that manipulates its Env directly instead of being interpreted as
// translated MIPS instructions (see program.Func). It shares the same
// stack bookkeeping (stackMap, join semaphores, IsLastThread) as a
// disk-loaded process, since those invariants don't depend on having
// real code or data segments.
func NewBare(fp *frame.FrameProvider, m *machine.Machine) *AddrSpace {
	numPages := util.DivRoundUp(defs.UserStackSize, defs.PageSize)
	return newPages(fp, m, numPages)
}

// newPages allocates numPages frames and initializes the stack and
// join-semaphore bookkeeping common to every AddrSpace, regardless of
// whether it will go on to load NOFF segments.
func newPages(fp *frame.FrameProvider, m *machine.Machine, numPages int) *AddrSpace {
	caller.Assert(numPages <= defs.NumPhysPages, "address space too large for physical memory")

	as := &AddrSpace{frames: fp, mem: m.Mem}
	if fp.NumAvailFrame() < numPages {
		as.IsOverflow = true
		return as
	}

	as.numPages = numPages
	as.pageTable = make([]machine.PageTableEntry, numPages)
	for i := range as.pageTable {
		as.pageTable[i] = machine.PageTableEntry{
			VirtualPage:  i,
			PhysicalPage: fp.GetEmptyFrame(),
			Valid:        true,
		}
	}

	// Each join semaphore starts at 1, not 0: a stack slot is reused
	// across thread generations, and the creator of a new thread drains
	// this initial post with a non-blocking TryP before the thread ever runs (see
	// kernel.System.UserThreadCreate). That drain is what clears out a
	// stale V left behind by a previous occupant of the same slot that
	// exited without ever being joined — without it, joining the new
	// thread could return immediately on the strength of a post that
	// belonged to a thread that no longer exists.
	for i := range as.joinSem {
		as.joinSem[i] = sched.MkSemaphore(1)
	}
	as.stackMap = bitmap.New(defs.MaxUserThreads)
	for i := 0; i < defs.NumThreadPages; i++ {
		as.stackMap.Mark(i)
	}
	as.stackMutex = sched.MkSemaphore(1)
	as.blockFinal = sched.MkSemaphore(0)
	return as
}

// zero clears the entire virtual address space, word by word, through
// this space's own page table — ReadAtVirtual's zeroing pass in the
// original constructor.
func (as *AddrSpace) zero() {
	for addr := 0; addr < as.numPages*defs.PageSize; addr += 4 {
		as.writeMemRaw(addr, 4, 0)
	}
}

// loadSegment copies seg's bytes from exe into the virtual address
// space at seg.VirtualAddr, mirroring ReadAtVirtual.
func (as *AddrSpace) loadSegment(exe Executable, seg machine.Segment) {
	if seg.Size <= 0 {
		return
	}
	buf := make([]byte, seg.Size)
	exe.ReadAt(buf, int(seg.InFileAddr))
	for i := 0; i < len(buf); i += 4 {
		var word int32
		for j := 0; j < 4 && i+j < len(buf); j++ {
			word |= int32(buf[i+j]) << uint(8*j)
		}
		as.writeMemRaw(int(seg.VirtualAddr)+i, 4, word)
	}
}

// writeMemRaw writes directly through this space's own page table into
// the shared physical memory, independent of whatever page table a
// Machine currently has installed — used only during construction,
// before any thread is running the program.
func (as *AddrSpace) writeMemRaw(vaddr, nbytes int, value int32) {
	vpn := vaddr / defs.PageSize
	off := vaddr % defs.PageSize
	if vpn < 0 || vpn >= len(as.pageTable) {
		return
	}
	phys := as.pageTable[vpn].PhysicalPage*defs.PageSize + off
	for i := 0; i < nbytes; i++ {
		as.mem[phys+i] = byte(value >> uint(8*i))
	}
}

// InitRegisters zeroes every register and sets PC/NextPC/StackReg for
// a fresh process about to start executing at its entry point.
func (as *AddrSpace) InitRegisters(m *machine.Machine) {
	for i := 0; i < machine.NumTotalRegs; i++ {
		m.WriteRegister(i, 0)
	}
	m.WriteRegister(defs.PCReg, 0)
	m.WriteRegister(defs.NextPC, 4)
	m.WriteRegister(defs.StackReg, int32(as.numPages*defs.PageSize-16))
}

// SaveState snapshots m's installed page table into this space, so a
// later RestoreState can bring it back for a different thread's turn.
func (as *AddrSpace) SaveState(m *machine.Machine) {
	as.pageTable = m.PageTable
	as.numPages = len(m.PageTable)
}

// RestoreState installs this space's page table on m.
func (as *AddrSpace) RestoreState(m *machine.Machine) {
	m.PageTable = as.pageTable
}

// IsStackFree reports whether at least one stack slot is free.
func (as *AddrSpace) IsStackFree() bool {
	return as.stackMap.NumClear() > 0
}

// UserStackAllocate finds the lowest run of NumThreadPages contiguous
// clear bits, marks them, and returns the run's first index, or
// defs.NoThread if no such run exists.
func (as *AddrSpace) UserStackAllocate() int {
	as.stackMutex.P()
	defer as.stackMutex.V()

	for start := 0; start+defs.NumThreadPages <= defs.MaxUserThreads; start++ {
		free := true
		for i := 0; i < defs.NumThreadPages; i++ {
			if as.stackMap.Test(start + i) {
				free = false
				break
			}
		}
		if free {
			for i := 0; i < defs.NumThreadPages; i++ {
				as.stackMap.Mark(start + i)
				as.everUsed[start+i] = true
			}
			as.numThreads++
			return start
		}
	}
	return defs.NoThread
}

// RevokeStack clears the NumThreadPages-wide run starting at slot,
// decrementing numThreads and, if this was the last thread and the
// space is ending, releasing whoever is waiting in IsLastThread.
func (as *AddrSpace) RevokeStack(slot int) {
	as.stackMutex.P()
	defer as.stackMutex.V()

	for i := 0; i < defs.NumThreadPages; i++ {
		caller.Assert(as.stackMap.Test(slot+i), "revoking a stack slot that was never allocated")
		as.stackMap.Clear(slot + i)
	}
	as.numThreads--
	if as.isEnding && as.numThreads == 0 {
		as.blockFinal.V()
	}
}

// GetStack returns the virtual stack pointer for the thread owning
// slot: the top of the address space, minus slot pages.
func (as *AddrSpace) GetStack(slot int) int {
	return defs.PageSize*as.numPages - slot*defs.PageSize
}

// IsLastThread blocks the caller until every other user thread in this
// space has exited, used by the process-exit path so the space is not
// torn down while siblings still run.
func (as *AddrSpace) IsLastThread() {
	if as.numThreads != 0 {
		as.isEnding = true
		as.blockFinal.P()
		as.isEnding = false
	}
}

// JoinSem returns the join semaphore for stack slot slot.
func (as *AddrSpace) JoinSem(slot int) *sched.Semaphore {
	return as.joinSem[slot]
}

// StackSlotAllocated reports whether slot has ever been handed out by
// UserStackAllocate, i.e. whether it names a thread that genuinely
// existed — the valid target set for UserThreadJoin. This checks
// everUsed rather than the live stackMap: UserThreadCreate in this
// kernel hands the baton straight to the new thread and blocks until
// it finishes (sched.Scheduler.Run), so by the time a caller can reach
// UserThreadJoin at all, the target's slot has ordinarily already been
// revoked — the common case, not a misuse. What UserThreadJoin must
// actually reject is a tid nothing ever allocated.
func (as *AddrSpace) StackSlotAllocated(slot int) bool {
	as.stackMutex.P()
	defer as.stackMutex.V()

	if slot < 0 || slot+defs.NumThreadPages > defs.MaxUserThreads {
		return false
	}
	return as.everUsed[slot]
}

// Destroy releases every frame this space owns back to its
// FrameProvider. If construction overflowed, there is nothing to
// release. This iterates exactly numPages times — the original's
// `for i := 0; i < isOverflow; i++` used the wrong bound and leaked
// every frame on every successful destruction; see spec §9.
func (as *AddrSpace) Destroy() {
	if as.IsOverflow {
		return
	}
	for i := 0; i < as.numPages; i++ {
		as.frames.ReleaseFrame(as.pageTable[i].PhysicalPage)
	}
}
