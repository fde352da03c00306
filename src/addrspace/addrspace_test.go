package addrspace

import (
	"testing"

	"simkernel/src/defs"
	"simkernel/src/frame"
	"simkernel/src/machine"
)

type fakeExe struct {
	noff []byte
	code []byte
}

func (e *fakeExe) ReadAt(buf []byte, position int) int {
	if position == 0 {
		return copy(buf, e.noff)
	}
	return copy(buf, e.code)
}

func makeNoffExe(codeSize, codeInFileAddr int32) *fakeExe {
	noff := make([]byte, 40)
	put := func(off int, v int32) {
		noff[off] = byte(v)
		noff[off+1] = byte(v >> 8)
		noff[off+2] = byte(v >> 16)
		noff[off+3] = byte(v >> 24)
	}
	put(0, machine.NoffMagic)
	put(4, codeSize)
	put(8, 0)
	put(12, codeInFileAddr)

	code := make([]byte, codeSize)
	for i := range code {
		code[i] = byte(i + 1)
	}
	return &fakeExe{noff: noff, code: code}
}

func TestNewLoadsCodeSegmentIntoMemory(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(defs.NumPhysPages)
	exe := makeNoffExe(16, 40)

	as := New(exe, fp, m)
	if as.IsOverflow {
		t.Fatal("construction overflowed with plenty of free frames")
	}

	as.RestoreState(m)
	v, ok := m.ReadMem(0, 4, defs.PageSize)
	if !ok {
		t.Fatal("ReadMem failed on a mapped page right after load")
	}
	want := int32(1) | int32(2)<<8 | int32(3)<<16 | int32(4)<<24
	if v != want {
		t.Fatalf("loaded code word = %#x, want %#x", v, want)
	}
}

func TestNewOverflowWhenFramesExhausted(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	// The stack region alone needs UserStackSize/PageSize pages, well
	// more than the two frames this provider has to give.
	fp := frame.New(2)
	exe := makeNoffExe(0, 40)

	as := New(exe, fp, m)
	if !as.IsOverflow {
		t.Fatal("construction should overflow when the program needs more frames than exist")
	}
}

func TestDestroyReleasesExactlyNumPagesFrames(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(defs.NumPhysPages)
	before := fp.NumAvailFrame()

	as := NewBare(fp, m)
	if as.IsOverflow {
		t.Fatal("NewBare overflowed unexpectedly")
	}
	duringAlloc := fp.NumAvailFrame()
	if duringAlloc >= before {
		t.Fatal("NewBare did not actually consume any frames")
	}

	as.Destroy()
	if fp.NumAvailFrame() != before {
		t.Fatalf("NumAvailFrame() after Destroy = %d, want %d (fully released)", fp.NumAvailFrame(), before)
	}
}

func TestDestroyOnOverflowSpaceIsNoop(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(1)
	exe := makeNoffExe(0, 40)
	as := New(exe, fp, m)
	if !as.IsOverflow {
		t.Fatal("expected overflow")
	}
	before := fp.NumAvailFrame()
	as.Destroy()
	if fp.NumAvailFrame() != before {
		t.Fatal("Destroy on an overflowed space should not touch the frame provider")
	}
}

func TestUserStackAllocateAndRevoke(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(defs.NumPhysPages)
	as := NewBare(fp, m)

	slot := as.UserStackAllocate()
	if slot == defs.NoThread {
		t.Fatal("UserStackAllocate failed with a fresh address space")
	}
	if !as.stackMap.Test(slot) {
		t.Fatal("allocated slot is not marked busy")
	}

	as.RevokeStack(slot)
	if as.stackMap.Test(slot) {
		t.Fatal("revoked slot is still marked busy")
	}
}

func TestUserStackAllocateExhausted(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(defs.NumPhysPages)
	as := NewBare(fp, m)

	for {
		slot := as.UserStackAllocate()
		if slot == defs.NoThread {
			break
		}
	}
	if as.IsStackFree() {
		t.Fatal("IsStackFree reports true once every slot is allocated")
	}
}

func TestIsLastThreadReturnsImmediatelyWithNoChildren(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(defs.NumPhysPages)
	as := NewBare(fp, m)

	done := make(chan struct{})
	go func() {
		as.IsLastThread()
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done
}

func TestJoinSemStartsAtOneThenBlocksUntilV(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(defs.NumPhysPages)
	as := NewBare(fp, m)

	slot := as.UserStackAllocate()

	// The initial post is the one UserThreadCreate drains eagerly, on
	// the calling kernel's behalf, before the new thread ever runs (see
	// kernel.System.UserThreadCreate); exercised directly here since
	// AddrSpace alone has no notion of "the creator".
	as.JoinSem(slot).P()

	released := make(chan struct{})
	go func() {
		as.JoinSem(slot).P()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("JoinSem().P() returned before any V, after the initial post was drained")
	default:
	}

	as.JoinSem(slot).V()
	<-released
}

func TestStackSlotAllocatedTracksEverAllocatedNotCurrentlyLive(t *testing.T) {
	m := machine.New(defs.NumPhysPages, defs.PageSize)
	fp := frame.New(defs.NumPhysPages)
	as := NewBare(fp, m)

	if as.StackSlotAllocated(4) {
		t.Fatal("a slot nothing has ever allocated should not be StackSlotAllocated")
	}

	slot := as.UserStackAllocate()
	if !as.StackSlotAllocated(slot) {
		t.Fatal("StackSlotAllocated(slot) should be true right after allocation")
	}
	if as.StackSlotAllocated(slot + 1000) {
		t.Fatal("StackSlotAllocated should be false for an out-of-range slot")
	}

	// Revoking the slot frees it for reuse but does not erase that a
	// real thread once lived there — joining an already-exited thread
	// must keep working.
	as.RevokeStack(slot)
	if !as.StackSlotAllocated(slot) {
		t.Fatal("StackSlotAllocated(slot) should stay true after the thread there exits and revokes its stack")
	}
}
