// Package frame implements the physical-frame allocator every AddrSpace
// draws its pages from. Grounded directly on the original FrameProvider
// (frameprovider.cc): a bitmap of frame numbers protected by a single
// semaphore, with GetEmptyFrame/ReleaseFrame/NumAvailFrame exactly as
// there. A Go mutex stands in for the original's page semaphore, since
// this allocator's critical sections never block (unlike a genuine
// Nachos Semaphore, a mutex is the right primitive when nothing P's
// and waits for another thread to V).
package frame

import (
	"sync"

	"simkernel/src/bitmap"
	"simkernel/src/caller"
	"simkernel/src/defs"
)

// FrameProvider hands out and reclaims physical frame numbers.
type FrameProvider struct {
	mu  sync.Mutex
	bm  *bitmap.BitMap
}

// New allocates a FrameProvider tracking numFrames frames, all free.
func New(numFrames int) *FrameProvider {
	return &FrameProvider{bm: bitmap.New(numFrames)}
}

// GetEmptyFrame returns a free frame number, marking it busy, or
// defs.NoFrame if none remain.
func (f *FrameProvider) GetEmptyFrame() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bm.NumClear() <= 0 {
		return defs.NoFrame
	}
	return f.bm.Find()
}

// ReleaseFrame marks frame as free again. It is a fatal assertion to
// release a frame that was not marked busy — the spec's invariant
// violation, not a recoverable caller error, since only this kernel's
// own bookkeeping could cause it.
func (f *FrameProvider) ReleaseFrame(frame int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	caller.Assert(f.bm.Test(frame), "releasing a frame that was never allocated")
	f.bm.Clear(frame)
}

// NumAvailFrame reports how many frames remain free.
func (f *FrameProvider) NumAvailFrame() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bm.NumClear()
}
