package fs

import (
	"testing"

	"simkernel/src/bitmap"
	"simkernel/src/defs"
	"simkernel/src/disk"
)

func newTestDevice() SectorDevice {
	return disk.NewSynchDisk(disk.NewRawDisk(defs.NumSectors, defs.SectorSize))
}

func TestAllocateGrowsAndByteToSectorTracks(t *testing.T) {
	freeMap := bitmap.New(defs.NumSectors)
	dev := newTestDevice()

	h := &FileHeader{Type: defs.Regular}
	if !h.Allocate(freeMap, dev, defs.SectorSize*3+10) {
		t.Fatal("Allocate failed with plenty of free space")
	}
	if h.FileLength() != defs.SectorSize*3+10 {
		t.Fatalf("FileLength() = %d, want %d", h.FileLength(), defs.SectorSize*3+10)
	}
	if int(h.NumSectors) != 4 {
		t.Fatalf("NumSectors = %d, want 4", h.NumSectors)
	}

	for _, off := range []int{0, defs.SectorSize, defs.SectorSize*3 + 9} {
		if s := h.ByteToSector(dev, off); s == defs.NoSector {
			t.Fatalf("ByteToSector(%d) = NoSector, want a valid sector", off)
		}
	}
	if s := h.ByteToSector(dev, h.FileLength()+1); s != defs.NoSector {
		t.Fatalf("ByteToSector past EOF = %d, want defs.NoSector", s)
	}
}

func TestAllocateFailsPastMaxFileSize(t *testing.T) {
	freeMap := bitmap.New(defs.NumSectors)
	dev := newTestDevice()

	h := &FileHeader{Type: defs.Regular}
	if h.Allocate(freeMap, dev, defs.MaxFileSize+1) {
		t.Fatal("Allocate succeeded past MaxFileSize")
	}
}

func TestAllocateFailsWhenDiskFull(t *testing.T) {
	freeMap := bitmap.New(defs.NumSectors)
	// Mark all but one sector busy so growth can't find enough.
	for i := 0; i < defs.NumSectors-1; i++ {
		freeMap.Mark(i)
	}
	dev := newTestDevice()

	h := &FileHeader{Type: defs.Regular}
	if h.Allocate(freeMap, dev, defs.SectorSize*10) {
		t.Fatal("Allocate succeeded without enough free sectors")
	}
}

func TestAllocateAcrossIndexSectorBoundary(t *testing.T) {
	freeMap := bitmap.New(defs.NumSectors)
	dev := newTestDevice()

	h := &FileHeader{Type: defs.Regular}
	size := (defs.MaxPerSector + 5) * defs.SectorSize
	if !h.Allocate(freeMap, dev, size) {
		t.Fatal("Allocate failed crossing an index-sector boundary")
	}
	if int(h.NumIndexSectors) != 2 {
		t.Fatalf("NumIndexSectors = %d, want 2 after crossing MaxPerSector data sectors", h.NumIndexSectors)
	}
	if s := h.ByteToSector(dev, size-1); s == defs.NoSector {
		t.Fatal("ByteToSector failed for the last byte in the second index sector")
	}
}

func TestDeallocateRestoresFreeMap(t *testing.T) {
	freeMap := bitmap.New(defs.NumSectors)
	dev := newTestDevice()

	before := freeMap.NumClear()

	h := &FileHeader{Type: defs.Regular}
	if !h.Allocate(freeMap, dev, defs.SectorSize*5) {
		t.Fatal("Allocate failed")
	}
	h.Deallocate(freeMap, dev, 0)

	if freeMap.NumClear() != before {
		t.Fatalf("NumClear() after Deallocate = %d, want %d (fully restored)", freeMap.NumClear(), before)
	}
	if h.FileLength() != 0 {
		t.Fatalf("FileLength() after Deallocate(...,0) = %d, want 0", h.FileLength())
	}
}

func TestFileHeaderFetchWriteBackRoundTrip(t *testing.T) {
	freeMap := bitmap.New(defs.NumSectors)
	dev := newTestDevice()

	h := &FileHeader{Type: defs.Regular}
	h.Allocate(freeMap, dev, defs.SectorSize*2)
	h.WriteBack(dev, 500)

	var loaded FileHeader
	loaded.FetchFrom(dev, 500)

	if loaded.NumBytes != h.NumBytes || loaded.NumSectors != h.NumSectors ||
		loaded.NumIndexSectors != h.NumIndexSectors || loaded.Type != h.Type {
		t.Fatalf("loaded header %+v != original %+v", loaded, h)
	}
}
