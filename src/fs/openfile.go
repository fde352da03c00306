package fs

import (
	"simkernel/src/bitmap"
	"simkernel/src/defs"
)

// OpenFile is a handle on a file's header plus the sector device it
// lives on, translating byte-range reads and writes through
// FileHeader.ByteToSector. Grounded on the original OpenFile/SynchDisk
// contract (§4.6): sector-level I/O is always whole-sector, one sector
// at a time, blocking the calling kernel thread until the simulated
// disk acknowledges.
type OpenFile struct {
	Header *FileHeader
	Sector int // the header's own sector, for WriteBack
	dev    SectorDevice
}

// Open wraps hdr, already loaded from sector, for reading and writing.
func Open(hdr *FileHeader, sector int, dev SectorDevice) *OpenFile {
	return &OpenFile{Header: hdr, Sector: sector, dev: dev}
}

// ReadAt copies up to len(buf) bytes starting at offset into buf,
// returning the count actually read (truncated at end of file).
func (f *OpenFile) ReadAt(buf []byte, offset int) int {
	n := len(buf)
	if offset+n > f.Header.FileLength() {
		n = f.Header.FileLength() - offset
	}
	if n <= 0 {
		return 0
	}
	sectorBuf := make([]byte, defs.SectorSize)
	read := 0
	for read < n {
		pos := offset + read
		sector := f.Header.ByteToSector(f.dev, pos)
		f.dev.ReadSector(sector, sectorBuf)
		off := pos % defs.SectorSize
		c := copy(buf[read:n], sectorBuf[off:])
		read += c
	}
	return read
}

// WriteAt writes buf at offset, growing the file (via the header's
// Allocate, against the caller-supplied free map) if offset+len(buf)
// exceeds the current length. It returns the count written, which may
// be less than len(buf) if growth fails.
func (f *OpenFile) WriteAt(buf []byte, offset int, freeMap *bitmap.BitMap) int {
	need := offset + len(buf) - f.Header.FileLength()
	if need > 0 {
		if !f.Header.Allocate(freeMap, f.dev, need) {
			return 0
		}
	}
	sectorBuf := make([]byte, defs.SectorSize)
	written := 0
	for written < len(buf) {
		pos := offset + written
		sector := f.Header.ByteToSector(f.dev, pos)
		off := pos % defs.SectorSize
		f.dev.ReadSector(sector, sectorBuf)
		c := copy(sectorBuf[off:], buf[written:])
		f.dev.WriteSector(sector, sectorBuf)
		written += c
	}
	return written
}
