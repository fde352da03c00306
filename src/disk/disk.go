// Package disk simulates the single fixed-geometry disk this kernel's
// filesystem is built on: defs.NumSectors sectors of defs.SectorSize
// bytes apiece, read and written whole. Grounded on the teacher's block
// device abstraction (fs.Bdev_req_t/Disk_i/AckCh in
// biscuit/src/fs/blk.go): a request carries a command and an
// acknowledgement channel, and the disk signals completion on that
// channel from its own goroutine (here by closing it), the pattern kept here
// — trimmed from a cached, multi-block, Blockmem_i-backed device to a
// single in-memory byte array, since this kernel has no block cache
// layer sitting above the disk (every read and write goes straight
// through, matching Nachos's SynchDisk/Disk).
package disk

import "simkernel/src/caller"

// request describes one pending sector operation.
type request struct {
	write  bool
	sector int
	data   []byte // for write: data to store; for read: filled on return
	ack    chan struct{}
}

// RawDisk is the asynchronous device: start enqueues a request and
// returns immediately, and the service goroutine closes req.ack as soon
// as it has copied the sector; no seek or rotation delay is simulated.
// It stands in for the original Nachos Disk, which schedules a timer
// interrupt after a fixed rotation delay.
type RawDisk struct {
	sectors [][]byte
	reqs    chan *request
}

// NewRawDisk allocates a disk with numSectors sectors of sectorSize
// bytes, all zeroed, and starts its service goroutine.
func NewRawDisk(numSectors, sectorSize int) *RawDisk {
	d := &RawDisk{
		sectors: make([][]byte, numSectors),
		reqs:    make(chan *request, 16),
	}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, sectorSize)
	}
	go d.service()
	return d
}

func (d *RawDisk) service() {
	for req := range d.reqs {
		caller.Assert(req.sector >= 0 && req.sector < len(d.sectors), "sector out of range")
		if req.write {
			copy(d.sectors[req.sector], req.data)
		} else {
			copy(req.data, d.sectors[req.sector])
		}
		close(req.ack)
	}
}

// start submits a request for asynchronous completion, returning the
// channel that closes once it is done — the RawDisk analogue of the
// teacher's Disk_i.Start/AckCh pair.
func (d *RawDisk) start(write bool, sector int, data []byte) chan struct{} {
	req := &request{write: write, sector: sector, data: data, ack: make(chan struct{})}
	d.reqs <- req
	return req.ack
}

// SynchDisk is the blocking interface every caller outside this package
// uses: ReadSector/WriteSector submit a request and wait for its ack,
// mirroring Nachos's SynchDisk::ReadSector/WriteSector built atop the
// raw, interrupt-driven Disk.
type SynchDisk struct {
	raw *RawDisk
}

// NewSynchDisk wraps raw for synchronous use.
func NewSynchDisk(raw *RawDisk) *SynchDisk {
	return &SynchDisk{raw: raw}
}

// ReadSector blocks until sector's contents are copied into buf, which
// must be at least defs.SectorSize bytes.
func (s *SynchDisk) ReadSector(sector int, buf []byte) {
	<-s.raw.start(false, sector, buf)
}

// WriteSector blocks until buf has been stored as sector's contents.
func (s *SynchDisk) WriteSector(sector int, buf []byte) {
	<-s.raw.start(true, sector, buf)
}

// NumSectors returns the disk's fixed sector count.
func (s *SynchDisk) NumSectors() int {
	return len(s.raw.sectors)
}
