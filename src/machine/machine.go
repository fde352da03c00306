// Package machine simulates the hardware this kernel runs on: a flat
// physical memory, a linear per-address-space page table, and a
// register file addressed the way the syscall trap boundary expects
// (see defs.RetReg and friends). Decoding real MIPS instructions is out
// of scope; a "user program" is a registered Go closure that reads and
// writes the Machine's registers and memory directly, the same
// contract a real MIPS program would have through loads/stores and the
// syscall trap.
//
// Physical memory here is a flat byte slice rather than the teacher's
// reference-counted page allocator (biscuit/src/mem/mem.go's
// Physmem_t, built around unsafe.Pointer and runtime-level page
// tables) — this kernel never runs on bare hardware, so a plain slice
// indexed by frame number serves the same role without the unsafe
// pointer arithmetic a hosted module has no business doing. The NOFF
// header layout and its byte-swap detection are carried over verbatim
// from the original addrspace.cc/noff.h (see DecodeNoffHeader below).
package machine

import (
	"encoding/binary"

	"simkernel/src/defs"
)

// NumTotalRegs is the register file size: defs.NumRegs general-purpose
// registers plus PC, NextPC and PrevPC.
const NumTotalRegs = defs.NumRegs + 3

// Registers is the user-visible CPU state saved and restored across a
// context switch, mirroring Nachos's Thread::userRegisters.
type Registers [NumTotalRegs]int32

// NoffMagic identifies a valid NOFF executable header.
const NoffMagic int32 = 0x456789ab

// Segment describes one NOFF segment: its size, the virtual address it
// loads at, and its offset within the executable file.
type Segment struct {
	Size         int32
	VirtualAddr  int32
	InFileAddr   int32
}

// NoffHeader is the on-disk executable header this kernel's loader
// understands: a magic number followed by code, initialized-data and
// uninitialized-data segment descriptors, in that order — the same
// layout as the original Nachos NOFF format.
type NoffHeader struct {
	Magic      int32
	Code       Segment
	InitData   Segment
	UninitData Segment
}

const noffHeaderSize = 4 + 3*12

// DecodeNoffHeader parses a NOFF header from buf, byte-swapping it if
// the magic number only matches after a word swap (SwapHeader in the
// original addrspace.cc, there applied unconditionally whenever a
// little/big-endian mismatch between the compiling and running host
// was detected).
func DecodeNoffHeader(buf []byte) (NoffHeader, bool) {
	if len(buf) < noffHeaderSize {
		return NoffHeader{}, false
	}
	h := readNoffHeader(buf, binary.LittleEndian)
	if h.Magic == NoffMagic {
		return h, true
	}
	h = readNoffHeader(buf, binary.BigEndian)
	if h.Magic == NoffMagic {
		return h, true
	}
	return NoffHeader{}, false
}

func readNoffHeader(buf []byte, order binary.ByteOrder) NoffHeader {
	read := func(off int) int32 { return int32(order.Uint32(buf[off:])) }
	return NoffHeader{
		Magic: read(0),
		Code: Segment{
			Size: read(4), VirtualAddr: read(8), InFileAddr: read(12),
		},
		InitData: Segment{
			Size: read(16), VirtualAddr: read(20), InFileAddr: read(24),
		},
		UninitData: Segment{
			Size: read(28), VirtualAddr: read(32), InFileAddr: read(36),
		},
	}
}

// PageTableEntry maps one virtual page to a physical frame, with the
// same fields Nachos's TranslationEntry carries (minus Use/Dirty, which
// no component of this kernel consults: there is no replacement
// policy or demand paging here).
type PageTableEntry struct {
	VirtualPage  int
	PhysicalPage int
	Valid        bool
	ReadOnly     bool
}

// Machine holds the simulated physical memory and the currently
// installed page table and register file — the pieces of hardware
// state an AddrSpace's SaveState/RestoreState swap in and out on a
// context switch.
type Machine struct {
	Mem       []byte
	PageTable []PageTableEntry
	Regs      Registers
}

// New allocates a Machine with numPhysPages frames of pageSize bytes.
func New(numPhysPages, pageSize int) *Machine {
	return &Machine{Mem: make([]byte, numPhysPages*pageSize)}
}

// translate converts a virtual address to its physical offset in Mem,
// reporting false if the page is not mapped or valid.
func (m *Machine) translate(vaddr, pageSize int) (int, bool) {
	vpn := vaddr / pageSize
	off := vaddr % pageSize
	if vpn < 0 || vpn >= len(m.PageTable) {
		return 0, false
	}
	pte := m.PageTable[vpn]
	if !pte.Valid {
		return 0, false
	}
	return pte.PhysicalPage*pageSize + off, true
}

// WriteMem stores the low nbytes of value at the given virtual address,
// little-endian, mirroring Machine::WriteMem's byte-at-a-time contract
// in the original simulator.
func (m *Machine) WriteMem(vaddr, nbytes int, value int32, pageSize int) bool {
	phys, ok := m.translate(vaddr, pageSize)
	if !ok || phys+nbytes > len(m.Mem) {
		return false
	}
	for i := 0; i < nbytes; i++ {
		m.Mem[phys+i] = byte(value >> uint(8*i))
	}
	return true
}

// ReadMem loads nbytes from the given virtual address, little-endian.
func (m *Machine) ReadMem(vaddr, nbytes int, pageSize int) (int32, bool) {
	phys, ok := m.translate(vaddr, pageSize)
	if !ok || phys+nbytes > len(m.Mem) {
		return 0, false
	}
	var v int32
	for i := 0; i < nbytes; i++ {
		v |= int32(m.Mem[phys+i]) << uint(8*i)
	}
	return v, true
}

// WriteRegister sets register r.
func (m *Machine) WriteRegister(r int, v int32) {
	m.Regs[r] = v
}

// ReadRegister returns register r.
func (m *Machine) ReadRegister(r int) int32 {
	return m.Regs[r]
}
