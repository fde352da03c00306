package machine

import (
	"encoding/binary"
	"testing"
)

func encodeNoff(order binary.ByteOrder, h NoffHeader) []byte {
	buf := make([]byte, noffHeaderSize)
	put := func(off int, v int32) { order.PutUint32(buf[off:], uint32(v)) }
	put(0, h.Magic)
	put(4, h.Code.Size)
	put(8, h.Code.VirtualAddr)
	put(12, h.Code.InFileAddr)
	put(16, h.InitData.Size)
	put(20, h.InitData.VirtualAddr)
	put(24, h.InitData.InFileAddr)
	put(28, h.UninitData.Size)
	put(32, h.UninitData.VirtualAddr)
	put(36, h.UninitData.InFileAddr)
	return buf
}

func TestDecodeNoffHeaderLittleEndian(t *testing.T) {
	want := NoffHeader{
		Magic: NoffMagic,
		Code:  Segment{Size: 100, VirtualAddr: 0, InFileAddr: 40},
	}
	buf := encodeNoff(binary.LittleEndian, want)

	got, ok := DecodeNoffHeader(buf)
	if !ok {
		t.Fatal("DecodeNoffHeader failed on a valid little-endian header")
	}
	if got.Magic != NoffMagic || got.Code.Size != 100 || got.Code.InFileAddr != 40 {
		t.Fatalf("decoded header = %+v", got)
	}
}

func TestDecodeNoffHeaderByteSwapped(t *testing.T) {
	want := NoffHeader{Magic: NoffMagic, Code: Segment{Size: 8}}
	buf := encodeNoff(binary.BigEndian, want)

	got, ok := DecodeNoffHeader(buf)
	if !ok {
		t.Fatal("DecodeNoffHeader failed to recover a byte-swapped header")
	}
	if got.Magic != NoffMagic {
		t.Fatalf("byte-swapped magic not recovered: %x", got.Magic)
	}
}

func TestDecodeNoffHeaderBadMagic(t *testing.T) {
	buf := make([]byte, noffHeaderSize)
	if _, ok := DecodeNoffHeader(buf); ok {
		t.Fatal("DecodeNoffHeader accepted an all-zero buffer")
	}
}

func TestDecodeNoffHeaderTooShort(t *testing.T) {
	if _, ok := DecodeNoffHeader(make([]byte, 4)); ok {
		t.Fatal("DecodeNoffHeader accepted a too-short buffer")
	}
}

func TestWriteReadMemRoundTrip(t *testing.T) {
	m := New(4, 128)
	m.PageTable = []PageTableEntry{
		{VirtualPage: 0, PhysicalPage: 2, Valid: true},
	}

	if !m.WriteMem(10, 4, 0x11223344, 128) {
		t.Fatal("WriteMem failed on a valid mapped address")
	}
	v, ok := m.ReadMem(10, 4, 128)
	if !ok || v != 0x11223344 {
		t.Fatalf("ReadMem = (%x, %v), want (0x11223344, true)", v, ok)
	}
}

func TestWriteMemUnmappedPage(t *testing.T) {
	m := New(4, 128)
	m.PageTable = []PageTableEntry{{VirtualPage: 0, PhysicalPage: 0, Valid: true}}
	if m.WriteMem(1000, 4, 1, 128) {
		t.Fatal("WriteMem succeeded past the end of the page table")
	}
}

func TestReadMemInvalidPage(t *testing.T) {
	m := New(4, 128)
	m.PageTable = []PageTableEntry{{VirtualPage: 0, PhysicalPage: 0, Valid: false}}
	if _, ok := m.ReadMem(0, 4, 128); ok {
		t.Fatal("ReadMem succeeded on an invalid page table entry")
	}
}

func TestRegisters(t *testing.T) {
	m := New(1, 128)
	m.WriteRegister(5, 42)
	if got := m.ReadRegister(5); got != 42 {
		t.Fatalf("ReadRegister(5) = %d, want 42", got)
	}
}
