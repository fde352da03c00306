// Package bitmap implements a fixed-size bit vector used to track free
// disk sectors, along with the FetchFrom/WriteBack helpers that persist
// it through a sector-addressed block device. Grounded on the original
// Nachos BitMap (bitmap.h/bitmap.cc, referenced throughout
// filesys/filesys.cc as freeMap->Mark/Clear/Test/Find/NumClear/
// FetchFrom/WriteBack/Print) and on the teacher's field-accessor style
// for packing integers into an on-disk byte blob (fs.Superblock_t's
// fieldr/fieldw in biscuit/src/fs/super.go).
package bitmap

import "encoding/binary"

const bitsPerWord = 8

// BitMap is a vector of nbits single-bit flags, one per disk sector.
type BitMap struct {
	nbits int
	nwords int
	bits  []uint8 // one bit per map entry, packed 8 to a byte
}

// disk backing this bitmap persists through: a FetchFrom/WriteBack
// counterpart implements this so bitmap need not import the disk
// package directly (which would create an import cycle with fs).
type SectorDevice interface {
	ReadSector(sector int, buf []byte)
	WriteSector(sector int, buf []byte)
}

// New allocates a clear bitmap with room for nbits flags.
func New(nbits int) *BitMap {
	nwords := (nbits + bitsPerWord - 1) / bitsPerWord
	return &BitMap{nbits: nbits, nwords: nwords, bits: make([]uint8, nwords)}
}

// Mark sets bit which, recording that the corresponding sector is in use.
func (b *BitMap) Mark(which int) {
	b.bits[which/bitsPerWord] |= 1 << uint(which%bitsPerWord)
}

// Clear unsets bit which, recording that the corresponding sector is free.
func (b *BitMap) Clear(which int) {
	b.bits[which/bitsPerWord] &^= 1 << uint(which%bitsPerWord)
}

// Test reports whether bit which is set.
func (b *BitMap) Test(which int) bool {
	return b.bits[which/bitsPerWord]&(1<<uint(which%bitsPerWord)) != 0
}

// Find locates a clear bit, marks it, and returns its index; it returns
// -1 if every bit is set.
func (b *BitMap) Find() int {
	for i := 0; i < b.nbits; i++ {
		if !b.Test(i) {
			b.Mark(i)
			return i
		}
	}
	return -1
}

// NumClear returns the count of unset bits.
func (b *BitMap) NumClear() int {
	n := 0
	for i := 0; i < b.nbits; i++ {
		if !b.Test(i) {
			n++
		}
	}
	return n
}

// Nbits returns the bitmap's fixed size.
func (b *BitMap) Nbits() int {
	return b.nbits
}

// Bytes returns the packed on-disk representation, zero-padded to fill
// complete sectors when sectorSize exceeds the bitmap's own byte length.
func (b *BitMap) Bytes(sectorSize int) []byte {
	out := make([]byte, sectorSize)
	copy(out, b.bits)
	return out
}

// FetchFrom reads sectors [0, numSectors) of dev into the bitmap, where
// numSectors is however many sector-sized chunks the packed bit vector
// spans (mirroring the original's "bitmap is itself a normal data file"
// convention: its content, not its FileHeader, lives in these sectors).
func (b *BitMap) FetchFrom(dev SectorDevice, sectorSize int) {
	buf := make([]byte, sectorSize)
	off := 0
	for sec := 0; off < len(b.bits); sec++ {
		dev.ReadSector(sec, buf)
		off += copy(b.bits[off:], buf)
	}
}

// WriteBack persists the bitmap's packed bytes to dev, sector by sector.
func (b *BitMap) WriteBack(dev SectorDevice, sectorSize int) {
	off := 0
	for sec := 0; off < len(b.bits); sec++ {
		buf := make([]byte, sectorSize)
		off += copy(buf, b.bits[off:])
		dev.WriteSector(sec, buf)
	}
}

// RawBytes returns a copy of the bitmap's packed bits, unpadded — the
// representation written through a FileHeader-backed OpenFile rather
// than directly to fixed sectors (see fs.FileSystem's free-map file).
func (b *BitMap) RawBytes() []byte {
	return append([]byte(nil), b.bits...)
}

// LoadRawBytes replaces the bitmap's packed bits with buf, the inverse
// of RawBytes.
func (b *BitMap) LoadRawBytes(buf []byte) {
	copy(b.bits, buf)
}

// MarshalBinary encodes the bitmap's size and bits for embedding in a
// larger on-disk structure, little-endian, matching the teacher's
// fixed-width field convention.
func (b *BitMap) MarshalBinary() []byte {
	out := make([]byte, 4+len(b.bits))
	binary.LittleEndian.PutUint32(out[0:4], uint32(b.nbits))
	copy(out[4:], b.bits)
	return out
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (b *BitMap) UnmarshalBinary(buf []byte) {
	nbits := int(binary.LittleEndian.Uint32(buf[0:4]))
	*b = *New(nbits)
	copy(b.bits, buf[4:4+len(b.bits)])
}
