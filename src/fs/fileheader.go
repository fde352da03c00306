// Package fs implements the disk-backed filesystem: the on-disk
// FileHeader and Directory records, the FileSystem that orchestrates
// them, and the OpenFile handle ordinary reads and writes go through.
// Grounded on the original filesys/{filehdr,directory,filesys,
// openfile}.cc, adapted per the source's own flagged redesign: the
// overloaded `dataSectors[0]` field for DOTLINK becomes a tagged
// HeaderBody union (see Body below) while keeping the same on-disk
// slot, and FileHeader.Allocate/Deallocate are derived from the
// byte/sector/index-boundary-crossing contract rather than mirroring
// the original's interleaved byte-and-sector counters.
package fs

import (
	"encoding/binary"

	"simkernel/src/bitmap"
	"simkernel/src/caller"
	"simkernel/src/defs"
	"simkernel/src/util"
)

// SectorDevice is the blocking sector-level device FileHeader and
// Directory persist through — satisfied by *disk.SynchDisk.
type SectorDevice interface {
	ReadSector(sector int, buf []byte)
	WriteSector(sector int, buf []byte)
}

// FileHeader is the on-disk inode-like record: sized to fit in one
// sector, it maps a byte offset to a disk sector through two levels of
// indirection. DataSectors holds outer index-sector numbers; each index
// sector's content is itself up to MaxPerSector data-sector numbers.
// For a DotLink header, DataSectors[0] is reinterpreted as the target
// directory header's sector and NumSectors/NumIndexSectors stay zero —
// see Body.
type FileHeader struct {
	NumBytes        int32
	NumSectors      int32 // data sectors currently allocated
	NumIndexSectors int32 // outer index sectors currently allocated
	Type            defs.FileType
	DataSectors     [defs.NumDirect]int32
}

const HeaderSize = 4 + 4 + 4 + 4 + defs.NumDirect*4

// HeaderBody is the tagged-union view of a header's payload: exactly
// one of RegularBody, DirectoryBody or DotLinkBody, in place of the
// original's silent reuse of DataSectors[0] for two unrelated meanings.
type HeaderBody interface{ isHeaderBody() }

// RegularBody is an ordinary file's outer index-sector list.
type RegularBody struct{ IndexSectors []int32 }

// DirectoryBody is a directory file's outer index-sector list — same
// shape as RegularBody, distinguished only by Type, since a directory's
// payload is serialized exactly like a regular file's bytes.
type DirectoryBody struct{ IndexSectors []int32 }

// DotLinkBody names the directory header sector a `.`/`..` entry
// points to.
type DotLinkBody struct{ Target int32 }

func (RegularBody) isHeaderBody()   {}
func (DirectoryBody) isHeaderBody() {}
func (DotLinkBody) isHeaderBody()   {}

// Body returns the tagged view of the header's payload.
func (h *FileHeader) Body() HeaderBody {
	switch h.Type {
	case defs.DotLink:
		return DotLinkBody{Target: h.DataSectors[0]}
	case defs.Directory:
		return DirectoryBody{IndexSectors: h.DataSectors[:h.NumIndexSectors]}
	default:
		return RegularBody{IndexSectors: h.DataSectors[:h.NumIndexSectors]}
	}
}

// Type_Get returns the header's file type.
func (h *FileHeader) Type_Get() defs.FileType { return h.Type }

// Type_Set sets the header's file type.
func (h *FileHeader) Type_Set(t defs.FileType) { h.Type = t }

// LinkSector_Get returns the DOTLINK target sector.
func (h *FileHeader) LinkSector_Get() int32 { return h.DataSectors[0] }

// LinkSector_Set records the DOTLINK target sector.
func (h *FileHeader) LinkSector_Set(sector int32) { h.DataSectors[0] = sector }

// FileLength returns the number of bytes in the file.
func (h *FileHeader) FileLength() int { return int(h.NumBytes) }

func decodeIndexSector(buf []byte) []int32 {
	out := make([]int32, defs.MaxPerSector)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func encodeIndexSector(table []int32) []byte {
	buf := make([]byte, defs.SectorSize)
	for i, v := range table {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

// Allocate grows the file by sizeBytes, claiming whatever data and
// index sectors the growth needs from freeMap. It follows the
// boundary-crossing contract directly: the data sectors needed are
// however many sector-sized steps numBytes+sizeBytes advances past the
// current numBytes, and the index sectors needed are however many
// MaxPerSector-sized groups of data sectors that implies — rather than
// the original's parallel byte/sector/index counters advanced one byte
// at a time. It allocates the first index sector even for sizeBytes==0
// so that a freshly created, empty file or directory is addressable.
// On failure, freeMap and the header are left untouched.
func (h *FileHeader) Allocate(freeMap *bitmap.BitMap, dev SectorDevice, sizeBytes int) bool {
	if sizeBytes < 0 {
		panic("negative allocate size")
	}
	if int(h.NumBytes)+sizeBytes > defs.MaxFileSize {
		return false
	}

	oldDataSectors := int(h.NumSectors)
	newDataSectors := util.DivRoundUp(int(h.NumBytes)+sizeBytes, defs.SectorSize)
	addedData := newDataSectors - oldDataSectors

	oldIndex := int(h.NumIndexSectors)
	wantIndex := util.DivRoundUp(newDataSectors, defs.MaxPerSector)
	if wantIndex == 0 {
		wantIndex = 1
	}
	addedIndex := wantIndex - oldIndex
	if addedIndex < 0 {
		addedIndex = 0
	}

	if freeMap.NumClear() < addedData+addedIndex {
		return false
	}

	indexTables := make([][]int32, wantIndex)
	for i := 0; i < oldIndex; i++ {
		buf := make([]byte, defs.SectorSize)
		dev.ReadSector(int(h.DataSectors[i]), buf)
		indexTables[i] = decodeIndexSector(buf)
	}
	for i := oldIndex; i < wantIndex; i++ {
		h.DataSectors[i] = int32(freeMap.Find())
		indexTables[i] = make([]int32, defs.MaxPerSector)
	}

	for s := oldDataSectors; s < newDataSectors; s++ {
		idx, off := s/defs.MaxPerSector, s%defs.MaxPerSector
		indexTables[idx][off] = int32(freeMap.Find())
	}

	for i := 0; i < wantIndex; i++ {
		dev.WriteSector(int(h.DataSectors[i]), encodeIndexSector(indexTables[i]))
	}

	h.NumBytes += int32(sizeBytes)
	h.NumSectors = int32(newDataSectors)
	h.NumIndexSectors = int32(wantIndex)
	return true
}

// Deallocate releases every data sector for bytes at or after
// reserveBytes, and any outer index sector that becomes wholly unused,
// updating NumBytes/NumSectors/NumIndexSectors to match. It does not
// release the header's own sector; the caller does that.
func (h *FileHeader) Deallocate(freeMap *bitmap.BitMap, dev SectorDevice, reserveBytes int) {
	oldDataSectors := int(h.NumSectors)
	oldIndex := int(h.NumIndexSectors)
	newDataSectors := util.DivRoundUp(reserveBytes, defs.SectorSize)
	newIndex := util.DivRoundUp(newDataSectors, defs.MaxPerSector)
	// Allocate keeps one index sector even for a zero-byte file so it
	// stays addressable for a future WriteAt. Deallocate only needs that
	// same guarantee when reserveBytes > 0 (a truncation that leaves the
	// file in use); reserveBytes == 0 is always a full release — both
	// call sites (FileSystem.Remove, Create's rollback) discard the
	// header immediately after — so every index sector is freed too.
	if newIndex == 0 && reserveBytes > 0 {
		newIndex = 1
	}

	indexTables := make([][]int32, oldIndex)
	for i := 0; i < oldIndex; i++ {
		buf := make([]byte, defs.SectorSize)
		dev.ReadSector(int(h.DataSectors[i]), buf)
		indexTables[i] = decodeIndexSector(buf)
	}

	for s := newDataSectors; s < oldDataSectors; s++ {
		idx, off := s/defs.MaxPerSector, s%defs.MaxPerSector
		sector := int(indexTables[idx][off])
		caller.Assert(freeMap.Test(sector), "deallocating a sector that was never marked busy")
		freeMap.Clear(sector)
	}
	for i := newIndex; i < oldIndex; i++ {
		freeMap.Clear(int(h.DataSectors[i]))
	}
	for i := 0; i < newIndex && i < oldIndex; i++ {
		dev.WriteSector(int(h.DataSectors[i]), encodeIndexSector(indexTables[i]))
	}

	h.NumBytes = int32(reserveBytes)
	h.NumSectors = int32(newDataSectors)
	h.NumIndexSectors = int32(newIndex)
}

// ByteToSector returns the disk sector storing the byte at offset, or
// defs.NoSector if offset is past the end of the file.
func (h *FileHeader) ByteToSector(dev SectorDevice, offset int) int {
	if offset > int(h.NumBytes) {
		return defs.NoSector
	}
	sector := offset / defs.SectorSize
	idx, off := sector/defs.MaxPerSector, sector%defs.MaxPerSector
	buf := make([]byte, defs.SectorSize)
	dev.ReadSector(int(h.DataSectors[idx]), buf)
	return int(decodeIndexSector(buf)[off])
}

// FetchFrom loads the header's fixed-size record from sector.
func (h *FileHeader) FetchFrom(dev SectorDevice, sector int) {
	buf := make([]byte, defs.SectorSize)
	dev.ReadSector(sector, buf)
	h.NumBytes = int32(binary.LittleEndian.Uint32(buf[0:4]))
	h.NumSectors = int32(binary.LittleEndian.Uint32(buf[4:8]))
	h.NumIndexSectors = int32(binary.LittleEndian.Uint32(buf[8:12]))
	h.Type = defs.FileType(binary.LittleEndian.Uint32(buf[12:16]))
	for i := 0; i < defs.NumDirect; i++ {
		h.DataSectors[i] = int32(binary.LittleEndian.Uint32(buf[16+i*4:]))
	}
}

// WriteBack persists the header's fixed-size record to sector.
func (h *FileHeader) WriteBack(dev SectorDevice, sector int) {
	buf := make([]byte, defs.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.NumBytes))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.NumSectors))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.NumIndexSectors))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Type))
	for i := 0; i < defs.NumDirect; i++ {
		binary.LittleEndian.PutUint32(buf[16+i*4:], uint32(h.DataSectors[i]))
	}
	dev.WriteSector(sector, buf)
}
