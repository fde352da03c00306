package fs

import (
	"encoding/binary"
	"fmt"
	"io"

	"simkernel/src/bitmap"
	"simkernel/src/defs"
	"simkernel/src/ustr"
)

// DirEntry is one slot of a Directory: a name bound to the sector of
// its FileHeader, or a free slot if InUse is false.
type DirEntry struct {
	InUse       bool
	Name        [defs.FileNameMaxLen + 1]byte
	Sector      int32
	IsDirectory bool
}

const dirEntrySize = 4 + (defs.FileNameMaxLen + 1) + 4 + 4

// Directory is the in-memory copy of a directory file's payload: a
// fixed table of NumDirEntries records, serialized as the contents of
// an ordinary file whose header lives at a known sector (the root
// directory's at DirectorySector; subdirectories elsewhere).
type Directory struct {
	Entries [defs.NumDirEntries]DirEntry
}

func nameBytes(name ustr.Ustr) [defs.FileNameMaxLen + 1]byte {
	var out [defs.FileNameMaxLen + 1]byte
	copy(out[:], name.Truncate(defs.FileNameMaxLen))
	return out
}

func nameEq(stored [defs.FileNameMaxLen + 1]byte, name ustr.Ustr) bool {
	n := nameBytes(name)
	return stored == n
}

// FetchFrom loads the directory's payload from f, byte for byte.
func (d *Directory) FetchFrom(f *OpenFile) {
	buf := make([]byte, defs.NumDirEntries*dirEntrySize)
	f.ReadAt(buf, 0)
	for i := range d.Entries {
		off := i * dirEntrySize
		e := &d.Entries[i]
		e.InUse = buf[off] != 0
		copy(e.Name[:], buf[off+4:off+4+defs.FileNameMaxLen+1])
		nameOff := off + 4 + defs.FileNameMaxLen + 1
		e.Sector = int32(binary.LittleEndian.Uint32(buf[nameOff:]))
		e.IsDirectory = buf[nameOff+4] != 0
	}
}

// WriteBack persists the directory's payload to f.
func (d *Directory) WriteBack(f *OpenFile, freeMap *bitmap.BitMap) {
	buf := make([]byte, defs.NumDirEntries*dirEntrySize)
	for i := range d.Entries {
		off := i * dirEntrySize
		e := &d.Entries[i]
		if e.InUse {
			buf[off] = 1
		}
		copy(buf[off+4:off+4+defs.FileNameMaxLen+1], e.Name[:])
		nameOff := off + 4 + defs.FileNameMaxLen + 1
		binary.LittleEndian.PutUint32(buf[nameOff:], uint32(e.Sector))
		if e.IsDirectory {
			buf[nameOff+4] = 1
		}
	}
	f.WriteAt(buf, 0, freeMap)
}

// Find returns the sector of the in-use entry named name, or
// defs.NoSector if there is none.
func (d *Directory) Find(name ustr.Ustr) int {
	for i := range d.Entries {
		if d.Entries[i].InUse && nameEq(d.Entries[i].Name, name) {
			return int(d.Entries[i].Sector)
		}
	}
	return defs.NoSector
}

// Add claims a free slot for name pointing at sector, returning its
// index and true on success, or false if name already exists or no
// slot is free.
func (d *Directory) Add(name ustr.Ustr, sector int) (int, bool) {
	if d.Find(name) != defs.NoSector {
		return 0, false
	}
	for i := range d.Entries {
		if !d.Entries[i].InUse {
			d.Entries[i] = DirEntry{InUse: true, Name: nameBytes(name), Sector: int32(sector)}
			return i, true
		}
	}
	return 0, false
}

// Remove clears the in-use flag of the entry named name, reporting
// whether one was found.
func (d *Directory) Remove(name ustr.Ustr) bool {
	for i := range d.Entries {
		if d.Entries[i].InUse && nameEq(d.Entries[i].Name, name) {
			d.Entries[i].InUse = false
			return true
		}
	}
	return false
}

// SetDirectory marks the entry at index as naming a directory (used
// when a just-created header is promoted to DIRECTORY type).
func (d *Directory) SetDirectory(index int) {
	d.Entries[index].IsDirectory = true
}

// IsEmpty reports whether only `.` and `..` are in use.
func (d *Directory) IsEmpty() bool {
	n := 0
	for i := range d.Entries {
		if d.Entries[i].InUse {
			n++
		}
	}
	return n <= 2
}

// List returns the in-use entry names, excluding `.` and `..`.
func (d *Directory) List() []string {
	var out []string
	for i := range d.Entries {
		e := &d.Entries[i]
		if !e.InUse {
			continue
		}
		n := ustr.MkUstrSlice(e.Name[:])
		if n.Isdot() || n.Isdotdot() {
			continue
		}
		end := 0
		for end < len(e.Name) && e.Name[end] != 0 {
			end++
		}
		out = append(out, string(e.Name[:end]))
	}
	return out
}

// Print writes every in-use entry's name and header sector to w.
func (d *Directory) Print(w io.Writer) {
	for i := range d.Entries {
		e := &d.Entries[i]
		if !e.InUse {
			continue
		}
		end := 0
		for end < len(e.Name) && e.Name[end] != 0 {
			end++
		}
		fmt.Fprintf(w, "%s -> sector %d\n", e.Name[:end], e.Sector)
	}
}
