package fs

import (
	"fmt"
	"io"

	"simkernel/src/bitmap"
	"simkernel/src/defs"
	"simkernel/src/ustr"
)

// FileSystem orchestrates create/open/remove/list and path traversal
// over a single disk, and owns the "current directory" cursor the
// original keeps as a process-global static (§9's note on
// process-global singletons: here it is a field of an explicit
// FileSystem value instead, threaded down to every caller that needs
// it rather than reached through a free-standing global).
type FileSystem struct {
	dev     SectorDevice
	freeMap *bitmap.BitMap
	mapHdr  *FileHeader // the free map's own header, at FreeMapSector

	// cwdSector is the header sector of the current directory; cwd is
	// that header's loaded Directory payload.
	cwdSector int
	cwd       Directory
}

// Format lays down a blank filesystem on dev: a free-sector map and
// root directory, each with a one-sector header, the root directory's
// `.` and `..` DOTLINK entries pointing at itself. Mirrors
// FileSystem::FileSystem(format=true) in the original filesys.cc.
func Format(dev SectorDevice) *FileSystem {
	freeMap := bitmap.New(defs.NumSectors)
	freeMap.Mark(defs.FreeMapSector)
	freeMap.Mark(defs.DirectorySector)

	mapHdr := &FileHeader{Type: defs.Regular}
	if !mapHdr.Allocate(freeMap, dev, len(freeMap.RawBytes())) {
		panic("not enough space for free-sector map")
	}
	dirHdr := &FileHeader{Type: defs.Directory}
	if !dirHdr.Allocate(freeMap, dev, defs.NumDirEntries*dirEntrySize) {
		panic("not enough space for root directory")
	}
	mapHdr.WriteBack(dev, defs.FreeMapSector)
	dirHdr.WriteBack(dev, defs.DirectorySector)

	fsys := &FileSystem{dev: dev, freeMap: freeMap, mapHdr: mapHdr, cwdSector: defs.DirectorySector}
	fsys.cwd = Directory{}

	dotSector := fsys.allocDotLink(defs.DirectorySector)
	dotdotSector := fsys.allocDotLink(defs.DirectorySector)
	fsys.cwd.Add(ustr.Dot, dotSector)
	fsys.cwd.Add(ustr.DotDot, dotdotSector)
	fsys.flushFreeMap()
	fsys.flushCwd()
	return fsys
}

// Boot loads an already-formatted filesystem from dev.
func Boot(dev SectorDevice) *FileSystem {
	mapHdr := &FileHeader{}
	mapHdr.FetchFrom(dev, defs.FreeMapSector)
	f := Open(mapHdr, defs.FreeMapSector, dev)
	buf := make([]byte, mapHdr.FileLength())
	f.ReadAt(buf, 0)

	freeMap := bitmap.New(defs.NumSectors)
	freeMap.LoadRawBytes(buf)

	fsys := &FileSystem{dev: dev, freeMap: freeMap, mapHdr: mapHdr, cwdSector: defs.DirectorySector}
	fsys.loadCwd()
	return fsys
}

func (fsys *FileSystem) loadCwd() {
	hdr := &FileHeader{}
	hdr.FetchFrom(fsys.dev, fsys.cwdSector)
	f := Open(hdr, fsys.cwdSector, fsys.dev)
	fsys.cwd = Directory{}
	fsys.cwd.FetchFrom(f)
}

func (fsys *FileSystem) flushCwd() {
	hdr := &FileHeader{}
	hdr.FetchFrom(fsys.dev, fsys.cwdSector)
	f := Open(hdr, fsys.cwdSector, fsys.dev)
	fsys.cwd.WriteBack(f, fsys.freeMap)
	hdr.WriteBack(fsys.dev, fsys.cwdSector)
}

func (fsys *FileSystem) flushFreeMap() {
	f := Open(fsys.mapHdr, defs.FreeMapSector, fsys.dev)
	f.WriteAt(fsys.freeMap.RawBytes(), 0, fsys.freeMap)
	fsys.mapHdr.WriteBack(fsys.dev, defs.FreeMapSector)
}

// allocDotLink allocates a fresh one-sector DOTLINK header pointing at
// target and returns its sector.
func (fsys *FileSystem) allocDotLink(target int) int {
	sector := fsys.freeMap.Find()
	hdr := &FileHeader{Type: defs.DotLink}
	hdr.LinkSector_Set(int32(target))
	hdr.WriteBack(fsys.dev, sector)
	return sector
}

// Create makes a new file of the given type in the current directory,
// failing if the name exists, the directory is full, or allocation of
// the header or its data blocks fails. sizeBytes bytes of data blocks
// are allocated whatever typ is (CreateDirectory passes the size of a
// Directory payload).
func (fsys *FileSystem) Create(name ustr.Ustr, typ defs.FileType, sizeBytes int) bool {
	if fsys.cwd.Find(name) != defs.NoSector {
		return false
	}
	if fsys.freeMap.NumClear() == 0 {
		return false
	}
	sector := fsys.freeMap.Find()
	hdr := &FileHeader{Type: typ}
	if !hdr.Allocate(fsys.freeMap, fsys.dev, sizeBytes) {
		fsys.freeMap.Clear(sector)
		return false
	}
	if _, ok := fsys.cwd.Add(name, sector); !ok {
		hdr.Deallocate(fsys.freeMap, fsys.dev, 0)
		fsys.freeMap.Clear(sector)
		return false
	}
	hdr.WriteBack(fsys.dev, sector)
	fsys.flushCwd()
	fsys.flushFreeMap()
	return true
}

// Open looks up name in the current directory and returns a handle on
// it, or nil if not found.
func (fsys *FileSystem) Open(name ustr.Ustr) *OpenFile {
	sector := fsys.cwd.Find(name)
	if sector == defs.NoSector {
		return nil
	}
	hdr := &FileHeader{}
	hdr.FetchFrom(fsys.dev, sector)
	return Open(hdr, sector, fsys.dev)
}

// WriteFile writes buf at offset into the file named name, growing it
// against this filesystem's own free map as needed, and returns the
// number of bytes actually written. It is the entry point host-side
// tools (mkfs) use to seed file contents without reaching into
// OpenFile/BitMap directly.
func (fsys *FileSystem) WriteFile(name ustr.Ustr, buf []byte, offset int) int {
	f := fsys.Open(name)
	if f == nil {
		return 0
	}
	n := f.WriteAt(buf, offset, fsys.freeMap)
	f.Header.WriteBack(fsys.dev, f.Sector)
	fsys.flushFreeMap()
	return n
}

// Remove deletes the file named name from the current directory,
// releasing its data blocks and header sector. It does not recurse
// into subdirectories — DeleteDirectory checks emptiness first.
func (fsys *FileSystem) Remove(name ustr.Ustr) bool {
	sector := fsys.cwd.Find(name)
	if sector == defs.NoSector {
		return false
	}
	hdr := &FileHeader{}
	hdr.FetchFrom(fsys.dev, sector)
	hdr.Deallocate(fsys.freeMap, fsys.dev, 0)
	fsys.freeMap.Clear(sector)
	fsys.cwd.Remove(name)
	fsys.flushFreeMap()
	fsys.flushCwd()
	return true
}

// List returns the names in the current directory, excluding `.`/`..`.
func (fsys *FileSystem) List() []string {
	return fsys.cwd.List()
}

// Print writes the current directory's listing to w.
func (fsys *FileSystem) Print(w io.Writer) {
	fsys.cwd.Print(w)
}

// CreateDirectory creates a subdirectory named name in the current
// directory, writes its empty payload, then adds self-referential `.`
// and `..` DOTLINK entries (to itself and to the parent, respectively).
func (fsys *FileSystem) CreateDirectory(name ustr.Ustr) bool {
	parentSector := fsys.cwdSector
	if !fsys.Create(name, defs.Directory, defs.NumDirEntries*dirEntrySize) {
		return false
	}
	newSector := fsys.cwd.Find(name)

	savedSector, savedCwd := fsys.cwdSector, fsys.cwd
	fsys.cwdSector = newSector
	fsys.cwd = Directory{}

	dotSector := fsys.allocDotLink(newSector)
	dotdotSector := fsys.allocDotLink(parentSector)
	fsys.cwd.Add(ustr.Dot, dotSector)
	fsys.cwd.Add(ustr.DotDot, dotdotSector)
	fsys.flushCwd()
	fsys.flushFreeMap()

	fsys.cwdSector, fsys.cwd = savedSector, savedCwd
	return true
}

// DeleteDirectory removes the subdirectory named name from the current
// directory, refusing if it still holds entries besides `.` and `..`.
func (fsys *FileSystem) DeleteDirectory(name ustr.Ustr) bool {
	sector := fsys.cwd.Find(name)
	if sector == defs.NoSector {
		return false
	}
	hdr := &FileHeader{}
	hdr.FetchFrom(fsys.dev, sector)
	sub := Directory{}
	sub.FetchFrom(Open(hdr, sector, fsys.dev))
	if !sub.IsEmpty() {
		fmt.Println("directory not empty")
		return false
	}
	return fsys.Remove(name)
}

// ChangeDirectory moves the current-directory cursor along path, a
// single '/'-separated traversal in one pass (the source's own
// double-tokenizing ChangeDirectory/Directory_path collapsed into one,
// per the redesign note in §9). Absolute paths restart at the root
// directory sector. Any component failure restores the prior cursor.
func (fsys *FileSystem) ChangeDirectory(path ustr.Ustr) bool {
	savedSector, savedCwd := fsys.cwdSector, fsys.cwd

	sector := fsys.cwdSector
	if path.IsAbsolute() {
		sector = defs.DirectorySector
	}
	cwd := Directory{}
	fsys.loadDirectoryInto(&cwd, sector)

	for _, comp := range path.Components() {
		var next int
		if comp.Isdotdot() {
			dotdotHdrSector := cwd.Find(ustr.DotDot)
			if dotdotHdrSector == defs.NoSector {
				fsys.cwdSector, fsys.cwd = savedSector, savedCwd
				return false
			}
			dotdotHdr := &FileHeader{}
			dotdotHdr.FetchFrom(fsys.dev, dotdotHdrSector)
			next = int(dotdotHdr.LinkSector_Get())
		} else if comp.Isdot() {
			next = sector
		} else {
			target := cwd.Find(comp)
			if target == defs.NoSector {
				fsys.cwdSector, fsys.cwd = savedSector, savedCwd
				return false
			}
			hdr := &FileHeader{}
			hdr.FetchFrom(fsys.dev, target)
			if hdr.Type_Get() != defs.Directory {
				fsys.cwdSector, fsys.cwd = savedSector, savedCwd
				return false
			}
			next = target
		}
		sector = next
		fsys.loadDirectoryInto(&cwd, sector)
	}

	fsys.cwdSector, fsys.cwd = sector, cwd
	return true
}

func (fsys *FileSystem) loadDirectoryInto(d *Directory, sector int) {
	hdr := &FileHeader{}
	hdr.FetchFrom(fsys.dev, sector)
	*d = Directory{}
	d.FetchFrom(Open(hdr, sector, fsys.dev))
}
