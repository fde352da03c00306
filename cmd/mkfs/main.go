// Command mkfs formats a fresh disk image and optionally seeds it with
// a directory tree copied in from the host filesystem. Adapted from
// the teacher's mkfs (biscuit's src/mkfs/mkfs.go), which walked a
// skeleton directory and replayed it into a Ufs_t via Append/MkDir/
// MkFile; the walk here is the same shape, rewired to fs.FileSystem's
// Create/CreateDirectory plus WriteFile in place of Ufs_t.Append.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"simkernel/src/defs"
	"simkernel/src/disk"
	"simkernel/src/fs"
	"simkernel/src/ustr"
)

func main() {
	outPath := flag.String("out", "", "path to write the formatted disk image to (required)")
	skelDir := flag.String("skel", "", "optional host directory tree to copy into the image")
	flag.Parse()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: mkfs -out <image> [-skel <dir>]")
		os.Exit(1)
	}

	dev := disk.NewSynchDisk(disk.NewRawDisk(defs.NumSectors, defs.SectorSize))
	fsys := fs.Format(dev)

	if *skelDir != "" {
		addFiles(fsys, *skelDir)
	}

	writeImage(dev, *outPath)
}

// addFiles walks skelDir on the host and replicates its contents into
// fsys: subdirectories become directories, regular files are created
// and their bytes copied in whole. WalkDir visits a directory before
// its contents, so by the time a child is processed its parent already
// exists and ChangeDirectory can reach it by absolute path from the
// root every time, rather than tracking a cursor through the walk.
func addFiles(fsys *fs.FileSystem, skelDir string) {
	err := filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("failed to access %q: %v\n", path, err)
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skelDir), "/")
		if rel == "" {
			return nil
		}
		parent, base := filepath.Split(rel)
		parent = strings.TrimSuffix(parent, "/")

		if !fsys.ChangeDirectory(ustr.Ustr("/" + parent)) {
			fmt.Printf("failed to enter %q\n", parent)
			return nil
		}
		name := ustr.Ustr(base)

		if d.IsDir() {
			if !fsys.CreateDirectory(name) {
				fmt.Printf("failed to create dir %v\n", rel)
			}
			return nil
		}

		if !fsys.Create(name, defs.Regular, 0) {
			fmt.Printf("failed to create file %v\n", rel)
			return nil
		}
		if !fsys.ChangeDirectory(ustr.Ustr("/" + parent)) {
			return nil
		}
		copyData(path, fsys, name)
		return nil
	})
	if err != nil {
		fmt.Printf("error walking %q: %v\n", skelDir, err)
		os.Exit(1)
	}
}

// copyData appends src's entire contents to the file already created
// at name.
func copyData(src string, fsys *fs.FileSystem, name ustr.Ustr) {
	in, err := os.Open(src)
	if err != nil {
		log.Fatal(errors.Wrap(err, "opening skeleton file"))
	}
	defer in.Close()

	buf, err := io.ReadAll(in)
	if err != nil {
		log.Fatal(errors.Wrapf(err, "reading %s", src))
	}
	fsys.WriteFile(name, buf, 0)
}

// writeImage dumps every sector of dev to a fresh file at path.
func writeImage(dev *disk.SynchDisk, path string) {
	out, err := os.Create(path)
	if err != nil {
		log.Fatal(errors.Wrapf(err, "creating image %s", path))
	}
	defer out.Close()

	buf := make([]byte, defs.SectorSize)
	for sector := 0; sector < dev.NumSectors(); sector++ {
		dev.ReadSector(sector, buf)
		if _, err := out.Write(buf); err != nil {
			log.Fatal(errors.Wrap(err, "writing image"))
		}
	}
}
