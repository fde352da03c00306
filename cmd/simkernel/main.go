// Command simkernel boots the simulated kernel against a disk image
// file, registers the built-in sample programs, and runs whichever one
// is named on the command line (or lists them if none is given).
// Adapted from the original Nachos build's single-binary kernel
// executable: there, the disk image and program to run were baked in
// at build time; here both are ordinary flags.
package main

import (
	"flag"
	"fmt"
	"os"

	"simkernel/src/defs"
	"simkernel/src/disk"
	"simkernel/src/kernel"
	"simkernel/src/program"
	"simkernel/src/sched"
)

func main() {
	diskPath := flag.String("disk", "", "path to a disk image produced by mkfs (required)")
	progName := flag.String("run", "", "name of a registered sample program to run")
	flag.Parse()

	if *diskPath == "" {
		fmt.Fprintln(os.Stderr, "usage: simkernel -disk <image> [-run <program>]")
		os.Exit(1)
	}

	dev := openDisk(*diskPath)
	sys := kernel.Boot(dev, os.Stdin, os.Stdout, false)

	sys.Programs.Register("makethreads", program.MakeThreads)
	sys.Programs.Register("userpages0", program.UserPages0)
	sys.Programs.Register("userpages2", program.UserPages2)

	if *progName == "" {
		fmt.Println("registered programs: makethreads, userpages0, userpages2")
		return
	}

	tid := sys.ForkExec(*progName)
	if tid == defs.NoThread {
		fmt.Fprintf(os.Stderr, "no such program or executable: %s\n", *progName)
		os.Exit(1)
	}
	sys.Sched.Run(sched.Tid(tid))
}

// openDisk loads diskPath into an in-memory RawDisk sized to the
// kernel's fixed NumSectors/SectorSize geometry, reading whatever
// bytes already exist on disk (mkfs writes the initial image; a
// missing file boots against an all-zero disk, which fs.Boot loads
// without any check as an empty filesystem with an all-clear free map).
func openDisk(path string) *disk.SynchDisk {
	dev := disk.NewSynchDisk(disk.NewRawDisk(defs.NumSectors, defs.SectorSize))
	f, err := os.Open(path)
	if err != nil {
		return dev
	}
	defer f.Close()

	buf := make([]byte, defs.SectorSize)
	for sector := 0; sector < defs.NumSectors; sector++ {
		n, _ := f.Read(buf)
		if n == 0 {
			break
		}
		dev.WriteSector(sector, buf)
	}
	return dev
}
