// Command ntfsmft scans a raw NTFS volume's partition table, linearizes a
// chosen partition's Master File Table, and catalogs its records.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"

	"github.com/cugu/ntfsmft/bootsect"
	"github.com/cugu/ntfsmft/catalog"
	"github.com/cugu/ntfsmft/device"
	"github.com/cugu/ntfsmft/mbr"
	"github.com/cugu/ntfsmft/mftextract"
)

const (
	exitCodeUserError int = iota + 2
	exitCodeFunctionalError
	exitCodeTechnicalError
)

const isWin = runtime.GOOS == "windows"

func main() {
	defer func() {
		if state := recover(); state != nil {
			var err error
			if e, ok := state.(error); ok {
				err = log.Wrap(e)
			} else {
				err = log.Errorf("%v", state)
			}
			log.PrintError(err)
			os.Exit(exitCodeTechnicalError)
		}
	}()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitCodeUserError)
		return
	}

	switch os.Args[1] {
	case "scan":
		runScan(os.Args[2:])
	case "dump-mft":
		runDumpMFT(os.Args[2:])
	case "catalog":
		runCatalog(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitCodeUserError)
	}
}

func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 1 {
		printUsage()
		os.Exit(exitCodeUserError)
		return
	}

	r, err := device.Open(devicePath(rest[0]))
	log.PanicIf(err)
	defer r.Close()

	partitions, err := mbr.ScanPartitions(r)
	log.PanicIf(err)

	if len(partitions) == 0 {
		fmt.Println("no NTFS partitions found")
		return
	}

	for _, p := range partitions {
		fmt.Printf("partition %d: offset=%s size=%s bootable=%v\n",
			p.Index, humanize.Bytes(uint64(p.AbsoluteOffset())),
			humanize.Bytes(uint64(p.TotalSectors)*512), p.IsBootable())
	}
}

func runDumpMFT(args []string) {
	fs := flag.NewFlagSet("dump-mft", flag.ExitOnError)
	verboseFlag := fs.Bool("v", false, "verbose; print details about what's going on")
	forceFlag := fs.Bool("f", false, "force; overwrite the output file if it already exists")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 3 {
		printUsage()
		os.Exit(exitCodeUserError)
		return
	}

	volume, partitionIndex, outfile := rest[0], rest[1], rest[2]
	index, err := strconv.Atoi(partitionIndex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid partition index %q: %v\n", partitionIndex, err)
		os.Exit(exitCodeUserError)
		return
	}

	r, err := device.Open(devicePath(volume))
	log.PanicIf(err)
	defer r.Close()

	part, err := selectPartition(r, index)
	log.PanicIf(err)

	if *verboseFlag {
		fmt.Printf("reading boot sector of partition %d\n", part.Index)
	}
	bs, err := bootsect.ParseAt(r, part.AbsoluteOffset())
	log.PanicIf(err)

	out, err := openOutputFile(outfile, *forceFlag)
	log.PanicIf(err)
	defer out.Close()

	if *verboseFlag {
		fmt.Printf("linearizing $MFT (record size %d bytes) to %s\n", bs.MftRecordSize(), outfile)
	}
	result, err := mftextract.ExtractMFT(r, part, bs, out)
	log.PanicIf(err)

	fmt.Printf("wrote %s across %d fragment(s)\n", humanize.Bytes(uint64(result.Size)), len(result.Fragments))
}

func runCatalog(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	verboseFlag := fs.Bool("v", false, "verbose; print details about what's going on")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 2 {
		printUsage()
		os.Exit(exitCodeUserError)
		return
	}

	volume, partitionIndex := rest[0], rest[1]
	index, err := strconv.Atoi(partitionIndex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid partition index %q: %v\n", partitionIndex, err)
		os.Exit(exitCodeUserError)
		return
	}

	r, err := device.Open(devicePath(volume))
	log.PanicIf(err)
	defer r.Close()

	part, err := selectPartition(r, index)
	log.PanicIf(err)

	bs, err := bootsect.ParseAt(r, part.AbsoluteOffset())
	log.PanicIf(err)

	linearized, err := os.CreateTemp("", "ntfsmft-catalog-*.mft")
	log.PanicIf(err)
	defer os.Remove(linearized.Name())
	defer linearized.Close()

	if *verboseFlag {
		fmt.Printf("linearizing $MFT (record size %d bytes)\n", bs.MftRecordSize())
	}
	result, err := mftextract.ExtractMFT(r, part, bs, linearized)
	log.PanicIf(err)

	_, err = linearized.Seek(0, io.SeekStart)
	log.PanicIf(err)

	cat, err := catalog.Build(linearized, bs.MftRecordSize())
	log.PanicIf(err)

	fmt.Printf("linearized %s across %d fragment(s)\n", humanize.Bytes(uint64(result.Size)), len(result.Fragments))
	fmt.Printf("files=%d directories=%d deleted_files=%d deleted_directories=%d other=%d bad=%d corrupt=%d\n",
		cat.Counters.Files, cat.Counters.Directories, cat.Counters.DeletedFiles,
		cat.Counters.DeletedDirectories, cat.Counters.Other, cat.Counters.Bad, cat.Counters.Corrupt)

	printed := 0
	for number, entry := range cat.Entries {
		if !entry.HasPrimaryName || printed >= 20 {
			continue
		}
		fmt.Printf("%8d  %-10s  %s\n", number, entry.Class, entry.PrimaryName)
		printed++
	}
}

func selectPartition(r *device.BlockReader, index int) (mbr.PartitionEntry, error) {
	partitions, err := mbr.ScanPartitions(r)
	if err != nil {
		return mbr.PartitionEntry{}, err
	}
	for _, p := range partitions {
		if p.Index == index {
			return p, nil
		}
	}
	return mbr.PartitionEntry{}, fmt.Errorf("no NTFS partition with index %d", index)
}

func openOutputFile(outfile string, force bool) (*os.File, error) {
	if force {
		return os.Create(outfile)
	}
	return os.OpenFile(outfile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
}

func devicePath(volume string) string {
	if isWin {
		return `\\.\` + volume
	}
	return volume
}

func printUsage() {
	out := os.Stderr
	fmt.Fprintf(out, "\nusage: ntfsmft <command> [flags] <args>\n\n")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  scan <volume>                              list NTFS partitions")
	fmt.Fprintln(out, "  dump-mft [-v] [-f] <volume> <part> <out>   linearize a partition's $MFT to a file")
	fmt.Fprintln(out, "  catalog [-v] <volume> <part>               linearize and catalog a partition's $MFT")
	fmt.Fprintln(out, "\nFor example: ntfsmft dump-mft -v /dev/sdb 0 ~/sdb-part0.mft")
}
