/*
Package mbr scans a DOS/MBR partition table for NTFS partitions.

The four primary partition entries are decoded with restruct, since the
entry is a flat, fixed-layout structure with no resident/non-resident
branching — exactly the case restruct's tag-driven struct decoding fits
best (contrast with package mft, whose record and attribute headers have
variant tails and keep the hand-rolled binutil.BinReader approach).
*/
package mbr

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"

	"github.com/cugu/ntfsmft/device"
)

const (
	partitionTableOffset = 0x1BE
	partitionEntrySize   = 16
	partitionEntryCount  = 4
	sectorSize           = 512

	// NTFSType is the MBR partition-type byte NTFS volumes are marked with.
	NTFSType = 0x07
)

// partitionEntryRaw mirrors the 16-byte on-disk partition table entry,
// field for field, in byte order. restruct.Unpack decodes it directly.
type partitionEntryRaw struct {
	BootIndicator  byte
	StartCHS       [3]byte
	Type           byte
	EndCHS         [3]byte
	RelativeSector uint32
	TotalSectors   uint32
}

// PartitionEntry is a decoded MBR primary partition table entry.
type PartitionEntry struct {
	Index          int
	BootIndicator  byte
	Type           byte
	RelativeSector uint32
	TotalSectors   uint32
}

// IsBootable reports whether the boot indicator marks this as the active
// partition (0x80).
func (p PartitionEntry) IsBootable() bool {
	return p.BootIndicator == 0x80
}

// IsNTFS reports whether this entry describes a non-empty NTFS partition.
func (p PartitionEntry) IsNTFS() bool {
	return p.Type == NTFSType && p.TotalSectors > 0
}

// AbsoluteOffset returns the partition's absolute byte offset on the
// device: RelativeSector * 512.
func (p PartitionEntry) AbsoluteOffset() int64 {
	return int64(p.RelativeSector) * sectorSize
}

// ScanPartitions reads the four primary partition table entries at device
// offset 0x1BE and returns those that are non-empty NTFS partitions, in
// table order.
func ScanPartitions(r *device.BlockReader) ([]PartitionEntry, error) {
	if err := r.SeekAbs(partitionTableOffset); err != nil {
		return nil, err
	}

	entries := make([]PartitionEntry, 0, partitionEntryCount)
	for i := 0; i < partitionEntryCount; i++ {
		raw, err := r.ReadExact(partitionEntrySize)
		if err != nil {
			return nil, err
		}

		var rawEntry partitionEntryRaw
		if err := restruct.Unpack(raw, binary.LittleEndian, &rawEntry); err != nil {
			return nil, err
		}

		entry := PartitionEntry{
			Index:          i,
			BootIndicator:  rawEntry.BootIndicator,
			Type:           rawEntry.Type,
			RelativeSector: rawEntry.RelativeSector,
			TotalSectors:   rawEntry.TotalSectors,
		}
		if entry.IsNTFS() {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
