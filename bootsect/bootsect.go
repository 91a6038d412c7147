/*
Package bootsect provides functions to parse the boot sector (also sometimes called Volume Boot Record, VBR, or
$Boot file) of an NTFS volume.
*/
package bootsect

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/cugu/ntfsmft/binutil"
	"github.com/cugu/ntfsmft/device"
	"github.com/cugu/ntfsmft/ntfserr"
)

const (
	sectorReadSize     = 512
	endOfSectorMarker  = 0xAA55
	endOfSectorOffset  = 0x1FE
)

// clusterGeometry mirrors the two fixed BPB fields needed to derive
// bytes-per-cluster: no variable-length or union-shaped fields are
// involved, so restruct decodes this slice of the sector directly instead
// of the hand-rolled binutil reader used for the record/attribute
// structures in package mft.
type clusterGeometry struct {
	BytesPerSector    uint16
	SectorsPerCluster int8
}

// BootSector represents the parsed data of an NTFS boot sector. The OemId should typically be "NTFS    " ("NTFS"
// followed by 4 trailing spaces) for a valid NTFS boot sector.
type BootSector struct {
	OemId                        string
	BytesPerSector               int
	SectorsPerCluster            int
	MediaDescriptor              byte
	SectorsPerTrack              int
	NumberofHeads                int
	HiddenSectors                int
	TotalSectors                 uint64
	MftClusterNumber             uint64
	MftMirrorClusterNumber       uint64
	ClustersPerMftRecord         int8
	FileRecordSegmentSizeInBytes int
	IndexBufferSizeInBytes       int
	VolumeSerialNumber           []byte
}

// BytesPerCluster is bytes_per_sector * sectors_per_cluster.
func (b BootSector) BytesPerCluster() int {
	return b.BytesPerSector * b.SectorsPerCluster
}

// MftRecordSize is the same value as FileRecordSegmentSizeInBytes, named to
// match the MFT-record-size terminology used by the rest of the core.
func (b BootSector) MftRecordSize() int {
	return b.FileRecordSegmentSizeInBytes
}

// MftAbsoluteOffset returns the absolute byte offset of the MFT's first
// record, given the absolute byte offset of the partition this boot sector
// belongs to.
func (b BootSector) MftAbsoluteOffset(partitionAbsoluteOffset int64) int64 {
	return partitionAbsoluteOffset + int64(b.MftClusterNumber)*int64(b.BytesPerCluster())
}

// ParseAt seeks r to partitionAbsoluteOffset, reads one sector, validates
// the 0xAA55 end-of-sector marker, and parses the boot sector. It returns
// ntfserr.BadBootSector if the marker is missing.
func ParseAt(r *device.BlockReader, partitionAbsoluteOffset int64) (BootSector, error) {
	if err := r.SeekAbs(partitionAbsoluteOffset); err != nil {
		return BootSector{}, err
	}
	data, err := r.ReadExact(sectorReadSize)
	if err != nil {
		return BootSector{}, err
	}

	marker := binary.LittleEndian.Uint16(data[endOfSectorOffset : endOfSectorOffset+2])
	if marker != endOfSectorMarker {
		return BootSector{}, fmt.Errorf("end-of-sector marker is %#x: %w", marker, ntfserr.BadBootSector)
	}

	return Parse(data)
}

// Parse parses the data of an NTFS boot sector into a BootSector structure.
func Parse(data []byte) (BootSector, error) {
	if len(data) < 80 {
		return BootSector{}, fmt.Errorf("boot sector data should be at least 80 bytes but is %d", len(data))
	}

	var geom clusterGeometry
	if err := restruct.Unpack(data[0x0B:0x0E], binary.LittleEndian, &geom); err != nil {
		return BootSector{}, fmt.Errorf("unable to decode BPB cluster geometry: %w", err)
	}

	bytesPerSector := int(geom.BytesPerSector)
	sectorsPerCluster := int(geom.SectorsPerCluster)
	if sectorsPerCluster < 0 {
		// Quoth Wikipedia: The number of sectors in a cluster. If the value is negative, the amount of sectors is 2
		// to the power of the absolute value of this field.
		sectorsPerCluster = 1 << -sectorsPerCluster
	}
	bytesPerCluster := bytesPerSector * sectorsPerCluster

	r := binutil.NewLittleEndianReader(data)
	return BootSector{
		OemId:                        string(r.Read(0x03, 8)),
		BytesPerSector:               bytesPerSector,
		SectorsPerCluster:            sectorsPerCluster,
		MediaDescriptor:              r.Byte(0x15),
		SectorsPerTrack:              int(r.Uint16(0x18)),
		NumberofHeads:                int(r.Uint16(0x1A)),
		HiddenSectors:                int(r.Uint16(0x1C)),
		TotalSectors:                 r.Uint64(0x28),
		MftClusterNumber:             r.Uint64(0x30),
		MftMirrorClusterNumber:       r.Uint64(0x38),
		ClustersPerMftRecord:         int8(r.Byte(0x40)),
		FileRecordSegmentSizeInBytes: bytesOrClustersToBytes(r.Byte(0x40), bytesPerCluster),
		IndexBufferSizeInBytes:       bytesOrClustersToBytes(r.Byte(0x44), bytesPerCluster),
		VolumeSerialNumber:           binutil.Duplicate(r.Read(0x48, 8)),
	}, nil
}

func bytesOrClustersToBytes(b byte, bytesPerCluster int) int {
	// From Wikipedia:
	// A positive value denotes the number of clusters in a File Record Segment. A negative value denotes the amount of
	// bytes in a File Record Segment, in which case the size is 2 to the power of the absolute value.
	// (0xF6 = -10 → 2^10 = 1024).
	i := int(int8(b))
	if i < 0 {
		return 1 << -i
	}
	return i * bytesPerCluster
}
