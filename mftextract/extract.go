/*
Package mftextract reconstitutes a volume's Master File Table from its
(possibly fragmented) $DATA run list into a single linear byte stream,
interleaving self-describing fragment markers so a downstream reader can
attribute every record back to its absolute on-disk offset.
*/
package mftextract

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cugu/ntfsmft/bootsect"
	"github.com/cugu/ntfsmft/device"
	"github.com/cugu/ntfsmft/mbr"
	"github.com/cugu/ntfsmft/mft"
	"github.com/cugu/ntfsmft/ntfserr"
)

// markerSignature is written to the sink immediately before each contiguous
// run, followed by a little-endian uint64 absolute device offset. 16 bytes
// total: 8-byte signature + 8-byte offset.
var markerSignature = []byte{'F', 'R', 'A', 'G', 0, 0, 0, 0}

const markerSize = 16

const mftFileName = "$MFT"

// Fragment is an entry in the out-of-band fragment table: SinkOffset is the
// byte offset within the linearized stream at which DeviceOffset's run
// begins (immediately after that run's inline marker).
type Fragment struct {
	SinkOffset   int64
	DeviceOffset int64
}

// Result carries the out-of-band fragment table alongside the total size
// written to the sink.
type Result struct {
	Fragments []Fragment
	Size      int64
}

// ExtractMFT reads the first MFT record of the partition described by part
// and bs, confirms it names itself "$MFT", follows its non-resident $DATA
// run list, and writes the linearized MFT to sink: one 16-byte fragment
// marker per contiguous run (or per sparse run, whose bytes are zero-filled)
// followed by that run's bytes.
func ExtractMFT(r *device.BlockReader, part mbr.PartitionEntry, bs bootsect.BootSector, sink io.Writer) (Result, error) {
	partitionOffset := part.AbsoluteOffset()
	mftOffset := bs.MftAbsoluteOffset(partitionOffset)
	recordSize := bs.MftRecordSize()

	if err := r.SeekAbs(mftOffset); err != nil {
		return Result{}, err
	}
	recordData, err := r.ReadExact(recordSize)
	if err != nil {
		return Result{}, err
	}

	record, err := mft.ParseRecord(recordData)
	if err != nil {
		return Result{}, fmt.Errorf("parsing first MFT record: %w: %v", ntfserr.MFTRead, err)
	}

	if err := confirmIsMFT(record); err != nil {
		return Result{}, err
	}

	dataAttrs := record.FindAttributes(mft.AttributeTypeData)
	var dataAttr *mft.Attribute
	for i := range dataAttrs {
		if !dataAttrs[i].Resident {
			dataAttr = &dataAttrs[i]
			break
		}
	}
	if dataAttr == nil {
		return Result{}, fmt.Errorf("no non-resident $DATA attribute in $MFT record: %w", ntfserr.MFTNotFound)
	}

	runs, err := mft.ParseDataRuns(dataAttr.Data)
	if err != nil {
		return Result{}, fmt.Errorf("decoding $MFT $DATA run list: %w", err)
	}

	bytesPerCluster := int64(bs.BytesPerCluster())

	var sinkOffset int64
	var currentLCN int64
	fragments := make([]Fragment, 0, len(runs))

	for _, run := range runs {
		length := int64(run.LengthInClusters) * bytesPerCluster

		if run.Sparse {
			if err := writeMarker(sink, 0); err != nil {
				return Result{}, fmt.Errorf("writing fragment marker: %w: %v", ntfserr.MFTRead, err)
			}
			sinkOffset += markerSize
			if err := writeZeroes(sink, length); err != nil {
				return Result{}, fmt.Errorf("writing sparse run: %w: %v", ntfserr.MFTRead, err)
			}
			sinkOffset += length
			continue
		}

		currentLCN += run.OffsetCluster
		deviceOffset := partitionOffset + currentLCN*bytesPerCluster

		if err := r.SeekAbs(deviceOffset); err != nil {
			return Result{}, err
		}

		if err := writeMarker(sink, deviceOffset); err != nil {
			return Result{}, fmt.Errorf("writing fragment marker: %w: %v", ntfserr.MFTRead, err)
		}
		sinkOffset += markerSize

		fragments = append(fragments, Fragment{SinkOffset: sinkOffset, DeviceOffset: deviceOffset})

		runData, err := r.ReadExact(int(length))
		if err != nil {
			return Result{}, fmt.Errorf("reading run at device offset %d: %w: %v", deviceOffset, ntfserr.MFTRead, err)
		}
		if _, err := sink.Write(runData); err != nil {
			return Result{}, fmt.Errorf("writing run to sink: %w: %v", ntfserr.MFTRead, err)
		}
		sinkOffset += length
	}

	return Result{Fragments: fragments, Size: sinkOffset}, nil
}

func confirmIsMFT(record mft.Record) error {
	names := record.FindAttributes(mft.AttributeTypeFileName)
	parsed := make([]mft.FileName, 0, len(names))
	for _, a := range names {
		fn, err := mft.ParseFileName(a.Data)
		if err != nil {
			continue
		}
		parsed = append(parsed, fn)
	}

	primary, ok := mft.ChooseFileName(parsed)
	if !ok || primary.Name != mftFileName {
		return fmt.Errorf("first MFT record names itself %q: %w", primary.Name, ntfserr.MFTNotFound)
	}
	return nil
}

func writeMarker(sink io.Writer, deviceOffset int64) error {
	buf := make([]byte, markerSize)
	copy(buf, markerSignature)
	binary.LittleEndian.PutUint64(buf[8:], uint64(deviceOffset))
	_, err := sink.Write(buf)
	return err
}

func writeZeroes(sink io.Writer, n int64) error {
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	for n > 0 {
		c := int64(chunkSize)
		if n < c {
			c = n
		}
		if _, err := sink.Write(buf[:c]); err != nil {
			return err
		}
		n -= c
	}
	return nil
}

// IsMarker reports whether b (at least 8 bytes) begins with a fragment
// marker signature, as opposed to a "FILE"-signatured record.
func IsMarker(b []byte) bool {
	return len(b) >= 8 && string(b[:8]) == string(markerSignature)
}

// DecodeMarker reads the absolute device offset out of a 16-byte marker.
func DecodeMarker(b []byte) (int64, error) {
	if len(b) < markerSize {
		return 0, fmt.Errorf("marker data should be at least %d bytes but is %d", markerSize, len(b))
	}
	return int64(binary.LittleEndian.Uint64(b[8:16])), nil
}
