package mftextract_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cugu/ntfsmft/bootsect"
	"github.com/cugu/ntfsmft/device"
	"github.com/cugu/ntfsmft/mbr"
	"github.com/cugu/ntfsmft/mftextract"
)

// buildMFTRecord constructs a minimal, valid $MFT base record: one resident
// $FILE_NAME attribute naming itself "$MFT", and one non-resident $DATA
// attribute whose run list is one real run (offset +5, length 2 clusters)
// followed by one sparse run (length 3 clusters).
func buildMFTRecord(t *testing.T) []byte {
	t.Helper()
	const recordSize = 256
	const firstAttributeOffset = 48

	rec := make([]byte, recordSize)
	copy(rec[0:4], "FILE")
	binary.LittleEndian.PutUint16(rec[0x04:], 40)                     // update sequence offset (unused slot)
	binary.LittleEndian.PutUint16(rec[0x06:], 1)                      // update sequence size: 1 pair -> no-op fixup
	binary.LittleEndian.PutUint64(rec[0x08:], 0)                      // LSN
	binary.LittleEndian.PutUint16(rec[0x10:], 1)                      // sequence number
	binary.LittleEndian.PutUint16(rec[0x12:], 1)                      // hard link count
	binary.LittleEndian.PutUint16(rec[0x14:], firstAttributeOffset)   // first attribute offset
	binary.LittleEndian.PutUint16(rec[0x16:], 1)                      // flags: IN_USE
	binary.LittleEndian.PutUint32(rec[0x18:], 220)                    // actual size
	binary.LittleEndian.PutUint32(rec[0x1C:], recordSize)             // allocated size
	// base record reference (0x20, 8 bytes) left zero: this is a base record
	binary.LittleEndian.PutUint16(rec[0x28:], 2) // next attribute id
	binary.LittleEndian.PutUint32(rec[0x2C:], 0) // record number

	fileName := buildFileNameAttribute()
	data := buildDataAttribute()

	off := firstAttributeOffset
	copy(rec[off:], fileName)
	off += len(fileName)
	copy(rec[off:], data)
	off += len(data)
	binary.LittleEndian.PutUint32(rec[off:], 0xFFFFFFFF) // terminator

	require.LessOrEqual(t, off+4, recordSize)
	return rec
}

func buildFileNameAttribute() []byte {
	const contentLength = 74
	const headerLength = 24
	buf := make([]byte, headerLength+contentLength)

	binary.LittleEndian.PutUint32(buf[0:], 0x30)                 // type: $FILE_NAME
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(buf)))     // length
	buf[8] = 0                                                   // resident
	buf[9] = 0                                                   // name length
	binary.LittleEndian.PutUint16(buf[0x0C:], 0)                 // flags
	binary.LittleEndian.PutUint16(buf[0x0E:], 0)                 // attribute id
	binary.LittleEndian.PutUint32(buf[0x10:], contentLength)     // content length
	binary.LittleEndian.PutUint16(buf[0x14:], headerLength)      // content offset

	content := buf[headerLength:]
	content[0x40] = 4                                  // name length in UTF-16 chars
	content[0x41] = 3                                  // namespace: WIN32_AND_DOS
	name := []byte{'$', 0, 'M', 0, 'F', 0, 'T', 0}      // "$MFT" UTF-16LE
	copy(content[0x42:], name)

	return buf
}

func buildDataAttribute() []byte {
	runList := []byte{0x11, 0x02, 0x05, 0x01, 0x03, 0x00}
	const runListOffset = 64
	buf := make([]byte, runListOffset+len(runList))

	binary.LittleEndian.PutUint32(buf[0:], 0x80)              // type: $DATA
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(buf)))  // length
	buf[8] = 1                                                // non-resident
	buf[9] = 0                                                // name length
	binary.LittleEndian.PutUint16(buf[0x0E:], 1)              // attribute id
	binary.LittleEndian.PutUint16(buf[0x20:], runListOffset)  // run list offset
	binary.LittleEndian.PutUint64(buf[0x28:], 2560)           // allocated size
	binary.LittleEndian.PutUint64(buf[0x30:], 2560)           // actual size

	copy(buf[runListOffset:], runList)
	return buf
}

// buildDeviceImage places the MFT record at offset 0 and the real run's data
// (2 clusters at cluster 5, 512 bytes/cluster => device offset 2560) filled
// with a recognizable 0xAB pattern.
func buildDeviceImage(t *testing.T, record []byte) string {
	t.Helper()
	const runDeviceOffset = 2560
	const runLength = 1024

	img := make([]byte, runDeviceOffset+runLength)
	copy(img, record)
	for i := 0; i < runLength; i++ {
		img[runDeviceOffset+i] = 0xAB
	}

	path := filepath.Join(t.TempDir(), "volume.img")
	require.Nil(t, os.WriteFile(path, img, 0600))
	return path
}

func TestExtractMFT(t *testing.T) {
	record := buildMFTRecord(t)
	path := buildDeviceImage(t, record)

	r, err := device.Open(path)
	require.Nil(t, err)
	defer r.Close()

	part := mbr.PartitionEntry{Index: 0, Type: mbr.NTFSType, RelativeSector: 0, TotalSectors: 8}
	bs := bootsect.BootSector{
		BytesPerSector:               512,
		SectorsPerCluster:            1,
		MftClusterNumber:             0,
		FileRecordSegmentSizeInBytes: 256,
	}

	var sink bytes.Buffer
	result, err := mftextract.ExtractMFT(r, part, bs, &sink)
	require.Nilf(t, err, "extraction failed: %v", err)

	assert.Equal(t, int64(16+1024+16+1536), result.Size)
	require.Len(t, result.Fragments, 1)
	assert.Equal(t, mftextract.Fragment{SinkOffset: 16, DeviceOffset: 2560}, result.Fragments[0])

	out := sink.Bytes()
	require.Equal(t, int(result.Size), len(out))

	assert.True(t, mftextract.IsMarker(out[0:16]))
	firstOffset, err := mftextract.DecodeMarker(out[0:16])
	require.Nil(t, err)
	assert.Equal(t, int64(2560), firstOffset)

	runData := out[16 : 16+1024]
	for _, b := range runData {
		assert.Equal(t, byte(0xAB), b)
	}

	sparseMarkerStart := 16 + 1024
	assert.True(t, mftextract.IsMarker(out[sparseMarkerStart : sparseMarkerStart+16]))
	sparseData := out[sparseMarkerStart+16:]
	assert.Len(t, sparseData, 1536)
	for _, b := range sparseData {
		assert.Equal(t, byte(0), b)
	}
}

func TestExtractMFT_Idempotent(t *testing.T) {
	record := buildMFTRecord(t)
	path := buildDeviceImage(t, record)

	part := mbr.PartitionEntry{Index: 0, Type: mbr.NTFSType, RelativeSector: 0, TotalSectors: 8}
	bs := bootsect.BootSector{
		BytesPerSector:               512,
		SectorsPerCluster:            1,
		MftClusterNumber:             0,
		FileRecordSegmentSizeInBytes: 256,
	}

	run := func() []byte {
		r, err := device.Open(path)
		require.Nil(t, err)
		defer r.Close()

		var sink bytes.Buffer
		_, err = mftextract.ExtractMFT(r, part, bs, &sink)
		require.Nil(t, err)
		return sink.Bytes()
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestExtractMFT_NotMFT(t *testing.T) {
	record := buildMFTRecord(t)
	// Corrupt the name so ChooseFileName no longer yields "$MFT".
	record[48+24+0x42] = 'X'
	path := buildDeviceImage(t, record)

	r, err := device.Open(path)
	require.Nil(t, err)
	defer r.Close()

	part := mbr.PartitionEntry{Index: 0, Type: mbr.NTFSType, RelativeSector: 0, TotalSectors: 8}
	bs := bootsect.BootSector{
		BytesPerSector:               512,
		SectorsPerCluster:            1,
		MftClusterNumber:             0,
		FileRecordSegmentSizeInBytes: 256,
	}

	var sink bytes.Buffer
	_, err = mftextract.ExtractMFT(r, part, bs, &sink)
	require.NotNil(t, err)
}
