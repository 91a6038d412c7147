/*
Package catalog iterates a linearized MFT stream (as produced by package
mftextract) in fixed-size record strides, classifies each record, and
collects an in-memory catalog of file entries keyed by MFT record number.
*/
package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/cugu/ntfsmft/mft"
	"github.com/cugu/ntfsmft/mftextract"
)

// Namespace is an alias for the $FILE_NAME namespace a primary name was
// chosen from.
type Namespace = mft.FileNameNamespace

// FileEntry is one cataloged MFT record.
type FileEntry struct {
	RecordNumber         uint32
	Flags                mft.RecordFlag
	Class                mft.RecordClass
	PrimaryName          string
	HasPrimaryName       bool
	Namespace            Namespace
	ParentReference      mft.FileReference
	FragmentOriginOffset int64
}

// Counters tallies records by classification, plus records that failed to
// parse (Bad) or did not carry a "FILE" signature at all (Corrupt).
type Counters struct {
	Files              int
	Directories        int
	DeletedFiles       int
	DeletedDirectories int
	Other              int
	Bad                int
	Corrupt            int
}

// Catalog is the result of cataloging a linearized MFT stream.
type Catalog struct {
	Entries  map[uint32]FileEntry
	Counters Counters
}

var fileSignature = []byte{'F', 'I', 'L', 'E'}

// Build iterates mftStream in recordSize strides. Inline fragment markers
// (written by mftextract.ExtractMFT immediately before each run) update the
// FragmentOriginOffset attributed to every record parsed until the next
// marker. A stride whose first four bytes are not "FILE" is not fatal: it
// increments Counters.Corrupt and cataloging continues.
func Build(mftStream io.Reader, recordSize int) (*Catalog, error) {
	if recordSize <= 0 {
		return nil, fmt.Errorf("record size must be positive, got %d", recordSize)
	}

	cat := &Catalog{Entries: make(map[uint32]FileEntry)}
	br := bufio.NewReaderSize(mftStream, recordSize*2)

	var origin int64
	for {
		peeked, _ := br.Peek(8)
		if len(peeked) == 0 {
			break
		}
		if len(peeked) == 8 && mftextract.IsMarker(peeked) {
			marker := make([]byte, 16)
			if _, err := io.ReadFull(br, marker); err != nil {
				return nil, fmt.Errorf("reading fragment marker: %w", err)
			}
			offset, err := mftextract.DecodeMarker(marker)
			if err != nil {
				return nil, err
			}
			origin = offset
			continue
		}
		if len(peeked) < 8 {
			// trailing bytes too short to be a record or a marker
			break
		}

		buf := make([]byte, recordSize)
		n, err := io.ReadFull(br, buf)
		if err != nil {
			if n == 0 {
				break
			}
			break
		}

		cat.ingest(buf, origin)
	}

	return cat, nil
}

func (c *Catalog) ingest(buf []byte, origin int64) {
	if len(buf) < 4 || !bytes.Equal(buf[:4], fileSignature) {
		c.Counters.Corrupt++
		return
	}

	record, err := mft.ParseRecord(buf)
	if err != nil {
		c.Counters.Bad++
		return
	}

	entry := FileEntry{
		RecordNumber:         uint32(record.FileReference.RecordNumber),
		Flags:                record.Flags,
		Class:                record.Flags.Classify(),
		FragmentOriginOffset: origin,
	}

	names := record.FindAttributes(mft.AttributeTypeFileName)
	parsedNames := make([]mft.FileName, 0, len(names))
	for _, a := range names {
		fn, err := mft.ParseFileName(a.Data)
		if err != nil {
			continue
		}
		parsedNames = append(parsedNames, fn)
	}
	if primary, ok := mft.ChooseFileName(parsedNames); ok {
		entry.PrimaryName = primary.Name
		entry.HasPrimaryName = true
		entry.Namespace = primary.Namespace
		entry.ParentReference = primary.ParentFileReference
	}

	switch entry.Class {
	case mft.ClassFile:
		c.Counters.Files++
	case mft.ClassDirectory:
		c.Counters.Directories++
	case mft.ClassDeletedFile:
		c.Counters.DeletedFiles++
	case mft.ClassDeletedDirectory:
		c.Counters.DeletedDirectories++
	default:
		c.Counters.Other++
	}

	c.Entries[entry.RecordNumber] = entry
}
