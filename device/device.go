/*
Package device provides positioned, single-threaded byte-level reads
against a raw block device (or any disk-image file opened read-only).

The reader keeps no state beyond its own cursor: no package-level globals,
no shared mutable state, so callers can open as many volumes concurrently
as they like, each with its own *BlockReader.
*/
package device

import (
	"fmt"
	"io"
	"os"

	"github.com/cugu/ntfsmft/ntfserr"
)

// A BlockReader is a positioned byte cursor over a read-only block device.
// It is not safe for concurrent use.
type BlockReader struct {
	f   *os.File
	pos int64
}

// Open opens path read-only. path is typically a raw block device node
// (e.g. "/dev/sdb") or a disk-image file.
func Open(path string) (*BlockReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w: %v", path, ntfserr.DeviceOpen, err)
	}
	return &BlockReader{f: f}, nil
}

// Close closes the underlying device.
func (r *BlockReader) Close() error {
	return r.f.Close()
}

// Position returns the current absolute byte offset of the cursor.
func (r *BlockReader) Position() int64 {
	return r.pos
}

// SeekAbs positions the cursor at the given absolute byte offset.
func (r *BlockReader) SeekAbs(offset int64) error {
	pos, err := r.f.Seek(offset, io.SeekStart)
	if err != nil {
		return fmt.Errorf("seeking to %d: %w: %v", offset, ntfserr.Seek, err)
	}
	r.pos = pos
	return nil
}

// SeekRel moves the cursor by delta bytes relative to its current position.
func (r *BlockReader) SeekRel(delta int64) error {
	pos, err := r.f.Seek(delta, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("seeking by %d from %d: %w: %v", delta, r.pos, ntfserr.Seek, err)
	}
	r.pos = pos
	return nil
}

// ReadExact reads exactly n bytes starting at the current cursor position
// and advances the cursor by the number of bytes actually read, even on a
// short read, so Position() always reflects reality.
func (r *BlockReader) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r.f, buf)
	r.pos += int64(read)
	if err != nil {
		return nil, fmt.Errorf("reading %d bytes at %d: %w: %v", n, r.pos-int64(read), ntfserr.ShortRead, err)
	}
	return buf, nil
}
