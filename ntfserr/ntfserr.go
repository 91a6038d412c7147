// Package ntfserr defines the catalog of error kinds produced while walking
// a raw NTFS volume. Callers distinguish them with errors.Is; every
// constructor in this module wraps one of these sentinels with %w so the
// kind survives across package boundaries.
package ntfserr

import "errors"

// Fatal to the whole run: the block device itself could not be read.
var (
	DeviceOpen = errors.New("device open failed")
	Seek       = errors.New("seek failed")
	ShortRead  = errors.New("short read")
)

// Fatal to a single partition, but other partitions (and the overall run)
// continue.
var (
	BadBootSector = errors.New("boot sector failed validation")
	MFTNotFound   = errors.New("first MFT record does not name itself $MFT")
	MFTRead       = errors.New("I/O error while linearizing MFT")
)

// Recoverable: the faulty unit (an attribute, a record) is skipped, a
// counter is incremented, and parsing continues. The exception is
// BadRunList on the $MFT's own run list, which mftextract.ExtractMFT
// returns as a failure for the partition. CorruptRecord is not returned by
// any function; package catalog counts such strides in Counters.Corrupt.
var (
	BadRunList              = errors.New("malformed data-run byte sequence")
	MalformedAttributeChain = errors.New("attribute header length exceeds record used_size")
	CorruptRecord           = errors.New("record signature is neither FILE nor a fragment marker")
)
