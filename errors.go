package pzst

import (
	"errors"

	"github.com/pzst/pzst/internal/format"
	"github.com/pzst/pzst/internal/tarscan"
)

// Errors re-exported from internal packages.
var (
	// ErrNoIndex is returned when a stream does not end in a pzst index
	// trailer. It is distinct from ErrIndexCorrupt so callers can fall
	// back to plain stream decompression for foreign files.
	ErrNoIndex = format.ErrNoTrailer

	// ErrIndexCorrupt is returned when the trailer or index is
	// recognizably pzst but fails checksum or structural validation.
	ErrIndexCorrupt = format.ErrTrailerCorrupt

	// ErrMalformedArchive is returned when tar-aware planning encounters
	// input that is not a well-formed tar stream.
	ErrMalformedArchive = tarscan.ErrMalformed
)

// Sentinel errors specific to the pzst package.
var (
	// ErrConfig is returned when options fail validation before the
	// pipeline starts.
	ErrConfig = errors.New("pzst: invalid configuration")

	// ErrChecksum is returned when a block's content does not match its
	// recorded checksum.
	ErrChecksum = errors.New("pzst: block checksum mismatch")

	// ErrEntryNotFound is returned when a requested member is not present
	// in the index. Other members requested in the same call are still
	// extracted.
	ErrEntryNotFound = errors.New("pzst: entry not found")
)
