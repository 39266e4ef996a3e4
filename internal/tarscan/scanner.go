// Package tarscan is a resumable scanner over tar streams used by the
// block planner. It tokenizes the raw input into header record groups,
// payload chunks, and the end-of-archive marker, so the planner can place
// block boundaries without ever splitting a header.
//
// A header record group is the complete run of records introducing one
// member: any GNU long-name/long-link records and PAX extended records
// (including their payloads) plus the final ustar header record. The group
// is surfaced as a single atomic item.
package tarscan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const recordSize = 512

// ErrMalformed is returned when the input is not a well-formed tar stream.
var ErrMalformed = errors.New("pzst: malformed tar header")

// Kind classifies scanner items.
type Kind uint8

const (
	// KindHeader is a complete header record group. Atomic: the planner
	// must keep all of Data in one block.
	KindHeader Kind = iota + 1

	// KindPayload is a chunk of member payload, including the final
	// padding to a record boundary. Splittable.
	KindPayload

	// KindMarker is the end-of-archive zero records and any trailing
	// padding. Splittable.
	KindMarker
)

// File describes the member introduced by a header group.
type File struct {
	// Name is the member path after GNU long-name and PAX overrides.
	Name string

	// Type is the tar typeflag byte.
	Type byte

	// Size is the declared payload size in bytes, excluding record padding.
	Size uint64
}

// Item is one tokenized piece of the input stream.
type Item struct {
	Kind Kind

	// Data is the raw bytes of the item. It is only valid until the next
	// call to Next.
	Data []byte

	// File is set for KindHeader items.
	File *File
}

type phase uint8

const (
	phaseHeader phase = iota
	phasePayload
	phaseMarker
)

// Scanner tokenizes a tar stream. It carries explicit state between calls
// so the planner can pause at any item boundary, including between the
// records of an unfinished archive member.
type Scanner struct {
	r     io.Reader
	phase phase

	// payloadRemaining counts payload bytes left for the current member,
	// including padding to the record boundary.
	payloadRemaining uint64

	group []byte // header group accumulator, reused
	chunk []byte // payload chunk buffer, reused

	// Overrides pending from long-name and PAX records for the next
	// member header.
	longName string
	paxPath  string
	paxSize  uint64
	paxHas   uint8
}

const (
	paxHasPath uint8 = 1 << iota
	paxHasSize
)

const payloadChunkSize = 64 << 10

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:     r,
		chunk: make([]byte, payloadChunkSize),
	}
}

// Next returns the next item. max bounds the Data length of splittable
// items; header groups are returned whole regardless of max. Next returns
// io.EOF after the input is exhausted.
func (s *Scanner) Next(max int) (Item, error) {
	if max <= 0 {
		max = payloadChunkSize
	}
	switch s.phase {
	case phasePayload:
		return s.nextPayload(max)
	case phaseMarker:
		return s.nextTrailing(max)
	default:
		return s.nextHeader()
	}
}

func (s *Scanner) nextPayload(max int) (Item, error) {
	n := uint64(max)
	if n > s.payloadRemaining {
		n = s.payloadRemaining
	}
	if n > payloadChunkSize {
		n = payloadChunkSize
	}
	buf := s.chunk[:n]
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return Item{}, fmt.Errorf("%w: truncated member payload: %v", ErrMalformed, err)
	}
	s.payloadRemaining -= n
	if s.payloadRemaining == 0 {
		s.phase = phaseHeader
	}
	return Item{Kind: KindPayload, Data: buf}, nil
}

// nextTrailing consumes bytes after the end-of-archive marker. tar writers
// pad the stream to their blocking factor; those bytes are preserved so
// decompression reproduces the input exactly.
func (s *Scanner) nextTrailing(max int) (Item, error) {
	if max > payloadChunkSize {
		max = payloadChunkSize
	}
	n, err := s.r.Read(s.chunk[:max])
	if n > 0 {
		return Item{Kind: KindMarker, Data: s.chunk[:n]}, nil
	}
	if err == nil || err == io.EOF {
		return Item{}, io.EOF
	}
	return Item{}, err
}

func (s *Scanner) nextHeader() (Item, error) {
	s.group = s.group[:0]
	for {
		rec, err := s.readRecord(len(s.group) > 0)
		if err != nil {
			return Item{}, err
		}
		if isZeroRecord(rec) {
			if len(s.group) > recordSize || s.pendingOverrides() {
				return Item{}, fmt.Errorf("%w: zero record inside header group", ErrMalformed)
			}
			return s.finishMarker()
		}

		hdr, err := parseHeader(rec)
		if err != nil {
			return Item{}, err
		}

		switch hdr.typeflag {
		case 'L': // GNU long name
			data, err := s.readMetaPayload(hdr.size)
			if err != nil {
				return Item{}, err
			}
			s.longName = string(bytes.TrimRight(data, "\x00"))
		case 'K': // GNU long link target; kept in the stream, not indexed
			if _, err := s.readMetaPayload(hdr.size); err != nil {
				return Item{}, err
			}
		case 'x': // PAX extended header for the next member
			data, err := s.readMetaPayload(hdr.size)
			if err != nil {
				return Item{}, err
			}
			if err := s.parsePax(data); err != nil {
				return Item{}, err
			}
		case 'g': // PAX global header; parsed for validity, not applied
			data, err := s.readMetaPayload(hdr.size)
			if err != nil {
				return Item{}, err
			}
			if err := validatePax(data); err != nil {
				return Item{}, err
			}
		default:
			return s.finishMember(hdr)
		}
	}
}

func (s *Scanner) finishMember(hdr *rawHeader) (Item, error) {
	file := &File{
		Name: hdr.name,
		Type: hdr.typeflag,
		Size: hdr.size,
	}
	if s.longName != "" {
		file.Name = s.longName
	}
	if s.paxHas&paxHasPath != 0 {
		file.Name = s.paxPath
	}
	if s.paxHas&paxHasSize != 0 {
		file.Size = s.paxSize
	}
	s.longName = ""
	s.paxPath = ""
	s.paxSize = 0
	s.paxHas = 0

	if typeHasData(hdr.typeflag) && file.Size > 0 {
		s.payloadRemaining = paddedSize(file.Size)
		s.phase = phasePayload
	}
	return Item{Kind: KindHeader, Data: s.group, File: file}, nil
}

// finishMarker consumes the second end-of-archive record, tolerating
// writers that emit only one.
func (s *Scanner) finishMarker() (Item, error) {
	buf := make([]byte, recordSize)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == io.EOF:
		// Single zero record then EOF.
	case err == io.ErrUnexpectedEOF:
		s.group = append(s.group, buf[:n]...)
	case err != nil:
		return Item{}, err
	default:
		if !isZeroRecord(buf) {
			return Item{}, fmt.Errorf("%w: data after end-of-archive record", ErrMalformed)
		}
		s.group = append(s.group, buf...)
	}
	s.phase = phaseMarker
	return Item{Kind: KindMarker, Data: s.group}, nil
}

// readRecord reads one 512-byte record into the group accumulator.
// A clean EOF is only acceptable when no group bytes are pending.
func (s *Scanner) readRecord(midGroup bool) ([]byte, error) {
	start := len(s.group)
	s.group = append(s.group, make([]byte, recordSize)...)
	rec := s.group[start : start+recordSize]
	_, err := io.ReadFull(s.r, rec)
	switch {
	case err == io.EOF && !midGroup:
		s.group = s.group[:start]
		return nil, io.EOF
	case err != nil:
		return nil, fmt.Errorf("%w: truncated header record: %v", ErrMalformed, err)
	}
	return rec, nil
}

// readMetaPayload reads the padded payload of a metadata record (long
// name, PAX attributes) into the group accumulator and returns the
// unpadded content.
func (s *Scanner) readMetaPayload(size uint64) ([]byte, error) {
	const maxMetaSize = 1 << 20
	if size > maxMetaSize {
		return nil, fmt.Errorf("%w: metadata record of %d bytes", ErrMalformed, size)
	}
	padded := int(paddedSize(size))
	start := len(s.group)
	s.group = append(s.group, make([]byte, padded)...)
	buf := s.group[start : start+padded]
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated metadata payload: %v", ErrMalformed, err)
	}
	return buf[:size], nil
}

func (s *Scanner) pendingOverrides() bool {
	return s.longName != "" || s.paxHas != 0
}

func (s *Scanner) parsePax(data []byte) error {
	return parsePaxRecords(data, func(key, value string) error {
		switch key {
		case "path":
			s.paxPath = value
			s.paxHas |= paxHasPath
		case "size":
			size, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad pax size %q", ErrMalformed, value)
			}
			s.paxSize = size
			s.paxHas |= paxHasSize
		}
		return nil
	})
}

func validatePax(data []byte) error {
	return parsePaxRecords(data, func(string, string) error { return nil })
}

// parsePaxRecords walks "%d key=value\n" records.
func parsePaxRecords(data []byte, fn func(key, value string) error) error {
	rest := string(data)
	for len(rest) > 0 {
		sp := strings.IndexByte(rest, ' ')
		if sp <= 0 {
			return fmt.Errorf("%w: bad pax record", ErrMalformed)
		}
		n, err := strconv.Atoi(rest[:sp])
		if err != nil || n <= sp || n > len(rest) || rest[n-1] != '\n' {
			return fmt.Errorf("%w: bad pax record length", ErrMalformed)
		}
		kv := rest[sp+1 : n-1]
		rest = rest[n:]
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return fmt.Errorf("%w: bad pax record", ErrMalformed)
		}
		if err := fn(kv[:eq], kv[eq+1:]); err != nil {
			return err
		}
	}
	return nil
}

func paddedSize(n uint64) uint64 {
	return (n + recordSize - 1) &^ uint64(recordSize-1)
}

func isZeroRecord(rec []byte) bool {
	for _, b := range rec {
		if b != 0 {
			return false
		}
	}
	return true
}

// typeHasData reports whether a member of the given type carries payload
// records. Per POSIX, link, device, directory, and fifo members do not,
// regardless of their size field; unknown types do, so their payload can
// be skipped using the size field.
func typeHasData(typeflag byte) bool {
	switch typeflag {
	case '1', '2', '3', '4', '5', '6':
		return false
	default:
		return true
	}
}

// PayloadSpan returns the number of payload bytes the member occupies in
// the stream, including padding to the record boundary.
func (f *File) PayloadSpan() uint64 {
	if !typeHasData(f.Type) {
		return 0
	}
	return paddedSize(f.Size)
}
