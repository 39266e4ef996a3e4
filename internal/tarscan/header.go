package tarscan

import (
	"bytes"
	"fmt"
	"strconv"
)

// ustar header record field offsets.
const (
	offName     = 0
	lenName     = 100
	offSize     = 124
	lenSize     = 12
	offChksum   = 148
	lenChksum   = 8
	offTypeflag = 156
	offMagic    = 257
	lenMagic    = 8
	offPrefix   = 345
	lenPrefix   = 155
)

type rawHeader struct {
	name     string
	typeflag byte
	size     uint64
}

// parseHeader validates and decodes one 512-byte header record.
func parseHeader(rec []byte) (*rawHeader, error) {
	if err := verifyChecksum(rec); err != nil {
		return nil, err
	}

	magic := rec[offMagic : offMagic+lenMagic]
	ustar := bytes.HasPrefix(magic, []byte("ustar"))
	// Pre-POSIX (v7) headers have a zeroed magic field; accept them since
	// the checksum already validated the record.
	if !ustar && !isZeroRecord(magic[:6]) {
		return nil, fmt.Errorf("%w: unrecognized header magic %q", ErrMalformed, magic)
	}

	name := cString(rec[offName : offName+lenName])
	if ustar {
		if prefix := cString(rec[offPrefix : offPrefix+lenPrefix]); prefix != "" {
			name = prefix + "/" + name
		}
	}

	size, err := parseNumeric(rec[offSize : offSize+lenSize])
	if err != nil {
		return nil, fmt.Errorf("%w: bad size field: %v", ErrMalformed, err)
	}

	return &rawHeader{
		name:     name,
		typeflag: rec[offTypeflag],
		size:     size,
	}, nil
}

// verifyChecksum recomputes the header checksum with the checksum field
// treated as spaces. Both the POSIX unsigned sum and the historical signed
// sum are accepted, matching common tar readers.
func verifyChecksum(rec []byte) error {
	want, err := parseOctal(rec[offChksum : offChksum+lenChksum])
	if err != nil {
		return fmt.Errorf("%w: bad checksum field: %v", ErrMalformed, err)
	}
	var unsigned, signed int64
	for i, b := range rec {
		if i >= offChksum && i < offChksum+lenChksum {
			b = ' '
		}
		unsigned += int64(b)
		signed += int64(int8(b))
	}
	if int64(want) != unsigned && int64(want) != signed {
		return fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	}
	return nil
}

// parseNumeric decodes an octal field or a GNU base-256 field (flagged by
// the high bit of the first byte).
func parseNumeric(field []byte) (uint64, error) {
	if len(field) > 0 && field[0]&0x80 != 0 {
		var v uint64
		for i, b := range field {
			if i == 0 {
				b &= 0x7f
			}
			if v > (1<<56)-1 {
				return 0, fmt.Errorf("base-256 value overflows")
			}
			v = v<<8 | uint64(b)
		}
		return v, nil
	}
	return parseOctal(field)
}

func parseOctal(field []byte) (uint64, error) {
	trimmed := trimPadding(field)
	if trimmed == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(trimmed, 8, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// trimPadding trims the NUL and space padding tar writers use around octal
// fields.
func trimPadding(field []byte) string {
	return string(bytes.Trim(field, " \x00"))
}

func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
