package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrBadRange           = errors.New("invalid range")
	ErrUnsatisfiableRange = errors.New("unsatisfiable range")
)

// ByteRange is a resolved, inclusive HTTP byte range against an object of a
// known length. Multiple ranges per request are not supported; the object
// store only honors a single range per GET anyway.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) String() string {
	return fmt.Sprintf("start=%d, end=%d", r.Start, r.End)
}

// Size returns the number of bytes covered by the range.
func (r ByteRange) Size() int64 {
	return r.End - r.Start + 1
}

// ParseByteRange parses an RFC 7233 Range header value ("bytes=start-end",
// "bytes=start-", "bytes=-suffix") and resolves it against length.
// An end offset past the object is clamped rather than rejected; a start
// offset past the object is unsatisfiable.
func ParseByteRange(spec string, length int64) (ByteRange, error) {
	var r ByteRange
	if !strings.HasPrefix(spec, "bytes=") {
		return r, ErrBadRange
	}
	spec = strings.TrimPrefix(spec, "bytes=")

	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return r, ErrBadRange
	}
	fromString, toString := parts[0], parts[1]
	if fromString == "" && toString == "" {
		return r, ErrBadRange
	}

	// suffix form: last N bytes
	if fromString == "" {
		suffix, err := strconv.ParseInt(toString, 10, 64)
		if err != nil || suffix < 0 {
			return r, ErrBadRange
		}
		// A zero suffix length selects no bytes and cannot be satisfied.
		if suffix == 0 {
			return r, ErrUnsatisfiableRange
		}
		r.Start = length - suffix
		if r.Start < 0 {
			r.Start = 0
		}
		r.End = length - 1
		return r, nil
	}

	start, err := strconv.ParseInt(fromString, 10, 64)
	if err != nil || start < 0 {
		return r, ErrBadRange
	}
	if start > length-1 {
		return r, ErrUnsatisfiableRange
	}

	// open-ended form: start through end of object
	if toString == "" {
		r.Start = start
		r.End = length - 1
		return r, nil
	}

	end, err := strconv.ParseInt(toString, 10, 64)
	if err != nil {
		return r, ErrBadRange
	}
	if end > length-1 {
		end = length - 1
	}
	if end < start {
		return r, ErrBadRange
	}
	r.Start = start
	r.End = end
	return r, nil
}
