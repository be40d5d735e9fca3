package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseByteRange(t *testing.T) {
	cases := []struct {
		spec          string
		length        int64
		expectedError error
		expectedStart int64
		expectedEnd   int64
	}{
		{"bytes=0-20", 50, nil, 0, 20},
		{"bytes=0-20", 10, nil, 0, 9},
		{"bytes=-20", 50, nil, 30, 49},
		{"bytes=20-", 50, nil, 20, 49},
		{"bytes=-20", 10, nil, 0, 9},
		{"bytes=0-19", 20, nil, 0, 19},
		{"bytes=1-300", 20, nil, 1, 19},
		{"bytes=19-", 20, nil, 19, 19},
		{"bytes=20-", 20, ErrUnsatisfiableRange, 0, 0},
		{"bytes=21-", 20, ErrUnsatisfiableRange, 0, 0},
		{"bytes=-0", 20, ErrUnsatisfiableRange, 0, 0},
		{"bytes=5-2", 20, ErrBadRange, 0, 0},
		{"bytes=-", 20, ErrBadRange, 0, 0},
		{"bytes=0-foo", 20, ErrBadRange, 0, 0},
		{"bytes=foo-19", 20, ErrBadRange, 0, 0},
		{"bytes=-0-19", 20, ErrBadRange, 0, 0},
		{"bytess=0-19", 20, ErrBadRange, 0, 0},
		{"0-19", 20, ErrBadRange, 0, 0},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("%s_length_%d", c.spec, c.length), func(t *testing.T) {
			r, err := ParseByteRange(c.spec, c.length)
			if !errors.Is(err, c.expectedError) {
				t.Fatalf("expected error %v, got %v", c.expectedError, err)
			}
			if err != nil {
				return
			}
			if r.Start != c.expectedStart {
				t.Errorf("start = %d, want %d", r.Start, c.expectedStart)
			}
			if r.End != c.expectedEnd {
				t.Errorf("end = %d, want %d", r.End, c.expectedEnd)
			}
			if r.Size() != c.expectedEnd-c.expectedStart+1 {
				t.Errorf("size = %d, want %d", r.Size(), c.expectedEnd-c.expectedStart+1)
			}
		})
	}
}
