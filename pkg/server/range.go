package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrRangeNotSatisfiable = errors.New("range not satisfiable")

// byteRange is an inclusive range of object bytes.
type byteRange struct {
	start   int64
	end     int64
	partial bool
}

func (br byteRange) length() int64 {
	return br.end - br.start + 1
}

func (br byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, size)
}

// parseRange reads a Range header of the form bytes=<a>-[<b>]. An empty
// header selects the whole object. Suffix ranges, multiple ranges and
// anything else malformed are rejected as unsatisfiable.
func parseRange(header string, size int64) (byteRange, error) {
	if header == "" {
		return byteRange{start: 0, end: size - 1}, nil
	}
	ranges, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(ranges, ",") {
		return byteRange{}, fmt.Errorf("%w: %q", ErrRangeNotSatisfiable, header)
	}
	startStr, endStr, ok := strings.Cut(ranges, "-")
	if !ok {
		return byteRange{}, fmt.Errorf("%w: %q", ErrRangeNotSatisfiable, header)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("%w: invalid start in %q", ErrRangeNotSatisfiable, header)
	}
	end := size - 1
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return byteRange{}, fmt.Errorf("%w: invalid end in %q", ErrRangeNotSatisfiable, header)
		}
	}

	if start < 0 || end >= size || start > end {
		return byteRange{}, fmt.Errorf("%w: %d-%d of %d", ErrRangeNotSatisfiable, start, end, size)
	}
	return byteRange{start: start, end: end, partial: true}, nil
}
