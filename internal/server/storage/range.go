package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/clouddrive/internal/common"
)

var rangeSpecRe = regexp.MustCompile(`^\s*(\d*)\s*-\s*(\d*)\s*$`)

// ByteRange is an inclusive byte interval [Start, End].
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range value of r within size.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses an HTTP Range header against a resource of size bytes.
// An empty header returns nil ranges. Ranges that cannot be satisfied are
// dropped; if none remain the result is ErrRangeNotSatisfiable.
func ParseRange(header string, size int64) ([]ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("range unit: %w", common.ErrRangeNotSatisfiable)
	}

	var out []ByteRange
	for _, spec := range strings.Split(header[len(prefix):], ",") {
		m := rangeSpecRe.FindStringSubmatch(spec)
		if m == nil || (m[1] == "" && m[2] == "") {
			return nil, fmt.Errorf("malformed range %q: %w", spec, common.ErrRangeNotSatisfiable)
		}

		var r ByteRange
		switch {
		case m[1] == "":
			// suffix: last n bytes
			n, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil || n == 0 {
				continue
			}
			if n > size {
				n = size
			}
			r = ByteRange{Start: size - n, End: size - 1}
		default:
			start, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed range %q: %w", spec, common.ErrRangeNotSatisfiable)
			}
			end := size - 1
			if m[2] != "" {
				if end, err = strconv.ParseInt(m[2], 10, 64); err != nil {
					return nil, fmt.Errorf("malformed range %q: %w", spec, common.ErrRangeNotSatisfiable)
				}
				if end < start {
					return nil, fmt.Errorf("malformed range %q: %w", spec, common.ErrRangeNotSatisfiable)
				}
				if end > size-1 {
					end = size - 1
				}
			}
			if start >= size {
				continue
			}
			r = ByteRange{Start: start, End: end}
		}
		if r.Length() > 0 {
			out = append(out, r)
		}
	}

	if len(out) == 0 {
		return nil, common.ErrRangeNotSatisfiable
	}
	return out, nil
}
