package job

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ParseMultiRange parses scan selections such as "12,15-17 20". Ranges are
// inclusive. The result is sorted and free of duplicates.
func ParseMultiRange(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	var out []int
	for _, f := range fields {
		from, to, isRange := strings.Cut(f, "-")
		first, err := strconv.Atoi(from)
		if err != nil {
			return nil, fmt.Errorf("invalid scan selection %q: %w", f, err)
		}
		if !isRange {
			out = append(out, first)
			continue
		}
		last, err := strconv.Atoi(to)
		if err != nil {
			return nil, fmt.Errorf("invalid scan selection %q: %w", f, err)
		}
		if last < first {
			return nil, fmt.Errorf("invalid scan selection %q: descending range", f)
		}
		for n := first; n <= last; n++ {
			out = append(out, n)
		}
	}

	out = lo.Uniq(out)
	slices.Sort(out)
	return out, nil
}

// Destination holds the values available to output file name templates.
type Destination struct {
	First int
	Last  int
	Range string
}

// DestinationOptions summarises a scan selection for output naming.
func DestinationOptions(scans []int) (Destination, error) {
	if len(scans) == 0 {
		return Destination{}, ErrNoScans
	}
	return Destination{
		First: lo.Min(scans),
		Last:  lo.Max(scans),
		Range: strings.Join(lo.Map(scans, func(n int, _ int) string { return strconv.Itoa(n) }), ","),
	}, nil
}
