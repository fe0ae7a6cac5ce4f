// Package scan defines access to recorded scans: the reader contract the
// frame processor consumes, the per-instrument channel maps and two stores
// (in memory and on disk).
package scan

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrNotFound is returned when a scan cannot be located.
var ErrNotFound = errors.New("scan not found")

// Metadata is read once per scan file.
type Metadata struct {
	Diffractometer string
	Detector       string
	UB             *mat.Dense
	Wavelength     float64
}

// Reader is a read-only handle on one scan. Channels are addressed by their
// physical name.
type Reader interface {
	Metadata() (Metadata, error)
	PointCount() (int, error)
	Scalar(channel string, index int) (float64, error)
	Image(channel string, index int) (*mat.Dense, error)
	Close() error
}

// Opener opens scans by number.
type Opener interface {
	Open(scanNo int) (Reader, error)
}

// PointCount opens a scan just long enough to read its number of points.
func PointCount(o Opener, scanNo int) (int, error) {
	r, err := o.Open(scanNo)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.PointCount()
}

// Filename expands the {scanno} placeholder of a file name template with the
// scan number padded to five digits.
func Filename(template string, scanNo int) string {
	return strings.ReplaceAll(template, "{scanno}", fmt.Sprintf("%05d", scanNo))
}
