package scan

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// MetadataFile is the name of the metadata file of a scan directory.
const MetadataFile = "scan.yaml"

// dirMeta is the on-disk layout of scan.yaml.
type dirMeta struct {
	Diffractometer string               `yaml:"diffractometer"`
	Detector       string               `yaml:"detector,omitempty"`
	Wavelength     float64              `yaml:"wavelength"`
	UB             [][]float64          `yaml:"ub"`
	Points         int                  `yaml:"points"`
	Channels       map[string][]float64 `yaml:"channels"`
}

// DirStore reads scans stored as directories: a scan.yaml holding the
// metadata and the scalar channels, and one 16-bit TIFF per point for each
// image channel (<channel>/<index>.tif, index padded to five digits).
type DirStore struct {
	Template string // directory name template with a {scanno} placeholder
}

// Path returns the directory of a scan.
func (s DirStore) Path(scanNo int) string {
	return Filename(s.Template, scanNo)
}

// Open reads the metadata of a scan directory.
func (s DirStore) Open(scanNo int) (Reader, error) {
	dir := s.Path(scanNo)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read scan metadata: %w", err)
	}
	var meta dirMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse scan metadata %s: %w", dir, err)
	}
	ub, err := denseFromRows(meta.UB)
	if err != nil {
		return nil, fmt.Errorf("%s: ub: %w", dir, err)
	}

	return &dirReader{
		dir: dir,
		meta: Metadata{
			Diffractometer: meta.Diffractometer,
			Detector:       meta.Detector,
			UB:             ub,
			Wavelength:     meta.Wavelength,
		},
		points:   meta.Points,
		channels: meta.Channels,
	}, nil
}

type dirReader struct {
	dir      string
	meta     Metadata
	points   int
	channels map[string][]float64
	closed   bool
}

func (r *dirReader) Metadata() (Metadata, error) {
	if r.closed {
		return Metadata{}, errClosed
	}
	return r.meta, nil
}

func (r *dirReader) PointCount() (int, error) {
	if r.closed {
		return 0, errClosed
	}
	return r.points, nil
}

func (r *dirReader) Scalar(channel string, index int) (float64, error) {
	if r.closed {
		return 0, errClosed
	}
	values, ok := r.channels[channel]
	if !ok {
		return 0, fmt.Errorf("no channel %q in %s", channel, r.dir)
	}
	if index < 0 || index >= len(values) {
		return 0, fmt.Errorf("channel %q: point %d out of range [0, %d)", channel, index, len(values))
	}
	return values[index], nil
}

func (r *dirReader) Image(channel string, index int) (*mat.Dense, error) {
	if r.closed {
		return nil, errClosed
	}
	if index < 0 || index >= r.points {
		return nil, fmt.Errorf("channel %q: point %d out of range [0, %d)", channel, index, r.points)
	}
	f, err := os.Open(imagePath(r.dir, channel, index))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name(), err)
	}
	b := img.Bounds()
	out := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			out.Set(y-b.Min.Y, x-b.Min.X, float64(g.Y))
		}
	}
	return out, nil
}

func (r *dirReader) Close() error {
	r.closed = true
	return nil
}

func imagePath(dir, channel string, index int) string {
	return filepath.Join(dir, channel, fmt.Sprintf("%05d.tif", index))
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) != 3 {
		return nil, fmt.Errorf("want 3 rows, got %d", len(rows))
	}
	data := make([]float64, 0, 9)
	for i, row := range rows {
		if len(row) != 3 {
			return nil, fmt.Errorf("row %d has %d values, want 3", i, len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(3, 3, data), nil
}

// WriteDir stores sc as a scan directory. Image values are rounded and
// clamped to the 16-bit range.
func WriteDir(dir string, sc *MemoryScan) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	meta := dirMeta{
		Diffractometer: sc.Meta.Diffractometer,
		Detector:       sc.Meta.Detector,
		Wavelength:     sc.Meta.Wavelength,
		Points:         sc.Points,
		Channels:       sc.Scalars,
	}
	if sc.Meta.UB != nil {
		for i := 0; i < 3; i++ {
			meta.UB = append(meta.UB, mat.Row(nil, i, sc.Meta.UB))
		}
	}
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644); err != nil {
		return err
	}

	for channel, images := range sc.Images {
		if err := os.MkdirAll(filepath.Join(dir, channel), 0755); err != nil {
			return err
		}
		for i, m := range images {
			if err := writeTIFF(imagePath(dir, channel, i), m); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeTIFF(path string, m mat.Matrix) error {
	rows, cols := m.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := math.Round(m.At(r, c))
			v = math.Max(0, math.Min(math.MaxUint16, v))
			img.SetGray16(c, r, color.Gray16{Y: uint16(v)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
