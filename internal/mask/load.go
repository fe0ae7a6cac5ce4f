package mask

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"
)

var (
	// ErrNotFound is returned when the mask file does not exist.
	ErrNotFound = errors.New("mask file not found")

	// ErrUnsupportedFormat is returned for unknown mask file extensions or
	// array layouts.
	ErrUnsupportedFormat = errors.New("unsupported mask format")
)

// Load reads a mask file. Any non-zero value marks the pixel as masked.
// Supported formats: .txt (whitespace separated grid), .npy (2-D numpy
// array) and .tif/.tiff/.png images. An empty path returns a nil mask.
func Load(path string) (*Mask, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat mask %s: %w", path, err)
	}

	var load func(io.Reader) (*Mask, error)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		load = readText
	case ".npy":
		load = readNpy
	case ".tif", ".tiff", ".png":
		load = readImage
	default:
		return nil, fmt.Errorf("%w: extension %q of %s", ErrUnsupportedFormat, ext, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mask %s: %w", path, err)
	}
	defer f.Close()

	m, err := load(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to load mask %s: %w", path, err)
	}
	return m, nil
}

func readText(r io.Reader) (*Mask, error) {
	var rows [][]bool
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		row := make([]bool, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row[i] = v != 0
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, fmt.Errorf("line %d has %d values, expected %d", line, len(row), len(rows[0]))
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty mask")
	}

	m := New(len(rows), len(rows[0]))
	for r, row := range rows {
		copy(m.Data[r*m.Cols:], row)
	}
	return m, nil
}

var (
	npyMagic   = []byte("\x93NUMPY")
	npyDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	npyFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	npyShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

func readNpy(r io.Reader) (*Mask, error) {
	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("npy preamble: %w", err)
	}
	if !bytes.Equal(magic[:len(npyMagic)], npyMagic) {
		return nil, fmt.Errorf("%w: not a npy file", ErrUnsupportedFormat)
	}

	var headerLen uint32
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		headerLen = uint32(n)
	case 2, 3:
		if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: npy version %d", ErrUnsupportedFormat, major)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("npy header: %w", err)
	}

	descr := npyDescr.FindSubmatch(header)
	fortran := npyFortran.FindSubmatch(header)
	shape := npyShape.FindSubmatch(header)
	if descr == nil || fortran == nil || shape == nil {
		return nil, fmt.Errorf("%w: malformed npy header %q", ErrUnsupportedFormat, header)
	}

	var dims []int
	for _, s := range strings.Split(string(shape[1]), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		d, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("npy shape: %w", err)
		}
		dims = append(dims, d)
	}
	if len(dims) != 2 || dims[0] <= 0 || dims[1] <= 0 {
		return nil, fmt.Errorf("%w: npy shape %v, want a 2-D array", ErrUnsupportedFormat, dims)
	}

	values, err := readNpyValues(r, string(descr[1]), dims[0]*dims[1])
	if err != nil {
		return nil, err
	}

	m := New(dims[0], dims[1])
	for i, v := range values {
		if string(fortran[1]) == "True" {
			// column-major: i = c*rows + r
			m.Set(i%dims[0], i/dims[0], v)
		} else {
			m.Data[i] = v
		}
	}
	return m, nil
}

func readNpyValues(r io.Reader, descr string, n int) ([]bool, error) {
	if len(descr) < 3 {
		return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, descr)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if descr[0] == '>' {
		order = binary.BigEndian
	}
	kind, size := descr[1], descr[2:]

	width, err := strconv.Atoi(size)
	if err != nil {
		return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, descr)
	}
	switch {
	case kind == 'b' && width == 1,
		(kind == 'u' || kind == 'i') && (width == 1 || width == 2 || width == 4 || width == 8),
		kind == 'f' && (width == 4 || width == 8):
	default:
		return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, descr)
	}

	raw := make([]byte, n*width)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("npy data: %w", err)
	}

	zero := make([]byte, width)
	out := make([]bool, n)
	for i := range out {
		b := raw[i*width : (i+1)*width]
		switch {
		case kind == 'f' && width == 4:
			out[i] = math.Float32frombits(order.Uint32(b)) != 0
		case kind == 'f' && width == 8:
			out[i] = math.Float64frombits(order.Uint64(b)) != 0
		default:
			// any set bit makes an integer or bool non-zero
			out[i] = !bytes.Equal(b, zero)
		}
	}
	return out, nil
}

func readImage(r io.Reader) (*Mask, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	m := New(b.Dy(), b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			m.Set(y-b.Min.Y, x-b.Min.X, g.Y != 0)
		}
	}
	return m, nil
}
