// Package frame turns the points of a scan into projected coordinates: it
// builds the sample and detector rotations from the recorded axis values,
// weights the pixels with the masks and runs the configured projection.
package frame

import (
	"fmt"
	"iter"
	"math"

	"sixs-binner/internal/job"
	"sixs-binner/internal/logging"
	"sixs-binner/internal/mask"
	"sixs-binner/internal/projection"
	"sixs-binner/internal/scan"
	"sixs-binner/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// ProcessingError reports a failure while processing one scan point.
type ProcessingError struct {
	Scan  int
	Point int
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("an error occurred for scan %d at point %d: %v", e.Scan, e.Point, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Result is the output of one point, handed to the accumulation stage.
// Weights is 0 for masked pixels and 1 elsewhere.
type Result struct {
	Scan        int
	Index       int
	Intensity   *mat.Dense
	Weights     *mat.Dense
	Input       projection.Input
	Coordinates projection.Coordinates
}

// Processor holds the per-run processing choices.
type Processor struct {
	Instrument   *scan.Instrument
	Projection   projection.Projection
	Setup        Setup
	UserMask     *mask.Mask
	DetectorRoll *float64 // degrees about the beam, applied after the detector chain
}

// ProcessPoint processes point index of an open scan. Errors are returned
// as *ProcessingError.
func (p *Processor) ProcessPoint(r scan.Reader, ctx *Context, scanNo, index int) (*Result, error) {
	res, err := p.process(r, ctx, index)
	if err != nil {
		return nil, &ProcessingError{Scan: scanNo, Point: index, Err: err}
	}
	res.Scan = scanNo
	logging.Logger().Debug("processed point", "scan", scanNo, "point", index)
	return res, nil
}

func (p *Processor) process(r scan.Reader, ctx *Context, index int) (*Result, error) {
	k := ctx.Diffractometer.Kinematics
	f, err := p.Instrument.ReadFrame(r, k, index)
	if err != nil {
		return nil, err
	}

	rows, cols := f.Image.Dims()
	if rows != ctx.Pixels.Rows || cols != ctx.Pixels.Cols {
		return nil, fmt.Errorf("image is %dx%d, detector %s is %dx%d",
			rows, cols, ctx.Detector.Name, ctx.Pixels.Rows, ctx.Pixels.Cols)
	}

	R, err := geometry.Compose(geometry.Radians(f.SampleValues), k.SampleAxes())
	if err != nil {
		return nil, fmt.Errorf("sample rotation: %w", err)
	}
	P, err := geometry.Compose(geometry.Radians(f.DetectorValues), k.DetectorAxes())
	if err != nil {
		return nil, fmt.Errorf("detector rotation: %w", err)
	}
	if p.DetectorRoll != nil {
		P.Mul(mat.DenseCopyOf(P), geometry.RotationMatrix(*p.DetectorRoll*math.Pi/180, geometry.Beam))
	}

	masked, err := mask.Or(ctx.BadPixels, p.UserMask)
	if err != nil {
		return nil, err
	}
	weights, err := masked.Weights(rows, cols)
	if err != nil {
		return nil, err
	}

	in := projection.Input{
		Pixels: ctx.Pixels,
		K:      ctx.Source.K(),
		UB:     ctx.Diffractometer.UB,
		R:      R,
		P:      P,
	}
	coords, err := p.Projection.Project(in)
	if err != nil {
		return nil, err
	}

	return &Result{
		Index:       index,
		Intensity:   f.Image,
		Weights:     weights,
		Input:       in,
		Coordinates: coords,
	}, nil
}

// Frames lazily processes the points of a job. The scan is opened when
// iteration starts and closed when it ends, whether the job is exhausted,
// the consumer stops early or an error occurs. Iterating again reopens the
// scan. Iteration stops after the first error.
func (p *Processor) Frames(o scan.Opener, j job.Job) iter.Seq2[*Result, error] {
	return func(yield func(*Result, error) bool) {
		r, err := o.Open(j.Scan)
		if err != nil {
			yield(nil, fmt.Errorf("scan %d: %w", j.Scan, err))
			return
		}
		defer r.Close()

		ctx, err := NewContext(r, p.Setup)
		if err != nil {
			yield(nil, fmt.Errorf("scan %d: %w", j.Scan, err))
			return
		}

		for index := j.FirstPoint; index <= j.LastPoint; index++ {
			res, err := p.ProcessPoint(r, ctx, j.Scan, index)
			if !yield(res, err) || err != nil {
				return
			}
		}
	}
}
