package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"sixs-binner/internal/config"
	"sixs-binner/internal/frame"
	"sixs-binner/internal/job"
	"sixs-binner/internal/logging"
	"sixs-binner/internal/mask"
	"sixs-binner/internal/scan"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

func newProcessCmd(flags *globalFlags) *cobra.Command {
	var failFast bool
	cmd := &cobra.Command{
		Use:   "process SCANS...",
		Short: "Project every point of the selected scans",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fail-fast") {
				cfg.Dispatcher.FailFast = failFast
			}
			scans, err := scanList(args)
			if err != nil {
				return err
			}
			p, err := newProcessor(cfg, scans)
			if err != nil {
				return err
			}
			sum, err := run(cmd.Context(), cfg, p, scans)
			if sum != nil {
				sum.Print(cmd.OutOrStdout())
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop the run at the first failing job")
	return cmd
}

// newProcessor builds the frame processor and checks that every selected
// scan exists and describes a supported geometry before any job runs.
func newProcessor(cfg *config.Config, scans []int) (*frame.Processor, error) {
	inst, err := scan.LookupInstrument(cfg.Input.Type)
	if err != nil {
		return nil, err
	}
	proj, err := cfg.SelectedProjection()
	if err != nil {
		return nil, err
	}
	userMask, err := mask.Load(cfg.MaskPath())
	if err != nil {
		return nil, err
	}

	p := &frame.Processor{
		Instrument: inst,
		Projection: proj,
		Setup: frame.Setup{
			Detector:     cfg.Input.Detector,
			CentralPixel: cfg.CentralPixel(),
			SDD:          cfg.Input.SDD,
		},
		UserMask:     userMask,
		DetectorRoll: cfg.Input.DetRot,
	}

	store := cfg.Store()
	for _, n := range scans {
		if _, err := cfg.ScanPath(n); err != nil {
			return nil, err
		}
		if err := preflight(store, n, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// preflight opens a scan and checks that its geometry is supported and
// that the configured input type records every axis it needs.
func preflight(o scan.Opener, scanNo int, p *frame.Processor) error {
	r, err := o.Open(scanNo)
	if err != nil {
		return fmt.Errorf("scan %d: %w", scanNo, err)
	}
	defer r.Close()
	ctx, err := frame.NewContext(r, p.Setup)
	if err != nil {
		return fmt.Errorf("scan %d: %w", scanNo, err)
	}
	if err := p.Instrument.Covers(ctx.Diffractometer.Kinematics); err != nil {
		return fmt.Errorf("%w: scan %d: input type %s: %v", config.ErrConfig, scanNo, p.Instrument.Name, err)
	}
	return nil
}

// run dispatches the jobs of the selected scans to a bounded set of
// workers. A failing job is logged and counted; with fail-fast it also
// cancels the remaining ones.
func run(ctx context.Context, cfg *config.Config, p *frame.Processor, scans []int) (*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store := cfg.Store()
	counter := func(n int) (int, error) { return scan.PointCount(store, n) }
	opts := job.Options{TargetWeight: cfg.Input.TargetWeight, Range: cfg.PointRange()}

	sum := NewSummary(p.Projection.AxisLabels())
	var failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Dispatcher.Workers)

	var genErr error
	for j, err := range job.Generate(scans, counter, opts) {
		if err != nil {
			genErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := runJob(ctx, p, store, j, sum)
			if err == nil {
				return nil
			}
			failed.Add(1)
			logging.Logger().Error("job failed", "job", j.String(), "error", err)
			if cfg.Dispatcher.FailFast {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sum, err
	}
	if genErr != nil {
		return sum, genErr
	}
	if n := failed.Load(); n > 0 {
		return sum, fmt.Errorf("%d jobs failed", n)
	}
	return sum, nil
}

func runJob(ctx context.Context, p *frame.Processor, o scan.Opener, j job.Job, sum *Summary) error {
	log := logging.Logger().With("job", j.String())
	log.Info("job started", "points", j.Points())

	points := 0
	for res, err := range p.Frames(o, j) {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Add(res)
		points++
	}

	log.Info("job finished", "points", points)
	return nil
}

// Summary collects the extent of the projected coordinates over the
// unmasked pixels of every processed point.
type Summary struct {
	mu     sync.Mutex
	Labels []string
	Min    []float64
	Max    []float64
	Points int
}

// NewSummary creates an empty summary for the given axes.
func NewSummary(labels []string) *Summary {
	s := &Summary{
		Labels: labels,
		Min:    make([]float64, len(labels)),
		Max:    make([]float64, len(labels)),
	}
	for i := range labels {
		s.Min[i] = math.Inf(1)
		s.Max[i] = math.Inf(-1)
	}
	return s
}

// Add folds one point into the summary.
func (s *Summary) Add(res *frame.Result) {
	w := res.Weights.RawMatrix().Data
	lows := make([]float64, len(res.Coordinates))
	highs := make([]float64, len(res.Coordinates))
	var kept []float64
	for i, c := range res.Coordinates {
		kept = kept[:0]
		for n, v := range c.RawMatrix().Data {
			if w[n] != 0 {
				kept = append(kept, v)
			}
		}
		lows[i], highs[i] = math.Inf(1), math.Inf(-1)
		if len(kept) > 0 {
			lows[i], highs[i] = floats.Min(kept), floats.Max(kept)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Labels {
		if i >= len(lows) {
			break
		}
		s.Min[i] = math.Min(s.Min[i], lows[i])
		s.Max[i] = math.Max(s.Max[i], highs[i])
	}
	s.Points++
}

// Print writes the summary table.
func (s *Summary) Print(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(w, "%d points processed\n", s.Points)
	if s.Points == 0 {
		return
	}
	fmt.Fprintf(w, "%-8s %14s %14s\n", "AXIS", "MIN", "MAX")
	for i, l := range s.Labels {
		fmt.Fprintf(w, "%-8s %14.6g %14.6g\n", l, s.Min[i], s.Max[i])
	}
}
