// Command sixs splits SIXS scans into jobs and projects their detector
// frames into reciprocal or real space coordinates.
package main

import (
	"fmt"
	"os"
	"strings"

	"sixs-binner/internal/config"
	"sixs-binner/internal/diffractometer"
	"sixs-binner/internal/job"
	"sixs-binner/internal/logging"
	"sixs-binner/internal/scan"
	"sixs-binner/internal/version"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	config  string
	debug   bool
	logJSON bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "sixs",
		Short:         "Project SIXS diffraction scans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetLogger(logging.New(cmd.ErrOrStderr(), flags.debug, flags.logJSON))
		},
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "sixs.yaml", "configuration file (.yaml, .yml or .toml)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log every processed point")
	root.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "log in JSON")

	root.AddCommand(
		newJobsCmd(&flags),
		newProcessCmd(&flags),
		newGeometryCmd(),
		newVersionCmd(),
	)
	return root
}

// scanList parses the scan selection given as arguments, e.g. "1-3,7 9".
func scanList(args []string) ([]int, error) {
	scans, err := job.ParseMultiRange(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 {
		return nil, job.ErrNoScans
	}
	return scans, nil
}

func newJobsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs SCANS...",
		Short: "List the jobs a run would dispatch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.config)
			if err != nil {
				return err
			}
			scans, err := scanList(args)
			if err != nil {
				return err
			}
			dest, err := job.DestinationOptions(scans)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scans %d-%d (%s), target weight %d\n", dest.First, dest.Last, dest.Range, cfg.Input.TargetWeight)
			fmt.Fprintf(out, "%-8s %8s %8s %8s\n", "SCAN", "FIRST", "LAST", "WEIGHT")

			store := cfg.Store()
			counter := func(n int) (int, error) { return scan.PointCount(store, n) }
			opts := job.Options{TargetWeight: cfg.Input.TargetWeight, Range: cfg.PointRange()}
			total := 0
			for j, err := range job.Generate(scans, counter, opts) {
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-8d %8d %8d %8d\n", j.Scan, j.FirstPoint, j.LastPoint, j.Weight)
				total++
			}
			fmt.Fprintf(out, "%d jobs\n", total)
			return nil
		},
	}
}

func newGeometryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geometry [NAME]",
		Short: "Print the sample and detector chains of the known diffractometers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := diffractometer.Names()
			if len(args) == 1 {
				names = args
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				k, err := diffractometer.Resolve(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", k.Name)
				fmt.Fprintf(out, "  sample:   %s\n", chain(k.Sample))
				fmt.Fprintf(out, "  detector: %s\n", chain(k.Detector))

				g, err := k.WithSample(diffractometer.DefaultSample())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  axes with sample offsets: %d\n", g.Len())
			}
			return nil
		},
	}
}

func chain(axes []diffractometer.AxisNode) string {
	parts := make([]string, len(axes))
	for i, a := range axes {
		parts[i] = fmt.Sprintf("%s(%g,%g,%g)", a.Name, a.Axis[0], a.Axis[1], a.Axis[2])
	}
	return strings.Join(parts, " -> ")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
