// Package config loads and validates the processing configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"sixs-binner/internal/detector"
	"sixs-binner/internal/job"
	"sixs-binner/internal/projection"
	"sixs-binner/internal/scan"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks invalid or missing configuration.
var ErrConfig = errors.New("configuration error")

// DefaultTargetWeight is the number of points per job when none is set.
const DefaultTargetWeight = 1000

// Config represents the complete processing configuration.
type Config struct {
	Input      InputConfig      `yaml:"input" toml:"input"`
	Projection ProjectionConfig `yaml:"projection" toml:"projection"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" toml:"dispatcher"`

	dir string // directory of the config file, for relative paths
}

// InputConfig selects the instrument and describes the detector setup.
type InputConfig struct {
	Type         string   `yaml:"type" toml:"type"`                             // FlyScanUHV, FlyScanUHV2, SBSMedH
	NexusFile    string   `yaml:"nexusfile" toml:"nexusfile"`                   // scan location template with {scanno}
	SDD          float64  `yaml:"sdd" toml:"sdd"`                               // sample to detector distance (mm)
	CentralPixel []int    `yaml:"centralpixel" toml:"centralpixel"`             // x, y
	MaskMatrix   string   `yaml:"maskmatrix,omitempty" toml:"maskmatrix"`       // optional user mask file
	DetRot       *float64 `yaml:"detrot,omitempty" toml:"detrot"`               // detector roll about the beam (degrees)
	PointRange   []int    `yaml:"pr,omitempty" toml:"pr"`                       // optional first, last point
	TargetWeight int      `yaml:"target_weight,omitempty" toml:"target_weight"` // points per job
	Detector     string   `yaml:"detector,omitempty" toml:"detector"`           // overrides the detector named by the scan
}

// ProjectionConfig selects the output coordinates.
type ProjectionConfig struct {
	Type string `yaml:"type" toml:"type"`
}

// DispatcherConfig controls the local job runner.
type DispatcherConfig struct {
	Workers  int  `yaml:"workers,omitempty" toml:"workers"`
	FailFast bool `yaml:"fail_fast,omitempty" toml:"fail_fast"`
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfig, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("%w: unknown config format %q", ErrConfig, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfig, err)
	}
	cfg.dir = filepath.Dir(path)

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional values.
func (c *Config) ApplyDefaults() {
	if c.Input.TargetWeight == 0 {
		c.Input.TargetWeight = DefaultTargetWeight
	}
	if c.Projection.Type == "" {
		c.Projection.Type = projection.NameHKL
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = runtime.NumCPU()
	}
}

// Validate checks the configuration. Every error wraps ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	in := c.Input
	if _, err := scan.LookupInstrument(in.Type); err != nil {
		errs = append(errs, err)
	}
	check(in.NexusFile != "", "input.nexusfile is required")
	check(in.SDD > 0, "input.sdd must be positive, got %g", in.SDD)
	check(len(in.CentralPixel) == 2, "input.centralpixel needs 2 values (x, y), got %d", len(in.CentralPixel))
	if len(in.CentralPixel) == 2 {
		check(in.CentralPixel[0] >= 0 && in.CentralPixel[1] >= 0, "input.centralpixel must not be negative")
	}
	if in.PointRange != nil {
		check(len(in.PointRange) == 2, "input.pr needs 2 values (first, last), got %d", len(in.PointRange))
		if len(in.PointRange) == 2 {
			check(in.PointRange[0] >= 0 && in.PointRange[1] >= in.PointRange[0],
				"input.pr [%d, %d] is not a valid range", in.PointRange[0], in.PointRange[1])
		}
	}
	check(in.TargetWeight > 0, "input.target_weight must be positive, got %d", in.TargetWeight)
	if in.Detector != "" {
		if _, err := detector.Get(in.Detector); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := projection.ByName(c.Projection.Type); err != nil {
		errs = append(errs, err)
	}
	check(c.Dispatcher.Workers > 0, "dispatcher.workers must be positive, got %d", c.Dispatcher.Workers)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// Path resolves p relative to the directory of the config file.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// ScanPath returns the location of a scan and fails with ErrConfig when it
// does not exist.
func (c *Config) ScanPath(scanNo int) (string, error) {
	name := c.Path(scan.Filename(c.Input.NexusFile, scanNo))
	if _, err := os.Stat(name); err != nil {
		return "", fmt.Errorf("%w: nexus filename does not exist: %s", ErrConfig, name)
	}
	return name, nil
}

// MaskPath returns the resolved user mask path, or "" when none is set.
func (c *Config) MaskPath() string {
	return c.Path(c.Input.MaskMatrix)
}

// PointRange returns the explicit point range, or nil.
func (c *Config) PointRange() *job.Range {
	if len(c.Input.PointRange) != 2 {
		return nil
	}
	return &job.Range{First: c.Input.PointRange[0], Last: c.Input.PointRange[1]}
}

// CentralPixel returns the direct-beam pixel.
func (c *Config) CentralPixel() detector.CentralPixel {
	return detector.CentralPixel{c.Input.CentralPixel[0], c.Input.CentralPixel[1]}
}

// SelectedProjection returns the configured projection.
func (c *Config) SelectedProjection() (projection.Projection, error) {
	return projection.ByName(c.Projection.Type)
}

// Store returns the scan store the nexusfile template points to.
func (c *Config) Store() scan.DirStore {
	return scan.DirStore{Template: c.Path(c.Input.NexusFile)}
}
