// Package job splits scans into point ranges of bounded weight so they can
// be processed by independent workers.
package job

import (
	"errors"
	"fmt"
	"iter"
)

// Job is a contiguous range of points of one scan. Weight approximates the
// processing cost and is only used for load balancing.
type Job struct {
	Scan       int
	FirstPoint int
	LastPoint  int // inclusive
	Weight     int
}

// Points returns the number of points in the job.
func (j Job) Points() int {
	return j.LastPoint - j.FirstPoint + 1
}

func (j Job) String() string {
	return fmt.Sprintf("scan %d [%d-%d]", j.Scan, j.FirstPoint, j.LastPoint)
}

// Split partitions count points starting at start into jobs of target
// points. A scan of at most 1.4·target points stays a single job so that no
// near-empty trailing job is produced; otherwise the last job holds the
// remainder (1 to target points).
func Split(scanNo, start, count, target int) ([]Job, error) {
	if target <= 0 {
		return nil, fmt.Errorf("target weight must be positive, got %d", target)
	}
	if count <= 0 {
		return nil, nil
	}

	// count <= 1.4·target, in integers
	if count*10 <= target*14 {
		return []Job{{Scan: scanNo, FirstPoint: start, LastPoint: start + count - 1, Weight: count}}, nil
	}

	jobs := make([]Job, 0, (count+target-1)/target)
	for offset := 0; offset < count; offset += target {
		n := min(target, count-offset)
		jobs = append(jobs, Job{
			Scan:       scanNo,
			FirstPoint: start + offset,
			LastPoint:  start + offset + n - 1,
			Weight:     n,
		})
	}
	return jobs, nil
}

// Range is an explicit inclusive point range.
type Range struct {
	First int
	Last  int
}

// Options controls job generation.
type Options struct {
	TargetWeight int
	Range        *Range // overrides the scan's point count when set
}

// Counter returns the number of points of a scan.
type Counter func(scanNo int) (int, error)

// Generate lazily produces the jobs of every scan, in scan order and then
// point order. The point count of a scan is only requested when its jobs are
// reached. Iteration stops at the first error.
func Generate(scans []int, count Counter, opts Options) iter.Seq2[Job, error] {
	return func(yield func(Job, error) bool) {
		if opts.Range != nil && opts.Range.Last < opts.Range.First {
			yield(Job{}, fmt.Errorf("invalid point range [%d, %d]", opts.Range.First, opts.Range.Last))
			return
		}
		for _, scanNo := range scans {
			start, n := 0, 0
			if opts.Range != nil {
				start = opts.Range.First
				n = opts.Range.Last - opts.Range.First + 1
			} else {
				var err error
				if n, err = count(scanNo); err != nil {
					yield(Job{}, fmt.Errorf("scan %d: %w", scanNo, err))
					return
				}
			}

			jobs, err := Split(scanNo, start, n, opts.TargetWeight)
			if err != nil {
				yield(Job{}, err)
				return
			}
			for _, j := range jobs {
				if !yield(j, nil) {
					return
				}
			}
		}
	}
}

// Collect drains a job sequence.
func Collect(seq iter.Seq2[Job, error]) ([]Job, error) {
	var jobs []Job
	for j, err := range seq {
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ErrNoScans is returned when a scan selection is empty.
var ErrNoScans = errors.New("no scans selected")
