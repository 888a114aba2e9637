package crop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/raster"
)

// Target is the content store crops are applied to. Mutate must serialize
// calls for the same id.
type Target interface {
	Mutate(ctx context.Context, id int64, fn func(content []byte) ([]byte, error)) error
}

// Error attributes a crop failure to one screenshot
type Error struct {
	ID  int64
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("crop screenshot %d: %v", e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result describes one successful crop
type Result struct {
	ID     int64           `json:"id"`
	Region image.Rectangle `json:"region"`
	Size   image.Point     `json:"size"`
}

// Failure describes one failed crop in a Report
type Failure struct {
	ID  int64  `json:"id"`
	Err string `json:"error"`
}

// Report collects the outcome of a multi-target crop
type Report struct {
	Results []Result  `json:"results"`
	Failed  []Failure `json:"failed,omitempty"`
	errs    []error
}

// Err joins every per-target failure, nil when all targets succeeded
func (r Report) Err() error {
	return errors.Join(r.errs...)
}

// Request is a crop made on the acting screenshot and replayed on Others
type Request struct {
	ID        int64   `json:"id"`
	Rect      Rect    `json:"rect"`
	Displayed Size    `json:"displayed"`
	Others    []int64 `json:"others,omitempty"`
}

// Engine applies crops through a raster pipeline
type Engine struct {
	target  Target
	raster  raster.Pipeline
	workers int
}

// NewEngine creates an engine replaying on at most workers targets at once
func NewEngine(target Target, pipeline raster.Pipeline, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{target: target, raster: pipeline, workers: workers}
}

// ApplyAbsolute crops id at a rectangle drawn on its displayed rendition.
// The rectangle is scaled by native/displayed per axis and clamped.
func (e *Engine) ApplyAbsolute(ctx context.Context, id int64, rect Rect, displayed Size) (Result, error) {
	p, err := ToPercent(rect, displayed)
	if err != nil {
		return Result{}, &Error{ID: id, Err: err}
	}
	return e.ApplyRelative(ctx, id, p)
}

// ApplyRelative crops id at fractions of its own native dimensions
func (e *Engine) ApplyRelative(ctx context.Context, id int64, p Percent) (Result, error) {
	var res Result
	err := e.target.Mutate(ctx, id, func(content []byte) ([]byte, error) {
		native, err := e.raster.Dimensions(content)
		if err != nil {
			return nil, err
		}

		region, err := p.Native(native)
		if err != nil {
			return nil, err
		}

		out, err := e.raster.Crop(content, region)
		if err != nil {
			return nil, err
		}

		res = Result{ID: id, Region: region, Size: region.Size()}
		return out, nil
	})
	if err != nil {
		return Result{}, &Error{ID: id, Err: err}
	}

	log.Debug().
		Int64("id", id).
		Str("region", res.Region.String()).
		Msg("screenshot cropped")
	return res, nil
}

// Apply crops the acting screenshot and replays the same relative region on
// every other target. Targets are independent: one failure never stops the
// rest. The returned error is only for a request that cannot run at all.
func (e *Engine) Apply(ctx context.Context, req Request) (Report, error) {
	p, err := ToPercent(req.Rect, req.Displayed)
	if err != nil {
		return Report{}, &Error{ID: req.ID, Err: err}
	}

	targets := make([]int64, 0, len(req.Others)+1)
	seen := map[int64]bool{req.ID: true}
	targets = append(targets, req.ID)
	for _, id := range req.Others {
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}

	type outcome struct {
		res Result
		err error
	}
	outcomes := make([]outcome, len(targets))

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, id := range targets {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = outcome{err: &Error{ID: id, Err: ctx.Err()}}
				return
			}
			defer func() { <-sem }()

			var o outcome
			if i == 0 {
				o.res, o.err = e.ApplyAbsolute(ctx, id, req.Rect, req.Displayed)
			} else {
				o.res, o.err = e.ApplyRelative(ctx, id, p)
			}
			outcomes[i] = o
		}(i, id)
	}
	wg.Wait()

	var report Report
	for i, o := range outcomes {
		if o.err != nil {
			report.Failed = append(report.Failed, Failure{ID: targets[i], Err: o.err.Error()})
			report.errs = append(report.errs, o.err)
			continue
		}
		report.Results = append(report.Results, o.res)
	}

	if len(report.Failed) > 0 {
		log.Warn().
			Int("targets", len(targets)).
			Int("failed", len(report.Failed)).
			Msg("crop replay finished with failures")
	}
	return report, nil
}
