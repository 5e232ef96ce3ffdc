package preflight

import (
	"context"

	"shapelearner/internal/config"
	"shapelearner/internal/extractor"
)

// minFreeBytes is the free space render output needs for a high-level
// capture of a handful of meshes.
const minFreeBytes = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is anything with a reachability probe, such as the job, feature,
// and model stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Targets names the live dependencies to probe. Nil fields are skipped.
type Targets struct {
	Jobs      Pinger
	Features  Pinger
	Models    Pinger
	Extractor extractor.Extractor
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, targets Targets) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir))
	results = append(results, CheckFreeSpace("Output directory", cfg.Paths.OutputDir, minFreeBytes))

	if targets.Jobs != nil {
		results = append(results, CheckPing(ctx, "Job store", targets.Jobs))
	}
	if targets.Features != nil {
		results = append(results, CheckPing(ctx, "Feature store ("+cfg.Store.Driver+")", targets.Features))
	}
	if targets.Models != nil {
		results = append(results, CheckPing(ctx, "Model store ("+cfg.ModelStore.Backend+")", targets.Models))
	}
	if cfg.Extractor.Mode != "" {
		results = append(results, CheckExtractor(ctx, cfg.Extractor.Mode, targets.Extractor))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
