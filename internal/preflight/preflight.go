package preflight

import (
	"context"

	"fission/internal/config"
	"fission/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDirectoryAccess("Asset storage", cfg.Storage.Dir),
	}
	if cfg.Ingest.MinFreeSpaceMB > 0 {
		results = append(results, CheckFreeSpace("Work space", cfg.Paths.DataDir, int64(cfg.Ingest.MinFreeSpaceMB)))
	}
	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, "LLM", llm.ConfigFrom(cfg)))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
