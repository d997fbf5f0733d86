package preflight

import (
	"context"

	"carousel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Passed reports whether every result in the set passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Inbound directory", cfg.Paths.InboundDir),
		CheckDirectoryAccess("Downloads directory", cfg.Paths.DownloadsDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDiskSpace("Inbound disk space", cfg.Paths.InboundDir),
	}

	if cfg.Paths.OutboundDir != "" {
		results = append(results, CheckDirectoryAccess("Outbound directory", cfg.Paths.OutboundDir))
	}

	results = append(results, CheckAutomationService(ctx, cfg.Automation.BaseURL))
	return results
}
