package enhance

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/ragaeeb/beltane-pipeline/internal/executil"
)

// Paths is the resolved set of binaries/scripts the preflight checks.
type Paths struct {
	PythonBin     string
	DeepFilterBin string
	AnalyzeScript string
	ProcessScript string
	AnalyzeOnly   bool
}

var preflightCache struct {
	mu     sync.Mutex
	paths  Paths
	ok     bool
	cached bool
}

// ResetPreflightCache clears the memoized preflight result. Tests call
// this to exercise both cached and uncached paths.
func ResetPreflightCache() {
	preflightCache.mu.Lock()
	defer preflightCache.mu.Unlock()
	preflightCache.cached = false
	preflightCache.ok = false
}

// CheckEnhancementAvailable verifies the Python runtime, the two
// helper scripts, a health-check import, and — unless analyze-only —
// the deep-filter binary. The result is memoized by the resolved path
// tuple; any change bypasses the cache.
func CheckEnhancementAvailable(ctx context.Context, p Paths) bool {
	preflightCache.mu.Lock()
	if preflightCache.cached && preflightCache.paths == p {
		ok := preflightCache.ok
		preflightCache.mu.Unlock()
		return ok
	}
	preflightCache.mu.Unlock()

	ok := runPreflight(ctx, p)

	preflightCache.mu.Lock()
	preflightCache.paths = p
	preflightCache.ok = ok
	preflightCache.cached = true
	preflightCache.mu.Unlock()

	return ok
}

func runPreflight(ctx context.Context, p Paths) bool {
	if _, err := exec.LookPath(p.PythonBin); err != nil {
		return false
	}
	for _, script := range []string{p.AnalyzeScript, p.ProcessScript} {
		if script == "" {
			return false
		}
		if _, err := os.Stat(script); err != nil {
			return false
		}
	}

	healthCheck, err := executil.Run(ctx, executil.Spec{
		Name: p.PythonBin,
		Args: []string{"-c", "import numpy, scipy, soundfile"},
	})
	if err != nil || healthCheck.ExitCode != 0 {
		return false
	}

	if p.AnalyzeOnly {
		return true
	}

	versionCheck, err := executil.Run(ctx, executil.Spec{
		Name: p.DeepFilterBin,
		Args: []string{"--version"},
	})
	return err == nil && versionCheck.ExitCode == 0
}
