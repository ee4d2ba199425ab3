package pipeline

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/downloader"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
)

const (
	maxWalkDepth = 10
	maxWalkFiles = 10000
)

// Item is one expanded unit of work for the pipeline engine.
type Item struct {
	IsURL bool
	Value string // absolute local path, or a URL
}

// ExpandPaths walks each path in paths: files are taken as-is;
// directories are walked up to maxWalkDepth and maxWalkFiles, skipping
// symlinks. Non-existent paths and overflow are logged and skipped,
// never fatal.
func ExpandPaths(paths []string) []Item {
	logger := log.WithComponent("pipeline")
	var items []Item
	fileCount := 0

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			logger.Warn().Str(log.FieldPath, p).Msg("cannot resolve absolute path, skipping")
			continue
		}
		info, err := os.Lstat(abs)
		if err != nil {
			logger.Warn().Str(log.FieldPath, p).Msg("input path does not exist, skipping")
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			logger.Warn().Str(log.FieldPath, p).Msg("skipping symlink")
			continue
		}
		if !info.IsDir() {
			items = append(items, Item{Value: abs})
			fileCount++
			continue
		}

		walked, overflowed := walkDir(abs, maxWalkDepth, maxWalkFiles-fileCount)
		items = append(items, walked...)
		fileCount += len(walked)
		if overflowed {
			logger.Warn().Str(log.FieldPath, abs).Msg("directory walk hit file/depth cap, remaining entries skipped")
		}
	}
	return items
}

func walkDir(root string, maxDepth, remaining int) ([]Item, bool) {
	var out []Item
	overflowed := false

	var visit func(dir string, depth int)
	visit = func(dir string, depth int) {
		if len(out) >= remaining {
			overflowed = true
			return
		}
		// A too-deep subtree is skipped and flagged, but siblings at
		// shallower depths keep walking.
		if depth > maxDepth {
			overflowed = true
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if len(out) >= remaining {
				overflowed = true
				return
			}
			full := filepath.Join(dir, e.Name())
			info, err := e.Info()
			if err != nil || info.Mode()&os.ModeSymlink != 0 {
				continue
			}
			if e.IsDir() {
				visit(full, depth+1)
				continue
			}
			out = append(out, Item{Value: full})
		}
	}
	visit(root, 1)
	return out, overflowed
}

// ExpandURLs reads seed URLs from urlsFile (one per line, trimmed,
// dropping empty and #-prefixed lines) and repeated --url flags, then
// expands each seed via the downloader's playlist expansion,
// deduplicating across all seeds while preserving insertion order.
func ExpandURLs(ctx context.Context, dl *downloader.Adapter, urlsFile string, repeated []string) ([]Item, error) {
	seeds := append([]string{}, repeated...)

	if urlsFile != "" {
		f, err := os.Open(urlsFile)
		if err != nil {
			return nil, apperr.Wrap(apperr.BadInput, "open urls file", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			seeds = append(seeds, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, apperr.Wrap(apperr.BadInput, "read urls file", err)
		}
	}

	seen := make(map[string]bool)
	var items []Item
	for _, seed := range seeds {
		expanded, err := dl.ExpandPlaylist(ctx, seed)
		if err != nil {
			return nil, err
		}
		for _, u := range expanded {
			if seen[u] {
				continue
			}
			seen[u] = true
			items = append(items, Item{IsURL: true, Value: u})
		}
	}
	return items, nil
}
