// Package downloader wraps yt-dlp and ffprobe to resolve source ids,
// expand playlists, and pull media with a fallback ladder.
package downloader

import (
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/executil"
)

// Adapter drives yt-dlp/ffprobe for one configured set of binaries.
type Adapter struct {
	YtDlpBin   string
	FFprobeBin string

	// pace softly limits successive Download calls (e.g. across a
	// playlist batch) so a burst of items doesn't hammer the source
	// host. One token every 2s, burst 1: the first call proceeds
	// immediately, subsequent calls within the window wait.
	pace *rate.Limiter
}

func New(ytDlpBin, ffprobeBin string) *Adapter {
	return &Adapter{
		YtDlpBin:   ytDlpBin,
		FFprobeBin: ffprobeBin,
		pace:       rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

var httpURLPattern = regexp.MustCompile(`^https?://`)

// ResolveID extracts the provider id for url. Fails with BadInput on
// empty output or non-zero exit.
func (a *Adapter) ResolveID(ctx context.Context, url string) (string, error) {
	res, err := executil.Run(ctx, executil.Spec{
		Name: a.YtDlpBin,
		Args: []string{"--no-playlist", "--skip-download", "--print", "%(id)s", url},
	})
	if err != nil {
		return "", apperr.Wrap(apperr.BadInput, "resolve source id", err)
	}
	if res.ExitCode != 0 {
		return "", apperr.New(apperr.BadInput, "yt-dlp id resolution failed")
	}

	id := lastNonEmptyLine(res.Stdout)
	if id == "" {
		return "", apperr.New(apperr.BadInput, "yt-dlp returned no id")
	}
	return id, nil
}

// ExpandPlaylist resolves url to the flat list of member video URLs. A
// non-playlist URL (or one whose expansion yields no http(s) lines)
// expands to itself.
func (a *Adapter) ExpandPlaylist(ctx context.Context, url string) ([]string, error) {
	res, err := executil.Run(ctx, executil.Spec{
		Name: a.YtDlpBin,
		Args: []string{"--yes-playlist", "--flat-playlist", "--print", "%(webpage_url)s", url},
	})
	if err != nil || res.ExitCode != 0 {
		return []string{url}, nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !httpURLPattern.MatchString(line) {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	if len(out) == 0 {
		return []string{url}, nil
	}
	return out, nil
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line
		}
	}
	return ""
}
