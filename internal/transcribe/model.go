package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
)

// EnsureModel makes sure the configured model file is present before a
// run starts. Catalog names ("turbo", "large-v3") are resolved by the
// engine itself and need no preparation; only a filesystem ModelPath
// combined with autoDownloadModel and a download URL triggers a fetch.
func EnsureModel(ctx context.Context, modelPath, downloadURL string, autoDownload bool) error {
	if !autoDownload || downloadURL == "" {
		return nil
	}
	if modelPath == "" || !strings.ContainsAny(modelPath, "/\\") {
		return nil
	}
	if _, err := os.Stat(modelPath); err == nil {
		return nil
	}

	logger := log.WithComponent("transcribe")
	logger.Info().Str(log.FieldModel, modelPath).Str("url", downloadURL).Msg("downloading model")

	if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
		return apperr.Wrap(apperr.TranscriptionFailed, "create model directory", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return apperr.Wrap(apperr.TranscriptionFailed, "build model download request", err)
	}
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.TranscriptionFailed, "download model", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.TranscriptionFailed, fmt.Sprintf("model download returned status %d", resp.StatusCode))
	}

	// Write to a temp file beside the target so a partial download is
	// never mistaken for a complete model.
	tmp, err := os.CreateTemp(filepath.Dir(modelPath), filepath.Base(modelPath)+".partial-*")
	if err != nil {
		return apperr.Wrap(apperr.TranscriptionFailed, "create temp model file", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return apperr.Wrap(apperr.TranscriptionFailed, "write model file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return apperr.Wrap(apperr.TranscriptionFailed, "close model file", err)
	}
	if err := os.Rename(tmpPath, modelPath); err != nil {
		_ = os.Remove(tmpPath)
		return apperr.Wrap(apperr.TranscriptionFailed, "finalize model file", err)
	}
	return nil
}
