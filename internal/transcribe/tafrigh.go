package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
)

// TafrighOptions configures one cloud transcription request.
type TafrighOptions struct {
	APIKeys  []string
	WavPath  string
	Language string
	Endpoint string // override for tests; defaults to the public API
}

const defaultTafrighEndpoint = "https://api.wit.ai/speech"

type tafrighWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type tafrighSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []tafrighWord `json:"words"`
}

type tafrighResponse struct {
	Language string           `json:"language"`
	Segments []tafrighSegment `json:"segments"`
}

// RunTafrigh submits wavPath to the cloud provider and returns the
// normalized transcription. Requires a non-empty API key list.
func RunTafrigh(ctx context.Context, opts TafrighOptions) (Output, error) {
	if len(opts.APIKeys) == 0 {
		return Output{}, apperr.New(apperr.BadInput, "tafrigh requires at least one API key")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultTafrighEndpoint
	}

	file, err := os.Open(opts.WavPath)
	if err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "open audio file", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, file)
	if err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "build tafrigh request", err)
	}
	req.Header.Set("Authorization", "Bearer "+opts.APIKeys[0])
	req.Header.Set("Content-Type", "audio/wav")

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "call tafrigh API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Output{}, apperr.New(apperr.TranscriptionFailed, fmt.Sprintf("tafrigh API returned status %d", resp.StatusCode))
	}

	var doc tafrighResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "parse tafrigh response", err)
	}

	return normalizeTafrigh(doc), nil
}

func normalizeTafrigh(doc tafrighResponse) Output {
	var segs []Segment
	var words []Word

	for _, s := range doc.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		startMS, endMS := msOf(s.Start), msOf(s.End)
		segs = append(segs, Segment{StartMS: startMS, EndMS: endMS, Text: text})

		if len(s.Words) > 0 {
			for _, w := range s.Words {
				wText := strings.TrimSpace(w.Text)
				if wText == "" {
					continue
				}
				words = append(words, Word{StartMS: msOf(w.Start), EndMS: msOf(w.End), Text: wText})
			}
		} else {
			words = append(words, Word{StartMS: startMS, EndMS: endMS, Text: text})
		}
	}

	return Output{
		Language: doc.Language,
		Segments: normalizeSegments(segs),
		Words:    normalizeWords(words),
	}
}
