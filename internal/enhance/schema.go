// Package enhance implements the enhancement orchestrator: an
// optional noise-reduction/dereverb pass between transcoding and
// transcription, driven by two external Python CLIs.
package enhance

import (
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

// Span is a millisecond-bounded span, used for silence/speech spans
// and noise references.
type Span struct {
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}

// Recommended is the analyzer's per-regime recommendation, mutated in
// place by the source-class override step before processing.
type Recommended struct {
	Dereverb   bool    `json:"dereverb"`
	Denoise    bool    `json:"denoise"`
	AttenLimDb float64 `json:"atten_lim_db"`
}

// Regime is one analyzed acoustic segment of the input audio.
type Regime struct {
	Index              int         `json:"index"`
	StartMS            int64       `json:"start_ms"`
	EndMS              int64       `json:"end_ms"`
	NoiseRMSDb         *float64    `json:"noise_rms_db"`
	SpectralCentroidHz *float64    `json:"spectral_centroid_hz"`
	NoiseReference     *Span       `json:"noise_reference"`
	Recommended        Recommended `json:"recommended"`
}

// Analysis is the full analyze_audio output document.
type Analysis struct {
	Version            string            `json:"version"`
	InputPath          string            `json:"input_path"`
	DurationMS         int64             `json:"duration_ms"`
	SampleRate         int               `json:"sample_rate"`
	SNRDb              *float64          `json:"snr_db"`
	SpeechRatio        float64           `json:"speech_ratio"`
	RegimeCount        int               `json:"regime_count"`
	Regimes            []Regime          `json:"regimes"`
	SilenceSpans       []Span            `json:"silence_spans"`
	SpeechSpans        []Span            `json:"speech_spans"`
	AnalysisDurationMS int64             `json:"analysis_duration_ms"`
	Versions           map[string]string `json:"versions"`
}

// ProcessedSegment is one regime's outcome from process_audio.
type ProcessedSegment struct {
	SegmentIndex    int     `json:"segment_index"`
	StartMS         int64   `json:"start_ms"`
	EndMS           int64   `json:"end_ms"`
	DereverbApplied bool    `json:"dereverb_applied"`
	DenoiseApplied  bool    `json:"denoise_applied"`
	AttenLimDb      float64 `json:"atten_lim_db"`
	ProcessingMS    int64   `json:"processing_ms"`
}

// ProcessingResult is the full process_audio output document.
type ProcessingResult struct {
	Version      string             `json:"version"`
	InputPath    string             `json:"input_path"`
	OutputPath   string             `json:"output_path"`
	DurationMS   int64              `json:"duration_ms"`
	ProcessingMS int64              `json:"processing_ms"`
	Segments     []ProcessedSegment `json:"segments"`
	Versions     map[string]string  `json:"versions"`
}

// Result is what the orchestrator returns to the pipeline engine.
type Result struct {
	WavPath    string
	Applied    bool
	Mode       model.EnhancementMode
	SkipReason string
	Analysis   *Analysis
	Processing *ProcessingResult
	Artifacts  []model.Artifact
	StartedAt  time.Time
	FinishedAt time.Time
}
