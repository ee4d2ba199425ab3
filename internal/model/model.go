// Package model defines the persisted entities and their shared enums.
package model

import "time"

// SourceKind distinguishes a Video's origin.
type SourceKind string

const (
	SourceURL  SourceKind = "url"
	SourceFile SourceKind = "file"
)

// VideoStatus is the lifecycle state of a Video row.
type VideoStatus string

const (
	StatusNew        VideoStatus = "new"
	StatusProcessing VideoStatus = "processing"
	StatusDone       VideoStatus = "done"
	StatusError      VideoStatus = "error"
	StatusFailed     VideoStatus = "failed"
)

// Retryable reports whether a video in this status may re-enter the
// pipeline through the retry entry point.
func (s VideoStatus) Retryable() bool {
	return s == StatusError || s == StatusFailed || s == StatusProcessing
}

// EnhancementMode selects the enhancement orchestrator's behavior.
type EnhancementMode string

const (
	EnhanceOff         EnhancementMode = "off"
	EnhanceAuto        EnhancementMode = "auto"
	EnhanceOn          EnhancementMode = "on"
	EnhanceAnalyzeOnly EnhancementMode = "analyze-only"
)

// SourceClass is the acoustic source classification used by the
// enhancement orchestrator's override rules.
type SourceClass string

const (
	SourceClassAuto     SourceClass = "auto"
	SourceClassStudio   SourceClass = "studio"
	SourceClassPodium   SourceClass = "podium"
	SourceClassFarField SourceClass = "far-field"
	SourceClassCassette SourceClass = "cassette"
)

// DereverbMode controls the dereverb recommendation override.
type DereverbMode string

const (
	DereverbOff  DereverbMode = "off"
	DereverbAuto DereverbMode = "auto"
	DereverbOn   DereverbMode = "on"
)

// FailPolicy controls error propagation for enhancement failures.
type FailPolicy string

const (
	FailPolicyFallbackRaw FailPolicy = "fallback_raw"
	FailPolicyFail        FailPolicy = "fail"
)

// Engine selects the transcription adapter implementation.
type Engine string

const (
	EngineWhisperX Engine = "whisperx"
	EngineTafrigh  Engine = "tafrigh"
)

// EnhancementRunStatus is the terminal state of one EnhancementRun.
type EnhancementRunStatus string

const (
	EnhancementCompleted EnhancementRunStatus = "completed"
	EnhancementSkipped   EnhancementRunStatus = "skipped"
	EnhancementError     EnhancementRunStatus = "error"
)

// ArtifactKind enumerates the known kinds of auxiliary files recorded
// per Video.
type ArtifactKind string

const (
	ArtifactAudioWav            ArtifactKind = "audio_wav"
	ArtifactAudioWavEnhanced    ArtifactKind = "audio_wav_enhanced"
	ArtifactSourceAudio         ArtifactKind = "source_audio"
	ArtifactSourceInfoJSON      ArtifactKind = "source_info_json"
	ArtifactTranscriptTxt       ArtifactKind = "transcript_txt"
	ArtifactTranscriptJSON      ArtifactKind = "transcript_json"
	ArtifactEnhancementAnalysis ArtifactKind = "enhancement_analysis_json"
	ArtifactEnhancementPlan     ArtifactKind = "enhancement_plan_json"
	ArtifactEnhancementResult   ArtifactKind = "enhancement_result_json"
)

// Video is one logical source: a local file or a remote URL.
type Video struct {
	ID             string
	SourceKind     SourceKind
	SourceURI      string
	Title          string
	Description    string
	UploaderID     string
	ChannelID      string
	DurationMS     int64
	UploadedAt     *time.Time
	RawMetadata    string // JSON blob
	LocalPath      string
	Language       string
	Engine         Engine
	EngineVersion  string
	ModelPath      string
	OutputFormats  []string // e.g. {"json","txt"}
	EnhancementCfg string   // JSON blob of the enhancement config used
	Status         VideoStatus
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transcript is exactly one per Video when present.
type Transcript struct {
	VideoID     string
	Model       string
	Language    string
	Text        string
	CompactJSON string // word-timeline JSON stored alongside the full text
	CreatedAt   time.Time
}

// Segment is a timestamped span of transcript text.
type Segment struct {
	VideoID      string
	StartMS      int64
	EndMS        int64
	Text         string
	AvgLogProb   *float64
	NoSpeechProb *float64
}

// Chapter is a provider-declared chapter marker.
type Chapter struct {
	VideoID string
	StartMS int64
	EndMS   *int64
	Title   string
}

// Artifact is an auxiliary file recorded by kind and URI.
type Artifact struct {
	VideoID   string
	Kind      ArtifactKind
	URI       string
	SizeBytes int64
	CreatedAt time.Time
}

// EnhancementRun is zero or one per pipeline execution of a video.
type EnhancementRun struct {
	ID           int64
	VideoID      string
	Status       EnhancementRunStatus
	Applied      bool
	Mode         EnhancementMode
	SourceClass  SourceClass
	SNRDb        *float64
	RegimeCount  int
	AnalysisMS   int64
	ProcessMS    int64
	MetricsJSON  string
	VersionsJSON string
	ConfigJSON   string
	StartedAt    time.Time
	FinishedAt   time.Time
	SkipReason   string
	Error        string
}

// EnhancementSegment is one processed regime belonging to an
// EnhancementRun.
type EnhancementSegment struct {
	RunID              int64
	Index              int
	StartMS            int64
	EndMS              int64
	NoiseRMSDb         *float64
	SpectralCentroidHz *float64
	SpeechRatio        *float64 // reserved: the analyzer has no per-regime ratio yet
	DereverbApplied    bool
	DenoiseApplied     bool
	AttenLimDb         float64
	ProcessingMS       int64
}

// Word is a single timestamped token within a segment.
type Word struct {
	StartMS int64
	EndMS   int64
	Text    string
}

// CompactWord is the on-disk encoding of a Word.
type CompactWord struct {
	B int64  `json:"b"`
	E int64  `json:"e"`
	W string `json:"w"`
}

// CompactTranscript is the minimal word-timeline transcript document.
type CompactTranscript struct {
	Language string        `json:"language"`
	Words    []CompactWord `json:"words"`
}
