// Package pipeline implements the staged, cancellable content-intelligence
// orchestrator: Acquire → checkpoint → Transcribe → checkpoint → Quality
// assess → content-type route → analysis fan-out → Persist → Notify
// (spec.md §4.1), grounded on the teacher framework's
// pkg/orchestration.PlanExecutor step-execution and
// pkg/orchestration.ResponseSynthesizer result-merge patterns, generalized
// from a dynamic routing plan to this fixed content-pipeline DAG.
package pipeline

import (
	"time"
)

// Depth selects which optional stages participate in a run (spec.md §4.1).
type Depth string

const (
	DepthStandard     Depth = "standard"
	DepthDeep         Depth = "deep"
	DepthExperimental Depth = "experimental"
)

// RequestBudget returns the overall per-run deadline for depth (spec.md §5).
func RequestBudget(depth Depth) time.Duration {
	switch depth {
	case DepthDeep:
		return 240 * time.Second
	case DepthExperimental:
		return 600 * time.Second
	default:
		return 120 * time.Second
	}
}

// Stage names used as keys into per-stage historical-mean tracking, the
// fan-out result map, and checkpoint matching.
const (
	StageAcquire             = "acquire"
	StagePostDownload        = "post_download"
	StageTranscribe          = "transcribe"
	StagePostTranscription   = "post_transcription"
	StageQuality             = "quality"
	StageContentTypeRoute    = "content_type_route"
	StageSentimentTopic      = "sentiment_topic_keyword"
	StageFallacyDetection    = "fallacy_detection"
	StageClaimExtraction     = "claim_extraction"
	StageFactCheck           = "fact_check"
	StagePerspectiveSynth    = "perspective_synthesis"
	StagePersist             = "persist"
	StageNotify              = "notify"
)

// CheckpointPredicate is evaluated against a flat field set (acquisition
// metadata, transcript stats) to decide whether a checkpoint fires.
type CheckpointPredicate struct {
	Field string      `yaml:"field"`
	Op    string      `yaml:"op"` // "gt" | "lt" | "ge" | "le" | "eq" | "ne"
	Value interface{} `yaml:"value"`
}

// Checkpoint is one early-exit rule consulted after download (Stage 2) or
// after transcription (Stage 4). Depth == "" matches every depth.
type Checkpoint struct {
	Stage  string              `yaml:"stage"`
	Depth  Depth               `yaml:"depth"`
	When   CheckpointPredicate `yaml:"when"`
	Action string              `yaml:"action"` // "skip" | "fail"
}

// CheckpointDocument is the on-disk shape for a YAML checkpoint table.
type CheckpointDocument struct {
	Checkpoints []Checkpoint `yaml:"checkpoints"`
}

// DefaultCheckpoints is the built-in table used when no YAML file is
// supplied: long-form standard-depth runs skip straight to lightweight
// finalize rather than paying for transcription + analysis on a
// multi-hour recording.
func DefaultCheckpoints() []Checkpoint {
	return []Checkpoint{
		{
			Stage:  StagePostDownload,
			Depth:  DepthStandard,
			When:   CheckpointPredicate{Field: "duration_s", Op: "gt", Value: float64(7200)},
			Action: "skip",
		},
	}
}

// Result is the terminal shape produced by Run, covering both the full
// analysis path and the lightweight finalize path (spec.md §4.1).
type Result struct {
	ProcessingType     string                 `json:"processing_type"` // "full" | "lightweight"
	QualityScore       float64                `json:"quality_score,omitempty"`
	BypassReason       string                 `json:"bypass_reason,omitempty"`
	Summary            string                 `json:"summary,omitempty"`
	MemoryStored       bool                   `json:"memory_stored"`
	TimeSavedEstimateS float64                `json:"time_saved_estimate,omitempty"`
	AnalysisResults    map[string]interface{} `json:"analysis_results,omitempty"`
	Platform           string                 `json:"platform,omitempty"`
	Title              string                 `json:"title,omitempty"`
}
