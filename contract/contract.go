// Package contract defines the collaborator interfaces the pipeline core
// consumes and never implements itself (transcription engines, analysis
// tools, vector/graph memory, LLM providers, embedders, notification
// channels). Grounded on the teacher's pkg/ai.AIClient and pkg/memory's
// interface-first boundary between core and swappable backends.
package contract

import (
	"context"
	"time"

	"github.com/normanking/contentpipe/perr"
)

// Acquisition is the output of resolving a URL to downloaded media.
type Acquisition struct {
	Platform  string
	LocalPath string
	Title     string
	Uploader  string
	DurationS float64
	Metadata  map[string]interface{}
}

// Acquirer resolves a URL to a supported platform and downloads its media.
// Like Transcriber, this is a swappable per-platform collaborator the core
// never implements itself.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (*Acquisition, error)
}

// Transcript is the output of a Transcriber call.
type Transcript struct {
	Text       string
	Language   string
	DurationS  float64
	Segments   []TranscriptSegment
	SourceURL  string
}

// TranscriptSegment is one timed span of a transcript.
type TranscriptSegment struct {
	StartS float64
	EndS   float64
	Text   string
}

// Transcriber converts acquired media at mediaPath into a Transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string, language string) (*Transcript, error)
}

// Status is the terminal disposition of a StepResult (spec.md §7).
type Status string

const (
	StatusOK        Status = "ok"
	StatusSkip      Status = "skip"
	StatusFail      Status = "fail"
	StatusUncertain Status = "uncertain"
)

// StepError is the structured error every failed/uncertain StepResult
// carries, classified under the closed perr.Category taxonomy and enriched
// with the context §7 requires for terminal surfacing: stage, tenant,
// workspace, request_id, and (for network errors) host.
type StepError struct {
	Category  perr.Category
	Message   string
	Retryable bool
	Context   map[string]string
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// NewStepError builds a StepError from a classified err, defaulting
// Retryable from perr's taxonomy and seeding Context with the fields §7
// mandates on every terminal result.
func NewStepError(category perr.Category, err error, stepCtx map[string]string) *StepError {
	se := &StepError{
		Category:  category,
		Retryable: perr.DefaultRetryable(category),
		Context:   stepCtx,
	}
	if err != nil {
		se.Message = err.Error()
	}
	return se
}

// StepResult is the uniform envelope every pipeline step and analysis tool
// returns.
type StepResult struct {
	Step      string
	Status    Status
	Output    map[string]interface{}
	Error     *StepError
	LatencyMS int64
	Metadata  map[string]interface{}
}

// OK reports whether the step completed successfully (status "ok"). Callers
// that only care about success/failure, not the full status taxonomy, use
// this instead of comparing Status directly.
func (r StepResult) OK() bool {
	return r.Status == StatusOK
}

// SharedContext is the read-mostly state an AnalysisTool sees: the
// transcript, run metadata, and whatever upstream analysis steps have
// already produced.
type SharedContext struct {
	Transcript       *Transcript
	Metadata         map[string]interface{}
	UpstreamResults  map[string]StepResult
}

// AnalysisTool runs one named analysis stage (semantic analysis, claim
// extraction, fact-checking, perspective synthesis, ...) over shared
// context.
type AnalysisTool interface {
	Name() string
	Run(ctx context.Context, input map[string]interface{}, shared SharedContext) (StepResult, error)
}

// VectorRecord is one upserted vector memory record.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]interface{}
}

// VectorQueryResult is the ranked output of a VectorMemory query.
type VectorQueryResult struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// VectorMemory persists and retrieves embedded records, namespaced per
// tenant/workspace/collection.
type VectorMemory interface {
	Upsert(ctx context.Context, namespace string, records []VectorRecord) error
	Query(ctx context.Context, namespace string, query []float32, k int) ([]VectorQueryResult, error)
}

// GraphNode and GraphEdge are the minimal primitives GraphMemory persists.
type GraphNode struct {
	ID         string
	Labels     []string
	Properties map[string]interface{}
}

type GraphEdge struct {
	FromID     string
	ToID       string
	Type       string
	Properties map[string]interface{}
}

// GraphQueryKind selects which query shape GraphMemory.Query runs.
type GraphQueryKind string

const (
	GraphQueryTimeline GraphQueryKind = "timeline"
	GraphQuerySubgraph GraphQueryKind = "subgraph"
)

// GraphMemory persists entities/relationships extracted from analysis and
// answers timeline/subgraph queries over them.
type GraphMemory interface {
	AddNode(ctx context.Context, namespace string, node GraphNode) error
	AddEdge(ctx context.Context, namespace string, edge GraphEdge) error
	Query(ctx context.Context, namespace string, kind GraphQueryKind, params map[string]interface{}) ([]map[string]interface{}, error)
}

// CompletionRequest is the uniform request shape every ProviderAdapter
// accepts, regardless of the underlying LLM vendor.
type CompletionRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	Stop        []string
	Tools       []map[string]interface{}
}

// TokenUsage mirrors the teacher's pkg/ai.TokenUsage shape.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is the uniform response every ProviderAdapter returns.
type CompletionResponse struct {
	Text         string
	Usage        TokenUsage
	FinishReason string
	LatencyMS    int64
}

// ProviderAdapter wraps a single provider/model arm behind a uniform
// Complete call; the router selects among a registry of these.
type ProviderAdapter interface {
	Name() string
	ModelID() string
	Capabilities() []string
	CostPer1kIn() float64
	CostPer1kOut() float64
	ContextWindow() int
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Embedder produces a fixed-dimension embedding for text, deterministic
// given the same input and model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Notifier delivers a payload to an external channel (Slack, Discord,
// webhook, ...).
type Notifier interface {
	Send(ctx context.Context, channel string, payload map[string]interface{}) error
}

// Deadline defaults (spec.md §5): per standard/deep/experimental run depth,
// plus per-call-kind ceilings subordinate to the overall run deadline.
const (
	RequestDeadlineStandard     = 120 * time.Second
	RequestDeadlineDeep         = 240 * time.Second
	RequestDeadlineExperimental = 600 * time.Second
	HTTPCallDeadline            = 30 * time.Second
	LLMCallDeadline             = 60 * time.Second
	TranscriptionDeadline       = 300 * time.Second
)
