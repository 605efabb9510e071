package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/normanking/contentpipe/config"
	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/perr"
	"github.com/normanking/contentpipe/quality"
	"github.com/normanking/contentpipe/telemetry"
	"github.com/normanking/contentpipe/tenancy"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are the collaborators the orchestrator consumes but never
// implements (spec.md §6).
type Dependencies struct {
	Acquirer     contract.Acquirer
	Transcriber  contract.Transcriber
	Tools        map[string]contract.AnalysisTool
	VectorMemory contract.VectorMemory
	GraphMemory  contract.GraphMemory
	Notifier     contract.Notifier
	Embedder     contract.Embedder
}

// Pipeline executes the staged DAG for one URL under a TenantContext with
// an overall deadline and a cancellation token (spec.md §4.1).
type Pipeline struct {
	deps        Dependencies
	checkpoints []Checkpoint
	quality     quality.Thresholds
	enableQuality bool
	maxParallel int
	strictTenancy bool
	logger      logging.Logger
	telemetry   *telemetry.Provider

	meansMu sync.Mutex
	means   map[string]time.Duration
}

// New builds a Pipeline from typed config, wired collaborators, and the
// shared logging/telemetry stack.
func New(cfg *config.Config, deps Dependencies, checkpoints []Checkpoint, logger logging.Logger, tel *telemetry.Provider) *Pipeline {
	if checkpoints == nil {
		checkpoints = DefaultCheckpoints()
	}
	maxParallel := cfg.Pipeline.MaxParallelAnalysis
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Pipeline{
		deps:        deps,
		checkpoints: checkpoints,
		quality: quality.Thresholds{
			MinWordCount:     cfg.Quality.MinWordCount,
			MinSentenceCount: cfg.Quality.MinSentenceCount,
			MinCoherence:     cfg.Quality.MinCoherence,
			MinOverall:       cfg.Quality.MinOverall,
		},
		enableQuality: cfg.Quality.EnableFiltering,
		maxParallel:   maxParallel,
		strictTenancy: cfg.Tenancy.EnableStrict,
		logger:        logger,
		telemetry:     tel,
		means:         make(map[string]time.Duration),
	}
}

// Run executes the full DAG for url at the given depth and returns the
// terminal StepResult (spec.md §4.1 Operations).
func (p *Pipeline) Run(ctx context.Context, url string, depth Depth) (contract.StepResult, error) {
	tc, ok, fellBack := tenancy.CurrentTenant(ctx, p.strictTenancy)
	if !ok {
		err := perr.New("pipeline.Run", perr.CategoryTenancy, perr.ErrTenantMissing)
		return p.fail("tenancy", err, tc), err
	}
	if fellBack {
		p.logger.Warn("pipeline: tenant context missing, using fallback", map[string]interface{}{"url": url})
		if p.telemetry != nil {
			p.telemetry.TenancyFallback.Add(ctx, 1)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, RequestBudget(depth))
	defer cancel()

	var span trace.Span
	if p.telemetry != nil {
		ctx, span = p.telemetry.StartSpan(ctx, "pipeline.Run", tc.TenantID, tc.WorkspaceID)
		defer span.End()
	}

	// Stages still to run, used to weight per-stage deadline division
	// (spec.md §5: "divided among unfinished stages, weighted by historical
	// mean"). Only the suspending I/O stages (Acquire, Transcribe) need an
	// individually bounded deadline; the fan-out shares the run's overall
	// deadline directly (spec.md §4.1 Stage 7).
	unfinished := []string{StageAcquire, StageTranscribe}

	if res, done := p.checkCancelled(ctx, StageAcquire, tc); done {
		return res, ctx.Err()
	}

	// Stage 1: Acquire.
	acqCtx, acqCancel := context.WithDeadline(ctx, p.stageDeadline(ctx, StageAcquire, unfinished))
	started := time.Now()
	acq, err := p.deps.Acquirer.Acquire(acqCtx, url)
	acqCancel()
	p.recordStageDuration(StageAcquire, time.Since(started))
	if err != nil {
		return p.fail(StageAcquire, err, tc), err
	}
	unfinished = unfinished[1:]

	if res, done := p.checkCancelled(ctx, StagePostDownload, tc); done {
		return res, ctx.Err()
	}

	// Checkpoint A: post-download.
	if cp := matchCheckpoint(p.checkpoints, StagePostDownload, depth, acquisitionFields(acq)); cp != nil {
		if cp.Action == "fail" {
			err := fmt.Errorf("checkpoint %s blocked run: %+v", cp.Stage, cp.When)
			return p.fail("checkpoint_post_download", err, tc), err
		}
		return p.lightweight(ctx, acq, nil, nil, "checkpoint:"+cp.Stage), nil
	}

	if res, done := p.checkCancelled(ctx, StageTranscribe, tc); done {
		return res, ctx.Err()
	}

	// Stage 3: Transcribe.
	txCtx, txCancel := context.WithDeadline(ctx, p.stageDeadline(ctx, StageTranscribe, unfinished))
	started = time.Now()
	transcript, err := p.deps.Transcriber.Transcribe(txCtx, acq.LocalPath, "")
	txCancel()
	p.recordStageDuration(StageTranscribe, time.Since(started))
	if err != nil {
		return p.fail(StageTranscribe, err, tc), err
	}

	// Checkpoint B: empty/degenerate transcript.
	if transcript == nil || strings.TrimSpace(transcript.Text) == "" {
		return p.lightweight(ctx, acq, transcript, nil, "empty_transcript"), nil
	}
	txFields := acquisitionFields(acq)
	txFields["word_count"] = len(strings.Fields(transcript.Text))
	if cp := matchCheckpoint(p.checkpoints, StagePostTranscription, depth, txFields); cp != nil {
		if cp.Action == "fail" {
			err := fmt.Errorf("checkpoint %s blocked run: %+v", cp.Stage, cp.When)
			return p.fail("checkpoint_post_transcription", err, tc), err
		}
		return p.lightweight(ctx, acq, transcript, nil, "checkpoint:"+cp.Stage), nil
	}

	if res, done := p.checkCancelled(ctx, StageQuality, tc); done {
		return res, ctx.Err()
	}

	// Stage 5: Quality assess.
	started = time.Now()
	qa := quality.Assess(transcript.Text, p.quality)
	p.recordStageDuration(StageQuality, time.Since(started))
	if p.enableQuality && !qa.ShouldProcessFully {
		return p.lightweight(ctx, acq, transcript, &qa, qa.BypassReason), nil
	}

	if res, done := p.checkCancelled(ctx, "analysis_fanout", tc); done {
		return res, ctx.Err()
	}

	// Stage 7: analysis fan-out.
	shared := contract.SharedContext{
		Transcript:      transcript,
		Metadata:        acq.Metadata,
		UpstreamResults: map[string]contract.StepResult{},
	}
	results, fatalErr := p.runFanout(ctx, shared, depth, tc)
	if fatalErr != nil {
		return p.fail("analysis_fanout", fatalErr, tc), fatalErr
	}

	if res, done := p.checkCancelled(ctx, "persist", tc); done {
		return res, ctx.Err()
	}

	// Stage 8: Persist.
	p.persist(ctx, tc, depth, transcript, results)

	if res, done := p.checkCancelled(ctx, "notify", tc); done {
		return res, ctx.Err()
	}

	// Stage 9: Notify (best-effort).
	p.notify(ctx, tc, url, qa, results)

	analysisOut := make(map[string]interface{}, len(results))
	for name, r := range results {
		analysisOut[name] = r.Output
	}

	out := Result{
		ProcessingType:  "full",
		QualityScore:    qa.OverallScore,
		Summary:         summarize(acq.Title, transcript.Text, 40),
		MemoryStored:    true,
		AnalysisResults: analysisOut,
		Platform:        acq.Platform,
		Title:           acq.Title,
	}
	return contract.StepResult{
		Step:   "pipeline.Run",
		Status: contract.StatusOK,
		Output: resultToMap(out),
	}, nil
}

// checkCancelled reports whether ctx has already been cancelled or timed
// out, and if so produces the terminal fail result for stage with no
// further side effects (spec.md §8 "cancellation").
func (p *Pipeline) checkCancelled(ctx context.Context, stage string, tc tenancy.TenantContext) (contract.StepResult, bool) {
	if ctx.Err() == nil {
		return contract.StepResult{}, false
	}
	category := perr.FromContext(ctx)
	sentinel := perr.ErrCancelled
	if category == perr.CategoryTimeout {
		sentinel = perr.ErrDeadlineExceeded
	}
	err := perr.New("pipeline."+stage, category, sentinel)
	return p.fail(stage, err, tc), true
}

// runFanout runs the independent analysis tasks concurrently with a
// semaphore-bounded worker pool (grounded on pkg/orchestration/executor.go's
// PlanExecutor.executeParallel), with claim extraction → fact-check chained
// serially inside its own goroutine so the rest of the fan-out doesn't wait
// on it. A fatal result from any task cancels its siblings; other failure
// categories are recorded but do not (spec.md §4.1 Cancellation policy).
func (p *Pipeline) runFanout(ctx context.Context, shared contract.SharedContext, depth Depth, tc tenancy.TenantContext) (map[string]contract.StepResult, error) {
	fanoutCtx, cancelFanout := context.WithCancel(ctx)
	defer cancelFanout()

	sem := make(chan struct{}, p.maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]contract.StepResult)
	var fatalErr error

	runTool := func(name string, input map[string]interface{}, sharedForTool contract.SharedContext) contract.StepResult {
		tool, ok := p.deps.Tools[name]
		if !ok {
			notWired := fmt.Errorf("analysis tool %q not wired", name)
			return contract.StepResult{Step: name, Status: contract.StatusFail, Error: toStepError(name, notWired, tc)}
		}
		res, err := tool.Run(fanoutCtx, input, sharedForTool)
		if err != nil {
			res.Status = contract.StatusFail
			res.Error = toStepError(name, err, tc)
		}
		res.Step = name
		return res
	}

	recordAndMaybeCancel := func(name string, res contract.StepResult) {
		mu.Lock()
		results[name] = res
		fatal := res.Status == contract.StatusFail && res.Error != nil && res.Error.Category == perr.CategoryFatal
		if fatal && fatalErr == nil {
			fatalErr = res.Error
		}
		mu.Unlock()
		if fatal {
			cancelFanout()
		}
	}

	independent := []string{StageSentimentTopic, StageFallacyDetection}
	if depth == DepthDeep || depth == DepthExperimental {
		independent = append(independent, StagePerspectiveSynth)
	}

	for _, name := range independent {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			res := runTool(name, nil, shared)
			<-sem
			recordAndMaybeCancel(name, res)
		}()
	}

	// Claim extraction → (serial) fact-check.
	wg.Add(1)
	go func() {
		defer wg.Done()
		sem <- struct{}{}
		claimRes := runTool(StageClaimExtraction, nil, shared)
		<-sem
		recordAndMaybeCancel(StageClaimExtraction, claimRes)
		if claimRes.Status != contract.StatusOK {
			return
		}

		factShared := shared
		mu.Lock()
		factShared.UpstreamResults = map[string]contract.StepResult{StageClaimExtraction: claimRes}
		mu.Unlock()

		sem <- struct{}{}
		factRes := runTool(StageFactCheck, claimRes.Output, factShared)
		<-sem
		recordAndMaybeCancel(StageFactCheck, factRes)
	}()

	wg.Wait()
	return results, fatalErr
}

// persist writes analysis results to vector memory (always, on any
// analysis success) and graph memory (depth >= deep). Graph-memory
// failures are logged and swallowed at every depth; at depth=experimental
// they are also counted in pipeline_failures_total (spec.md §5).
func (p *Pipeline) persist(ctx context.Context, tc tenancy.TenantContext, depth Depth, transcript *contract.Transcript, results map[string]contract.StepResult) {
	namespace := tenancy.Namespace(tc, "analysis")
	record := contract.VectorRecord{
		ID:      tc.RequestID,
		Payload: map[string]interface{}{"transcript_excerpt": summarize("", transcript.Text, 100)},
	}
	if p.deps.Embedder != nil {
		if emb, err := p.deps.Embedder.Embed(ctx, transcript.Text); err == nil {
			record.Embedding = emb
		} else {
			p.logger.Warn("pipeline: embedding transcript for vector memory failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := p.deps.VectorMemory.Upsert(ctx, namespace, []contract.VectorRecord{record}); err != nil {
		p.logger.Error("pipeline: vector memory upsert failed", map[string]interface{}{"error": err.Error()})
	}

	if depth != DepthDeep && depth != DepthExperimental {
		return
	}
	if p.deps.GraphMemory == nil {
		return
	}
	node := contract.GraphNode{ID: tc.RequestID, Labels: []string{"ContentRun"}, Properties: map[string]interface{}{"tenant": tc.TenantID}}
	if err := p.deps.GraphMemory.AddNode(ctx, tenancy.Namespace(tc, "graph"), node); err != nil {
		p.logger.Error("pipeline: graph memory write failed", map[string]interface{}{"error": err.Error()})
		if depth == DepthExperimental && p.telemetry != nil {
			p.telemetry.PipelineFailures.Add(ctx, 1)
		}
	}
}

// notify posts a structured summary; failures are logged but never fail
// the pipeline (spec.md §4.1 Stage 9).
func (p *Pipeline) notify(ctx context.Context, tc tenancy.TenantContext, url string, qa quality.Assessment, results map[string]contract.StepResult) {
	if p.deps.Notifier == nil {
		return
	}
	payload := map[string]interface{}{
		"url":            url,
		"tenant":         tc.TenantID,
		"quality_score":  qa.OverallScore,
		"steps_executed": len(results),
	}
	if err := p.deps.Notifier.Send(ctx, "pipeline-completions", payload); err != nil {
		p.logger.Warn("pipeline: notify failed", map[string]interface{}{"error": err.Error()})
	}
}

// lightweight produces the Lightweight finalize shape (spec.md §4.1).
func (p *Pipeline) lightweight(ctx context.Context, acq *contract.Acquisition, transcript *contract.Transcript, qa *quality.Assessment, bypassReason string) contract.StepResult {
	summary := ""
	qualityScore := 0.0
	if acq != nil {
		title := acq.Title
		text := ""
		if transcript != nil {
			text = transcript.Text
		}
		summary = summarize(title, text, 40)
	}
	if qa != nil {
		qualityScore = qa.OverallScore
	}
	if p.deps.VectorMemory != nil {
		_ = p.deps.VectorMemory.Upsert(ctx, "lightweight", []contract.VectorRecord{
			{ID: bypassReason, Payload: map[string]interface{}{"summary": summary}},
		})
	}
	out := Result{
		ProcessingType:     "lightweight",
		QualityScore:       qualityScore,
		BypassReason:       bypassReason,
		Summary:            summary,
		MemoryStored:       true,
		TimeSavedEstimateS: estimateTimeSaved(transcript),
	}
	if acq != nil {
		out.Platform = acq.Platform
		out.Title = acq.Title
	}
	return contract.StepResult{Step: "pipeline.Run", Status: contract.StatusOK, Output: resultToMap(out)}
}

// fail wraps a stage error into the terminal StepResult, carrying the
// category/retryable/context taxonomy spec.md §7 mandates on every terminal
// surfacing; stages 1–5 never reach Notify on failure (spec.md §4.1
// Cancellation policy).
func (p *Pipeline) fail(stage string, err error, tc tenancy.TenantContext) contract.StepResult {
	stepErr := toStepError(stage, err, tc)
	p.logger.Error("pipeline: stage failed", map[string]interface{}{"stage": stage, "category": string(stepErr.Category), "error": err.Error()})
	if p.telemetry != nil {
		p.telemetry.PipelineFailures.Add(context.Background(), 1)
	}
	return contract.StepResult{Step: stage, Status: contract.StatusFail, Error: stepErr}
}

// toStepError classifies err under the closed perr.Category taxonomy
// (defaulting to CategoryProcessing for an unclassified error) and attaches
// the context fields §7 requires on every terminal result: stage, tenant,
// workspace, request_id, and (for network errors where known) host. An err
// that is already a *contract.StepError (e.g. a fatal fan-out tool result
// bubbling up to Run's own terminal fail) keeps its original category
// rather than being reclassified.
func toStepError(stage string, err error, tc tenancy.TenantContext) *contract.StepError {
	var existing *contract.StepError
	if errors.As(err, &existing) {
		return existing
	}

	category := perr.CategoryProcessing
	host := ""
	var fe *perr.FrameworkError
	if errors.As(err, &fe) {
		category = fe.Kind
		host = fe.ID
	}
	stepCtx := map[string]string{
		"stage":      stage,
		"tenant":     tc.TenantID,
		"workspace":  tc.WorkspaceID,
		"request_id": tc.RequestID,
	}
	if category == perr.CategoryNetwork && host != "" {
		stepCtx["host"] = host
	}
	return contract.NewStepError(category, err, stepCtx)
}

// recordStageDuration updates the exponential moving average used to
// weight future per-stage deadline division (spec.md §5).
func (p *Pipeline) recordStageDuration(stage string, d time.Duration) {
	p.meansMu.Lock()
	defer p.meansMu.Unlock()
	if prev, ok := p.means[stage]; ok {
		p.means[stage] = time.Duration(0.7*float64(prev) + 0.3*float64(d))
	} else {
		p.means[stage] = d
	}
}

// stageDeadline divides the run's remaining budget among the stages still
// to run, weighted by each stage's historical mean duration (falling back
// to an even split for stages with no history yet).
func (p *Pipeline) stageDeadline(ctx context.Context, stage string, remainingStages []string) time.Time {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Now().Add(30 * time.Second)
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Now()
	}

	p.meansMu.Lock()
	weights := make(map[string]time.Duration, len(remainingStages))
	var total time.Duration
	for _, s := range remainingStages {
		w, ok := p.means[s]
		if !ok || w <= 0 {
			w = time.Second
		}
		weights[s] = w
		total += w
	}
	p.meansMu.Unlock()

	if total <= 0 {
		total = time.Duration(len(remainingStages)) * time.Second
	}
	share := time.Duration(float64(remaining) * float64(weights[stage]) / float64(total))
	if share <= 0 {
		share = remaining
	}
	return time.Now().Add(share)
}

func acquisitionFields(acq *contract.Acquisition) map[string]interface{} {
	fields := map[string]interface{}{
		"platform":   acq.Platform,
		"duration_s": acq.DurationS,
		"title":      acq.Title,
	}
	for k, v := range acq.Metadata {
		fields[k] = v
	}
	return fields
}

func summarize(title, text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	body := strings.Join(words, " ")
	if title == "" {
		return body
	}
	return title + ": " + body
}

// estimateTimeSaved approximates the processing time a lightweight
// finalize avoided, proportional to transcript duration when known.
func estimateTimeSaved(transcript *contract.Transcript) float64 {
	if transcript == nil {
		return 0
	}
	return transcript.DurationS * 0.05
}

func resultToMap(r Result) map[string]interface{} {
	m := map[string]interface{}{
		"processing_type": r.ProcessingType,
		"memory_stored":   r.MemoryStored,
		"platform":        r.Platform,
		"title":           r.Title,
	}
	if r.QualityScore != 0 {
		m["quality_score"] = r.QualityScore
	}
	if r.BypassReason != "" {
		m["bypass_reason"] = r.BypassReason
	}
	if r.Summary != "" {
		m["summary"] = r.Summary
	}
	if r.TimeSavedEstimateS != 0 {
		m["time_saved_estimate"] = r.TimeSavedEstimateS
	}
	if r.AnalysisResults != nil {
		m["analysis_results"] = r.AnalysisResults
	}
	return m
}
