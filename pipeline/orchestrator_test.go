package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/contentpipe/config"
	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/perr"
	"github.com/normanking/contentpipe/telemetry"
)

type fakeAcquirer struct {
	acq *contract.Acquisition
	err error
}

func (f fakeAcquirer) Acquire(ctx context.Context, url string) (*contract.Acquisition, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.acq, nil
}

type fakeTranscriber struct {
	transcript *contract.Transcript
	err        error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, mediaPath, language string) (*contract.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

type fakeTool struct {
	name string
	run  func(ctx context.Context, input map[string]interface{}, shared contract.SharedContext) (contract.StepResult, error)
}

func (f fakeTool) Name() string { return f.name }
func (f fakeTool) Run(ctx context.Context, input map[string]interface{}, shared contract.SharedContext) (contract.StepResult, error) {
	return f.run(ctx, input, shared)
}

func okTool(name string) fakeTool {
	return fakeTool{name: name, run: func(ctx context.Context, input map[string]interface{}, shared contract.SharedContext) (contract.StepResult, error) {
		return contract.StepResult{Step: name, Status: contract.StatusOK, Output: map[string]interface{}{"ran": true}}, nil
	}}
}

type fakeVectorMemory struct {
	upserts int
}

func (f *fakeVectorMemory) Upsert(ctx context.Context, namespace string, records []contract.VectorRecord) error {
	f.upserts++
	return nil
}
func (f *fakeVectorMemory) Query(ctx context.Context, namespace string, query []float32, k int) ([]contract.VectorQueryResult, error) {
	return nil, nil
}

type fakeGraphMemory struct {
	nodes int
	err   error
}

func (f *fakeGraphMemory) AddNode(ctx context.Context, namespace string, node contract.GraphNode) error {
	f.nodes++
	return f.err
}
func (f *fakeGraphMemory) AddEdge(ctx context.Context, namespace string, edge contract.GraphEdge) error {
	return nil
}
func (f *fakeGraphMemory) Query(ctx context.Context, namespace string, kind contract.GraphQueryKind, params map[string]interface{}) ([]map[string]interface{}, error) {
	return nil, nil
}

type fakeNotifier struct {
	sent int
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, channel string, payload map[string]interface{}) error {
	f.sent++
	return f.err
}

func testPipeline(t *testing.T, deps Dependencies) *Pipeline {
	t.Helper()
	cfg := config.DefaultConfig()
	tel, err := telemetry.New("test", false)
	require.NoError(t, err)
	return New(cfg, deps, nil, logging.NoOpLogger{}, tel)
}

func longTranscriptText() string {
	words := make([]string, 0, 1200)
	vocab := []string{"system", "design", "process", "quality", "network", "data", "model", "analysis"}
	for i := 0; i < 1200; i++ {
		words = append(words, vocab[i%len(vocab)])
		if i%15 == 14 {
			words[len(words)-1] = words[len(words)-1] + "."
		}
	}
	text := ""
	for _, w := range words {
		text += w + " "
	}
	return text
}

func TestRun_FullPathPersistsAndNotifies(t *testing.T) {
	vm := &fakeVectorMemory{}
	notifier := &fakeNotifier{}
	deps := Dependencies{
		Acquirer:    fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/media.mp4", Title: "A Talk", DurationS: 600}},
		Transcriber: fakeTranscriber{transcript: &contract.Transcript{Text: longTranscriptText()}},
		Tools: map[string]contract.AnalysisTool{
			StageSentimentTopic:  okTool(StageSentimentTopic),
			StageFallacyDetection: okTool(StageFallacyDetection),
			StageClaimExtraction: okTool(StageClaimExtraction),
			StageFactCheck:       okTool(StageFactCheck),
		},
		VectorMemory: vm,
		Notifier:     notifier,
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/watch", DepthStandard)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, "full", result.Output["processing_type"])
	assert.Equal(t, 1, vm.upserts)
	assert.Equal(t, 1, notifier.sent)
}

func TestRun_AcquireFailureShortCircuits(t *testing.T) {
	deps := Dependencies{
		Acquirer:    fakeAcquirer{err: errors.New("video unavailable")},
		Transcriber: fakeTranscriber{},
		VectorMemory: &fakeVectorMemory{},
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/private", DepthStandard)
	require.Error(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, StageAcquire, result.Step)
}

func TestRun_PostDownloadCheckpointSkipsToLightweight(t *testing.T) {
	deps := Dependencies{
		Acquirer: fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/long.mp4", Title: "Marathon Stream", DurationS: 10000}},
		Transcriber: fakeTranscriber{transcript: &contract.Transcript{Text: longTranscriptText()}},
		VectorMemory: &fakeVectorMemory{},
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/marathon", DepthStandard)
	require.NoError(t, err)
	assert.Equal(t, "lightweight", result.Output["processing_type"])
	assert.Contains(t, result.Output["bypass_reason"], "checkpoint")
}

func TestRun_EmptyTranscriptGoesLightweight(t *testing.T) {
	deps := Dependencies{
		Acquirer:     fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/m.mp4", Title: "Silent Clip"}},
		Transcriber:  fakeTranscriber{transcript: &contract.Transcript{Text: "   "}},
		VectorMemory: &fakeVectorMemory{},
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/silent", DepthStandard)
	require.NoError(t, err)
	assert.Equal(t, "lightweight", result.Output["processing_type"])
	assert.Equal(t, "empty_transcript", result.Output["bypass_reason"])
}

func TestRun_LowQualityTranscriptBypassesFanout(t *testing.T) {
	deps := Dependencies{
		Acquirer:     fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/m.mp4", Title: "Short Clip"}},
		Transcriber:  fakeTranscriber{transcript: &contract.Transcript{Text: "too short to pass quality thresholds."}},
		VectorMemory: &fakeVectorMemory{},
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/short", DepthStandard)
	require.NoError(t, err)
	assert.Equal(t, "lightweight", result.Output["processing_type"])
}

func TestRun_FatalAnalysisToolFailsPipeline(t *testing.T) {
	fatalTool := fakeTool{name: StageFallacyDetection, run: func(ctx context.Context, input map[string]interface{}, shared contract.SharedContext) (contract.StepResult, error) {
		return contract.StepResult{}, perr.New("fallacy_detection", perr.CategoryFatal, errors.New("boom"))
	}}
	deps := Dependencies{
		Acquirer:    fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/m.mp4", Title: "A Talk"}},
		Transcriber: fakeTranscriber{transcript: &contract.Transcript{Text: longTranscriptText()}},
		Tools: map[string]contract.AnalysisTool{
			StageSentimentTopic:   okTool(StageSentimentTopic),
			StageFallacyDetection: fatalTool,
			StageClaimExtraction:  okTool(StageClaimExtraction),
			StageFactCheck:        okTool(StageFactCheck),
		},
		VectorMemory: &fakeVectorMemory{},
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/watch", DepthStandard)
	require.Error(t, err)
	assert.False(t, result.OK())
}

func TestRun_DeepDepthWritesGraphMemory(t *testing.T) {
	gm := &fakeGraphMemory{}
	deps := Dependencies{
		Acquirer:    fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/m.mp4", Title: "A Talk"}},
		Transcriber: fakeTranscriber{transcript: &contract.Transcript{Text: longTranscriptText()}},
		Tools: map[string]contract.AnalysisTool{
			StageSentimentTopic:   okTool(StageSentimentTopic),
			StageFallacyDetection: okTool(StageFallacyDetection),
			StageClaimExtraction:  okTool(StageClaimExtraction),
			StageFactCheck:        okTool(StageFactCheck),
			StagePerspectiveSynth: okTool(StagePerspectiveSynth),
		},
		VectorMemory: &fakeVectorMemory{},
		GraphMemory:  gm,
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/watch", DepthDeep)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, 1, gm.nodes)
}

func TestRun_StrictTenancyRejectsMissingTenantContext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tenancy.EnableStrict = true
	deps := Dependencies{
		Acquirer:     fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/m.mp4"}},
		Transcriber:  fakeTranscriber{transcript: &contract.Transcript{Text: longTranscriptText()}},
		VectorMemory: &fakeVectorMemory{},
	}
	tel, err := telemetry.New("test", false)
	require.NoError(t, err)
	p := New(cfg, deps, nil, logging.NoOpLogger{}, tel)

	result, err := p.Run(context.Background(), "https://example.com/watch", DepthStandard)
	require.Error(t, err)
	assert.False(t, result.OK())
	require.NotNil(t, result.Error)
	assert.Equal(t, perr.CategoryTenancy, result.Error.Category)
}

func TestRun_CancelledBeforeFanoutFailsWithNoMemoryWritesOrNotify(t *testing.T) {
	vm := &fakeVectorMemory{}
	notifier := &fakeNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	deps := Dependencies{
		Acquirer: fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/m.mp4", Title: "A Talk"}},
		Transcriber: cancelingTranscriber{
			transcript: &contract.Transcript{Text: longTranscriptText()},
			cancel:     cancel,
		},
		VectorMemory: vm,
		Notifier:     notifier,
	}
	p := testPipeline(t, deps)

	result, err := p.Run(ctx, "https://example.com/watch", DepthStandard)
	require.Error(t, err)
	assert.False(t, result.OK())
	require.NotNil(t, result.Error)
	assert.Equal(t, perr.CategoryCancelled, result.Error.Category)
	assert.Equal(t, 0, vm.upserts)
	assert.Equal(t, 0, notifier.sent)
}

// cancelingTranscriber cancels the caller's context as part of completing
// transcription, simulating cancellation that lands between stages.
type cancelingTranscriber struct {
	transcript *contract.Transcript
	cancel     context.CancelFunc
}

func (c cancelingTranscriber) Transcribe(ctx context.Context, mediaPath, language string) (*contract.Transcript, error) {
	c.cancel()
	return c.transcript, nil
}

func TestRun_GraphMemoryFailureDoesNotFailDeepRun(t *testing.T) {
	gm := &fakeGraphMemory{err: errors.New("neo4j unreachable")}
	deps := Dependencies{
		Acquirer:    fakeAcquirer{acq: &contract.Acquisition{Platform: "youtube", LocalPath: "/tmp/m.mp4", Title: "A Talk"}},
		Transcriber: fakeTranscriber{transcript: &contract.Transcript{Text: longTranscriptText()}},
		Tools: map[string]contract.AnalysisTool{
			StageSentimentTopic:   okTool(StageSentimentTopic),
			StageFallacyDetection: okTool(StageFallacyDetection),
			StageClaimExtraction:  okTool(StageClaimExtraction),
			StageFactCheck:        okTool(StageFactCheck),
			StagePerspectiveSynth: okTool(StagePerspectiveSynth),
		},
		VectorMemory: &fakeVectorMemory{},
		GraphMemory:  gm,
	}
	p := testPipeline(t, deps)

	result, err := p.Run(context.Background(), "https://example.com/watch", DepthDeep)
	require.NoError(t, err)
	assert.True(t, result.OK())
}
