package bootstrap

import (
	"context"
	"os"

	"github.com/normanking/contentpipe/cache"
	"github.com/normanking/contentpipe/config"
	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/pipeline"
	"github.com/normanking/contentpipe/telemetry"
)

func telemetryProvider(serviceName string, cfg *config.Config) (*telemetry.Provider, error) {
	return telemetry.New(serviceName, cfg.Observability.EnableTracing)
}

// NewLogger selects the structured-JSON default or the zerolog alternative
// per LOG_FORMAT, matching the teacher's "framework ships a plain default,
// apps bring their own logger" pattern (DESIGN.md logging/ entry).
func NewLogger() logging.ComponentAwareLogger {
	if os.Getenv("LOG_FORMAT") == "zerolog" {
		return logging.NewZerologLogger(os.Getenv("LOG_LEVEL"))
	}
	return logging.NewStructuredLogger()
}

// Runtime bundles everything a Pipeline needs plus the cleanup func for any
// live connections Build opened.
type Runtime struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Cache    *cache.MultiLevelCache
	Logger   logging.ComponentAwareLogger
	Close    func()
}

// Build loads config from the environment, constructs a logger, telemetry
// provider, and Dependencies (wiring real Qdrant/Neo4j backends when
// configured, stub collaborators otherwise), and returns a ready Pipeline.
func Build(serviceName string) (*Runtime, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	logger := NewLogger()

	tel, err := telemetryProvider(serviceName, cfg)
	if err != nil {
		return nil, err
	}

	vectorMem, closeVector := BuildVectorMemory(logger)
	graphMem, closeGraph := BuildGraphMemory(logger)

	var embedder contract.Embedder // operator-supplied, same as Acquirer/Transcriber; nil disables the semantic cache layer
	llmCache := BuildCache(cfg, embedder, tel, logger)

	var checkpoints []pipeline.Checkpoint
	if path := os.Getenv("PIPELINE_CHECKPOINTS_FILE"); path != "" {
		checkpoints, err = pipeline.LoadCheckpoints(path)
		if err != nil {
			closeVector()
			closeGraph()
			return nil, err
		}
	}

	deps := pipeline.Dependencies{
		Acquirer:     UnconfiguredAcquirer{},
		Transcriber:  UnconfiguredTranscriber{},
		Tools:        map[string]contract.AnalysisTool{},
		VectorMemory: vectorMem,
		GraphMemory:  graphMem,
		Notifier:     UnconfiguredNotifier{},
		Embedder:     embedder,
	}

	p := pipeline.New(cfg, deps, checkpoints, logger, tel)

	return &Runtime{
		Config:   cfg,
		Pipeline: p,
		Cache:    llmCache,
		Logger:   logger,
		Close: func() {
			closeVector()
			closeGraph()
			_ = tel.Shutdown(context.Background())
		},
	}, nil
}
