// Package bootstrap wires the pipeline's Dependencies from environment
// configuration, shared by cmd/pipelineapi and cmd/pipelinectl so neither
// binary duplicates collaborator-construction logic (spec.md §6 out-of-
// scope collaborators still need *some* concrete instance to run against).
package bootstrap

import (
	"context"

	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/perr"
)

// UnconfiguredAcquirer and UnconfiguredTranscriber stand in for the
// platform-specific downloader and transcription engine spec.md §1 names as
// external collaborators the core never implements. Operators wire their
// own contract.Acquirer/contract.Transcriber (and AnalysisTool set) in
// place of these before running against real traffic; left unconfigured,
// every run fails fast with a processing error naming the missing
// collaborator rather than silently returning empty data.
type UnconfiguredAcquirer struct{}

func (UnconfiguredAcquirer) Acquire(ctx context.Context, url string) (*contract.Acquisition, error) {
	return nil, perr.New("bootstrap.Acquire", perr.CategoryProcessing, errUnconfigured("Acquirer"))
}

type UnconfiguredTranscriber struct{}

func (UnconfiguredTranscriber) Transcribe(ctx context.Context, mediaPath, language string) (*contract.Transcript, error) {
	return nil, perr.New("bootstrap.Transcribe", perr.CategoryProcessing, errUnconfigured("Transcriber"))
}

type UnconfiguredNotifier struct{}

func (UnconfiguredNotifier) Send(ctx context.Context, channel string, payload map[string]interface{}) error {
	return perr.New("bootstrap.Notify", perr.CategoryProcessing, errUnconfigured("Notifier"))
}

func errUnconfigured(name string) error {
	return &unconfiguredError{name: name}
}

type unconfiguredError struct{ name string }

func (e *unconfiguredError) Error() string {
	return "no " + e.name + " wired; supply one via pipeline.Dependencies before serving traffic"
}
