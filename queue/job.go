// Package queue implements the durable watch-queue table named in spec.md
// §3/§6: WatchJob rows deduplicated on (tenant, workspace, source_type,
// external_id), tracked through a {queued, running, done, failed} status
// lifecycle. Grounded on codeready-toolchain-tarsy's pkg/database (pgx-backed
// Postgres access), simplified to hand-written SQL against one table since
// no ent schema/codegen is available in this exercise (DESIGN.md).
package queue

import "time"

// Status is the lifecycle state of a queued WatchJob.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one watch-queue row (spec.md §3 "WatchJob / Queue item").
type Job struct {
	ID         int64
	Tenant     string
	Workspace  string
	SourceType string
	ExternalID string
	URL        string
	Priority   int
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Error      string
}

// DedupKey is the (tenant, workspace, source_type, external_id) tuple a
// Job is deduplicated on at insert time (spec.md §3).
type DedupKey struct {
	Tenant     string
	Workspace  string
	SourceType string
	ExternalID string
}
