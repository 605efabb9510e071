package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/contentpipe/contract"
)

// runState mirrors the lifecycle of one submitted run; Pending/Running exist
// only until Pipeline.Run returns, since the orchestrator itself is
// synchronous per spec.md §4.1 (the async boundary is this server, not the
// pipeline).
type runState string

const (
	runPending runState = "pending"
	runRunning runState = "running"
	runDone    runState = "done"
)

// runRecord is the polled-for shape GET /v1/runs/{id} returns.
type runRecord struct {
	ID        string                `json:"id"`
	URL       string                `json:"url"`
	Tenant    string                `json:"tenant"`
	Workspace string                `json:"workspace"`
	Depth     string                `json:"depth"`
	State     runState              `json:"state"`
	Result    *contract.StepResult  `json:"result,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// runManager is an in-memory keyed store of submitted runs, grounded on the
// teacher's session.Manager (uuid-keyed map guarded by a single RWMutex; no
// persistence beyond process lifetime). A deployment that needs runs to
// survive a restart pairs this server with the durable queue/ package
// instead of relying on runManager's bookkeeping.
type runManager struct {
	mu   sync.RWMutex
	runs map[string]*runRecord
}

func newRunManager() *runManager {
	return &runManager{runs: make(map[string]*runRecord)}
}

func (m *runManager) create(url, tenant, workspace, depth string) *runRecord {
	rec := &runRecord{
		ID:        uuid.NewString(),
		URL:       url,
		Tenant:    tenant,
		Workspace: workspace,
		Depth:     depth,
		State:     runPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.mu.Lock()
	m.runs[rec.ID] = rec
	m.mu.Unlock()
	return rec
}

func (m *runManager) setRunning(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.State = runRunning
		r.UpdatedAt = time.Now()
	}
}

func (m *runManager) complete(id string, result contract.StepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.State = runDone
		r.Result = &result
		r.UpdatedAt = time.Now()
	}
}

func (m *runManager) get(id string) (*runRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return r, nil
}
