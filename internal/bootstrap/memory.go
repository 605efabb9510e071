package bootstrap

import (
	"context"
	"os"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/graphmem"
	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/vectormem"
)

// inMemoryVectorMemory is the fallback contract.VectorMemory used when no
// QDRANT_ADDR is configured, so operator tooling still runs without a live
// Qdrant instance. It does no similarity ranking beyond namespace
// filtering; real deployments configure vectormem.New instead.
type inMemoryVectorMemory struct {
	mu      sync.Mutex
	records map[string][]contract.VectorRecord
}

func newInMemoryVectorMemory() *inMemoryVectorMemory {
	return &inMemoryVectorMemory{records: make(map[string][]contract.VectorRecord)}
}

func (m *inMemoryVectorMemory) Upsert(ctx context.Context, namespace string, records []contract.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[namespace] = append(m.records[namespace], records...)
	return nil
}

func (m *inMemoryVectorMemory) Query(ctx context.Context, namespace string, query []float32, k int) ([]contract.VectorQueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[namespace]
	if len(recs) > k {
		recs = recs[len(recs)-k:]
	}
	out := make([]contract.VectorQueryResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, contract.VectorQueryResult{ID: r.ID, Score: 1, Payload: r.Payload})
	}
	return out, nil
}

// BuildVectorMemory wires vectormem.QdrantMemory when QDRANT_ADDR is set,
// falling back to an in-process store otherwise.
func BuildVectorMemory(logger logging.Logger) (contract.VectorMemory, func()) {
	addr := os.Getenv("QDRANT_ADDR")
	if addr == "" {
		logger.Warn("bootstrap: QDRANT_ADDR unset, using in-memory vector store", nil)
		return newInMemoryVectorMemory(), func() {}
	}
	dims := 1536
	mem, err := vectormem.New(addr, dims, logger)
	if err != nil {
		logger.Error("bootstrap: connecting to qdrant failed, using in-memory vector store", map[string]interface{}{"error": err.Error()})
		return newInMemoryVectorMemory(), func() {}
	}
	return mem, func() { _ = mem.Close() }
}

// BuildGraphMemory wires graphmem.Neo4jMemory when NEO4J_URI is set.
// GraphMemory stays nil otherwise; the orchestrator treats a nil
// GraphMemory as "skip graph persistence" (spec.md §4.1 Stage 8).
func BuildGraphMemory(logger logging.Logger) (contract.GraphMemory, func()) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		return nil, func() {}
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASSWORD"), ""))
	if err != nil {
		logger.Error("bootstrap: connecting to neo4j failed, graph memory disabled", map[string]interface{}{"error": err.Error()})
		return nil, func() {}
	}
	mem := graphmem.New(driver, logger)
	return mem, func() { _ = driver.Close(context.Background()) }
}
