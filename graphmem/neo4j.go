// Package graphmem provides a Neo4j-backed reference implementation of
// contract.GraphMemory, grounded on WessleyAI-wessley-mvp's
// engine/graph.GraphStore. Namespacing is carried as tenant/workspace node
// and relationship properties rather than separate databases, since a
// single content-intelligence deployment is expected to share one Neo4j
// instance across tenants.
package graphmem

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/logging"
)

// sessionAPI is the subset of neo4j.SessionWithContext this package drives.
// Narrowing it lets tests substitute a fake session without implementing
// the driver's full read/write-transaction surface.
type sessionAPI interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
	Close(ctx context.Context) error
}

// Neo4jMemory implements contract.GraphMemory against a single Neo4j
// deployment.
type Neo4jMemory struct {
	newSession func(ctx context.Context) sessionAPI
	logger     logging.Logger
}

// New wraps an already-connected Neo4j driver.
func New(driver neo4j.DriverWithContext, logger logging.Logger) *Neo4jMemory {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Neo4jMemory{
		newSession: func(ctx context.Context) sessionAPI {
			return driver.NewSession(ctx, neo4j.SessionConfig{})
		},
		logger: logger,
	}
}

// newWithSessionFactory builds a Neo4jMemory over a caller-supplied session
// factory, bypassing the driver. Used by tests to substitute a fake
// session.
func newWithSessionFactory(factory func(ctx context.Context) sessionAPI, logger logging.Logger) *Neo4jMemory {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Neo4jMemory{newSession: factory, logger: logger}
}

// AddNode creates or updates a node scoped to namespace's tenant/workspace.
func (g *Neo4jMemory) AddNode(ctx context.Context, namespace string, node contract.GraphNode) error {
	tenant, workspace := splitNamespace(namespace)
	sess := g.newSession(ctx)
	defer sess.Close(ctx)

	label := primaryLabel(node.Labels)
	cypher := fmt.Sprintf(
		`MERGE (n:%s {id: $id, tenant: $tenant, workspace: $workspace}) SET n += $props`,
		label,
	)
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":        node.ID,
		"tenant":    tenant,
		"workspace": workspace,
		"props":     node.Properties,
	})
	if err != nil {
		return fmt.Errorf("graphmem: add node %s: %w", node.ID, err)
	}
	return nil
}

// AddEdge creates or updates a relationship between two existing nodes in
// the same namespace.
func (g *Neo4jMemory) AddEdge(ctx context.Context, namespace string, edge contract.GraphEdge) error {
	tenant, workspace := splitNamespace(namespace)
	sess := g.newSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (a {id: $from, tenant: $tenant, workspace: $workspace}), (b {id: $to, tenant: $tenant, workspace: $workspace})
		 MERGE (a)-[r:%s]->(b)
		 SET r += $props`,
		sanitizeRelType(edge.Type),
	)
	_, err := sess.Run(ctx, cypher, map[string]any{
		"from":      edge.FromID,
		"to":        edge.ToID,
		"tenant":    tenant,
		"workspace": workspace,
		"props":     edge.Properties,
	})
	if err != nil {
		return fmt.Errorf("graphmem: add edge %s->%s: %w", edge.FromID, edge.ToID, err)
	}
	return nil
}

// Query dispatches to the timeline or subgraph query shape.
func (g *Neo4jMemory) Query(ctx context.Context, namespace string, kind contract.GraphQueryKind, params map[string]interface{}) ([]map[string]interface{}, error) {
	switch kind {
	case contract.GraphQueryTimeline:
		return g.timeline(ctx, namespace, params)
	case contract.GraphQuerySubgraph:
		return g.subgraph(ctx, namespace, params)
	default:
		return nil, fmt.Errorf("graphmem: unsupported query kind %q", kind)
	}
}

// timeline returns nodes in namespace ordered most-recent-first by their
// created_at property, capped by params["limit"] (default 50).
func (g *Neo4jMemory) timeline(ctx context.Context, namespace string, params map[string]interface{}) ([]map[string]interface{}, error) {
	tenant, workspace := splitNamespace(namespace)
	limit := intParam(params, "limit", 50)

	sess := g.newSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (n {tenant: $tenant, workspace: $workspace})
			   WHERE n.created_at IS NOT NULL
			   RETURN n
			   ORDER BY n.created_at DESC
			   LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"tenant":    tenant,
		"workspace": workspace,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("graphmem: timeline query: %w", err)
	}
	return collectNodes(ctx, result)
}

// subgraph returns nodes within params["depth"] (default 1) hops of
// params["node_id"] in namespace.
func (g *Neo4jMemory) subgraph(ctx context.Context, namespace string, params map[string]interface{}) ([]map[string]interface{}, error) {
	tenant, workspace := splitNamespace(namespace)
	nodeID, _ := params["node_id"].(string)
	if nodeID == "" {
		return nil, fmt.Errorf("graphmem: subgraph query requires node_id")
	}
	depth := intParam(params, "depth", 1)
	if depth <= 0 {
		depth = 1
	}

	sess := g.newSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start {id: $id, tenant: $tenant, workspace: $workspace})-[*1..%d]-(n)
		 WHERE n.id <> $id
		 RETURN DISTINCT n`, depth)
	result, err := sess.Run(ctx, cypher, map[string]any{
		"id":        nodeID,
		"tenant":    tenant,
		"workspace": workspace,
	})
	if err != nil {
		return nil, fmt.Errorf("graphmem: subgraph query: %w", err)
	}
	return collectNodes(ctx, result)
}

// collectNodes reads the properties of the node in each record's "n"
// column into a plain map.
func collectNodes(ctx context.Context, result neo4j.ResultWithContext) ([]map[string]interface{}, error) {
	var items []map[string]interface{}
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			return nil, err
		}
		items = append(items, node.Props)
	}
	return items, nil
}

// splitNamespace extracts the tenant/workspace components off the front of
// a "tenant:workspace:collection" namespace string built by
// tenancy.Namespace.
func splitNamespace(namespace string) (tenant, workspace string) {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(namespace); i++ {
		if namespace[i] == ':' {
			parts = append(parts, namespace[start:i])
			start = i + 1
			if len(parts) == 2 {
				break
			}
		}
	}
	if len(parts) < 2 {
		return "default", "default"
	}
	return parts[0], parts[1]
}

// primaryLabel picks the first caller-supplied label, falling back to a
// generic node label when none is given. Sanitized with sanitizeIdentifier,
// the same character filter sanitizeRelType uses, but without its
// upper-casing, so the label keeps the caller's case.
func primaryLabel(labels []string) string {
	for _, l := range labels {
		if safe := sanitizeIdentifier(l); safe != "" {
			return safe
		}
	}
	return "Entity"
}

// sanitizeRelType ensures a user-supplied relationship type is a valid
// Cypher identifier, uppercased per Neo4j convention.
func sanitizeRelType(t string) string {
	safe := sanitizeIdentifier(t)
	if safe == "" {
		return "RELATED_TO"
	}
	out := make([]byte, len(safe))
	for i := 0; i < len(safe); i++ {
		c := safe[i]
		if c >= 'a' && c <= 'z' {
			c -= 32
		}
		out[i] = c
	}
	return string(out)
}

func sanitizeIdentifier(s string) string {
	safe := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	return string(safe)
}

func intParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
