package graphmem

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/contentpipe/contract"
)

// fakeSession is a sessionAPI double. AddNode/AddEdge never inspect the
// neo4j.ResultWithContext Run returns, so returning nil satisfies the
// interface without faking the driver's result cursor.
type fakeSession struct {
	runCypher string
	runParams map[string]any
	runErr    error
	closed    bool
}

func (f *fakeSession) Run(_ context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error) {
	f.runCypher = cypher
	f.runParams = params
	if f.runErr != nil {
		return nil, f.runErr
	}
	return nil, nil
}

func (f *fakeSession) Close(_ context.Context) error {
	f.closed = true
	return nil
}

func newTestMemory(sess *fakeSession) *Neo4jMemory {
	return newWithSessionFactory(func(context.Context) sessionAPI { return sess }, nil)
}

func TestAddNode_BuildsMergeWithSanitizedLabel(t *testing.T) {
	sess := &fakeSession{}
	mem := newTestMemory(sess)

	err := mem.AddNode(context.Background(), "acme:default:entities", contract.GraphNode{
		ID:         "n1",
		Labels:     []string{"Video;DROP"},
		Properties: map[string]any{"title": "clip"},
	})

	require.NoError(t, err)
	assert.True(t, sess.closed)
	assert.Contains(t, sess.runCypher, "MERGE (n:Video")
	assert.Equal(t, "n1", sess.runParams["id"])
	assert.Equal(t, "acme", sess.runParams["tenant"])
	assert.Equal(t, "default", sess.runParams["workspace"])
}

func TestAddNode_PropagatesRunError(t *testing.T) {
	sess := &fakeSession{runErr: errors.New("boom")}
	mem := newTestMemory(sess)

	err := mem.AddNode(context.Background(), "acme:default:entities", contract.GraphNode{ID: "n1"})

	require.Error(t, err)
	assert.True(t, sess.closed)
}

func TestAddEdge_BuildsMergeWithUppercasedRelType(t *testing.T) {
	sess := &fakeSession{}
	mem := newTestMemory(sess)

	err := mem.AddEdge(context.Background(), "acme:default:entities", contract.GraphEdge{
		FromID: "a",
		ToID:   "b",
		Type:   "mentions",
	})

	require.NoError(t, err)
	assert.Contains(t, sess.runCypher, "MERGE (a)-[r:MENTIONS]->(b)")
	assert.Equal(t, "a", sess.runParams["from"])
	assert.Equal(t, "b", sess.runParams["to"])
}

func TestQuery_RejectsUnsupportedKind(t *testing.T) {
	mem := newTestMemory(&fakeSession{})
	_, err := mem.Query(context.Background(), "acme:default:entities", contract.GraphQueryKind("bogus"), nil)
	require.Error(t, err)
}

func TestSplitNamespace(t *testing.T) {
	cases := []struct {
		in                string
		tenant, workspace string
	}{
		{"acme:default:entities", "acme", "default"},
		{"acme:default", "acme", "default"},
		{"malformed", "default", "default"},
		{"", "default", "default"},
	}
	for _, c := range cases {
		tenant, workspace := splitNamespace(c.in)
		assert.Equal(t, c.tenant, tenant, c.in)
		assert.Equal(t, c.workspace, workspace, c.in)
	}
}

func TestPrimaryLabel(t *testing.T) {
	assert.Equal(t, "Video", primaryLabel([]string{"Video"}))
	assert.Equal(t, "Entity", primaryLabel(nil))
	assert.Equal(t, "Entity", primaryLabel([]string{"!!!"}))
	assert.Equal(t, "Clip", primaryLabel([]string{"", "Clip"}))
}

func TestSanitizeRelType(t *testing.T) {
	assert.Equal(t, "MENTIONS", sanitizeRelType("mentions"))
	assert.Equal(t, "RELATED_TO", sanitizeRelType("!!!"))
	assert.Equal(t, "APPEARS_IN", sanitizeRelType("appears_in"))
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "abc123", sanitizeIdentifier("abc 123!@#"))
	assert.Equal(t, "", sanitizeIdentifier("!!!"))
}

func TestIntParam(t *testing.T) {
	assert.Equal(t, 5, intParam(map[string]interface{}{"limit": 5}, "limit", 50))
	assert.Equal(t, 5, intParam(map[string]interface{}{"limit": int64(5)}, "limit", 50))
	assert.Equal(t, 5, intParam(map[string]interface{}{"limit": float64(5)}, "limit", 50))
	assert.Equal(t, 50, intParam(map[string]interface{}{}, "limit", 50))
	assert.Equal(t, 50, intParam(map[string]interface{}{"limit": "nope"}, "limit", 50))
}
