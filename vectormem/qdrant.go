// Package vectormem provides a Qdrant-backed reference implementation of
// contract.VectorMemory, grounded on WessleyAI-wessley-mvp's
// engine/semantic.VectorStore. Namespacing is layered on top of that
// teacher's single fixed collection: every call carries a
// tenancy.Namespace-derived string and QdrantMemory maps it to its own
// Qdrant collection, creating it on first use.
package vectormem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/normanking/contentpipe/contract"
	"github.com/normanking/contentpipe/logging"
)

// pointsAPI is the subset of pb.PointsClient this package drives. Narrowing
// it to just Upsert/Search lets tests supply a fake without stubbing the
// rest of Qdrant's point-level RPCs.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient this package drives.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantMemory implements contract.VectorMemory against a single Qdrant
// deployment, one collection per namespace.
type QdrantMemory struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	dims        int
	logger      logging.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// New dials Qdrant at addr. dims is the embedding width every namespace's
// collection is created with; all records upserted through this client
// must carry embeddings of that length.
func New(addr string, dims int, logger logging.Logger) (*QdrantMemory, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectormem: dial qdrant %s: %w", addr, err)
	}
	q := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), dims, logger)
	q.conn = conn
	return q, nil
}

// NewWithClients builds a QdrantMemory over an already-constructed points
// and collections client, bypassing the dial. Used by tests to substitute
// fakes for the real gRPC stubs.
func NewWithClients(points pointsAPI, collections collectionsAPI, dims int, logger logging.Logger) *QdrantMemory {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &QdrantMemory{
		points:      points,
		collections: collections,
		dims:        dims,
		logger:      logger,
		ensured:     make(map[string]bool),
	}
}

// Close closes the underlying gRPC connection. A QdrantMemory built via
// NewWithClients has no connection of its own and Close is a no-op.
func (q *QdrantMemory) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// collectionName maps a "tenant:workspace:collection" namespace string
// onto a name Qdrant accepts, which disallows ':'.
func collectionName(namespace string) string {
	name := strings.ReplaceAll(namespace, ":", "__")
	if name == "" {
		name = "default"
	}
	return name
}

func (q *QdrantMemory) ensureCollection(ctx context.Context, name string) error {
	q.mu.Lock()
	if q.ensured[name] {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectormem: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			q.mu.Lock()
			q.ensured[name] = true
			q.mu.Unlock()
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectormem: create collection %s: %w", name, err)
	}
	q.mu.Lock()
	q.ensured[name] = true
	q.mu.Unlock()
	return nil
}

// Upsert stores records into the collection backing namespace, creating
// it first if this is the first write that namespace has seen.
func (q *QdrantMemory) Upsert(ctx context.Context, namespace string, records []contract.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	name := collectionName(namespace)
	if err := q.ensureCollection(ctx, name); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: encodePayload(r.Payload),
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectormem: upsert %d points into %s: %w", len(records), name, err)
	}
	return nil
}

// Query performs k-NN similarity search over namespace's collection. A
// namespace with no prior Upsert has no collection and Query returns
// ErrCacheMiss-free empty results rather than erroring, matching a cold
// cache rather than a misconfiguration.
func (q *QdrantMemory) Query(ctx context.Context, namespace string, query []float32, k int) ([]contract.VectorQueryResult, error) {
	name := collectionName(namespace)

	q.mu.Lock()
	known := q.ensured[name]
	q.mu.Unlock()
	if !known {
		list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
		if err != nil {
			return nil, fmt.Errorf("vectormem: list collections: %w", err)
		}
		found := false
		for _, c := range list.GetCollections() {
			if c.GetName() == name {
				found = true
				break
			}
		}
		if !found {
			return nil, nil
		}
	}

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("vectormem: search %s: %w", name, err)
	}

	results := make([]contract.VectorQueryResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = contract.VectorQueryResult{
			ID:      r.GetId().GetUuid(),
			Score:   float64(r.GetScore()),
			Payload: decodePayload(r.GetPayload()),
		}
	}
	return results, nil
}

// encodePayload converts a generic payload map into Qdrant's typed value
// wire format, falling back to a string representation for any type this
// client doesn't recognize.
func encodePayload(payload map[string]interface{}) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		switch tv := val.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float32:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(tv)}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return out
}

// decodePayload converts Qdrant's typed value wire format back into a
// generic payload map, the inverse of encodePayload for the kinds it
// produces.
func decodePayload(payload map[string]*pb.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		default:
			out[k] = v.String()
		}
	}
	return out
}
