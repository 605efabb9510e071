package vectormem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/normanking/contentpipe/contract"
)

type mockPoints struct {
	upsertResp *pb.PointsOperationResponse
	upsertErr  error
	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, _ *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return m.upsertResp, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	listResp   *pb.ListCollectionsResponse
	listErr    error
	createResp *pb.CollectionOperationResponse
	createErr  error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, _ *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return m.createResp, m.createErr
}

func TestCollectionName_EscapesNamespaceSeparator(t *testing.T) {
	assert.Equal(t, "acme__prod__transcripts", collectionName("acme:prod:transcripts"))
	assert.Equal(t, "default", collectionName(""))
}

func TestUpsert_EmptyRecordsIsNoop(t *testing.T) {
	mem := NewWithClients(&mockPoints{}, &mockCollections{}, 4, nil)
	err := mem.Upsert(context.Background(), "t:w:c", nil)
	require.NoError(t, err)
}

func TestUpsert_CreatesCollectionOnFirstWrite(t *testing.T) {
	cols := &mockCollections{
		listResp:   &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{}},
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	pts := &mockPoints{upsertResp: &pb.PointsOperationResponse{}}
	mem := NewWithClients(pts, cols, 8, nil)

	records := []contract.VectorRecord{{
		ID:        "11111111-1111-1111-1111-111111111111",
		Embedding: []float32{0.1, 0.2, 0.3, 0.4, 0.1, 0.2, 0.3, 0.4},
		Payload:   map[string]interface{}{"topic": "sports", "score": 0.9, "count": 3, "fatal": false},
	}}
	err := mem.Upsert(context.Background(), "acme:prod:transcripts", records)
	require.NoError(t, err)
	assert.True(t, mem.ensured["acme__prod__transcripts"])
}

func TestUpsert_SkipsListWhenNamespaceAlreadyEnsured(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("should not be called")}
	pts := &mockPoints{upsertResp: &pb.PointsOperationResponse{}}
	mem := NewWithClients(pts, cols, 4, nil)
	mem.ensured["acme__prod__transcripts"] = true

	records := []contract.VectorRecord{{ID: "id1", Embedding: []float32{1, 0, 0, 0}}}
	err := mem.Upsert(context.Background(), "acme:prod:transcripts", records)
	require.NoError(t, err)
}

func TestUpsert_CreateCollectionErrorPropagates(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{}},
		createErr: errors.New("qdrant unreachable"),
	}
	mem := NewWithClients(&mockPoints{}, cols, 4, nil)

	records := []contract.VectorRecord{{ID: "id1", Embedding: []float32{1, 0, 0, 0}}}
	err := mem.Upsert(context.Background(), "acme:prod:transcripts", records)
	assert.Error(t, err)
}

func TestUpsert_UpsertRPCErrorPropagates(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{{Name: "acme__prod__transcripts"}}}}
	pts := &mockPoints{upsertErr: errors.New("deadline exceeded")}
	mem := NewWithClients(pts, cols, 4, nil)

	records := []contract.VectorRecord{{ID: "id1", Embedding: []float32{1, 0, 0, 0}}}
	err := mem.Upsert(context.Background(), "acme:prod:transcripts", records)
	assert.Error(t, err)
}

func TestQuery_UnknownNamespaceReturnsEmptyNotError(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{}}}
	mem := NewWithClients(&mockPoints{}, cols, 4, nil)

	results, err := mem.Query(context.Background(), "never:seen:namespace", []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_ReturnsRankedResultsWithDecodedPayload(t *testing.T) {
	cols := &mockCollections{}
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "11111111-1111-1111-1111-111111111111"}},
					Score: 0.87,
					Payload: map[string]*pb.Value{
						"topic": {Kind: &pb.Value_StringValue{StringValue: "sports"}},
						"count": {Kind: &pb.Value_IntegerValue{IntegerValue: 3}},
					},
				},
			},
		},
	}
	mem := NewWithClients(pts, cols, 4, nil)
	mem.ensured["acme__prod__transcripts"] = true

	results, err := mem.Query(context.Background(), "acme:prod:transcripts", []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", results[0].ID)
	assert.InDelta(t, 0.87, results[0].Score, 0.0001)
	assert.Equal(t, "sports", results[0].Payload["topic"])
	assert.EqualValues(t, 3, results[0].Payload["count"])
}

func TestQuery_SearchRPCErrorPropagates(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("rpc fail")}
	mem := NewWithClients(pts, &mockCollections{}, 4, nil)
	mem.ensured["acme__prod__transcripts"] = true

	_, err := mem.Query(context.Background(), "acme:prod:transcripts", []float32{1, 0, 0, 0}, 5)
	assert.Error(t, err)
}

func TestEncodeDecodePayload_RoundTripsKnownTypes(t *testing.T) {
	payload := map[string]interface{}{
		"str":   "hello",
		"i":     int(7),
		"i64":   int64(8),
		"f32":   float32(1.5),
		"f64":   float64(2.5),
		"b":     true,
		"other": []int{1, 2},
	}
	encoded := encodePayload(payload)
	decoded := decodePayload(encoded)

	assert.Equal(t, "hello", decoded["str"])
	assert.EqualValues(t, 7, decoded["i"])
	assert.EqualValues(t, 8, decoded["i64"])
	assert.InDelta(t, 1.5, decoded["f32"], 0.0001)
	assert.InDelta(t, 2.5, decoded["f64"], 0.0001)
	assert.Equal(t, true, decoded["b"])
	assert.Equal(t, "[1 2]", decoded["other"])
}

func TestClose_NoConnectionIsNoop(t *testing.T) {
	mem := NewWithClients(&mockPoints{}, &mockCollections{}, 4, nil)
	assert.NoError(t, mem.Close())
}
