package singlevec

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"doodledoc/internal/errs"
	"doodledoc/internal/model"
)

// regionIDField stores the original "{doc_id}:{page_num}:{region}" key in
// the point payload; Qdrant point IDs must be UUIDs or positive integers.
const regionIDField = "_region_key"

// QdrantIndex is an optional C2 backend for corpora too large for a
// comfortable flat scan. It satisfies the same Index contract as
// FlatIndex, backed by a Qdrant collection over gRPC.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrantIndex connects to a Qdrant instance at dsn (e.g.
// "http://localhost:6334?api_key=...") and ensures the collection exists
// with the given vector dimension, using inner-product (dot) distance to
// match C2's cosine-via-normalized-inner-product contract.
func NewQdrantIndex(dsn, collection string, dim int) (*QdrantIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	qi := &QdrantIndex{client: client, collection: collection, dim: dim}
	if err := qi.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return qi, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dim <= 0 {
		return fmt.Errorf("qdrant requires a known vector dimension")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Dot,
		}),
	})
}

func (q *QdrantIndex) Dimension() int { return q.dim }

func (q *QdrantIndex) Size() int {
	info, err := q.client.GetCollectionInfo(context.Background(), q.collection)
	if err != nil || info == nil || info.PointsCount == nil {
		return 0
	}
	return int(*info.PointsCount)
}

func (q *QdrantIndex) Add(ctx context.Context, vectors [][]float32, metadata []Record) error {
	if len(vectors) != len(metadata) {
		return &errs.InputError{Msg: "vectors and metadata length mismatch"}
	}
	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for i, v := range vectors {
		if q.dim != 0 && len(v) != q.dim {
			return &errs.DimensionMismatchError{Expected: q.dim, Got: len(v)}
		}
		key := regionKey(metadata[i])
		pointUUID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
		vec := make([]float32, len(v))
		copy(vec, v)
		payload := qdrant.NewValueMap(map[string]any{
			"doc_id":      metadata[i].DocID,
			"page_num":    metadata[i].PageNum,
			"region":      string(metadata[i].Region),
			regionIDField: key,
		})
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	return err
}

func (q *QdrantIndex) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(results))
	for _, r := range results {
		rec := Record{}
		if r.Payload != nil {
			if v, ok := r.Payload["doc_id"]; ok {
				rec.DocID = v.GetStringValue()
			}
			if v, ok := r.Payload["page_num"]; ok {
				rec.PageNum = int(v.GetIntegerValue())
			}
			if v, ok := r.Payload["region"]; ok {
				rec.Region = model.Region(v.GetStringValue())
			}
		}
		out = append(out, Hit{Record: rec, Score: float64(r.Score)})
	}
	return out, nil
}

func (q *QdrantIndex) RemoveByDocID(ctx context.Context, docID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("doc_id", docID)},
		}),
	})
	return err
}

// Save and Load are no-ops for the Qdrant backend: the collection is the
// durable store. They exist to satisfy the Index interface uniformly.
func (q *QdrantIndex) Save(string) error { return nil }
func (q *QdrantIndex) Load(string) error { return nil }

func (q *QdrantIndex) Close() error { return q.client.Close() }

func regionKey(r Record) string {
	return fmt.Sprintf("%s:%d:%s", r.DocID, r.PageNum, r.Region)
}
