package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the original deterministic chronicle ID in the
// point payload. Qdrant only accepts UUIDs or positive integers as point
// IDs, so non-UUID IDs (chronicle's "{session_id}_{type}_{seq}" scheme)
// are mapped through a deterministic UUID derived from the original ID.
const payloadIDField = "_original_id"

// Qdrant is a Backend backed by github.com/qdrant/go-client, grounded on
// the teacher's qdrant_vector.go adapter and extended with Get,
// GetWhere, Update, and Count.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrant dials dsn (e.g. "http://localhost:6334?api_key=...") and
// ensures collection exists with the given dimensionality and metric.
func NewQdrant(dsn, collection string, dimensions int, metric string) (*Qdrant, error) {
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
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
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

	q := &Qdrant{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

// pointID derives the UUID Qdrant requires from chronicle's deterministic
// string ID. Pure string IDs that already parse as UUIDs pass through
// unchanged.
func pointID(id string) (uuidStr string, isDerived bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

func (q *Qdrant) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]string) error {
	points := make([]*qdrant.PointStruct, 0, len(ids))
	for i, id := range ids {
		uuidStr, derived := pointID(id)

		var metadata map[string]string
		if i < len(metadatas) {
			metadata = metadatas[i]
		}
		payloadMap := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			payloadMap[k] = v
		}
		if derived {
			payloadMap[payloadIDField] = id
		}

		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payloadMap),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

func (q *Qdrant) Get(ctx context.Context, ids []string) ([]Record, error) {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		uuidStr, _ := pointID(id)
		pointIDs = append(pointIDs, qdrant.NewIDUUID(uuidStr))
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(points))
	for _, p := range points {
		out = append(out, recordFromPayload(p.Id, p.Payload))
	}
	return out, nil
}

func (q *Qdrant) GetWhere(ctx context.Context, filter map[string]string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	points, _, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         buildFilter(filter),
		Limit:          ptrUint32(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(points))
	for _, p := range points {
		out = append(out, recordFromPayload(p.Id, p.Payload))
	}
	return out, nil
}

func (q *Qdrant) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Record, error) {
	if k <= 0 {
		k = 10
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(hits))
	for _, hit := range hits {
		rec := recordFromPayload(hit.Id, hit.Payload)
		rec.Score = float64(hit.Score)
		out = append(out, rec)
	}
	return out, nil
}

func (q *Qdrant) Update(ctx context.Context, ids []string, metadatas []map[string]string) error {
	for i, id := range ids {
		uuidStr, _ := pointID(id)
		var metadata map[string]string
		if i < len(metadatas) {
			metadata = metadatas[i]
		}
		payloadMap := make(map[string]any, len(metadata))
		for k, v := range metadata {
			payloadMap[k] = v
		}
		_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: q.collection,
			Payload:        qdrant.NewValueMap(payloadMap),
			PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (q *Qdrant) Count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{CollectionName: q.collection})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (q *Qdrant) Close() error { return q.client.Close() }

func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}

func recordFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) Record {
	uuidStr := id.GetUuid()
	if uuidStr == "" {
		uuidStr = id.String()
	}
	metadata := make(map[string]string)
	originalID := ""
	for k, v := range payload {
		if k == payloadIDField {
			originalID = v.GetStringValue()
			continue
		}
		metadata[k] = v.GetStringValue()
	}
	recID := originalID
	if recID == "" {
		recID = uuidStr
	}
	return Record{ID: recID, Metadata: metadata}
}

func ptrUint32(v uint32) *uint32 { return &v }
