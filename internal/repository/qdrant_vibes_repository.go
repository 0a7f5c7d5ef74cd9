package repository

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/vibeerrors"
)

// Point ids are UUIDv5 of the uid in this namespace, so a uid always maps to the same point.
var vibePointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://quackform.dev/vibes"))

// Payload keys.
const (
	payloadUID            = "uid"
	payloadOriginalText   = "original_vibe"
	payloadNormalizedText = "vibe"
	payloadEmbeddingModel = "embedding_model"
	payloadCreatedAt      = "created_at"
	payloadUpdatedAt      = "updated_at"
)

// QdrantConfig holds the connection settings for the Qdrant backend.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	// APIKey enables TLS and is sent as the api-key header (Qdrant Cloud).
	APIKey    string
	Dimension int
	// HnswEf is the search-time recall knob; 0 leaves the collection default.
	HnswEf int
}

// QdrantVibesRepository stores vibes as points in a Qdrant collection (cosine distance).
type QdrantVibesRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
	hnswEf      int
	now         func() time.Time
	tracer      trace.Tracer
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context, method string, req, reply any, cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker, opts ...grpc.CallOption,
	) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// NewQdrantVibesRepository opens a gRPC client for cfg. The connection is lazy; call
// EnsureCollection to verify it.
func NewQdrantVibesRepository(cfg QdrantConfig) (*QdrantVibesRepository, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", cfg.Dimension)
	}

	var opts []grpc.DialOption

	if cfg.APIKey != "" {
		opts = append(opts,
			grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})),
			grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)),
		)
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantVibesRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
		hnswEf:      cfg.HnswEf,
		now:         time.Now,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// Close closes the gRPC connection.
func (r *QdrantVibesRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection and its payload indexes when missing, and fails when an
// existing collection has a different vector size.
func (r *QdrantVibesRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: r.collection})
	if err == nil {
		if size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size > 0 &&
			size != uint64(r.dimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collection, size, r.dimension)
		}

		return nil
	}

	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("get collection %s: %w", r.collection, err)
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(r.dimension), Distance: pb.Distance_Cosine},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:           ptr(uint64(16)),
			EfConstruct: ptr(uint64(128)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := map[string]pb.FieldType{
		payloadUpdatedAt:      pb.FieldType_FieldTypeInteger,
		payloadEmbeddingModel: pb.FieldType_FieldTypeKeyword,
	}
	for field, fieldType := range indexes {
		_, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collection,
			FieldName:      field,
			FieldType:      ptr(fieldType),
			Wait:           ptr(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create %s index: %w", field, err)
		}
	}

	return nil
}

// Upsert writes the point for vibe.UID, keeping created_at from the existing point if any.
func (r *QdrantVibesRepository) Upsert(ctx context.Context, vibe models.VibeUpsert) error {
	ctx, span := startStoreSpan(ctx, r.tracer, "upsert", "qdrant")
	defer span.End()

	now := r.now().UTC()
	createdAt := now

	existing, err := r.retrieve(ctx, vibe.UID)
	if err != nil {
		return spanError(span, vibeerrors.NewStoreError("upsert", vibe.UID, err))
	}

	if existing != nil && existing.CreatedAt != nil {
		createdAt = *existing.CreatedAt
	}

	_, err = r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           ptr(true),
		Points: []*pb.PointStruct{{
			Id: pointID(vibe.UID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vibe.Embedding}},
			},
			Payload: vibePayload(vibe, createdAt, now),
		}},
	})
	if err != nil {
		return spanError(span, vibeerrors.NewStoreError("upsert", vibe.UID, err))
	}

	return nil
}

// Get returns the vibe for uid. The embedding is not loaded.
func (r *QdrantVibesRepository) Get(ctx context.Context, uid string) (*models.Vibe, error) {
	v, err := r.retrieve(ctx, uid)
	if err != nil {
		return nil, vibeerrors.NewStoreError("get", uid, err)
	}

	if v == nil {
		return nil, vibeerrors.NewNotFoundError("vibe", fmt.Sprintf("no vibe stored for uid %q", uid))
	}

	return v, nil
}

func (r *QdrantVibesRepository) retrieve(ctx context.Context, uid string) (*models.Vibe, error) {
	resp, err := r.points.Get(ctx, &pb.GetPoints{
		CollectionName: r.collection,
		Ids:            []*pb.PointId{pointID(uid)},
		WithPayload:    payloadEnabled(),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.GetResult()) == 0 {
		return nil, nil //nolint:nilnil // absent point
	}

	v := vibeFromPayload(resp.GetResult()[0].GetPayload())

	return &v, nil
}

// List returns up to limit vibes ordered by updated_at descending.
func (r *QdrantVibesRepository) List(ctx context.Context, limit int) ([]models.Vibe, error) {
	resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: r.collection,
		Limit:          ptr(uint32(limit)), //nolint:gosec // limit is validated by the service
		WithPayload:    payloadEnabled(),
		OrderBy: &pb.OrderBy{
			Key:       payloadUpdatedAt,
			Direction: ptr(pb.Direction_Desc),
		},
	})
	if err != nil {
		return nil, vibeerrors.NewStoreError("list", "", err)
	}

	vibes := make([]models.Vibe, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		vibes = append(vibes, vibeFromPayload(p.GetPayload()))
	}

	return vibes, nil
}

// Nearest returns up to limit vibes in ascending cosine distance (1 - score) to query.
func (r *QdrantVibesRepository) Nearest(ctx context.Context, query []float32, limit int) ([]models.VibeCandidate, error) {
	ctx, span := startStoreSpan(ctx, r.tracer, "nearest", "qdrant")
	defer span.End()

	span.SetAttributes(attribute.Int("vibes.limit", limit), attribute.Int("vibes.hnsw_ef", r.hnswEf))

	req := &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         query,
		Limit:          uint64(max(limit, 0)),
		WithPayload:    payloadEnabled(),
	}
	if r.hnswEf > 0 {
		req.Params = &pb.SearchParams{HnswEf: ptr(uint64(r.hnswEf))}
	}

	resp, err := r.points.Search(ctx, req)
	if err != nil {
		return nil, spanError(span, vibeerrors.NewStoreError("nearest", "", err))
	}

	candidates := make([]models.VibeCandidate, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		candidates = append(candidates, models.VibeCandidate{
			Vibe:     vibeFromPayload(scored.GetPayload()),
			Distance: 1 - float64(scored.GetScore()),
		})
	}

	span.SetAttributes(attribute.Int("vibes.candidates", len(candidates)))

	return candidates, nil
}

// Wipe deletes every point in the collection.
func (r *QdrantVibesRepository) Wipe(ctx context.Context) (int64, error) {
	count, err := r.points.Count(ctx, &pb.CountPoints{CollectionName: r.collection, Exact: ptr(true)})
	if err != nil {
		return 0, vibeerrors.NewStoreError("wipe", "", fmt.Errorf("count points: %w", err))
	}

	_, err = r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           ptr(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: &pb.Filter{}},
		},
	})
	if err != nil {
		return 0, vibeerrors.NewStoreError("wipe", "", err)
	}

	return int64(count.GetResult().GetCount()), nil //nolint:gosec // point counts fit in int64
}

// ListStale returns up to limit uids whose embedding_model differs from model.
func (r *QdrantVibesRepository) ListStale(ctx context.Context, model string, limit int) ([]string, error) {
	resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: r.collection,
		Filter:         staleFilter(model),
		Limit:          ptr(uint32(limit)), //nolint:gosec // limit is bounded by the caller
		WithPayload:    payloadEnabled(),
	})
	if err != nil {
		return nil, vibeerrors.NewStoreError("list_stale", "", err)
	}

	uids := make([]string, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		if uid := p.GetPayload()[payloadUID].GetStringValue(); uid != "" {
			uids = append(uids, uid)
		}
	}

	return uids, nil
}

func staleFilter(model string) *pb.Filter {
	return &pb.Filter{
		MustNot: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   payloadEmbeddingModel,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: model}},
				},
			},
		}},
	}
}

func pointID(uid string) *pb.PointId {
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(vibePointNamespace, []byte(uid)).String()},
	}
}

func vibePayload(vibe models.VibeUpsert, createdAt, updatedAt time.Time) map[string]*pb.Value {
	return map[string]*pb.Value{
		payloadUID:            stringValue(vibe.UID),
		payloadOriginalText:   stringValue(vibe.OriginalText),
		payloadNormalizedText: stringValue(vibe.NormalizedText),
		payloadEmbeddingModel: stringValue(vibe.EmbeddingModel),
		payloadCreatedAt:      {Kind: &pb.Value_IntegerValue{IntegerValue: createdAt.UnixMilli()}},
		payloadUpdatedAt:      {Kind: &pb.Value_IntegerValue{IntegerValue: updatedAt.UnixMilli()}},
	}
}

func vibeFromPayload(payload map[string]*pb.Value) models.Vibe {
	return models.Vibe{
		UID:            payload[payloadUID].GetStringValue(),
		OriginalText:   payload[payloadOriginalText].GetStringValue(),
		NormalizedText: payload[payloadNormalizedText].GetStringValue(),
		EmbeddingModel: payload[payloadEmbeddingModel].GetStringValue(),
		CreatedAt:      millisValue(payload[payloadCreatedAt]),
		UpdatedAt:      millisValue(payload[payloadUpdatedAt]),
	}
}

func millisValue(v *pb.Value) *time.Time {
	if _, ok := v.GetKind().(*pb.Value_IntegerValue); !ok {
		return nil
	}

	t := time.UnixMilli(v.GetIntegerValue()).UTC()

	return &t
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func payloadEnabled() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func ptr[T any](v T) *T {
	return &v
}

// ErrQdrantUnavailable is returned by health checks when the collection cannot be read.
var ErrQdrantUnavailable = errors.New("qdrant collection unavailable")

// Ping checks that the collection is reachable.
func (r *QdrantVibesRepository) Ping(ctx context.Context) error {
	if _, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: r.collection}); err != nil {
		return fmt.Errorf("%w: %w", ErrQdrantUnavailable, err)
	}

	return nil
}
