// Package qdrant implements vector.Store on Qdrant's gRPC API.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	apiKey      string
	vectorName  string
}

var _ vector.Store = (*Store)(nil)

// New dials Qdrant. rawURL may be a bare host:port or an http(s) URL;
// https selects TLS. vectorName, when set, addresses a named vector.
func New(rawURL, apiKey, vectorName string) (*Store, error) {
	target, secure, err := dialTarget(rawURL)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to dial qdrant %s: %w", target, err)
	}

	logger.Info("Qdrant client initialized",
		zap.String("target", target),
		zap.Bool("tls", secure),
		zap.String("vector_name", vectorName),
	)

	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), apiKey, vectorName)
	s.conn = conn
	return s, nil
}

// NewWithClients builds a Store over existing gRPC clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, apiKey, vectorName string) *Store {
	return &Store{
		points:      points,
		collections: collections,
		apiKey:      apiKey,
		vectorName:  vectorName,
	}
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) withAuth(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

func (s *Store) EnsureCollection(ctx context.Context, collection string, dim int, keywordFields ...string) error {
	ctx = s.withAuth(ctx)

	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return nil
		}
	}

	params := &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine}
	cfg := &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: params}}
	if s.vectorName != "" {
		cfg = &pb.VectorsConfig{Config: &pb.VectorsConfig_ParamsMap{
			ParamsMap: &pb.VectorParamsMap{Map: map[string]*pb.VectorParams{s.vectorName: params}},
		}}
	}

	if _, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig:  cfg,
	}); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}

	wait := true
	for _, field := range keywordFields {
		if _, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: collection,
			Wait:           &wait,
			FieldName:      field,
			FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			return fmt.Errorf("failed to index %s.%s: %w", collection, field, err)
		}
	}

	logger.Info("Qdrant collection created",
		zap.String("collection", collection),
		zap.Int("dim", dim),
		zap.Strings("indexed_fields", keywordFields),
	)
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, p vector.Point) error {
	wait := true
	_, err := s.points.Upsert(s.withAuth(ctx), &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: s.vectors(p.Vector),
			Payload: encodePayload(p.Payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert into %s: %v", domain.ErrWriteFailure, collection, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, query []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	if k <= 0 {
		return []vector.Hit{}, nil
	}

	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         buildFilter(filter),
	}
	if s.vectorName != "" {
		name := s.vectorName
		req.VectorName = &name
	}

	resp, err := s.points.Search(s.withAuth(ctx), req)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", domain.ErrSearchFailure, collection, err)
	}

	hits := make([]vector.Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		hits = append(hits, vector.Hit{
			ID:      pointID(r.GetId()),
			Score:   r.GetScore(),
			Payload: decodePayload(r.GetPayload()),
		})
	}
	return hits, nil
}

func (s *Store) Scroll(ctx context.Context, collection string, limit int) ([]vector.Payload, error) {
	if limit <= 0 {
		return []vector.Payload{}, nil
	}

	n := uint32(limit)
	resp, err := s.points.Scroll(s.withAuth(ctx), &pb.ScrollPoints{
		CollectionName: collection,
		Limit:          &n,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scroll %s: %v", domain.ErrSearchFailure, collection, err)
	}

	out := make([]vector.Payload, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, decodePayload(r.GetPayload()))
	}
	return out, nil
}

func (s *Store) vectors(v []float32) *pb.Vectors {
	if s.vectorName == "" {
		return &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: v}}}
	}
	return &pb.Vectors{VectorsOptions: &pb.Vectors_Vectors{
		Vectors: &pb.NamedVectors{Vectors: map[string]*pb.Vector{s.vectorName: {Data: v}}},
	}}
}

func buildFilter(f vector.Filter) *pb.Filter {
	if len(f) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(f))
	for k, v := range f {
		must = append(must, fieldMatch(k, v))
	}
	return &pb.Filter{Must: must}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}

func encodePayload(p vector.Payload) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(p))
	for k, val := range p {
		switch tv := val.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
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

func decodePayload(p map[string]*pb.Value) vector.Payload {
	out := make(vector.Payload, len(p))
	for k, v := range p {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		case *pb.Value_NullValue:
			out[k] = nil
		default:
			out[k] = v.String()
		}
	}
	return out
}

// dialTarget turns QDRANT_URL into a gRPC target. REST port 6333 is
// mapped to the gRPC port 6334.
func dialTarget(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("qdrant url is empty")
	}
	if !strings.Contains(raw, "://") {
		return raw, false, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid qdrant url %q: %w", raw, err)
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" || port == "6333" {
		port = "6334"
	}
	return host + ":" + port, u.Scheme == "https", nil
}
