// Package zilliz implements vector.Store on Milvus / Zilliz Cloud.
//
// Each logical collection maps to a Milvus collection with three fields:
// a varchar primary key, a float vector and a JSON payload.
package zilliz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

const (
	fieldID      = "id"
	fieldPayload = "payload"
	defaultField = "vector"
)

type Client struct {
	client      client.Client
	vectorField string
	indexType   string

	mu   sync.RWMutex
	dims map[string]int
}

var _ vector.Store = (*Client)(nil)

func NewClient(ctx context.Context, endpoint, apiKey, vectorName, indexType string) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("index_type", indexType),
	)

	return NewWithClient(c, vectorName, indexType), nil
}

// NewWithClient wraps an existing Milvus client.
func NewWithClient(c client.Client, vectorName, indexType string) *Client {
	field := vectorName
	if field == "" {
		field = defaultField
	}
	return &Client{
		client:      c,
		vectorField: field,
		indexType:   indexType,
		dims:        make(map[string]int),
	}
}

func (z *Client) Close() error {
	return z.client.Close()
}

func (z *Client) EnsureCollection(ctx context.Context, collection string, dim int, _ ...string) error {
	has, err := z.client.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", collection, err)
	}

	z.mu.Lock()
	z.dims[collection] = dim
	z.mu.Unlock()

	if has {
		logger.Info("Collection already exists", zap.String("collection", collection))
		return z.client.LoadCollection(ctx, collection, false)
	}

	schema := &entity.Schema{
		CollectionName: collection,
		Description:    "helpdesk " + collection,
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     z.vectorField,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldPayload,
				DataType: entity.FieldTypeJSON,
			},
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}

	idx, err := z.index()
	if err != nil {
		return err
	}
	if err := z.client.CreateIndex(ctx, collection, z.vectorField, idx, false); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", collection, err)
	}

	if err := z.client.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", collection, err)
	}

	logger.Info("Collection created and loaded",
		zap.String("collection", collection),
		zap.Int("dim", dim),
	)
	return nil
}

// checkDim rejects vectors whose length differs from the dimension the
// collection was ensured with. Collections not ensured by this client are
// left to the server.
func (z *Client) checkDim(collection string, n int) error {
	z.mu.RLock()
	dim, ok := z.dims[collection]
	z.mu.RUnlock()
	if ok && dim != n {
		return fmt.Errorf("collection %s expects %d dimensions, got %d", collection, dim, n)
	}
	return nil
}

func (z *Client) index() (entity.Index, error) {
	switch strings.ToUpper(z.indexType) {
	case "", "IVF_FLAT":
		return entity.NewIndexIvfFlat(entity.COSINE, 1024)
	case "HNSW":
		return entity.NewIndexHNSW(entity.COSINE, 16, 200)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(entity.COSINE)
	default:
		return nil, fmt.Errorf("unsupported milvus index type %q", z.indexType)
	}
}

func (z *Client) searchParam() (entity.SearchParam, error) {
	switch strings.ToUpper(z.indexType) {
	case "HNSW":
		return entity.NewIndexHNSWSearchParam(64)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEXSearchParam(1)
	default:
		return entity.NewIndexIvfFlatSearchParam(16)
	}
}

func (z *Client) Upsert(ctx context.Context, collection string, p vector.Point) error {
	if err := z.checkDim(collection, len(p.Vector)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailure, err)
	}

	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", domain.ErrWriteFailure, err)
	}

	_, err = z.client.Upsert(
		ctx,
		collection,
		"",
		entity.NewColumnVarChar(fieldID, []string{p.ID}),
		entity.NewColumnFloatVector(z.vectorField, len(p.Vector), [][]float32{p.Vector}),
		entity.NewColumnJSONBytes(fieldPayload, [][]byte{raw}),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert into %s: %v", domain.ErrWriteFailure, collection, err)
	}

	if err := z.client.Flush(ctx, collection, false); err != nil {
		return fmt.Errorf("%w: flush %s: %v", domain.ErrWriteFailure, collection, err)
	}

	return nil
}

func (z *Client) Search(ctx context.Context, collection string, query []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	if k <= 0 {
		return []vector.Hit{}, nil
	}
	if err := z.checkDim(collection, len(query)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchFailure, err)
	}

	sp, err := z.searchParam()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchFailure, err)
	}

	results, err := z.client.Search(
		ctx,
		collection,
		[]string{},
		filterExpr(filter),
		[]string{fieldID, fieldPayload},
		[]entity.Vector{entity.FloatVector(query)},
		z.vectorField,
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", domain.ErrSearchFailure, collection, err)
	}

	hits := make([]vector.Hit, 0, k)
	for _, sr := range results {
		idCol := sr.Fields.GetColumn(fieldID)
		payloadCol := sr.Fields.GetColumn(fieldPayload)
		for i := 0; i < sr.ResultCount; i++ {
			hit := vector.Hit{Score: sr.Scores[i], Payload: vector.Payload{}}
			if idCol != nil {
				if id, err := idCol.GetAsString(i); err == nil {
					hit.ID = id
				}
			}
			if payloadCol != nil {
				hit.Payload = decodePayload(payloadCol, i)
			}
			hits = append(hits, hit)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}

	logger.Debug("Vector search completed",
		zap.String("collection", collection),
		zap.Int("topK", k),
		zap.Int("results", len(hits)),
	)
	return hits, nil
}

func (z *Client) Scroll(ctx context.Context, collection string, limit int) ([]vector.Payload, error) {
	if limit <= 0 {
		return []vector.Payload{}, nil
	}

	rs, err := z.client.Query(
		ctx,
		collection,
		nil,
		fieldID+` != ""`,
		[]string{fieldPayload},
		client.WithLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", domain.ErrSearchFailure, collection, err)
	}

	col := rs.GetColumn(fieldPayload)
	if col == nil {
		return []vector.Payload{}, nil
	}

	out := make([]vector.Payload, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		out = append(out, decodePayload(col, i))
	}
	return out, nil
}

// filterExpr renders a Filter as a boolean expression over the JSON
// payload field.
func filterExpr(f vector.Filter) string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s[%s] == %s", fieldPayload, strconv.Quote(k), strconv.Quote(f[k])))
	}
	return strings.Join(parts, " && ")
}

func decodePayload(col entity.Column, i int) vector.Payload {
	v, err := col.Get(i)
	if err != nil {
		return vector.Payload{}
	}

	var raw []byte
	switch tv := v.(type) {
	case []byte:
		raw = tv
	case string:
		raw = []byte(tv)
	default:
		return vector.Payload{}
	}

	var p vector.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Warn("Skipping undecodable payload", zap.Error(err))
		return vector.Payload{}
	}
	return p
}
