package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/FalkorDB/falkordb-go/v2"
	"github.com/google/uuid"

	"github.com/moolen/faultline/internal/logging"
)

// FalkorConfig holds configuration for the FalkorDB-backed index.
type FalkorConfig struct {
	Host         string        // FalkorDB host
	Port         int           // FalkorDB port
	Password     string        // optional password
	GraphName    string        // graph holding the Chunk nodes
	MaxRetries   int           // max connection retries
	DialTimeout  time.Duration // connection timeout
	QueryTimeout time.Duration // per-query timeout, 0 disables
	PoolSize     int           // connection pool size
}

// DefaultFalkorConfig returns default configuration
func DefaultFalkorConfig() FalkorConfig {
	return FalkorConfig{
		Host:         "localhost",
		Port:         6379,
		GraphName:    "faultline",
		MaxRetries:   3,
		DialTimeout:  10 * time.Second,
		QueryTimeout: 30 * time.Second,
		PoolSize:     10,
	}
}

// Query templates. Similarity is 1 - cosine distance.
const (
	falkorCreateChunk = "CREATE (:Chunk {id: $id, collection: $collection, text: $text, payload: $payload, embedding: vecf32($embedding)})"
	falkorSearch      = "MATCH (c:Chunk {collection: $collection}) " +
		"WITH c, vec.cosineDistance(c.embedding, vecf32($query)) AS distance " +
		"RETURN c.text, c.payload, distance ORDER BY distance ASC LIMIT $k"
)

// FalkorIndex stores chunks as :Chunk nodes carrying a vecf32 embedding.
type FalkorIndex struct {
	config   FalkorConfig
	embedder Embedder
	logger   *logging.Logger
	db       *falkordb.FalkorDB
	graph    *falkordb.Graph
}

// NewFalkorIndex creates an unconnected index. Call Start (or Connect) before use.
func NewFalkorIndex(config FalkorConfig, embedder Embedder) *FalkorIndex {
	return &FalkorIndex{
		config:   config,
		embedder: embedder,
		logger:   logging.GetLogger("vectorindex.falkordb"),
	}
}

// Name implements lifecycle.Component.
func (f *FalkorIndex) Name() string {
	return "vectorindex.falkordb"
}

// Start connects and creates the collection index.
func (f *FalkorIndex) Start(ctx context.Context) error {
	if err := f.Connect(ctx); err != nil {
		return err
	}
	return f.InitializeSchema(ctx)
}

// Stop closes the connection.
func (f *FalkorIndex) Stop(ctx context.Context) error {
	return f.Close()
}

// Connect establishes connection to FalkorDB
func (f *FalkorIndex) Connect(ctx context.Context) error {
	f.logger.Info("Connecting to FalkorDB at %s:%d (graph: %s)", f.config.Host, f.config.Port, f.config.GraphName)

	// falkordb.ConnectionOption is an alias for redis.Options
	db, err := falkordb.FalkorDBNew(&falkordb.ConnectionOption{
		Addr:        fmt.Sprintf("%s:%d", f.config.Host, f.config.Port),
		Password:    f.config.Password,
		DialTimeout: f.config.DialTimeout,
		PoolSize:    f.config.PoolSize,
		MaxRetries:  f.config.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to create FalkorDB client: %w", err)
	}
	f.db = db
	f.graph = db.SelectGraph(f.config.GraphName)

	if _, err := f.graph.Query("RETURN 1", nil, nil); err != nil {
		return fmt.Errorf("failed to reach FalkorDB: %w", err)
	}
	return nil
}

// Close closes the connection
func (f *FalkorIndex) Close() error {
	if f.db != nil && f.db.Conn != nil {
		return f.db.Conn.Close()
	}
	return nil
}

// InitializeSchema creates the range index on Chunk.collection.
func (f *FalkorIndex) InitializeSchema(ctx context.Context) error {
	if _, err := f.query("CREATE INDEX FOR (c:Chunk) ON (c.collection)", nil); err != nil {
		// FalkorDB returns an error when the index already exists
		f.logger.Debug("Failed to create collection index (may already exist): %v", err)
	}
	return nil
}

// Index implements Index.
func (f *FalkorIndex) Index(ctx context.Context, text, collection string, payload map[string]string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	vec, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	payloadJSON, err := encodePayload(payload)
	if err != nil {
		return err
	}

	_, err = f.query(falkorCreateChunk, map[string]interface{}{
		"id":         uuid.NewString(),
		"collection": collection,
		"text":       text,
		"payload":    payloadJSON,
		"embedding":  vectorParam(vec),
	})
	if err != nil {
		return fmt.Errorf("index chunk: %w", err)
	}
	return nil
}

// Search implements Index.
func (f *FalkorIndex) Search(ctx context.Context, query, collection string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyText
	}
	if k <= 0 {
		return nil, nil
	}
	vec, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	result, err := f.query(falkorSearch, map[string]interface{}{
		"collection": collection,
		"query":      vectorParam(vec),
		"k":          k,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	var hits []Hit
	for result.Next() {
		hit, err := parseHitRow(result.Record().Values())
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (f *FalkorIndex) query(q string, params map[string]interface{}) (*falkordb.QueryResult, error) {
	if f.graph == nil {
		return nil, fmt.Errorf("client not connected")
	}
	var options *falkordb.QueryOptions
	if f.config.QueryTimeout > 0 {
		options = falkordb.NewQueryOptions().SetTimeout(int(f.config.QueryTimeout.Milliseconds()))
	}
	return f.graph.Query(q, params, options)
}

// vectorParam converts an embedding into a list parameter.
func vectorParam(vec []float32) []interface{} {
	out := make([]interface{}, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func encodePayload(payload map[string]string) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(data), nil
}

// parseHitRow decodes a [text, payload, distance] row.
func parseHitRow(row []interface{}) (Hit, error) {
	if len(row) != 3 {
		return Hit{}, fmt.Errorf("unexpected row width %d", len(row))
	}
	text, _ := row[0].(string)

	var payload map[string]string
	if raw, _ := row[1].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Hit{}, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	var distance float64
	switch d := row[2].(type) {
	case float64:
		distance = d
	case float32:
		distance = float64(d)
	case int64:
		distance = float64(d)
	default:
		return Hit{}, fmt.Errorf("unexpected distance type %T", row[2])
	}

	return Hit{Text: text, Payload: payload, Score: clamp01(1 - distance)}, nil
}
