// Package vectorindex provides a minimal REST client to Qdrant. Each
// persona's knowledge lives in its own collection (cosine distance),
// created lazily and dropped wholesale on replacement.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/parley-labs/parley/internal/domain"
)

// UpsertBatchSize bounds the number of points per upsert request.
const UpsertBatchSize = 100

type QdrantIndex struct {
	url    string
	apiKey string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewQdrantIndex(cfg Config) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection if it does not exist. Idempotent.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, namespace string, dimensions int) error {
	if dimensions <= 0 {
		return domain.NewVectorIndexError("create", fmt.Errorf("invalid dimensions: %d", dimensions))
	}

	status, err := q.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", q.url, namespace), nil, nil)
	if err != nil {
		return domain.NewVectorIndexError("get", err)
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	status, err = q.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", q.url, namespace), body, nil)
	if err != nil {
		return domain.NewVectorIndexError("create", err)
	}
	if status >= 300 {
		return domain.NewVectorIndexError("create", fmt.Errorf("unexpected status %d", status))
	}
	log.Printf("created vector collection %q (dim=%d)", namespace, dimensions)
	return nil
}

// Upsert writes embedded chunks into the namespace in batches. The
// collection is ensured first; a batch either fully succeeds or fails as
// a whole per Qdrant's guarantee.
func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := q.EnsureCollection(ctx, namespace, len(chunks[0].Vector)); err != nil {
		return err
	}

	for offset := 0; offset < len(chunks); offset += UpsertBatchSize {
		end := offset + UpsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		points := make([]map[string]any, 0, end-offset)
		for _, c := range chunks[offset:end] {
			points = append(points, map[string]any{
				"id":     uuid.NewString(),
				"vector": c.Vector,
				"payload": map[string]any{
					"persona_id": c.PersonaID,
					"ordinal":    c.Ordinal,
					"text":       c.Text,
				},
			})
		}

		body := map[string]any{"points": points}
		status, err := q.do(ctx, http.MethodPut,
			fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, namespace), body, nil)
		if err != nil {
			return domain.NewVectorIndexError("upsert", err)
		}
		if status >= 300 {
			return domain.NewVectorIndexError("upsert", fmt.Errorf("unexpected status %d", status))
		}
	}

	log.Printf("upserted %d points into %q", len(chunks), namespace)
	return nil
}

// Search returns at most topK hits ordered by descending score. A missing
// or empty collection yields an empty result, never an error: callers treat
// "no results" as "no grounding".
func (q *QdrantIndex) Search(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 3
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	status, err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", q.url, namespace), body, &resp)
	if err != nil {
		return nil, domain.NewVectorIndexError("search", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status >= 300 {
		return nil, domain.NewVectorIndexError("search", fmt.Errorf("unexpected status %d", status))
	}

	results := make([]domain.RetrievedChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		text, _ := r.Payload["text"].(string)
		results = append(results, domain.RetrievedChunk{Text: text, Score: r.Score})
	}
	return results, nil
}

// DeleteCollection drops the namespace. Deletion is often invoked
// speculatively before re-ingestion, so a missing collection is logged
// and treated as success; any other failure is an error, because a
// delete that silently fails would let stale chunks survive a
// knowledge replacement.
func (q *QdrantIndex) DeleteCollection(ctx context.Context, namespace string) error {
	status, err := q.do(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", q.url, namespace), nil, nil)
	if err != nil {
		return domain.NewVectorIndexError("delete", err)
	}
	if status == http.StatusNotFound {
		log.Printf("collection %q already absent, nothing to delete", namespace)
		return nil
	}
	if status >= 300 {
		return domain.NewVectorIndexError("delete", fmt.Errorf("unexpected status %d", status))
	}
	return nil
}

// ListCollections returns the names of all collections in the index.
func (q *QdrantIndex) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}

	status, err := q.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections", q.url), nil, &resp)
	if err != nil {
		return nil, domain.NewVectorIndexError("list", err)
	}
	if status >= 300 {
		return nil, domain.NewVectorIndexError("list", fmt.Errorf("unexpected status %d", status))
	}

	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

// do sends one JSON request and decodes the response into out when the
// status is 2xx. Non-2xx statuses are returned to the caller, not turned
// into errors, because several operations treat 404 as a normal outcome.
func (q *QdrantIndex) do(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
