package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/parley-labs/parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant records requests and serves canned collection state.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]bool
	requests    []string
	upserts     []int // points per upsert request
	searchHits  []map[string]any
	apiKeys     []string
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]bool{}}
}

func (f *fakeQdrant) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/collections", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		names := make([]map[string]string, 0)
		f.mu.Lock()
		for name := range f.collections {
			names = append(names, map[string]string{"name": name})
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"collections": names},
		})
	})

	mux.HandleFunc("/collections/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		name := r.URL.Path[len("/collections/"):]

		switch {
		case r.Method == http.MethodGet:
			f.mu.Lock()
			exists := f.collections[name]
			f.mu.Unlock()
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut && !isPointsPath(name):
			f.mu.Lock()
			f.collections[name] = true
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodDelete:
			f.mu.Lock()
			exists := f.collections[name]
			delete(f.collections, name)
			f.mu.Unlock()
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	})

	return mux
}

func isPointsPath(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return true
		}
	}
	return false
}

func (f *fakeQdrant) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
}

func TestQdrantIndex_EnsureCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a missing collection", func(t *testing.T) {
		fake := newFakeQdrant()
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		err := index.EnsureCollection(ctx, "persona_p1", 3)
		require.NoError(t, err)
		assert.True(t, fake.collections["persona_p1"])
		assert.Contains(t, fake.requests, "GET /collections/persona_p1")
		assert.Contains(t, fake.requests, "PUT /collections/persona_p1")
	})

	t.Run("existing collection is left alone", func(t *testing.T) {
		fake := newFakeQdrant()
		fake.collections["persona_p1"] = true
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		err := index.EnsureCollection(ctx, "persona_p1", 3)
		require.NoError(t, err)
		assert.NotContains(t, fake.requests, "PUT /collections/persona_p1")
	})

	t.Run("rejects invalid dimensions", func(t *testing.T) {
		index := NewQdrantIndex(Config{URL: "http://unused"})

		err := index.EnsureCollection(ctx, "persona_p1", 0)
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeVectorIndex, domainErr.Code)
	})
}

func TestQdrantIndex_Upsert(t *testing.T) {
	ctx := context.Background()

	newUpsertServer := func(fake *fakeQdrant) *httptest.Server {
		mux := http.NewServeMux()
		mux.Handle("/collections", fake.handler())
		mux.HandleFunc("/collections/", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut && isPointsPath(r.URL.Path[len("/collections/"):]) {
				fake.record(r)
				var body struct {
					Points []json.RawMessage `json:"points"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				fake.mu.Lock()
				fake.upserts = append(fake.upserts, len(body.Points))
				fake.mu.Unlock()
				w.WriteHeader(http.StatusOK)
				return
			}
			fake.handler().ServeHTTP(w, r)
		})
		return httptest.NewServer(mux)
	}

	makeChunks := func(n int) []domain.EmbeddedChunk {
		chunks := make([]domain.EmbeddedChunk, n)
		for i := range chunks {
			chunks[i] = domain.EmbeddedChunk{
				Text:      fmt.Sprintf("chunk %d", i),
				Ordinal:   i,
				Vector:    []float32{0.1, 0.2, 0.3},
				PersonaID: "p1",
			}
		}
		return chunks
	}

	t.Run("ensures the collection and batches points", func(t *testing.T) {
		fake := newFakeQdrant()
		srv := newUpsertServer(fake)
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		err := index.Upsert(ctx, "persona_p1", makeChunks(250))
		require.NoError(t, err)

		assert.True(t, fake.collections["persona_p1"])
		assert.Equal(t, []int{100, 100, 50}, fake.upserts)
	})

	t.Run("no chunks is a no-op", func(t *testing.T) {
		fake := newFakeQdrant()
		srv := newUpsertServer(fake)
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		err := index.Upsert(ctx, "persona_p1", nil)
		require.NoError(t, err)
		assert.Empty(t, fake.requests)
	})
}

func TestQdrantIndex_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("returns scored hits with payload text", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/collections/persona_p1/points/search", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(3), body["limit"])
			assert.Equal(t, true, body["with_payload"])

			json.NewEncoder(w).Encode(map[string]any{
				"result": []map[string]any{
					{"score": 0.92, "payload": map[string]any{"text": "first fact"}},
					{"score": 0.81, "payload": map[string]any{"text": "second fact"}},
				},
			})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		results, err := index.Search(ctx, "persona_p1", []float32{0.1, 0.2}, 3)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first fact", results[0].Text)
		assert.InDelta(t, 0.92, results[0].Score, 0.001)
		assert.Equal(t, "second fact", results[1].Text)
	})

	t.Run("missing collection yields empty results", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		results, err := index.Search(ctx, "persona_missing", []float32{0.1}, 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("server error surfaces as vector index error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		_, err := index.Search(ctx, "persona_p1", []float32{0.1}, 3)
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeVectorIndex, domainErr.Code)
	})
}

func TestQdrantIndex_DeleteCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes an existing collection", func(t *testing.T) {
		fake := newFakeQdrant()
		fake.collections["persona_p1"] = true
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		err := index.DeleteCollection(ctx, "persona_p1")
		require.NoError(t, err)
		assert.False(t, fake.collections["persona_p1"])
	})

	t.Run("missing collection is treated as success", func(t *testing.T) {
		fake := newFakeQdrant()
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		err := index.DeleteCollection(ctx, "persona_missing")
		require.NoError(t, err)
	})

	t.Run("server error surfaces as vector index error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		index := NewQdrantIndex(Config{URL: srv.URL})

		err := index.DeleteCollection(ctx, "persona_p1")
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeVectorIndex, domainErr.Code)
	})
}

func TestQdrantIndex_ListCollections(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections["persona_p1"] = true
	fake.collections["persona_p2"] = true
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	index := NewQdrantIndex(Config{URL: srv.URL})

	names, err := index.ListCollections(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"persona_p1", "persona_p2"}, names)
}

func TestQdrantIndex_APIKeyHeader(t *testing.T) {
	fake := newFakeQdrant()
	fake.collections["persona_p1"] = true
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	index := NewQdrantIndex(Config{URL: srv.URL, APIKey: "secret"})

	err := index.EnsureCollection(context.Background(), "persona_p1", 3)
	require.NoError(t, err)
	require.NotEmpty(t, fake.apiKeys)
	assert.Equal(t, "secret", fake.apiKeys[0])
}
