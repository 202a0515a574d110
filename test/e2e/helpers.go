//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parley-labs/parley/internal/api/handlers"
	"github.com/parley-labs/parley/internal/repository"
	"github.com/parley-labs/parley/internal/server"
	"github.com/parley-labs/parley/internal/service"
	"github.com/parley-labs/parley/internal/testutil"
	"github.com/parley-labs/parley/internal/vectorindex"
)

const stubDimensions = 16

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	Qdrant       *FakeQdrant
	QdrantServer *httptest.Server
	Server       *httptest.Server
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E environment: Postgres in a container, an
// in-process vector index, and the API server wired with deterministic
// embedding and generation stubs.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	qdrant := NewFakeQdrant()
	qdrantServer := httptest.NewServer(qdrant.Handler())

	index := vectorindex.NewQdrantIndex(vectorindex.Config{
		URL:     qdrantServer.URL,
		Timeout: 5 * time.Second,
	})

	personaRepo := repository.NewPersonaRepository(pool)
	messageRepo := repository.NewChatMessageRepository(pool)

	pipeline := service.NewEmbeddingPipeline(&StubEmbedder{}, 2)
	ingestSvc := service.NewIngestService(pipeline, index, service.ChunkConfig{
		MinWords:     5,
		MaxWords:     40,
		OverlapWords: 3,
	})
	chatSvc := service.NewChatService(pipeline, index, &StubGenerator{}, 3)
	personaSvc := service.NewPersonaService(personaRepo, ingestSvc)

	router := server.NewRouter(server.RouterConfig{
		PersonaHandler: handlers.NewPersonaHandler(personaSvc),
		ChatHandler:    handlers.NewChatHandler(chatSvc, personaRepo, messageRepo),
	})
	apiServer := httptest.NewServer(router)

	env := &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		Qdrant:       qdrant,
		QdrantServer: qdrantServer,
		Server:       apiServer,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
	}
	return env
}

// Cleanup tears down all E2E resources
func (env *E2ETestEnv) Cleanup() {
	env.Server.Close()
	env.QdrantServer.Close()
	env.Pool.Close()
	env.PostgresC.Terminate(env.Ctx)
}

// APIResponse mirrors the server's JSON envelope
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (env *E2ETestEnv) do(method, path string, body any) (*APIResponse, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var parsed APIResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("unmarshal %q: %w", string(raw), err)
		}
	}
	return &parsed, resp.StatusCode, nil
}

// Post sends a POST request to the API server
func (env *E2ETestEnv) Post(path string, body any) (*APIResponse, int, error) {
	return env.do(http.MethodPost, path, body)
}

// Get sends a GET request to the API server
func (env *E2ETestEnv) Get(path string) (*APIResponse, int, error) {
	return env.do(http.MethodGet, path, nil)
}

// Put sends a PUT request to the API server
func (env *E2ETestEnv) Put(path string, body any) (*APIResponse, int, error) {
	return env.do(http.MethodPut, path, body)
}

// Delete sends a DELETE request to the API server
func (env *E2ETestEnv) Delete(path string) (*APIResponse, int, error) {
	return env.do(http.MethodDelete, path, nil)
}

// StubEmbedder produces deterministic bag-of-words vectors so similar
// texts score high under cosine similarity without a real provider.
type StubEmbedder struct{}

func (s *StubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return EmbedText(text), nil
}

// EmbedText hashes each word into a fixed-size bucket histogram and
// normalizes to unit length.
func EmbedText(text string) []float32 {
	vector := make([]float32, stubDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vector[h.Sum32()%stubDimensions]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vector[0] = 1
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}

// StubGenerator echoes the knowledge section of the prompt so tests can
// assert which chunks reached generation.
type StubGenerator struct{}

func (s *StubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := strings.Index(prompt, "Knowledge:\n")
	end := strings.LastIndex(prompt, "\n\nUser:")
	if start == -1 || end == -1 || end <= start {
		return "malformed prompt", nil
	}
	return prompt[start+len("Knowledge:\n") : end], nil
}

// FakeQdrant is an in-memory vector store speaking just enough of the
// Qdrant REST API for the client in internal/vectorindex.
type FakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]fakePoint
}

type fakePoint struct {
	Vector  []float32
	Payload map[string]any
}

func NewFakeQdrant() *FakeQdrant {
	return &FakeQdrant{collections: map[string][]fakePoint{}}
}

// HasCollection reports whether a collection exists.
func (f *FakeQdrant) HasCollection(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok
}

// PointCount returns the number of stored points in a collection.
func (f *FakeQdrant) PointCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections[name])
}

func (f *FakeQdrant) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/collections", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		names := make([]map[string]string, 0, len(f.collections))
		for name := range f.collections {
			names = append(names, map[string]string{"name": name})
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"collections": names},
		})
	})

	mux.HandleFunc("/collections/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/collections/")
		parts := strings.Split(rest, "/")
		name := parts[0]

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			if !f.HasCollection(name) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)

		case len(parts) == 1 && r.Method == http.MethodPut:
			f.mu.Lock()
			if _, ok := f.collections[name]; !ok {
				f.collections[name] = []fakePoint{}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)

		case len(parts) == 1 && r.Method == http.MethodDelete:
			f.mu.Lock()
			_, existed := f.collections[name]
			delete(f.collections, name)
			f.mu.Unlock()
			if !existed {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)

		case len(parts) == 2 && parts[1] == "points" && r.Method == http.MethodPut:
			f.upsert(w, r, name)

		case len(parts) == 3 && parts[1] == "points" && parts[2] == "search" && r.Method == http.MethodPost:
			f.search(w, r, name)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	return mux
}

func (f *FakeQdrant) upsert(w http.ResponseWriter, r *http.Request, name string) {
	if !f.HasCollection(name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		Points []struct {
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	for _, p := range body.Points {
		f.collections[name] = append(f.collections[name], fakePoint{
			Vector:  p.Vector,
			Payload: p.Payload,
		})
	}
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *FakeQdrant) search(w http.ResponseWriter, r *http.Request, name string) {
	if !f.HasCollection(name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		Vector []float32 `json:"vector"`
		Limit  int       `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	type hit struct {
		Score   float32        `json:"score"`
		Payload map[string]any `json:"payload"`
	}

	f.mu.Lock()
	hits := make([]hit, 0, len(f.collections[name]))
	for _, p := range f.collections[name] {
		hits = append(hits, hit{Score: cosine(body.Vector, p.Vector), Payload: p.Payload})
	}
	f.mu.Unlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if body.Limit > 0 && len(hits) > body.Limit {
		hits = hits[:body.Limit]
	}

	json.NewEncoder(w).Encode(map[string]any{"result": hits})
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / math.Sqrt(na*nb))
}

// getFreePort finds an available TCP port
func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
