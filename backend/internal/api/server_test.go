package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractal-graph/backend/internal/graph"
	"fractal-graph/backend/internal/graphstore"
	"fractal-graph/backend/internal/metrics"
)

type testServer struct {
	router *gin.Engine
	repo   *graph.Repository
	store  graphstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	store := graphstore.NewMemory()
	repo := graph.NewRepository(store)
	require.NoError(t, graph.Initialize(ctx, store, repo.Fractals))

	return &testServer{
		router: NewServer(repo, metrics.NewRegistry()).Router(),
		repo:   repo,
		store:  store,
	}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) create(t *testing.T, body map[string]any) graph.Fractal {
	t.Helper()
	w := ts.do(http.MethodPost, "/api/fractals", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var f graph.Fractal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	return f
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Errors []struct {
			Message    string         `json:"message"`
			Extensions map[string]any `json:"extensions"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	code, _ := resp.Errors[0].Extensions["code"].(string)
	return code
}

func names(fractals []graph.Fractal) []string {
	out := make([]string, len(fractals))
	for i, f := range fractals {
		out[i] = f.Name
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])

	require.NoError(t, ts.store.Close(context.Background()))
	w = ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRootFractal(t *testing.T) {
	ts := newTestServer(t)
	programming := ts.create(t, map[string]any{"name": "Programming", "parent_id": uuid.Nil})

	w := ts.do(http.MethodGet, "/api/fractals/root?include=children", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view fractalView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, uuid.Nil, view.ID)
	assert.Equal(t, "Root", view.Name)
	require.NotNil(t, view.Children)
	assert.Equal(t, []string{"Programming"}, names(*view.Children))
	assert.Equal(t, programming.ID, (*view.Children)[0].ID)
	assert.Nil(t, view.Parents, "not requested")
}

func TestCreateFractal_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, map[string]any{"name": "Rust"})

	w := ts.do(http.MethodPost, "/api/fractals", map[string]any{"name": "Rust"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeAlreadyExists, errorCode(t, w))

	w = ts.do(http.MethodPost, "/api/fractals", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidInput, errorCode(t, w))

	w = ts.do(http.MethodPost, "/api/fractals", map[string]any{"name": "Unscoped", "context_id": uuid.Nil})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidInput, errorCode(t, w))
	w = ts.do(http.MethodGet, "/api/fractals?name=Unscoped", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/fractals", map[string]any{"name": "Orphan", "parent_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, w))
}

func TestFractalView_IncludesRelations(t *testing.T) {
	ts := newTestServer(t)
	root := uuid.Nil
	programming := ts.create(t, map[string]any{"name": "Programming", "parent_id": root})
	python := ts.create(t, map[string]any{"name": "Python", "parent_id": programming.ID, "context_id": root})
	ts.create(t, map[string]any{"name": "Rust", "parent_id": programming.ID})

	w := ts.do(http.MethodGet, "/api/fractals?name=Programming&include=children,parents,contexts", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view fractalView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, []string{"Python", "Rust"}, names(*view.Children))
	assert.Equal(t, []string{"Root"}, names(*view.Parents))
	assert.Empty(t, *view.Contexts)

	w = ts.do(http.MethodGet, "/api/fractals?name=Programming&include=children&children_context="+root.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = fractalView{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, []string{"Python"}, names(*view.Children))
	assert.Equal(t, python.ID, (*view.Children)[0].ID)

	w = ts.do(http.MethodGet, "/api/fractals?name=Programming&include=siblings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/fractals?name=programming", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/fractals", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRelationsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.create(t, map[string]any{"name": "P"})
	c := ts.create(t, map[string]any{"name": "C"})
	ctx1 := ts.create(t, map[string]any{"name": "Ctx1"})
	ctx2 := ts.create(t, map[string]any{"name": "Ctx2"})

	w := ts.do(http.MethodPost, "/api/relations", map[string]any{"parent_id": p.ID, "child_id": c.ID, "context_id": ctx1.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	list := func(path string) []string {
		w := ts.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var fractals []graph.Fractal
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fractals))
		return names(fractals)
	}

	base := "/api/fractals/" + p.ID.String()
	assert.Equal(t, []string{"C"}, list(base+"/children"))
	assert.Equal(t, []string{"C"}, list(base+"/children?context_id="+ctx1.ID.String()))
	assert.Empty(t, list(base+"/children?context_id="+ctx2.ID.String()))
	assert.Equal(t, []string{"P"}, list("/api/fractals/"+c.ID.String()+"/parents"))

	w = ts.do(http.MethodPost, "/api/contexts", map[string]any{"fractal_id": p.ID, "context_id": ctx2.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Ctx2"}, list(base+"/contexts"))

	w = ts.do(http.MethodGet, base+"/siblings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidInput, errorCode(t, w))

	w = ts.do(http.MethodGet, "/api/fractals/not-a-uuid/children", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, base+"/parents?context_id="+ctx1.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/relations", map[string]any{"parent_id": p.ID, "child_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/relations", map[string]any{"parent_id": p.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/contexts", map[string]any{"fractal_id": uuid.New(), "context_id": p.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteFractal(t *testing.T) {
	ts := newTestServer(t)
	f := ts.create(t, map[string]any{"name": "Doomed"})

	for _, want := range []bool{true, false} {
		w := ts.do(http.MethodDelete, "/api/fractals/"+f.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]bool
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, want, resp["deleted"])
	}
}

func TestKnowledgeEndpoints(t *testing.T) {
	ts := newTestServer(t)
	python := ts.create(t, map[string]any{"name": "Python"})
	str := ts.create(t, map[string]any{"name": "String"})
	rust := ts.create(t, map[string]any{"name": "Rust"})

	w := ts.do(http.MethodPost, "/api/knowledge", map[string]any{
		"fractal_id":  python.ID,
		"content":     "x.count() returns length",
		"context_ids": []uuid.UUID{str.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, "/api/knowledge?fractal_name=Python&context="+str.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var facts []graph.Knowledge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &facts))
	require.Len(t, facts, 1)
	assert.Equal(t, "x.count() returns length", facts[0].Content)

	w = ts.do(http.MethodGet, "/api/knowledge?fractal_name=Python&context="+rust.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, w))

	w = ts.do(http.MethodGet, "/api/knowledge?fractal_name=Python&context=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/knowledge", map[string]any{
		"fractal_id":  python.ID,
		"content":     "dangling",
		"context_ids": []uuid.UUID{uuid.New()},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/knowledge", map[string]any{"fractal_id": python.ID, "content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoreFailureIsOpaque(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Close(context.Background()))

	w := ts.do(http.MethodGet, "/api/fractals/root", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternalServer, errorCode(t, w))
	assert.Contains(t, w.Body.String(), "Internal server error")
	assert.NotContains(t, w.Body.String(), "store closed")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/fractals/root", nil)

	w := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fractal_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodOptions, "/api/fractals", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
