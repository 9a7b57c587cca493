package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptctl/promptctl/config"
	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/pipeline"
	"github.com/promptctl/promptctl/store"
)

type nopCommitter struct{}

func (nopCommitter) Commit(string) (string, error) { return "0123456789abcdef", nil }

type stubOptimizer struct{}

func (stubOptimizer) Optimize(_ context.Context, _ string, _ int, _ []pipeline.TestCase) (string, float64, error) {
	return "optimized content", 90, nil
}

func (stubOptimizer) Evaluate(_ context.Context, _ string, _ []pipeline.TestCase) (float64, error) {
	return 90, nil
}

type serverEnv struct {
	server *Server
	store  *store.Store
	queue  *jobs.Queue
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	dir := t.TempDir()

	st, err := store.New(dir)
	require.NoError(t, err)
	tags := store.NewTagIndex(dir, st)
	batch := store.NewBatchCounter(dir, 1)
	queue := jobs.NewQueue(jobs.Config{})

	pipe := pipeline.New(config.PipelineConfig{}, st, tags, nopCommitter{}, batch, queue,
		pipeline.WithOptimizer(stubOptimizer{}))

	return &serverEnv{
		server: New(config.ServerConfig{}, pipe, queue),
		store:  st,
		queue:  queue,
	}
}

func (e *serverEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	env := newServerEnv(t)

	rec := env.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0.0, body["pending"])
	assert.Equal(t, 0.0, body["running"])
}

func TestHealthRejectsPost(t *testing.T) {
	env := newServerEnv(t)
	rec := env.request(t, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSave(t *testing.T) {
	env := newServerEnv(t)

	rec := env.request(t, http.MethodPost, "/save", map[string]interface{}{
		"content": "You are a helpful assistant.",
		"name":    "greeting",
		"tags":    []string{"chat"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.Result
	decodeBody(t, rec, &result)
	assert.True(t, result.Success)
	assert.Equal(t, "greeting", result.PromptID)
	assert.Contains(t, result.StagesCompleted, "save")

	p, err := env.store.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "api", p.Metadata.Extra["source"], "source defaults to api")
}

func TestSaveRequiresContent(t *testing.T) {
	env := newServerEnv(t)
	rec := env.request(t, http.MethodPost, "/save", map[string]interface{}{"name": "empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveRejectsMalformedBody(t *testing.T) {
	env := newServerEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/save", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.server.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeAsyncQueuesJob(t *testing.T) {
	env := newServerEnv(t)

	rec := env.request(t, http.MethodPost, "/optimize", map[string]interface{}{
		"prompt_id": "anything",
		"async":     true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var dispatch pipeline.Dispatch
	decodeBody(t, rec, &dispatch)
	assert.NotEmpty(t, dispatch.JobID)
	assert.Equal(t, "queued", dispatch.Status)

	job, err := env.queue.GetStatus(dispatch.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
}

func TestOptimizeSyncReturnsInlineResult(t *testing.T) {
	env := newServerEnv(t)
	_, err := env.store.Save("rough", "src", nil, nil)
	require.NoError(t, err)

	rec := env.request(t, http.MethodPost, "/optimize", map[string]interface{}{
		"prompt_id": "src",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dispatch pipeline.Dispatch
	decodeBody(t, rec, &dispatch)
	require.Equal(t, "completed", dispatch.Status)

	var result pipeline.OptimizeResult
	require.NoError(t, json.Unmarshal(dispatch.Result, &result))
	assert.Equal(t, "src_optimized", result.OptimizedID)
	assert.Equal(t, 90.0, result.Score)
}

func TestOptimizeMissingPromptIs404(t *testing.T) {
	env := newServerEnv(t)
	rec := env.request(t, http.MethodPost, "/optimize", map[string]interface{}{
		"prompt_id": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOptimizeRequiresPromptID(t *testing.T) {
	env := newServerEnv(t)
	rec := env.request(t, http.MethodPost, "/optimize", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChainRejectsSinglePrompt(t *testing.T) {
	env := newServerEnv(t)
	rec := env.request(t, http.MethodPost, "/chain", map[string]interface{}{
		"prompt_ids": []string{"only"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateSync(t *testing.T) {
	env := newServerEnv(t)
	_, err := env.store.Save("content", "judged", nil, nil)
	require.NoError(t, err)

	rec := env.request(t, http.MethodPost, "/evaluate", map[string]interface{}{
		"prompt_id":  "judged",
		"test_cases": []map[string]string{{"input": "a", "expected": "b"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dispatch pipeline.Dispatch
	decodeBody(t, rec, &dispatch)
	var result pipeline.EvaluateResult
	require.NoError(t, json.Unmarshal(dispatch.Result, &result))
	assert.Equal(t, 90.0, result.Score)
	assert.Equal(t, 1, result.Cases)
}

func TestJobsList(t *testing.T) {
	env := newServerEnv(t)
	id1, err := env.queue.Submit(pipeline.JobTypeOptimize, json.RawMessage(`{}`))
	require.NoError(t, err)
	id2, err := env.queue.Submit(pipeline.JobTypeEvaluate, json.RawMessage(`{}`))
	require.NoError(t, err)

	rec := env.request(t, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs  []jobs.Job `json:"jobs"`
		Count int        `json:"count"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, id2, body.Jobs[0].ID, "newest first")
	assert.Equal(t, id1, body.Jobs[1].ID)
}

func TestJobsListInvalidLimit(t *testing.T) {
	env := newServerEnv(t)
	rec := env.request(t, http.MethodGet, "/jobs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobGet(t *testing.T) {
	env := newServerEnv(t)
	id, err := env.queue.Submit(pipeline.JobTypeOptimize, json.RawMessage(`{}`))
	require.NoError(t, err)

	rec := env.request(t, http.MethodGet, "/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var job jobs.Job
	decodeBody(t, rec, &job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, jobs.StatusPending, job.Status)
}

func TestJobGetUnknownIs404(t *testing.T) {
	env := newServerEnv(t)
	rec := env.request(t, http.MethodGet, "/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobCancel(t *testing.T) {
	env := newServerEnv(t)
	id, err := env.queue.Submit(pipeline.JobTypeOptimize, json.RawMessage(`{}`))
	require.NoError(t, err)

	rec := env.request(t, http.MethodPost, "/jobs/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, true, body["cancelled"])

	// Cancelled jobs are terminal, a second cancel is a no-op
	rec = env.request(t, http.MethodPost, "/jobs/"+id+"/cancel", nil)
	decodeBody(t, rec, &body)
	assert.Equal(t, false, body["cancelled"])
}

func TestStartAndShutdown(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.server.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, env.server.Shutdown(ctx))
}

func TestStartFailsOnOccupiedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	env := newServerEnv(t)
	env.server.cfg.Port = port

	err = env.server.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf(":%d", port))
}
