package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptctl/promptctl/config"
	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/store"
)

type fakeCommitter struct {
	mu      sync.Mutex
	commits []string
	err     error
}

func (f *fakeCommitter) Commit(message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.commits = append(f.commits, message)
	return "0123456789abcdef", nil
}

func (f *fakeCommitter) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commits...)
}

type fakeOptimizer struct {
	optimized string
	score     float64
	err       error
	calls     int
}

func (f *fakeOptimizer) Optimize(_ context.Context, _ string, _ int, _ []TestCase) (string, float64, error) {
	f.calls++
	return f.optimized, f.score, f.err
}

func (f *fakeOptimizer) Evaluate(_ context.Context, _ string, _ []TestCase) (float64, error) {
	return f.score, f.err
}

type fakeAgent struct {
	best  string
	score float64
	err   error
}

func (f *fakeAgent) Run(_ context.Context, _ string, _ int, _ float64, _ []TestCase) (string, float64, error) {
	return f.best, f.score, f.err
}

type pipelineEnv struct {
	pipeline  *Pipeline
	store     *store.Store
	committer *fakeCommitter
	optimizer *fakeOptimizer
}

func newEnv(t *testing.T, cfg config.PipelineConfig) *pipelineEnv {
	t.Helper()
	dir := t.TempDir()

	st, err := store.New(dir)
	require.NoError(t, err)
	tags := store.NewTagIndex(dir, st)
	batch := store.NewBatchCounter(dir, cfg.CommitBatchSize)
	committer := &fakeCommitter{}
	optimizer := &fakeOptimizer{optimized: "better prompt", score: 85}
	queue := jobs.NewQueue(jobs.Config{})

	p := New(cfg, st, tags, committer, batch, queue,
		WithOptimizer(optimizer),
		WithAgent(&fakeAgent{best: "best prompt", score: 95}),
	)
	return &pipelineEnv{pipeline: p, store: st, committer: committer, optimizer: optimizer}
}

func TestProcessPromptSavesAndCommits(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoCommit: true, CommitBatchSize: 1})

	result := env.pipeline.ProcessPrompt("content", "greeting", []string{"chat"}, nil, nil, "cli")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "greeting", result.PromptID)
	assert.Equal(t, []string{"save", "commit"}, result.StagesCompleted)
	assert.Empty(t, result.JobID)

	require.Len(t, env.committer.messages(), 1)
	assert.Equal(t, "Save prompt greeting", env.committer.messages()[0])

	p, err := env.store.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "cli", p.Metadata.Extra["source"])
}

func TestProcessPromptBrowserCommitMessage(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoCommit: true, CommitBatchSize: 1})

	result := env.pipeline.ProcessPrompt("content", "captured", nil, nil, nil, "browser")
	require.True(t, result.Success)
	require.Len(t, env.committer.messages(), 1)
	assert.Equal(t, "Browser capture: captured", env.committer.messages()[0])
}

func TestProcessPromptBatchDefersCommit(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoCommit: true, CommitBatchSize: 3})

	first := env.pipeline.ProcessPrompt("a", "p1", nil, nil, nil, "cli")
	second := env.pipeline.ProcessPrompt("b", "p2", nil, nil, nil, "cli")
	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, []string{"save"}, first.StagesCompleted)
	assert.Empty(t, env.committer.messages(), "below threshold, no commit yet")

	third := env.pipeline.ProcessPrompt("c", "p3", nil, nil, nil, "cli")
	require.True(t, third.Success)
	assert.Equal(t, []string{"save", "commit"}, third.StagesCompleted)
	require.Len(t, env.committer.messages(), 1)

	// Counter resets, so the next save starts a new batch
	fourth := env.pipeline.ProcessPrompt("d", "p4", nil, nil, nil, "cli")
	assert.Equal(t, []string{"save"}, fourth.StagesCompleted)
}

func TestProcessPromptQueuesOptimization(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoOptimize: true, OptimizationRounds: 2})

	result := env.pipeline.ProcessPrompt("content", "tune-me", nil, nil, nil, "api")
	require.True(t, result.Success)
	assert.NotEmpty(t, result.JobID)
	assert.Contains(t, result.StagesCompleted, "optimize_queued")
}

func TestProcessPromptOptimizeOverride(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoOptimize: true})

	off := false
	result := env.pipeline.ProcessPrompt("content", "plain", nil, nil, &off, "api")
	require.True(t, result.Success)
	assert.Empty(t, result.JobID)
	assert.NotContains(t, result.StagesCompleted, "optimize_queued")
}

func TestProcessPromptDefaultTags(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{DefaultTags: []string{"captured"}})

	result := env.pipeline.ProcessPrompt("content", "tagged", []string{"chat"}, nil, nil, "api")
	require.True(t, result.Success)

	p, err := env.store.Get("tagged")
	require.NoError(t, err)
	assert.Equal(t, []string{"captured", "chat"}, p.Tags)
}

func TestProcessPromptSaveFailure(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{})

	result := env.pipeline.ProcessPrompt("content", "bad/name", nil, nil, nil, "api")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.StagesCompleted)
}

func TestProcessPromptNothingToCommitIsSuccess(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoCommit: true, CommitBatchSize: 1})
	env.committer.err = errors.Wrap(errors.ErrNothingToCommit, "clean tree")

	result := env.pipeline.ProcessPrompt("content", "quiet", nil, nil, nil, "api")
	assert.True(t, result.Success, result.Error)
}

func TestOptimizeSync(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoCommit: true, OptimizationRounds: 3})
	_, err := env.store.Save("original", "src", []string{"chat"}, nil)
	require.NoError(t, err)

	dispatch, err := env.pipeline.Optimize(context.Background(), OptimizeParams{PromptID: "src"}, false)
	require.NoError(t, err)
	assert.Equal(t, "completed", dispatch.Status)
	assert.Empty(t, dispatch.JobID)

	var result OptimizeResult
	require.NoError(t, json.Unmarshal(dispatch.Result, &result))
	assert.Equal(t, "src_optimized", result.OptimizedID)
	assert.Equal(t, 85.0, result.Score)
	assert.Equal(t, "src", result.SourcePrompt)
	assert.Equal(t, 3, result.Rounds, "rounds default from config")

	optimized, err := env.store.Get("src_optimized")
	require.NoError(t, err)
	assert.Equal(t, "better prompt", optimized.Content)
	assert.Equal(t, []string{"chat"}, optimized.Tags, "tags carried from the source prompt")
	assert.Equal(t, "85.00", optimized.Metadata.Extra["final_score"])

	require.Len(t, env.committer.messages(), 1)
	assert.Contains(t, env.committer.messages()[0], "Optimize prompt: src -> src_optimized")
}

func TestOptimizeAsync(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{})

	dispatch, err := env.pipeline.Optimize(context.Background(), OptimizeParams{PromptID: "src"}, true)
	require.NoError(t, err)
	assert.Equal(t, "queued", dispatch.Status)
	assert.NotEmpty(t, dispatch.JobID)
	assert.Nil(t, dispatch.Result)
}

func TestOptimizeMissingPrompt(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{})

	_, err := env.pipeline.Optimize(context.Background(), OptimizeParams{PromptID: "ghost"}, false)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestEvaluateSync(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{})
	_, err := env.store.Save("content", "judged", nil, nil)
	require.NoError(t, err)

	cases := []TestCase{{Input: "in", Expected: "out"}}
	dispatch, err := env.pipeline.Evaluate(context.Background(), EvaluateParams{PromptID: "judged", TestCases: cases}, false)
	require.NoError(t, err)

	var result EvaluateResult
	require.NoError(t, json.Unmarshal(dispatch.Result, &result))
	assert.Equal(t, 85.0, result.Score)
	assert.Equal(t, 1, result.Cases)
}

func TestChainSync(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoCommit: true, CommitBatchSize: 1})
	_, err := env.store.Save("first", "p1", nil, nil)
	require.NoError(t, err)
	_, err = env.store.Save("second", "p2", nil, nil)
	require.NoError(t, err)

	dispatch, err := env.pipeline.Chain(context.Background(), ChainParams{
		PromptIDs: []string{"p1", "p2"},
		ChainName: "combo",
	}, false)
	require.NoError(t, err)

	var result ChainResult
	require.NoError(t, json.Unmarshal(dispatch.Result, &result))
	assert.Equal(t, "combo", result.ChainID)
	assert.Equal(t, []string{"p1", "p2"}, result.SourcePrompts)

	chained, err := env.store.Get("combo")
	require.NoError(t, err)
	assert.Contains(t, chained.Content, "Step 1:\nfirst")
	assert.Contains(t, chained.Content, "Step 2:\nsecond")
	assert.Equal(t, "p1,p2", chained.Metadata.Extra["chain_source"])

	require.Len(t, env.committer.messages(), 1)
	assert.Equal(t, "Create prompt chain: combo", env.committer.messages()[0])
}

func TestChainRejectsSinglePrompt(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{})

	_, err := env.pipeline.Chain(context.Background(), ChainParams{PromptIDs: []string{"only"}}, false)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestAgentSync(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{AutoCommit: true})
	_, err := env.store.Save("rough draft", "draft", nil, nil)
	require.NoError(t, err)

	dispatch, err := env.pipeline.RunAgent(context.Background(), AgentParams{PromptID: "draft"}, false)
	require.NoError(t, err)

	var result AgentResult
	require.NoError(t, json.Unmarshal(dispatch.Result, &result))
	assert.Equal(t, "draft_best", result.BestID)
	assert.Equal(t, 95.0, result.FinalScore)

	best, err := env.store.Get("draft_best")
	require.NoError(t, err)
	assert.Equal(t, "best prompt", best.Content)

	require.Len(t, env.committer.messages(), 1)
	assert.Contains(t, env.committer.messages()[0], "Agent optimization: draft -> draft_best")
}

func TestListPromptsFiltersByTags(t *testing.T) {
	env := newEnv(t, config.PipelineConfig{})
	_, err := env.store.Save("a", "p1", []string{"chat"}, nil)
	require.NoError(t, err)
	_, err = env.store.Save("b", "p2", []string{"eval"}, nil)
	require.NoError(t, err)

	all, err := env.pipeline.ListPrompts(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	chat, err := env.pipeline.ListPrompts([]string{"chat"})
	require.NoError(t, err)
	require.Len(t, chat, 1)
	assert.Equal(t, "p1", chat[0].ID)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		reply   string
		want    float64
		wantErr bool
	}{
		{reply: "87", want: 87},
		{reply: "Score: 92.", want: 92},
		{reply: "150", want: 100},
		{reply: "I think it deserves 64 out of 100", want: 64},
		{reply: "no digits here", wantErr: true},
		{reply: "", wantErr: true},
	}
	for _, tt := range tests {
		score, err := parseScore(tt.reply)
		if tt.wantErr {
			assert.Error(t, err, tt.reply)
			continue
		}
		require.NoError(t, err, tt.reply)
		assert.Equal(t, tt.want, score, tt.reply)
	}
}

func TestAgentStopsEarlyAtTarget(t *testing.T) {
	opt := &fakeOptimizer{optimized: "good enough", score: 95}
	agent := NewLLMAgent(opt)

	best, score, err := agent.Run(context.Background(), "draft", 10, 90, nil)
	require.NoError(t, err)
	assert.Equal(t, "good enough", best)
	assert.Equal(t, 95.0, score)
	assert.Equal(t, 1, opt.calls, "target reached on the first round")
}

func TestAgentKeepsBestAcrossRounds(t *testing.T) {
	opt := &fakeOptimizer{optimized: "plateau", score: 50}
	agent := NewLLMAgent(opt)

	best, score, err := agent.Run(context.Background(), "draft", 3, 90, nil)
	require.NoError(t, err)
	assert.Equal(t, "plateau", best)
	assert.Equal(t, 50.0, score)
	assert.Equal(t, 3, opt.calls, "runs every round when target is never reached")
}
