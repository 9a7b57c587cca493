// Package pipeline orchestrates the save, commit, and optimization
// workflow: prompts flow in from the CLI or HTTP surface, land in the
// store, get committed, and optionally queue background optimization.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/promptctl/promptctl/config"
	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/logger"
	"github.com/promptctl/promptctl/store"
)

// Committer is the slice of the repository the pipeline commits
// through.
type Committer interface {
	Commit(message string) (string, error)
}

// Pipeline wires the store, repository, and job queue together and
// owns the handlers for the four background job types.
type Pipeline struct {
	cfg       config.PipelineConfig
	store     *store.Store
	tags      *store.TagIndex
	repo      Committer
	batch     *store.BatchCounter
	queue     *jobs.Queue
	optimizer Optimizer
	agent     Agent
	watcher   *store.Watcher
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithOptimizer replaces the optimizer used by optimize and evaluate
// jobs.
func WithOptimizer(o Optimizer) Option {
	return func(p *Pipeline) { p.optimizer = o }
}

// WithAgent replaces the agent used by agent jobs.
func WithAgent(a Agent) Option {
	return func(p *Pipeline) { p.agent = a }
}

// WithWatcher attaches the prompts-directory watcher so pipeline
// writes do not trigger index rebuilds.
func WithWatcher(w *store.Watcher) Option {
	return func(p *Pipeline) { p.watcher = w }
}

// New creates a pipeline and registers its job handlers on the queue.
func New(
	cfg config.PipelineConfig,
	st *store.Store,
	tags *store.TagIndex,
	repo Committer,
	batch *store.BatchCounter,
	queue *jobs.Queue,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		store: st,
		tags:  tags,
		repo:  repo,
		batch: batch,
		queue: queue,
	}
	for _, opt := range opts {
		opt(p)
	}

	queue.RegisterHandler(jobs.HandlerFunc{TypeName: JobTypeOptimize, Fn: p.handleOptimize})
	queue.RegisterHandler(jobs.HandlerFunc{TypeName: JobTypeEvaluate, Fn: p.handleEvaluate})
	queue.RegisterHandler(jobs.HandlerFunc{TypeName: JobTypeChain, Fn: p.handleChain})
	queue.RegisterHandler(jobs.HandlerFunc{TypeName: JobTypeAgent, Fn: p.handleAgent})
	return p
}

// ProcessPrompt drives a prompt through save, batched commit, and
// optional optimization. Errors after a successful save still return
// the prompt ID with the stages that completed.
func (p *Pipeline) ProcessPrompt(content, name string, tags []string, extra map[string]string, autoOptimize *bool, source string) Result {
	result := Result{Timestamp: time.Now().Format(time.RFC3339)}

	combined := append(append([]string(nil), tags...), p.cfg.DefaultTags...)
	meta := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		meta[k] = v
	}
	if source != "" {
		meta["source"] = source
	}

	p.markOwnWrite()
	id, err := p.store.Save(content, name, combined, meta)
	if err != nil {
		result.PromptID = name
		result.Error = err.Error()
		return result
	}
	result.PromptID = id
	result.StagesCompleted = append(result.StagesCompleted, "save")
	logger.Infow("Pipeline saved prompt", "prompt_id", id, "source", source)

	if p.cfg.AutoCommit {
		committed, err := p.commitSave(id, source)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if committed {
			result.StagesCompleted = append(result.StagesCompleted, "commit")
		}
	}

	shouldOptimize := p.cfg.AutoOptimize
	if autoOptimize != nil {
		shouldOptimize = *autoOptimize
	}
	if shouldOptimize {
		params, err := json.Marshal(OptimizeParams{PromptID: id, Rounds: p.cfg.OptimizationRounds})
		if err != nil {
			result.Error = err.Error()
			return result
		}
		jobID, err := p.queue.Submit(JobTypeOptimize, params)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.JobID = jobID
		result.StagesCompleted = append(result.StagesCompleted, "optimize_queued")
		logger.Infow("Pipeline queued optimization", "prompt_id", id, "job_id", jobID)
	}

	result.Success = true
	return result
}

// commitSave commits a saved prompt once the batch threshold is
// reached. Below the threshold the save waits for a later batch.
func (p *Pipeline) commitSave(id, source string) (bool, error) {
	due, err := p.batch.ShouldCommit()
	if err != nil {
		return false, err
	}
	if !due {
		logger.Debugw("Save batched, commit deferred", "prompt_id", id, "pending", p.batch.Pending())
		return false, nil
	}

	message := fmt.Sprintf("Save prompt %s", id)
	if source == "browser" {
		message = fmt.Sprintf("Browser capture: %s", id)
	}
	if err := p.commit(message); err != nil {
		return false, err
	}
	return true, p.batch.Reset()
}

// Optimize submits or runs an optimize job.
func (p *Pipeline) Optimize(ctx context.Context, params OptimizeParams, async bool) (*Dispatch, error) {
	return p.dispatch(ctx, JobTypeOptimize, params, async)
}

// Evaluate submits or runs an evaluate job.
func (p *Pipeline) Evaluate(ctx context.Context, params EvaluateParams, async bool) (*Dispatch, error) {
	return p.dispatch(ctx, JobTypeEvaluate, params, async)
}

// Chain submits or runs a chain job.
func (p *Pipeline) Chain(ctx context.Context, params ChainParams, async bool) (*Dispatch, error) {
	return p.dispatch(ctx, JobTypeChain, params, async)
}

// RunAgent submits or runs an agent job.
func (p *Pipeline) RunAgent(ctx context.Context, params AgentParams, async bool) (*Dispatch, error) {
	return p.dispatch(ctx, JobTypeAgent, params, async)
}

// dispatch queues the job for async requests or runs the handler
// inline with a no-op reporter for sync ones.
func (p *Pipeline) dispatch(ctx context.Context, jobType string, params interface{}, async bool) (*Dispatch, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s params", jobType)
	}

	if async {
		jobID, err := p.queue.Submit(jobType, raw)
		if err != nil {
			return nil, err
		}
		return &Dispatch{JobID: jobID, Status: "queued"}, nil
	}

	handler := p.queue.Registry().Get(jobType)
	if handler == nil {
		return nil, errors.Wrapf(errors.ErrUnknownJobType, "%s", jobType)
	}
	result, err := handler.Execute(ctx, raw, nopReporter{})
	if err != nil {
		return nil, err
	}
	return &Dispatch{Status: "completed", Result: result}, nil
}

// ListPrompts returns prompt summaries, optionally narrowed to those
// carrying any of the given tags.
func (p *Pipeline) ListPrompts(tags []string) ([]store.Summary, error) {
	summaries, err := p.store.List()
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return summaries, nil
	}

	ids, err := p.tags.FilterByTags(tags, false)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	filtered := summaries[:0]
	for _, s := range summaries {
		if keep[s.ID] {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func (p *Pipeline) handleOptimize(ctx context.Context, raw json.RawMessage, reporter jobs.Reporter) (json.RawMessage, error) {
	var params OptimizeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if p.optimizer == nil {
		return nil, errors.New("no optimizer configured")
	}
	rounds := params.Rounds
	if rounds <= 0 {
		rounds = p.cfg.OptimizationRounds
	}

	reporter.Report(10, "Loading prompt")
	prompt, err := p.store.Get(params.PromptID)
	if err != nil {
		return nil, err
	}

	reporter.Report(20, "Starting optimization")
	optimized, score, err := p.optimizer.Optimize(ctx, prompt.Content, rounds, params.TestCases)
	if err != nil {
		return nil, err
	}

	reporter.Report(90, "Saving optimized prompt")
	p.markOwnWrite()
	optimizedID, err := p.store.Save(optimized, params.PromptID+"_optimized", prompt.Tags, map[string]string{
		"source_prompt": params.PromptID,
		"final_score":   fmt.Sprintf("%.2f", score),
	})
	if err != nil {
		return nil, err
	}

	if p.cfg.AutoCommit {
		msg := fmt.Sprintf("Optimize prompt: %s -> %s (score: %.2f)", params.PromptID, optimizedID, score)
		if err := p.commit(msg); err != nil {
			return nil, err
		}
	}

	reporter.Report(100, "Done")
	return json.Marshal(OptimizeResult{
		OptimizedID:  optimizedID,
		Score:        score,
		SourcePrompt: params.PromptID,
		Rounds:       rounds,
	})
}

func (p *Pipeline) handleEvaluate(ctx context.Context, raw json.RawMessage, reporter jobs.Reporter) (json.RawMessage, error) {
	var params EvaluateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if p.optimizer == nil {
		return nil, errors.New("no optimizer configured")
	}

	reporter.Report(10, "Loading prompt")
	prompt, err := p.store.Get(params.PromptID)
	if err != nil {
		return nil, err
	}

	reporter.Report(30, "Running evaluation")
	score, err := p.optimizer.Evaluate(ctx, prompt.Content, params.TestCases)
	if err != nil {
		return nil, err
	}

	reporter.Report(100, "Done")
	return json.Marshal(EvaluateResult{
		PromptID: params.PromptID,
		Score:    score,
		Cases:    len(params.TestCases),
	})
}

func (p *Pipeline) handleChain(ctx context.Context, raw json.RawMessage, reporter jobs.Reporter) (json.RawMessage, error) {
	var params ChainParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if len(params.PromptIDs) < 2 {
		return nil, errors.NewInvalidRequestError("chain needs at least 2 prompts, got %d", len(params.PromptIDs))
	}

	reporter.Report(10, "Loading prompts")
	contents := make([]string, 0, len(params.PromptIDs))
	for _, id := range params.PromptIDs {
		prompt, err := p.store.Get(id)
		if err != nil {
			return nil, err
		}
		contents = append(contents, prompt.Content)
	}

	reporter.Report(50, "Composing chain")
	name := params.ChainName
	if name == "" {
		name = "chain_" + time.Now().Format("20060102_150405")
	}
	p.markOwnWrite()
	chainID, err := p.store.Save(composeChain(contents), name, []string{"chain"}, map[string]string{
		"chain_source": strings.Join(params.PromptIDs, ","),
	})
	if err != nil {
		return nil, err
	}

	if p.cfg.AutoCommit {
		if err := p.commit(fmt.Sprintf("Create prompt chain: %s", chainID)); err != nil {
			return nil, err
		}
	}

	reporter.Report(100, "Done")
	return json.Marshal(ChainResult{ChainID: chainID, SourcePrompts: params.PromptIDs})
}

func (p *Pipeline) handleAgent(ctx context.Context, raw json.RawMessage, reporter jobs.Reporter) (json.RawMessage, error) {
	var params AgentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if p.agent == nil {
		return nil, errors.New("no agent configured")
	}
	rounds := params.Rounds
	if rounds <= 0 {
		rounds = 5
	}
	minScore := params.MinScore
	if minScore <= 0 {
		minScore = 90
	}

	reporter.Report(10, "Loading prompt")
	prompt, err := p.store.Get(params.PromptID)
	if err != nil {
		return nil, err
	}

	reporter.Report(20, "Running agent")
	best, score, err := p.agent.Run(ctx, prompt.Content, rounds, minScore, params.TestCases)
	if err != nil {
		return nil, err
	}

	reporter.Report(90, "Saving best version")
	p.markOwnWrite()
	bestID, err := p.store.Save(best, params.PromptID+"_best", prompt.Tags, map[string]string{
		"source_prompt": params.PromptID,
		"final_score":   fmt.Sprintf("%.2f", score),
	})
	if err != nil {
		return nil, err
	}

	if p.cfg.AutoCommit {
		msg := fmt.Sprintf("Agent optimization: %s -> %s (score: %.2f)", params.PromptID, bestID, score)
		if err := p.commit(msg); err != nil {
			return nil, err
		}
	}

	reporter.Report(100, "Done")
	return json.Marshal(AgentResult{BestID: bestID, FinalScore: score, SourcePrompt: params.PromptID})
}

// commit commits all pending changes, treating a clean tree as
// success.
func (p *Pipeline) commit(message string) error {
	sha, err := p.repo.Commit(message)
	if errors.Is(err, errors.ErrNothingToCommit) {
		logger.Debugw("Nothing to commit", "message", message)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Infow("Pipeline committed", "sha", shortSHA(sha), "message", message)
	return nil
}

func (p *Pipeline) markOwnWrite() {
	if p.watcher != nil {
		p.watcher.MarkOwnWrite()
	}
}

// composeChain joins prompt contents into one sequential prompt.
func composeChain(contents []string) string {
	steps := make([]string, len(contents))
	for i, content := range contents {
		steps[i] = fmt.Sprintf("Step %d:\n%s", i+1, content)
	}
	return strings.Join(steps, "\n\n---\n\n")
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// nopReporter discards progress for synchronous execution paths.
type nopReporter struct{}

func (nopReporter) Report(float64, string) {}
