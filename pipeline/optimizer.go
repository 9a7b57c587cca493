package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/llm"
	"github.com/promptctl/promptctl/logger"
)

// Optimizer rewrites and scores prompt content. Scores are on a 0-100
// scale; what "good" means is up to the implementation.
type Optimizer interface {
	Optimize(ctx context.Context, content string, rounds int, cases []TestCase) (optimized string, score float64, err error)
	Evaluate(ctx context.Context, content string, cases []TestCase) (score float64, err error)
}

// Agent iteratively improves prompt content until minScore is reached
// or the round budget runs out.
type Agent interface {
	Run(ctx context.Context, content string, rounds int, minScore float64, cases []TestCase) (best string, score float64, err error)
}

const (
	rewriteSystem = "You improve prompts for language models. Rewrite the prompt you are given " +
		"to be clearer and more specific while preserving its intent. " +
		"Reply with ONLY the rewritten prompt."
	scoreSystem = "You rate prompts for language models on clarity and specificity. " +
		"Reply with ONLY an integer from 0 to 100."
)

// LLMOptimizer drives rounds of rewrite-then-score against a local
// model. Each round rewrites the current best and keeps the rewrite
// only if it scores higher.
type LLMOptimizer struct {
	client *llm.Client
}

// NewLLMOptimizer creates an optimizer backed by a local inference
// client.
func NewLLMOptimizer(client *llm.Client) *LLMOptimizer {
	return &LLMOptimizer{client: client}
}

// Optimize runs up to rounds rewrite passes and returns the best
// scoring version seen, which may be the original content.
func (o *LLMOptimizer) Optimize(ctx context.Context, content string, rounds int, cases []TestCase) (string, float64, error) {
	best := content
	bestScore, err := o.Evaluate(ctx, content, cases)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to score original prompt")
	}

	for round := 1; round <= rounds; round++ {
		rewritten, err := o.client.Complete(ctx, rewriteSystem, best, &llm.CompletionOpts{Temperature: 0.7})
		if err != nil {
			return "", 0, errors.Wrapf(err, "optimization round %d failed", round)
		}
		rewritten = strings.TrimSpace(rewritten)
		if rewritten == "" {
			logger.Warnw("Model returned empty rewrite, skipping round", "round", round)
			continue
		}

		score, err := o.Evaluate(ctx, rewritten, cases)
		if err != nil {
			return "", 0, errors.Wrapf(err, "scoring round %d failed", round)
		}
		logger.Debugw("Optimization round scored", "round", round, "score", score, "best", bestScore)

		if score > bestScore {
			best, bestScore = rewritten, score
		}
	}
	return best, bestScore, nil
}

// Evaluate asks the model for a 0-100 rating of the content. Test
// cases, when present, are included as context for the rating.
func (o *LLMOptimizer) Evaluate(ctx context.Context, content string, cases []TestCase) (float64, error) {
	var b strings.Builder
	b.WriteString("Prompt:\n")
	b.WriteString(content)
	if len(cases) > 0 {
		b.WriteString("\n\nIt should handle these cases:\n")
		for _, tc := range cases {
			fmt.Fprintf(&b, "- input: %s -> expected: %s\n", tc.Input, tc.Expected)
		}
	}
	b.WriteString("\nScore:")

	reply, err := o.client.Complete(ctx, scoreSystem, b.String(), &llm.CompletionOpts{Temperature: 0, MaxTokens: 10})
	if err != nil {
		return 0, errors.Wrap(err, "scoring request failed")
	}
	return parseScore(reply)
}

// parseScore extracts the first integer from the model's reply and
// clamps it to [0, 100].
func parseScore(reply string) (float64, error) {
	for _, field := range strings.Fields(reply) {
		field = strings.Trim(field, ".,:%")
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if n < 0 {
			n = 0
		}
		if n > 100 {
			n = 100
		}
		return float64(n), nil
	}
	return 0, errors.Newf("model reply %q contains no score", reply)
}

// LLMAgent runs single-round optimize passes until the target score is
// reached, tracking the best version across rounds.
type LLMAgent struct {
	optimizer Optimizer
}

// NewLLMAgent creates an agent that improves prompts through the given
// optimizer.
func NewLLMAgent(optimizer Optimizer) *LLMAgent {
	return &LLMAgent{optimizer: optimizer}
}

// Run performs up to rounds improvement passes, stopping early once
// minScore is reached.
func (a *LLMAgent) Run(ctx context.Context, content string, rounds int, minScore float64, cases []TestCase) (string, float64, error) {
	best := content
	bestScore := 0.0

	for round := 1; round <= rounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		candidate, score, err := a.optimizer.Optimize(ctx, best, 1, cases)
		if err != nil {
			return "", 0, errors.Wrapf(err, "agent round %d failed", round)
		}
		if score > bestScore {
			best, bestScore = candidate, score
			logger.Debugw("Agent found new best version", "round", round, "score", score)
		}
		if bestScore >= minScore {
			logger.Infow("Agent reached target score, stopping early",
				"round", round,
				"score", bestScore,
				"target", minScore)
			break
		}
	}
	return best, bestScore, nil
}
