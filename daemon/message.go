package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/promptctl/promptctl/llm"
	"github.com/promptctl/promptctl/logger"
)

// MessageGenerator produces a commit message for a set of changed files.
// Implementations must return the fallback on any internal failure;
// message generation is never allowed to block or break a commit.
type MessageGenerator interface {
	GenerateCommitMessage(ctx context.Context, changedFiles []string, fallback string) string
}

// FallbackMessage builds the fixed auto-commit message used when no
// generator is configured or a generator fails.
func FallbackMessage(now time.Time) string {
	return "Auto-commit: " + now.Format("2006-01-02 15:04:05")
}

// StaticGenerator always returns the fallback message.
type StaticGenerator struct{}

func (StaticGenerator) GenerateCommitMessage(_ context.Context, _ []string, fallback string) string {
	return fallback
}

// maxMessageLength rejects rambling model output; 72 is the
// conventional commit subject limit.
const maxMessageLength = 72

// maxFilesInPrompt bounds how many changed files are named in the
// model prompt.
const maxFilesInPrompt = 5

// completeFunc is the narrow completion surface the generator needs;
// tests substitute fakes without standing up an inference server.
type completeFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// LLMGenerator generates commit messages with a local model, rate
// limited so a busy daemon cannot hammer the inference server.
type LLMGenerator struct {
	complete completeFunc
	limiter  *rate.Limiter
}

// NewLLMGenerator wraps a completion function with rate limiting.
// maxPerMinute <= 0 disables the limit.
func NewLLMGenerator(complete completeFunc, maxPerMinute int) *LLMGenerator {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if maxPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(maxPerMinute)), 1)
	}
	return &LLMGenerator{complete: complete, limiter: limiter}
}

// NewOllamaGenerator builds an LLMGenerator backed by an llm.Client,
// with low temperature and a short token budget so output stays close
// to a single subject line.
func NewOllamaGenerator(client *llm.Client, maxPerMinute int) *LLMGenerator {
	return NewLLMGenerator(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		return client.Complete(ctx, systemPrompt, userPrompt, &llm.CompletionOpts{
			Temperature: 0.3,
			MaxTokens:   50,
		})
	}, maxPerMinute)
}

// GenerateCommitMessage asks the model for a one-line commit message.
// Any failure, rate limit hit, or unusable output yields the fallback.
func (g *LLMGenerator) GenerateCommitMessage(ctx context.Context, changedFiles []string, fallback string) string {
	if !g.limiter.Allow() {
		logger.Debugw("Commit message generation rate limited, using fallback")
		return fallback
	}

	fileList := strings.Join(truncateList(changedFiles, maxFilesInPrompt), ", ")
	if extra := len(changedFiles) - maxFilesInPrompt; extra > 0 {
		fileList = fmt.Sprintf("%s and %d more", fileList, extra)
	}

	userPrompt := fmt.Sprintf(
		"Write ONLY a git commit message (max 50 chars, no quotes or explanation) for:\nFiles: %s\nMessage:",
		fileList)

	out, err := g.complete(ctx, "", userPrompt)
	if err != nil {
		logger.Debugw("Commit message generation failed, using fallback", "error", err)
		return fallback
	}

	message := cleanMessage(out)
	if message == "" || len(message) > maxMessageLength {
		logger.Debugw("Generated commit message unusable, using fallback",
			"length", len(message))
		return fallback
	}
	return message
}

// cleanMessage keeps the first line and strips wrapping quotes and
// backticks the model tends to add.
func cleanMessage(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.Trim(line, "`\"' ")
}

func truncateList(list []string, max int) []string {
	if len(list) > max {
		return list[:max]
	}
	return list
}
