package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/entry"
)

func skeleton(typ entry.Type, seq int, text string) entry.ConversationEntry {
	return entry.NewSkeleton("sess-1", seq, typ, text, "2026-01-01T00:00:00Z", 1735689600)
}

func TestEnrich_IsPureAcrossRuns(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)
	e := skeleton(entry.TypeAssistant, 2, "Here's the code:\n```go\nfunc main() {}\n```\nI've implemented the fix, run `go test ./...` to verify.")

	first := p.Enrich(e, nil)
	second := p.Enrich(e, nil)
	assert.Equal(t, first, second)
}

func TestEnrich_DetectsCodeAndTools(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)
	e := skeleton(entry.TypeAssistant, 1, "Run this:\n$ git status\nthen use bash to check the output.")
	got := p.Enrich(e, nil)
	assert.True(t, got.HasCode)
	assert.Contains(t, got.ToolsUsed, "git")
	assert.Contains(t, got.ToolsUsed, "bash")
}

func TestEnrich_SolutionClassification_StrongIndicator(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)
	e := skeleton(entry.TypeAssistant, 1, "```go\nfunc fix() {}\n```")
	got := p.Enrich(e, nil)
	assert.True(t, got.IsSolutionAttempt)
	assert.Equal(t, "code_edit", got.SolutionCategory)
	assert.Equal(t, 1.0, got.SolutionQualityScore)
}

func TestEnrich_SolutionClassification_TwoPatternCategories(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)
	// "I've implemented" (implementation) + "this resolves" (resolution) = 2 categories.
	e := skeleton(entry.TypeAssistant, 1, "I've implemented a small change and this resolves the crash.")
	got := p.Enrich(e, nil)
	assert.True(t, got.IsSolutionAttempt)
}

func TestEnrich_SolutionClassification_NotASolution(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)
	e := skeleton(entry.TypeAssistant, 1, "Sure, happy to help with that.")
	got := p.Enrich(e, nil)
	assert.False(t, got.IsSolutionAttempt)
	assert.Empty(t, got.SolutionCategory)
}

func TestEnrich_FeedbackRequiresAssistantSolutionPredecessor(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)

	solution := skeleton(entry.TypeAssistant, 1, "```go\nfunc fix() {}\n```")
	solution = p.Enrich(solution, nil)
	require.True(t, solution.IsSolutionAttempt)

	feedback := skeleton(entry.TypeUser, 2, "That worked, thanks!")
	got := p.Enrich(feedback, &solution)
	assert.True(t, got.IsFeedbackToSolution)
	assert.Equal(t, entry.SentimentPositive, got.UserFeedbackSentiment)
	assert.Greater(t, got.ValidationStrength, 0.0)
}

func TestEnrich_FeedbackNotSetWithoutSolutionPredecessor(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)
	nonSolution := skeleton(entry.TypeAssistant, 1, "Sure, happy to help.")
	nonSolution = p.Enrich(nonSolution, nil)

	feedback := skeleton(entry.TypeUser, 2, "That worked, thanks!")
	got := p.Enrich(feedback, &nonSolution)
	assert.False(t, got.IsFeedbackToSolution)
	assert.Equal(t, entry.SentimentNone, got.UserFeedbackSentiment)
}

func TestEnrich_TopicDetection(t *testing.T) {
	p := New(DefaultTopicLexicon(), DefaultSolutionPatterns(), nil, nil)
	e := skeleton(entry.TypeUser, 1, "We're seeing a 401 error when the oauth token expires during login.")
	got := p.Enrich(e, nil)
	assert.Contains(t, got.DetectedTopics, "authentication")
}

func TestClassifyFeedback_NegativeLexicon(t *testing.T) {
	sentiment, strength := classifyFeedback("that did not work, still broken", nil, nil)
	assert.Equal(t, entry.SentimentNegative, sentiment)
	assert.Greater(t, strength, 0.0)
}
