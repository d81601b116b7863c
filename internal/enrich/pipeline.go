// Package enrich implements the enrichment pipeline (C3): the pure
// function from a raw entry skeleton plus its immediate predecessor to a
// fully annotated ConversationEntry. It runs identically from the
// real-time ingest path and from the batch orchestrator — any divergence
// between the two call sites is a bug, not a feature.
package enrich

import (
	"chronicle/internal/entry"
)

// TopicThreshold is the minimum lexicon score a topic must clear to
// appear in detected_topics.
const TopicThreshold = 0.15

// Logger is the narrow logging seam enrichment stages use to report a
// failing stage without aborting the entry. A nil Logger is a silent
// no-op, matching Pipeline's zero value being immediately usable.
type Logger interface {
	Warn(stage string, err error)
}

// Pipeline holds the lexicons, pattern sets, and optional embedder that
// parameterize enrichment. Constructed once per process and reused
// across every call — enrichment's determinism requirement depends on
// these staying fixed for the process lifetime.
type Pipeline struct {
	Topics    TopicLexicon
	Patterns  SolutionPatternSet
	Embedder  Embedder
	centroids map[entry.Sentiment][]float32
	logger    Logger
}

// New builds a Pipeline. If embedder is non-nil, sentiment centroids are
// computed once from DefaultCentroidSeeds by averaging each sentiment's
// seed-phrase embeddings.
func New(topics TopicLexicon, patterns SolutionPatternSet, embedder Embedder, logger Logger) *Pipeline {
	p := &Pipeline{Topics: topics, Patterns: patterns, Embedder: embedder, logger: logger}
	if embedder != nil {
		p.centroids = buildCentroids(embedder, DefaultCentroidSeeds())
	}
	return p
}

func buildCentroids(embedder Embedder, seeds map[entry.Sentiment][]string) map[entry.Sentiment][]float32 {
	centroids := map[entry.Sentiment][]float32{}
	for sentiment, phrases := range seeds {
		var sum []float32
		count := 0
		for _, phrase := range phrases {
			vec, err := embedder.Embed(phrase)
			if err != nil || len(vec) == 0 {
				continue
			}
			if sum == nil {
				sum = make([]float32, len(vec))
			}
			for i := range vec {
				if i < len(sum) {
					sum[i] += vec[i]
				}
			}
			count++
		}
		if count == 0 {
			continue
		}
		for i := range sum {
			sum[i] /= float32(count)
		}
		centroids[sentiment] = sum
	}
	return centroids
}

func (p *Pipeline) warn(stage string, err error) {
	if p.logger != nil && err != nil {
		p.logger.Warn(stage, err)
	}
}

// Enrich populates every field stage 4.3 describes onto skeleton, using
// predecessor (nil for the first entry in a session) for feedback
// classification and for setting previous_message_id — the one
// relationship field the real-time path itself writes; next_message_id
// and the rest of the chain are C7's job. Each stage is independent: a
// failing stage leaves its fields at zero value and enrichment
// continues — it never aborts the entry.
func (p *Pipeline) Enrich(skeleton entry.ConversationEntry, predecessor *entry.ConversationEntry) entry.ConversationEntry {
	e := skeleton

	func() {
		defer p.recoverStage("text_features")
		e.HasCode = detectHasCode(e.Text)
		e.ToolsUsed = detectToolsUsed(e.Text)
	}()

	func() {
		defer p.recoverStage("topic_detection")
		e.DetectedTopics = p.detectTopics(e.Text)
	}()

	if e.Type == entry.TypeAssistant {
		func() {
			defer p.recoverStage("solution_classification")
			e.IsSolutionAttempt, e.SolutionCategory = classifySolution(e.Text, e.HasCode, p.Patterns)
		}()
		e.SolutionQualityScore = 1.0
	}

	if e.Type == entry.TypeUser && predecessor != nil &&
		predecessor.Type == entry.TypeAssistant && predecessor.IsSolutionAttempt {
		func() {
			defer p.recoverStage("feedback_classification")
			e.IsFeedbackToSolution = true
			sentiment, strength := classifyFeedback(e.Text, p.Embedder, p.centroids)
			e.UserFeedbackSentiment = sentiment
			e.ValidationStrength = strength
		}()
	}
	if e.UserFeedbackSentiment == "" {
		e.UserFeedbackSentiment = entry.SentimentNone
	}

	if predecessor != nil {
		e.PreviousMessageID = predecessor.ID
	}

	return e
}

// recoverStage converts a panicking stage into a logged, fail-soft no-op
// so one bad stage (e.g. a nil-map panic from a misconfigured lexicon)
// cannot take down the whole entry.
func (p *Pipeline) recoverStage(stage string) {
	if r := recover(); r != nil {
		p.warn(stage, panicToErr(r))
	}
}

// ClassifyFeedbackStandalone runs stage 4 (feedback sentiment
// classification) in isolation, for callers (C7) that already know
// text follows a solution attempt and only need the verdict, not a
// full Enrich pass.
func (p *Pipeline) ClassifyFeedbackStandalone(text string) (entry.Sentiment, float64) {
	return classifyFeedback(text, p.Embedder, p.centroids)
}

func (p *Pipeline) detectTopics(text string) map[string]float64 {
	scored := p.Topics.score(toLower(text))
	out := map[string]float64{}
	for topic, score := range scored {
		if score >= TopicThreshold {
			out[topic] = score
		}
	}
	return out
}
