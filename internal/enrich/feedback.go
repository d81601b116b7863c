package enrich

import (
	"math"
	"strings"

	"chronicle/internal/entry"
)

// Embedder is the narrow slice of the pluggable text->vector encoder
// this package needs for the centroid-similarity modality. It mirrors
// the store package's Embedder but is declared independently so enrich
// never imports store (enrichment stays a pure, dependency-light
// function of entry+predecessor).
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// feedbackLexicon is the phrase list for the lexicon/pattern modality.
var feedbackLexicon = map[entry.Sentiment][]string{
	entry.SentimentPositive: {"thanks", "thank you", "that worked", "it works", "works now", "perfect", "great, that", "awesome", "fixed it", "that fixed it", "resolved", "works great"},
	entry.SentimentNegative: {"didn't work", "did not work", "doesn't work", "does not work", "still failing", "still broken", "that's wrong", "that is wrong", "error persists", "no luck", "still the same error", "worse"},
	entry.SentimentPartial:  {"almost", "partially", "somewhat", "better but", "closer but", "still an issue", "one more thing", "mostly works"},
}

// technicalDomainCues bias the classification toward negative when a
// build/test/runtime/deploy failure is mentioned alongside an otherwise
// neutral phrase, and toward positive when such a process is reported
// passing.
var technicalDomainPositiveCues = []string{"tests pass", "build succeeded", "deploy succeeded", "pipeline green", "all green", "compiles now"}
var technicalDomainNegativeCues = []string{"tests fail", "build failed", "deploy failed", "pipeline red", "still crashes", "won't compile", "wont compile"}

// modalityVerdict is one classifier's opinion plus how much to trust it.
type modalityVerdict struct {
	sentiment  entry.Sentiment
	confidence float64
}

// classifyFeedback runs the three feedback modalities described in spec
// §4.3 stage 4 and fuses them by confidence-weighted vote. embedder may
// be nil, in which case the centroid modality is skipped — enrichment
// remains deterministic as long as the configured embedder (if any) is
// itself deterministic.
func classifyFeedback(text string, embedder Embedder, centroids map[entry.Sentiment][]float32) (entry.Sentiment, float64) {
	var votes []modalityVerdict

	if v, ok := lexicalVerdict(text); ok {
		votes = append(votes, v)
	}
	if embedder != nil && len(centroids) > 0 {
		if v, ok := centroidVerdict(text, embedder, centroids); ok {
			votes = append(votes, v)
		}
	}
	if v, ok := technicalDomainVerdict(text); ok {
		votes = append(votes, v)
	}

	if len(votes) == 0 {
		return entry.SentimentNone, 0
	}

	totals := map[entry.Sentiment]float64{}
	var totalWeight float64
	for _, v := range votes {
		totals[v.sentiment] += v.confidence
		totalWeight += v.confidence
	}
	if totalWeight == 0 {
		return entry.SentimentNone, 0
	}

	best := entry.SentimentNone
	bestScore := -1.0
	for s, score := range totals {
		if score > bestScore {
			best, bestScore = s, score
		}
	}

	confidence := bestScore / totalWeight
	agreeing := 0
	for _, v := range votes {
		if v.sentiment == best {
			agreeing++
		}
	}
	if agreeing > 1 {
		confidence = math.Min(1, confidence+0.1*float64(agreeing-1))
	}
	return best, clamp01(confidence)
}

func lexicalVerdict(text string) (modalityVerdict, bool) {
	lower := strings.ToLower(text)
	bestSentiment := entry.SentimentNone
	bestHits := 0
	// Fixed order, so a tie in hit count always resolves the same way:
	// the earlier sentiment in this list wins.
	for _, sentiment := range []entry.Sentiment{entry.SentimentNegative, entry.SentimentPartial, entry.SentimentPositive} {
		phrases := feedbackLexicon[sentiment]
		hits := 0
		for _, p := range phrases {
			if strings.Contains(lower, p) {
				hits++
			}
		}
		if hits > bestHits {
			bestSentiment, bestHits = sentiment, hits
		}
	}
	if bestHits == 0 {
		return modalityVerdict{}, false
	}
	confidence := math.Min(1, 0.4+0.2*float64(bestHits))
	return modalityVerdict{sentiment: bestSentiment, confidence: confidence}, true
}

func technicalDomainVerdict(text string) (modalityVerdict, bool) {
	lower := strings.ToLower(text)
	if contains(lower, technicalDomainPositiveCues...) {
		return modalityVerdict{sentiment: entry.SentimentPositive, confidence: 0.5}, true
	}
	if contains(lower, technicalDomainNegativeCues...) {
		return modalityVerdict{sentiment: entry.SentimentNegative, confidence: 0.5}, true
	}
	return modalityVerdict{}, false
}

func centroidVerdict(text string, embedder Embedder, centroids map[entry.Sentiment][]float32) (modalityVerdict, bool) {
	vec, err := embedder.Embed(text)
	if err != nil || len(vec) == 0 {
		return modalityVerdict{}, false
	}
	best := entry.SentimentNone
	bestSim := -2.0
	for sentiment, centroid := range centroids {
		sim := cosineSimilarity(vec, centroid)
		if sim > bestSim {
			best, bestSim = sentiment, sim
		}
	}
	if bestSim <= 0 {
		return modalityVerdict{}, false
	}
	return modalityVerdict{sentiment: best, confidence: clamp01(bestSim)}, true
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DefaultCentroidSeeds provides a short phrase set per sentiment that a
// Pipeline can embed once at construction time to build centroid
// vectors, when its configured Embedder supports it. Kept here (rather
// than computed ad hoc) so the seed phrases are reviewable.
func DefaultCentroidSeeds() map[entry.Sentiment][]string {
	return map[entry.Sentiment][]string{
		entry.SentimentPositive: {"that worked perfectly, thank you", "it's fixed now", "great, works as expected"},
		entry.SentimentNegative: {"that did not fix it", "still broken, same error", "this made it worse"},
		entry.SentimentPartial:  {"that helped a bit but there's still an issue", "partially working now"},
	}
}
