// Package learn implements the feedback learner (C9): adjusting a
// solution's quality score from observed feedback and maintaining
// per-project/topic aggregate statistics C8 consults for its
// validation boost.
package learn

import (
	"context"
	"fmt"
	"sync"

	"chronicle/internal/config"
	"chronicle/internal/entry"
	"chronicle/internal/store"
)

// ProjectTopicStats is the running aggregate for one project+topic pair.
type ProjectTopicStats struct {
	PositiveCount int
	NegativeCount int
	PartialCount  int
	MeanStrength  float64
}

// ValidationBoost derives C8's validation_boost from the aggregate:
// neutral at 1.0, lifted by a history of positive feedback, depressed
// by a history of negative feedback.
func (s ProjectTopicStats) ValidationBoost() float64 {
	total := s.PositiveCount + s.NegativeCount + s.PartialCount
	if total == 0 {
		return 1.0
	}
	net := float64(s.PositiveCount+s.PartialCount-s.NegativeCount) / float64(total)
	boost := 1.0 + 0.2*net*s.MeanStrength
	if boost < 0 {
		return 0
	}
	return boost
}

// Learner observes solution-feedback pairings and updates quality
// scores and aggregate stats. Every update is serialized through mu so
// concurrent pairings (from C7's per-session fan-out, or explicit
// process_feedback_unified tool calls) never race on the same
// project/topic bucket.
type Learner struct {
	Store  *store.Adapter
	Config config.LearnerConfig

	mu    sync.Mutex
	stats map[string]*ProjectTopicStats
}

// New builds a Learner with empty aggregate statistics.
func New(st *store.Adapter, cfg config.LearnerConfig) *Learner {
	return &Learner{Store: st, Config: cfg, stats: make(map[string]*ProjectTopicStats)}
}

// Report describes one Observe call's outcome.
type Report struct {
	SolutionID         string
	OldQualityScore    float64
	NewQualityScore    float64
	Sentiment          entry.Sentiment
	ValidationStrength float64
}

// Observe applies feedback with the given sentiment and strength to
// solution, persists the adjusted quality score, and folds the
// observation into the solution's project/topic aggregates.
func (l *Learner) Observe(ctx context.Context, solution entry.ConversationEntry, sentiment entry.Sentiment, strength float64) (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := solution.SolutionQualityScore
	updated := solution
	updated.SolutionQualityScore = l.adjust(old, sentiment, strength)

	if err := l.Store.Update(ctx, []entry.ConversationEntry{updated}); err != nil {
		return Report{}, fmt.Errorf("persist quality score for %s: %w", solution.ID, err)
	}

	l.recordStats(updated.ProjectName, updated.SolutionCategory, sentiment, strength)

	return Report{
		SolutionID:         solution.ID,
		OldQualityScore:    old,
		NewQualityScore:    updated.SolutionQualityScore,
		Sentiment:          sentiment,
		ValidationStrength: strength,
	}, nil
}

func (l *Learner) adjust(old float64, sentiment entry.Sentiment, strength float64) float64 {
	cfg := l.Config
	var next float64
	switch sentiment {
	case entry.SentimentPositive:
		next = old + cfg.PositiveAlpha*strength
	case entry.SentimentNegative:
		next = old - cfg.NegativeBeta*strength
	case entry.SentimentPartial:
		next = old + cfg.PartialAlpha*strength
	default:
		return old
	}
	if cfg.QualityCeil > 0 && next > cfg.QualityCeil {
		next = cfg.QualityCeil
	}
	if next < cfg.QualityFloor {
		next = cfg.QualityFloor
	}
	return next
}

func (l *Learner) recordStats(project, topic string, sentiment entry.Sentiment, strength float64) {
	key := statsKey(project, topic)
	s, ok := l.stats[key]
	if !ok {
		s = &ProjectTopicStats{}
		l.stats[key] = s
	}
	switch sentiment {
	case entry.SentimentPositive:
		s.PositiveCount++
	case entry.SentimentNegative:
		s.NegativeCount++
	case entry.SentimentPartial:
		s.PartialCount++
	default:
		return
	}
	total := s.PositiveCount + s.NegativeCount + s.PartialCount
	s.MeanStrength += (strength - s.MeanStrength) / float64(total)
}

// StatsFor returns the current aggregate for project+topic, or the
// zero value (neutral boost) if no observation has touched it yet.
func (l *Learner) StatsFor(project, topic string) ProjectTopicStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.stats[statsKey(project, topic)]; ok {
		return *s
	}
	return ProjectTopicStats{}
}

// Insight pairs one project/topic key with its current aggregate, for
// callers (C10's get_learning_insights) that need every tracked pair
// rather than one looked up by name.
type Insight struct {
	Project string
	Topic   string
	Stats   ProjectTopicStats
}

// All returns every project/topic aggregate observed so far.
func (l *Learner) All() []Insight {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Insight, 0, len(l.stats))
	for key, s := range l.stats {
		project, topic := splitStatsKey(key)
		out = append(out, Insight{Project: project, Topic: topic, Stats: *s})
	}
	return out
}

func statsKey(project, topic string) string { return project + "\x00" + topic }

func splitStatsKey(key string) (project, topic string) {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
