// Package search implements the unified search entry point (C8):
// a mode-routed, multi-factor-ranked query over the vector store, with
// composable filters and optional context-chain expansion.
package search

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"chronicle/internal/chronicleerr"
	"chronicle/internal/config"
	"chronicle/internal/entry"
	"chronicle/internal/learn"
	"chronicle/internal/store"
)

// Mode selects the ranking/filtering strategy. The exact string values
// are part of the external tool contract (§6.1) and must never change.
type Mode string

const (
	ModeSemantic      Mode = "semantic"
	ModeValidatedOnly Mode = "validated_only"
	ModeFailedOnly    Mode = "failed_only"
	ModeRecentOnly    Mode = "recent_only"
	ModeByTopic       Mode = "by_topic"
	ModeTime          Mode = "time"
)

// ValidationPreference narrows candidates by their validation history.
type ValidationPreference string

const (
	ValidationNeutral         ValidationPreference = "neutral"
	ValidationValidatedOnly   ValidationPreference = "validated_only"
	ValidationIncludeFailures ValidationPreference = "include_failures"
)

// DateRange bounds a search to [Start, End] inclusive, in unix seconds.
type DateRange struct {
	Start int64
	End   int64
}

// Request is C8's single entry-point parameter record.
type Request struct {
	Query                 string
	Mode                  Mode
	Limit                 int
	ProjectContext        string
	TopicFocus            string
	ValidationPreference  ValidationPreference
	DateRange             *DateRange
	Recency               string
	EntryType             entry.Type
	IncludeCodeOnly       bool
	IncludeContextChains  bool
	ChainLength           int
	MinValidationStrength float64
	UseValidationBoost    bool
	PreferRecent          bool
}

// ChainEntry annotates one entry in a context chain with its role
// relative to the anchor result.
type ChainEntry struct {
	Entry    entry.ConversationEntry
	Relation string // "previous" | "next"
}

// ResultItem is one ranked hit.
type ResultItem struct {
	Entry         entry.ConversationEntry
	Score         float64
	AppliedBoosts map[string]float64
	ContextChain  []ChainEntry
}

// Response is C8's structured output. Empty is never an error condition
// — per §4.8's empty-result policy, Message explains why when Results
// is empty.
type Response struct {
	Mode    Mode
	Results []ResultItem
	Empty   bool
	Message string
}

// Searcher runs C8 against a store, consulting the C9 learner for the
// validation boost when requested.
type Searcher struct {
	Store   *store.Adapter
	Learner *learn.Learner
	Ranking config.RankingConfig
	Now     func() time.Time
}

const defaultOverfetchFactor = 5

// Search routes req to the appropriate mode and returns ranked results.
// It never returns a bare Go error for "nothing matched" — only for
// malformed parameter combinations (an unknown mode, or by_topic
// without topic_focus), matching §6.1's "unknown modes/parameter
// values produce a precise error" contract.
func (s *Searcher) Search(ctx context.Context, req Request) (Response, error) {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.ChainLength <= 0 {
		req.ChainLength = 2
	}

	switch req.Mode {
	case ModeSemantic, ModeValidatedOnly, ModeFailedOnly, ModeRecentOnly, ModeByTopic, ModeTime:
	case "":
		req.Mode = ModeSemantic
	default:
		return Response{}, chronicleerr.New(chronicleerr.KindValidationFailed, "unknown_search_mode",
			"search_mode must be one of: semantic, validated_only, failed_only, recent_only, by_topic, time")
	}
	if req.Mode == ModeByTopic && req.TopicFocus == "" {
		return Response{}, chronicleerr.New(chronicleerr.KindValidationFailed, "missing_topic_focus",
			"by_topic mode requires topic_focus")
	}

	var items []ResultItem
	var err error
	switch req.Mode {
	case ModeRecentOnly:
		items, err = s.searchRecentOnly(ctx, req)
	case ModeTime:
		items, err = s.searchTime(ctx, req)
	default:
		items, err = s.searchRanked(ctx, req)
	}
	if err != nil {
		return Response{Mode: req.Mode, Empty: true, Message: "search failed: " + err.Error()}, nil
	}

	if req.IncludeContextChains {
		for i := range items {
			items[i].ContextChain = s.buildChain(ctx, items[i].Entry, req.ChainLength)
		}
	}

	if len(items) == 0 {
		return Response{Mode: req.Mode, Empty: true, Message: "no matching conversation entries found"}, nil
	}
	return Response{Mode: req.Mode, Results: items}, nil
}

func (s *Searcher) searchRecentOnly(ctx context.Context, req Request) ([]ResultItem, error) {
	filter := s.baseFilter(req)
	entries, err := s.Store.GetWhere(ctx, filter, 0)
	if err != nil {
		return nil, err
	}
	entries = s.applyPostFilters(entries, req)
	sort.Slice(entries, func(i, j int) bool { return entries[i].TimestampUnix > entries[j].TimestampUnix })
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	out := make([]ResultItem, len(entries))
	for i, e := range entries {
		out[i] = ResultItem{Entry: e, Score: float64(e.TimestampUnix)}
	}
	return out, nil
}

func (s *Searcher) searchTime(ctx context.Context, req Request) ([]ResultItem, error) {
	dr := req.DateRange
	if dr == nil {
		if parsed, ok := parseTimeWindow(req.Recency, s.now()); ok {
			dr = &parsed
		}
	}
	if req.Query == "" || req.Query == "*" {
		recentReq := req
		recentReq.DateRange = dr
		items, err := s.searchRecentOnly(ctx, recentReq)
		if err != nil {
			return nil, err
		}
		return filterByDateRange(items, dr), nil
	}
	rankedReq := req
	rankedReq.DateRange = dr
	return s.searchRanked(ctx, rankedReq)
}

func (s *Searcher) searchRanked(ctx context.Context, req Request) ([]ResultItem, error) {
	filter := s.baseFilter(req)
	k := req.Limit * defaultOverfetchFactor
	results, err := s.Store.Query(ctx, req.Query, k, filter)
	if err != nil {
		return nil, err
	}

	candidates := make([]entry.ConversationEntry, len(results))
	baseScores := make([]float64, len(results))
	for i, r := range results {
		candidates[i] = r.Entry
		baseScores[i] = r.Score
	}
	candidates = s.applyModeFilter(ctx, candidates, baseScores, req, &baseScores)

	items := make([]ResultItem, 0, len(candidates))
	for i, e := range candidates {
		score, boosts := s.score(e, baseScores[i], req)
		items = append(items, ResultItem{Entry: e, Score: score, AppliedBoosts: boosts})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Entry.TimestampUnix > items[j].Entry.TimestampUnix
	})
	if len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return items, nil
}

// applyModeFilter narrows candidates for validated_only/failed_only,
// pruning baseScores in lockstep.
func (s *Searcher) applyModeFilter(ctx context.Context, candidates []entry.ConversationEntry, baseScores []float64, req Request, out *[]float64) []entry.ConversationEntry {
	filtered := s.applyPostFilters(candidates, req)

	switch req.Mode {
	case ModeValidatedOnly:
		var kept []entry.ConversationEntry
		var keptScores []float64
		for _, e := range filtered {
			if e.IsSolutionAttempt && e.SolutionQualityScore >= s.Ranking.ValidatedQualityThreshold {
				sentiment, strength, ok := s.resolveFeedback(ctx, e)
				if ok && sentiment == entry.SentimentPositive && strength >= s.Ranking.MinValidationStrength {
					kept = append(kept, e)
					keptScores = append(keptScores, scoreAt(baseScores, candidates, e))
				}
			}
		}
		*out = keptScores
		return kept
	case ModeFailedOnly:
		var kept []entry.ConversationEntry
		var keptScores []float64
		for _, e := range filtered {
			if !e.IsSolutionAttempt {
				continue
			}
			sentiment, _, ok := s.resolveFeedback(ctx, e)
			if ok && sentiment == entry.SentimentNegative {
				kept = append(kept, e)
				keptScores = append(keptScores, scoreAt(baseScores, candidates, e))
			}
		}
		*out = keptScores
		return kept
	default:
		*out = rescoreFiltered(baseScores, candidates, filtered)
		return filtered
	}
}

func scoreAt(baseScores []float64, original []entry.ConversationEntry, target entry.ConversationEntry) float64 {
	for i, e := range original {
		if e.ID == target.ID {
			return baseScores[i]
		}
	}
	return 0
}

func rescoreFiltered(baseScores []float64, original, filtered []entry.ConversationEntry) []float64 {
	out := make([]float64, len(filtered))
	for i, e := range filtered {
		out[i] = scoreAt(baseScores, original, e)
	}
	return out
}

// resolveFeedback looks up the feedback entry paired with a solution
// (via feedback_message_id, populated by C7) and returns its sentiment.
func (s *Searcher) resolveFeedback(ctx context.Context, solution entry.ConversationEntry) (entry.Sentiment, float64, bool) {
	if solution.FeedbackMessageID == "" {
		return "", 0, false
	}
	got, err := s.Store.Get(ctx, []string{solution.FeedbackMessageID})
	if err != nil || len(got) == 0 {
		return "", 0, false
	}
	fb := got[0]
	return fb.UserFeedbackSentiment, fb.ValidationStrength, true
}

func (s *Searcher) applyPostFilters(entries []entry.ConversationEntry, req Request) []entry.ConversationEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if req.IncludeCodeOnly && !e.HasCode {
			continue
		}
		if req.EntryType != "" && e.Type != req.EntryType {
			continue
		}
		if req.TopicFocus != "" {
			if _, ok := e.DetectedTopics[req.TopicFocus]; !ok {
				continue
			}
		}
		if req.DateRange != nil {
			if e.TimestampUnix < req.DateRange.Start || e.TimestampUnix > req.DateRange.End {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func filterByDateRange(items []ResultItem, dr *DateRange) []ResultItem {
	if dr == nil {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if it.Entry.TimestampUnix >= dr.Start && it.Entry.TimestampUnix <= dr.End {
			out = append(out, it)
		}
	}
	return out
}

func (s *Searcher) baseFilter(req Request) map[string]string {
	filter := map[string]string{}
	if req.ProjectContext != "" {
		filter["project_name"] = req.ProjectContext
	}
	return filter
}

// score applies the §4.8 multi-factor formula. Every boost is ≥0 and
// neutral at 1.0 when its triggering condition is absent.
func (s *Searcher) score(e entry.ConversationEntry, base float64, req Request) (float64, map[string]float64) {
	boosts := map[string]float64{
		"project_boost":    1.0,
		"topic_boost":      1.0,
		"quality_boost":    1.0,
		"validation_boost": 1.0,
		"recency_boost":    1.0,
	}

	if req.ProjectContext != "" && e.ProjectName == req.ProjectContext {
		boosts["project_boost"] = 1.2
	}

	if len(e.DetectedTopics) > 0 {
		var strongest float64
		for _, v := range e.DetectedTopics {
			if v > strongest {
				strongest = v
			}
		}
		boosts["topic_boost"] = 1.0 + s.Ranking.TopicBoostWeight*strongest
	}

	if e.IsSolutionAttempt && e.SolutionQualityScore > 0 {
		boosts["quality_boost"] = e.SolutionQualityScore
	}

	if req.UseValidationBoost && s.Learner != nil {
		boosts["validation_boost"] = s.Learner.StatsFor(e.ProjectName, e.SolutionCategory).ValidationBoost()
	}

	if req.PreferRecent {
		halfLife := s.Ranking.RecencyBoostHalfLifeDays
		if halfLife <= 0 {
			halfLife = 14
		}
		ageDays := s.now().Sub(time.Unix(e.TimestampUnix, 0)).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		boosts["recency_boost"] = math.Pow(0.5, ageDays/halfLife)
	}

	score := base
	for _, b := range boosts {
		score *= b
	}
	return score, boosts
}

// buildChain fetches up to chainLength entries on each side of anchor
// via previous_message_id/next_message_id. This expansion never
// changes the primary ranking — it is attached after scoring.
func (s *Searcher) buildChain(ctx context.Context, anchor entry.ConversationEntry, chainLength int) []ChainEntry {
	var chain []ChainEntry

	cursor := anchor.PreviousMessageID
	for i := 0; i < chainLength && cursor != ""; i++ {
		got, err := s.Store.Get(ctx, []string{cursor})
		if err != nil || len(got) == 0 {
			break
		}
		chain = append([]ChainEntry{{Entry: got[0], Relation: "previous"}}, chain...)
		cursor = got[0].PreviousMessageID
	}

	cursor = anchor.NextMessageID
	for i := 0; i < chainLength && cursor != ""; i++ {
		got, err := s.Store.Get(ctx, []string{cursor})
		if err != nil || len(got) == 0 {
			break
		}
		chain = append(chain, ChainEntry{Entry: got[0], Relation: "next"})
		cursor = got[0].NextMessageID
	}

	return chain
}

// GetContextChain resolves messageID and returns it alongside its
// surrounding chain, for get_conversation_context_chain — the
// single-anchor counterpart to the context-chain expansion Search
// attaches to ranked results.
func (s *Searcher) GetContextChain(ctx context.Context, messageID string, chainLength int) (entry.ConversationEntry, []ChainEntry, error) {
	got, err := s.Store.Get(ctx, []string{messageID})
	if err != nil {
		return entry.ConversationEntry{}, nil, err
	}
	if len(got) == 0 {
		return entry.ConversationEntry{}, nil, chronicleerr.New(chronicleerr.KindNotFound, "message_not_found",
			"no conversation entry with that message_id")
	}
	if chainLength <= 0 {
		chainLength = 2
	}
	return got[0], s.buildChain(ctx, got[0], chainLength), nil
}

func (s *Searcher) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// parseTimeWindow turns a small set of natural-language recency
// phrases into a concrete unix-second range ending now. Unrecognized
// phrases report ok=false, leaving the caller to fall back to an
// explicit DateRange or no window at all.
func parseTimeWindow(phrase string, now time.Time) (DateRange, bool) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	end := now.Unix()
	switch {
	case p == "":
		return DateRange{}, false
	case p == "today":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return DateRange{Start: start.Unix(), End: end}, true
	case p == "yesterday":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
		return DateRange{Start: start.Unix(), End: start.AddDate(0, 0, 1).Unix()}, true
	case p == "this week":
		weekday := int(now.Weekday())
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -weekday)
		return DateRange{Start: start.Unix(), End: end}, true
	case p == "last week":
		weekday := int(now.Weekday())
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -weekday-7)
		return DateRange{Start: start.Unix(), End: start.AddDate(0, 0, 7).Unix()}, true
	case strings.HasSuffix(p, "days") && strings.HasPrefix(p, "last "):
		fields := strings.Fields(p)
		if len(fields) != 3 {
			return DateRange{}, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return DateRange{}, false
		}
		start := now.AddDate(0, 0, -n)
		return DateRange{Start: start.Unix(), End: end}, true
	default:
		return DateRange{}, false
	}
}
