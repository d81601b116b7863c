package enrich

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TopicLexicon maps a topic name to the keywords/phrases that contribute
// to its score. Matching is case-insensitive substring matching against
// the entry text; each hit contributes a fixed weight, and the topic's
// final score is clamped to [0,1].
type TopicLexicon map[string][]string

// DefaultTopicLexicon covers the topics named in spec §4.3. It is used
// whenever no lexicon file is configured or the configured file does
// not exist; a configured file that fails to parse is an error.
func DefaultTopicLexicon() TopicLexicon {
	return TopicLexicon{
		"debugging":        {"error", "exception", "stack trace", "traceback", "panic", "crash", "bug", "debug", "fails", "failing", "failed"},
		"performance":      {"slow", "latency", "throughput", "optimi", "benchmark", "profil", "memory leak", "cpu", "bottleneck"},
		"authentication":   {"auth", "login", "token", "oauth", "jwt", "session", "credential", "password", "permission", "403", "401"},
		"deployment":       {"deploy", "release", "rollout", "kubernetes", "docker", "ci/cd", "pipeline", "staging", "production"},
		"testing":          {"test", "unit test", "integration test", "assert", "mock", "coverage", "flaky"},
		"styling":          {"css", "style", "layout", "color", "font", "ui", "design", "responsive"},
		"database":         {"database", "sql", "query", "migration", "schema", "index", "postgres", "mysql", "table"},
		"api":              {"api", "endpoint", "rest", "graphql", "request", "response", "route", "http"},
		"state_management": {"state", "redux", "store", "reducer", "context", "observable"},
		"configuration":    {"config", "configuration", "environment variable", "env var", "setting", "yaml", "flag"},
	}
}

// LoadTopicLexicon reads a YAML document of {topic: [keywords...]}. A
// missing file is not an error — it yields the default lexicon.
func LoadTopicLexicon(path string) (TopicLexicon, error) {
	if path == "" {
		return DefaultTopicLexicon(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTopicLexicon(), nil
		}
		return nil, err
	}
	var lex TopicLexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, err
	}
	return lex, nil
}

// score returns, per topic, hits/len(keywords) clamped to [0,1].
func (lex TopicLexicon) score(textLower string) map[string]float64 {
	out := map[string]float64{}
	for topic, keywords := range lex {
		if len(keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(textLower, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(keywords))
		if score > 1 {
			score = 1
		}
		out[topic] = score
	}
	return out
}

// SolutionPatternSet groups the phrase categories used by solution
// classification (spec §4.3 stage 3): help, implementation, modification,
// instruction, resolution, guidance.
type SolutionPatternSet map[string][]string

// DefaultSolutionPatterns is used absent a configured pattern file.
func DefaultSolutionPatterns() SolutionPatternSet {
	return SolutionPatternSet{
		"help":           {"here's how", "here is how", "you can", "try this", "this should help"},
		"implementation": {"i've implemented", "i implemented", "added a", "created a", "wrote a", "here's the code", "here is the code"},
		"modification":   {"i've updated", "i updated", "changed the", "modified the", "fixed the", "refactored"},
		"instruction":    {"run the following", "execute this", "follow these steps", "step 1", "first,", "next,"},
		"resolution":     {"this resolves", "this fixes", "should resolve", "should fix", "that should do it"},
		"guidance":       {"i recommend", "i suggest", "consider using", "best practice", "you should"},
	}
}

// LoadSolutionPatterns reads a YAML document of {category: [phrases...]}.
func LoadSolutionPatterns(path string) (SolutionPatternSet, error) {
	if path == "" {
		return DefaultSolutionPatterns(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSolutionPatterns(), nil
		}
		return nil, err
	}
	var set SolutionPatternSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return set, nil
}

// matchedCategories returns the category names with at least one phrase
// hit in textLower.
func (s SolutionPatternSet) matchedCategories(textLower string) []string {
	var matched []string
	for category, phrases := range s {
		for _, p := range phrases {
			if strings.Contains(textLower, strings.ToLower(p)) {
				matched = append(matched, category)
				break
			}
		}
	}
	return matched
}
