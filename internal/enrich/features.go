package enrich

import (
	"regexp"
	"strings"
	"sync"
)

var (
	fencedCodeRe    = regexp.MustCompile("```")
	indentedLineRe  = regexp.MustCompile(`(?m)^(?: {4}|\t)\S`)
	commandPrefixRe = regexp.MustCompile(`(?m)^\s*[$#]\s+\S`)
)

// languageKeywords is a curated list of tokens; any one of them on its
// own marks the text as containing code, even without fences.
var languageKeywords = []string{
	"func ", "def ", "class ", "import ", "package ", "const ", "var ",
	"SELECT ", "return ", "=>", "fn ", "public class", "#include",
}

// toolNames is the configured set of tool names text-feature extraction
// matches against. Matching is whole-word, case-insensitive.
var toolNames = []string{
	"bash", "edit", "read", "write", "grep", "glob", "git", "docker",
	"kubectl", "npm", "go", "python", "curl", "ssh",
}

var (
	wordBoundaryMu    sync.RWMutex
	wordBoundaryCache = map[string]*regexp.Regexp{}
)

// wordBoundary is called concurrently across sessions by the orchestrator's
// bounded worker pool, so the cache it fills needs its own lock rather
// than relying on a caller-held one.
func wordBoundary(word string) *regexp.Regexp {
	wordBoundaryMu.RLock()
	re, ok := wordBoundaryCache[word]
	wordBoundaryMu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)

	wordBoundaryMu.Lock()
	wordBoundaryCache[word] = re
	wordBoundaryMu.Unlock()
	return re
}

// detectHasCode reports whether text contains a fenced code block,
// an indented code block, a shell command prefix, or a language keyword.
func detectHasCode(text string) bool {
	if fencedCodeRe.MatchString(text) {
		return true
	}
	if indentedLineRe.MatchString(text) {
		return true
	}
	if commandPrefixRe.MatchString(text) {
		return true
	}
	for _, kw := range languageKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// detectToolsUsed returns the configured tool names referenced in text,
// in the order of the toolNames list, de-duplicated.
func detectToolsUsed(text string) []string {
	var found []string
	seen := map[string]bool{}
	for _, tool := range toolNames {
		if seen[tool] {
			continue
		}
		if wordBoundary(tool).MatchString(text) {
			found = append(found, tool)
			seen[tool] = true
		}
	}
	return found
}
