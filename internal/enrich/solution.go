package enrich

import "regexp"

var (
	numberedStepRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	installRunRe   = regexp.MustCompile(`(?i)\b(npm install|pip install|go install|go run|go get|go build|yarn add|apt install|apt-get install|make install|cargo install|docker run|docker build|kubectl apply)\b`)
	toolVerbRe     = regexp.MustCompile(`(?i)\b(run|execute|install|apply|deploy)\s+(this|the following|it)\b`)
)

// hasStrongSolutionIndicator implements the short-circuit branch of the
// solution classification decision table: code fences, an install/run
// command, or an explicit tool-invocation verb phrase.
func hasStrongSolutionIndicator(text string, hasCode bool) bool {
	if hasCode && fencedCodeRe.MatchString(text) {
		return true
	}
	if installRunRe.MatchString(text) {
		return true
	}
	if toolVerbRe.MatchString(text) {
		return true
	}
	return false
}

// classifySolution applies spec §4.3 stage 3's decision table and, when
// the result is true, assigns a solution_category.
func classifySolution(text string, hasCode bool, patterns SolutionPatternSet) (isSolution bool, category string) {
	textLower := toLower(text)

	if hasStrongSolutionIndicator(text, hasCode) {
		return true, categorize(textLower, hasCode)
	}

	matched := patterns.matchedCategories(textLower)
	n := len(matched)
	length := len(text)
	numberedSteps := numberedStepRe.MatchString(text)

	switch {
	case n >= 2:
		isSolution = true
	case n == 1 && (hasCode || numberedSteps):
		isSolution = true
	case n == 1 && length > 100:
		isSolution = true
	case hasCode && length > 50:
		isSolution = true
	default:
		isSolution = false
	}

	if !isSolution {
		return false, ""
	}
	return true, categorize(textLower, hasCode)
}

// categorize assigns one of the documented solution_category values by
// surface cues. Any has_code signal dominates (code_edit), then shell/install
// commands (command), then config-file mentions (config); anything else
// that still cleared the decision table is explanation (e.g. guidance
// with no code or command attached).
func categorize(textLower string, hasCode bool) string {
	switch {
	case hasCode:
		return "code_edit"
	case installRunRe.MatchString(textLower) || toolVerbRe.MatchString(textLower):
		return "command"
	case contains(textLower, "config", "yaml", "environment variable", "env var", ".env"):
		return "config"
	default:
		return "explanation"
	}
}
