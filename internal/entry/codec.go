package entry

import (
	"encoding/json"
	"strconv"
	"strings"
)

// metadata keys. Kept as constants so ToMetadata/FromMetadata cannot
// drift apart on a typo.
const (
	keySessionID        = "session_id"
	keySequencePosition = "sequence_position"
	keyType             = "type"
	keyContentLength    = "content_length"
	keyHasCode          = "has_code"
	keyToolsUsed        = "tools_used"
	keyTimestampISO     = "timestamp_iso"
	keyTimestampUnix    = "timestamp_unix"
	keyProjectName      = "project_name"
	keyProjectPath      = "project_path"
	keyDetectedTopics   = "detected_topics"

	keyIsSolutionAttempt    = "is_solution_attempt"
	keySolutionCategory     = "solution_category"
	keySolutionQualityScore = "solution_quality_score"

	keyIsFeedbackToSolution  = "is_feedback_to_solution"
	keyUserFeedbackSentiment = "user_feedback_sentiment"
	keyValidationStrength    = "validation_strength"

	keyPreviousMessageID = "previous_message_id"
	keyNextMessageID     = "next_message_id"
	keyRelatedSolutionID = "related_solution_id"
	keyFeedbackMessageID = "feedback_message_id"

	keyBackfillProcessed          = "backfill_processed"
	keyFieldReprocessingTimestamp = "field_reprocessing_timestamp"
	keyFieldReprocessingFields    = "field_reprocessing_fields"
)

// knownKeys lets FromMetadata tell a recognized field from an unknown one
// that must be preserved rather than silently dropped.
var knownKeys = map[string]struct{}{
	keySessionID: {}, keySequencePosition: {}, keyType: {}, keyContentLength: {},
	keyHasCode: {}, keyToolsUsed: {}, keyTimestampISO: {}, keyTimestampUnix: {},
	keyProjectName: {}, keyProjectPath: {}, keyDetectedTopics: {},
	keyIsSolutionAttempt: {}, keySolutionCategory: {}, keySolutionQualityScore: {},
	keyIsFeedbackToSolution: {}, keyUserFeedbackSentiment: {}, keyValidationStrength: {},
	keyPreviousMessageID: {}, keyNextMessageID: {}, keyRelatedSolutionID: {}, keyFeedbackMessageID: {},
	keyBackfillProcessed: {}, keyFieldReprocessingTimestamp: {}, keyFieldReprocessingFields: {},
}

// ToMetadata renders the entry's scalar and derived fields into the
// map[string]string shape the vector store's upsert/update operations
// require. id and text travel separately through the store contract
// (upsert(ids, texts, metadatas)) and are not duplicated here. List and
// map fields are JSON-encoded.
func (e ConversationEntry) ToMetadata() map[string]string {
	m := make(map[string]string, len(knownKeys)+len(e.Extra))
	for k, v := range e.Extra {
		m[k] = v
	}

	m[keySessionID] = e.SessionID
	m[keySequencePosition] = strconv.Itoa(e.SequencePosition)
	m[keyType] = string(e.Type)
	m[keyContentLength] = strconv.Itoa(e.ContentLength)
	m[keyHasCode] = strconv.FormatBool(e.HasCode)
	m[keyToolsUsed] = encodeJSON(e.ToolsUsed)
	m[keyTimestampISO] = e.TimestampISO
	m[keyTimestampUnix] = strconv.FormatInt(e.TimestampUnix, 10)
	m[keyProjectName] = e.ProjectName
	m[keyProjectPath] = e.ProjectPath
	m[keyDetectedTopics] = encodeJSON(e.DetectedTopics)

	m[keyIsSolutionAttempt] = strconv.FormatBool(e.IsSolutionAttempt)
	m[keySolutionCategory] = e.SolutionCategory
	m[keySolutionQualityScore] = strconv.FormatFloat(e.SolutionQualityScore, 'f', -1, 64)

	m[keyIsFeedbackToSolution] = strconv.FormatBool(e.IsFeedbackToSolution)
	m[keyUserFeedbackSentiment] = string(e.UserFeedbackSentiment)
	m[keyValidationStrength] = strconv.FormatFloat(e.ValidationStrength, 'f', -1, 64)

	m[keyPreviousMessageID] = e.PreviousMessageID
	m[keyNextMessageID] = e.NextMessageID
	m[keyRelatedSolutionID] = e.RelatedSolutionID
	m[keyFeedbackMessageID] = e.FeedbackMessageID

	m[keyBackfillProcessed] = strconv.FormatBool(e.BackfillProcessed)
	m[keyFieldReprocessingTimestamp] = e.FieldReprocessingTimestamp
	m[keyFieldReprocessingFields] = encodeJSON(e.FieldReprocessingFields)

	return m
}

// FromMetadata reconstructs an entry from its id, text, and stored
// metadata. Keys not recognized by this codec are preserved in Extra
// rather than dropped, so a round trip through a store that has gained
// fields this version of chronicle does not know about is lossless.
func FromMetadata(id, text string, meta map[string]string) ConversationEntry {
	e := ConversationEntry{ID: id, Text: text, Extra: map[string]string{}}

	e.SessionID = meta[keySessionID]
	e.SequencePosition = atoi(meta[keySequencePosition])
	e.Type = Type(meta[keyType])
	e.ContentLength = atoi(meta[keyContentLength])
	e.HasCode = meta[keyHasCode] == "true"
	decodeJSON(meta[keyToolsUsed], &e.ToolsUsed)
	e.TimestampISO = meta[keyTimestampISO]
	e.TimestampUnix = atoi64(meta[keyTimestampUnix])
	e.ProjectName = meta[keyProjectName]
	e.ProjectPath = meta[keyProjectPath]
	decodeJSON(meta[keyDetectedTopics], &e.DetectedTopics)

	e.IsSolutionAttempt = meta[keyIsSolutionAttempt] == "true"
	e.SolutionCategory = meta[keySolutionCategory]
	e.SolutionQualityScore = atof(meta[keySolutionQualityScore])

	e.IsFeedbackToSolution = meta[keyIsFeedbackToSolution] == "true"
	e.UserFeedbackSentiment = Sentiment(meta[keyUserFeedbackSentiment])
	e.ValidationStrength = atof(meta[keyValidationStrength])

	e.PreviousMessageID = meta[keyPreviousMessageID]
	e.NextMessageID = meta[keyNextMessageID]
	e.RelatedSolutionID = meta[keyRelatedSolutionID]
	e.FeedbackMessageID = meta[keyFeedbackMessageID]

	e.BackfillProcessed = meta[keyBackfillProcessed] == "true"
	e.FieldReprocessingTimestamp = meta[keyFieldReprocessingTimestamp]
	decodeJSON(meta[keyFieldReprocessingFields], &e.FieldReprocessingFields)

	for k, v := range meta {
		if _, known := knownKeys[k]; !known {
			e.Extra[k] = v
		}
	}
	if len(e.Extra) == 0 {
		e.Extra = nil
	}

	return e
}

// Result is the public record returned to tool-surface callers (C10).
// Unlike the metadata codec it carries a typed similarity score and
// omits internal processing markers callers have no use for.
type Result struct {
	ID                    string             `json:"id"`
	SessionID             string             `json:"session_id"`
	Type                  Type               `json:"type"`
	Text                  string             `json:"text"`
	TimestampISO          string             `json:"timestamp_iso"`
	TimestampUnix         int64              `json:"timestamp_unix"`
	ProjectName           string             `json:"project_name"`
	DetectedTopics        map[string]float64 `json:"detected_topics,omitempty"`
	IsSolutionAttempt     bool               `json:"is_solution_attempt,omitempty"`
	SolutionCategory      string             `json:"solution_category,omitempty"`
	SolutionQualityScore  float64            `json:"solution_quality_score,omitempty"`
	IsFeedbackToSolution  bool               `json:"is_feedback_to_solution,omitempty"`
	UserFeedbackSentiment Sentiment          `json:"user_feedback_sentiment,omitempty"`
	PreviousMessageID     string             `json:"previous_message_id,omitempty"`
	NextMessageID         string             `json:"next_message_id,omitempty"`
	RelatedSolutionID     string             `json:"related_solution_id,omitempty"`
	FeedbackMessageID     string             `json:"feedback_message_id,omitempty"`
	Score                 float64            `json:"score"`
	Snippet               string             `json:"snippet,omitempty"`
}

// ToResult projects the entry into its public shape. score is the
// caller-supplied final ranking score (C8); chronicle never lets callers
// see raw cosine similarity without the multi-factor boost applied.
func (e ConversationEntry) ToResult(score float64) Result {
	return Result{
		ID:                    e.ID,
		SessionID:             e.SessionID,
		Type:                  e.Type,
		Text:                  e.Text,
		TimestampISO:          e.TimestampISO,
		TimestampUnix:         e.TimestampUnix,
		ProjectName:           e.ProjectName,
		DetectedTopics:        e.DetectedTopics,
		IsSolutionAttempt:     e.IsSolutionAttempt,
		SolutionCategory:      e.SolutionCategory,
		SolutionQualityScore:  e.SolutionQualityScore,
		IsFeedbackToSolution:  e.IsFeedbackToSolution,
		UserFeedbackSentiment: e.UserFeedbackSentiment,
		PreviousMessageID:     e.PreviousMessageID,
		NextMessageID:         e.NextMessageID,
		RelatedSolutionID:     e.RelatedSolutionID,
		FeedbackMessageID:     e.FeedbackMessageID,
		Score:                 score,
	}
}

func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeJSON(s string, out any) {
	if strings.TrimSpace(s) == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), out)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func atoi64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
