// Package entry defines the canonical conversation entry record, its
// deterministic ID scheme, and the two codecs required by the rest of
// chronicle: a metadata codec for the vector store (C4) and a public
// result codec for tool-surface callers (C10).
package entry

// Type distinguishes the two roles a message in a session can take.
type Type string

const (
	TypeUser      Type = "user"
	TypeAssistant Type = "assistant"
)

// Sentiment is the classified reaction of a user entry to the solution
// attempt it immediately follows.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentPartial  Sentiment = "partial"
	SentimentNone     Sentiment = "none"
)

// ConversationEntry is a single message in a session, fully enriched.
// Fields are grouped to mirror the data model: identity, content, time,
// project, topics, solution signals, feedback signals, relationships,
// and processing markers. The embedding vector itself is not carried on
// this struct — it is produced and consumed only at the store boundary.
type ConversationEntry struct {
	// Identity.
	ID               string `json:"id"`
	SessionID        string `json:"session_id"`
	SequencePosition int    `json:"sequence_position"`
	Type             Type   `json:"type"`

	// Content.
	Text          string   `json:"text"`
	ContentLength int      `json:"content_length"`
	HasCode       bool     `json:"has_code"`
	ToolsUsed     []string `json:"tools_used"`

	// Time.
	TimestampISO  string `json:"timestamp_iso"`
	TimestampUnix int64  `json:"timestamp_unix"`

	// Project.
	ProjectName string `json:"project_name"`
	ProjectPath string `json:"project_path"`

	// Topics: topic name -> confidence in [0,1].
	DetectedTopics map[string]float64 `json:"detected_topics"`

	// Solution signals (assistant entries only).
	IsSolutionAttempt    bool    `json:"is_solution_attempt"`
	SolutionCategory     string  `json:"solution_category,omitempty"`
	SolutionQualityScore float64 `json:"solution_quality_score"`

	// Feedback signals (user entries only).
	IsFeedbackToSolution  bool      `json:"is_feedback_to_solution"`
	UserFeedbackSentiment Sentiment `json:"user_feedback_sentiment"`
	ValidationStrength    float64   `json:"validation_strength"`

	// Relationships.
	PreviousMessageID string `json:"previous_message_id,omitempty"`
	NextMessageID     string `json:"next_message_id,omitempty"`
	RelatedSolutionID string `json:"related_solution_id,omitempty"`
	FeedbackMessageID string `json:"feedback_message_id,omitempty"`

	// Processing markers.
	BackfillProcessed          bool     `json:"backfill_processed"`
	FieldReprocessingTimestamp string   `json:"field_reprocessing_timestamp,omitempty"`
	FieldReprocessingFields    []string `json:"field_reprocessing_fields,omitempty"`

	// Unknown fields seen on read but not named above, preserved so a
	// round trip through the metadata codec never silently drops data.
	Extra map[string]string `json:"-"`
}

// NewSkeleton builds the minimal entry a transcript reader (C2) produces:
// identity, content, and time populated; everything enrichment (C3) would
// set left at zero values. solutionQualityScore is left at zero here;
// the enrichment pipeline (C3) sets the neutral 1.0 baseline on
// assistant entries.
func NewSkeleton(sessionID string, seq int, typ Type, text string, timestampISO string, timestampUnix int64) ConversationEntry {
	return ConversationEntry{
		ID:                    DeriveID(sessionID, typ, seq),
		SessionID:             sessionID,
		SequencePosition:      seq,
		Type:                  typ,
		Text:                  text,
		ContentLength:         len(text),
		TimestampISO:          timestampISO,
		TimestampUnix:         timestampUnix,
		UserFeedbackSentiment: SentimentNone,
	}
}

// Validate checks the invariants C1 is responsible for enforcing at
// construction time: non-empty identity fields, a known type, and a
// positive sequence position. It does not check cross-entry invariants
// (chain ordering, pairing) — those belong to C7.
func (e ConversationEntry) Validate() error {
	if e.SessionID == "" {
		return errMissingField("session_id")
	}
	if e.SequencePosition < 1 {
		return errInvalidField("sequence_position", "must be >= 1")
	}
	if e.Type != TypeUser && e.Type != TypeAssistant {
		return errInvalidField("type", "must be user or assistant")
	}
	if e.ID != DeriveID(e.SessionID, e.Type, e.SequencePosition) {
		return errInvalidField("id", "does not match deterministic derivation")
	}
	return nil
}
