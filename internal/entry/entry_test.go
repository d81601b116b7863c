package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveID_Deterministic(t *testing.T) {
	id1 := DeriveID("sess-1", TypeAssistant, 3)
	id2 := DeriveID("sess-1", TypeAssistant, 3)
	assert.Equal(t, id1, id2)
	assert.Equal(t, "sess-1_assistant_3", id1)
}

func TestDeriveID_VariesWithAnyComponent(t *testing.T) {
	base := DeriveID("sess-1", TypeUser, 1)
	assert.NotEqual(t, base, DeriveID("sess-2", TypeUser, 1))
	assert.NotEqual(t, base, DeriveID("sess-1", TypeAssistant, 1))
	assert.NotEqual(t, base, DeriveID("sess-1", TypeUser, 2))
}

func TestValidate_RejectsMismatchedID(t *testing.T) {
	e := NewSkeleton("sess-1", 1, TypeUser, "hello", "2026-01-01T00:00:00Z", 1735689600)
	require.NoError(t, e.Validate())

	e.ID = "not-the-derived-id"
	err := e.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsBadSequencePosition(t *testing.T) {
	e := NewSkeleton("sess-1", 1, TypeUser, "hello", "2026-01-01T00:00:00Z", 1735689600)
	e.SequencePosition = 0
	e.ID = DeriveID(e.SessionID, e.Type, 0)
	require.Error(t, e.Validate())
}

func TestMetadataRoundTrip(t *testing.T) {
	e := ConversationEntry{
		ID:                    DeriveID("sess-9", TypeAssistant, 2),
		SessionID:             "sess-9",
		SequencePosition:      2,
		Type:                  TypeAssistant,
		Text:                  "run `go test ./...`",
		ContentLength:         19,
		HasCode:               true,
		ToolsUsed:             []string{"bash", "edit"},
		TimestampISO:          "2026-01-02T03:04:05Z",
		TimestampUnix:         1735786245,
		ProjectName:           "chronicle",
		ProjectPath:           "/root/module",
		DetectedTopics:        map[string]float64{"testing": 0.8, "deployment": 0.2},
		IsSolutionAttempt:     true,
		SolutionCategory:      "command",
		SolutionQualityScore:  1.4,
		IsFeedbackToSolution:  false,
		UserFeedbackSentiment: SentimentNone,
		ValidationStrength:    0,
		PreviousMessageID:     "sess-9_user_1",
		BackfillProcessed:     true,
	}

	meta := e.ToMetadata()
	got := FromMetadata(e.ID, e.Text, meta)

	assert.Equal(t, e.SessionID, got.SessionID)
	assert.Equal(t, e.SequencePosition, got.SequencePosition)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.ToolsUsed, got.ToolsUsed)
	assert.Equal(t, e.DetectedTopics, got.DetectedTopics)
	assert.Equal(t, e.IsSolutionAttempt, got.IsSolutionAttempt)
	assert.Equal(t, e.SolutionCategory, got.SolutionCategory)
	assert.InDelta(t, e.SolutionQualityScore, got.SolutionQualityScore, 1e-9)
	assert.Equal(t, e.PreviousMessageID, got.PreviousMessageID)
	assert.Equal(t, e.BackfillProcessed, got.BackfillProcessed)
}

func TestFromMetadata_PreservesUnknownFields(t *testing.T) {
	meta := map[string]string{
		keySessionID:                           "sess-1",
		keyType:                                "user",
		"future_field_added_by_a_newer_writer": "keep-me",
	}
	got := FromMetadata("sess-1_user_1", "hi", meta)
	require.NotNil(t, got.Extra)
	assert.Equal(t, "keep-me", got.Extra["future_field_added_by_a_newer_writer"])

	roundTripped := got.ToMetadata()
	assert.Equal(t, "keep-me", roundTripped["future_field_added_by_a_newer_writer"])
}
