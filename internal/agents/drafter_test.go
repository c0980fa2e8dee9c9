package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certquiz/internal/llm"
)

func draftJSON(t *testing.T, q *DraftedQuestion) string {
	t.Helper()
	data, err := json.Marshal(q)
	require.NoError(t, err)
	return string(data)
}

func TestDraftSingleSelect(t *testing.T) {
	caller, client := newCannedCaller(draftJSON(t, validDraft(TypeSingleSelect)))
	d := NewDrafter(caller)

	draft, err := d.Draft(context.Background(), testBrief(), nil, nil, DifficultyMedium, TypeSingleSelect)
	require.NoError(t, err)
	assert.Equal(t, TypeSingleSelect, draft.QuestionType)
	assert.Equal(t, []string{"B"}, draft.AnswerKeys())

	require.Len(t, client.userSeen, 1)
	assert.Contains(t, client.userSeen[0], "RESEARCH_CONTENT")
	assert.Contains(t, client.userSeen[0], "exactly ONE correct answer")
}

func TestDraftMultipleSelection(t *testing.T) {
	caller, client := newCannedCaller(draftJSON(t, validDraft(TypeMultipleSelection)))
	d := NewDrafter(caller)

	draft, err := d.Draft(context.Background(), testBrief(), nil, nil, DifficultyMedium, TypeMultipleSelection)
	require.NoError(t, err)
	assert.Equal(t, TypeMultipleSelection, draft.QuestionType)
	assert.Equal(t, []string{"A", "C"}, draft.AnswerKeys())
	assert.Contains(t, client.userSeen[0], "TWO OR THREE correct answers")
}

func TestDraftRejectsWrongType(t *testing.T) {
	// Model ignored the multiple_selection instruction.
	caller, _ := newCannedCaller(draftJSON(t, validDraft(TypeSingleSelect)))
	d := NewDrafter(caller)

	_, err := d.Draft(context.Background(), testBrief(), nil, nil, DifficultyMedium, TypeMultipleSelection)
	require.Error(t, err)
	assert.True(t, llm.IsParseError(err))
}

func TestDraftRejectsStructurallyInvalid(t *testing.T) {
	bad := validDraft(TypeSingleSelect)
	bad.Answer = "E"
	caller, _ := newCannedCaller(draftJSON(t, bad))
	d := NewDrafter(caller)

	_, err := d.Draft(context.Background(), testBrief(), nil, nil, DifficultyMedium, TypeSingleSelect)
	require.Error(t, err)
	assert.True(t, llm.IsParseError(err))
}

func TestDraftIncludesStyleGuidance(t *testing.T) {
	caller, client := newCannedCaller(draftJSON(t, validDraft(TypeSingleSelect)))
	d := NewDrafter(caller)

	profile := &StyleProfile{
		QuestionStems:        []string{"Which of the following..."},
		AvgSentenceLength:    17.5,
		Complexity:           "moderate",
		Tone:                 "formal",
		CommonMisconceptions: []string{"confusing roles with users"},
	}
	examples := []string{"Which of the following best describes a policy?"}

	_, err := d.Draft(context.Background(), testBrief(), profile, examples, DifficultyMedium, TypeSingleSelect)
	require.NoError(t, err)
	prompt := client.userSeen[0]
	assert.Contains(t, prompt, "STYLE_PROFILE")
	assert.Contains(t, prompt, "Which of the following...")
	assert.Contains(t, prompt, "Tone: formal")
	assert.Contains(t, prompt, "PAST_PAPER_EXAMPLES")
	assert.Contains(t, prompt, "confusing roles with users")
}

func TestReviseKeepsTypeAndBackfills(t *testing.T) {
	revised := validDraft(TypeSingleSelect)
	revised.Topic = ""
	revised.CognitiveLevel = ""
	caller, client := newCannedCaller(draftJSON(t, revised))
	d := NewDrafter(caller)

	current := validDraft(TypeSingleSelect)
	current.CognitiveLevel = "application"
	out, err := d.Revise(context.Background(), current, []string{"options are unbalanced in length"}, testBrief())
	require.NoError(t, err)
	assert.Equal(t, "Storage", out.Topic)
	assert.Equal(t, "application", out.CognitiveLevel)
	assert.Contains(t, client.userSeen[0], "options are unbalanced in length")
	assert.Contains(t, client.userSeen[0], "FEEDBACK TO ADDRESS")
}

func TestReviseRejectsInvalidRevision(t *testing.T) {
	bad := validDraft(TypeSingleSelect)
	bad.Options = map[string]string{"A": "only one"}
	caller, _ := newCannedCaller(draftJSON(t, bad))
	d := NewDrafter(caller)

	_, err := d.Revise(context.Background(), validDraft(TypeSingleSelect), []string{"fix it"}, testBrief())
	require.Error(t, err)
	assert.True(t, llm.IsParseError(err))
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, TypeSingleSelect, normalizeType("single-select", TypeSingleSelect))
	assert.Equal(t, TypeMultipleSelection, normalizeType("multi_select", TypeMultipleSelection))
	assert.Equal(t, TypeMultipleSelection, normalizeType("", TypeMultipleSelection))
	assert.Equal(t, "true_false", normalizeType("true_false", TypeSingleSelect))
}
