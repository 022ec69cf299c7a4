package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("complete: %w", NewBackendError("openai", KindRateLimited, cause))

	assert.ErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, cause)

	perm := NewBackendError("openai", KindPermanent, cause)
	assert.ErrorIs(t, perm, ErrPermanent)
	assert.NotErrorIs(t, perm, ErrTransient)

	assert.Nil(t, NewBackendError("openai", KindConnection, nil))
}

func TestParseSessionState(t *testing.T) {
	for code, want := range map[int]SessionState{0: FreshTopic, 1: Continuation, 2: Terminated} {
		got, err := ParseSessionState(code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSessionState(3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTranscriptAppendDoesNotAlias(t *testing.T) {
	base := Transcript{
		System:   "grounding",
		Messages: make([]ChatMessage, 1, 8),
	}
	base.Messages[0] = ChatMessage{Role: RoleUser, Content: "q"}

	a := base.Append(ChatMessage{Role: RoleAssistant, Content: "a1"})
	b := base.Append(ChatMessage{Role: RoleAssistant, Content: "a2"})
	assert.Equal(t, 1, base.Len())
	assert.Equal(t, "a1", a.Messages[1].Content)
	assert.Equal(t, "a2", b.Messages[1].Content)
	assert.Equal(t, "grounding", a.System)

	clone := a.Clone()
	clone.Messages[0].Content = "changed"
	assert.Equal(t, "q", a.Messages[0].Content)
	assert.Equal(t, Transcript{}, Transcript{}.Clone())
}

func TestTranscriptPrompt(t *testing.T) {
	tr := Transcript{
		System: "grounding",
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "q1"},
			{Role: RoleAssistant, Content: "a1"},
		},
	}
	next := ChatMessage{Role: RoleUser, Content: "q2"}
	assert.Equal(t, []ChatMessage{
		{Role: RoleSystem, Content: "grounding"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		next,
	}, tr.Prompt(next))

	assert.Equal(t, []ChatMessage{next}, Transcript{}.Prompt(next))
}

func TestTranscriptGrounded(t *testing.T) {
	turn := []ChatMessage{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}}
	assert.False(t, Transcript{}.Grounded())
	assert.False(t, Transcript{Messages: turn}.Grounded())
	assert.False(t, Transcript{System: "paper"}.Grounded())
	assert.True(t, Transcript{System: "paper", Messages: turn}.Grounded())
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, KindRateLimited, KindForStatus(429))
	assert.Equal(t, KindUnavailable, KindForStatus(503))
	assert.Equal(t, KindUnavailable, KindForStatus(500))
	assert.Equal(t, KindUnavailable, KindForStatus(408))
	assert.Equal(t, KindPermanent, KindForStatus(401))
	assert.Equal(t, KindPermanent, KindForStatus(400))
}
