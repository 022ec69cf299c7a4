package google

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"paperqa/internal/domain"
)

func TestClassify(t *testing.T) {
	rate := Classify("complete", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 429, Message: "quota"}))
	assert.ErrorIs(t, rate, domain.ErrTransient)

	unavailable := Classify("complete", &googleapi.Error{Code: 503})
	assert.ErrorIs(t, unavailable, domain.ErrTransient)

	denied := Classify("complete", &googleapi.Error{Code: 403})
	assert.ErrorIs(t, denied, domain.ErrPermanent)

	assert.ErrorIs(t, Classify("complete", errors.New("odd")), domain.ErrPermanent)
	assert.Equal(t, context.Canceled, Classify("complete", context.Canceled))
}

func TestSplitMessages(t *testing.T) {
	system, history, last, err := splitMessages([]domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "paper"},
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "q2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "paper", system)
	assert.Equal(t, "q2", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("q1")}, history[0].Parts)
	assert.Equal(t, "model", history[1].Role)

	_, _, _, err = splitMessages([]domain.ChatMessage{{Role: domain.RoleAssistant, Content: "a"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, _, _, err = splitMessages(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)

	c, err := New(context.Background(), Config{APIKey: "k"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, DefaultModel, c.model)
}
