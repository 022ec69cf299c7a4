package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"covid", "19", "patients", "don't", "recover"}, Tokens("COVID-19 patients don't recover."))
	assert.Empty(t, Tokens("  ...  "))
}

func TestContentTokens(t *testing.T) {
	assert.Equal(t, []string{"role", "chemokines", "metastasis"}, ContentTokens("What is the role of chemokines in metastasis?"))
}

func TestSentences(t *testing.T) {
	assert.Equal(t, []string{"First one.", "Second one!", "Third?"}, Sentences("First one. Second one! Third?"))
	assert.Equal(t, []string{"no punctuation"}, Sentences("  no punctuation "))
	assert.Nil(t, Sentences("   "))
}
